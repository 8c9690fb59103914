// Package pdfseal signs PDF documents by incremental update: it
// reserves a byte range for a CMS signature container inside an
// appended revision, digests every byte outside the reservation and
// patches the encoded container into the reserved gap without touching
// any other byte.
//
// Basic usage:
//
//	doc, err := pdfseal.OpenFile("document.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer doc.Close()
//
//	doc.Sign(signer, cert).
//	    Reason("Approved").
//	    Location("Amsterdam")
//
//	result, err := doc.Write(output)
//
// Documents can also be serialized with an empty signature gap and
// completed later by an external key holder, see Document.Prepare and
// Document.Complete.
package pdfseal

import (
	"compress/zlib"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"os"

	pdflib "github.com/digitorus/pdf"
)

// Document represents a PDF document that can be signed, prepared for
// deferred signing, or completed.
type Document struct {
	reader io.ReaderAt
	size   int64
	rdr    *pdflib.Reader

	// Set when OpenFile owns the underlying file handle.
	closer io.Closer

	// Staged operations
	pendingSigns []*SignBuilder

	// Document settings
	compressLevel int
	unit          float64
}

// Open initializes a PDF Document from an io.ReaderAt (e.g., an open
// file or memory buffer). The size parameter must be the total size of
// the PDF in bytes.
func Open(reader io.ReaderAt, size int64) (*Document, error) {
	rdr, err := pdflib.NewReader(reader, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Document{
		reader:        reader,
		size:          size,
		rdr:           rdr,
		compressLevel: zlib.DefaultCompression,
		unit:          1.0, // Default to PDF points
	}, nil
}

// OpenFile is a convenience method to initialize a PDF Document from a
// file on disk. Close releases the file handle.
func OpenFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	finfo, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	doc, err := Open(file, finfo.Size())
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	doc.closer = file
	return doc, nil
}

// Close releases the file handle of a Document opened through
// OpenFile. For documents opened from a caller owned reader it does
// nothing.
func (d *Document) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// SetCompression configures the zlib compression level for new stream
// objects added to the PDF. Supported levels are zlib.NoCompression,
// zlib.BestSpeed, zlib.BestCompression, or zlib.DefaultCompression.
func (d *Document) SetCompression(level int) {
	d.compressLevel = level
}

// SetUnit sets the default coordinate system scale for all subsequent
// operations on this document (e.g., signature widget placement).
// By default, the unit is 1.0 (one PDF point = 1/72 inch).
func (d *Document) SetUnit(u float64) {
	d.unit = u
}

// Sign begins the process of adding a digital signature to the
// document. It returns a SignBuilder for fluent configuration of the
// signature properties. The signature is only finalized and written to
// the document when doc.Write() is called.
//
//   - signer: The private key used for signing.
//   - cert: The signer's public certificate.
//   - intermediates: Optional intermediate certificates to include in
//     the certificate chain.
func (d *Document) Sign(signer crypto.Signer, cert *x509.Certificate, intermediates ...*x509.Certificate) *SignBuilder {
	sb := &SignBuilder{
		doc:    d,
		signer: signer,
		cert:   cert,
		digest: crypto.SHA256, // Default
		unit:   d.unit,        // Inherit from document
	}

	if len(intermediates) > 0 {
		chain := make([]*x509.Certificate, 0, len(intermediates)+1)
		chain = append(chain, cert)
		chain = append(chain, intermediates...)
		sb.chains = [][]*x509.Certificate{chain}
	}

	d.pendingSigns = append(d.pendingSigns, sb)
	return sb
}

// Timestamp adds a document-level timestamp signature proving the
// document existed when the authority countersigned it.
func (d *Document) Timestamp(tsaURL string) *SignBuilder {
	return d.Sign(nil, nil).
		Type(DocumentTimestamp).
		Timestamp(tsaURL)
}

// Prepare begins configuration of a deferred signing pass: the
// document is serialized with an empty signature gap and completed
// later, possibly by another process holding the key material.
func (d *Document) Prepare() *PrepareBuilder {
	return &PrepareBuilder{doc: d}
}

// Complete begins configuration of the completion pass for a document
// that was prepared earlier. The callback produces the signature
// container over the prepared field's covered byte ranges.
func (d *Document) Complete(fieldName string, fn SignFunc) *CompleteBuilder {
	return &CompleteBuilder{doc: d, fieldName: fieldName, fn: fn}
}

// Reader returns the low-level PDF reader, allowing direct access to
// the PDF Cross-Reference (XRef) table and objects.
func (d *Document) Reader() *pdflib.Reader {
	return d.rdr
}

// readSeeker adapts the document's reader for the sequential copy a
// signing pass starts with.
func (d *Document) readSeeker() io.ReadSeeker {
	if rs, ok := d.reader.(io.ReadSeeker); ok {
		return rs
	}
	return io.NewSectionReader(d.reader, 0, d.size)
}
