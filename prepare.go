package pdfseal

import (
	"fmt"
	"io"

	"github.com/vedantmgoyal9/pdfseal/mac"
	"github.com/vedantmgoyal9/pdfseal/sign"
)

// PrepareBuilder configures a deferred signing pass. Writing it
// serializes the document with an empty signature gap; the gap is
// filled in later through Document.Complete, possibly by another
// process holding the key material.
type PrepareBuilder struct {
	doc           *Document
	fieldName     string
	sigType       SignatureType
	permission    Permission
	fieldLock     *sign.FieldLock
	format        Format
	reason        string
	location      string
	contact       string
	signerName    string
	estimatedSize uint32
	extraSlots    map[string]int64
	macEmbedder   *mac.Embedder
	useTempFile   bool
}

// Field selects the signature form field by partial name, reusing an
// existing unsigned field or creating one. Empty selects a generated
// unique name.
func (b *PrepareBuilder) Field(name string) *PrepareBuilder {
	b.fieldName = name
	return b
}

// Type specifies the type of signature the prepared field will hold.
// Default is ApprovalSignature.
func (b *PrepareBuilder) Type(t SignatureType) *PrepareBuilder {
	b.sigType = t
	return b
}

// Permission limits what changes are allowed to the document after
// signing. Only applicable when preparing a CertificationSignature.
func (b *PrepareBuilder) Permission(p Permission) *PrepareBuilder {
	b.permission = p
	return b
}

// Lock attaches a field lock to the prepared signature, restricting
// later changes to form fields.
func (b *PrepareBuilder) Lock(action FieldLockAction, fields ...string) *PrepareBuilder {
	b.fieldLock = &sign.FieldLock{Action: action, Fields: fields}
	return b
}

// Format configures the signature format announced in the prepared
// signature dictionary.
func (b *PrepareBuilder) Format(f Format) *PrepareBuilder {
	b.format = f
	return b
}

// Reason sets the signing reason stored in the prepared dictionary.
func (b *PrepareBuilder) Reason(reason string) *PrepareBuilder {
	b.reason = reason
	return b
}

// Location specifies the physical location of the signer.
func (b *PrepareBuilder) Location(location string) *PrepareBuilder {
	b.location = location
	return b
}

// Contact provides contact information for the signer.
func (b *PrepareBuilder) Contact(contact string) *PrepareBuilder {
	b.contact = contact
	return b
}

// SignerName sets the name of the signer.
func (b *PrepareBuilder) SignerName(name string) *PrepareBuilder {
	b.signerName = name
	return b
}

// EstimatedSize reserves space for a signature container of the given
// decoded byte size. Zero selects the built-in estimate. Unlike the
// one-shot flow, a prepared gap cannot grow: completion fails when the
// container outruns the reservation.
func (b *PrepareBuilder) EstimatedSize(size uint32) *PrepareBuilder {
	b.estimatedSize = size
	return b
}

// ExtraSlot reserves an additional named placeholder of the given byte
// length in the signature dictionary, for material patched in by the
// caller after completion (e.g. validation data). The length must be
// even and at least 2.
func (b *PrepareBuilder) ExtraSlot(key string, length int64) *PrepareBuilder {
	if b.extraSlots == nil {
		b.extraSlots = make(map[string]int64)
	}
	b.extraSlots[key] = length
	return b
}

// MAC sizes the reservation for an integrity token that will be
// attached during completion.
func (b *PrepareBuilder) MAC(embedder *mac.Embedder) *PrepareBuilder {
	b.macEmbedder = embedder
	return b
}

// UseTempFile routes the serialized copy through a temporary file
// instead of memory.
func (b *PrepareBuilder) UseTempFile(use bool) *PrepareBuilder {
	b.useTempFile = use
	return b
}

// Write serializes the prepared document to output and describes the
// reserved field. The output is a well formed document whose signature
// gap holds only zero bytes.
func (b *PrepareBuilder) Write(output io.Writer) (*Prepared, error) {
	sign_data := sign.SignData{
		FieldName:              b.fieldName,
		EstimatedSignatureSize: b.estimatedSize,
		ExtraSlots:             b.extraSlots,
		MAC:                    b.macEmbedder,
		UseTempFile:            b.useTempFile,
		CompressLevel:          b.doc.compressLevel,
	}

	switch b.format {
	case PAdES_B, PAdES_B_T, PAdES_B_LT:
		sign_data.Format = sign.CAdESDetached
	case PAdES_B_LTA:
		return nil, fmt.Errorf("signature format PAdES_B_LTA is not currently supported")
	}

	switch b.sigType {
	case ApprovalSignature:
		sign_data.Signature.CertType = sign.ApprovalSignature
	case CertificationSignature:
		sign_data.Signature.CertType = sign.CertificationSignature
		sign_data.Signature.DocMDPPerm = sign.DocMDPPerm(b.permission)
	case UsageRightsSignature:
		sign_data.Signature.CertType = sign.UsageRightsSignature
	case DocumentTimestamp:
		sign_data.Signature.CertType = sign.TimeStampSignature
	}
	sign_data.Signature.FieldLock = b.fieldLock
	sign_data.Signature.Info.Name = b.signerName
	sign_data.Signature.Info.Reason = b.reason
	sign_data.Signature.Info.Location = b.location
	sign_data.Signature.Info.ContactInfo = b.contact

	return sign.Prepare(b.doc.readSeeker(), output, b.doc.rdr, b.doc.size, sign_data)
}

// CompleteBuilder configures the completion pass for a prepared
// document.
type CompleteBuilder struct {
	doc         *Document
	fieldName   string
	fn          SignFunc
	macEmbedder *mac.Embedder
}

// MAC attaches an integrity token over the completed document to the
// container produced by the callback. The prepared reservation must
// have been sized with the same embedder.
func (b *CompleteBuilder) MAC(embedder *mac.Embedder) *CompleteBuilder {
	b.macEmbedder = embedder
	return b
}

// Write completes the prepared document and streams the result to
// output. Every byte outside the reserved gap is written unchanged.
func (b *CompleteBuilder) Write(output io.Writer) error {
	return sign.ApplySignature(b.doc.reader, b.doc.size, output, b.fieldName, b.fn, b.macEmbedder)
}
