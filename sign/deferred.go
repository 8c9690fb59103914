package sign

import (
	"crypto"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/digitorus/pdf"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
	"github.com/vedantmgoyal9/pdfseal/mac"
)

// Prepared describes a document that was serialized with an empty
// signature gap, everything a later ApplySignature call needs to find
// the field again.
type Prepared struct {
	// FieldName is the partial name of the prepared signature field.
	FieldName string

	// ByteRange is the descriptor patched into the document.
	ByteRange []int64

	// Capacity is the hexadecimal character capacity of the content
	// gap, twice the decoded container size it can hold.
	Capacity uint32
}

// SignFunc produces the DER encoded signature container for a prepared
// field. Implementations usually hash the covered ranges through
// field.Digest and hand the digest to an external key holder.
type SignFunc func(field *PreparedField) ([]byte, error)

// Prepare serializes an incremental update with placeholder gaps but no
// signature content. The output stays verifiable as a well formed
// document and can be completed later with ApplySignature, so no signer
// or certificate is required yet.
func Prepare(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, size int64, sign_data SignData) (*Prepared, error) {
	context := SignContext{
		PDFReader:  rdr,
		InputFile:  input,
		OutputFile: output,
		SignData:   sign_data,
		inputSize:  size,
		deferred:   true,
	}

	if err := context.PreClose(); err != nil {
		return nil, err
	}
	if err := context.Close(nil); err != nil {
		return nil, err
	}

	return &Prepared{
		FieldName: context.fieldName,
		ByteRange: context.ByteRangeValues,
		Capacity:  context.SignatureMaxLength,
	}, nil
}

// PrepareFile prepares the document at input for deferred signing and
// writes it to output.
func PrepareFile(input string, output string, sign_data SignData) (*Prepared, error) {
	input_file, err := os.Open(input)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = input_file.Close()
	}()

	output_file, err := os.Create(output)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = output_file.Close()
	}()

	finfo, err := input_file.Stat()
	if err != nil {
		return nil, err
	}
	size := finfo.Size()

	rdr, err := pdf.NewReader(input_file, size)
	if err != nil {
		return nil, err
	}

	return Prepare(input_file, output_file, rdr, size, sign_data)
}

// PreparedField gives a signing callback access to the bytes covered by
// a prepared field without exposing the rest of the pass.
type PreparedField struct {
	input  io.ReaderAt
	size   int64
	ranges []int64

	gapStart int64
	gapEnd   int64
}

// ByteRange returns the descriptor values bracketing the content gap,
// start offset and end offset of the gap with the leading and trailing
// span lengths around them.
func (f *PreparedField) ByteRange() (values [4]int64) {
	values[0] = 0
	values[1] = f.gapStart
	values[2] = f.gapEnd
	values[3] = f.size - f.gapEnd
	return values
}

// RangeReader streams the covered spans in order, skipping the gaps.
func (f *PreparedField) RangeReader() io.Reader {
	readers := make([]io.Reader, 0, len(f.ranges)/2)
	for i := 0; i+1 < len(f.ranges); i += 2 {
		if f.ranges[i+1] == 0 {
			continue
		}
		readers = append(readers, io.NewSectionReader(f.input, f.ranges[i], f.ranges[i+1]))
	}
	return io.MultiReader(readers...)
}

// Digest hashes the covered spans with the given algorithm.
func (f *PreparedField) Digest(h crypto.Hash) ([]byte, error) {
	if !h.Available() {
		return nil, fmt.Errorf("hash %v is not available", h)
	}
	hash := h.New()
	if _, err := io.Copy(hash, f.RangeReader()); err != nil {
		return nil, err
	}
	return hash.Sum(nil), nil
}

// AttachDocumentMAC attaches the integrity token for a prepared field's
// covered bytes to an externally produced container.
func AttachDocumentMAC(embedder *mac.Embedder, container []byte, field *PreparedField) ([]byte, error) {
	return embedder.AttachToContainer(container, field.RangeReader())
}

// ApplySignature completes a prepared document. It locates the named
// field, lets the callback produce the container over the covered
// ranges and streams the patched document to output. The input bytes
// are never modified.
func ApplySignature(input io.ReaderAt, size int64, output io.Writer, fieldName string, fn SignFunc, embedder *mac.Embedder) error {
	rdr, err := pdf.NewReader(input, size)
	if err != nil {
		return err
	}

	field, found, err := pdfscan.FindField(rdr, fieldName)
	if err != nil {
		return fmt.Errorf("failed to scan signature fields: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, fieldName)
	}
	if !field.Signed {
		return fmt.Errorf("%w: %q", ErrNoSignatureDictionary, fieldName)
	}
	if !field.Placeholder {
		return fmt.Errorf("%w: %q", ErrFieldAlreadySigned, fieldName)
	}
	if !pdfscan.Covers(field.ByteRange, size) {
		return fmt.Errorf("%w: field %q", ErrNotLastSignature, fieldName)
	}

	gapStart := field.ByteRange[1]
	gapEnd := field.ByteRange[2]
	capacity := gapEnd - gapStart - 2
	if capacity < 0 || capacity%2 != 0 {
		return fmt.Errorf("%w: gap spans %d bytes", ErrOddGapLength, gapEnd-gapStart)
	}

	prepared := &PreparedField{
		input:    input,
		size:     size,
		ranges:   field.ByteRange,
		gapStart: gapStart,
		gapEnd:   gapEnd,
	}

	container, err := fn(prepared)
	if err != nil {
		return fmt.Errorf("signing callback failed: %w", err)
	}

	if embedder != nil {
		container, err = AttachDocumentMAC(embedder, container, prepared)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMacEmbedding, err)
		}
	}

	dst := make([]byte, hex.EncodedLen(len(container)))
	hex.Encode(dst, container)
	if int64(len(dst)) > capacity {
		return fmt.Errorf("%w: container needs %d hex characters, gap holds %d",
			ErrInsufficientSpace, len(dst), capacity)
	}

	padded := make([]byte, capacity)
	copy(padded, dst)
	for i := len(dst); i < len(padded); i++ {
		padded[i] = '0'
	}

	// Stream the document around the patched gap, keeping the original
	// delimiters in place.
	head := io.NewSectionReader(input, 0, gapStart+1)
	if _, err := io.Copy(output, head); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := output.Write(padded); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	tail := io.NewSectionReader(input, gapEnd-1, size-(gapEnd-1))
	if _, err := io.Copy(output, tail); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

// ApplySignatureFile completes the prepared document at input and
// writes the finished document to output.
func ApplySignatureFile(input string, output string, fieldName string, fn SignFunc, embedder *mac.Embedder) error {
	input_file, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		_ = input_file.Close()
	}()

	finfo, err := input_file.Stat()
	if err != nil {
		return err
	}

	output_file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		_ = output_file.Close()
	}()

	return ApplySignature(input_file, finfo.Size(), output_file, fieldName, fn, embedder)
}
