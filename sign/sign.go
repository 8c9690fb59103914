package sign

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/digitorus/pdf"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
	"github.com/vedantmgoyal9/pdfseal/revocation"
)

var (
	// ErrAlreadyPreClosed is returned when a context is prepared twice.
	ErrAlreadyPreClosed = errors.New("document is already prepared")

	// ErrNotPreClosed is returned when a stage needs the prepared
	// incremental update but PreClose has not run.
	ErrNotPreClosed = errors.New("document has not been prepared")

	// ErrAlreadyClosed is returned when a context is used after the
	// output has been written.
	ErrAlreadyClosed = errors.New("document is already closed")

	// ErrInsufficientSpace is returned when serialized data does not
	// fit the space reserved for it.
	ErrInsufficientSpace = errors.New("reserved space is too small")

	// ErrNoSignatureDictionary is returned when a field has no value to
	// complete.
	ErrNoSignatureDictionary = errors.New("field has no signature dictionary")

	// ErrFieldNotFound is returned when the named signature field does
	// not exist in the document.
	ErrFieldNotFound = errors.New("signature field not found")

	// ErrFieldAlreadySigned is returned when the selected field already
	// carries a signature.
	ErrFieldAlreadySigned = errors.New("signature field is already signed")

	// ErrInvalidFieldName is returned for field names the form cannot
	// accept, such as names with periods or names held by a field of a
	// different type.
	ErrInvalidFieldName = errors.New("invalid signature field name")

	// ErrOddGapLength is returned when a reserved gap cannot hold hex
	// encoded content because its payload length is odd or negative.
	ErrOddGapLength = errors.New("gap cannot hold hex encoded content")

	// ErrNotLastSignature is returned when a prepared field's byte
	// range does not cover the whole document.
	ErrNotLastSignature = errors.New("signature does not cover the whole document")

	// ErrTimestampAuthority is returned when obtaining or validating an
	// RFC 3161 token fails.
	ErrTimestampAuthority = errors.New("timestamp authority request failed")

	// ErrMacEmbedding is returned when the integrity token cannot be
	// attached to the signature container.
	ErrMacEmbedding = errors.New("failed to attach integrity token")
)

// SignFile signs the document at input and writes the result to output.
func SignFile(input string, output string, sign_data SignData) error {
	input_file, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() {
		_ = input_file.Close()
	}()

	output_file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		_ = output_file.Close()
	}()

	finfo, err := input_file.Stat()
	if err != nil {
		return err
	}
	size := finfo.Size()

	rdr, err := pdf.NewReader(input_file, size)
	if err != nil {
		return err
	}

	return Sign(input_file, output_file, rdr, size, sign_data)
}

// Sign runs a complete signing pass over an already opened document.
func Sign(input io.ReadSeeker, output io.Writer, rdr *pdf.Reader, size int64, sign_data SignData) error {
	context := SignContext{
		PDFReader:  rdr,
		InputFile:  input,
		OutputFile: output,
		SignData:   sign_data,
		inputSize:  size,
	}

	return context.SignPDF()
}

// SignPDF prepares the incremental update, builds the signature
// container and completes the output. When the container outgrows its
// reservation the pass is rerun with a larger one.
func (context *SignContext) SignPDF() error {
	if err := context.PreClose(); err != nil {
		return err
	}

	var container []byte
	var err error
	switch context.SignData.Signature.CertType {
	case TimeStampSignature:
		container, err = context.createDocumentTimestamp()
	default:
		container, err = context.createSignature()
	}
	if err != nil {
		_ = context.output.Cleanup()
		return fmt.Errorf("failed to create signature: %w", err)
	}

	// The integrity token is attached during Close and can only grow
	// the container, so it is budgeted before checking the fit.
	needed := uint32(hex.EncodedLen(len(container)))
	if context.SignData.MAC != nil {
		needed += uint32(hex.EncodedLen(macReservedSize))
	}
	if needed > context.SignatureMaxLength {
		context.SignatureMaxLengthBase += (needed-context.SignatureMaxLength)/2 + 1
		if err := context.resetForRetry(); err != nil {
			return err
		}
		return context.SignPDF()
	}

	return context.Close(container)
}

// PreClose serializes the incremental update with placeholder gaps for
// the signature content and the byte range descriptor. After it returns
// every byte of the output except the reserved gaps is final.
func (context *SignContext) PreClose() error {
	if context.closed {
		return ErrAlreadyClosed
	}
	if context.preClosed {
		return ErrAlreadyPreClosed
	}

	context.applyDefaults()
	isTimestamp := context.SignData.Signature.CertType == TimeStampSignature

	if !isTimestamp && !context.deferred {
		if context.SignData.Certificate == nil {
			return fmt.Errorf("certificate is required")
		}
		if context.SignData.Signer != nil {
			if err := ValidateSignerCertificateMatch(context.SignData.Signer, context.SignData.Certificate); err != nil {
				return fmt.Errorf("signer/certificate validation failed: %w", err)
			}
		}
	}

	existing, err := pdfscan.SignatureFields(context.PDFReader)
	if err != nil {
		return fmt.Errorf("failed to scan signature fields: %w", err)
	}
	context.existingSignatures = existing

	// A certification signature must be the first signature applied.
	if context.SignData.Signature.CertType == CertificationSignature {
		for _, field := range existing {
			if field.Signed && !field.Timestamp {
				return fmt.Errorf("cannot certify a document that already carries a signature")
			}
		}
	}

	if err := context.resolveFieldName(); err != nil {
		return err
	}

	output, err := newByteSink(context.SignData.UseTempFile)
	if err != nil {
		return fmt.Errorf("failed to create output buffer: %w", err)
	}
	context.output = output

	// Copy the old file into the new buffer.
	if _, err := context.InputFile.Seek(0, 0); err != nil {
		return err
	}
	copied, err := io.Copy(context.output, context.InputFile)
	if err != nil {
		return err
	}
	context.inputSize = copied

	// File always needs an empty line after %%EOF.
	if _, err := context.output.Write([]byte("\n")); err != nil {
		return err
	}

	// Revocation data can be quite large and influences the size of the
	// content gap, so it is fetched before the placeholders go out.
	if !isTimestamp {
		if err := context.fetchRevocationData(); err != nil {
			return fmt.Errorf("failed to fetch revocation data: %w", err)
		}
	}

	estimated := context.SignData.EstimatedSignatureSize
	if estimated == 0 {
		estimated = context.estimateContainerSize()
	}
	context.SignatureMaxLength = 2 * (estimated + context.SignatureMaxLengthBase)

	context.session = newReservationSession()
	if err := context.session.reserve(contentsSlot, int64(context.SignatureMaxLength)+2); err != nil {
		return err
	}
	if err := context.session.reserve(byteRangeSlot, byteRangeSlotWidth); err != nil {
		return err
	}
	for _, key := range sortedExtraSlotKeys(context.SignData.ExtraSlots) {
		length := context.SignData.ExtraSlots[key]
		if length < 2 || length%2 != 0 {
			return fmt.Errorf("%w: extra slot %q reserves %d bytes", ErrOddGapLength, key, length)
		}
		if err := context.session.reserve(key, length); err != nil {
			return err
		}
	}

	var signature_object []byte
	var marks placeholderMarks
	switch context.SignData.Signature.CertType {
	case TimeStampSignature:
		signature_object, marks = context.createTimestampPlaceholder()
	default:
		signature_object, marks = context.createSignaturePlaceholder()
	}

	signatureId, bodyOffset, err := context.addObject(signature_object)
	if err != nil {
		return fmt.Errorf("failed to add signature object: %w", err)
	}
	context.SignData.objectId = signatureId

	if err := context.markPlaceholders(bodyOffset, marks); err != nil {
		return err
	}

	visible := false
	rectangle := [4]float64{0, 0, 0, 0}
	if context.SignData.Appearance.Visible {
		if context.SignData.Signature.CertType != ApprovalSignature {
			return fmt.Errorf("visible signatures are only allowed for approval signatures")
		}
		visible = true
		rectangle = [4]float64{
			context.SignData.Appearance.LowerLeftX,
			context.SignData.Appearance.LowerLeftY,
			context.SignData.Appearance.UpperRightX,
			context.SignData.Appearance.UpperRightY,
		}
	}

	var appearanceId uint32
	if visible {
		appearance, err := context.createAppearance(rectangle)
		if err != nil {
			return fmt.Errorf("failed to create appearance: %w", err)
		}
		appearanceId, _, err = context.addObject(appearance)
		if err != nil {
			return fmt.Errorf("failed to add appearance object: %w", err)
		}
	}

	visual_signature, err := context.createVisualSignature(visible, context.SignData.Appearance.Page, rectangle, appearanceId)
	if err != nil {
		return fmt.Errorf("failed to create visual signature: %w", err)
	}

	if context.existingFieldId != 0 {
		// Reusing a prepared field keeps its object number, so the
		// page's annotation array does not change either.
		if err := context.updateObject(context.existingFieldId, visual_signature); err != nil {
			return fmt.Errorf("failed to update signature field: %w", err)
		}
		context.VisualSignData.objectId = context.existingFieldId
	} else {
		context.VisualSignData.objectId, _, err = context.addObject(visual_signature)
		if err != nil {
			return fmt.Errorf("failed to add visual signature object: %w", err)
		}

		if visible {
			inc_page_update, err := context.createIncPageUpdate(context.SignData.Appearance.Page, context.VisualSignData.objectId)
			if err != nil {
				return fmt.Errorf("failed to create incremental page update: %w", err)
			}
			if err := context.updateObject(context.VisualSignData.pageObjectId, inc_page_update); err != nil {
				return fmt.Errorf("failed to add incremental page update object: %w", err)
			}
		}
	}

	catalog, err := context.createCatalog()
	if err != nil {
		return fmt.Errorf("failed to create catalog: %w", err)
	}
	context.CatalogData.ObjectId, _, err = context.addObject(catalog)
	if err != nil {
		return fmt.Errorf("failed to add catalog object: %w", err)
	}

	info, err := context.createInfo()
	if err != nil {
		return fmt.Errorf("failed to create info: %w", err)
	}
	context.InfoData.ObjectId, _, err = context.addObject(info)
	if err != nil {
		return fmt.Errorf("failed to add info object: %w", err)
	}

	if err := context.writeXref(); err != nil {
		return fmt.Errorf("failed to write xref: %w", err)
	}

	if err := context.writeTrailer(); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}

	// Offsets are frozen now, give the caller a chance to record the
	// state of the pass before the descriptor slot is patched.
	if cb := context.SignData.ClosingCallback; cb != nil {
		cb(context.SignData.objectId)
	}

	if err := context.updateByteRange(); err != nil {
		return fmt.Errorf("failed to update byte range: %w", err)
	}

	context.preClosed = true
	return nil
}

// Close patches the hex encoded container into the reserved gap and
// writes the finished document to the output. A nil container leaves
// the placeholder bytes in place, producing a document prepared for
// deferred signing.
func (context *SignContext) Close(container []byte) error {
	if context.closed {
		return ErrAlreadyClosed
	}
	if !context.preClosed {
		return ErrNotPreClosed
	}

	if container != nil {
		if context.SignData.MAC != nil {
			document, err := context.RangeReader()
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMacEmbedding, err)
			}
			patched, err := context.SignData.MAC.AttachToContainer(container, document)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMacEmbedding, err)
			}
			container = patched
		}

		dst := make([]byte, hex.EncodedLen(len(container)))
		hex.Encode(dst, container)

		if uint32(len(dst)) > context.SignatureMaxLength {
			return fmt.Errorf("%w: container needs %d hex characters, reserved %d",
				ErrInsufficientSpace, len(dst), context.SignatureMaxLength)
		}

		padded := make([]byte, context.SignatureMaxLength)
		copy(padded, dst)
		for i := len(dst); i < len(padded); i++ {
			padded[i] = '0'
		}

		slot, ok := context.session.get(contentsSlot)
		if !ok {
			return fmt.Errorf("content slot was never reserved")
		}
		// The slot offset points at the opening delimiter.
		if err := context.writeAt(padded, slot.offset+1); err != nil {
			return fmt.Errorf("failed to patch signature content: %w", err)
		}
	}

	if _, err := context.output.CopyTo(context.OutputFile); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	context.closed = true
	return context.output.Cleanup()
}

// applyDefaults fills the zero values of a SignData the way most
// callers expect them.
func (context *SignContext) applyDefaults() {
	if context.SignData.Signature.CertType == 0 {
		context.SignData.Signature.CertType = CertificationSignature
	}
	if context.SignData.Signature.DocMDPPerm == 0 {
		context.SignData.Signature.DocMDPPerm = DoNotAllowAnyChangesPerms
	}
	if !context.SignData.DigestAlgorithm.Available() {
		context.SignData.DigestAlgorithm = crypto.SHA256
	}
	if context.SignData.Appearance.Page == 0 {
		context.SignData.Appearance.Page = 1
	}
	if context.SignData.Signature.Info.Date.IsZero() {
		context.SignData.Signature.Info.Date = time.Now()
	}
}

// resolveFieldName validates the requested field name against the
// existing form, deciding between reusing an unsigned field and
// creating a fresh one.
func (context *SignContext) resolveFieldName() error {
	name := context.SignData.FieldName
	if name == "" {
		context.fieldName = context.generateFieldName()
		return nil
	}

	// Periods separate parent and child names in fully qualified field
	// names and cannot appear in a partial name.
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q contains a period", ErrInvalidFieldName, name)
	}

	types, err := pdfscan.FieldTypes(context.PDFReader)
	if err != nil {
		return fmt.Errorf("failed to scan form fields: %w", err)
	}

	fieldType, exists := types[name]
	if !exists {
		context.fieldName = name
		return nil
	}
	if fieldType != "Sig" {
		return fmt.Errorf("%w: %q exists with type %q", ErrInvalidFieldName, name, fieldType)
	}

	field, found, err := pdfscan.FindField(context.PDFReader, name)
	if err != nil {
		return fmt.Errorf("failed to find field %q: %w", name, err)
	}
	if !found {
		context.fieldName = name
		return nil
	}
	if field.Signed {
		return fmt.Errorf("%w: %q", ErrFieldAlreadySigned, name)
	}

	context.fieldName = name
	context.existingFieldId = field.ObjectID
	return nil
}

// generateFieldName returns a field name no other form field uses.
func (context *SignContext) generateFieldName() string {
	used := make(map[string]bool)
	if types, err := pdfscan.FieldTypes(context.PDFReader); err == nil {
		for name := range types {
			used[name] = true
		}
	}
	for _, field := range context.existingSignatures {
		used[field.Name] = true
	}

	for i := 1; ; i++ {
		candidate := "Signature" + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
}

// resetForRetry clears everything a pass accumulates so SignPDF can run
// again with a larger reservation.
func (context *SignContext) resetForRetry() error {
	if context.output != nil {
		if err := context.output.Cleanup(); err != nil {
			return err
		}
	}
	context.output = nil
	context.session = nil
	context.preClosed = false
	context.newXrefEntries = nil
	context.updatedXrefEntries = nil
	context.lastXrefID = 0
	context.ByteRangeValues = nil
	context.NewXrefStart = 0
	context.CatalogData = CatalogData{}
	context.VisualSignData = VisualSignData{}
	context.InfoData = InfoData{}
	context.existingFieldId = 0
	context.fieldName = ""
	context.SignData.RevocationData = revocation.InfoArchival{}
	return nil
}
