package sign

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strconv"

	"github.com/digitorus/pdf"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
)

// createVisualSignature serializes the widget annotation carrying the
// signature field. Invisible signatures get a zero rectangle.
func (context *SignContext) createVisualSignature(visible bool, pageNumber uint32, rect [4]float64, appearanceId uint32) ([]byte, error) {
	var visual_signature bytes.Buffer

	visual_signature.WriteString("<<\n")
	visual_signature.WriteString("  /Type /Annot\n")
	visual_signature.WriteString("  /Subtype /Widget\n")

	if visible {
		visual_signature.WriteString(fmt.Sprintf("  /Rect [%f %f %f %f]\n", rect[0], rect[1], rect[2], rect[3]))
	} else {
		visual_signature.WriteString("  /Rect [0 0 0 0]\n")
	}

	pageId, err := pdfscan.FirstPageObjectID(context.PDFReader, pageNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to find page %d: %w", pageNumber, err)
	}
	context.VisualSignData.pageObjectId = pageId

	visual_signature.WriteString("  /P " + strconv.Itoa(int(pageId)) + " 0 R\n")
	visual_signature.WriteString("  /F 4\n")
	visual_signature.WriteString("  /FT /Sig\n")
	visual_signature.WriteString("  /T " + pdfString(context.fieldName) + "\n")
	visual_signature.WriteString("  /Ff 0\n")
	visual_signature.WriteString("  /V " + strconv.Itoa(int(context.SignData.objectId)) + " 0 R\n")

	if visible && appearanceId != 0 {
		visual_signature.WriteString("  /AP << /N " + strconv.Itoa(int(appearanceId)) + " 0 R >>\n")
	}

	visual_signature.WriteString(">>")

	return visual_signature.Bytes(), nil
}

// createAppearance serializes the form XObject shown inside the widget
// rectangle. The stream content comes from the configured renderer and
// may be empty.
func (context *SignContext) createAppearance(rect [4]float64) ([]byte, error) {
	width := rect[2] - rect[0]
	height := rect[3] - rect[1]
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid appearance rectangle [%f %f %f %f]", rect[0], rect[1], rect[2], rect[3])
	}

	var content []byte
	if renderer := context.SignData.Appearance.Renderer; renderer != nil {
		rendered, err := renderer(context, rect)
		if err != nil {
			return nil, fmt.Errorf("failed to render appearance: %w", err)
		}
		content = rendered
	}

	stream := content
	compressed := false
	if context.SignData.CompressLevel != zlib.NoCompression && len(content) > 0 {
		var deflated bytes.Buffer
		writer, err := zlib.NewWriterLevel(&deflated, context.SignData.CompressLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid compress level %d: %w", context.SignData.CompressLevel, err)
		}
		if _, err := writer.Write(content); err != nil {
			return nil, fmt.Errorf("failed to compress appearance: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("failed to compress appearance: %w", err)
		}
		stream = deflated.Bytes()
		compressed = true
	}

	var appearance_buffer bytes.Buffer
	appearance_buffer.WriteString("<<\n")
	appearance_buffer.WriteString("  /Type /XObject\n")
	appearance_buffer.WriteString("  /Subtype /Form\n")
	appearance_buffer.WriteString(fmt.Sprintf("  /BBox [0 0 %f %f]\n", width, height))
	if compressed {
		appearance_buffer.WriteString("  /Filter /FlateDecode\n")
	}
	appearance_buffer.WriteString("  /Length " + strconv.Itoa(len(stream)) + "\n")
	appearance_buffer.WriteString(">>\n")
	appearance_buffer.WriteString("stream\n")
	appearance_buffer.Write(stream)
	appearance_buffer.WriteString("\nendstream")

	return appearance_buffer.Bytes(), nil
}

// createIncPageUpdate re-serializes the annotated page with the new
// widget appended to /Annots, preserving every other entry.
func (context *SignContext) createIncPageUpdate(pageNumber, annot uint32) ([]byte, error) {
	var page_buffer bytes.Buffer

	page := context.PDFReader.Page(int(pageNumber))
	if page.V.IsNull() {
		return nil, fmt.Errorf("failed to get page %d", pageNumber)
	}

	page_buffer.WriteString("<<\n")

	hasAnnots := false
	for _, key := range page.V.Keys() {
		if key == "Annots" {
			hasAnnots = true
			page_buffer.WriteString("  /Annots [\n")
			annots := page.V.Key(key)
			for i := 0; i < annots.Len(); i++ {
				page_buffer.WriteString("    " + serializeCopiedValue(annots, annots.Index(i)) + "\n")
			}
			page_buffer.WriteString("    " + strconv.Itoa(int(annot)) + " 0 R\n")
			page_buffer.WriteString("  ]\n")
			continue
		}
		page_buffer.WriteString("  /" + key + " " + serializeCopiedValue(page.V, page.V.Key(key)) + "\n")
	}

	if !hasAnnots {
		page_buffer.WriteString("  /Annots [" + strconv.Itoa(int(annot)) + " 0 R]\n")
	}

	page_buffer.WriteString(">>")

	return page_buffer.Bytes(), nil
}

// serializeCopiedValue writes a copied dictionary entry back in PDF
// syntax. Values read through a reference serialize as that reference,
// string values get re-escaped, anything else round-trips through the
// reader formatting.
//
// The reader stamps direct values with the pointer of the object they
// were read from, so a value only counts as a reference when its
// pointer differs from the parent's.
func serializeCopiedValue(parent, value pdf.Value) string {
	parentPtr := parent.GetPtr()
	if ptr := value.GetPtr(); ptr.GetID() != 0 && ptr.GetID() != parentPtr.GetID() {
		return strconv.Itoa(int(ptr.GetID())) + " " + strconv.Itoa(int(ptr.GetGen())) + " R"
	}
	if value.Kind() == pdf.String {
		return pdfString(value.RawString())
	}
	return value.String()
}
