// Package pdfscan walks an existing document's structure to locate
// signature fields, their byte ranges and the page tree objects that
// incremental updates need to reference.
package pdfscan

import (
	"fmt"

	pdflib "github.com/digitorus/pdf"
)

// Field describes a signature form field found in the document.
type Field struct {
	// ObjectID is the indirect object number of the field dictionary.
	ObjectID uint32

	// Name is the partial field name (/T).
	Name string

	// Signed reports whether the field carries a signature value.
	Signed bool

	// Timestamp reports whether the value is a document level
	// timestamp rather than an approval or certification signature.
	Timestamp bool

	// SubFilter is the encoding of the signature value, for example
	// adbe.pkcs7.detached or ETSI.CAdES.detached.
	SubFilter string

	// ByteRange holds the signed offsets of a filled field, in the
	// order they appear in the dictionary.
	ByteRange []int64

	// ContentsLength is the decoded byte length of the value's content
	// string, half the hexadecimal payload written into the file.
	ContentsLength int64

	// Placeholder reports whether the value content is entirely zero
	// bytes, meaning the field was prepared but never completed.
	Placeholder bool

	// PageObjectID is the object number of the page the widget is
	// placed on, zero when the field has no page reference.
	PageObjectID uint32
}

// SignatureFields returns all signature fields reachable from the
// document catalog's interactive form, in form order.
func SignatureFields(r *pdflib.Reader) ([]Field, error) {
	if r == nil {
		return nil, nil
	}

	fields := r.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	if fields.IsNull() {
		return nil, nil
	}
	if fields.Kind() != pdflib.Array {
		return nil, fmt.Errorf("AcroForm Fields is not an array")
	}

	var found []Field
	visited := make(map[uint32]bool)
	for i := 0; i < fields.Len(); i++ {
		collectSignatureFields(fields.Index(i), visited, &found)
	}

	return found, nil
}

// collectSignatureFields descends into a field and its kids, appending
// every signature field it encounters.
func collectSignatureFields(val pdflib.Value, visited map[uint32]bool, found *[]Field) {
	ptr := val.GetPtr()
	id := uint32(ptr.GetID())
	if id != 0 {
		if visited[id] {
			return
		}
		visited[id] = true
	}

	if val.Key("FT").Name() == "Sig" {
		*found = append(*found, describeField(val, id))
	}

	kids := val.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		collectSignatureFields(kids.Index(i), visited, found)
	}
}

func describeField(val pdflib.Value, id uint32) Field {
	field := Field{
		ObjectID: id,
		Name:     val.Key("T").Text(),
	}

	if page := val.Key("P"); !page.IsNull() {
		pagePtr := page.GetPtr()
		field.PageObjectID = uint32(pagePtr.GetID())
	}

	v := val.Key("V")
	if v.IsNull() {
		return field
	}

	field.Signed = true
	field.SubFilter = v.Key("SubFilter").Name()
	field.Timestamp = v.Key("Type").Name() == "DocTimeStamp" ||
		field.SubFilter == "ETSI.RFC3161"

	contents := v.Key("Contents").RawString()
	field.ContentsLength = int64(len(contents))
	field.Placeholder = len(contents) > 0
	for i := 0; i < len(contents); i++ {
		if contents[i] != 0 {
			field.Placeholder = false
			break
		}
	}

	br := v.Key("ByteRange")
	for i := 0; i < br.Len(); i++ {
		field.ByteRange = append(field.ByteRange, br.Index(i).Int64())
	}

	return field
}

// FindField returns the signature field with the given partial name.
// The second return value reports whether the field exists.
func FindField(r *pdflib.Reader, name string) (Field, bool, error) {
	fields, err := SignatureFields(r)
	if err != nil {
		return Field{}, false, err
	}
	for _, f := range fields {
		if f.Name == name {
			return f, true, nil
		}
	}
	return Field{}, false, nil
}

// FieldTypes maps every named interactive form field to its field type,
// for example "Sig" or "Tx". Fields without a partial name are skipped.
func FieldTypes(r *pdflib.Reader) (map[string]string, error) {
	if r == nil {
		return nil, nil
	}

	fields := r.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	if fields.IsNull() {
		return nil, nil
	}
	if fields.Kind() != pdflib.Array {
		return nil, fmt.Errorf("AcroForm Fields is not an array")
	}

	types := make(map[string]string)
	visited := make(map[uint32]bool)
	for i := 0; i < fields.Len(); i++ {
		collectFieldTypes(fields.Index(i), visited, types)
	}
	return types, nil
}

func collectFieldTypes(val pdflib.Value, visited map[uint32]bool, types map[string]string) {
	ptr := val.GetPtr()
	id := uint32(ptr.GetID())
	if id != 0 {
		if visited[id] {
			return
		}
		visited[id] = true
	}

	if name := val.Key("T").Text(); name != "" {
		types[name] = val.Key("FT").Name()
	}

	kids := val.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		collectFieldTypes(kids.Index(i), visited, types)
	}
}

// TopLevelFieldIDs returns the object numbers of the interactive
// form's root field entries in form order, signature fields and
// otherwise. Entries without an indirect reference are skipped.
func TopLevelFieldIDs(r *pdflib.Reader) []uint32 {
	if r == nil {
		return nil
	}

	fields := r.Trailer().Key("Root").Key("AcroForm").Key("Fields")
	if fields.Kind() != pdflib.Array {
		return nil
	}

	var ids []uint32
	seen := make(map[uint32]bool)
	for i := 0; i < fields.Len(); i++ {
		fieldPtr := fields.Index(i).GetPtr()
		id := uint32(fieldPtr.GetID())
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// Covers reports whether a byte range descriptor spans the entire file,
// meaning the signature it belongs to is the last one applied.
func Covers(byteRange []int64, size int64) bool {
	if len(byteRange) < 4 || len(byteRange)%2 != 0 {
		return false
	}
	last := len(byteRange) - 2
	return byteRange[0] == 0 && byteRange[last]+byteRange[last+1] == size
}

// SigFlags returns the interactive form's signature flags, zero when
// the document has no form or the entry is absent.
func SigFlags(r *pdflib.Reader) int64 {
	if r == nil {
		return 0
	}
	flags := r.Trailer().Key("Root").Key("AcroForm").Key("SigFlags")
	if flags.IsNull() {
		return 0
	}
	return flags.Int64()
}

// FirstPageObjectID resolves the object number of the page with the
// given one-based number.
func FirstPageObjectID(r *pdflib.Reader, pageNumber uint32) (uint32, error) {
	if r == nil {
		return 0, fmt.Errorf("no reader available")
	}
	if pageNumber < 1 {
		pageNumber = 1
	}
	if int(pageNumber) > r.NumPage() {
		return 0, fmt.Errorf("document has %d pages, requested page %d", r.NumPage(), pageNumber)
	}

	page := r.Page(int(pageNumber))
	ptr := page.V.GetPtr()
	if ptr.GetID() == 0 {
		return 0, fmt.Errorf("page %d has no indirect reference", pageNumber)
	}
	return uint32(ptr.GetID()), nil
}
