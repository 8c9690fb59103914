package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	pdflib "github.com/digitorus/pdf"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
)

// buildTestPDF assembles a one page document, computing the cross
// reference offsets as it goes.
func buildTestPDF() []byte {
	var buf bytes.Buffer
	offsets := make(map[int]int)

	addObject := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}

	buf.WriteString("%PDF-1.7\n")
	addObject(1, "<< /Type /Catalog /Pages 2 0 R >>")
	addObject(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	addObject(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")

	xref_pos := buf.Len()
	buf.WriteString("xref\n0 4\n")
	buf.WriteString("0000000000 65535 f \n")
	for id := 1; id <= 3; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref_pos)

	return buf.Bytes()
}

// writeTestPDF places a fixture document in a temp dir and returns its
// path.
func writeTestPDF(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input.pdf")
	if err := os.WriteFile(path, buildTestPDF(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// scanFields parses a written file and returns its signature fields.
func scanFields(t *testing.T, path string) []pdfscan.Field {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	rdr, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to parse %s: %v", path, err)
	}
	fields, err := pdfscan.SignatureFields(rdr)
	if err != nil {
		t.Fatalf("failed to scan %s: %v", path, err)
	}
	return fields
}
