package pdfseal

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"io"
	"testing"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
	"github.com/vedantmgoyal9/pdfseal/internal/testpki"
)

// buildPlainPDF assembles a one page document without a form, computing
// the cross reference offsets as it goes.
func buildPlainPDF() []byte {
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

// openTestDocument opens a Document over in memory bytes.
func openTestDocument(t *testing.T, data []byte) *Document {
	t.Helper()

	doc, err := Open(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("failed to open document: %s", err.Error())
	}
	return doc
}

// testSigner bundles a freshly issued signing certificate with the
// chain of its in memory issuing authority.
type testSigner struct {
	key   crypto.Signer
	cert  *x509.Certificate
	chain []*x509.Certificate
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()

	pki := testpki.NewTestPKIWithConfig(t, testpki.TestPKIConfig{
		Profile:         testpki.ECDSA_P384,
		IntermediateCAs: 1,
	})
	key, cert := pki.IssueLeaf("pdfseal test signer")

	return &testSigner{key: key, cert: cert, chain: pki.Chain()}
}

// writeDocument executes the staged signatures and returns the write
// result together with the produced bytes.
func writeDocument(t *testing.T, doc *Document) (*Result, []byte) {
	t.Helper()

	var output bytes.Buffer
	result, err := doc.Write(&output)
	if err != nil {
		t.Fatalf("failed to write document: %s", err.Error())
	}
	return result, output.Bytes()
}

// signedFields reopens a signed document and returns its signature
// fields, which also proves the cross reference chain stayed intact.
func signedFields(t *testing.T, signed []byte) []pdfscan.Field {
	t.Helper()

	rdr, err := pdflib.NewReader(bytes.NewReader(signed), int64(len(signed)))
	if err != nil {
		t.Fatalf("failed to reopen signed document: %s", err.Error())
	}

	fields, err := pdfscan.SignatureFields(rdr)
	if err != nil {
		t.Fatalf("failed to scan signature fields: %s", err.Error())
	}
	return fields
}

// onlySignedField asserts the document carries exactly one field and
// returns it.
func onlySignedField(t *testing.T, signed []byte) pdfscan.Field {
	t.Helper()

	fields := signedFields(t, signed)
	if len(fields) != 1 {
		t.Fatalf("expected 1 signature field, got %d", len(fields))
	}
	return fields[0]
}

// coveredBytes concatenates the spans a byte range descriptor covers.
func coveredBytes(t *testing.T, signed []byte, byte_range []int64) []byte {
	t.Helper()

	if len(byte_range) < 4 || len(byte_range)%2 != 0 {
		t.Fatalf("unexpected byte range: %v", byte_range)
	}

	var covered []byte
	for i := 0; i < len(byte_range); i += 2 {
		start, length := byte_range[i], byte_range[i+1]
		if start < 0 || length < 0 || start+length > int64(len(signed)) {
			t.Fatalf("byte range out of bounds: %v", byte_range)
		}
		covered = append(covered, signed[start:start+length]...)
	}
	return covered
}

// signatureContainer decodes the hexadecimal content placeholder of a
// field straight out of the document bytes, padding included.
func signatureContainer(t *testing.T, signed []byte, field pdfscan.Field) []byte {
	t.Helper()

	if len(field.ByteRange) < 4 {
		t.Fatalf("field byte range too short: %v", field.ByteRange)
	}

	start, end := field.ByteRange[1], field.ByteRange[2]
	if start < 0 || end <= start+2 || end > int64(len(signed)) {
		t.Fatalf("field byte range out of bounds: %v", field.ByteRange)
	}
	if signed[start] != '<' || signed[end-1] != '>' {
		t.Fatalf("content gap not delimited by angle brackets")
	}

	payload := signed[start+1 : end-1]
	raw := make([]byte, hex.DecodedLen(len(payload)))
	if _, err := hex.Decode(raw, payload); err != nil {
		t.Fatalf("failed to decode content placeholder: %s", err.Error())
	}
	return raw
}

// parseSignatureContainer cuts the zero padding off a decoded content
// placeholder and parses the CMS container in front of it.
func parseSignatureContainer(t *testing.T, raw []byte) *pkcs7.PKCS7 {
	t.Helper()

	var outer asn1.RawValue
	rest, err := asn1.Unmarshal(raw, &outer)
	if err != nil {
		t.Fatalf("failed to parse signature container: %s", err.Error())
	}
	for _, b := range rest {
		if b != 0 {
			t.Fatal("expected only zero padding after the container")
		}
	}

	p7, err := pkcs7.Parse(raw[:len(raw)-len(rest)])
	if err != nil {
		t.Fatalf("failed to parse CMS container: %s", err.Error())
	}
	return p7
}

// verifySignedContainer parses the field's CMS container and verifies
// its signature against the bytes the byte range covers.
func verifySignedContainer(t *testing.T, signed []byte, field pdfscan.Field) *pkcs7.PKCS7 {
	t.Helper()

	raw := signatureContainer(t, signed, field)
	p7 := parseSignatureContainer(t, raw)

	p7.Content = coveredBytes(t, signed, field.ByteRange)
	if err := p7.Verify(); err != nil {
		t.Fatalf("failed to verify signature container: %s", err.Error())
	}
	return p7
}

// testTimestampToken builds a parseable CMS token the way an authority
// wraps one. The callback path only checks that the token parses, so
// no TSTInfo payload is needed.
func testTimestampToken(t *testing.T, signer *testSigner, content []byte) []byte {
	t.Helper()

	signed_data, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("failed to build token content: %v", err)
	}
	signed_data.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	if err := signed_data.AddSigner(signer.cert, signer.key, pkcs7.SignerInfoConfig{}); err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	token, err := signed_data.Finish()
	if err != nil {
		t.Fatalf("failed to serialize token: %v", err)
	}
	return token
}

// containerSignFunc builds a real CMS container over the covered
// ranges, the way an external key holder completing a prepared
// document would.
func containerSignFunc(signer *testSigner) SignFunc {
	return func(field *PreparedField) ([]byte, error) {
		content, err := io.ReadAll(field.RangeReader())
		if err != nil {
			return nil, err
		}

		signed_data, err := pkcs7.NewSignedData(content)
		if err != nil {
			return nil, err
		}
		signed_data.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
		if err := signed_data.AddSignerChain(signer.cert, signer.key, signer.chain, pkcs7.SignerInfoConfig{}); err != nil {
			return nil, err
		}
		signed_data.Detach()
		return signed_data.Finish()
	}
}
