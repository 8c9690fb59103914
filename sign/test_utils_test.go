package sign

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/mattetti/filebuffer"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
	"github.com/vedantmgoyal9/pdfseal/internal/testpki"
)

const staticPDFFile = `JVBERi0yLjANCg0KMSAwIG9iag0KPDwNCiAgL1R5cGUgL0NhdGFsb2cNCiAgL01ldGFkYXRhIDIgMCBSDQogIC9QYWdlcyAzIDAgUg0KPj4NCmVuZG9iag0KDQoyIDAgb2JqDQo8PA0KICAvTGVuZ3RoIDIzNTENCiAgL1R5cGUgL01ldGFkYXRhDQogIC9TdWJ0eXBlIC9YTUwNCj4+DQpzdHJlYW0NCjx4OnhtcG1ldGEgeG1sbnM6eD0nYWRvYmU6bnM6bWV0YS8nIHg6eG1wdGs9J0luc2VydCBYTVAgdG9vbCBuYW1lIGhlcmUuJz4NCiAgPHJkZjpSREYgeG1sbnM6cmRmPSdodHRwOi8vd3d3LnczLm9yZy8xOTk5LzAyLzIyLXJkZi1zeW50YXgtbnMjJz4NCiAgICA8cmRmOkRlc2NyaXB0aW9uIHJkZjphYm91dD0iIiB4bWxuczpwZGY9Imh0dHA6Ly9ucy5hZG9iZS5jb20vcGRmLzEuMy8iPg0KICAgICAgPHBkZjpQcm9kdWNlcj5EYXRhbG9naWNzIC0gZXhhbXBsZSBwcm9kdWNlciBwcm9ncmFtIG5hbWUgaGVyZTwvcGRmOlByb2R1Y2VyPg0KICAgICAgPHBkZjpDb3B5cmlnaHQ+Q29weXJpZ2h0IDIwMTcgUERGIEFzc29jaWF0aW9uPC9wZGY6Q29weXJpZ2h0Pg0KICAgICAgPHBkZjpLZXl3b3Jkcz5QREYgMi4wIHNhbXBsZSBleGFtcGxlPC9wZGY6S2V5d29yZHM+DQogICAgPC9yZGY6RGVzY3JpcHRpb24+DQogICAgPHJkZjpEZXNjcmlwdGlvbiByZGY6YWJvdXQ9IiIgeG1sbnM6eGFwPSJodHRwOi8vbnMuYWRvYmUuY29tL3hhcC8xLjAvIj4NCiAgICAgIDx4YXA6Q3JlYXRlRGF0ZT4yMDE3LTA1LTI0VDEwOjMwOjExWjwveGFwOkNyZWF0ZURhdGU+DQogICAgICA8eGFwOk1ldGFkYXRhRGF0ZT4yMDE3LTA3LTExVDA3OjU1OjExWjwveGFwOk1ldGFkYXRhRGF0ZT4NCiAgICAgIDx4YXA6TW9kaWZ5RGF0ZT4yMDE3LTA3LTExVDA3OjU1OjExWjwveGFwOk1vZGlmeURhdGU+DQogICAgICA8eGFwOkNyZWF0b3JUb29sPkRhdGFsb2dpY3MgLSBleGFtcGxlIGNyZWF0b3IgdG9vbCBuYW1lIGhlcmU8L3hhcDpDcmVhdG9yVG9vbD4NCiAgICA8L3JkZjpEZXNjcmlwdGlvbj4NCiAgICA8cmRmOkRlc2NyaXB0aW9uIHJkZjphYm91dD0iIiB4bWxuczpkYz0iaHR0cDovL3B1cmwub3JnL2RjL2VsZW1lbnRzLzEuMS8iPg0KICAgICAgPGRjOmZvcm1hdD5hcHBsaWNhdGlvbi9wZGY8L2RjOmZvcm1hdD4NCiAgICAgIDxkYzp0aXRsZT4NCiAgICAgICAgPHJkZjpBbHQ+DQogICAgICAgICAgPHJkZjpsaSB4bWw6bGFuZz0ieC1kZWZhdWx0Ij5BIHNpbXBsZSBQREYgMi4wIGV4YW1wbGUgZmlsZTwvcmRmOmxpPg0KICAgICAgICA8L3JkZjpBbHQ+DQogICAgICA8L2RjOnRpdGxlPg0KICAgICAgPGRjOmNyZWF0b3I+DQogICAgICAgIDxyZGY6U2VxPg0KICAgICAgICAgIDxyZGY6bGk+RGF0YWxvZ2ljcyBJbmNvcnBvcmF0ZWQ8L3JkZjpsaT4NCiAgICAgICAgPC9yZGY6U2VxPg0KICAgICAgPC9kYzpjcmVhdG9yPg0KICAgICAgPGRjOmRlc2NyaXB0aW9uPg0KICAgICAgICA8cmRmOkFsdD4NCiAgICAgICAgICA8cmRmOmxpIHhtbDpsYW5nPSJ4LWRlZmF1bHQiPkRlbW9uc3RyYXRpb24gb2YgYSBzaW1wbGUgUERGIDIuMCBmaWxlLjwvcmRmOmxpPg0KICAgICAgICA8L3JkZjpBbHQ+DQogICAgICA8L2RjOmRlc2NyaXB0aW9uPg0KICAgICAgPGRjOnJpZ2h0cz4NCiAgICAgICAgPHJkZjpBbHQ+DQogICAgICAgICAgPHJkZjpsaSB4bWw6bGFuZz0ieC1kZWZhdWx0Ij5Db3B5cmlnaHQgMjAxNyBQREYgQXNzb2NpYXRpb24uIExpY2Vuc2VkIHRvIHRoZSBwdWJsaWMgdW5kZXIgQ3JlYXRpdmUgQ29tbW9ucyBBdHRyaWJ1dGlvbi1TaGFyZUFsaWtlIDQuMCBJbnRlcm5hdGlvbmFsIGxpY2Vuc2UuPC9yZGY6bGk+DQogICAgICAgIDwvcmRmOkFsdD4NCiAgICAgIDwvZGM6cmlnaHRzPg0KICAgIDwvcmRmOkRlc2NyaXB0aW9uPg0KICAgIDxyZGY6RGVzY3JpcHRpb24gcmRmOmFib3V0PSIiIHhtbG5zOnhhcFJpZ2h0cz0iaHR0cDovL25zLmFkb2JlLmNvbS94YXAvMS4wL3JpZ2h0cy8iPg0KICAgICAgPHhhcFJpZ2h0czpNYXJrZWQ+VHJ1ZTwveGFwUmlnaHRzOk1hcmtlZD4NCiAgICA8L3JkZjpEZXNjcmlwdGlvbj4NCiAgICA8cmRmOkRlc2NyaXB0aW9uIHJkZjphYm91dD0iIiB4bWxuczpjYz0iaHR0cDovL2NyZWF0aXZlY29tbW9ucy5vcmcvbnMjIj4NCiAgICAgIDxjYzpsaWNlbnNlIHJkZjpyZXNvdXJjZT0iaHR0cHM6Ly9jcmVhdGl2ZWNvbW1vbnMub3JnL2xpY2Vuc2VzL3NhLzQuMC8iIC8+DQogICAgPC9yZGY6RGVzY3JpcHRpb24+DQogICAgPHJkZjpEZXNjcmlwdGlvbiByZGY6YWJvdXQ9IiIgeG1sbnM6eGFwTU09Imh0dHA6Ly9ucy5hZG9iZS5jb20veGFwLzEuMC9tbS8iPg0KICAgICAgPHhhcE1NOkRvY3VtZW50SUQ+dXVpZDozZWVmMjE2Ni04MzMyLWFiYjQtM2QzMS03NzMzNDU3ODg3M2Y8L3hhcE1NOkRvY3VtZW50SUQ+DQogICAgICA8eGFwTU06SW5zdGFuY2VJRD51dWlkOjk5MWJjY2U3LWVlNzAtMTFhMy05MWFhLTc3YmJlMjE4MWZkODwveGFwTU06SW5zdGFuY2VJRD4NCiAgICA8L3JkZjpEZXNjcmlwdGlvbj4NCiAgPC9yZGY6UkRGPg0KPC94OnhtcG1ldGE+DQplbmRzdHJlYW0NCmVuZG9iag0KDQozIDAgb2JqDQo8PA0KICAvVHlwZSAvUGFnZXMNCiAgL0tpZHMgWzQgMCBSXQ0KICAvQ291bnQgMQ0KPj4NCmVuZG9iag0KDQo0IDAgb2JqDQo8PA0KICAvVHlwZSAvUGFnZQ0KICAvUGFyZW50IDMgMCBSDQogIC9NZWRpYUJveCBbMCAwIDYxMiAzOTZdDQogIC9Db250ZW50cyBbNSAwIFIgNiAwIFJdDQogIC9SZXNvdXJjZXMgPDwNCiAgICAvRm9udCA8PCAvRjEgNyAwIFIgPj4NCiAgPj4NCj4+DQplbmRvYmoNCg0KNSAwIG9iag0KPDwgL0xlbmd0aCA3NDQgPj4NCnN0cmVhbQ0KJSBTYXZlIHRoZSBjdXJyZW50IGdyYXBoaWMgc3RhdGUNCnEgDQoNCiUgRHJhdyBhIGJsYWNrIGxpbmUgc2VnbWVudCwgdXNpbmcgdGhlIGRlZmF1bHQgbGluZSB3aWR0aC4NCjE1MCAyNTAgbQ0KMTUwIDM1MCBsDQpTDQoNCiUgRHJhdyBhIHRoaWNrZXIsIGRhc2hlZCBsaW5lIHNlZ21lbnQuDQo0IHcgJSBTZXQgbGluZSB3aWR0aCB0byA0IHBvaW50cw0KWzQgNl0gMCBkICUgU2V0IGRhc2ggcGF0dGVybiB0byA0IHVuaXRzIG9uLCA2IHVuaXRzIG9mZg0KMTUwIDI1MCBtDQo0MDAgMjUwIGwNClMNCltdIDAgZCAlIFJlc2V0IGRhc2ggcGF0dGVybiB0byBhIHNvbGlkIGxpbmUNCjEgdyAlIFJlc2V0IGxpbmUgd2lkdGggdG8gMSB1bml0DQoNCiUgRHJhdyBhIHJlY3RhbmdsZSB3aXRoIGEgMS11bml0IHJlZCBib3JkZXIsIGZpbGxlZCB3aXRoIGxpZ2h0IGJsdWUuDQoxLjAgMC4wIDAuMCBSRyAlIFJlZCBmb3Igc3Ryb2tlIGNvbG9yDQowLjUgMC43NSAxLjAgcmcgJSBMaWdodCBibHVlIGZvciBmaWxsIGNvbG9yDQoyMDAgMzAwIDUwIDc1IHJlDQpCDQoNCiUgRHJhdyBhIGN1cnZlIGZpbGxlZCB3aXRoIGdyYXkgYW5kIHdpdGggYSBjb2xvcmVkIGJvcmRlci4NCjAuNSAwLjEgMC4yIFJHDQowLjcgZw0KMzAwIDMwMCBtDQozMDAgNDAwIDQwMCA0MDAgNDAwIDMwMCBjDQpiDQoNCiUgUmVzdG9yZSB0aGUgZ3JhcGhpYyBzdGF0ZSB0byB3aGF0IGl0IHdhcyBhdCB0aGUgYmVnaW5uaW5nIG9mIHRoaXMgc3RyZWFtDQpRDQoNCmVuZHN0cmVhbQ0KZW5kb2JqDQoNCjYgMCBvYmoNCjw8IC9MZW5ndGggMTY2ID4+DQpzdHJlYW0NCiUgQSB0ZXh0IGJsb2NrIHRoYXQgc2hvd3MgIkhlbGxvIFdvcmxkIg0KJSBObyBjb2xvciBpcyBzZXQsIHNvIHRoaXMgZGVmYXVsdHMgdG8gYmxhY2sgaW4gRGV2aWNlR3JheSBjb2xvcnNwYWNlDQpCVA0KICAvRjEgMjQgVGYNCiAgMTAwIDEwMCBUZA0KICAoSGVsbG8gV29ybGQpIFRqDQpFVA0KZW5kc3RyZWFtDQplbmRvYmoNCg0KNyAwIG9iag0KPDwNCiAgL1R5cGUgL0ZvbnQNCiAgL1N1YnR5cGUgL1R5cGUxDQogIC9CYXNlRm9udCAvSGVsdmV0aWNhDQogIC9GaXJzdENoYXIgMzMNCiAgL0xhc3RDaGFyIDEyNg0KICAvV2lkdGhzIDggMCBSDQogIC9Gb250RGVzY3JpcHRvciA5IDAgUg0KPj4NCmVuZG9iag0KDQo4IDAgb2JqDQpbIDI3OCAzNTUgNTU2IDU1NiA4ODkgNjY3IDIyMiAzMzMgMzMzIDM4OSA1ODQgMjc4IDMzMyAyNzggMjc4IDU1Ng0KICA1NTYgNTU2IDU1NiA1NTYgNTU2IDU1NiA1NTYgNTU2IDU1NiAyNzggMjc4IDU4NCA1ODQgNTg0IDU1NiAxMDE1DQogIDY2NyA2NjcgNzIyIDcyMiA2NjcgNjExIDc3OCA3MjIgMjc4IDUwMCA2NjcgNTU2IDgzMyA3MjIgNzc4IDY2Nw0KICA3NzggNzIyIDY2NyA2MTEgNzIyIDY2NyA5NDQgNjY3IDY2NyA2MTEgMjc4IDI3OCAyNzggNDY5IDU1NiAyMjINCiAgNTU2IDU1NiA1MDAgNTU2IDU1NiAyNzggNTU2IDU1NiAyMjIgMjIyIDUwMCAyMjIgODMzIDU1NiA1NTYgNTU2DQogIDU1NiAzMzMgNTAwIDI3OCA1NTYgNTAwIDcyMiA1MDAgNTAwIDUwMCAzMzQgMjYwIDMzNCA1ODQgXQ0KZW5kb2JqDQoNCiUgVGhpcyBGb250RGVzY3JpcHRvciBjb250YWlucyBvbmx5IHRoZSByZXF1aXJlZCBlbnRyaWVzIGZvciBQREYgMi4wDQolIGZvciB1bmVtYmVkZGVkIHN0YW5kYXJkIDE0IGZvbnRzIHRoYXQgY29udGFpbiBMYXRpbiBjaGFyYWN0ZXJzDQo5IDAgb2JqDQo8PA0KICAvVHlwZSAvRm9udERlc2NyaXB0b3INCiAgL0ZvbnROYW1lIC9IZWx2ZXRpY2ENCiAgL0ZsYWdzIDMyDQogIC9Gb250QkJveCBbIC0xNjYgLTIyNSAxMDAwIDkzMSBdDQogIC9JdGFsaWNBbmdsZSAwDQogIC9Bc2NlbnQgNzE4DQogIC9EZXNjZW50IC0yMDcNCiAgL0NhcEhlaWdodCA3MTgNCiAgL1N0ZW1WIDg4DQogIC9NaXNzaW5nV2lkdGggMCAgDQo+Pg0KZW5kb2JqDQoNCiUgVGhlIG9iamVjdCBjcm9zcy1yZWZlcmVuY2UgdGFibGUuIFRoZSBmaXJzdCBlbnRyeQ0KJSBkZW5vdGVzIHRoZSBzdGFydCBvZiBQREYgZGF0YSBpbiB0aGlzIGZpbGUuDQp4cmVmDQowIDEwDQowMDAwMDAwMDAwIDY1NTM1IGYNCjAwMDAwMDAwMTIgMDAwMDAgbg0KMDAwMDAwMDA5MiAwMDAwMCBuDQowMDAwMDAyNTQzIDAwMDAwIG4NCjAwMDAwMDI2MTUgMDAwMDAgbg0KMDAwMDAwMjc3OCAwMDAwMCBuDQowMDAwMDAzNTgzIDAwMDAwIG4NCjAwMDAwMDM4MDcgMDAwMDAgbg0KMDAwMDAwMzk2OCAwMDAwMCBuDQowMDAwMDA0NTIwIDAwMDAwIG4NCnRyYWlsZXINCjw8DQogIC9TaXplIDEwDQogIC9Sb290IDEgMCBSDQogIC9JRCBbIDwzMWM3YThhMjY5ZTRjNTliYzNjZDdkZjBkYWJiZjM4OD48MzFjN2E4YTI2OWU0YzU5YmMzY2Q3ZGYwZGFiYmYzODg+IF0NCj4+DQpzdGFydHhyZWYNCjQ4NDcNCiUlRU9GDQo=`

// fixtureBytes decodes the embedded PDF 2.0 sample document.
func fixtureBytes(t *testing.T) []byte {
	t.Helper()

	data, err := base64.StdEncoding.DecodeString(staticPDFFile)
	if err != nil {
		t.Fatalf("failed to decode embedded document: %s", err.Error())
	}
	return data
}

// openDocument wraps raw document bytes in a seekable buffer and opens
// a reader on them.
func openDocument(t *testing.T, data []byte) (*filebuffer.Buffer, *pdf.Reader, int64) {
	t.Helper()

	input_file := filebuffer.New(data)
	size := int64(len(data))

	rdr, err := pdf.NewReader(input_file, size)
	if err != nil {
		t.Fatalf("failed to open document: %s", err.Error())
	}
	return input_file, rdr, size
}

// openFixture returns the embedded sample document ready for signing.
func openFixture(t *testing.T) (*filebuffer.Buffer, *pdf.Reader, int64) {
	t.Helper()
	return openDocument(t, fixtureBytes(t))
}

// testSigner bundles a freshly issued signing certificate with its
// in memory issuing authority.
type testSigner struct {
	pki    *testpki.TestPKI
	key    crypto.Signer
	cert   *x509.Certificate
	chains [][]*x509.Certificate
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	return newTestSignerWithProfile(t, testpki.ECDSA_P384)
}

func newTestSignerWithProfile(t *testing.T, profile testpki.KeyProfile) *testSigner {
	t.Helper()

	pki := testpki.NewTestPKIWithConfig(t, testpki.TestPKIConfig{
		Profile:         profile,
		IntermediateCAs: 1,
	})
	key, cert := pki.IssueLeaf("pdfseal test signer")

	chain := append([]*x509.Certificate{cert}, pki.Chain()...)
	return &testSigner{
		pki:    pki,
		key:    key,
		cert:   cert,
		chains: [][]*x509.Certificate{chain},
	}
}

// testSignData returns a baseline certification pass for the signer.
func testSignData(signer *testSigner) SignData {
	return SignData{
		Signature: SignDataSignature{
			Info: SignDataSignatureInfo{
				Name:        "John Doe",
				Location:    "Somewhere",
				Reason:      "Test",
				ContactInfo: "None",
				Date:        time.Now().Local(),
			},
			CertType:   CertificationSignature,
			DocMDPPerm: AllowFillingExistingFormFieldsAndSignaturesPerms,
		},
		Signer:            signer.key,
		Certificate:       signer.cert,
		CertificateChains: signer.chains,
	}
}

// signDocument runs a full signing pass over the given document bytes
// and returns the signed result.
func signDocument(t *testing.T, data []byte, sign_data SignData) []byte {
	t.Helper()

	input_file, rdr, size := openDocument(t, data)
	defer input_file.Close()

	var output bytes.Buffer
	if err := Sign(input_file, &output, rdr, size, sign_data); err != nil {
		t.Fatalf("failed to sign document: %s", err.Error())
	}
	return output.Bytes()
}

// signedFields reopens a signed document and returns its signature
// fields, proving the cross reference chain is intact along the way.
func signedFields(t *testing.T, signed []byte) []pdfscan.Field {
	t.Helper()

	rdr, err := pdf.NewReader(bytes.NewReader(signed), int64(len(signed)))
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

// readSink drains a pass's serialization sink from the start.
func readSink(t *testing.T, sink byteSink) []byte {
	t.Helper()

	var buf bytes.Buffer
	if _, err := sink.CopyTo(&buf); err != nil {
		t.Fatalf("failed to read sink: %s", err.Error())
	}
	return buf.Bytes()
}

// formFixture controls the synthetic acroform document assembled by
// buildFormPDF.
type formFixture struct {
	signed     bool
	contents   string
	pageAnnots bool
	info       string
	fieldType  string
}

// buildFormPDF assembles a one page document carrying a single
// signature field, computing the cross reference offsets as it goes.
func buildFormPDF(opts formFixture) []byte {
	var buf bytes.Buffer
	offsets := make(map[int]int)

	addObject := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}

	buf.WriteString("%PDF-1.7\n")
	addObject(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [5 0 R] /SigFlags 3 >> >>")
	addObject(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")

	page := "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>"
	if opts.pageAnnots {
		page = "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Annots [5 0 R] >>"
	}
	addObject(3, page)

	if opts.signed {
		contents := opts.contents
		if contents == "" {
			contents = "00000000"
		}
		addObject(4, "<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached"+
			" /ByteRange [0 120 220 80] /Contents <"+contents+"> >>")
		addObject(5, "<< /FT /Sig /T (Signature1) /V 4 0 R /P 3 0 R"+
			" /Type /Annot /Subtype /Widget /Rect [0 0 0 0] /F 132 >>")
	} else {
		field_type := opts.fieldType
		if field_type == "" {
			field_type = "Sig"
		}
		addObject(4, "<< >>")
		addObject(5, "<< /FT /"+field_type+" /T (Signature1) /P 3 0 R"+
			" /Type /Annot /Subtype /Widget /Rect [0 0 0 0] /F 132 >>")
	}

	last_id := 5
	if opts.info != "" {
		last_id = 6
		addObject(6, opts.info)
	}

	xref_pos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", last_id+1)
	buf.WriteString("0000000000 65535 f \n")
	for id := 1; id <= last_id; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}

	trailer := fmt.Sprintf("<< /Size %d /Root 1 0 R", last_id+1)
	if opts.info != "" {
		trailer += " /Info 6 0 R"
	}
	fmt.Fprintf(&buf, "trailer\n%s >>\nstartxref\n%d\n%%%%EOF\n", trailer, xref_pos)

	return buf.Bytes()
}

// buildSignedFormPDF assembles a document whose signature field holds
// a placeholder of the requested capacity behind a byte range that
// really covers the file, so coverage checks pass on it. The range
// numbers are emitted in fixed width, letting a probe pass measure the
// offsets before the real values are filled in.
func buildSignedFormPDF(capacity int) []byte {
	build := func(br [4]int64) ([]byte, int64) {
		sig_body := fmt.Sprintf(
			"<< /Type /Sig /Filter /Adobe.PPKLite /SubFilter /adbe.pkcs7.detached"+
				" /ByteRange [%010d %010d %010d %010d] /Contents <%s> >>",
			br[0], br[1], br[2], br[3], strings.Repeat("0", capacity))

		var buf bytes.Buffer
		offsets := make(map[int]int)
		var gap_start int64

		addObject := func(id int, body string) {
			offsets[id] = buf.Len()
			if marker := strings.Index(body, "/Contents <"); marker >= 0 {
				header := fmt.Sprintf("%d 0 obj\n", id)
				gap_start = int64(buf.Len() + len(header) + marker + len("/Contents "))
			}
			fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
		}

		buf.WriteString("%PDF-1.7\n")
		addObject(1, "<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [5 0 R] /SigFlags 3 >> >>")
		addObject(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
		addObject(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
		addObject(4, sig_body)
		addObject(5, "<< /FT /Sig /T (Signature1) /V 4 0 R /P 3 0 R"+
			" /Type /Annot /Subtype /Widget /Rect [0 0 0 0] /F 132 >>")

		xref_pos := buf.Len()
		buf.WriteString("xref\n0 6\n")
		buf.WriteString("0000000000 65535 f \n")
		for id := 1; id <= 5; id++ {
			fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref_pos)

		return buf.Bytes(), gap_start
	}

	probe, gap_start := build([4]int64{0, 1, 2, 3})
	size := int64(len(probe))
	gap_end := gap_start + int64(capacity) + 2

	final, _ := build([4]int64{0, gap_start, gap_end, size - gap_end})
	return final
}
