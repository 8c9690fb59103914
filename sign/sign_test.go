package sign

import (
	"bytes"
	"crypto"
	"encoding/asn1"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
	"github.com/vedantmgoyal9/pdfseal/internal/testpki"
	"github.com/vedantmgoyal9/pdfseal/mac"
)

// signDocumentErr is the error returning variant of signDocument for
// passes that are expected to fail.
func signDocumentErr(t *testing.T, data []byte, sign_data SignData) ([]byte, error) {
	t.Helper()

	input_file, rdr, size := openDocument(t, data)
	defer input_file.Close()

	var output bytes.Buffer
	err := Sign(input_file, &output, rdr, size, sign_data)
	return output.Bytes(), err
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

func reopenReader(t *testing.T, signed []byte) *pdf.Reader {
	t.Helper()

	rdr, err := pdf.NewReader(bytes.NewReader(signed), int64(len(signed)))
	if err != nil {
		t.Fatalf("failed to reopen signed document: %s", err.Error())
	}
	return rdr
}

func TestSignCertification(t *testing.T) {
	signer := newTestSigner(t)
	data := fixtureBytes(t)

	signed := signDocument(t, data, testSignData(signer))

	if !bytes.HasPrefix(signed, data) {
		t.Fatal("expected the original document to survive unchanged")
	}

	field := onlySignedField(t, signed)
	if field.Name != "Signature1" {
		t.Errorf("expected generated field name Signature1, got %q", field.Name)
	}
	if !field.Signed {
		t.Error("expected the field to carry a signature value")
	}
	if field.Placeholder {
		t.Error("expected the content gap to hold a real container")
	}
	if field.Timestamp {
		t.Error("expected an ordinary signature, not a document timestamp")
	}
	if field.SubFilter != "adbe.pkcs7.detached" {
		t.Errorf("expected sub filter adbe.pkcs7.detached, got %q", field.SubFilter)
	}
	if field.ContentsLength != int64(defaultEstimatedSize) {
		t.Errorf("expected a %d byte content gap, got %d", defaultEstimatedSize, field.ContentsLength)
	}
	if field.PageObjectID != 4 {
		t.Errorf("expected the widget on page object 4, got %d", field.PageObjectID)
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}

	rdr := reopenReader(t, signed)
	if flags := pdfscan.SigFlags(rdr); flags != 3 {
		t.Errorf("expected SigFlags 3, got %d", flags)
	}

	p7 := verifySignedContainer(t, signed, field)
	if len(p7.Certificates) != 3 {
		t.Fatalf("expected leaf, intermediate and root in the container, got %d certificates", len(p7.Certificates))
	}

	has_leaf := false
	for _, cert := range p7.Certificates {
		if cert.Equal(signer.cert) {
			has_leaf = true
		}
	}
	if !has_leaf {
		t.Error("expected the signing certificate inside the container")
	}
}

func TestSignWithRSA(t *testing.T) {
	signer := newTestSignerWithProfile(t, testpki.RSA_2048)

	signed := signDocument(t, fixtureBytes(t), testSignData(signer))

	field := onlySignedField(t, signed)
	if field.ContentsLength != int64(defaultEstimatedSize) {
		t.Errorf("expected a %d byte content gap, got %d", defaultEstimatedSize, field.ContentsLength)
	}
	verifySignedContainer(t, signed, field)
}

func TestSignCAdES(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.Format = CAdESDetached

	signed := signDocument(t, fixtureBytes(t), sign_data)

	field := onlySignedField(t, signed)
	if field.SubFilter != "ETSI.CAdES.detached" {
		t.Errorf("expected sub filter ETSI.CAdES.detached, got %q", field.SubFilter)
	}
	verifySignedContainer(t, signed, field)
}

func TestSignApprovalAfterCertification(t *testing.T) {
	signer := newTestSigner(t)

	certified := signDocument(t, fixtureBytes(t), testSignData(signer))

	approval := testSignData(signer)
	approval.Signature.CertType = ApprovalSignature
	signed := signDocument(t, certified, approval)

	fields := signedFields(t, signed)
	if len(fields) != 2 {
		t.Fatalf("expected 2 signature fields, got %d", len(fields))
	}
	if fields[0].Name != "Signature1" || fields[1].Name != "Signature2" {
		t.Fatalf("expected field names Signature1 and Signature2, got %q and %q",
			fields[0].Name, fields[1].Name)
	}
	for _, field := range fields {
		if !field.Signed {
			t.Errorf("expected field %q to be signed", field.Name)
		}
	}

	// Only the newest signature reaches the end of the grown file.
	if pdfscan.Covers(fields[0].ByteRange, int64(len(signed))) {
		t.Error("expected the first signature to stop covering the file")
	}
	if !pdfscan.Covers(fields[1].ByteRange, int64(len(signed))) {
		t.Errorf("expected the approval signature to cover the file: %v", fields[1].ByteRange)
	}

	verifySignedContainer(t, signed, fields[1])
}

func TestSignCertifyTwiceFails(t *testing.T) {
	signer := newTestSigner(t)

	certified := signDocument(t, fixtureBytes(t), testSignData(signer))

	output, err := signDocumentErr(t, certified, testSignData(signer))
	if err == nil {
		t.Fatal("expected certifying an already signed document to fail")
	}
	if !strings.Contains(err.Error(), "already carries a signature") {
		t.Errorf("unexpected error: %s", err.Error())
	}
	if len(output) != 0 {
		t.Errorf("expected no output on failure, got %d bytes", len(output))
	}
}

func TestSignRequiresCertificate(t *testing.T) {
	sign_data := SignData{
		Signature: SignDataSignature{CertType: ApprovalSignature},
	}

	_, err := signDocumentErr(t, fixtureBytes(t), sign_data)
	if err == nil || !strings.Contains(err.Error(), "certificate is required") {
		t.Fatalf("expected a missing certificate error, got %v", err)
	}
}

func TestSignFieldNameWithPeriod(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.FieldName = "Parent.Child"

	_, err := signDocumentErr(t, fixtureBytes(t), sign_data)
	if !errors.Is(err, ErrInvalidFieldName) {
		t.Fatalf("expected ErrInvalidFieldName, got %v", err)
	}
}

func TestSignExistingSignedFieldName(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.Signature.CertType = ApprovalSignature
	sign_data.FieldName = "Signature1"

	_, err := signDocumentErr(t, buildFormPDF(formFixture{signed: true, pageAnnots: true}), sign_data)
	if !errors.Is(err, ErrFieldAlreadySigned) {
		t.Fatalf("expected ErrFieldAlreadySigned, got %v", err)
	}
}

func TestSignFieldNameTakenByOtherType(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.FieldName = "Signature1"

	_, err := signDocumentErr(t, buildFormPDF(formFixture{fieldType: "Tx"}), sign_data)
	if !errors.Is(err, ErrInvalidFieldName) {
		t.Fatalf("expected ErrInvalidFieldName, got %v", err)
	}
}

func TestSignFreshFieldName(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.FieldName = "Sig-A"

	signed := signDocument(t, fixtureBytes(t), sign_data)

	field := onlySignedField(t, signed)
	if field.Name != "Sig-A" {
		t.Errorf("expected field name Sig-A, got %q", field.Name)
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}
}

func TestSignReusesUnsignedField(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.FieldName = "Signature1"

	signed := signDocument(t, buildFormPDF(formFixture{pageAnnots: true}), sign_data)

	field := onlySignedField(t, signed)
	if field.ObjectID != 5 {
		t.Errorf("expected the existing field object 5 to be reused, got %d", field.ObjectID)
	}
	if field.Name != "Signature1" {
		t.Errorf("expected field name Signature1, got %q", field.Name)
	}
	if !field.Signed {
		t.Error("expected the reused field to be signed")
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}

	// Reuse keeps the form itself unchanged, no second entry appears.
	ids := pdfscan.TopLevelFieldIDs(reopenReader(t, signed))
	if len(ids) != 1 || ids[0] != 5 {
		t.Errorf("expected the form to keep its single field, got %v", ids)
	}

	verifySignedContainer(t, signed, field)
}

func TestSignRetryGrowsReservation(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.EstimatedSignatureSize = 16

	signed := signDocument(t, fixtureBytes(t), sign_data)

	field := onlySignedField(t, signed)
	if field.ContentsLength <= 16 {
		t.Errorf("expected the reservation to grow past 16 bytes, got %d", field.ContentsLength)
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}
	verifySignedContainer(t, signed, field)
}

func TestSignExtraSlots(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.ExtraSlots = map[string]int64{"DSS": 8}

	signed := signDocument(t, fixtureBytes(t), sign_data)

	if !bytes.Contains(signed, []byte("/DSS <000000>")) {
		t.Error("expected the extra placeholder slot in the signature dictionary")
	}

	field := onlySignedField(t, signed)
	if len(field.ByteRange) != 6 {
		t.Fatalf("expected a byte range with 3 spans, got %v", field.ByteRange)
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}
	verifySignedContainer(t, signed, field)
}

func TestSignUseTempFile(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.UseTempFile = true

	signed := signDocument(t, fixtureBytes(t), sign_data)

	field := onlySignedField(t, signed)
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}
	verifySignedContainer(t, signed, field)
}

func TestSignMAC(t *testing.T) {
	signer := newTestSigner(t)

	producer, err := mac.NewProducerFromKEK(bytes.Repeat([]byte{0x42}, 32), crypto.SHA256)
	if err != nil {
		t.Fatalf("failed to create token producer: %s", err.Error())
	}

	sign_data := testSignData(signer)
	sign_data.MAC = &mac.Embedder{Producer: producer}

	signed := signDocument(t, fixtureBytes(t), sign_data)

	if !bytes.Contains(signed, []byte("/ExtensionLevel 32004")) {
		t.Error("expected the catalog to declare the integrity token extension")
	}

	field := onlySignedField(t, signed)
	if field.ContentsLength != int64(defaultEstimatedSize+macReservedSize) {
		t.Errorf("expected a %d byte content gap, got %d",
			defaultEstimatedSize+macReservedSize, field.ContentsLength)
	}

	// The token rides along as an unsigned attribute, so the signature
	// itself still verifies.
	raw := signatureContainer(t, signed, field)
	p7 := verifySignedContainer(t, signed, field)
	if len(p7.Certificates) == 0 {
		t.Error("expected certificates in the container")
	}

	oid_der, err := asn1.Marshal(mac.OIDMacData)
	if err != nil {
		t.Fatalf("failed to marshal attribute identifier: %s", err.Error())
	}
	if !bytes.Contains(raw, oid_der) {
		t.Error("expected an integrity token attribute in the container")
	}
}

func TestSignTimestampField(t *testing.T) {
	signer := newTestSigner(t)

	var got_digest []byte
	var got_algorithm crypto.Hash
	sign_data := SignData{
		Signature: SignDataSignature{CertType: TimeStampSignature},
		TimestampFunction: func(digest []byte, algorithm crypto.Hash) ([]byte, error) {
			got_digest = digest
			got_algorithm = algorithm
			return testTimestampToken(t, signer, digest), nil
		},
	}

	signed := signDocument(t, fixtureBytes(t), sign_data)

	if got_algorithm != crypto.SHA256 {
		t.Errorf("expected the default digest algorithm, got %v", got_algorithm)
	}
	if len(got_digest) != crypto.SHA256.Size() {
		t.Errorf("expected a %d byte digest, got %d", crypto.SHA256.Size(), len(got_digest))
	}

	field := onlySignedField(t, signed)
	if !field.Timestamp {
		t.Error("expected a document timestamp field")
	}
	if !field.Signed {
		t.Error("expected the field to carry the token")
	}
	if field.SubFilter != "ETSI.RFC3161" {
		t.Errorf("expected sub filter ETSI.RFC3161, got %q", field.SubFilter)
	}
	if field.ContentsLength != int64(defaultTimestampSize+timestampOverhead) {
		t.Errorf("expected a %d byte content gap, got %d",
			defaultTimestampSize+timestampOverhead, field.ContentsLength)
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}

	raw := signatureContainer(t, signed, field)
	parseSignatureContainer(t, raw)
}

func TestSignClosingCallback(t *testing.T) {
	signer := newTestSigner(t)

	var seen []uint32
	sign_data := testSignData(signer)
	sign_data.ClosingCallback = func(signatureObjectId uint32) {
		seen = append(seen, signatureObjectId)
	}

	signDocument(t, fixtureBytes(t), sign_data)

	if len(seen) != 1 {
		t.Fatalf("expected the callback to run once, got %d calls", len(seen))
	}
	if seen[0] != 10 {
		t.Errorf("expected signature dictionary object 10, got %d", seen[0])
	}
}

func TestSignVisibleCertificationFails(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.Appearance = Appearance{
		Visible:     true,
		LowerLeftX:  10,
		LowerLeftY:  10,
		UpperRightX: 200,
		UpperRightY: 80,
	}

	_, err := signDocumentErr(t, fixtureBytes(t), sign_data)
	if err == nil || !strings.Contains(err.Error(), "only allowed for approval signatures") {
		t.Fatalf("expected a visible certification to be rejected, got %v", err)
	}
}

func TestSignVisibleApproval(t *testing.T) {
	signer := newTestSigner(t)

	sign_data := testSignData(signer)
	sign_data.Signature.CertType = ApprovalSignature
	sign_data.Appearance = Appearance{
		Visible:     true,
		LowerLeftX:  10,
		LowerLeftY:  10,
		UpperRightX: 200,
		UpperRightY: 80,
	}

	signed := signDocument(t, fixtureBytes(t), sign_data)

	field := onlySignedField(t, signed)
	if field.PageObjectID != 4 {
		t.Errorf("expected the widget on page object 4, got %d", field.PageObjectID)
	}
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}

	// The widget gets an appearance stream and the page update links the
	// annotation in.
	if !bytes.Contains(signed, []byte("/AP ")) {
		t.Error("expected an appearance entry on the widget")
	}
	if !bytes.Contains(signed, []byte("/Annots")) {
		t.Error("expected the page to link the widget annotation")
	}

	verifySignedContainer(t, signed, field)
}

func TestSignFile(t *testing.T) {
	signer := newTestSigner(t)
	dir := t.TempDir()

	input := filepath.Join(dir, "input.pdf")
	output := filepath.Join(dir, "signed.pdf")
	if err := os.WriteFile(input, fixtureBytes(t), 0o600); err != nil {
		t.Fatalf("failed to write input document: %s", err.Error())
	}

	if err := SignFile(input, output, testSignData(signer)); err != nil {
		t.Fatalf("failed to sign file: %s", err.Error())
	}

	signed, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read signed file: %s", err.Error())
	}

	field := onlySignedField(t, signed)
	if !pdfscan.Covers(field.ByteRange, int64(len(signed))) {
		t.Errorf("expected the byte range to cover the file: %v", field.ByteRange)
	}
	verifySignedContainer(t, signed, field)
}
