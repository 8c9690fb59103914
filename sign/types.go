package sign

import (
	"crypto"
	"crypto/x509"
	"io"
	"time"

	"github.com/digitorus/pdf"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
	"github.com/vedantmgoyal9/pdfseal/mac"
	"github.com/vedantmgoyal9/pdfseal/revocation"
)

type CatalogData struct {
	ObjectId   uint32
	RootString string
}

// TSA describes the timestamp authority used for RFC 3161 tokens.
type TSA struct {
	URL      string
	Username string
	Password string
}

// RevocationFunction collects revocation material for one certificate
// and its issuer into the archival structure embedded in the signature.
type RevocationFunction func(cert, issuer *x509.Certificate, i *revocation.InfoArchival) error

// TimestampFunction produces a DER encoded RFC 3161 timestamp token
// over the given digest. When set it replaces the HTTP client that
// would otherwise contact the configured TSA.
type TimestampFunction func(digest []byte, hashAlgorithm crypto.Hash) ([]byte, error)

// SignatureFormat selects the encoding announced in the signature
// dictionary's SubFilter entry.
type SignatureFormat uint

const (
	// PKCS7Detached is the adbe.pkcs7.detached encoding.
	PKCS7Detached SignatureFormat = iota

	// CAdESDetached is the ETSI.CAdES.detached encoding used by PAdES
	// baseline signatures.
	CAdESDetached
)

// SubFilter returns the dictionary name for the format.
func (f SignatureFormat) SubFilter() string {
	if f == CAdESDetached {
		return "ETSI.CAdES.detached"
	}
	return "adbe.pkcs7.detached"
}

// SignaturePolicy identifies the signature policy committed to by the
// signer. When present it is embedded as a signed attribute.
type SignaturePolicy struct {
	// OID is the dotted object identifier of the policy document.
	OID string

	// DigestAlgorithm is the hash used over the policy document.
	DigestAlgorithm crypto.Hash

	// Digest is the hash value of the policy document.
	Digest []byte
}

// SignData drives a single signing pass.
type SignData struct {
	Signature          SignDataSignature
	Signer             crypto.Signer
	DigestAlgorithm    crypto.Hash
	Certificate        *x509.Certificate
	CertificateChains  [][]*x509.Certificate
	Format             SignatureFormat
	TSA                TSA
	TimestampFunction  TimestampFunction
	SignaturePolicy    *SignaturePolicy
	RevocationData     revocation.InfoArchival
	RevocationFunction RevocationFunction
	Appearance         Appearance

	// FieldName selects the signature form field. An existing field
	// with this name is reused when it is still unsigned, otherwise a
	// field is created. Empty selects a generated name.
	FieldName string

	// EstimatedSignatureSize is the decoded byte size reserved for the
	// signature container. Zero selects an estimate derived from the
	// signing material.
	EstimatedSignatureSize uint32

	// TimestampSizeEstimate is the decoded byte size assumed for an
	// RFC 3161 token when sizing the reservation. Zero selects a
	// built in default.
	TimestampSizeEstimate uint32

	// ExtraSlots requests additional named placeholder reservations in
	// the signature dictionary, keyed by dictionary entry name.
	ExtraSlots map[string]int64

	// MAC, when set, wraps the pass with an integrity token that is
	// attached to the container as an unsigned attribute.
	MAC *mac.Embedder

	// UseTempFile routes the serialized copy through a temporary file
	// instead of memory.
	UseTempFile bool

	// ClosingCallback runs once the incremental update is serialized
	// and all offsets are frozen, before the byte range descriptor is
	// patched in. It receives the object number of the signature
	// dictionary.
	ClosingCallback func(signatureObjectId uint32)

	// CompressLevel determines the zlib compression level for stream
	// objects written during the pass.
	CompressLevel int

	objectId uint32
}

// AppearanceRenderer generates the appearance stream content for a
// widget rectangle.
type AppearanceRenderer func(context *SignContext, rect [4]float64) ([]byte, error)

// Appearance represents the appearance of the signature.
type Appearance struct {
	Visible bool

	Page        uint32
	LowerLeftX  float64
	LowerLeftY  float64
	UpperRightX float64
	UpperRightY float64

	// Renderer generates the appearance stream content for the widget
	// rectangle. Without a renderer a visible signature gets an empty
	// appearance.
	Renderer AppearanceRenderer
}

type VisualSignData struct {
	pageObjectId uint32
	objectId     uint32
}

type InfoData struct {
	ObjectId uint32
}

//go:generate stringer -type=CertType
type CertType uint

const (
	CertificationSignature CertType = iota + 1
	ApprovalSignature
	UsageRightsSignature
	TimeStampSignature
)

//go:generate stringer -type=DocMDPPerm
type DocMDPPerm uint

const (
	DoNotAllowAnyChangesPerms DocMDPPerm = iota + 1
	AllowFillingExistingFormFieldsAndSignaturesPerms
	AllowFillingExistingFormFieldsAndSignaturesAndCRUDAnnotationsPerms
)

// FieldLockAction selects which fields a FieldMDP transform locks.
type FieldLockAction string

const (
	FieldLockAll     FieldLockAction = "All"
	FieldLockInclude FieldLockAction = "Include"
	FieldLockExclude FieldLockAction = "Exclude"
)

// FieldLock describes the FieldMDP transform attached to a signature,
// restricting later changes to the named form fields.
type FieldLock struct {
	Action FieldLockAction
	Fields []string

	// Perm, when nonzero, also carries an access permission level the
	// way a DocMDP transform does.
	Perm DocMDPPerm
}

type SignDataSignature struct {
	CertType   CertType
	DocMDPPerm DocMDPPerm
	FieldLock  *FieldLock
	Info       SignDataSignatureInfo
}

type SignDataSignatureInfo struct {
	Name        string
	Location    string
	Reason      string
	ContactInfo string
	Date        time.Time
}

// SignContext holds the state of one signing pass over one document.
// A context is not safe for concurrent use and cannot be reused for a
// second pass.
type SignContext struct {
	InputFile  io.ReadSeeker
	OutputFile io.Writer
	SignData   SignData

	CatalogData    CatalogData
	VisualSignData VisualSignData
	InfoData       InfoData

	PDFReader    *pdf.Reader
	NewXrefStart int64

	// ByteRangeValues holds the computed byte range descriptor after
	// the placeholders have been located.
	ByteRangeValues []int64

	// SignatureMaxLength is the hexadecimal character capacity of the
	// content placeholder, twice the reserved decoded size.
	SignatureMaxLength     uint32
	SignatureMaxLengthBase uint32

	output  byteSink
	session *reservationSession

	// deferred marks a pass that only prepares the document, the
	// container is produced elsewhere so no signer material is needed.
	deferred  bool
	preClosed bool
	closed    bool

	existingSignatures []pdfscan.Field
	fieldName          string
	existingFieldId    uint32
	inputSize          int64
	lastXrefID         uint32
	newXrefEntries     []xrefEntry
	updatedXrefEntries []xrefEntry
}
