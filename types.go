package pdfseal

import (
	"crypto"
	"crypto/x509"
	"time"

	"github.com/vedantmgoyal9/pdfseal/mac"
	"github.com/vedantmgoyal9/pdfseal/sign"
)

// SignatureType represents the type of signature.
type SignatureType int

const (
	// ApprovalSignature indicates that the signer approves the content
	// of the document. This is the most common type of signature.
	ApprovalSignature SignatureType = iota

	// CertificationSignature indicates that the signer is the author of
	// the document and specifies what changes are permitted after
	// signing.
	CertificationSignature

	// DocumentTimestamp is a document-level timestamp that proves the
	// document existed at a specific time without certifying
	// authorship.
	DocumentTimestamp

	// UsageRightsSignature carries a usage rights transform enabling
	// extended reader features for the document.
	UsageRightsSignature
)

// Permission represents document modification permissions for
// certification signatures.
type Permission int

const (
	// NoChanges guarantees that the document has not been modified in
	// any way. Any subsequent change will invalidate the signature.
	NoChanges Permission = iota + 1

	// AllowFormFilling permits the user to fill in form fields and sign
	// the document, but not to add comments or annotations.
	AllowFormFilling

	// AllowFormFillingAndAnnotations permits the user to fill forms,
	// sign, and add comments or annotations (e.g., sticky notes).
	AllowFormFillingAndAnnotations
)

// Format represents the signature format.
type Format int

const (
	// DefaultFormat lets the library choose: a classic detached PKCS7
	// signature with revocation material embedded for long-term
	// validation support.
	DefaultFormat Format = iota

	// PAdES_B (Baseline-Basic) creates a lightweight CAdES signature
	// containing only the signer's certificates and the signed hash.
	// It DOES NOT embed revocation information. Use this if you need
	// minimal file size or if the signature is short-lived.
	PAdES_B

	// PAdES_B_T (Baseline-Timestamp) extends PAdES_B by requiring a
	// timestamp from a trusted Timestamp Authority (TSA). This proves
	// the signature existed at a specific time. Requires a TSA URL or
	// timestamp function to be configured.
	PAdES_B_T

	// PAdES_B_LT (Baseline-Long-Term) extends PAdES_B_T by embedding
	// validation material (OCSP responses and/or CRLs) into the
	// signature. This allows the signature to be validated even if the
	// original CA services are offline (provided the revocation data
	// was valid at signing time).
	PAdES_B_LT

	// PAdES_B_LTA (Baseline-Long-Term-Availability) is not yet
	// supported. It would add document-level timestamps to protect the
	// LTV data over time.
	PAdES_B_LTA
)

// Result contains the result of a Write operation.
type Result struct {
	Signatures []SignatureInfo
	Document   *Document
}

// SignatureInfo contains information about an applied signature.
type SignatureInfo struct {
	SignerName  string
	SigningTime time.Time
	Reason      string
	Location    string
	Contact     string
	Certificate *x509.Certificate
	Format      Format

	// FieldName is the configured form field name; empty when the
	// engine generated one.
	FieldName string
}

const (
	// PDF coordinates are defined in "user space units". By default,
	// one unit corresponds to one "point" (1/72 of an inch).
	//
	// These constants can be used to convert from physical units to PDF
	// points.

	// Millimeter represents the number of PDF user space units in one millimeter.
	Millimeter = 72.0 / 25.4
	// Centimeter represents the number of PDF user space units in one centimeter.
	Centimeter = 72.0 / 2.54
	// Inch represents the number of PDF user space units in one inch.
	Inch = 72.0
)

// SignFunc is an alias for sign.SignFunc, the callback producing the
// DER encoded container for a prepared field.
type SignFunc = sign.SignFunc

// PreparedField is an alias for sign.PreparedField, the read-only
// handle a SignFunc receives.
type PreparedField = sign.PreparedField

// Prepared is an alias for sign.Prepared, the description of a
// prepared signature field.
type Prepared = sign.Prepared

// TimestampFunction is an alias for sign.TimestampFunction.
type TimestampFunction = sign.TimestampFunction

// RevocationFunction is an alias for sign.RevocationFunction.
type RevocationFunction = sign.RevocationFunction

// RevocationCache is an alias for sign.RevocationCache.
type RevocationCache = sign.RevocationCache

// AppearanceRenderer is an alias for sign.AppearanceRenderer.
type AppearanceRenderer = sign.AppearanceRenderer

// FieldLockAction is an alias for sign.FieldLockAction.
type FieldLockAction = sign.FieldLockAction

const (
	// LockAllFields locks every form field after signing.
	LockAllFields = sign.FieldLockAll
	// LockIncludedFields locks exactly the named fields.
	LockIncludedFields = sign.FieldLockInclude
	// LockExcludedFields locks everything except the named fields.
	LockExcludedFields = sign.FieldLockExclude
)

// SignBuilder builds a signature configuration.
type SignBuilder struct {
	doc               *Document
	signer            crypto.Signer
	cert              *x509.Certificate
	chains            [][]*x509.Certificate
	reason            string
	location          string
	contact           string
	signerName        string
	fieldName         string
	sigType           SignatureType
	permission        Permission
	fieldLock         *sign.FieldLock
	format            Format
	visible           bool
	appPage           uint32
	appX, appY        float64
	appWidth          float64
	appHeight         float64
	renderer          AppearanceRenderer
	tsa               string
	tsaUser           string
	tsaPass           string
	timestampFunc     TimestampFunction
	timestampEstimate uint32
	digest            crypto.Hash
	policy            *sign.SignaturePolicy
	revocationFunc    RevocationFunction
	preferCRL         bool
	revocationCache   RevocationCache
	macEmbedder       *mac.Embedder
	estimatedSize     uint32
	useTempFile       bool
	unit              float64
}

// Reason sets the signing reason (e.g., "I agree to the terms", "I am
// the author"). This text is stored in the signature properties.
func (b *SignBuilder) Reason(reason string) *SignBuilder {
	b.reason = reason
	return b
}

// Location specifies the physical location of the signer (e.g., "New
// York, USA").
func (b *SignBuilder) Location(location string) *SignBuilder {
	b.location = location
	return b
}

// Contact provides contact information for the signer (e.g., email
// address or phone number) to allow recipients to verify the
// signature.
func (b *SignBuilder) Contact(contact string) *SignBuilder {
	b.contact = contact
	return b
}

// SignerName sets the visual name of the signer. Ideally this matches
// the Common Name (CN) in the signing certificate, but it can be
// customized.
func (b *SignBuilder) SignerName(name string) *SignBuilder {
	b.signerName = name
	return b
}

// Field selects the signature form field by partial name. An existing
// unsigned signature field with this name is reused, otherwise a field
// is created. Names containing a period or held by a field of a
// different type are rejected when the document is written. The
// default is a generated unique name.
func (b *SignBuilder) Field(name string) *SignBuilder {
	b.fieldName = name
	return b
}

// Type specifies the type of signature (Approval, Certification,
// UsageRights, or Timestamp). Default is ApprovalSignature if not
// specified. Certification signatures must be the first signature in
// the document.
func (b *SignBuilder) Type(t SignatureType) *SignBuilder {
	b.sigType = t
	return b
}

// Permission limits what changes are allowed to the document after
// signing. This is only applicable for CertificationSignatures.
// Default is NoChanges if not specified for certification.
func (b *SignBuilder) Permission(p Permission) *SignBuilder {
	b.permission = p
	return b
}

// Lock attaches a field lock to the signature, restricting later
// changes to form fields. The action selects all fields, exactly the
// named ones, or everything except them.
func (b *SignBuilder) Lock(action FieldLockAction, fields ...string) *SignBuilder {
	b.fieldLock = &sign.FieldLock{Action: action, Fields: fields}
	return b
}

// Format configures the signature format (e.g., PAdES_B, PAdES_B_LT).
// This determines the encoding announced in the signature dictionary
// and whether revocation info is embedded (LTV). Default is
// DefaultFormat.
func (b *SignBuilder) Format(f Format) *SignBuilder {
	b.format = f
	return b
}

// Unit sets the coordinate system scale for subsequent calls to
// Appearance. By default, the unit is 1.0 (one PDF point = 1/72 inch).
//
// Example:
//
//	// Place signature at (20mm, 50mm)
//	builder.Unit(pdfseal.Millimeter).Appearance(1, 20, 50, 50, 15)
func (b *SignBuilder) Unit(u float64) *SignBuilder {
	b.unit = u
	return b
}

// Appearance makes the signature visible as a widget annotation on the
// given page (starting from 1 for the first page) at the given
// position and size, in the current Unit. (0, 0) is usually the
// bottom-left corner of the page. The widget content is produced by
// the configured Renderer; without one the widget stays blank.
func (b *SignBuilder) Appearance(page uint32, x, y, width, height float64) *SignBuilder {
	b.visible = true
	b.appPage = page
	b.appX = x
	b.appY = y
	b.appWidth = width
	b.appHeight = height
	return b
}

// Renderer sets the appearance stream renderer invoked for the widget
// rectangle of a visible signature.
func (b *SignBuilder) Renderer(fn AppearanceRenderer) *SignBuilder {
	b.renderer = fn
	return b
}

// Timestamp enables RFC 3161 timestamping using the provided Time
// Stamp Authority (TSA) URL. The timestamp is embedded in the
// signature to prove the time of signing.
func (b *SignBuilder) Timestamp(url string) *SignBuilder {
	b.tsa = url
	return b
}

// TimestampAuth sets TSA authentication credentials.
func (b *SignBuilder) TimestampAuth(username, password string) *SignBuilder {
	b.tsaUser = username
	b.tsaPass = password
	return b
}

// TimestampFunction sets a custom function producing RFC 3161 tokens,
// replacing the HTTP client that would otherwise contact the TSA URL.
func (b *SignBuilder) TimestampFunction(fn TimestampFunction) *SignBuilder {
	b.timestampFunc = fn
	return b
}

// TimestampSizeEstimate sets the decoded byte size assumed for the TSA
// token when sizing the signature reservation.
func (b *SignBuilder) TimestampSizeEstimate(size uint32) *SignBuilder {
	b.timestampEstimate = size
	return b
}

// Digest sets the hash algorithm for the signature (e.g.,
// crypto.SHA256). Default is SHA256 if not specified.
func (b *SignBuilder) Digest(hash crypto.Hash) *SignBuilder {
	b.digest = hash
	return b
}

// CertificateChains sets the certificate chains for the signature,
// replacing the chain built from the variadic arguments of Sign.
func (b *SignBuilder) CertificateChains(chains [][]*x509.Certificate) *SignBuilder {
	b.chains = chains
	return b
}

// Policy commits the signature to the signature policy with the given
// object identifier, identified by the digest of the policy document.
func (b *SignBuilder) Policy(oid string, algorithm crypto.Hash, digest []byte) *SignBuilder {
	b.policy = &sign.SignaturePolicy{OID: oid, DigestAlgorithm: algorithm, Digest: digest}
	return b
}

// RevocationFunction sets a custom function to handle revocation
// fetching (CRL/OCSP). If not set, the library will attempt to fetch
// from distribution points via HTTP.
func (b *SignBuilder) RevocationFunction(fn RevocationFunction) *SignBuilder {
	b.revocationFunc = fn
	return b
}

// PreferCRL sets whether to prefer CRL over OCSP for revocation
// checks. By default, the library prefers OCSP (if available) as it
// produces smaller signatures.
func (b *SignBuilder) PreferCRL(prefer bool) *SignBuilder {
	b.preferCRL = prefer
	return b
}

// RevocationCache sets the cache for revocation data (CRL/OCSP).
func (b *SignBuilder) RevocationCache(cache RevocationCache) *SignBuilder {
	b.revocationCache = cache
	return b
}

// MAC attaches an integrity token over the signed document to the
// signature container, produced by the given embedder.
func (b *SignBuilder) MAC(embedder *mac.Embedder) *SignBuilder {
	b.macEmbedder = embedder
	return b
}

// EstimatedSize reserves space for a signature container of the given
// decoded byte size. Zero selects an estimate derived from the signing
// material; the estimate grows and the pass reruns automatically when
// the container outgrows it.
func (b *SignBuilder) EstimatedSize(size uint32) *SignBuilder {
	b.estimatedSize = size
	return b
}

// UseTempFile routes the serialized copy of the document through a
// temporary file instead of memory, trading speed for a flat memory
// profile on large documents.
func (b *SignBuilder) UseTempFile(use bool) *SignBuilder {
	b.useTempFile = use
	return b
}
