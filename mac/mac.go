// Package mac produces and embeds ISO 32004 integrity tokens. A token
// is a CMS AuthenticatedData object binding an HMAC over the document
// byte ranges, and over the signature value when one is present, to
// key material only holders of the document keys can derive. The token
// travels inside the signature container as an unsigned attribute.
package mac

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"fmt"
	"hash"

	_ "golang.org/x/crypto/sha3"
)

var (
	ErrInvalidMAC             = errors.New("integrity token has an invalid MAC")
	ErrValidation             = errors.New("integrity token validation error")
	ErrDigestMismatch         = errors.New("document digest does not match integrity token")
	ErrUnsupportedAlgorithm   = errors.New("unsupported digest algorithm for integrity tokens")
	ErrMalformedContainer     = errors.New("malformed signature container")
	ErrNoSignerInfo           = errors.New("signature container holds no signer info")
	ErrMissingKeyMaterial     = errors.New("no key material to derive the token key from")
	ErrMalformedRecipientInfo = errors.New("token recipient info is malformed")
)

// Object identifiers from ISO 32004 and the CMS attributes the token
// construction uses.
var (
	// OIDIntegrityInfo identifies the PdfMacIntegrityInfo content type,
	// 1.0.32004.1.0.
	OIDIntegrityInfo = asn1.ObjectIdentifier{1, 0, 32004, 1, 0}

	// OIDWrapKDF identifies the key derivation declared in the token's
	// recipient info, 1.0.32004.1.1.
	OIDWrapKDF = asn1.ObjectIdentifier{1, 0, 32004, 1, 1}

	// OIDMacData identifies the unsigned attribute carrying the token
	// inside a signature container, 1.0.32004.1.2.
	OIDMacData = asn1.ObjectIdentifier{1, 0, 32004, 1, 2}

	OIDHmacSHA256          = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	OIDAes256Wrap          = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 45}
	OIDAuthenticatedData   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 2}
	OIDContentType         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OIDMessageDigest       = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OIDAlgorithmProtection = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 52}
)

var digestOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA256:   {2, 16, 840, 1, 101, 3, 4, 2, 1},
	crypto.SHA384:   {2, 16, 840, 1, 101, 3, 4, 2, 2},
	crypto.SHA512:   {2, 16, 840, 1, 101, 3, 4, 2, 3},
	crypto.SHA3_256: {2, 16, 840, 1, 101, 3, 4, 2, 8},
	crypto.SHA3_384: {2, 16, 840, 1, 101, 3, 4, 2, 9},
	crypto.SHA3_512: {2, 16, 840, 1, 101, 3, 4, 2, 10},
}

// newDigest returns a hash for one of the digest algorithms ISO 32004
// permits in integrity tokens.
func newDigest(algorithm crypto.Hash) (hash.Hash, error) {
	if _, ok := digestOIDs[algorithm]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	if !algorithm.Available() {
		return nil, fmt.Errorf("digest algorithm %s is not linked into the binary", algorithm)
	}
	return algorithm.New(), nil
}

// IntegrityInfo is the encapsulated content of an integrity token.
//
//	PdfMacIntegrityInfo ::= SEQUENCE {
//	    version         INTEGER,
//	    dataDigest      OCTET STRING,
//	    signatureDigest [0] IMPLICIT OCTET STRING OPTIONAL
//	}
type IntegrityInfo struct {
	Version         int
	DataDigest      []byte
	SignatureDigest []byte `asn1:"optional,tag:0"`
}

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue `asn1:"optional"`
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type authenticatedData struct {
	Version          int
	RecipientInfos   []asn1.RawValue `asn1:"set"`
	MacAlgorithm     algorithmIdentifier
	DigestAlgorithm  algorithmIdentifier `asn1:"optional,explicit,tag:1"`
	EncapContentInfo encapsulatedContentInfo
	AuthAttrs        asn1.RawValue `asn1:"optional,tag:2"`
	Mac              []byte
	UnauthAttrs      asn1.RawValue `asn1:"optional,tag:3"`
}

type encapsulatedContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     []byte `asn1:"optional,explicit,tag:0"`
}

type passwordRecipientInfo struct {
	Version                int
	KeyDerivationAlgorithm algorithmIdentifier `asn1:"optional,implicit,tag:0"`
	KeyEncryptionAlgorithm algorithmIdentifier
	EncryptedKey           []byte
}

type attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

type algorithmProtection struct {
	DigestAlgorithm    algorithmIdentifier
	SignatureAlgorithm *algorithmIdentifier `asn1:"optional,implicit,tag:1"`
	MacAlgorithm       *algorithmIdentifier `asn1:"optional,implicit,tag:2"`
}

func mustMarshal(v any) []byte {
	b, err := asn1.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
