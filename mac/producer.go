package mac

import (
	"bytes"
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"hash"
	"sort"
)

// TokenProducer produces integrity tokens. The standard implementation
// binds them to the document's key material; alternatives can route
// the MAC computation through external key stores.
type TokenProducer interface {
	// Token produces a DER encoded token over the document digest and,
	// when signatureDigest is not nil, the digest of the signature
	// value the token accompanies.
	Token(documentDigest, signatureDigest []byte) ([]byte, error)

	// SizeEstimate returns the byte size a produced token will have.
	SizeEstimate(withSignatureDigest bool) (int, error)

	// NewHash returns the digest algorithm token inputs must be
	// computed with.
	NewHash() (hash.Hash, error)
}

// Producer is the standard token producer: an HKDF derived key
// encryption key, a fresh AES-256 wrapped MAC key per token and
// HMAC-SHA256 authentication.
type Producer struct {
	kek       []byte
	algorithm crypto.Hash
}

// NewProducer derives a producer from the document's file encryption
// key and KDF salt.
func NewProducer(fileEncryptionKey, salt []byte, algorithm crypto.Hash) (*Producer, error) {
	kek, err := DeriveKEK(fileEncryptionKey, salt)
	if err != nil {
		return nil, err
	}
	return NewProducerFromKEK(kek, algorithm)
}

// NewProducerFromKEK uses an already derived key encryption key.
func NewProducerFromKEK(kek []byte, algorithm crypto.Hash) (*Producer, error) {
	if len(kek) != 32 {
		return nil, fmt.Errorf("key encryption key must be 32 bytes, got %d", len(kek))
	}
	if _, ok := digestOIDs[algorithm]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
	return &Producer{kek: kek, algorithm: algorithm}, nil
}

func (p *Producer) NewHash() (hash.Hash, error) {
	return newDigest(p.algorithm)
}

// Token produces a fresh token. The MAC key is random per token, only
// its wrapped form travels inside the token.
func (p *Producer) Token(documentDigest, signatureDigest []byte) ([]byte, error) {
	return p.buildToken(documentDigest, signatureDigest, false)
}

// SizeEstimate builds a dry run token over zeroed digests. All token
// fields have fixed widths for a given digest algorithm, so the dry
// run size equals the real one.
func (p *Producer) SizeEstimate(withSignatureDigest bool) (int, error) {
	h, err := p.NewHash()
	if err != nil {
		return 0, err
	}

	dummy := make([]byte, h.Size())
	var signatureDigest []byte
	if withSignatureDigest {
		signatureDigest = dummy
	}

	token, err := p.buildToken(dummy, signatureDigest, true)
	if err != nil {
		return 0, err
	}
	return len(token), nil
}

func (p *Producer) buildToken(documentDigest, signatureDigest []byte, dryRun bool) ([]byte, error) {
	macKey := make([]byte, 32)
	if !dryRun {
		if _, err := rand.Read(macKey); err != nil {
			return nil, fmt.Errorf("failed to generate MAC key: %w", err)
		}
	}

	wrappedKey, err := aesKeyWrap(p.kek, macKey)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap MAC key: %w", err)
	}

	message, messageDigest, err := p.encodeIntegrityInfo(documentDigest, signatureDigest)
	if err != nil {
		return nil, err
	}

	attrSet, attrsTagged, err := p.encodeAuthAttrs(messageDigest)
	if err != nil {
		return nil, err
	}

	// The MAC covers the attributes in their SET OF encoding, the
	// attribute field itself carries the implicitly retagged form.
	mac := computeMAC(macKey, attrSet)

	authData, err := asn1.Marshal(authenticatedData{
		Version: 0,
		RecipientInfos: []asn1.RawValue{
			p.encodeRecipientInfo(wrappedKey),
		},
		MacAlgorithm:    algorithmIdentifier{Algorithm: OIDHmacSHA256},
		DigestAlgorithm: algorithmIdentifier{Algorithm: digestOIDs[p.algorithm]},
		EncapContentInfo: encapsulatedContentInfo{
			ContentType: OIDIntegrityInfo,
			Content:     message,
		},
		AuthAttrs: attrsTagged,
		Mac:       mac,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal AuthenticatedData: %w", err)
	}

	return asn1.Marshal(contentInfo{
		ContentType: OIDAuthenticatedData,
		Content:     asn1.RawValue{FullBytes: authData},
	})
}

func (p *Producer) encodeIntegrityInfo(documentDigest, signatureDigest []byte) (message, messageDigest []byte, err error) {
	message, err = asn1.Marshal(IntegrityInfo{
		Version:         0,
		DataDigest:      documentDigest,
		SignatureDigest: signatureDigest,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal integrity info: %w", err)
	}

	h, err := p.NewHash()
	if err != nil {
		return nil, nil, err
	}
	h.Write(message)
	return message, h.Sum(nil), nil
}

func (p *Producer) encodeAuthAttrs(messageDigest []byte) (attrSet []byte, tagged asn1.RawValue, err error) {
	protection := mustMarshal(algorithmProtection{
		DigestAlgorithm: algorithmIdentifier{Algorithm: digestOIDs[p.algorithm]},
		MacAlgorithm:    &algorithmIdentifier{Algorithm: OIDHmacSHA256},
	})

	attrs := []attribute{
		{Type: OIDContentType, Values: attributeValue(mustMarshal(OIDIntegrityInfo))},
		{Type: OIDMessageDigest, Values: attributeValue(mustMarshal(messageDigest))},
		{Type: OIDAlgorithmProtection, Values: attributeValue(protection)},
	}

	return encodeAttributeSet(attrs, 2)
}

// encodeRecipientInfo wraps a PasswordRecipientInfo in the [3] tag of
// the RecipientInfo choice.
func (p *Producer) encodeRecipientInfo(wrappedKey []byte) asn1.RawValue {
	pwri := mustMarshal(passwordRecipientInfo{
		Version:                0,
		KeyDerivationAlgorithm: algorithmIdentifier{Algorithm: OIDWrapKDF},
		KeyEncryptionAlgorithm: algorithmIdentifier{Algorithm: OIDAes256Wrap},
		EncryptedKey:           wrappedKey,
	})
	return asn1.RawValue{Tag: 3, Class: asn1.ClassContextSpecific, IsCompound: true, Bytes: pwri}
}

// attributeValue wraps one encoded value in the SET an attribute's
// value list is.
func attributeValue(encoded []byte) asn1.RawValue {
	set := mustMarshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      encoded,
	})
	return asn1.RawValue{FullBytes: set}
}

// encodeAttributeSet returns the DER sorted SET OF encoding of attrs
// and the same contents retagged with the given implicit context tag.
func encodeAttributeSet(attrs []attribute, contextTag int) (attrSet []byte, tagged asn1.RawValue, err error) {
	encoded := make([][]byte, 0, len(attrs))
	for _, attr := range attrs {
		b, err := asn1.Marshal(attr)
		if err != nil {
			return nil, asn1.RawValue{}, fmt.Errorf("failed to marshal attribute %v: %w", attr.Type, err)
		}
		encoded = append(encoded, b)
	}
	sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

	contents := bytes.Join(encoded, nil)
	attrSet = mustMarshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      contents,
	})
	tagged = asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        contextTag,
		IsCompound: true,
		Bytes:      contents,
	}
	return attrSet, tagged, nil
}

func computeMAC(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// Validate checks a token against the expected digests. It unwraps the
// MAC key, recomputes the MAC over the authenticated attributes and
// compares the committed digests against the given ones.
func (p *Producer) Validate(token, documentDigest, signatureDigest []byte) error {
	var ci contentInfo
	if _, err := asn1.Unmarshal(token, &ci); err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !ci.ContentType.Equal(OIDAuthenticatedData) {
		return fmt.Errorf("%w: content type is not AuthenticatedData", ErrValidation)
	}

	var authData authenticatedData
	if _, err := asn1.Unmarshal(ci.Content.FullBytes, &authData); err != nil {
		return fmt.Errorf("failed to parse AuthenticatedData: %w", err)
	}

	macKey, err := p.unwrapMacKey(authData.RecipientInfos)
	if err != nil {
		return err
	}

	attrSet := mustMarshal(asn1.RawValue{
		Class:      asn1.ClassUniversal,
		Tag:        asn1.TagSet,
		IsCompound: true,
		Bytes:      authData.AuthAttrs.Bytes,
	})
	if !hmac.Equal(computeMAC(macKey, attrSet), authData.Mac) {
		return ErrInvalidMAC
	}

	if err := p.validateAuthAttrs(authData); err != nil {
		return err
	}
	return p.validateIntegrityInfo(authData.EncapContentInfo, documentDigest, signatureDigest)
}

func (p *Producer) unwrapMacKey(recipientInfos []asn1.RawValue) ([]byte, error) {
	if len(recipientInfos) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one recipient info", ErrMalformedRecipientInfo)
	}

	var pwri passwordRecipientInfo
	if _, err := asn1.Unmarshal(recipientInfos[0].Bytes, &pwri); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecipientInfo, err)
	}
	if !pwri.KeyDerivationAlgorithm.Algorithm.Equal(OIDWrapKDF) {
		return nil, fmt.Errorf("%w: unexpected key derivation algorithm", ErrMalformedRecipientInfo)
	}
	if !pwri.KeyEncryptionAlgorithm.Algorithm.Equal(OIDAes256Wrap) {
		return nil, fmt.Errorf("%w: unexpected key encryption algorithm", ErrMalformedRecipientInfo)
	}

	macKey, err := aesKeyUnwrap(p.kek, pwri.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap MAC key: %w", err)
	}
	return macKey, nil
}

func (p *Producer) validateAuthAttrs(authData authenticatedData) error {
	var contentTypeOK, messageDigestOK, protectionOK bool

	rest := authData.AuthAttrs.Bytes
	for len(rest) > 0 {
		var attr attribute
		var err error
		rest, err = asn1.Unmarshal(rest, &attr)
		if err != nil {
			return fmt.Errorf("failed to parse authenticated attribute: %w", err)
		}

		switch {
		case attr.Type.Equal(OIDContentType):
			var oid asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(attr.Values.Bytes, &oid); err != nil {
				return fmt.Errorf("failed to parse content type attribute: %w", err)
			}
			if !oid.Equal(OIDIntegrityInfo) {
				return fmt.Errorf("%w: unexpected content type attribute", ErrValidation)
			}
			contentTypeOK = true

		case attr.Type.Equal(OIDMessageDigest):
			var digest []byte
			if _, err := asn1.Unmarshal(attr.Values.Bytes, &digest); err != nil {
				return fmt.Errorf("failed to parse message digest attribute: %w", err)
			}
			h, err := p.NewHash()
			if err != nil {
				return err
			}
			h.Write(authData.EncapContentInfo.Content)
			if !bytes.Equal(digest, h.Sum(nil)) {
				return fmt.Errorf("%w: message digest mismatch", ErrValidation)
			}
			messageDigestOK = true

		case attr.Type.Equal(OIDAlgorithmProtection):
			protectionOK = true
		}
	}

	if !contentTypeOK {
		return fmt.Errorf("%w: missing content type attribute", ErrValidation)
	}
	if !messageDigestOK {
		return fmt.Errorf("%w: missing message digest attribute", ErrValidation)
	}
	if !protectionOK {
		return fmt.Errorf("%w: missing algorithm protection attribute", ErrValidation)
	}
	return nil
}

func (p *Producer) validateIntegrityInfo(eci encapsulatedContentInfo, documentDigest, signatureDigest []byte) error {
	if !eci.ContentType.Equal(OIDIntegrityInfo) {
		return fmt.Errorf("%w: unexpected encapsulated content type", ErrValidation)
	}

	var info IntegrityInfo
	if _, err := asn1.Unmarshal(eci.Content, &info); err != nil {
		return fmt.Errorf("failed to parse integrity info: %w", err)
	}

	if !bytes.Equal(info.DataDigest, documentDigest) {
		return ErrDigestMismatch
	}

	if signatureDigest != nil {
		if info.SignatureDigest == nil {
			return fmt.Errorf("%w: token carries no signature digest", ErrValidation)
		}
		if !bytes.Equal(info.SignatureDigest, signatureDigest) {
			return fmt.Errorf("%w: signature digest mismatch", ErrValidation)
		}
	} else if info.SignatureDigest != nil {
		return fmt.Errorf("%w: token carries an unexpected signature digest", ErrValidation)
	}

	return nil
}
