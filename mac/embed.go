package mac

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"
)

var (
	oidSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
)

// signedData mirrors the CMS SignedData fields the embedder rewrites,
// keeping everything it does not touch as raw bytes so the signature
// over the signed attributes stays intact.
type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue
	EncapContentInfo asn1.RawValue
	Certificates     asn1.RawValue   `asn1:"optional,tag:0"`
	CRLs             asn1.RawValue   `asn1:"optional,tag:1"`
	SignerInfos      []asn1.RawValue `asn1:"set"`
}

type signerInfo struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    asn1.RawValue
	SignedAttrs        asn1.RawValue `asn1:"optional,tag:0"`
	SignatureAlgorithm asn1.RawValue
	Signature          []byte
	UnsignedAttrs      asn1.RawValue `asn1:"optional,tag:1"`
}

type issuerAndSerial struct {
	Issuer       asn1.RawValue
	SerialNumber int
}

// Embedder attaches integrity tokens to signature containers.
type Embedder struct {
	Producer TokenProducer
}

// AttachToContainer returns the container with an integrity token
// attached as the PdfMacData unsigned attribute of its first signer
// info. The token binds the document stream and the container's
// signature value; a token already present is replaced, so the result
// always carries exactly one.
//
// An all zero container, the placeholder of a prepared but uncompleted
// signature, is replaced by a stub container with an empty signature
// value, letting callers measure the token before the real signature
// exists. A producer that yields no token leaves the container as it
// was.
func (e *Embedder) AttachToContainer(container []byte, doc io.Reader) ([]byte, error) {
	if e.Producer == nil {
		return nil, errors.New("no token producer configured")
	}
	if doc == nil {
		return nil, errors.New("no document stream to bind the token to")
	}

	docHash, err := e.Producer.NewHash()
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(docHash, doc); err != nil {
		return nil, fmt.Errorf("failed to hash document stream: %w", err)
	}
	documentDigest := docHash.Sum(nil)

	var sd signedData
	var si signerInfo
	if isAllZero(container) {
		sd, si = stubSignedData()
	} else {
		sd, si, err = parseContainer(container)
		if err != nil {
			return nil, err
		}
	}

	sigHash, err := e.Producer.NewHash()
	if err != nil {
		return nil, err
	}
	sigHash.Write(si.Signature)

	token, err := e.Producer.Token(documentDigest, sigHash.Sum(nil))
	if err != nil {
		return nil, err
	}
	if len(token) == 0 {
		// A producer that declines to issue a token leaves the
		// container as it was.
		return container, nil
	}

	si.UnsignedAttrs, err = withMacAttribute(si.UnsignedAttrs, token)
	if err != nil {
		return nil, err
	}

	siBytes, err := asn1.Marshal(si)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signer info: %w", err)
	}
	if len(sd.SignerInfos) == 0 {
		sd.SignerInfos = []asn1.RawValue{{FullBytes: siBytes}}
	} else {
		sd.SignerInfos[0] = asn1.RawValue{FullBytes: siBytes}
	}

	sdBytes, err := asn1.Marshal(sd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signed data: %w", err)
	}
	return asn1.Marshal(contentInfo{
		ContentType: oidSignedData,
		Content:     asn1.RawValue{FullBytes: sdBytes},
	})
}

func parseContainer(container []byte) (signedData, signerInfo, error) {
	var sd signedData
	var si signerInfo

	var ci contentInfo
	if _, err := asn1.Unmarshal(container, &ci); err != nil {
		return sd, si, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return sd, si, fmt.Errorf("%w: content type is not SignedData", ErrMalformedContainer)
	}
	if _, err := asn1.Unmarshal(ci.Content.FullBytes, &sd); err != nil {
		return sd, si, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	if len(sd.SignerInfos) == 0 {
		return sd, si, ErrNoSignerInfo
	}
	if _, err := asn1.Unmarshal(sd.SignerInfos[0].FullBytes, &si); err != nil {
		return sd, si, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}
	return sd, si, nil
}

// stubSignedData builds the shell used for placeholder containers: one
// signer info with an empty signature value over no content.
func stubSignedData() (signedData, signerInfo) {
	digestAlg := mustMarshal(algorithmIdentifier{Algorithm: digestOIDs[crypto.SHA256]})

	si := signerInfo{
		Version: 1,
		SID: asn1.RawValue{FullBytes: mustMarshal(issuerAndSerial{
			Issuer: asn1.RawValue{FullBytes: []byte{0x30, 0x00}},
		})},
		DigestAlgorithm:    asn1.RawValue{FullBytes: digestAlg},
		SignatureAlgorithm: asn1.RawValue{FullBytes: mustMarshal(algorithmIdentifier{Algorithm: oidRSAEncryption})},
		Signature:          []byte{},
	}

	sd := signedData{
		Version: 1,
		DigestAlgorithms: asn1.RawValue{FullBytes: mustMarshal(asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSet,
			IsCompound: true,
			Bytes:      digestAlg,
		})},
		EncapContentInfo: asn1.RawValue{FullBytes: mustMarshal(encapsulatedContentInfo{
			ContentType: oidData,
		})},
	}
	return sd, si
}

// withMacAttribute returns the unsigned attribute list with the token
// as its only PdfMacData entry, preserving unrelated attributes such
// as embedded timestamps.
func withMacAttribute(existing asn1.RawValue, token []byte) (asn1.RawValue, error) {
	var attrs []attribute

	rest := existing.Bytes
	for len(rest) > 0 {
		var attr attribute
		var err error
		rest, err = asn1.Unmarshal(rest, &attr)
		if err != nil {
			return asn1.RawValue{}, fmt.Errorf("failed to parse unsigned attribute: %w", err)
		}
		if attr.Type.Equal(OIDMacData) {
			continue
		}
		attrs = append(attrs, attr)
	}

	attrs = append(attrs, attribute{Type: OIDMacData, Values: attributeValue(token)})

	_, tagged, err := encodeAttributeSet(attrs, 1)
	if err != nil {
		return asn1.RawValue{}, err
	}
	return tagged, nil
}

func isAllZero(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
