package sign

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/digitorus/pkcs7"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// fetchRevocationData walks the first certificate chain and lets the
// configured revocation function archive status material for each link.
// The last certificate has no known issuer and is offered with nil.
func (context *SignContext) fetchRevocationData() error {
	if context.SignData.RevocationFunction == nil || len(context.SignData.CertificateChains) == 0 {
		return nil
	}

	certificate_chain := context.SignData.CertificateChains[0]
	for i, certificate := range certificate_chain {
		var issuer *x509.Certificate
		if i < len(certificate_chain)-1 {
			issuer = certificate_chain[i+1]
		}
		if err := context.SignData.RevocationFunction(certificate, issuer, &context.SignData.RevocationData); err != nil {
			return err
		}
	}

	return nil
}

func (context *SignContext) createSigningCertificateAttribute() (*pkcs7.Attribute, error) {
	hash := context.SignData.DigestAlgorithm.New()
	hash.Write(context.SignData.Certificate.Raw)

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // []ESSCertID, []ESSCertIDv2
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID, ESSCertIDv2
				if context.SignData.DigestAlgorithm.HashFunc() != crypto.SHA1 &&
					context.SignData.DigestAlgorithm.HashFunc() != crypto.SHA256 { // default SHA-256
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
						b.AddASN1ObjectIdentifier(getOIDFromHashAlgorithm(context.SignData.DigestAlgorithm))
					})
				}
				b.AddASN1OctetString(hash.Sum(nil)) // certHash
			})
		})
	})

	sse, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	signingCertificate := pkcs7.Attribute{
		Type:  asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47}, // SigningCertificateV2
		Value: asn1.RawValue{FullBytes: sse},
	}
	if context.SignData.DigestAlgorithm.HashFunc() == crypto.SHA1 {
		signingCertificate.Type = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 12} // SigningCertificate
	}
	return &signingCertificate, nil
}

// createSignaturePolicyAttribute encodes the committed signature policy
// as an id-aa-ets-sigPolicyId signed attribute.
func (context *SignContext) createSignaturePolicyAttribute() (*pkcs7.Attribute, error) {
	policy := context.SignData.SignaturePolicy

	policyOID, err := parseOID(policy.OID)
	if err != nil {
		return nil, fmt.Errorf("invalid signature policy identifier %q: %w", policy.OID, err)
	}

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // SignaturePolicyId
		b.AddASN1ObjectIdentifier(policyOID)
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // OtherHashAlgAndValue
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) { // AlgorithmIdentifier
				b.AddASN1ObjectIdentifier(getOIDFromHashAlgorithm(policy.DigestAlgorithm))
			})
			b.AddASN1OctetString(policy.Digest)
		})
	})

	spe, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return &pkcs7.Attribute{
		Type:  asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 15}, // id-aa-ets-sigPolicyId
		Value: asn1.RawValue{FullBytes: spe},
	}, nil
}

func parseOID(s string) (asn1.ObjectIdentifier, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("need at least two components")
	}

	oid := make(asn1.ObjectIdentifier, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("component %q is not a non-negative integer", part)
		}
		oid = append(oid, n)
	}
	return oid, nil
}

// createSignature assembles the CMS container over the byte range that
// was frozen by the preparation pass.
func (context *SignContext) createSignature() ([]byte, error) {
	// The covered spans have to be in memory for the pkcs7 signer.
	range_reader, err := context.RangeReader()
	if err != nil {
		return nil, fmt.Errorf("read signed ranges: %w", err)
	}
	sign_content, err := io.ReadAll(range_reader)
	if err != nil {
		return nil, fmt.Errorf("read signed ranges: %w", err)
	}

	signed_data, err := pkcs7.NewSignedData(sign_content)
	if err != nil {
		return nil, fmt.Errorf("new signed data: %w", err)
	}

	signed_data.SetDigestAlgorithm(getOIDFromHashAlgorithm(context.SignData.DigestAlgorithm))
	signingCertificate, err := context.createSigningCertificateAttribute()
	if err != nil {
		return nil, fmt.Errorf("new signed data: %w", err)
	}

	signer_config := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{
			{
				Type:  asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}, // adbe revocation archival
				Value: context.SignData.RevocationData,
			},
			*signingCertificate,
		},
	}

	if context.SignData.SignaturePolicy != nil {
		policy, err := context.createSignaturePolicyAttribute()
		if err != nil {
			return nil, err
		}
		signer_config.ExtraSignedAttributes = append(signer_config.ExtraSignedAttributes, *policy)
	}

	// Add the first certificate chain without our own certificate.
	var certificate_chain []*x509.Certificate
	if len(context.SignData.CertificateChains) > 0 && len(context.SignData.CertificateChains[0]) > 1 {
		certificate_chain = context.SignData.CertificateChains[0][1:]
	}

	if err := signed_data.AddSignerChain(context.SignData.Certificate, context.SignData.Signer, certificate_chain, signer_config); err != nil {
		return nil, fmt.Errorf("add signer chain: %w", err)
	}

	// The document carries the content, the container must not.
	signed_data.Detach()

	if context.timestampEnabled() {
		signature_data := signed_data.GetSignedData()

		token, err := context.obtainTimestampToken(signature_data.SignerInfos[0].EncryptedDigest)
		if err != nil {
			return nil, err
		}

		timestamp_attribute := pkcs7.Attribute{
			Type:  asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}, // id-aa-timeStampToken
			Value: asn1.RawValue{FullBytes: token},
		}
		if err := signature_data.SignerInfos[0].SetUnauthenticatedAttributes([]pkcs7.Attribute{timestamp_attribute}); err != nil {
			return nil, err
		}
	}

	return signed_data.Finish()
}
