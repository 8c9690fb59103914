package revocation

import (
	"crypto/x509"
	"encoding/asn1"

	"golang.org/x/crypto/ocsp"
)

// InfoArchival is the Adobe RevocationInfoArchival structure (OID
// 1.2.840.113583.1.1.8) carrying the revocation material for the
// certificates embedded in a signature container. It is placed in the
// signed attributes so the status collected at signing time stays part
// of the signed content.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// CRL contains the raw bytes of one or more DER encoded certificate
// revocation lists, parseable with x509.ParseRevocationList.
type CRL []asn1.RawValue

// OCSP contains the raw bytes of one or more DER encoded OCSP
// responses, parseable with ocsp.ParseResponse.
type OCSP []asn1.RawValue

// Other carries revocation information in a format identified by Type.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}

// AddCRL embeds the raw bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP embeds the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// IsEmpty reports whether no revocation material has been collected.
func (r *InfoArchival) IsEmpty() bool {
	return len(r.CRL) == 0 && len(r.OCSP) == 0 && len(r.Other.Value) == 0
}

// BytesLength returns the total size of the embedded raw entries, used
// when estimating the space a signature container will need.
func (r *InfoArchival) BytesLength() int {
	var n int
	for _, crl := range r.CRL {
		n += len(crl.FullBytes)
	}
	for _, o := range r.OCSP {
		n += len(o.FullBytes)
	}
	return n + len(r.Other.Value)
}

// IsRevoked reports whether any embedded CRL entry or OCSP response
// marks the certificate as revoked. Entries that fail to parse are
// skipped; absence of a status for the certificate reports false.
func (r *InfoArchival) IsRevoked(c *x509.Certificate) bool {
	for _, raw := range r.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber.Cmp(c.SerialNumber) == 0 {
				return true
			}
		}
	}

	for _, raw := range r.OCSP {
		resp, err := ocsp.ParseResponseForCert(raw.FullBytes, c, nil)
		if err != nil {
			continue
		}
		if resp.Status == ocsp.Revoked && resp.SerialNumber.Cmp(c.SerialNumber) == 0 {
			return true
		}
	}

	return false
}
