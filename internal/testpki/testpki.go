// Package testpki builds throwaway CA hierarchies and the HTTP
// endpoints (CRL, OCSP, issuing certificate) the signing tests point
// their certificates at.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

// KeyProfile selects the key algorithm and size used for every
// certificate in the hierarchy.
type KeyProfile string

const (
	RSA_2048   KeyProfile = "RSA_2048"
	RSA_3072   KeyProfile = "RSA_3072"
	RSA_4096   KeyProfile = "RSA_4096"
	ECDSA_P256 KeyProfile = "ECDSA_P256"
	ECDSA_P384 KeyProfile = "ECDSA_P384"
	ECDSA_P521 KeyProfile = "ECDSA_P521"
)

type TestPKIConfig struct {
	Profile         KeyProfile
	IntermediateCAs int
}

// TestPKI manages a temporary PKI hierarchy for one test.
type TestPKI struct {
	T                 *testing.T
	RootKey           crypto.Signer
	RootCert          *x509.Certificate
	IntermediateKeys  []crypto.Signer
	IntermediateCerts []*x509.Certificate
	Server            *httptest.Server
	CRLBytes          []byte

	// RevokedSerial is the serial number the served CRL lists as
	// revoked. Set by StartCRLServer.
	RevokedSerial *big.Int

	CRLRequests  int
	OCSPRequests int
	FailOCSP     bool
	Profile      KeyProfile
}

// NewTestPKI creates a root CA with one intermediate under it.
func NewTestPKI(t *testing.T) *TestPKI {
	return NewTestPKIWithConfig(t, TestPKIConfig{
		Profile:         ECDSA_P384,
		IntermediateCAs: 1,
	})
}

func NewTestPKIWithConfig(t *testing.T, config TestPKIConfig) *TestPKI {
	rootKey := GenerateKey(t, config.Profile)

	rootTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "pdfseal Test Root CA",
			Organization: []string{"pdfseal"},
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}

	rootBytes, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, rootKey.Public(), rootKey)
	if err != nil {
		Fail(t, "failed to create root cert: %v", err)
	}
	rootCert, err := x509.ParseCertificate(rootBytes)
	if err != nil {
		Fail(t, "failed to parse root cert: %v", err)
	}

	var intermediateKeys []crypto.Signer
	var intermediateCerts []*x509.Certificate

	parentKey := rootKey
	parentCert := rootCert

	for i := 0; i < config.IntermediateCAs; i++ {
		key := GenerateKey(t, config.Profile)
		template := &x509.Certificate{
			SerialNumber: big.NewInt(int64(i + 2)),
			Subject: pkix.Name{
				CommonName:   fmt.Sprintf("pdfseal Test Intermediate CA %d", i+1),
				Organization: []string{"pdfseal"},
			},
			NotBefore:             time.Now().Add(-1 * time.Hour),
			NotAfter:              time.Now().Add(24 * time.Hour),
			KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
			BasicConstraintsValid: true,
			IsCA:                  true,
			MaxPathLen:            0,
			SubjectKeyId:          []byte{5, 6, 7, 8, byte(i)},
			AuthorityKeyId:        parentCert.SubjectKeyId,
		}

		certBytes, err := x509.CreateCertificate(rand.Reader, template, parentCert, key.Public(), parentKey)
		if err != nil {
			Fail(t, "failed to create intermediate cert %d: %v", i, err)
		}
		cert, err := x509.ParseCertificate(certBytes)
		if err != nil {
			Fail(t, "failed to parse intermediate cert %d: %v", i, err)
		}

		intermediateKeys = append(intermediateKeys, key)
		intermediateCerts = append(intermediateCerts, cert)

		parentKey = key
		parentCert = cert
	}

	return &TestPKI{
		T:                 t,
		RootKey:           rootKey,
		RootCert:          rootCert,
		IntermediateKeys:  intermediateKeys,
		IntermediateCerts: intermediateCerts,
		Profile:           config.Profile,
	}
}

// issuer returns the CA that signs leaf certificates, the deepest
// intermediate when one exists.
func (p *TestPKI) issuer() (*x509.Certificate, crypto.Signer) {
	if len(p.IntermediateCerts) > 0 {
		last := len(p.IntermediateCerts) - 1
		return p.IntermediateCerts[last], p.IntermediateKeys[last]
	}
	return p.RootCert, p.RootKey
}

// StartCRLServer signs a CRL with one revoked serial and starts an
// HTTP server answering CRL, OCSP and CA certificate requests. Leaves
// issued afterwards carry the server's distribution point URLs.
func (p *TestPKI) StartCRLServer() {
	issuerCert, issuerKey := p.issuer()

	p.RevokedSerial = big.NewInt(9999)
	crlTemplate := &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(24 * time.Hour),
		RevokedCertificates: []pkix.RevokedCertificate{
			{
				SerialNumber:   p.RevokedSerial,
				RevocationTime: time.Now(),
			},
		},
	}

	crlBytes, err := x509.CreateRevocationList(rand.Reader, crlTemplate, issuerCert, issuerKey)
	if err != nil {
		Fail(p.T, "failed to create CRL: %v", err)
	}
	p.CRLBytes = crlBytes

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/crl":
			p.CRLRequests++
			w.Header().Set("Content-Type", "application/pkix-crl")
			_, _ = w.Write(p.CRLBytes)

		case strings.HasPrefix(r.URL.Path, "/ocsp"):
			p.OCSPRequests++
			if p.FailOCSP {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}

			parts := strings.Split(r.URL.Path, "/")
			reqBytes, err := base64.StdEncoding.DecodeString(parts[len(parts)-1])
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			ocspReq, err := ocsp.ParseRequest(reqBytes)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}

			now := time.Now()
			template := ocsp.Response{
				Status:       ocsp.Good,
				SerialNumber: ocspReq.SerialNumber,
				ThisUpdate:   now.Add(-1 * time.Hour),
				NextUpdate:   now.Add(24 * time.Hour),
			}
			respBytes, err := ocsp.CreateResponse(issuerCert, issuerCert, template, issuerKey)
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/ocsp-response")
			_, _ = w.Write(respBytes)

		case strings.HasPrefix(r.URL.Path, "/ca"):
			w.Header().Set("Content-Type", "application/x-x509-ca-cert")
			_, _ = w.Write(issuerCert.Raw)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// IssueLeaf issues a signing certificate from the deepest CA. The CRL
// and OCSP URLs are only included while the endpoint server runs, so
// tests without network expectations can issue plain leaves.
func (p *TestPKI) IssueLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	serialNumber, _ := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	return p.issueLeafWithSerial(commonName, serialNumber)
}

// IssueRevokedLeaf issues a leaf whose serial the served CRL lists as
// revoked. StartCRLServer must have run.
func (p *TestPKI) IssueRevokedLeaf(commonName string) (crypto.Signer, *x509.Certificate) {
	if p.RevokedSerial == nil {
		Fail(p.T, "StartCRLServer() must run before IssueRevokedLeaf")
	}
	return p.issueLeafWithSerial(commonName, p.RevokedSerial)
}

func (p *TestPKI) issueLeafWithSerial(commonName string, serial *big.Int) (crypto.Signer, *x509.Certificate) {
	priv := GenerateKey(p.T, p.Profile)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"pdfseal"},
		},
		NotBefore: time.Now().Add(-1 * time.Hour),
		NotAfter:  time.Now().Add(1 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
		// id-kp-documentSigning
		UnknownExtKeyUsage: []asn1.ObjectIdentifier{{1, 3, 6, 1, 5, 5, 7, 3, 36}},
	}

	if p.Server != nil {
		template.CRLDistributionPoints = []string{p.Server.URL + "/crl"}
		template.OCSPServer = []string{p.Server.URL + "/ocsp"}
		template.IssuingCertificateURL = []string{p.Server.URL + "/ca"}
	}

	issuerCert, issuerKey := p.issuer()

	certBytes, err := x509.CreateCertificate(rand.Reader, template, issuerCert, priv.Public(), issuerKey)
	if err != nil {
		Fail(p.T, "failed to issue leaf cert: %v", err)
	}
	leafCert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		Fail(p.T, "failed to parse leaf cert: %v", err)
	}

	return priv, leafCert
}

// Chain returns the CA certificates for a leaf, deepest intermediate
// first, root last.
func (p *TestPKI) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i := len(p.IntermediateCerts) - 1; i >= 0; i-- {
		chain = append(chain, p.IntermediateCerts[i])
	}
	chain = append(chain, p.RootCert)
	return chain
}

// Close stops the endpoint server.
func (p *TestPKI) Close() {
	if p.Server != nil {
		p.Server.Close()
	}
}

func Fail(t *testing.T, format string, args ...interface{}) {
	if t != nil {
		t.Fatalf(format, args...)
	} else {
		log.Fatalf(format, args...)
	}
}

func GenerateKey(t *testing.T, profile KeyProfile) crypto.Signer {
	switch profile {
	case RSA_2048:
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			Fail(t, "failed to generate RSA 2048 key: %v", err)
		}
		return k
	case RSA_3072:
		k, err := rsa.GenerateKey(rand.Reader, 3072)
		if err != nil {
			Fail(t, "failed to generate RSA 3072 key: %v", err)
		}
		return k
	case RSA_4096:
		k, err := rsa.GenerateKey(rand.Reader, 4096)
		if err != nil {
			Fail(t, "failed to generate RSA 4096 key: %v", err)
		}
		return k
	case ECDSA_P256:
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-256 key: %v", err)
		}
		return k
	case ECDSA_P384:
		k, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-384 key: %v", err)
		}
		return k
	case ECDSA_P521:
		k, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
		if err != nil {
			Fail(t, "failed to generate P-521 key: %v", err)
		}
		return k
	default:
		Fail(t, "unknown key profile: %s", profile)
		return nil
	}
}
