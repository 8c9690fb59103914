package sign

import (
	"crypto"
	"errors"
	"io"
)

// SignerFunc adapts a signing callback into the crypto.Signer the
// signing pass expects. It suits remote services such as HSMs or cloud
// signing APIs where the private key never leaves the backend, the
// callback receives the digest to sign and the hash it was computed
// with.
//
// Usage:
//
//	signer := sign.NewSignerFunc(cert.PublicKey, func(digest []byte, hash crypto.Hash) ([]byte, error) {
//	    return remote.Sign(digest, hash)
//	})
func NewSignerFunc(public crypto.PublicKey, fn func(digest []byte, hash crypto.Hash) ([]byte, error)) crypto.Signer {
	return &signerFunc{public: public, fn: fn}
}

type signerFunc struct {
	public crypto.PublicKey
	fn     func(digest []byte, hash crypto.Hash) ([]byte, error)
}

func (s *signerFunc) Public() crypto.PublicKey {
	return s.public
}

func (s *signerFunc) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if s.fn == nil {
		return nil, errors.New("no signing callback configured")
	}
	return s.fn(digest, opts.HashFunc())
}
