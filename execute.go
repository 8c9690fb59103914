package pdfseal

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	pdflib "github.com/digitorus/pdf"

	"github.com/vedantmgoyal9/pdfseal/sign"
)

// ErrNothingStaged is returned by Write when no signatures were staged
// on the document.
var ErrNothingStaged = errors.New("no signatures staged")

// Write finalizes the document by executing all staged signatures and
// writes the resulting bytes to the provided writer. Each signature
// becomes its own incremental update; when multiple signatures were
// staged they are applied one after another and only the final
// revision reaches the writer.
func (d *Document) Write(output io.Writer) (*Result, error) {
	if len(d.pendingSigns) == 0 {
		return nil, ErrNothingStaged
	}

	result := &Result{
		Signatures: make([]SignatureInfo, 0, len(d.pendingSigns)),
		Document:   d,
	}

	input := d.readSeeker()
	rdr := d.rdr
	size := d.size

	for i, sb := range d.pendingSigns {
		sign_data, err := sb.signData()
		if err != nil {
			return nil, err
		}

		// Intermediate revisions stay in memory, only the last pass
		// writes to the caller's output.
		var dst io.Writer = output
		var intermediate *bytes.Buffer
		if i < len(d.pendingSigns)-1 {
			intermediate = &bytes.Buffer{}
			dst = intermediate
		}

		if err := sign.Sign(input, dst, rdr, size, sign_data); err != nil {
			return nil, err
		}

		if intermediate != nil {
			data := intermediate.Bytes()
			size = int64(len(data))
			reader := bytes.NewReader(data)
			rdr, err = pdflib.NewReader(reader, size)
			if err != nil {
				return nil, fmt.Errorf("failed to reopen intermediate revision: %w", err)
			}
			input = reader
		}

		result.Signatures = append(result.Signatures, sb.info())
	}

	return result, nil
}

// signData maps the builder onto the engine's signing parameters.
func (sb *SignBuilder) signData() (sign.SignData, error) {
	switch sb.format {
	case PAdES_B_LTA:
		return sign.SignData{}, fmt.Errorf("signature format PAdES_B_LTA is not currently supported")
	case PAdES_B_T:
		if sb.tsa == "" && sb.timestampFunc == nil {
			return sign.SignData{}, fmt.Errorf("PAdES_B_T format requires a Timestamp Authority (TSA) URL")
		}
	}

	sign_data := sign.SignData{
		Signer:                 sb.signer,
		Certificate:            sb.cert,
		CertificateChains:      sb.chains,
		DigestAlgorithm:        sb.digest,
		FieldName:              sb.fieldName,
		EstimatedSignatureSize: sb.estimatedSize,
		TimestampSizeEstimate:  sb.timestampEstimate,
		TimestampFunction:      sb.timestampFunc,
		SignaturePolicy:        sb.policy,
		RevocationFunction:     sb.revocationFunc,
		MAC:                    sb.macEmbedder,
		UseTempFile:            sb.useTempFile,
		CompressLevel:          sb.doc.compressLevel,
	}

	// PAdES baseline levels announce the CAdES encoding in the
	// signature dictionary.
	switch sb.format {
	case PAdES_B, PAdES_B_T, PAdES_B_LT:
		sign_data.Format = sign.CAdESDetached
	}

	// Without a caller supplied function, revocation material is
	// fetched over HTTP from the certificate's distribution points.
	// The baseline levels below LT exclude validation material.
	if sign_data.RevocationFunction == nil && sb.sigType != DocumentTimestamp {
		embed := sb.format != PAdES_B && sb.format != PAdES_B_T
		sign_data.RevocationFunction = sign.NewRevocationFunction(sign.RevocationOptions{
			EmbedOCSP:     embed,
			EmbedCRL:      embed,
			PreferCRL:     sb.preferCRL,
			StopOnSuccess: true, // one valid proof is sufficient
			Cache:         sb.revocationCache,
		})
	}

	name := sb.signerName
	if name == "" && sb.cert != nil {
		name = sb.cert.Subject.CommonName
	}
	sign_data.Signature.Info.Name = name
	sign_data.Signature.Info.Reason = sb.reason
	sign_data.Signature.Info.Location = sb.location
	sign_data.Signature.Info.ContactInfo = sb.contact

	switch sb.sigType {
	case ApprovalSignature:
		sign_data.Signature.CertType = sign.ApprovalSignature
	case CertificationSignature:
		sign_data.Signature.CertType = sign.CertificationSignature
		sign_data.Signature.DocMDPPerm = sign.DocMDPPerm(sb.permission)
	case UsageRightsSignature:
		sign_data.Signature.CertType = sign.UsageRightsSignature
	case DocumentTimestamp:
		sign_data.Signature.CertType = sign.TimeStampSignature
	}
	sign_data.Signature.FieldLock = sb.fieldLock

	if sb.tsa != "" {
		sign_data.TSA = sign.TSA{URL: sb.tsa, Username: sb.tsaUser, Password: sb.tsaPass}
	}

	if sb.visible {
		sign_data.Appearance = sign.Appearance{
			Visible:     true,
			Page:        sb.appPage,
			LowerLeftX:  sb.appX * sb.unit,
			LowerLeftY:  sb.appY * sb.unit,
			UpperRightX: (sb.appX + sb.appWidth) * sb.unit,
			UpperRightY: (sb.appY + sb.appHeight) * sb.unit,
			Renderer:    sb.renderer,
		}
	}

	return sign_data, nil
}

// info describes an applied signature for the write result.
func (sb *SignBuilder) info() SignatureInfo {
	info := SignatureInfo{
		SignerName:  sb.signerName,
		FieldName:   sb.fieldName,
		Reason:      sb.reason,
		Location:    sb.location,
		Contact:     sb.contact,
		SigningTime: time.Now(),
		Format:      sb.format,
	}
	if sb.cert != nil {
		info.Certificate = sb.cert
		if sb.signerName == "" {
			info.SignerName = sb.cert.Subject.CommonName
		}
	}
	return info
}
