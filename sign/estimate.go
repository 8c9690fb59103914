package sign

// Reservation sizing for the signature content placeholder. The gap
// cannot grow once the placeholders are serialized, so the estimate
// errs on the large side for every piece of material that will end up
// in the container.
const (
	// defaultEstimatedSize is the base reservation covering a detached
	// container with its certificates and signed attributes.
	defaultEstimatedSize = 8192

	// ocspReservedSize is added once when OCSP responses are embedded.
	ocspReservedSize = 4192

	// crlEntryOverhead pads each embedded CRL for its encoding inside
	// the archival structure.
	crlEntryOverhead = 10

	// defaultTimestampSize is assumed for a TSA token when no better
	// estimate is available.
	defaultTimestampSize = 4096

	// timestampOverhead covers the unsigned attribute wrapping around
	// an embedded timestamp token.
	timestampOverhead = 96

	// macReservedSize is added when the pass attaches an integrity
	// token to the container.
	macReservedSize = 2048

	// baseRawSignatureSize is the raw signature size already covered by
	// the base reservation. Keys producing larger signatures grow the
	// estimate by the difference.
	baseRawSignatureSize = 512
)

// timestampEnabled reports whether the pass will obtain an RFC 3161
// token, through either the HTTP client or a caller supplied function.
func (context *SignContext) timestampEnabled() bool {
	return context.SignData.TSA.URL != "" || context.SignData.TimestampFunction != nil
}

// timestampSizeEstimate returns the decoded byte size assumed for a
// token, the caller supplied estimate or the built in default.
func (context *SignContext) timestampSizeEstimate() uint32 {
	if context.SignData.TimestampSizeEstimate > 0 {
		return context.SignData.TimestampSizeEstimate
	}
	return defaultTimestampSize
}

// estimateContainerSize computes the decoded byte reservation for the
// signature content placeholder from the material that will go into
// the container. Every addition only ever grows the estimate.
func (context *SignContext) estimateContainerSize() uint32 {
	if context.SignData.Signature.CertType == TimeStampSignature {
		// A document timestamp's content is the raw token.
		estimated := context.timestampSizeEstimate() + timestampOverhead
		if context.SignData.MAC != nil {
			estimated += macReservedSize
		}
		return estimated
	}

	estimated := uint32(defaultEstimatedSize)

	if cert := context.SignData.Certificate; cert != nil {
		if size, err := PublicKeySignatureSize(cert.PublicKey); err == nil && size > baseRawSignatureSize {
			estimated += uint32(size - baseRawSignatureSize)
		}
	}

	for _, crl := range context.SignData.RevocationData.CRL {
		estimated += uint32(len(crl.FullBytes)) + crlEntryOverhead
	}
	if len(context.SignData.RevocationData.OCSP) > 0 {
		estimated += ocspReservedSize
	}
	if context.timestampEnabled() {
		estimated += context.timestampSizeEstimate() + timestampOverhead
	}
	if context.SignData.MAC != nil {
		estimated += macReservedSize
	}

	return estimated
}
