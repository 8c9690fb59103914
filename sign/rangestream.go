package sign

import (
	"fmt"
	"io"
)

// rangeReader streams the covered spans of a byte range descriptor as
// one continuous reader. The reserved gap bytes between the spans are
// never surfaced, so hashing the reader yields the digest the byte
// range commits to.
type rangeReader struct {
	src    io.ReaderAt
	ranges []int64

	index  int
	offset int64
	remain int64
}

// newRangeReader validates the descriptor and returns a reader over
// the covered spans of src. A source that ends before the last span is
// exhausted surfaces io.ErrUnexpectedEOF instead of a silent short
// stream.
func newRangeReader(src io.ReaderAt, ranges []int64) (*rangeReader, error) {
	if len(ranges) == 0 || len(ranges)%2 != 0 {
		return nil, fmt.Errorf("byte range must hold offset and length pairs, got %d values", len(ranges))
	}
	for i := 0; i < len(ranges); i += 2 {
		if ranges[i] < 0 || ranges[i+1] < 0 {
			return nil, fmt.Errorf("byte range contains negative values: %v", ranges)
		}
	}
	return &rangeReader{src: src, ranges: ranges}, nil
}

func (r *rangeReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for r.remain == 0 {
		if 2*r.index >= len(r.ranges) {
			return 0, io.EOF
		}
		r.offset = r.ranges[2*r.index]
		r.remain = r.ranges[2*r.index+1]
		r.index++
	}

	if int64(len(p)) > r.remain {
		p = p[:r.remain]
	}

	n, err := r.src.ReadAt(p, r.offset)
	r.offset += int64(n)
	r.remain -= int64(n)

	if err == io.EOF {
		if r.remain > 0 {
			return n, io.ErrUnexpectedEOF
		}
		err = nil
	}
	return n, err
}

// totalRangeLength sums the covered span lengths of a descriptor.
func totalRangeLength(ranges []int64) int64 {
	var n int64
	for i := 1; i < len(ranges); i += 2 {
		n += ranges[i]
	}
	return n
}

// RangeReader returns a reader over the bytes the signature digest
// covers. It is only available between PreClose and Close, when the
// placeholders are in place and the byte range has been patched.
func (context *SignContext) RangeReader() (io.Reader, error) {
	if !context.preClosed {
		return nil, ErrNotPreClosed
	}
	if context.closed {
		return nil, ErrAlreadyClosed
	}
	return newRangeReader(context.output, context.ByteRangeValues)
}

// Digest hashes the covered byte ranges with the pass's digest
// algorithm.
func (context *SignContext) Digest() ([]byte, error) {
	reader, err := context.RangeReader()
	if err != nil {
		return nil, err
	}

	if !context.SignData.DigestAlgorithm.Available() {
		return nil, fmt.Errorf("digest algorithm %s is not linked into the binary", context.SignData.DigestAlgorithm)
	}

	h := context.SignData.DigestAlgorithm.New()
	if _, err := io.Copy(h, reader); err != nil {
		return nil, fmt.Errorf("failed to hash byte ranges: %w", err)
	}
	return h.Sum(nil), nil
}
