package sign

import (
	"errors"
	"fmt"
	"sort"
)

// Reservation keys used by every signing pass. Additional keys come
// from SignData.ExtraSlots.
const (
	contentsSlot  = "Contents"
	byteRangeSlot = "ByteRange"
)

// byteRangeSlotWidth is the fixed serialized width of the byte range
// descriptor value. The patched descriptor is space padded to exactly
// this many bytes so patching never moves later offsets.
const byteRangeSlotWidth = 80

// reservation is a named placeholder in the serialized output. Its
// bytes are either excluded from the signed range or patched in place
// after serialization.
type reservation struct {
	key    string
	length int64
	offset int64
	marked bool
}

// reservationSession tracks the placeholders of one signing pass
// between its prepare and close halves. All bookkeeping lives on the
// session so two concurrent passes over the same input cannot observe
// each other.
type reservationSession struct {
	reservations map[string]*reservation
	order        []string
}

func newReservationSession() *reservationSession {
	return &reservationSession{reservations: make(map[string]*reservation)}
}

// reserve registers a placeholder that will occupy length bytes in the
// serialized output.
func (s *reservationSession) reserve(key string, length int64) error {
	if key == "" {
		return errors.New("reservation key must not be empty")
	}
	if length < 0 {
		return fmt.Errorf("reservation %q has negative length", key)
	}
	if _, ok := s.reservations[key]; ok {
		return fmt.Errorf("duplicate reservation %q", key)
	}
	s.reservations[key] = &reservation{key: key, length: length}
	s.order = append(s.order, key)
	return nil
}

// mark records the absolute offset at which the placeholder's first
// byte was serialized. Every reservation must be marked exactly once
// before the byte range can be computed.
func (s *reservationSession) mark(key string, offset int64) error {
	r, ok := s.reservations[key]
	if !ok {
		return fmt.Errorf("mark for unreserved key %q", key)
	}
	if r.marked {
		return fmt.Errorf("reservation %q marked twice", key)
	}
	if offset < 0 {
		return fmt.Errorf("reservation %q marked at negative offset", key)
	}
	r.offset = offset
	r.marked = true
	return nil
}

// get returns the reservation registered under key.
func (s *reservationSession) get(key string) (*reservation, bool) {
	r, ok := s.reservations[key]
	return r, ok
}

// byteRange computes the descriptor of file spans covered by the
// signature digest: alternating start offset and length pairs. Every
// marked placeholder is excluded from coverage except the descriptor's
// own slot, which is patched with final values before digesting and so
// stays covered.
func (s *reservationSession) byteRange(fileSize int64) ([]int64, error) {
	type span struct {
		start, end int64
	}

	var gaps []span
	for _, key := range s.order {
		if key == byteRangeSlot {
			continue
		}
		r := s.reservations[key]
		if !r.marked {
			return nil, fmt.Errorf("reservation %q was never serialized", key)
		}
		if r.offset+r.length > fileSize {
			return nil, fmt.Errorf("reservation %q ends past the end of the file", key)
		}
		gaps = append(gaps, span{start: r.offset, end: r.offset + r.length})
	}
	if len(gaps) == 0 {
		return nil, errors.New("no content reservation to exclude")
	}

	sort.SliceStable(gaps, func(i, j int) bool { return gaps[i].start < gaps[j].start })

	ranges := make([]int64, 0, 2*len(gaps)+2)
	var pos int64
	for _, g := range gaps {
		if g.start < pos {
			return nil, errors.New("reservations overlap")
		}
		ranges = append(ranges, pos, g.start-pos)
		pos = g.end
	}
	ranges = append(ranges, pos, fileSize-pos)

	return ranges, nil
}
