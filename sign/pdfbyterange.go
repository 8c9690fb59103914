package sign

import (
	"fmt"
	"strconv"
	"strings"
)

// updateByteRange computes the final byte range from the reserved gaps,
// patches the descriptor slot in place and remembers the values for the
// signing stage. The serialized descriptor is space padded to the width
// reserved for it so no byte after the slot moves.
func (context *SignContext) updateByteRange() error {
	size, err := context.output.Size()
	if err != nil {
		return fmt.Errorf("failed to measure output: %w", err)
	}

	byteRange, err := context.session.byteRange(size)
	if err != nil {
		return fmt.Errorf("failed to compute byte range: %w", err)
	}
	context.ByteRangeValues = byteRange

	var descriptor strings.Builder
	descriptor.WriteString("[")
	for i, value := range byteRange {
		if i > 0 {
			descriptor.WriteString(" ")
		}
		descriptor.WriteString(strconv.FormatInt(value, 10))
	}
	descriptor.WriteString("]")

	if descriptor.Len() > byteRangeSlotWidth {
		return fmt.Errorf("%w: byte range descriptor needs %d bytes, slot holds %d",
			ErrInsufficientSpace, descriptor.Len(), byteRangeSlotWidth)
	}
	padded := descriptor.String() + strings.Repeat(" ", byteRangeSlotWidth-descriptor.Len())

	slot, ok := context.session.get(byteRangeSlot)
	if !ok {
		return fmt.Errorf("byte range slot was never reserved")
	}

	if err := context.writeAt([]byte(padded), slot.offset); err != nil {
		return fmt.Errorf("failed to patch byte range: %w", err)
	}

	return nil
}
