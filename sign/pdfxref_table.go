package sign

import (
	"fmt"
)

// writeIncrXrefTable writes the incremental cross-reference table for
// the update pass. Every updated object gets its own one entry
// subsection, the new objects share a contiguous one.
func (context *SignContext) writeIncrXrefTable() error {
	if _, err := context.output.Write([]byte("xref\n")); err != nil {
		return fmt.Errorf("failed to write incremental xref header: %w", err)
	}

	for _, entry := range context.updatedXrefEntries {
		subsection := fmt.Sprintf("%d %d\n", entry.ID, 1)
		if _, err := context.output.Write([]byte(subsection)); err != nil {
			return fmt.Errorf("failed to write updated xref subsection: %w", err)
		}

		xrefLine := fmt.Sprintf("%010d 00000 n\r\n", entry.Offset)
		if _, err := context.output.Write([]byte(xrefLine)); err != nil {
			return fmt.Errorf("failed to write updated xref entry: %w", err)
		}
	}

	subsection := fmt.Sprintf("%d %d\n", context.lastXrefID+1, len(context.newXrefEntries))
	if _, err := context.output.Write([]byte(subsection)); err != nil {
		return fmt.Errorf("failed to write xref subsection header: %w", err)
	}

	for _, entry := range context.newXrefEntries {
		xrefLine := fmt.Sprintf("%010d 00000 n\r\n", entry.Offset)
		if _, err := context.output.Write([]byte(xrefLine)); err != nil {
			return fmt.Errorf("failed to write xref entry: %w", err)
		}
	}

	return nil
}
