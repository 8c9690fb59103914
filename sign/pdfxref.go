package sign

import (
	"bytes"
	"fmt"
	"io"
)

// xrefEntry records one cross reference line of the incremental update.
type xrefEntry struct {
	ID     uint32
	Offset int64
}

// addObject appends an indirect object to the output, allocating the
// next free object number. It returns the allocated number and the
// absolute offset of the object body's first byte.
func (context *SignContext) addObject(object []byte) (uint32, int64, error) {
	if context.lastXrefID == 0 {
		lastXrefID, err := context.getLastObjectIDFromXref()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get last object id: %w", err)
		}
		context.lastXrefID = lastXrefID
	}

	objectID := context.lastXrefID + uint32(len(context.newXrefEntries)) + 1

	size, err := context.output.Size()
	if err != nil {
		return 0, 0, err
	}
	context.newXrefEntries = append(context.newXrefEntries, xrefEntry{
		ID:     objectID,
		Offset: size + 1,
	})

	bodyOffset, err := context.writeObject(objectID, object)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to write object %d: %w", objectID, err)
	}

	return objectID, bodyOffset, nil
}

// updateObject writes a replacement version of an existing object as
// part of the incremental update.
func (context *SignContext) updateObject(id uint32, object []byte) error {
	size, err := context.output.Size()
	if err != nil {
		return err
	}
	context.updatedXrefEntries = append(context.updatedXrefEntries, xrefEntry{
		ID:     id,
		Offset: size + 1,
	})

	if _, err := context.writeObject(id, object); err != nil {
		return fmt.Errorf("failed to write object %d: %w", id, err)
	}

	return nil
}

// writeObject serializes one indirect object, header and footer
// included, and returns the absolute offset of the body's first byte.
func (context *SignContext) writeObject(id uint32, object []byte) (int64, error) {
	if _, err := fmt.Fprintf(context.output, "\n%d 0 obj\n", id); err != nil {
		return 0, fmt.Errorf("failed to write object header: %w", err)
	}

	bodyOffset, err := context.output.Size()
	if err != nil {
		return 0, err
	}

	object = bytes.TrimSpace(object)
	if _, err := context.output.Write(object); err != nil {
		return 0, fmt.Errorf("failed to write object content: %w", err)
	}

	if _, err := context.output.Write([]byte("\nendobj\n")); err != nil {
		return 0, fmt.Errorf("failed to write object footer: %w", err)
	}

	return bodyOffset, nil
}

// getLastObjectIDFromXref returns the highest object number the input
// document's cross reference knows about.
func (context *SignContext) getLastObjectIDFromXref() (uint32, error) {
	var last uint32
	for _, x := range context.PDFReader.Xref() {
		ptr := x.Ptr()
		if id := ptr.GetID(); id > last {
			last = id
		}
	}
	if last == 0 {
		return 0, fmt.Errorf("cross reference lists no objects")
	}
	return last, nil
}

// writeAt patches previously written bytes in place and restores the
// write position to the end of the output.
func (context *SignContext) writeAt(p []byte, offset int64) error {
	if _, err := context.output.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := context.output.Write(p); err != nil {
		return err
	}
	_, err := context.output.Seek(0, io.SeekEnd)
	return err
}

// writeXref appends the incremental cross reference section matching
// the input document's flavor and records where it starts.
func (context *SignContext) writeXref() error {
	size, err := context.output.Size()
	if err != nil {
		return err
	}

	switch context.PDFReader.XrefInformation.Type {
	case "table":
		context.NewXrefStart = size
		return context.writeIncrXrefTable()
	case "stream":
		// The stream variant is an object of its own, so the start
		// offset is recorded once the object slot is known.
		return context.writeXrefStream()
	default:
		return fmt.Errorf("unknown xref type: %q", context.PDFReader.XrefInformation.Type)
	}
}
