package sign

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
)

// xrefStreamColumns is the entry width of the cross-reference stream,
// one type byte, a four byte offset and a generation byte.
const xrefStreamColumns = 6

// writeXrefStream appends the cross-reference stream object for the
// update pass. The stream indexes the updated objects, the new objects
// and itself, so its own object number and offset are fixed before the
// entry data is encoded.
func (context *SignContext) writeXrefStream() error {
	size, err := context.output.Size()
	if err != nil {
		return fmt.Errorf("failed to measure output: %w", err)
	}

	// The stream object follows immediately, writeObject prefixes one
	// newline before the object header.
	selfID := context.lastXrefID + uint32(len(context.newXrefEntries)) + 1
	selfOffset := size + 1

	updated := make([]xrefEntry, len(context.updatedXrefEntries))
	copy(updated, context.updatedXrefEntries)
	sort.SliceStable(updated, func(i, j int) bool { return updated[i].ID < updated[j].ID })

	var entries bytes.Buffer
	for _, entry := range updated {
		writeXrefStreamLine(&entries, 1, entry.Offset, 0)
	}
	for _, entry := range context.newXrefEntries {
		writeXrefStreamLine(&entries, 1, entry.Offset, 0)
	}
	writeXrefStreamLine(&entries, 1, selfOffset, 0)

	streamBytes, err := flateEncode(entries.Bytes(), context.SignData.CompressLevel)
	if err != nil {
		return fmt.Errorf("failed to encode xref stream: %w", err)
	}

	var object bytes.Buffer
	object.WriteString("<< /Type /XRef\n")
	fmt.Fprintf(&object, "  /Length %d\n", len(streamBytes))
	object.WriteString("  /Filter /FlateDecode\n")
	fmt.Fprintf(&object, "  /W [ 1 %d 1 ]\n", xrefStreamColumns-2)
	fmt.Fprintf(&object, "  /Prev %d\n", context.PDFReader.XrefInformation.StartPos)
	fmt.Fprintf(&object, "  /Size %d\n", selfID+1)

	object.WriteString("  /Index [")
	for _, entry := range updated {
		fmt.Fprintf(&object, " %d 1", entry.ID)
	}
	fmt.Fprintf(&object, " %d %d", context.lastXrefID+1, len(context.newXrefEntries)+1)
	object.WriteString(" ]\n")

	fmt.Fprintf(&object, "  /Root %d 0 R\n", context.CatalogData.ObjectId)
	if context.InfoData.ObjectId != 0 {
		fmt.Fprintf(&object, "  /Info %d 0 R\n", context.InfoData.ObjectId)
	}

	if id := context.PDFReader.Trailer().Key("ID"); !id.IsNull() {
		id0 := hex.EncodeToString([]byte(id.Index(0).RawString()))
		id1 := hex.EncodeToString([]byte(id.Index(1).RawString()))
		fmt.Fprintf(&object, "  /ID [<%s><%s>]\n", id0, id1)
	}

	object.WriteString(">>\n")
	object.WriteString("stream\n")
	object.Write(streamBytes)
	object.WriteString("\nendstream")

	id, _, err := context.addObject(object.Bytes())
	if err != nil {
		return fmt.Errorf("failed to add xref stream object: %w", err)
	}
	if id != selfID {
		return fmt.Errorf("xref stream got object %d, expected %d", id, selfID)
	}

	context.NewXrefStart = selfOffset
	return nil
}

// writeXrefStreamLine writes a single fixed width entry.
func writeXrefStreamLine(b *bytes.Buffer, xreftype byte, offset int64, gen byte) {
	b.WriteByte(xreftype)

	offsetBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(offsetBytes, uint32(offset))
	b.Write(offsetBytes)

	b.WriteByte(gen)
}

// flateEncode wraps data in a zlib stream. The xref stream is always
// declared FlateDecode, a NoCompression level still produces a valid
// stored stream.
func flateEncode(data []byte, level int) ([]byte, error) {
	var b bytes.Buffer
	w, err := zlib.NewWriterLevel(&b, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
