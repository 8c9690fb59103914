package sign

import (
	"bytes"
	"sort"
	"strconv"
)

// byteRangeValuePlaceholder occupies the descriptor slot until the
// final offsets are known. The slot is padded to byteRangeSlotWidth so
// patching the real values never shifts later bytes.
const byteRangeValuePlaceholder = "[0 ********** ********** **********]"

// placeholderMarks records where the patchable slots of a signature
// dictionary ended up, relative to the object body's first byte.
type placeholderMarks struct {
	byteRange int64
	contents  int64
	extras    map[string]int64
}

// createSignaturePlaceholder serializes the signature dictionary with
// reserved slots for the byte range descriptor and the content gap.
func (context *SignContext) createSignaturePlaceholder() ([]byte, placeholderMarks) {
	var buffer bytes.Buffer
	var marks placeholderMarks

	buffer.WriteString("<< /Type /Sig")
	buffer.WriteString(" /Filter /Adobe.PPKLite")
	buffer.WriteString(" /SubFilter /" + context.SignData.Format.SubFilter())

	writeByteRangeSlot(&buffer, &marks)
	writeContentsSlot(&buffer, &marks, context.SignatureMaxLength)
	context.writeExtraSlots(&buffer, &marks)

	if refs := context.signatureReferences(); refs != "" {
		buffer.WriteString(refs)
	}

	info := context.SignData.Signature.Info
	if info.Name != "" {
		buffer.WriteString(" /Name " + pdfString(info.Name))
	}
	if info.Location != "" {
		buffer.WriteString(" /Location " + pdfString(info.Location))
	}
	if info.Reason != "" {
		buffer.WriteString(" /Reason " + pdfString(info.Reason))
	}
	if info.ContactInfo != "" {
		buffer.WriteString(" /ContactInfo " + pdfString(info.ContactInfo))
	}
	buffer.WriteString(" /M " + pdfDateTime(info.Date))

	buffer.WriteString(" >>")

	return buffer.Bytes(), marks
}

// createTimestampPlaceholder serializes the document timestamp
// dictionary. Its content gap receives the raw RFC 3161 token.
func (context *SignContext) createTimestampPlaceholder() ([]byte, placeholderMarks) {
	var buffer bytes.Buffer
	var marks placeholderMarks

	buffer.WriteString("<< /Type /DocTimeStamp")
	buffer.WriteString(" /Filter /Adobe.PPKLite")
	buffer.WriteString(" /SubFilter /ETSI.RFC3161")

	writeByteRangeSlot(&buffer, &marks)
	writeContentsSlot(&buffer, &marks, context.SignatureMaxLength)
	context.writeExtraSlots(&buffer, &marks)

	buffer.WriteString(" >>")

	return buffer.Bytes(), marks
}

func writeByteRangeSlot(buffer *bytes.Buffer, marks *placeholderMarks) {
	buffer.WriteString(" /ByteRange ")
	marks.byteRange = int64(buffer.Len())
	buffer.WriteString(byteRangeValuePlaceholder)
	buffer.Write(bytes.Repeat([]byte(" "), byteRangeSlotWidth-len(byteRangeValuePlaceholder)))
}

func writeContentsSlot(buffer *bytes.Buffer, marks *placeholderMarks, hexLength uint32) {
	buffer.WriteString(" /Contents ")
	marks.contents = int64(buffer.Len())
	buffer.WriteString("<")
	buffer.Write(bytes.Repeat([]byte("0"), int(hexLength)))
	buffer.WriteString(">")
}

// writeExtraSlots appends one reserved gap per requested extra slot, in
// key order so repeated passes serialize identically.
func (context *SignContext) writeExtraSlots(buffer *bytes.Buffer, marks *placeholderMarks) {
	if len(context.SignData.ExtraSlots) == 0 {
		return
	}

	marks.extras = make(map[string]int64, len(context.SignData.ExtraSlots))
	for _, key := range sortedExtraSlotKeys(context.SignData.ExtraSlots) {
		length := context.SignData.ExtraSlots[key]
		buffer.WriteString(" /" + key + " ")
		marks.extras[key] = int64(buffer.Len())
		buffer.WriteString("<")
		buffer.Write(bytes.Repeat([]byte("0"), int(length-2)))
		buffer.WriteString(">")
	}
}

func sortedExtraSlotKeys(slots map[string]int64) []string {
	keys := make([]string, 0, len(slots))
	for key := range slots {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// signatureReferences builds the /Reference array of transform
// dictionaries for certification, usage rights and field locking.
func (context *SignContext) signatureReferences() string {
	var refs []string

	switch context.SignData.Signature.CertType {
	case CertificationSignature:
		refs = append(refs, "<< /Type /SigRef"+
			" /TransformMethod /DocMDP"+
			" /TransformParams <<"+
			" /Type /TransformParams"+
			" /P "+strconv.Itoa(int(context.SignData.Signature.DocMDPPerm))+
			" /V /1.2 >> >>")
	case UsageRightsSignature:
		refs = append(refs, "<< /Type /SigRef"+
			" /TransformMethod /UR3"+
			" /TransformParams <<"+
			" /Type /TransformParams"+
			" /V /2.2 >> >>")
	}

	if lock := context.SignData.Signature.FieldLock; lock != nil {
		refs = append(refs, fieldLockReference(lock))
	}

	if len(refs) == 0 {
		return ""
	}

	var buffer bytes.Buffer
	buffer.WriteString(" /Reference [")
	for _, ref := range refs {
		buffer.WriteString(" " + ref)
	}
	buffer.WriteString(" ]")
	return buffer.String()
}

func fieldLockReference(lock *FieldLock) string {
	var buffer bytes.Buffer
	buffer.WriteString("<< /Type /SigRef")
	buffer.WriteString(" /TransformMethod /FieldMDP")
	buffer.WriteString(" /TransformParams <<")
	buffer.WriteString(" /Type /TransformParams")
	buffer.WriteString(" /Action /" + string(lock.Action))

	if lock.Action != FieldLockAll && len(lock.Fields) > 0 {
		buffer.WriteString(" /Fields [")
		for _, field := range lock.Fields {
			buffer.WriteString(" " + pdfString(field))
		}
		buffer.WriteString(" ]")
	}
	if lock.Perm != 0 {
		buffer.WriteString(" /P " + strconv.Itoa(int(lock.Perm)))
	}

	buffer.WriteString(" /V /1.2 >> >>")
	return buffer.String()
}

// markPlaceholders converts the relative slot marks of a serialized
// signature dictionary into absolute reservations on the session.
func (context *SignContext) markPlaceholders(bodyOffset int64, marks placeholderMarks) error {
	if err := context.session.mark(byteRangeSlot, bodyOffset+marks.byteRange); err != nil {
		return err
	}
	if err := context.session.mark(contentsSlot, bodyOffset+marks.contents); err != nil {
		return err
	}
	for key, offset := range marks.extras {
		if err := context.session.mark(key, bodyOffset+offset); err != nil {
			return err
		}
	}
	return nil
}

