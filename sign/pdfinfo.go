package sign

import (
	"strings"
)

// createInfo copies the document information dictionary into the
// incremental update, refreshing /ModDate with the signing time.
func (context *SignContext) createInfo() ([]byte, error) {
	original_info := context.PDFReader.Trailer().Key("Info")

	var info strings.Builder
	info.WriteString("<<")

	wroteModDate := false
	for _, key := range original_info.Keys() {
		info.WriteString(" /" + key + " ")
		if key == "ModDate" {
			wroteModDate = true
			info.WriteString(pdfDateTime(context.SignData.Signature.Info.Date))
		} else {
			info.WriteString(serializeCopiedValue(original_info, original_info.Key(key)))
		}
	}
	if !wroteModDate {
		info.WriteString(" /ModDate " + pdfDateTime(context.SignData.Signature.Info.Date))
	}

	info.WriteString(" >>")
	return []byte(info.String()), nil
}
