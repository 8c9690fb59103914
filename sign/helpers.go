package sign

import (
	"crypto"
	"encoding/asn1"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	// Registers the SHA3 hash family so crypto.SHA3_256 and friends are
	// available as digest algorithms.
	_ "golang.org/x/crypto/sha3"
)

// pdfString serializes text as a PDF string object. ASCII text becomes
// a PDFDocEncoded literal string, anything else is encoded as UTF-16BE
// with a byte order mark.
func pdfString(text string) string {
	if !isASCII(text) {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		res, _, err := transform.String(enc, text)
		if err != nil {
			panic(err)
		}
		return "(" + res + ")"
	}

	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ")", "\\)")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, "\r", "\\r")
	return "(" + text + ")"
}

// pdfDateTime serializes a timestamp in the D:YYYYMMDDHHmmSS+HH'mm'
// form, with the zone offset spelled out the way PDF expects it.
func pdfDateTime(date time.Time) string {
	_, seconds := date.Zone()

	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	hours := seconds / 3600
	minutes := seconds/60 - hours*60

	dateString := fmt.Sprintf("D:%s%s%02d'%02d'", date.Format("20060102150405"), sign, hours, minutes)
	return pdfString(dateString)
}

func leftPad(s string, padStr string, pLen int) string {
	if pLen <= 0 {
		return s
	}
	return strings.Repeat(padStr, pLen) + s
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > '\u007F' {
			return false
		}
	}
	return true
}

var hashOIDs = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:     asn1.ObjectIdentifier([]int{1, 3, 14, 3, 2, 26}),
	crypto.SHA256:   asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 1}),
	crypto.SHA384:   asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 2}),
	crypto.SHA512:   asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 3}),
	crypto.SHA3_256: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 8}),
	crypto.SHA3_384: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 9}),
	crypto.SHA3_512: asn1.ObjectIdentifier([]int{2, 16, 840, 1, 101, 3, 4, 2, 10}),
}

func getOIDFromHashAlgorithm(target crypto.Hash) asn1.ObjectIdentifier {
	for hash, oid := range hashOIDs {
		if hash == target {
			return oid
		}
	}
	return nil
}
