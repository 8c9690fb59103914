package sign

import (
	"fmt"
	"strconv"
	"strings"
)

// writeTrailer closes the update pass. Table based documents get a
// rewritten copy of their original trailer pointing at the new catalog,
// info and size, stream based documents only need the startxref line
// because the cross-reference stream itself carries those entries.
func (context *SignContext) writeTrailer() error {
	switch context.PDFReader.XrefInformation.Type {
	case "table":
		trailer_length := context.PDFReader.XrefInformation.IncludingTrailerEndPos - context.PDFReader.XrefInformation.EndPos

		// Read the original trailer so the untouched entries survive.
		if _, err := context.InputFile.Seek(context.PDFReader.XrefInformation.EndPos+1, 0); err != nil {
			return err
		}
		trailer_buf := make([]byte, trailer_length)
		if _, err := context.InputFile.Read(trailer_buf); err != nil {
			return err
		}

		root_string := "Root " + context.CatalogData.RootString
		new_root := "Root " + strconv.FormatInt(int64(context.CatalogData.ObjectId), 10) + " 0 R"

		size_string := "Size " + strconv.FormatInt(context.PDFReader.XrefInformation.ItemCount, 10)
		new_size := "Size " + strconv.FormatInt(int64(context.lastXrefID)+int64(len(context.newXrefEntries))+1, 10)

		prev_string := "Prev " + context.PDFReader.Trailer().Key("Prev").String()
		new_prev := "Prev " + strconv.FormatInt(context.PDFReader.XrefInformation.StartPos, 10)

		trailer_string := string(trailer_buf)
		trailer_string = strings.ReplaceAll(trailer_string, root_string, new_root)
		trailer_string = strings.ReplaceAll(trailer_string, size_string, new_size)
		if strings.Contains(trailer_string, prev_string) {
			trailer_string = strings.ReplaceAll(trailer_string, prev_string, new_prev)
		} else {
			trailer_string = strings.ReplaceAll(trailer_string, new_root, new_root+"\n  /"+new_prev)
		}

		new_info := "Info " + strconv.FormatInt(int64(context.InfoData.ObjectId), 10) + " 0 R"
		info_ptr := context.PDFReader.Trailer().Key("Info").GetPtr()
		info_string := ""
		if info_ptr.GetID() != 0 {
			info_string = "Info " + strconv.Itoa(int(info_ptr.GetID())) + " " + strconv.Itoa(int(info_ptr.GetGen())) + " R"
		}
		if info_string != "" && strings.Contains(trailer_string, info_string) {
			trailer_string = strings.ReplaceAll(trailer_string, info_string, new_info)
		} else {
			trailer_string = strings.ReplaceAll(trailer_string, new_root, new_root+"\n  /"+new_info)
		}

		// Normalize the indentation of the surviving lines.
		lines := strings.Split(trailer_string, "\n")
		for i, line := range lines {
			if strings.HasPrefix(line, " ") {
				lines[i] = "    " + strings.TrimSpace(line)
			}
		}
		trailer_string = strings.Join(lines, "\n") + "\n"

		if _, err := context.output.Write([]byte(trailer_string)); err != nil {
			return err
		}
	case "stream":
		if _, err := context.output.Write([]byte("startxref\n")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown xref type: %q", context.PDFReader.XrefInformation.Type)
	}

	if _, err := context.output.Write([]byte(strconv.FormatInt(context.NewXrefStart, 10) + "\n")); err != nil {
		return err
	}

	if _, err := context.output.Write([]byte("%%EOF\n")); err != nil {
		return err
	}

	return nil
}
