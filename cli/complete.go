package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/vedantmgoyal9/pdfseal"
	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
)

func CompleteCommand() {
	completeFlags := flag.NewFlagSet("complete", flag.ExitOnError)

	completeFlags.StringVar(&FieldName, "field", "", "Prepared field to complete (auto-detected when the document holds exactly one)")
	completeFlags.StringVar(&ConfigPath, "config", "", "Path to a TOML signing profile")

	completeFlags.Usage = func() {
		fmt.Printf("Usage: %s complete [options] <prepared.pdf> <signature.der> <output.pdf>\n\n", os.Args[0])
		fmt.Println("Fill a prepared signature placeholder with a DER encoded signature container")
		fmt.Println("\nOptions:")
		completeFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s complete prepared.pdf container.der signed.pdf\n", os.Args[0])
		fmt.Printf("  %s complete -field Contract prepared.pdf container.der signed.pdf\n", os.Args[0])
	}

	if err := completeFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse complete flags: %v", err)
		osExit(1)
	}
	applyProfile(completeFlags)

	if len(completeFlags.Args()) < 3 {
		completeFlags.Usage()
		osExit(1)
	}

	input := completeFlags.Arg(0)
	CompletePDF(input, completeFlags.Args())
}

// CompletePDF is a variable so tests can intercept the complete entry point.
var CompletePDF = completePDFImpl

func completePDFImpl(input string, args []string) {
	sigPath := args[1]
	output := args[2]

	container, err := os.ReadFile(sigPath)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	doc, err := pdfseal.OpenFile(input)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	defer func() {
		if err := doc.Close(); err != nil {
			log.Printf("error closing input file: %v", err)
		}
	}()

	fieldName := FieldName
	if fieldName == "" {
		fieldName, err = detectPreparedField(doc)
		if err != nil {
			log.Println(err)
			osExit(1)
			return
		}
	}

	builder := doc.Complete(fieldName, func(field *pdfseal.PreparedField) ([]byte, error) {
		return container, nil
	})
	if embedder := profileMAC(); embedder != nil {
		builder.MAC(embedder)
	}

	outputFile, err := os.Create(output)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	defer func() {
		if err := outputFile.Close(); err != nil {
			log.Printf("error closing output file: %v", err)
		}
	}()

	if err := builder.Write(outputFile); err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	log.Println("Completed PDF written to " + output)
}

// detectPreparedField returns the name of the document's only prepared
// signature field.
func detectPreparedField(doc *pdfseal.Document) (string, error) {
	fields, err := pdfscan.SignatureFields(doc.Reader())
	if err != nil {
		return "", err
	}

	var prepared []string
	for _, field := range fields {
		if field.Placeholder {
			prepared = append(prepared, field.Name)
		}
	}

	switch len(prepared) {
	case 0:
		return "", fmt.Errorf("no prepared signature fields in document")
	case 1:
		return prepared[0], nil
	default:
		return "", fmt.Errorf("multiple prepared fields (%s), select one with -field",
			strings.Join(prepared, ", "))
	}
}
