package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vedantmgoyal9/pdfseal"
)

var (
	FieldName     string
	EstimatedSize uint
)

func PrepareCommand() {
	prepareFlags := flag.NewFlagSet("prepare", flag.ExitOnError)

	prepareFlags.StringVar(&InfoName, "name", "", "Name of the signatory")
	prepareFlags.StringVar(&InfoLocation, "location", "", "Location of the signatory")
	prepareFlags.StringVar(&InfoReason, "reason", "", "Reason for signing")
	prepareFlags.StringVar(&InfoContact, "contact", "", "Contact information for signatory")
	prepareFlags.StringVar(&CertType, "certType", "ApprovalSignature", "Type of the certificate (CertificationSignature, ApprovalSignature, UsageRightsSignature, DocumentTimestamp)")
	prepareFlags.StringVar(&FieldName, "field", "", "Signature field name (generated when empty)")
	prepareFlags.UintVar(&EstimatedSize, "size", 0, "Estimated signature container size in bytes (automatic when 0)")
	prepareFlags.StringVar(&ConfigPath, "config", "", "Path to a TOML signing profile")

	prepareFlags.Usage = func() {
		fmt.Printf("Usage: %s prepare [options] <input.pdf> <output.pdf>\n\n", os.Args[0])
		fmt.Println("Reserve a signature placeholder so the container can be produced elsewhere")
		fmt.Println("\nOptions:")
		prepareFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s prepare -field Contract input.pdf prepared.pdf\n", os.Args[0])
		fmt.Printf("  %s prepare -size 16384 input.pdf prepared.pdf\n", os.Args[0])
	}

	if err := prepareFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse prepare flags: %v", err)
		osExit(1)
	}
	applyProfile(prepareFlags)

	if len(prepareFlags.Args()) < 2 {
		prepareFlags.Usage()
		osExit(1)
	}

	input := prepareFlags.Arg(0)
	PreparePDF(input, prepareFlags.Args())
}

// PreparePDF is a variable so tests can intercept the prepare entry point.
var PreparePDF = preparePDFImpl

func preparePDFImpl(input string, args []string) {
	certTypeValue, err := ParseCertType(CertType)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	output := args[1]

	doc, err := pdfseal.OpenFile(input)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	builder := doc.Prepare().
		Field(FieldName).
		Type(certTypeValue).
		Reason(InfoReason).
		Location(InfoLocation).
		Contact(InfoContact).
		SignerName(InfoName).
		EstimatedSize(uint32(EstimatedSize))

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

	prepared, err := builder.Write(outputFile)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	// The field descriptor goes to stdout so scripts can hand it to an
	// external signing service.
	jsonData, err := json.Marshal(prepared)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	fmt.Println(string(jsonData))
	log.Println("Prepared PDF written to " + output)
}
