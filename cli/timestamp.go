package cli

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vedantmgoyal9/pdfseal"
)

func TimestampCommand() {
	tsFlags := flag.NewFlagSet("timestamp", flag.ExitOnError)

	tsFlags.StringVar(&TSA, "tsa", "https://freetsa.org/tsr", "URL for Time-Stamp Authority")
	tsFlags.StringVar(&ConfigPath, "config", "", "Path to a TOML signing profile")

	tsFlags.Usage = func() {
		fmt.Printf("Usage: %s timestamp [options] <input.pdf> <output.pdf>\n\n", os.Args[0])
		fmt.Println("Add a document level timestamp to a PDF file")
		fmt.Println("\nOptions:")
		tsFlags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s timestamp document.pdf stamped.pdf\n", os.Args[0])
		fmt.Printf("  %s timestamp -tsa https://freetsa.org/tsr document.pdf stamped.pdf\n", os.Args[0])
	}

	if err := tsFlags.Parse(os.Args[2:]); err != nil {
		log.Printf("Failed to parse timestamp flags: %v", err)
		osExit(1)
	}
	applyProfile(tsFlags)

	if len(tsFlags.Args()) < 2 {
		tsFlags.Usage()
		osExit(1)
	}

	TimeStampPDF(tsFlags.Arg(0), tsFlags.Arg(1), TSA)
}

func TimeStampPDF(input, output, tsa string) {
	doc, err := pdfseal.OpenFile(input)
	if err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	doc.Timestamp(tsa).TimestampAuth(TSAUsername, TSAPassword)

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

	if _, err := doc.Write(outputFile); err != nil {
		log.Println(err)
		osExit(1)
		return
	}
	log.Println("Timestamped PDF written to " + output)
}
