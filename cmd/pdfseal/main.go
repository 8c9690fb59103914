// Command pdfseal signs PDF files from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/vedantmgoyal9/pdfseal/cli"
)

func main() {
	if len(os.Args) < 2 {
		cli.Usage()
	}

	switch os.Args[1] {
	case "sign":
		cli.SignCommand()
	case "prepare":
		cli.PrepareCommand()
	case "complete":
		cli.CompleteCommand()
	case "timestamp":
		cli.TimestampCommand()
	case "-h", "--help", "help":
		cli.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		cli.Usage()
	}
}
