// Package cli implements the pdfseal command line interface: the sign,
// prepare, complete and timestamp subcommands.
package cli

import (
	"crypto"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vedantmgoyal9/pdfseal/config"
	"github.com/vedantmgoyal9/pdfseal/mac"
)

// osExit is a variable so tests can intercept exits.
var osExit = os.Exit

func Usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  sign       Sign a PDF file")
	fmt.Println("  prepare    Reserve a signature placeholder for external signing")
	fmt.Println("  complete   Fill a prepared placeholder with a signature container")
	fmt.Println("  timestamp  Add a document level timestamp to a PDF file")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	osExit(1)
}

// applyProfile loads the profile at ConfigPath and fills in every
// setting the command line left untouched. Explicit flags win over the
// profile.
func applyProfile(fs *flag.FlagSet) {
	if ConfigPath == "" {
		return
	}
	if err := config.Read(ConfigPath); err != nil {
		log.Println(err)
		osExit(1)
		return
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := config.Settings
	if !set["name"] && cfg.Name != "" {
		InfoName = cfg.Name
	}
	if !set["location"] && cfg.Location != "" {
		InfoLocation = cfg.Location
	}
	if !set["reason"] && cfg.Reason != "" {
		InfoReason = cfg.Reason
	}
	if !set["contact"] && cfg.Contact != "" {
		InfoContact = cfg.Contact
	}
	if !set["certType"] && cfg.CertType != "" {
		CertType = cfg.CertType
	}
	if !set["tsa"] && cfg.TSA.URL != "" {
		TSA = cfg.TSA.URL
	}
	TSAUsername = cfg.TSA.Username
	TSAPassword = cfg.TSA.Password
}

// profileMAC builds the integrity token embedder named by the loaded
// profile, nil when the profile carries no MAC key.
func profileMAC() *mac.Embedder {
	kekHex := config.Settings.MAC.KEK
	if kekHex == "" {
		return nil
	}

	kek, err := hex.DecodeString(kekHex)
	if err != nil {
		log.Println(err)
		osExit(1)
		return nil
	}
	producer, err := mac.NewProducerFromKEK(kek, crypto.SHA256)
	if err != nil {
		log.Println(err)
		osExit(1)
		return nil
	}
	return &mac.Embedder{Producer: producer}
}
