// Package config loads TOML signing profiles, the file based
// counterpart of the sign command's flags.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
)

func init() {
	govalidator.SetFieldsRequiredByDefault(true)
}

var (
	DefaultLocation string = "./pdfseal.conf" // Default location of the config file
	Settings        Config                    // Initialized once inside Read, shared by the CLI commands.
)

// Config is the root of a signing profile.
type Config struct {
	// Signatory details stamped into the signature dictionary when the
	// command line does not name them.
	Name     string `toml:"name" valid:"-"`
	Location string `toml:"location" valid:"-"`
	Reason   string `toml:"reason" valid:"-"`
	Contact  string `toml:"contact" valid:"-"`

	// CertType selects the signature type, one of the values accepted
	// by the sign command's -certType flag.
	CertType string `toml:"certType" valid:"in(CertificationSignature|ApprovalSignature|UsageRightsSignature|DocumentTimestamp),optional"`

	// Certificate, Key and Chain locate the PEM or DER encoded key
	// material, used when the command line carries no paths.
	Certificate string `toml:"certificate" valid:"-"`
	Key         string `toml:"key" valid:"-"`
	Chain       string `toml:"chain" valid:"-"`

	TSA TSA `toml:"tsa" valid:"-"`
	MAC MAC `toml:"mac" valid:"-"`
}

// TSA names the timestamp authority requests are sent to.
type TSA struct {
	URL      string `toml:"url" valid:"-"`
	Username string `toml:"username" valid:"-"`
	Password string `toml:"password" valid:"-"`
}

// MAC configures the integrity token written next to the signature.
// The key encryption key is hex encoded, 32 bytes decoded.
type MAC struct {
	KEK string `toml:"kek" valid:"-"`
}

// ValidateFields validates all the fields of the config.
func (c Config) ValidateFields() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return err
	}
	if c.TSA.URL != "" && !govalidator.IsURL(c.TSA.URL) {
		return fmt.Errorf("tsa url %q is not a valid URL", c.TSA.URL)
	}
	if c.MAC.KEK != "" && !govalidator.IsHexadecimal(c.MAC.KEK) {
		return fmt.Errorf("mac kek is not a hex encoded key")
	}
	return nil
}

// Read loads and validates the profile at configfile into Settings.
func Read(configfile string) error {
	if _, err := os.Stat(configfile); err != nil {
		return fmt.Errorf("config file is missing: %s", configfile)
	}

	var c Config
	if _, err := toml.DecodeFile(configfile, &c); err != nil {
		return fmt.Errorf("config file is not valid TOML: %w", err)
	}

	if err := c.ValidateFields(); err != nil {
		return fmt.Errorf("config is not valid: %w", err)
	}

	Settings = c
	return nil
}
