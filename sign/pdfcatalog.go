package sign

import (
	"crypto"
	"crypto/x509"
	"strconv"
	"strings"

	"github.com/vedantmgoyal9/pdfseal/internal/pdfscan"
)

// createCatalog serializes the updated document catalog, wiring the
// signature field into /AcroForm and declaring the ISO extensions the
// new signature relies on.
func (context *SignContext) createCatalog() ([]byte, error) {
	var catalogBuilder strings.Builder

	catalogBuilder.WriteString("<< /Type /Catalog")

	// Retrieve the root and remember its reference for the trailer.
	root := context.PDFReader.Trailer().Key("Root")
	rootPtr := root.GetPtr()
	context.CatalogData.RootString = strconv.Itoa(int(rootPtr.GetID())) + " " + strconv.Itoa(int(rootPtr.GetGen())) + " R"

	foundPages, foundNames := false, false
	for _, key := range root.Keys() {
		switch key {
		case "Pages":
			foundPages = true
		case "Names":
			foundNames = true
		}
		if foundPages && foundNames {
			break
		}
	}

	// Add Pages and Names references if they exist
	if foundPages {
		pages := root.Key("Pages").GetPtr()
		catalogBuilder.WriteString(" /Pages " + strconv.Itoa(int(pages.GetID())) + " " + strconv.Itoa(int(pages.GetGen())) + " R")
	}
	if foundNames {
		names := root.Key("Names").GetPtr()
		catalogBuilder.WriteString(" /Names " + strconv.Itoa(int(names.GetID())) + " " + strconv.Itoa(int(names.GetGen())) + " R")
	}

	if extensions := context.requiredExtensions(); len(extensions) > 0 {
		catalogBuilder.WriteString(" /Extensions << /ISO_ ")
		if len(extensions) == 1 {
			catalogBuilder.WriteString(developerExtension(extensions[0]))
		} else {
			catalogBuilder.WriteString("[")
			for _, level := range extensions {
				catalogBuilder.WriteString(" " + developerExtension(level))
			}
			catalogBuilder.WriteString(" ]")
		}
		catalogBuilder.WriteString(" >>")
	}

	catalogBuilder.WriteString(" /AcroForm << /Fields [")

	// Keep every root form field the document already has, then add the
	// new signature field unless an existing field is being reused.
	written := 0
	for _, id := range pdfscan.TopLevelFieldIDs(context.PDFReader) {
		if written > 0 {
			catalogBuilder.WriteString(" ")
		}
		catalogBuilder.WriteString(strconv.Itoa(int(id)) + " 0 R")
		written++
	}
	if context.existingFieldId == 0 {
		if written > 0 {
			catalogBuilder.WriteString(" ")
		}
		catalogBuilder.WriteString(strconv.Itoa(int(context.VisualSignData.objectId)) + " 0 R")
	}

	catalogBuilder.WriteString("]") // close Fields array

	catalogBuilder.WriteString(" /NeedAppearances false")

	// Signature flags (Table 225)
	//
	// Bit position 1: SignaturesExist
	// If set, the document contains at least one signature field.
	//
	// Bit position 2: AppendOnly
	// If set, the document contains signatures that may be invalidated
	// if the file is saved in a way that alters its previous contents,
	// as opposed to an incremental update.
	switch context.SignData.Signature.CertType {
	case CertificationSignature, ApprovalSignature, TimeStampSignature:
		catalogBuilder.WriteString(" /SigFlags 3")
	case UsageRightsSignature:
		catalogBuilder.WriteString(" /SigFlags 1")
	}

	catalogBuilder.WriteString(" >>") // Close AcroForm
	catalogBuilder.WriteString(" >>") // Close catalog

	return []byte(catalogBuilder.String()), nil
}

// requiredExtensions lists the ISO developer extension levels the
// configured signature depends on, in ascending order.
func (context *SignContext) requiredExtensions() []int {
	var levels []int

	switch context.SignData.DigestAlgorithm {
	case crypto.SHA3_256, crypto.SHA3_384, crypto.SHA3_512:
		// ISO/TS 32001, SHA-3 digest algorithms in PDF signatures.
		levels = append(levels, 32001)
	}

	if cert := context.SignData.Certificate; cert != nil && cert.PublicKeyAlgorithm == x509.Ed25519 {
		// ISO/TS 32002, EdDSA signature algorithms.
		levels = append(levels, 32002)
	}

	if context.SignData.MAC != nil {
		// ISO/TS 32004, document integrity protection.
		levels = append(levels, 32004)
	}

	return levels
}

func developerExtension(level int) string {
	return "<< /Type /DeveloperExtensions /BaseVersion /2.0 /ExtensionLevel " + strconv.Itoa(level) + " >>"
}
