// Command keygen mints signed license keys for distribution. It runs on
// the issuing side only and shares the signing secret with the engine.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicore/internal/license"
)

func main() {
	licenseType := flag.String("type", "standard", "license type: trial, standard, premium or enterprise")
	maxDays := flag.Int("days", 365, "validity period in days")
	features := flag.String("features", "", "comma-separated feature flags")
	flag.Parse()

	if *maxDays <= 0 {
		fmt.Fprintln(os.Stderr, "days must be positive")
		os.Exit(1)
	}

	codec := license.NewKeyCodec(license.SigningKey())

	data := &license.RawLicenseData{
		LicenseID:   uuid.NewString(),
		LicenseType: license.LicenseType(*licenseType),
		MaxDays:     *maxDays,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if *features != "" {
		data.Features = strings.Split(*features, ",")
	}
	data.Signature = codec.Sign(data)

	key, err := codec.Encode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("license id: %s\n", data.LicenseID)
	fmt.Printf("type:       %s\n", data.LicenseType)
	fmt.Printf("valid for:  %d days\n", data.MaxDays)
	fmt.Printf("key:\n%s\n", key)
}
