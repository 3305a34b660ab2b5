// createkey mints a gateway API key. The plaintext is printed once; only
// the hash goes into the config file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/toolgate/toolgate/internal/auth"
)

func main() {
	var (
		name   = flag.String("name", "default", "key name for the config entry")
		bcrypt = flag.Bool("bcrypt", false, "store a bcrypt hash instead of sha256")
	)
	flag.Parse()

	plaintext, stored, err := auth.GenerateKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "createkey:", err)
		os.Exit(1)
	}

	if *bcrypt {
		stored, err = auth.BcryptKey(plaintext)
		if err != nil {
			fmt.Fprintln(os.Stderr, "createkey:", err)
			os.Exit(1)
		}
	}

	fmt.Println("API key (shown once, store it now):")
	fmt.Println()
	fmt.Println("  " + plaintext)
	fmt.Println()
	fmt.Println("Config entry for toolgate.yaml:")
	fmt.Println()
	fmt.Println("  auth:")
	fmt.Println("    enabled: true")
	fmt.Println("    keys:")
	fmt.Printf("      - name: %s\n", *name)
	fmt.Printf("        hash: %q\n", stored)
}
