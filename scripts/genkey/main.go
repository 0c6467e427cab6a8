// genkey generates a sealing key for data-source connection strings.
//
// Usage (run from the repo root):
//
//	go run scripts/genkey/main.go
//
// Prints a base64-encoded 32-byte key. Set it as LOOM_DATA_KEY before first
// launch. Without a key the server runs fine but data sources (and the
// resolvers that dereference their sealed URLs) are disabled.
//
// Rotating the key invalidates every stored data source: sealed URLs can only
// be opened with the key that sealed them. Re-create data sources after a
// rotation.
package main

import (
	"fmt"
	"os"

	"github.com/loomworks/loom/internal/secrets"
)

func main() {
	key, err := secrets.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("LOOM_DATA_KEY=%s\n", key)
}
