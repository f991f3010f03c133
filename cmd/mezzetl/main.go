// Command mezzetl extracts structured order data from messy spreadsheet
// exports: schema-mapped CSVs, weekly-order workbooks (local xlsx or Google
// Sheets), and order mailbox archives.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Credentials (Google service account path, DD_API_KEY, DSNs) usually
	// arrive via .env in local runs. Missing file is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
