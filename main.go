// Copyright (c) 2025 ToeiRei
// Tenantd - multi-tenant schema provisioning
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Tenantd.
//
// Usage:
//
//	go run . [flags]
//	./tenantd [flags]
//
// This launches the Tenantd CLI. See --help for options.
package main

import (
	"log"
	"os"

	"github.com/toeirei/tenantd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("Tenantd CLI error: %v", err)
		os.Exit(1)
	}
}
