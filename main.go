// Package main provides the entry point for the dataflow migrator.
//
// The migrator retargets the destinations of every dataflow in a workspace
// from a source workspace and lakehouse to a target pair. It rewrites the
// stored definition of each dataflow and annotates its description with a
// marker naming the new destination.
//
// Usage:
//
//	dataflowmigrator migrate --target-workspace Prod --target-lakehouse Sales --source-workspace Dev
//	dataflowmigrator serve --port 8080
//
// Environment Variables:
//   - DFM_AUTH_TENANT_ID, DFM_AUTH_CLIENT_ID, DFM_AUTH_CLIENT_SECRET: service principal
//   - DFM_AUTH_TOKEN: static bearer token instead of client credentials
//   - DFM_SERVER_API_KEY: API key for the serve command
package main

import (
	"os"

	"evalgo.org/dataflowmigrator/cmd"
)

// main is the application entry point that delegates to the cobra command structure.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
