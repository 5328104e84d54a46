// Package helpers provides utility functions and constants for Fabric REST operations.
package helpers

// Fabric REST defaults
const (
	DefaultFabricBaseURL = "https://api.fabric.microsoft.com/v1"
	DefaultFabricScope   = "https://api.fabric.microsoft.com/.default"
	DefaultAuthorityURL  = "https://login.microsoftonline.com"
)

// Item collection path segments, keyed by the catalog item type they serve
const (
	PathWorkspaces = "workspaces"
	PathItems      = "items"
	PathDataflows  = "dataflows"
)

// Dataflow definition layout. The Power Query document is stored as
// mashup.pq and has always been the second part of the definition.
const (
	DefaultDefinitionPart      = "mashup.pq"
	DefaultDefinitionPartIndex = 1
)

// Description marker defaults
const (
	DefaultMarkerPrefix    = "Destination set to "
	DescriptionSeparator   = "\n\n"
	DefaultStorageTarget   = "Lakehouse"
	DefaultRetentionDays   = 28
	DefaultRequestBodySize = 32 << 20
)

// Debug log messages
const (
	DebugPrefix     = "DEBUG: "
	DebugHTTPPrefix = "DEBUG HTTP: "
)
