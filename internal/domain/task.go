// Package domain defines the core domain types for dataflow destination migrations.
package domain

import "strings"

// MinIDLength is the shortest identifier the catalog is trusted to hand out.
// Anything shorter is treated as a failed lookup rather than a real id.
const MinIDLength = 10

// ItemType is the catalog type of a workspace item.
type ItemType string

// Item types the migrator cares about. Other types are carried verbatim.
const (
	ItemTypeDataflow  ItemType = "Dataflow"
	ItemTypeLakehouse ItemType = "Lakehouse"
	ItemTypeWarehouse ItemType = "Warehouse"
)

// Environment is a workspace resolved by name.
type Environment struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// CatalogItem is one entry of a workspace item listing.
type CatalogItem struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Type        ItemType `json:"type"`
	Description string   `json:"description,omitempty"`
	WorkspaceID string   `json:"workspaceId,omitempty"`
}

// Marker is the description annotation recording a destination rewrite.
//
// TargetName is the destination workspace name embedded in Text. Markers
// written by earlier runs are found through StablePrefix, which is Text with
// every occurrence of TargetName removed.
type Marker struct {
	Text       string `json:"text"`
	TargetName string `json:"target_name"`
}

// NewMarker builds the conventional marker "<prefix><target>".
func NewMarker(prefix, targetName string) Marker {
	return Marker{Text: prefix + targetName, TargetName: targetName}
}

// StablePrefix returns the part of the marker that does not depend on the
// destination workspace name. Only a trailing target name is cut, so a name
// that also occurs inside the prefix leaves the prefix intact.
func (m Marker) StablePrefix() string {
	if m.TargetName == "" {
		return m.Text
	}
	return strings.TrimSuffix(m.Text, m.TargetName)
}

// RunConfig holds the immutable inputs of one migration run.
type RunConfig struct {
	TargetWorkspace string `json:"target_workspace" validate:"required"`
	TargetLakehouse string `json:"target_lakehouse" validate:"required"`
	SourceLakehouse string `json:"source_lakehouse" validate:"required"`
	SourceWorkspace string `json:"source_workspace" validate:"required"`
	Marker          Marker `json:"marker"`
}

// Validate checks that every name of the run is present.
func (c RunConfig) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"target_workspace", c.TargetWorkspace},
		{"target_lakehouse", c.TargetLakehouse},
		{"source_lakehouse", c.SourceLakehouse},
		{"source_workspace", c.SourceWorkspace},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewValidationError(f.name, "must not be empty")
		}
	}
	if strings.TrimSpace(c.Marker.Text) == "" {
		return NewValidationError("marker", "must not be empty")
	}
	return nil
}

// Replacement is one literal substitution applied to a script.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// ResolvedRun is the read-only id set shared by every item of a run.
type ResolvedRun struct {
	Source          Environment `json:"source"`
	Target          Environment `json:"target"`
	SourceLakehouse string      `json:"source_lakehouse_id"`
	TargetLakehouse string      `json:"target_lakehouse_id"`
}

// Replacements returns the ordered substitutions for the run: workspace id
// first, then storage-target id.
func (r ResolvedRun) Replacements() []Replacement {
	return []Replacement{
		{Old: r.Source.ID, New: r.Target.ID},
		{Old: r.SourceLakehouse, New: r.TargetLakehouse},
	}
}
