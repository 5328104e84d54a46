package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"evalgo.org/dataflowmigrator/internal/domain"
)

// Output formats
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputText, outputJSON, outputYAML:
		return nil
	default:
		return domain.NewValidationError("output", fmt.Sprintf("unknown format %q, use text, json or yaml", format))
	}
}

// commandContext returns the command context, which is nil when the command
// was executed without one
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// summaryView is the serialized form of a run summary
type summaryView struct {
	RunID     string     `json:"run_id"`
	Updated   int        `json:"updated"`
	Skipped   int        `json:"skipped"`
	Unchanged int        `json:"unchanged"`
	Failed    int        `json:"failed"`
	Items     []itemView `json:"items"`
}

type itemView struct {
	ID               string `json:"id"`
	DisplayName      string `json:"display_name"`
	Outcome          string `json:"outcome"`
	Replacements     int    `json:"replacements"`
	Stage            string `json:"stage,omitempty"`
	StatusCode       int    `json:"status_code,omitempty"`
	PartiallyApplied bool   `json:"partially_applied,omitempty"`
	Error            string `json:"error,omitempty"`
}

func newSummaryView(s domain.Summary) summaryView {
	view := summaryView{
		RunID:     s.RunID,
		Updated:   s.Updated,
		Skipped:   s.Skipped,
		Unchanged: s.Unchanged,
		Failed:    s.Failed,
		Items:     make([]itemView, 0, len(s.Items)),
	}
	for _, r := range s.Items {
		view.Items = append(view.Items, itemView{
			ID:               r.Item.ID,
			DisplayName:      r.Item.DisplayName,
			Outcome:          r.Outcome.String(),
			Replacements:     r.Replacements,
			Stage:            r.Stage,
			StatusCode:       r.StatusCode,
			PartiallyApplied: r.PartiallyApplied,
			Error:            r.Error(),
		})
	}
	return view
}

// writeSummary prints a run summary. The text form always starts with the
// "Items updated" and "Items skipped" lines.
func writeSummary(w io.Writer, s domain.Summary, format string) error {
	if format != outputText {
		return writeStructured(w, newSummaryView(s), format)
	}

	fmt.Fprintf(w, "Items updated: %d\n", s.Updated)
	fmt.Fprintf(w, "Items skipped: %d\n", s.Skipped)
	fmt.Fprintf(w, "  unchanged: %d\n", s.Unchanged)
	fmt.Fprintf(w, "  failed:    %d\n", s.Failed)
	for _, r := range s.Items {
		if r.Outcome != domain.OutcomeFailed {
			continue
		}
		note := ""
		if r.PartiallyApplied {
			note = " (definition updated, description not)"
		}
		fmt.Fprintf(w, "  - %s [%s] %s%s: %s\n", r.Item.DisplayName, r.Item.ID, r.Stage, note, r.Error())
	}
	if s.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", s.RunID)
	}
	return nil
}

// writeStructured encodes v as indented JSON or YAML. YAML keys follow the
// json tags so both formats share field names and order.
func writeStructured(w io.Writer, v interface{}, format string) error {
	switch format {
	case outputYAML:
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var node yaml.Node
		if err := yaml.Unmarshal(raw, &node); err != nil {
			return err
		}
		blockStyle(&node)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// blockStyle drops the flow and quoting styles a JSON source leaves behind
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
