package domain

import "encoding/json"

// PatchOutcome is the tagged result of processing one item.
type PatchOutcome int

const (
	// OutcomeUnchanged means the script held no source identifier.
	OutcomeUnchanged PatchOutcome = iota
	// OutcomeUpdated means the definition was rewritten and annotated.
	OutcomeUpdated
	// OutcomeFailed means a read or write against the item did not succeed.
	OutcomeFailed
)

func (o PatchOutcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the outcome by name.
func (o PatchOutcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// Stages at which an item can fail.
const (
	StageFetchDefinition  = "get-definition"
	StageDecodeDefinition = "decode-definition"
	StageArchive          = "archive-definition"
	StageUpdateDefinition = "update-definition"
	StageAnnotate         = "annotate"
	StagePanic            = "panic"
	StageCancelled        = "cancelled"
)

// ItemResult captures what happened to one item.
type ItemResult struct {
	Item         CatalogItem  `json:"item"`
	Outcome      PatchOutcome `json:"outcome"`
	StatusCode   int          `json:"status_code,omitempty"`
	Stage        string       `json:"stage,omitempty"`
	Replacements int          `json:"replacements"`
	// PartiallyApplied is set when the definition was written but the
	// description annotation failed afterwards.
	PartiallyApplied bool  `json:"partially_applied,omitempty"`
	Err              error `json:"-"`
}

// Error returns the failure message, or "" for successful items.
func (r ItemResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Summary is the tally of a run. Skipped always equals Unchanged + Failed.
type Summary struct {
	RunID     string       `json:"run_id,omitempty"`
	Updated   int          `json:"updated"`
	Skipped   int          `json:"skipped"`
	Unchanged int          `json:"unchanged"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items,omitempty"`
}

// Add folds one item result into the summary.
func (s *Summary) Add(r ItemResult) {
	switch r.Outcome {
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
		s.Skipped++
	default:
		s.Failed++
		s.Skipped++
	}
	s.Items = append(s.Items, r)
}

// Total is the number of items processed.
func (s Summary) Total() int {
	return s.Updated + s.Skipped
}
