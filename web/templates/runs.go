// Package templates renders the HTML pages of the migration service.
package templates

import (
	"fmt"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"evalgo.org/dataflowmigrator/internal/ledger"
)

//go:generate templ generate

// RunsPageData is everything the runs page shows
type RunsPageData struct {
	Date  string
	Runs  []ledger.Run
	Stats *ledger.Statistics
}

type statCard struct {
	Label string
	Value string
}

func statCards(s *ledger.Statistics) []statCard {
	return []statCard{
		{"Runs", strconv.Itoa(s.TotalRuns)},
		{"Items updated", strconv.Itoa(s.UpdatedItems)},
		{"Items unchanged", strconv.Itoa(s.UnchangedItems)},
		{"Items failed", strconv.Itoa(s.FailedItems)},
		{"Failure rate", fmt.Sprintf("%.1f%%", s.FailureRate)},
	}
}

func runLink(id string) templ.Attributes {
	return templ.Attributes{"href": "/v1/api/migrations/" + id}
}

func startedAt(run ledger.Run) string {
	return run.StartTime.Format(time.RFC3339)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
