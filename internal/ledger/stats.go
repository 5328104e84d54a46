package ledger

import "time"

// Statistics contains aggregated run statistics
type Statistics struct {
	TotalRuns       int            `json:"total_runs"`
	CompletedRuns   int            `json:"completed_runs"`
	PartialRuns     int            `json:"partial_runs"`
	FailedRuns      int            `json:"failed_runs"`
	RunningRuns     int            `json:"running_runs"`
	TotalItems      int            `json:"total_items"`
	UpdatedItems    int            `json:"updated_items"`
	UnchangedItems  int            `json:"unchanged_items"`
	FailedItems     int            `json:"failed_items"`
	PartialItems    int            `json:"partially_applied_items"`
	TotalDuration   int64          `json:"total_duration_ms"`
	AvgDuration     int64          `json:"avg_duration_ms"`
	AvgItemsPerRun  float64        `json:"avg_items_per_run"`
	FailureRate     float64        `json:"failure_rate"`
	FailureStages   map[string]int `json:"failure_stages"`
	TargetCounts    map[string]int `json:"target_counts"`
	PrincipalCounts map[string]int `json:"principal_counts"`
}

// GetStatistics returns aggregated statistics for a date range, including
// runs that are still in progress
func (l *Ledger) GetStatistics(startDate, endDate time.Time) (*Statistics, error) {
	stats := &Statistics{
		FailureStages:   make(map[string]int),
		TargetCounts:    make(map[string]int),
		PrincipalCounts: make(map[string]int),
	}

	runs, err := l.GetRunsInDateRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	for _, run := range l.GetActiveRuns() {
		runs = append(runs, *run)
	}

	for _, run := range runs {
		stats.TotalRuns++
		stats.TotalItems += run.TotalItems
		stats.UpdatedItems += run.UpdatedItems
		stats.UnchangedItems += run.UnchangedItems
		stats.FailedItems += run.FailedItems
		stats.TotalDuration += run.Duration

		switch run.Status {
		case RunStatusCompleted:
			stats.CompletedRuns++
		case RunStatusPartial:
			stats.PartialRuns++
		case RunStatusFailed:
			stats.FailedRuns++
		case RunStatusRunning:
			stats.RunningRuns++
		}

		for _, item := range run.Items {
			if item.Stage != "" {
				stats.FailureStages[item.Stage]++
			}
			if item.PartiallyApplied {
				stats.PartialItems++
			}
		}

		stats.TargetCounts[run.TargetWorkspace]++
		if run.Principal != "" {
			stats.PrincipalCounts[run.Principal]++
		}
	}

	if stats.TotalRuns > 0 {
		stats.AvgDuration = stats.TotalDuration / int64(stats.TotalRuns)
		stats.AvgItemsPerRun = float64(stats.TotalItems) / float64(stats.TotalRuns)
	}
	processed := stats.UpdatedItems + stats.UnchangedItems + stats.FailedItems
	if processed > 0 {
		stats.FailureRate = float64(stats.FailedItems) / float64(processed) * 100
	}

	return stats, nil
}
