// Package ledger persists a record of every migration run and its items.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial" // finished, some items failed
	RunStatusFailed    = "failed"  // aborted before or during item processing
)

// Item statuses besides the patch outcomes
const (
	ItemStatusPending = "pending"
	ItemStatusRunning = "running"
)

// Run represents one migration run against a target workspace
type Run struct {
	ID                string                 `json:"id"`
	Principal         string                 `json:"principal,omitempty"`
	SourceWorkspace   string                 `json:"source_workspace"`
	TargetWorkspace   string                 `json:"target_workspace"`
	SourceLakehouse   string                 `json:"source_lakehouse"`
	TargetLakehouse   string                 `json:"target_lakehouse"`
	SourceWorkspaceID string                 `json:"source_workspace_id,omitempty"`
	TargetWorkspaceID string                 `json:"target_workspace_id,omitempty"`
	SourceLakehouseID string                 `json:"source_lakehouse_id,omitempty"`
	TargetLakehouseID string                 `json:"target_lakehouse_id,omitempty"`
	Marker            string                 `json:"marker"`
	StartTime         time.Time              `json:"start_time"`
	EndTime           *time.Time             `json:"end_time,omitempty"`
	Duration          int64                  `json:"duration_ms"`
	Status            string                 `json:"status"`
	TotalItems        int                    `json:"total_items"`
	UpdatedItems      int                    `json:"updated_items"`
	UnchangedItems    int                    `json:"unchanged_items"`
	FailedItems       int                    `json:"failed_items"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	Items             []Item                 `json:"items"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// Item represents a single dataflow within a run
type Item struct {
	Index            int        `json:"index"`
	ItemID           string     `json:"item_id"`
	DisplayName      string     `json:"display_name"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	Duration         int64      `json:"duration_ms"`
	Status           string     `json:"status"`
	Stage            string     `json:"stage,omitempty"`
	StatusCode       int        `json:"status_code,omitempty"`
	Replacements     int        `json:"replacements"`
	PartiallyApplied bool       `json:"partially_applied,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
}

// DailySummary contains aggregated statistics for a day
type DailySummary struct {
	Date           string `json:"date"`
	TotalRuns      int    `json:"total_runs"`
	CompletedRuns  int    `json:"completed_runs"`
	PartialRuns    int    `json:"partial_runs"`
	FailedRuns     int    `json:"failed_runs"`
	TotalItems     int    `json:"total_items"`
	UpdatedItems   int    `json:"updated_items"`
	UnchangedItems int    `json:"unchanged_items"`
	FailedItems    int    `json:"failed_items"`
	AvgDuration    int64  `json:"avg_duration_ms"`
	Runs           []Run  `json:"runs"`
}

// Ledger manages run logging
type Ledger struct {
	dataDir       string
	runsDir       string
	archiveDir    string
	locksDir      string
	mu            sync.RWMutex
	activeRuns    map[string]*Run
	retentionDays int
	now           func() time.Time
}

// NewLedger creates a new ledger below dataDir
func NewLedger(dataDir string, retentionDays int) (*Ledger, error) {
	ledgerDir := filepath.Join(dataDir, "migrations")
	runsDir := filepath.Join(ledgerDir, "runs")
	archiveDir := filepath.Join(ledgerDir, "archive")
	locksDir := filepath.Join(ledgerDir, "locks")

	for _, dir := range []string{runsDir, archiveDir, locksDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
		}
	}

	if retentionDays <= 0 {
		retentionDays = helpers.DefaultRetentionDays
	}

	return &Ledger{
		dataDir:       ledgerDir,
		runsDir:       runsDir,
		archiveDir:    archiveDir,
		locksDir:      locksDir,
		activeRuns:    make(map[string]*Run),
		retentionDays: retentionDays,
		now:           time.Now,
	}, nil
}

// StartRun creates a new run record
func (l *Ledger) StartRun(cfg domain.RunConfig, principal string) (*Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run := &Run{
		ID:              uuid.New().String(),
		Principal:       principal,
		SourceWorkspace: cfg.SourceWorkspace,
		TargetWorkspace: cfg.TargetWorkspace,
		SourceLakehouse: cfg.SourceLakehouse,
		TargetLakehouse: cfg.TargetLakehouse,
		Marker:          cfg.Marker.Text,
		StartTime:       l.now(),
		Status:          RunStatusRunning,
		Items:           []Item{},
		Metadata:        make(map[string]interface{}),
	}

	l.activeRuns[run.ID] = run

	if err := l.saveRun(run); err != nil {
		return nil, err
	}

	return copyRun(run), nil
}

// SetItems records the resolved ids and the candidate items of a run
func (l *Ledger) SetItems(runID string, resolved domain.ResolvedRun, items []domain.CatalogItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.activeRuns[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	run.SourceWorkspaceID = resolved.Source.ID
	run.TargetWorkspaceID = resolved.Target.ID
	run.SourceLakehouseID = resolved.SourceLakehouse
	run.TargetLakehouseID = resolved.TargetLakehouse
	run.TotalItems = len(items)
	run.Items = make([]Item, len(items))
	for i, item := range items {
		run.Items[i] = Item{
			Index:       i,
			ItemID:      item.ID,
			DisplayName: item.DisplayName,
			Status:      ItemStatusPending,
		}
	}

	return l.saveRun(run)
}

// StartItem marks an item as being processed
func (l *Ledger) StartItem(runID string, index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, run, err := l.item(runID, index)
	if err != nil {
		return err
	}

	now := l.now()
	item.StartTime = &now
	item.Status = ItemStatusRunning

	return l.saveRun(run)
}

// FinishItem records the outcome of an item
func (l *Ledger) FinishItem(runID string, index int, result domain.ItemResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, run, err := l.item(runID, index)
	if err != nil {
		return err
	}

	now := l.now()
	item.EndTime = &now
	if item.StartTime != nil {
		item.Duration = now.Sub(*item.StartTime).Milliseconds()
	}
	item.Status = result.Outcome.String()
	item.Stage = result.Stage
	item.StatusCode = result.StatusCode
	item.Replacements = result.Replacements
	item.PartiallyApplied = result.PartiallyApplied
	item.ErrorMessage = result.Error()

	switch result.Outcome {
	case domain.OutcomeUpdated:
		run.UpdatedItems++
	case domain.OutcomeUnchanged:
		run.UnchangedItems++
	default:
		run.FailedItems++
	}

	return l.saveRun(run)
}

// SetMetadata stores an extra value on a run
func (l *Ledger) SetMetadata(runID, key string, value interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.activeRuns[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Metadata[key] = value

	return l.saveRun(run)
}

// CompleteRun marks a run as finished
func (l *Ledger) CompleteRun(runID string) (*Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.activeRuns[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	l.finish(run)
	if run.FailedItems > 0 {
		run.Status = RunStatusPartial
	} else {
		run.Status = RunStatusCompleted
	}

	if err := l.close(run); err != nil {
		return nil, err
	}
	return copyRun(run), nil
}

// FailRun marks a run as aborted
func (l *Ledger) FailRun(runID string, errorMessage string) (*Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	run, ok := l.activeRuns[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	l.finish(run)
	run.Status = RunStatusFailed
	run.ErrorMessage = errorMessage

	if err := l.close(run); err != nil {
		return nil, err
	}
	return copyRun(run), nil
}

// GetRun retrieves a run by ID
func (l *Ledger) GetRun(runID string) (*Run, error) {
	l.mu.RLock()
	if run, ok := l.activeRuns[runID]; ok {
		defer l.mu.RUnlock()
		return copyRun(run), nil
	}
	l.mu.RUnlock()

	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	var run Run
	if err := helpers.ReadJSON(filepath.Join(l.runsDir, runID+".json"), &run); err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}
	return &run, nil
}

// GetDailySummary retrieves the daily summary for a specific date
func (l *Ledger) GetDailySummary(date string) (*DailySummary, error) {
	var summary DailySummary
	err := helpers.ReadJSON(l.summaryPath(date), &summary)
	if os.IsNotExist(err) {
		return &DailySummary{Date: date, Runs: []Run{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	return &summary, nil
}

// GetActiveRuns returns all currently running runs, newest first
func (l *Ledger) GetActiveRuns() []*Run {
	l.mu.RLock()
	defer l.mu.RUnlock()

	runs := make([]*Run, 0, len(l.activeRuns))
	for _, run := range l.activeRuns {
		runs = append(runs, copyRun(run))
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})

	return runs
}

// GetRunsInDateRange retrieves all finished runs within a date range
func (l *Ledger) GetRunsInDateRange(startDate, endDate time.Time) ([]Run, error) {
	runs := make([]Run, 0)

	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		summary, err := l.GetDailySummary(d.Format("2006-01-02"))
		if err != nil {
			continue
		}
		runs = append(runs, summary.Runs...)
	}

	return runs, nil
}

// AcquireTargetLock takes an exclusive, non-blocking lock for a target
// workspace. The returned func releases it.
func (l *Ledger) AcquireTargetLock(targetWorkspace string) (func(), error) {
	name := uuid.NewSHA1(uuid.NameSpaceURL, []byte(targetWorkspace)).String()
	lock := flock.New(filepath.Join(l.locksDir, name+".lock"))

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		return nil, domain.NewConflictError("run-lock", targetWorkspace)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (l *Ledger) item(runID string, index int) (*Item, *Run, error) {
	run, ok := l.activeRuns[runID]
	if !ok {
		return nil, nil, fmt.Errorf("run %s not found", runID)
	}
	if index < 0 || index >= len(run.Items) {
		return nil, nil, fmt.Errorf("item index %d out of range", index)
	}
	return &run.Items[index], run, nil
}

func (l *Ledger) finish(run *Run) {
	now := l.now()
	run.EndTime = &now
	run.Duration = now.Sub(run.StartTime).Milliseconds()
}

// close persists the final state, adds the run to its daily summary and
// drops it from the active set
func (l *Ledger) close(run *Run) error {
	if err := l.saveRun(run); err != nil {
		return err
	}
	if err := l.addToDailySummary(run); err != nil {
		return err
	}
	delete(l.activeRuns, run.ID)
	return nil
}

// saveRun persists a run to disk
func (l *Ledger) saveRun(run *Run) error {
	return helpers.WriteJSONAtomic(filepath.Join(l.runsDir, run.ID+".json"), run)
}

func (l *Ledger) summaryPath(date string) string {
	return filepath.Join(l.dataDir, fmt.Sprintf("migration_%s.json", date))
}

// addToDailySummary adds a finished run to the daily summary
func (l *Ledger) addToDailySummary(run *Run) error {
	date := run.StartTime.Format("2006-01-02")

	// Other processes share the summary files
	lock := flock.New(filepath.Join(l.dataDir, ".migrations.lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	summary, err := l.GetDailySummary(date)
	if err != nil {
		return err
	}

	summary.Runs = append(summary.Runs, *run)
	summary.TotalRuns++
	summary.TotalItems += run.TotalItems
	summary.UpdatedItems += run.UpdatedItems
	summary.UnchangedItems += run.UnchangedItems
	summary.FailedItems += run.FailedItems

	switch run.Status {
	case RunStatusCompleted:
		summary.CompletedRuns++
	case RunStatusPartial:
		summary.PartialRuns++
	case RunStatusFailed:
		summary.FailedRuns++
	}

	var totalDuration int64
	for _, r := range summary.Runs {
		totalDuration += r.Duration
	}
	if len(summary.Runs) > 0 {
		summary.AvgDuration = totalDuration / int64(len(summary.Runs))
	}

	return helpers.WriteJSONAtomic(l.summaryPath(date), summary)
}

func copyRun(run *Run) *Run {
	c := *run
	c.Items = append([]Item(nil), run.Items...)
	c.Metadata = make(map[string]interface{}, len(run.Metadata))
	for k, v := range run.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
