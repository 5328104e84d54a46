package ledger

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"evalgo.org/dataflowmigrator/internal/domain"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLedger() failed: %v", err)
	}
	return l
}

func testRunConfig() domain.RunConfig {
	return domain.RunConfig{
		TargetWorkspace: "Prod",
		TargetLakehouse: "Sales",
		SourceLakehouse: "Sales",
		SourceWorkspace: "Dev",
		Marker:          domain.NewMarker("Destination set to ", "Prod"),
	}
}

func testResolved() domain.ResolvedRun {
	return domain.ResolvedRun{
		Source:          domain.Environment{Name: "Dev", ID: "ws-111"},
		Target:          domain.Environment{Name: "Prod", ID: "ws-222"},
		SourceLakehouse: "lh-aaa",
		TargetLakehouse: "lh-bbb",
	}
}

func testItems() []domain.CatalogItem {
	return []domain.CatalogItem{
		{ID: "df-1", DisplayName: "Orders", Type: domain.ItemTypeDataflow},
		{ID: "df-2", DisplayName: "Customers", Type: domain.ItemTypeDataflow},
		{ID: "df-3", DisplayName: "Products", Type: domain.ItemTypeDataflow},
	}
}

func TestNewLedgerCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLedger(dir, 0)
	if err != nil {
		t.Fatalf("NewLedger() failed: %v", err)
	}
	for _, sub := range []string{"runs", "archive", "locks"} {
		if _, err := os.Stat(filepath.Join(dir, "migrations", sub)); err != nil {
			t.Errorf("directory %s missing: %v", sub, err)
		}
	}
	if l.retentionDays != 28 {
		t.Errorf("retentionDays = %d, want default 28", l.retentionDays)
	}
}

func TestRunLifecycle(t *testing.T) {
	l := newTestLedger(t)

	run, err := l.StartRun(testRunConfig(), "alice@example.com")
	if err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}
	if run.Status != RunStatusRunning || run.Marker != "Destination set to Prod" {
		t.Errorf("started run = %+v", run)
	}
	if len(l.GetActiveRuns()) != 1 {
		t.Fatalf("active runs = %d, want 1", len(l.GetActiveRuns()))
	}

	if err := l.SetItems(run.ID, testResolved(), testItems()); err != nil {
		t.Fatalf("SetItems() failed: %v", err)
	}
	results := []domain.ItemResult{
		{Outcome: domain.OutcomeUpdated, Replacements: 2, StatusCode: 200},
		{Outcome: domain.OutcomeUnchanged},
		{Outcome: domain.OutcomeFailed, Stage: domain.StageFetchDefinition, StatusCode: 500, Err: errors.New("boom")},
	}
	for i, r := range results {
		if err := l.StartItem(run.ID, i); err != nil {
			t.Fatalf("StartItem(%d) failed: %v", i, err)
		}
		if err := l.FinishItem(run.ID, i, r); err != nil {
			t.Fatalf("FinishItem(%d) failed: %v", i, err)
		}
	}
	if err := l.SetMetadata(run.ID, "concurrency", 2); err != nil {
		t.Fatalf("SetMetadata() failed: %v", err)
	}

	inFlight, err := l.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() on active run failed: %v", err)
	}
	if inFlight.Status != RunStatusRunning || inFlight.UpdatedItems != 1 {
		t.Errorf("in-flight run = %+v", inFlight)
	}

	done, err := l.CompleteRun(run.ID)
	if err != nil {
		t.Fatalf("CompleteRun() failed: %v", err)
	}
	if done.Status != RunStatusPartial {
		t.Errorf("Status = %q, want partial", done.Status)
	}
	if done.TotalItems != 3 || done.UpdatedItems != 1 || done.UnchangedItems != 1 || done.FailedItems != 1 {
		t.Errorf("tallies = %d/%d/%d of %d", done.UpdatedItems, done.UnchangedItems, done.FailedItems, done.TotalItems)
	}
	if done.EndTime == nil || done.TargetWorkspaceID != "ws-222" || done.SourceLakehouseID != "lh-aaa" {
		t.Errorf("completed run = %+v", done)
	}
	if len(l.GetActiveRuns()) != 0 {
		t.Error("completed run still active")
	}

	stored, err := l.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun() from disk failed: %v", err)
	}
	if stored.Items[2].Stage != domain.StageFetchDefinition || stored.Items[2].ErrorMessage != "boom" || stored.Items[2].StatusCode != 500 {
		t.Errorf("failed item = %+v", stored.Items[2])
	}
	if stored.Items[0].Status != "updated" || stored.Items[0].Replacements != 2 || stored.Items[0].EndTime == nil {
		t.Errorf("updated item = %+v", stored.Items[0])
	}
	if stored.Metadata["concurrency"] != float64(2) {
		t.Errorf("metadata = %v", stored.Metadata)
	}

	summary, err := l.GetDailySummary(done.StartTime.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("GetDailySummary() failed: %v", err)
	}
	if summary.TotalRuns != 1 || summary.PartialRuns != 1 || summary.FailedItems != 1 || len(summary.Runs) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCompleteRunWithoutFailures(t *testing.T) {
	l := newTestLedger(t)
	run, _ := l.StartRun(testRunConfig(), "")
	_ = l.SetItems(run.ID, testResolved(), testItems()[:1])
	_ = l.FinishItem(run.ID, 0, domain.ItemResult{Outcome: domain.OutcomeUpdated})

	done, err := l.CompleteRun(run.ID)
	if err != nil {
		t.Fatalf("CompleteRun() failed: %v", err)
	}
	if done.Status != RunStatusCompleted {
		t.Errorf("Status = %q, want completed", done.Status)
	}
	if _, err := l.CompleteRun(run.ID); err == nil {
		t.Error("completing a closed run should fail")
	}
}

func TestFailRun(t *testing.T) {
	l := newTestLedger(t)
	run, _ := l.StartRun(testRunConfig(), "")

	failed, err := l.FailRun(run.ID, "workspace not found: Prod")
	if err != nil {
		t.Fatalf("FailRun() failed: %v", err)
	}
	if failed.Status != RunStatusFailed || failed.ErrorMessage != "workspace not found: Prod" {
		t.Errorf("failed run = %+v", failed)
	}

	summary, _ := l.GetDailySummary(failed.StartTime.Format("2006-01-02"))
	if summary.FailedRuns != 1 {
		t.Errorf("FailedRuns = %d, want 1", summary.FailedRuns)
	}
}

func TestItemErrors(t *testing.T) {
	l := newTestLedger(t)
	run, _ := l.StartRun(testRunConfig(), "")
	_ = l.SetItems(run.ID, testResolved(), testItems())

	if err := l.StartItem(run.ID, 5); err == nil {
		t.Error("StartItem() out of range should fail")
	}
	if err := l.FinishItem("unknown", 0, domain.ItemResult{}); err == nil {
		t.Error("FinishItem() on unknown run should fail")
	}
	if err := l.SetItems("unknown", testResolved(), nil); err == nil {
		t.Error("SetItems() on unknown run should fail")
	}
}

func TestGetRunRejectsBadIDs(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.GetRun("../../etc/passwd"); err == nil {
		t.Error("GetRun() accepted a path")
	}
	if _, err := l.GetRun("5b218778-e7a5-4d73-8187-f10824047715"); err == nil {
		t.Error("GetRun() found a run that was never recorded")
	}
}

func TestGetDailySummaryMissing(t *testing.T) {
	l := newTestLedger(t)
	summary, err := l.GetDailySummary("2020-01-01")
	if err != nil {
		t.Fatalf("GetDailySummary() failed: %v", err)
	}
	if summary.Date != "2020-01-01" || summary.TotalRuns != 0 || summary.Runs == nil {
		t.Errorf("summary = %+v", summary)
	}
}

func TestGetActiveRunsNewestFirst(t *testing.T) {
	l := newTestLedger(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	ids := make([]string, 3)
	for i := range ids {
		at := base.Add(time.Duration(i) * time.Minute)
		l.now = func() time.Time { return at }
		run, err := l.StartRun(testRunConfig(), "")
		if err != nil {
			t.Fatalf("StartRun() failed: %v", err)
		}
		ids[i] = run.ID
	}

	active := l.GetActiveRuns()
	if len(active) != 3 || active[0].ID != ids[2] || active[2].ID != ids[0] {
		t.Errorf("active run order wrong")
	}
}

func TestAcquireTargetLock(t *testing.T) {
	l := newTestLedger(t)

	release, err := l.AcquireTargetLock("Prod")
	if err != nil {
		t.Fatalf("AcquireTargetLock() failed: %v", err)
	}

	_, err = l.AcquireTargetLock("Prod")
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Identifier != "Prod" {
		t.Fatalf("second lock error = %v, want ConflictError", err)
	}

	other, err := l.AcquireTargetLock("Test")
	if err != nil {
		t.Fatalf("lock on another target failed: %v", err)
	}
	other()

	release()
	again, err := l.AcquireTargetLock("Prod")
	if err != nil {
		t.Fatalf("lock after release failed: %v", err)
	}
	again()
}

func TestGetStatistics(t *testing.T) {
	l := newTestLedger(t)
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return day }

	partial, _ := l.StartRun(testRunConfig(), "alice@example.com")
	_ = l.SetItems(partial.ID, testResolved(), testItems()[:2])
	_ = l.FinishItem(partial.ID, 0, domain.ItemResult{Outcome: domain.OutcomeUpdated, Stage: domain.StageAnnotate, PartiallyApplied: true})
	_ = l.FinishItem(partial.ID, 1, domain.ItemResult{Outcome: domain.OutcomeFailed, Stage: domain.StageUpdateDefinition})
	if _, err := l.CompleteRun(partial.ID); err != nil {
		t.Fatalf("CompleteRun() failed: %v", err)
	}

	failed, _ := l.StartRun(testRunConfig(), "bob@example.com")
	_, _ = l.FailRun(failed.ID, "ambiguous lakehouse")

	_, _ = l.StartRun(testRunConfig(), "")

	stats, err := l.GetStatistics(day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("GetStatistics() failed: %v", err)
	}
	if stats.TotalRuns != 3 || stats.PartialRuns != 1 || stats.FailedRuns != 1 || stats.RunningRuns != 1 {
		t.Errorf("run counts = %+v", stats)
	}
	if stats.UpdatedItems != 1 || stats.FailedItems != 1 || stats.PartialItems != 1 {
		t.Errorf("item counts = %+v", stats)
	}
	if stats.FailureRate != 50 {
		t.Errorf("FailureRate = %v, want 50", stats.FailureRate)
	}
	if stats.FailureStages[domain.StageUpdateDefinition] != 1 || stats.TargetCounts["Prod"] != 3 {
		t.Errorf("breakdowns = %v / %v", stats.FailureStages, stats.TargetCounts)
	}
	if stats.PrincipalCounts["alice@example.com"] != 1 || stats.PrincipalCounts["bob@example.com"] != 1 {
		t.Errorf("PrincipalCounts = %v", stats.PrincipalCounts)
	}

	empty, err := l.GetStatistics(day.AddDate(0, 0, -30), day.AddDate(0, 0, -20))
	if err != nil {
		t.Fatalf("GetStatistics() failed: %v", err)
	}
	if empty.TotalRuns != 1 || empty.RunningRuns != 1 {
		t.Errorf("out-of-range stats should only hold the active run: %+v", empty)
	}
}

func TestRotateOldLogs(t *testing.T) {
	l := newTestLedger(t)
	now := time.Date(2026, 3, 30, 12, 0, 0, 0, time.Local)
	l.now = func() time.Time { return now }

	writeSummary := func(date string) {
		path := l.summaryPath(date)
		if err := os.WriteFile(path, []byte(`{"date":"`+date+`","runs":[]}`), 0600); err != nil {
			t.Fatalf("failed to write summary: %v", err)
		}
	}
	writeSummary("2026-03-02") // ISO week 10
	writeSummary("2026-03-03") // ISO week 10
	writeSummary("2026-03-29") // recent

	oldRun := filepath.Join(l.runsDir, "5b218778-e7a5-4d73-8187-f10824047715.json")
	if err := os.WriteFile(oldRun, []byte(`{}`), 0600); err != nil {
		t.Fatalf("failed to write run: %v", err)
	}
	old := now.AddDate(0, 0, -60)
	if err := os.Chtimes(oldRun, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	active, _ := l.StartRun(testRunConfig(), "")
	activePath := filepath.Join(l.runsDir, active.ID+".json")
	if err := os.Chtimes(activePath, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	staleArchive := filepath.Join(l.archiveDir, "migration_2025-W40.tar.gz")
	if err := os.WriteFile(staleArchive, nil, 0600); err != nil {
		t.Fatalf("failed to write archive: %v", err)
	}
	if err := os.Chtimes(staleArchive, old, old); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	report, err := l.RotateOldLogs()
	if err != nil {
		t.Fatalf("RotateOldLogs() failed: %v", err)
	}

	sort.Strings(report.Compressed)
	if len(report.Compressed) != 2 || report.Compressed[0] != "migration_2026-03-02.json" {
		t.Errorf("Compressed = %v", report.Compressed)
	}
	if len(report.RemovedArchives) != 1 || report.RemovedArchives[0] != "migration_2025-W40.tar.gz" {
		t.Errorf("RemovedArchives = %v", report.RemovedArchives)
	}
	if report.RemovedRuns != 1 {
		t.Errorf("RemovedRuns = %d, want 1", report.RemovedRuns)
	}
	if _, err := os.Stat(activePath); err != nil {
		t.Error("active run file must survive rotation")
	}
	if _, err := os.Stat(l.summaryPath("2026-03-29")); err != nil {
		t.Error("recent summary must survive rotation")
	}

	weekly := filepath.Join(l.archiveDir, "migration_2026-W10.tar.gz")
	if names := archiveNames(t, weekly); len(names) != 2 {
		t.Errorf("weekly archive entries = %v, want 2", names)
	}

	// A later rotation adds to the same week instead of replacing it.
	writeSummary("2026-03-04")
	if _, err := l.RotateOldLogs(); err != nil {
		t.Fatalf("second RotateOldLogs() failed: %v", err)
	}
	if names := archiveNames(t, weekly); len(names) != 3 {
		t.Errorf("weekly archive entries after second rotation = %v, want 3", names)
	}
}

func archiveNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		h, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, h.Name)
	}
	return names
}
