package operations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"evalgo.org/dataflowmigrator/internal/catalog"
	"evalgo.org/dataflowmigrator/internal/definition"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/ledger"
)

// Options configures a Migrator. Every field is optional.
type Options struct {
	// Concurrency bounds how many items are processed at once; values
	// below 1 mean sequential processing.
	Concurrency int
	Recorder    Recorder
	Locker      Locker
	Observer    Observer
	// Principal identifies the caller in the run ledger.
	Principal string
	// Metadata is recorded on every run next to the effective concurrency.
	Metadata map[string]interface{}
	Log      *logrus.Entry
}

// Migrator retargets every dataflow of a workspace from a source lakehouse
// to a target lakehouse.
type Migrator struct {
	resolver    Resolver
	patcher     Patcher
	annotator   Annotator
	concurrency int
	recorder    Recorder
	locker      Locker
	observer    Observer
	principal   string
	metadata    map[string]interface{}
	log         *logrus.Entry
}

// NewMigrator creates a migrator from its three collaborators.
func NewMigrator(resolver Resolver, patcher Patcher, annotator Annotator, opts Options) *Migrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Migrator{
		resolver:    resolver,
		patcher:     patcher,
		annotator:   annotator,
		concurrency: opts.Concurrency,
		recorder:    opts.Recorder,
		locker:      opts.Locker,
		observer:    opts.Observer,
		principal:   opts.Principal,
		metadata:    opts.Metadata,
		log:         opts.Log,
	}
}

// Execution is a run started by Start.
type Execution struct {
	RunID     string
	Config    domain.RunConfig
	StartedAt time.Time

	cancel  context.CancelFunc
	done    chan struct{}
	summary domain.Summary
	err     error
}

// Wait blocks until the run has finished and returns its result.
func (e *Execution) Wait() (domain.Summary, error) {
	<-e.done
	return e.summary, e.err
}

// Done is closed once the run has finished.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Cancel stops processing items that have not started yet.
func (e *Execution) Cancel() {
	e.cancel()
}

// Run executes a migration and blocks until every item was processed.
//
// A non-nil error means the run was refused or aborted before any item was
// touched. Per-item failures are reported through the summary only.
func (m *Migrator) Run(ctx context.Context, cfg domain.RunConfig) (domain.Summary, error) {
	exec, err := m.Start(ctx, cfg)
	if err != nil {
		return domain.Summary{}, err
	}
	return exec.Wait()
}

// Start validates cfg, takes the target lock, opens a ledger record and
// processes the run in the background.
func (m *Migrator) Start(ctx context.Context, cfg domain.RunConfig) (*Execution, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	unlock := func() {}
	if m.locker != nil {
		var err error
		if unlock, err = m.locker.AcquireTargetLock(cfg.TargetWorkspace); err != nil {
			return nil, err
		}
	}

	runID := uuid.New().String()
	if m.recorder != nil {
		run, err := m.recorder.StartRun(cfg, m.principal)
		if err != nil {
			unlock()
			return nil, fmt.Errorf("failed to open run record: %w", err)
		}
		runID = run.ID
		m.recordMetadata(runID)
	}

	runCtx, cancel := context.WithCancel(ctx)
	exec := &Execution{
		RunID:     runID,
		Config:    cfg,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	if m.observer != nil {
		m.observer.RunStarted()
	}

	go func() {
		defer close(exec.done)
		defer unlock()
		defer cancel()
		exec.summary, exec.err = m.execute(runCtx, exec)
	}()

	return exec, nil
}

func (m *Migrator) recordMetadata(runID string) {
	values := map[string]interface{}{"concurrency": m.concurrency}
	for k, v := range m.metadata {
		values[k] = v
	}
	for k, v := range values {
		if err := m.recorder.SetMetadata(runID, k, v); err != nil {
			m.log.WithError(err).WithField("run_id", runID).Warn("Failed to record run metadata")
		}
	}
}

func (m *Migrator) execute(ctx context.Context, exec *Execution) (domain.Summary, error) {
	cfg := exec.Config
	log := m.log.WithFields(logrus.Fields{
		"run_id":           exec.RunID,
		"source_workspace": cfg.SourceWorkspace,
		"target_workspace": cfg.TargetWorkspace,
	})
	summary := domain.Summary{RunID: exec.RunID}

	resolved, dataflows, err := m.resolve(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Resolution failed, no items processed")
		m.finish(exec, ledger.RunStatusFailed, err)
		return summary, err
	}

	log.WithFields(logrus.Fields{
		"source_workspace_id": resolved.Source.ID,
		"target_workspace_id": resolved.Target.ID,
		"source_lakehouse_id": resolved.SourceLakehouse,
		"target_lakehouse_id": resolved.TargetLakehouse,
		"dataflows":           len(dataflows),
	}).Info("Starting migration")

	if m.recorder != nil {
		if err := m.recorder.SetItems(exec.RunID, resolved, dataflows); err != nil {
			log.WithError(err).Warn("Failed to record run items")
		}
	}

	results := make([]domain.ItemResult, len(dataflows))
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for i, item := range dataflows {
		g.Go(func() error {
			results[i] = m.processItem(ctx, exec.RunID, i, item, resolved, cfg.Marker, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.Add(r)
	}

	status := ledger.RunStatusCompleted
	if summary.Failed > 0 {
		status = ledger.RunStatusPartial
	}
	m.finish(exec, status, nil)

	log.WithFields(logrus.Fields{
		"updated":   summary.Updated,
		"skipped":   summary.Skipped,
		"unchanged": summary.Unchanged,
		"failed":    summary.Failed,
	}).Info("Migration finished")

	return summary, nil
}

// resolve looks up both workspaces and both storage targets and returns the
// dataflows of the target workspace. Nothing is written before it succeeds.
func (m *Migrator) resolve(ctx context.Context, cfg domain.RunConfig) (domain.ResolvedRun, []domain.CatalogItem, error) {
	var resolved domain.ResolvedRun

	target, targetItems, err := m.resolver.ResolveEnvironment(ctx, cfg.TargetWorkspace)
	if err != nil {
		return resolved, nil, err
	}

	source, sourceItems := target, targetItems
	if cfg.SourceWorkspace != cfg.TargetWorkspace {
		if source, sourceItems, err = m.resolver.ResolveEnvironment(ctx, cfg.SourceWorkspace); err != nil {
			return resolved, nil, err
		}
	}

	sourceLakehouse, err := m.resolver.ResolveStorageTargetID(sourceItems, cfg.SourceLakehouse)
	if err != nil {
		return resolved, nil, err
	}
	targetLakehouse, err := m.resolver.ResolveStorageTargetID(targetItems, cfg.TargetLakehouse)
	if err != nil {
		return resolved, nil, err
	}

	resolved = domain.ResolvedRun{
		Source:          source,
		Target:          target,
		SourceLakehouse: sourceLakehouse,
		TargetLakehouse: targetLakehouse,
	}
	return resolved, catalog.FilterByType(targetItems, domain.ItemTypeDataflow), nil
}

func (m *Migrator) processItem(ctx context.Context, runID string, index int, item domain.CatalogItem, resolved domain.ResolvedRun, marker domain.Marker, runLog *logrus.Entry) (result domain.ItemResult) {
	log := runLog.WithFields(logrus.Fields{"item_id": item.ID, "item": item.DisplayName})

	if m.recorder != nil {
		if err := m.recorder.StartItem(runID, index); err != nil {
			log.WithError(err).Warn("Failed to record item start")
		}
	}

	defer func() {
		if p := recover(); p != nil {
			result = domain.ItemResult{
				Item:    item,
				Outcome: domain.OutcomeFailed,
				Stage:   domain.StagePanic,
				Err:     fmt.Errorf("panic while processing item: %v", p),
			}
		}
		m.report(runID, index, result, log)
	}()

	if err := ctx.Err(); err != nil {
		return domain.ItemResult{Item: item, Outcome: domain.OutcomeFailed, Stage: domain.StageCancelled, Err: err}
	}

	result = m.patcher.Patch(ctx, definition.PatchRequest{
		RunID:             runID,
		Item:              item,
		HostEnvironmentID: resolved.Target.ID,
		Replacements:      resolved.Replacements(),
	})
	if result.Outcome != domain.OutcomeUpdated {
		return result
	}

	if _, err := m.annotator.Annotate(ctx, resolved.Target.ID, item.ID, marker); err != nil {
		result.Outcome = domain.OutcomeFailed
		result.Stage = domain.StageAnnotate
		result.PartiallyApplied = true
		var statusErr *domain.StatusError
		if errors.As(err, &statusErr) {
			result.StatusCode = statusErr.StatusCode
		}
		result.Err = err
	}
	return result
}

func (m *Migrator) report(runID string, index int, result domain.ItemResult, log *logrus.Entry) {
	entry := log.WithFields(logrus.Fields{
		"outcome":      result.Outcome.String(),
		"replacements": result.Replacements,
	})
	if result.Outcome == domain.OutcomeFailed {
		entry.WithFields(logrus.Fields{
			"stage":             result.Stage,
			"status_code":       result.StatusCode,
			"partially_applied": result.PartiallyApplied,
		}).WithError(result.Err).Warn("Item skipped")
	} else {
		entry.Info("Item processed")
	}

	if m.observer != nil {
		m.observer.ObserveItem(result)
	}
	if m.recorder != nil {
		if err := m.recorder.FinishItem(runID, index, result); err != nil {
			log.WithError(err).Warn("Failed to record item result")
		}
	}
}

func (m *Migrator) finish(exec *Execution, status string, runErr error) {
	if m.observer != nil {
		m.observer.RunFinished(status, time.Since(exec.StartedAt))
	}
	if m.recorder == nil {
		return
	}
	var err error
	if runErr != nil {
		_, err = m.recorder.FailRun(exec.RunID, runErr.Error())
	} else {
		_, err = m.recorder.CompleteRun(exec.RunID)
	}
	if err != nil {
		m.log.WithError(err).WithField("run_id", exec.RunID).Warn("Failed to close run record")
	}
}
