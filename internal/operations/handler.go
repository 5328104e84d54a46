// Package operations runs dataflow destination migrations.
package operations

import (
	"context"
	"time"

	"evalgo.org/dataflowmigrator/internal/definition"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/ledger"
)

// Resolver turns names into catalog ids and listings.
type Resolver interface {
	ResolveEnvironment(ctx context.Context, name string) (domain.Environment, []domain.CatalogItem, error)
	ResolveStorageTargetID(items []domain.CatalogItem, displayName string) (string, error)
}

// Patcher rewrites the definition of one item.
type Patcher interface {
	Patch(ctx context.Context, req definition.PatchRequest) domain.ItemResult
}

// Annotator records the marker on an item.
type Annotator interface {
	Annotate(ctx context.Context, environmentID, itemID string, marker domain.Marker) (string, error)
}

// Recorder persists run progress. *ledger.Ledger implements it.
type Recorder interface {
	StartRun(cfg domain.RunConfig, principal string) (*ledger.Run, error)
	SetItems(runID string, resolved domain.ResolvedRun, items []domain.CatalogItem) error
	SetMetadata(runID, key string, value interface{}) error
	StartItem(runID string, index int) error
	FinishItem(runID string, index int, result domain.ItemResult) error
	CompleteRun(runID string) (*ledger.Run, error)
	FailRun(runID string, errorMessage string) (*ledger.Run, error)
}

// Locker serializes runs against the same target workspace.
type Locker interface {
	AcquireTargetLock(targetWorkspace string) (func(), error)
}

// Observer receives run and item events, e.g. for metrics.
type Observer interface {
	RunStarted()
	RunFinished(status string, d time.Duration)
	ObserveItem(r domain.ItemResult)
}
