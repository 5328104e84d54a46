package definition

import (
	"context"
	"path"

	"github.com/sirupsen/logrus"

	"evalgo.org/dataflowmigrator/internal/archive"
	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

// PatchRequest identifies one dataflow and the substitutions to apply.
type PatchRequest struct {
	RunID             string
	Item              domain.CatalogItem
	HostEnvironmentID string
	Replacements      []domain.Replacement
}

// Patcher fetches a dataflow definition, rewrites it and writes it back
// only when the script changed.
type Patcher struct {
	api      client.Requester
	selector PartSelector
	archive  archive.Sink
	log      *logrus.Entry
}

// NewPatcher creates a patcher. sink may be nil to skip archiving.
func NewPatcher(api client.Requester, selector PartSelector, sink archive.Sink, log *logrus.Entry) *Patcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Patcher{api: api, selector: selector, archive: sink, log: log}
}

// Patch performs at most one definition read and one definition write.
// The result is Updated only when the write answered 200; annotation is
// left to the caller.
func (p *Patcher) Patch(ctx context.Context, req PatchRequest) domain.ItemResult {
	result := domain.ItemResult{Item: req.Item, Outcome: domain.OutcomeFailed}
	base := helpers.JoinPath(helpers.PathWorkspaces, req.HostEnvironmentID, helpers.PathDataflows, req.Item.ID)
	log := p.log.WithFields(logrus.Fields{"item_id": req.Item.ID, "item": req.Item.DisplayName})

	resp, err := p.api.Post(ctx, base+"/getDefinition", nil)
	if err != nil {
		result.Stage = domain.StageFetchDefinition
		result.Err = domain.NewOperationError(domain.StageFetchDefinition, req.Item.ID, err)
		return result
	}
	if !resp.OK() {
		result.Stage = domain.StageFetchDefinition
		result.StatusCode = resp.StatusCode
		result.Err = domain.NewStatusError(domain.StageFetchDefinition, resp.StatusCode, resp.Body)
		return result
	}

	rw, err := Rewrite(resp.Body, p.selector, req.Replacements)
	if err != nil {
		result.Stage = domain.StageDecodeDefinition
		result.Err = domain.NewOperationError(domain.StageDecodeDefinition, req.Item.ID, err)
		return result
	}
	result.Replacements = rw.Replacements

	if !rw.Changed {
		log.Debug("No source identifiers found, definition left as is")
		result.Outcome = domain.OutcomeUnchanged
		return result
	}

	if p.archive != nil {
		key := path.Join(req.RunID, req.Item.ID+".json")
		if err := p.archive.Put(ctx, key, resp.Body); err != nil {
			result.Stage = domain.StageArchive
			result.Err = domain.NewOperationError(domain.StageArchive, key, err)
			return result
		}
	}

	resp, err = p.api.Post(ctx, base+"/updateDefinition", rw.Document)
	if err != nil {
		result.Stage = domain.StageUpdateDefinition
		result.Err = domain.NewOperationError(domain.StageUpdateDefinition, req.Item.ID, err)
		return result
	}
	result.StatusCode = resp.StatusCode
	if !resp.OK() {
		result.Stage = domain.StageUpdateDefinition
		result.Err = domain.NewStatusError(domain.StageUpdateDefinition, resp.StatusCode, resp.Body)
		return result
	}

	log.WithFields(logrus.Fields{"part": rw.PartPath, "replacements": rw.Replacements}).Info("Definition updated")
	result.Outcome = domain.OutcomeUpdated
	return result
}
