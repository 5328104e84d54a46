// Package catalog resolves workspace and item names to catalog identifiers.
package catalog

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

type listResponse[T any] struct {
	Value []T `json:"value"`
}

type workspaceEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Resolver queries the catalog for ids and item listings.
type Resolver struct {
	api               client.Requester
	storageTargetType domain.ItemType
	log               *logrus.Entry
}

// NewResolver creates a resolver. storageTargetType selects which item type
// counts as a storage target; empty means Lakehouse.
func NewResolver(api client.Requester, storageTargetType domain.ItemType, log *logrus.Entry) *Resolver {
	if storageTargetType == "" {
		storageTargetType = domain.ItemTypeLakehouse
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{api: api, storageTargetType: storageTargetType, log: log}
}

// StorageTargetType returns the item type treated as a storage target.
func (r *Resolver) StorageTargetType() domain.ItemType {
	return r.storageTargetType
}

// ResolveEnvironmentID returns the id of the workspace called name. A UUID
// literal is also accepted and matched against workspace ids.
func (r *Resolver) ResolveEnvironmentID(ctx context.Context, name string) (string, error) {
	resp, err := r.api.Get(ctx, helpers.JoinPath(helpers.PathWorkspaces))
	if err != nil {
		return "", domain.NewOperationError("resolve-workspace", name, err)
	}
	if !resp.OK() {
		return "", domain.NewOperationError("resolve-workspace", name,
			domain.NewStatusError("list workspaces", resp.StatusCode, resp.Body))
	}

	var list listResponse[workspaceEntry]
	if err := resp.DecodeJSON(&list); err != nil {
		return "", domain.NewOperationError("resolve-workspace", name, err)
	}

	byID := helpers.LooksLikeUUID(name)
	var matches []string
	for _, ws := range list.Value {
		if ws.DisplayName == name || (byID && helpers.SameID(ws.ID, name)) {
			matches = append(matches, ws.ID)
		}
	}

	switch {
	case len(matches) == 0:
		return "", domain.NewNotFoundError("workspace", name, "no workspace with that name")
	case len(matches) > 1:
		return "", domain.NewNotFoundError("workspace", name, fmt.Sprintf("%d workspaces share that name", len(matches)))
	case !helpers.ValidCatalogID(matches[0]):
		return "", domain.NewNotFoundError("workspace", name, fmt.Sprintf("catalog returned malformed id %q", matches[0]))
	}

	r.log.WithFields(logrus.Fields{"workspace": name, "workspace_id": matches[0]}).Debug("Resolved workspace")
	return matches[0], nil
}

// ListItems fetches the single-page item listing of a workspace.
func (r *Resolver) ListItems(ctx context.Context, environmentID string) ([]domain.CatalogItem, error) {
	resp, err := r.api.Get(ctx, helpers.JoinPath(helpers.PathWorkspaces, environmentID, helpers.PathItems))
	if err != nil {
		return nil, domain.NewOperationError("list-items", environmentID, err)
	}
	if !resp.OK() {
		return nil, domain.NewOperationError("list-items", environmentID,
			domain.NewStatusError("list items", resp.StatusCode, resp.Body))
	}

	var list listResponse[domain.CatalogItem]
	if err := resp.DecodeJSON(&list); err != nil {
		return nil, domain.NewOperationError("list-items", environmentID, err)
	}
	for i := range list.Value {
		if list.Value[i].WorkspaceID == "" {
			list.Value[i].WorkspaceID = environmentID
		}
	}

	r.log.WithFields(logrus.Fields{"workspace_id": environmentID, "items": len(list.Value)}).Debug("Listed workspace items")
	return list.Value, nil
}

// ResolveStorageTargetID returns the id of the one storage target called
// displayName in items.
func (r *Resolver) ResolveStorageTargetID(items []domain.CatalogItem, displayName string) (string, error) {
	var matches []domain.CatalogItem
	for _, item := range items {
		if item.DisplayName == displayName && item.Type == r.storageTargetType && item.ID != "" {
			matches = append(matches, item)
		}
	}

	workspaceID := ""
	if len(items) > 0 {
		workspaceID = items[0].WorkspaceID
	}
	if len(matches) != 1 {
		helpers.DebugLog("storage target %q matched %d items of type %s", displayName, len(matches), r.storageTargetType)
		return "", domain.NewAmbiguousOrMissingTargetError(displayName, r.storageTargetType, workspaceID, len(matches))
	}
	return matches[0].ID, nil
}

// ResolveEnvironment resolves a workspace by name and fetches its listing.
func (r *Resolver) ResolveEnvironment(ctx context.Context, name string) (domain.Environment, []domain.CatalogItem, error) {
	id, err := r.ResolveEnvironmentID(ctx, name)
	if err != nil {
		return domain.Environment{}, nil, err
	}
	items, err := r.ListItems(ctx, id)
	if err != nil {
		return domain.Environment{}, nil, err
	}
	return domain.Environment{Name: name, ID: id}, items, nil
}

// FilterByType returns the items of type t, in listing order.
func FilterByType(items []domain.CatalogItem, t domain.ItemType) []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(items))
	for _, item := range items {
		if item.Type == t {
			out = append(out, item)
		}
	}
	return out
}
