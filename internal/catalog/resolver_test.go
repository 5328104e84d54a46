package catalog

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/fabrictest"
)

const (
	devID  = "11111111-1111-1111-1111-111111111111"
	prodID = "22222222-2222-2222-2222-222222222222"
)

func newResolver(t *testing.T) (*Resolver, *fabrictest.Server) {
	t.Helper()
	srv := fabrictest.New(t)
	api := client.NewAPI(srv.URL, srv.Client(), time.Second)
	return NewResolver(api, "", nil), srv
}

func TestResolveEnvironmentID(t *testing.T) {
	r, srv := newResolver(t)
	srv.AddWorkspace(devID, "Dev")
	srv.AddWorkspace(prodID, "Prod")
	srv.AddWorkspace("33333333-3333-3333-3333-333333333333", "Shared")
	srv.AddWorkspace("44444444-4444-4444-4444-444444444444", "Shared")
	srv.AddWorkspace("short", "Broken")

	tests := []struct {
		name     string
		input    string
		wantID   string
		notFound bool
	}{
		{"By name", "Dev", devID, false},
		{"By UUID literal", prodID, prodID, false},
		{"Case-sensitive name", "dev", "", true},
		{"Unknown name", "Staging", "", true},
		{"Ambiguous name", "Shared", "", true},
		{"Malformed catalog id", "Broken", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.ResolveEnvironmentID(context.Background(), tt.input)
			if tt.notFound {
				var notFound *domain.NotFoundError
				if !errors.As(err, &notFound) {
					t.Fatalf("ResolveEnvironmentID(%q) error = %v, want NotFoundError", tt.input, err)
				}
				if !errors.Is(err, domain.ErrResolution) {
					t.Errorf("error should match ErrResolution")
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEnvironmentID(%q) failed: %v", tt.input, err)
			}
			if id != tt.wantID {
				t.Errorf("ResolveEnvironmentID(%q) = %q, want %q", tt.input, id, tt.wantID)
			}
		})
	}
}

func TestResolveEnvironmentIDStatusFailure(t *testing.T) {
	r, srv := newResolver(t)
	srv.FailOn(http.MethodGet, "/workspaces", http.StatusInternalServerError)

	_, err := r.ResolveEnvironmentID(context.Background(), "Dev")
	var statusErr *domain.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("error = %v, want StatusError 500", err)
	}
}

func TestResolveEnvironment(t *testing.T) {
	r, srv := newResolver(t)
	srv.AddWorkspace(devID, "Dev")
	srv.AddItem(devID, domain.CatalogItem{ID: "lh-aaaaaaaaaa", DisplayName: "Sales", Type: domain.ItemTypeLakehouse})
	srv.AddItem(devID, domain.CatalogItem{ID: "df-aaaaaaaaaa", DisplayName: "Load", Type: domain.ItemTypeDataflow})

	env, items, err := r.ResolveEnvironment(context.Background(), "Dev")
	if err != nil {
		t.Fatalf("ResolveEnvironment failed: %v", err)
	}
	if env.ID != devID || env.Name != "Dev" {
		t.Errorf("environment = %+v", env)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.WorkspaceID != devID {
			t.Errorf("item %s workspace = %q, want %q", item.ID, item.WorkspaceID, devID)
		}
	}
}

func TestResolveStorageTargetID(t *testing.T) {
	items := []domain.CatalogItem{
		{ID: "lh-sales-0001", DisplayName: "Sales", Type: domain.ItemTypeLakehouse, WorkspaceID: devID},
		{ID: "wh-sales-0001", DisplayName: "Sales", Type: domain.ItemTypeWarehouse, WorkspaceID: devID},
		{ID: "lh-dup-00001", DisplayName: "Dup", Type: domain.ItemTypeLakehouse, WorkspaceID: devID},
		{ID: "lh-dup-00002", DisplayName: "Dup", Type: domain.ItemTypeLakehouse, WorkspaceID: devID},
		{ID: "", DisplayName: "NoID", Type: domain.ItemTypeLakehouse, WorkspaceID: devID},
	}

	tests := []struct {
		name        string
		targetType  domain.ItemType
		displayName string
		wantID      string
		wantMatches int
	}{
		{"Single lakehouse", "", "Sales", "lh-sales-0001", 1},
		{"Warehouse type", domain.ItemTypeWarehouse, "Sales", "wh-sales-0001", 1},
		{"Duplicate names", "", "Dup", "", 2},
		{"Missing", "", "Nope", "", 0},
		{"Item without id", "", "NoID", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(nil, tt.targetType, nil)
			id, err := r.ResolveStorageTargetID(items, tt.displayName)
			if tt.wantID != "" {
				if err != nil || id != tt.wantID {
					t.Fatalf("ResolveStorageTargetID() = %q, %v, want %q", id, err, tt.wantID)
				}
				return
			}
			var targetErr *domain.AmbiguousOrMissingTargetError
			if !errors.As(err, &targetErr) {
				t.Fatalf("error = %v, want AmbiguousOrMissingTargetError", err)
			}
			if targetErr.Matches != tt.wantMatches {
				t.Errorf("Matches = %d, want %d", targetErr.Matches, tt.wantMatches)
			}
			if targetErr.WorkspaceID != devID {
				t.Errorf("WorkspaceID = %q, want %q", targetErr.WorkspaceID, devID)
			}
		})
	}
}

func TestFilterByType(t *testing.T) {
	items := []domain.CatalogItem{
		{ID: "1", Type: domain.ItemTypeDataflow},
		{ID: "2", Type: domain.ItemTypeLakehouse},
		{ID: "3", Type: domain.ItemTypeDataflow},
		{ID: "4", Type: "Notebook"},
	}

	got := FilterByType(items, domain.ItemTypeDataflow)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("FilterByType() = %+v, want items 1 and 3 in order", got)
	}
	if len(FilterByType(nil, domain.ItemTypeDataflow)) != 0 {
		t.Error("FilterByType(nil) should be empty")
	}
}
