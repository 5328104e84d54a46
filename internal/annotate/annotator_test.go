package annotate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"evalgo.org/dataflowmigrator/internal/client"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/fabrictest"
)

const envID = "22222222-2222-2222-2222-222222222222"

func TestApplyMarker(t *testing.T) {
	prod := domain.NewMarker("Destination set to ", "Prod")

	tests := []struct {
		name        string
		description string
		marker      domain.Marker
		want        string
	}{
		{
			name:   "Empty description",
			marker: prod,
			want:   "Destination set to Prod",
		},
		{
			name:        "Existing text keeps separator",
			description: "Loads orders nightly",
			marker:      prod,
			want:        "Loads orders nightly\n\nDestination set to Prod",
		},
		{
			name:        "Same marker is not duplicated",
			description: "Loads orders nightly\n\nDestination set to Prod",
			marker:      prod,
			want:        "Loads orders nightly\n\nDestination set to Prod",
		},
		{
			name:        "Earlier marker for another target is replaced",
			description: "Loads orders nightly\n\nDestination set to Test",
			marker:      prod,
			want:        "Loads orders nightly\n\nDestination set to Prod",
		},
		{
			name:        "Marker only",
			description: "Destination set to Test",
			marker:      prod,
			want:        "Destination set to Prod",
		},
		{
			name:        "Marker without separator",
			description: "Loads orders. Destination set to Test",
			marker:      prod,
			want:        "Loads orders. \n\nDestination set to Prod",
		},
		{
			name:        "Target name inside prefix",
			description: "Nightly load",
			marker:      domain.NewMarker("Destination set to ", "to"),
			want:        "Nightly load\n\nDestination set to to",
		},
		{
			name:        "Target name inside prefix replaces earlier marker",
			description: "Nightly load\n\nDestination set to Prod",
			marker:      domain.NewMarker("Destination set to ", "set"),
			want:        "Nightly load\n\nDestination set to set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyMarker(tt.description, tt.marker)
			if got != tt.want {
				t.Errorf("ApplyMarker(%q) = %q, want %q", tt.description, got, tt.want)
			}
			if again := ApplyMarker(got, tt.marker); again != got {
				t.Errorf("ApplyMarker is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestApplyMarkerRepeated(t *testing.T) {
	for _, target := range []string{"Prod", "to", "set", "ion", "a"} {
		t.Run(target, func(t *testing.T) {
			marker := domain.NewMarker("Destination set to ", target)
			desc := "Nightly load"
			for i := 0; i < 3; i++ {
				desc = ApplyMarker(desc, marker)
			}
			if n := strings.Count(desc, "\n\nDestination set to"); n != 1 {
				t.Errorf("description has %d markers after three runs: %q", n, desc)
			}
		})
	}
}

func TestAnnotate(t *testing.T) {
	srv := fabrictest.New(t)
	srv.AddItem(envID, domain.CatalogItem{ID: "df-1", DisplayName: "Orders", Type: domain.ItemTypeDataflow, Description: "Nightly load"})
	a := NewAnnotator(client.NewAPI(srv.URL, srv.Client(), time.Second), nil)
	marker := domain.NewMarker("Destination set to ", "Prod")

	for i := 0; i < 2; i++ {
		desc, err := a.Annotate(context.Background(), envID, "df-1", marker)
		if err != nil {
			t.Fatalf("Annotate() run %d failed: %v", i+1, err)
		}
		if desc != "Nightly load\n\nDestination set to Prod" {
			t.Errorf("Annotate() run %d = %q", i+1, desc)
		}
	}

	stored := srv.Description("df-1")
	if strings.Count(stored, "Destination set to") != 1 {
		t.Errorf("stored description has %d markers: %q", strings.Count(stored, "Destination set to"), stored)
	}
	if n := srv.Calls(http.MethodPatch, "/dataflows/df-1"); n != 2 {
		t.Errorf("PATCH calls = %d, want 2", n)
	}
}

func TestAnnotateFailures(t *testing.T) {
	itemPath := "/workspaces/" + envID + "/dataflows/df-1"

	tests := []struct {
		name       string
		method     string
		wantStatus int
	}{
		{"Read rejected", http.MethodGet, http.StatusNotFound},
		{"Write rejected", http.MethodPatch, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fabrictest.New(t)
			srv.AddItem(envID, domain.CatalogItem{ID: "df-1", DisplayName: "Orders", Type: domain.ItemTypeDataflow})
			srv.FailOn(tt.method, itemPath, tt.wantStatus)
			a := NewAnnotator(client.NewAPI(srv.URL, srv.Client(), time.Second), nil)

			_, err := a.Annotate(context.Background(), envID, "df-1", domain.NewMarker("Destination set to ", "Prod"))
			var statusErr *domain.StatusError
			if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.wantStatus {
				t.Fatalf("Annotate() error = %v, want status %d", err, tt.wantStatus)
			}
			if srv.Description("df-1") != "" {
				t.Errorf("description changed to %q", srv.Description("df-1"))
			}
		})
	}
}
