package helpers

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{"Single segment", []string{"workspaces"}, "/workspaces"},
		{"Nested", []string{"workspaces", "ws-1", "items"}, "/workspaces/ws-1/items"},
		{"Escaped", []string{"workspaces", "a b/c"}, "/workspaces/a%20b%2Fc"},
		{"Empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinPath(tt.segments...); got != tt.want {
				t.Errorf("JoinPath(%v) = %q, want %q", tt.segments, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://api.fabric.microsoft.com/v1/", "https://api.fabric.microsoft.com/v1"},
		{"  http://localhost:8080//  ", "http://localhost:8080"},
		{"http://localhost", "http://localhost"},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.input); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidCatalogID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"short", false},
		{"0123456789", true},
		{"5b218778-e7a5-4d73-8187-f10824047715", true},
	}

	for _, tt := range tests {
		if got := ValidCatalogID(tt.id); got != tt.want {
			t.Errorf("ValidCatalogID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestLooksLikeUUID(t *testing.T) {
	if !LooksLikeUUID("5b218778-e7a5-4d73-8187-f10824047715") {
		t.Error("LooksLikeUUID() rejected a UUID")
	}
	if LooksLikeUUID("Sales Workspace") {
		t.Error("LooksLikeUUID() accepted a display name")
	}
}

func TestSameID(t *testing.T) {
	if !SameID("5B218778-E7A5-4D73-8187-F10824047715", " 5b218778-e7a5-4d73-8187-f10824047715") {
		t.Error("SameID() should ignore case and surrounding space")
	}
	if SameID("ws-1", "ws-2") {
		t.Error("SameID() matched different ids")
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	in := map[string]int{"runs": 3}
	if err := WriteJSONAtomic(path, in); err != nil {
		t.Fatalf("WriteJSONAtomic() failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}

	var out map[string]int
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("ReadJSON() failed: %v", err)
	}
	if out["runs"] != 3 {
		t.Errorf("ReadJSON() = %v, want runs=3", out)
	}

	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	if !os.IsNotExist(err) {
		t.Errorf("ReadJSON() on a missing file = %v, want not-exist", err)
	}
}

func TestDebugHTTPTransportRestoresBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request body"))
	}))
	defer server.Close()

	DebugMode = true
	defer func() { DebugMode = false }()

	client := EnableHTTPDebugLogging(nil)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, []byte("bad request body")) {
		t.Errorf("body = %q, want it restored after logging", body)
	}
}
