// Package fabrictest provides an in-memory Fabric REST API for tests.
package fabrictest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"evalgo.org/dataflowmigrator/internal/domain"
)

// Part is a plain-text definition part used to build fixtures.
type Part struct {
	Path        string
	Content     string
	PayloadType string
}

// Call is one request observed by the server.
type Call struct {
	Method string
	Path   string
}

type workspace struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
}

// Server is a fake Fabric REST API backed by maps.
type Server struct {
	*httptest.Server

	// Token, when set, is required as the bearer token of every request.
	Token string

	mu           sync.Mutex
	workspaces   []workspace
	items        map[string][]domain.CatalogItem
	definitions  map[string][]byte
	descriptions map[string]string
	failures     map[string]int
	calls        []Call
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		items:        make(map[string][]domain.CatalogItem),
		definitions:  make(map[string][]byte),
		descriptions: make(map[string]string),
		failures:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AddWorkspace registers a workspace.
func (s *Server) AddWorkspace(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces = append(s.workspaces, workspace{ID: id, DisplayName: name, Type: "Workspace"})
}

// AddItem registers an item in a workspace. Its description seeds the
// dataflow description store.
func (s *Server) AddItem(workspaceID string, item domain.CatalogItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.WorkspaceID = workspaceID
	s.items[workspaceID] = append(s.items[workspaceID], item)
	s.descriptions[item.ID] = item.Description
}

// SetDefinition stores a raw definition document for an item.
func (s *Server) SetDefinition(itemID string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[itemID] = doc
}

// SetScript stores a conventional three-part dataflow definition whose
// mashup.pq part holds script.
func (s *Server) SetScript(itemID, script string) {
	s.SetDefinition(itemID, StandardDefinition(script))
}

// Definition returns the stored definition document.
func (s *Server) Definition(itemID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.definitions[itemID]
}

// Script decodes the mashup.pq part of the stored definition.
func (s *Server) Script(itemID string) string {
	content, _ := PartContent(s.Definition(itemID), "mashup.pq")
	return content
}

// Description returns the stored description of an item.
func (s *Server) Description(itemID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptions[itemID]
}

// FailOn makes requests to method+path answer with status.
func (s *Server) FailOn(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = status
}

// Calls counts observed requests with method whose path ends in suffix.
func (s *Server) Calls(method, suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && strings.HasSuffix(c.Path, suffix) {
			n++
		}
	}
	return n
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})

	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"errorCode": "Unauthorized"})
		return
	}
	if status, ok := s.failures[r.Method+" "+r.URL.Path]; ok {
		writeJSON(w, status, map[string]string{"errorCode": "InjectedFailure"})
		return
	}

	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodGet && len(segs) == 1 && segs[0] == "workspaces":
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": s.workspaces})

	case r.Method == http.MethodGet && len(segs) == 3 && segs[2] == "items":
		items := s.items[segs[1]]
		if items == nil {
			items = []domain.CatalogItem{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"value": items})

	case len(segs) == 4 && segs[2] == "dataflows":
		s.handleItem(w, r, segs[1], segs[3])

	case r.Method == http.MethodPost && len(segs) == 5 && segs[2] == "dataflows" && segs[4] == "getDefinition":
		doc, ok := s.definitions[segs[3]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"errorCode": "ItemNotFound"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc)

	case r.Method == http.MethodPost && len(segs) == 5 && segs[2] == "dataflows" && segs[4] == "updateDefinition":
		body, err := io.ReadAll(r.Body)
		if err != nil || !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"errorCode": "InvalidDefinition"})
			return
		}
		s.definitions[segs[3]] = body
		w.WriteHeader(http.StatusOK)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"errorCode": "EntityNotFound"})
	}
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request, workspaceID, itemID string) {
	var found *domain.CatalogItem
	for i := range s.items[workspaceID] {
		if s.items[workspaceID][i].ID == itemID {
			found = &s.items[workspaceID][i]
		}
	}
	if found == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"errorCode": "ItemNotFound"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":          found.ID,
			"displayName": found.DisplayName,
			"type":        found.Type,
			"workspaceId": workspaceID,
			"description": s.descriptions[itemID],
		})
	case http.MethodPatch:
		var patch map[string]string
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"errorCode": "InvalidRequest"})
			return
		}
		if d, ok := patch["description"]; ok {
			s.descriptions[itemID] = d
			found.Description = d
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": itemID})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"errorCode": "MethodNotAllowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DefinitionDocument builds a getDefinition response from plain-text parts.
func DefinitionDocument(parts ...Part) []byte {
	type wirePart struct {
		Path        string `json:"path"`
		Payload     string `json:"payload"`
		PayloadType string `json:"payloadType"`
	}
	wire := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		pt := p.PayloadType
		if pt == "" {
			pt = "InlineBase64"
		}
		wire = append(wire, wirePart{
			Path:        p.Path,
			Payload:     base64.StdEncoding.EncodeToString([]byte(p.Content)),
			PayloadType: pt,
		})
	}
	doc, err := json.Marshal(map[string]interface{}{
		"definition": map[string]interface{}{"parts": wire},
	})
	if err != nil {
		panic(err)
	}
	return doc
}

// StandardDefinition builds the usual queryMetadata.json / mashup.pq /
// .platform layout around script.
func StandardDefinition(script string) []byte {
	return DefinitionDocument(
		Part{Path: "queryMetadata.json", Content: `{"formatVersion":"202502","queriesMetadata":{}}`},
		Part{Path: "mashup.pq", Content: script},
		Part{Path: ".platform", Content: `{"metadata":{"type":"Dataflow","displayName":"df"}}`},
	)
}

// PartContent decodes the part with the given path out of a document.
func PartContent(doc []byte, path string) (string, error) {
	var parsed struct {
		Definition struct {
			Parts []struct {
				Path    string `json:"path"`
				Payload string `json:"payload"`
			} `json:"parts"`
		} `json:"definition"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return "", err
	}
	for _, p := range parsed.Definition.Parts {
		if p.Path == path {
			raw, err := base64.StdEncoding.DecodeString(p.Payload)
			return string(raw), err
		}
	}
	return "", fmt.Errorf("part %s not found", path)
}
