package definition

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/fabrictest"
)

var testReplacements = []domain.Replacement{
	{Old: "ws-111", New: "ws-222"},
	{Old: "lh-aaa", New: "lh-bbb"},
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		reps      []domain.Replacement
		want      string
		wantCount int
	}{
		{
			name:      "Both identifiers",
			text:      `Source = Lakehouse.Contents([workspaceId="ws-111", lakehouseId="lh-aaa"])`,
			reps:      testReplacements,
			want:      `Source = Lakehouse.Contents([workspaceId="ws-222", lakehouseId="lh-bbb"])`,
			wantCount: 2,
		},
		{
			name:      "Repeated occurrences",
			text:      "ws-111 ws-111 lh-aaa",
			reps:      testReplacements,
			want:      "ws-222 ws-222 lh-bbb",
			wantCount: 3,
		},
		{
			name:      "Nothing to replace",
			text:      "let Source = 1 in Source",
			reps:      testReplacements,
			want:      "let Source = 1 in Source",
			wantCount: 0,
		},
		{
			name:      "Identity and empty replacements ignored",
			text:      "ws-111",
			reps:      []domain.Replacement{{Old: "ws-111", New: "ws-111"}, {Old: "", New: "x"}},
			want:      "ws-111",
			wantCount: 0,
		},
		{
			name:      "Sequential application",
			text:      "A",
			reps:      []domain.Replacement{{Old: "A", New: "B"}, {Old: "B", New: "C"}},
			want:      "C",
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Substitute(tt.text, tt.reps)
			if got != tt.want || n != tt.wantCount {
				t.Errorf("Substitute() = %q, %d, want %q, %d", got, n, tt.want, tt.wantCount)
			}
		})
	}
}

func TestRewriteEndToEnd(t *testing.T) {
	script := `section Section1;
shared Orders = let
    Source = Lakehouse.Contents([]),
    Navigation = Source{[workspaceId = "ws-111"]}[Data],
    Table = Navigation{[lakehouseId = "lh-aaa"]}[Data]
in
    Table;`
	doc := fabrictest.StandardDefinition(script)

	rw, err := Rewrite(doc, DefaultSelector(), testReplacements)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if !rw.Changed || rw.Replacements != 2 || rw.PartPath != "mashup.pq" || rw.PartIndex != 1 {
		t.Errorf("Rewrite() = changed=%v replacements=%d part=%s/%d", rw.Changed, rw.Replacements, rw.PartPath, rw.PartIndex)
	}

	got, err := fabrictest.PartContent(rw.Document, "mashup.pq")
	if err != nil {
		t.Fatalf("PartContent failed: %v", err)
	}
	if strings.Contains(got, "ws-111") || strings.Contains(got, "lh-aaa") {
		t.Errorf("source identifiers survived: %s", got)
	}
	if !strings.Contains(got, `workspaceId = "ws-222"`) || !strings.Contains(got, `lakehouseId = "lh-bbb"`) {
		t.Errorf("target identifiers missing: %s", got)
	}

	for _, path := range []string{"queryMetadata.json", ".platform"} {
		before, _ := fabrictest.PartContent(doc, path)
		after, err := fabrictest.PartContent(rw.Document, path)
		if err != nil || before != after {
			t.Errorf("part %s changed: %q -> %q (%v)", path, before, after, err)
		}
	}
}

func TestRewriteUnchangedReturnsInput(t *testing.T) {
	doc := fabrictest.StandardDefinition("let Source = 1 in Source")

	rw, err := Rewrite(doc, DefaultSelector(), testReplacements)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if rw.Changed || rw.Replacements != 0 {
		t.Errorf("Rewrite() changed=%v replacements=%d, want unchanged", rw.Changed, rw.Replacements)
	}
	if !bytes.Equal(rw.Document, doc) {
		t.Error("unchanged rewrite must return the input document")
	}
}

func TestRewritePreservesUnknownFields(t *testing.T) {
	doc := []byte(`{"definition":{"format":"pq","parts":[` +
		`{"path":"queryMetadata.json","payload":"e30=","payloadType":"InlineBase64"},` +
		`{"path":"mashup.pq","payload":"` + b64("ws-111") + `","payloadType":"InlineBase64","extra":true}` +
		`]},"etag":"abc<>"}`)

	rw, err := Rewrite(doc, DefaultSelector(), testReplacements)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	var parsed struct {
		Etag       string `json:"etag"`
		Definition struct {
			Format string                   `json:"format"`
			Parts  []map[string]interface{} `json:"parts"`
		} `json:"definition"`
	}
	if err := json.Unmarshal(rw.Document, &parsed); err != nil {
		t.Fatalf("rewritten document is not JSON: %v", err)
	}
	if parsed.Etag != "abc<>" || parsed.Definition.Format != "pq" {
		t.Errorf("top-level fields lost: %+v", parsed)
	}
	if len(parsed.Definition.Parts) != 2 || parsed.Definition.Parts[1]["extra"] != true {
		t.Errorf("part fields lost: %+v", parsed.Definition.Parts)
	}
	if parsed.Definition.Parts[0]["payload"] != "e30=" {
		t.Errorf("other part payload changed: %v", parsed.Definition.Parts[0]["payload"])
	}
	if bytes.Contains(rw.Document, []byte(`\u003c`)) {
		t.Error("document was HTML-escaped")
	}
}

func TestRewriteKeepsOtherBytes(t *testing.T) {
	metadata := `{ "path": "queryMetadata.json",
        "payload": "e30=",
        "payloadType": "InlineBase64" }`
	head := "{\n  \"definition\": {\n    \"parts\": [\n      " + metadata + ",\n      {\"payload\" :  "
	tail := ", \"path\": \"mashup.pq\", \"payloadType\": \"InlineBase64\" }\n    ]\n  },\n  \"z\": 1, \"a\": 2\n}"
	doc := []byte(head + `"` + b64(`Source{[workspaceId = "ws-111"]}`) + `"` + tail)

	rw, err := Rewrite(doc, DefaultSelector(), testReplacements)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if !rw.Changed {
		t.Fatal("Rewrite() reported no change")
	}

	want := head + `"` + b64(`Source{[workspaceId = "ws-222"]}`) + `"` + tail
	if string(rw.Document) != want {
		t.Errorf("Rewrite() touched bytes outside the payload:\n got %s\nwant %s", rw.Document, want)
	}
	if !bytes.Contains(rw.Document, []byte(metadata)) {
		t.Error("untouched part was re-encoded")
	}
}

func TestRewriteIndexFallback(t *testing.T) {
	doc := fabrictest.DefinitionDocument(
		fabrictest.Part{Path: "metadata.json", Content: "{}"},
		fabrictest.Part{Path: "renamed.pq", Content: `Source = "lh-aaa"`},
	)

	rw, err := Rewrite(doc, DefaultSelector(), testReplacements)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if rw.PartIndex != 1 || rw.PartPath != "renamed.pq" || !rw.Changed {
		t.Errorf("fallback selected part %d (%s), changed=%v", rw.PartIndex, rw.PartPath, rw.Changed)
	}
}

func TestRewritePathWinsOverIndex(t *testing.T) {
	doc := fabrictest.DefinitionDocument(
		fabrictest.Part{Path: "mashup.pq", Content: "lh-aaa"},
		fabrictest.Part{Path: "other.json", Content: "lh-aaa"},
	)

	rw, err := Rewrite(doc, DefaultSelector(), testReplacements)
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if rw.PartIndex != 0 {
		t.Errorf("PartIndex = %d, want 0", rw.PartIndex)
	}
	other, _ := fabrictest.PartContent(rw.Document, "other.json")
	if other != "lh-aaa" {
		t.Errorf("unselected part rewritten: %q", other)
	}
}

func TestRewriteErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  []byte
	}{
		{"Not JSON", []byte("not json")},
		{"No definition", []byte(`{"other":1}`)},
		{"Too few parts", fabrictest.DefinitionDocument(fabrictest.Part{Path: "only.json", Content: "{}"})},
		{"Bad base64", []byte(`{"definition":{"parts":[{"path":"a"},{"path":"mashup.pq","payload":"%%%"}]}}`)},
		{"Missing payload", []byte(`{"definition":{"parts":[{"path":"a"},{"path":"mashup.pq"}]}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Rewrite(tt.doc, DefaultSelector(), testReplacements); err == nil {
				t.Error("Rewrite() should fail")
			}
		})
	}
}
