// Package definition rewrites storage-target identifiers inside dataflow
// definition documents.
package definition

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

// PartSelector locates the script part of a definition. Path is tried first;
// Index is used only when no part carries Path.
type PartSelector struct {
	Path  string
	Index int
}

// DefaultSelector selects mashup.pq, falling back to the second part.
func DefaultSelector() PartSelector {
	return PartSelector{Path: helpers.DefaultDefinitionPart, Index: helpers.DefaultDefinitionPartIndex}
}

// RewriteResult describes the outcome of Rewrite.
type RewriteResult struct {
	// Document is the rewritten document, or the input when nothing changed.
	Document     []byte
	Changed      bool
	Replacements int
	PartIndex    int
	PartPath     string
}

// Substitute applies reps in order as literal, global, non-overlapping
// replacements and returns the new text with the number of substitutions.
// Empty and identity replacements are ignored.
func Substitute(text string, reps []domain.Replacement) (string, int) {
	total := 0
	for _, r := range reps {
		if r.Old == "" || r.Old == r.New {
			continue
		}
		n := strings.Count(text, r.Old)
		if n == 0 {
			continue
		}
		text = strings.ReplaceAll(text, r.Old, r.New)
		total += n
	}
	return text, total
}

// Rewrite decodes the selected part of doc, substitutes reps and re-encodes
// it. Only the payload string of the selected part is replaced; every other
// byte of doc is kept as is.
func Rewrite(doc []byte, sel PartSelector, reps []domain.Replacement) (RewriteResult, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(doc, &top); err != nil {
		return RewriteResult{}, fmt.Errorf("parse definition document: %w", err)
	}
	var def map[string]json.RawMessage
	if err := json.Unmarshal(top["definition"], &def); err != nil {
		return RewriteResult{}, fmt.Errorf("parse definition: %w", err)
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(def["parts"], &parts); err != nil {
		return RewriteResult{}, fmt.Errorf("parse definition parts: %w", err)
	}

	idx, err := locate(parts, sel)
	if err != nil {
		return RewriteResult{}, err
	}

	var part map[string]json.RawMessage
	if err := json.Unmarshal(parts[idx], &part); err != nil {
		return RewriteResult{}, fmt.Errorf("parse part %d: %w", idx, err)
	}
	var path, payload string
	_ = json.Unmarshal(part["path"], &path)
	if err := json.Unmarshal(part["payload"], &payload); err != nil {
		return RewriteResult{}, fmt.Errorf("part %d has no string payload: %w", idx, err)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return RewriteResult{}, fmt.Errorf("decode payload of part %q: %w", path, err)
	}

	script := string(raw)
	patched, n := Substitute(script, reps)
	result := RewriteResult{Document: doc, PartIndex: idx, PartPath: path, Replacements: n}
	if patched == script {
		return result, nil
	}

	encoded, err := marshal(base64.StdEncoding.EncodeToString([]byte(patched)))
	if err != nil {
		return RewriteResult{}, err
	}
	from, to, err := payloadSpan(doc, idx)
	if err != nil {
		return RewriteResult{}, err
	}
	out := make([]byte, 0, len(doc)-(to-from)+len(encoded))
	out = append(out, doc[:from]...)
	out = append(out, encoded...)
	out = append(out, doc[to:]...)

	result.Document = out
	result.Changed = true
	return result, nil
}

func locate(parts []json.RawMessage, sel PartSelector) (int, error) {
	if sel.Path != "" {
		for i, p := range parts {
			var head struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(p, &head); err == nil && head.Path == sel.Path {
				return i, nil
			}
		}
	}
	if sel.Index < 0 || sel.Index >= len(parts) {
		return 0, fmt.Errorf("definition has %d parts, no part %q and no part at index %d", len(parts), sel.Path, sel.Index)
	}
	return sel.Index, nil
}

// payloadSpan returns the byte range of the payload string of part idx,
// quotes included.
func payloadSpan(doc []byte, idx int) (int, int, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	if err := enterKey(dec, "definition"); err != nil {
		return 0, 0, err
	}
	if err := enterKey(dec, "parts"); err != nil {
		return 0, 0, err
	}
	if err := expectDelim(dec, '['); err != nil {
		return 0, 0, err
	}
	for i := 0; i < idx; i++ {
		if err := skipValue(dec); err != nil {
			return 0, 0, err
		}
	}
	if err := enterKey(dec, "payload"); err != nil {
		return 0, 0, fmt.Errorf("part %d: %w", idx, err)
	}

	keyEnd := int(dec.InputOffset())
	tok, err := dec.Token()
	if err != nil {
		return 0, 0, fmt.Errorf("scan definition: %w", err)
	}
	if _, ok := tok.(string); !ok {
		return 0, 0, fmt.Errorf("part %d has no string payload", idx)
	}
	end := int(dec.InputOffset())
	// only the colon and whitespace sit between the key and its value
	start := keyEnd + bytes.IndexByte(doc[keyEnd:end], '"')
	return start, end, nil
}

// enterKey opens the next object and stops right after key.
func enterKey(dec *json.Decoder, key string) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("scan definition: %w", err)
		}
		if name, _ := tok.(string); name == key {
			return nil
		}
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return fmt.Errorf("definition has no %q field", key)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("scan definition: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("scan definition: expected %q, got %v", want, tok)
	}
	return nil
}

func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("scan definition: %w", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			default:
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}

// marshal encodes without HTML escaping so untouched raw values keep their
// original characters.
func marshal(v interface{}) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
