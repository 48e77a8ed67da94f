package regression

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Case is one labeled dataset entry.
type Case struct {
	ID   string
	Text string
	// Expected is the set of entity types that must be detected,
	// deduplicated in first-seen order.
	Expected []string
}

// DatasetError reports a dataset that cannot be ingested. It is fatal to
// the run and no case is executed. Index is -1 for top-level problems.
type DatasetError struct {
	Index int
	Err   error
}

func (e *DatasetError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("dataset: %v", e.Err)
	}
	return fmt.Sprintf("dataset: case %d: %v", e.Index, e.Err)
}

func (e *DatasetError) Unwrap() error { return e.Err }

type wireCase struct {
	ID       json.RawMessage `json:"id"`
	Text     *string         `json:"text"`
	Expected json.RawMessage `json:"expected_entities"`
}

// LoadDataset reads a whole JSON array of {id, text, expected_entities}.
func LoadDataset(r io.Reader) ([]Case, error) {
	if r == nil {
		return nil, &DatasetError{Index: -1, Err: errors.New("no dataset")}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &DatasetError{Index: -1, Err: fmt.Errorf("read: %w", err)}
	}
	return ParseDataset(data)
}

// ParseDataset is LoadDataset over an in-memory document.
func ParseDataset(data []byte) ([]Case, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DatasetError{Index: -1, Err: errors.New("expected a JSON array of cases")}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &DatasetError{Index: -1, Err: fmt.Errorf("decode: %w", err)}
	}

	cases := make([]Case, 0, len(items))
	for i, item := range items {
		c, err := parseCase(i, item)
		if err != nil {
			return nil, &DatasetError{Index: i, Err: err}
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func parseCase(i int, item json.RawMessage) (Case, error) {
	t := bytes.TrimSpace(item)
	if len(t) == 0 || t[0] != '{' {
		return Case{}, errors.New("not a JSON object")
	}
	var w wireCase
	if err := json.Unmarshal(t, &w); err != nil {
		return Case{}, err
	}
	if w.Text == nil {
		return Case{}, errors.New("missing text")
	}

	id, err := caseID(w.ID)
	if err != nil {
		return Case{}, err
	}
	if id == "" {
		id = strconv.Itoa(i + 1)
	}

	expected, err := expectedTypes(w.Expected)
	if err != nil {
		return Case{}, err
	}

	return Case{ID: id, Text: *w.Text, Expected: expected}, nil
}

// caseID accepts string or numeric ids.
func caseID(raw json.RawMessage) (string, error) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return "", nil
	}
	if t[0] == '"' {
		var s string
		if err := json.Unmarshal(t, &s); err != nil {
			return "", fmt.Errorf("id: %w", err)
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(t, &n); err != nil {
		return "", errors.New("id must be a string or a number")
	}
	return n.String(), nil
}

func expectedTypes(raw json.RawMessage) ([]string, error) {
	out := []string{}
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return out, nil
	}
	var types []string
	if err := json.Unmarshal(t, &types); err != nil {
		return nil, errors.New("expected_entities must be an array of strings")
	}
	seen := make(map[string]struct{}, len(types))
	for _, typ := range types {
		typ = NormalizeType(typ)
		if typ == "" {
			continue
		}
		if _, dup := seen[typ]; dup {
			continue
		}
		seen[typ] = struct{}{}
		out = append(out, typ)
	}
	return out, nil
}

// NormalizeType folds an entity type label to its comparison form: NFKC
// with surrounding whitespace removed.
func NormalizeType(typ string) string {
	return strings.TrimSpace(norm.NFKC.String(typ))
}
