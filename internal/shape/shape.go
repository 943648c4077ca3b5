// Package shape projects operation results into the search and fetch result
// shapes assistant hosts understand.
package shape

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind names a projection.
type Kind string

const (
	// None returns backend data unchanged.
	None          Kind = ""
	SearchResults Kind = "search_results"
	FetchResult   Kind = "fetch_result"
)

// ParseKind accepts "", "none", "search_results" and "fetch_result".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return None, nil
	case string(SearchResults):
		return SearchResults, nil
	case string(FetchResult):
		return FetchResult, nil
	}
	return None, fmt.Errorf("unknown result shape %q", s)
}

// Spec maps fields of a result object to a shape. Field values are dotted
// paths into the object ("thumbnail.url"); URL is a template whose {path}
// placeholders are replaced with the values at those paths.
type Spec struct {
	Kind  Kind   `yaml:"kind" json:"kind"`
	ID    string `yaml:"id" json:"id,omitempty"`
	Title string `yaml:"title" json:"title,omitempty"`
	Text  string `yaml:"text" json:"text,omitempty"`
	Image string `yaml:"image" json:"image,omitempty"`
	URL   string `yaml:"url" json:"url,omitempty"`
	// Metadata maps output keys to paths. Empty means the whole object.
	Metadata map[string]string `yaml:"metadata" json:"metadata,omitempty"`
}

// SearchResult is one entry of a search_results projection.
type SearchResult struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	URL   string  `json:"url"`
	Image *string `json:"image"`
}

// SearchResultsDoc is the search_results envelope.
type SearchResultsDoc struct {
	Results []SearchResult `json:"results"`
}

// FetchResultDoc is the fetch_result projection.
type FetchResultDoc struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata"`
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// Validate checks the mapping is usable for its kind.
func (s *Spec) Validate() error {
	switch s.Kind {
	case None:
		return nil
	case SearchResults, FetchResult:
	default:
		return fmt.Errorf("unknown result shape %q", s.Kind)
	}
	if s.ID == "" {
		return fmt.Errorf("%s shape needs an id path", s.Kind)
	}
	if s.Title == "" {
		return fmt.Errorf("%s shape needs a title path", s.Kind)
	}
	return nil
}

// Apply projects data. Search results accept a list of objects or a page
// ({"items": [...]}); fetch results accept a single object. A null object
// projects to null.
func Apply(s *Spec, data json.RawMessage) (json.RawMessage, error) {
	if s == nil || s.Kind == None {
		return data, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("Apply: decode result: %w", err)
	}

	var out any
	switch s.Kind {
	case SearchResults:
		items, err := itemsOf(v)
		if err != nil {
			return nil, err
		}
		res := SearchResultsDoc{Results: make([]SearchResult, 0, len(items))}
		for _, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			r := SearchResult{
				ID:    stringAt(obj, s.ID),
				Title: stringAt(obj, s.Title),
				URL:   expand(s.URL, obj),
			}
			if s.Image != "" {
				if img, ok := lookup(obj, s.Image); ok && img != nil {
					str := fmt.Sprint(img)
					r.Image = &str
				}
			}
			res.Results = append(res.Results, r)
		}
		out = res

	case FetchResult:
		if v == nil {
			return json.RawMessage("null"), nil
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("Apply: fetch_result needs an object, got %T", v)
		}
		doc := FetchResultDoc{
			ID:    stringAt(obj, s.ID),
			Title: stringAt(obj, s.Title),
			Text:  stringAt(obj, s.Text),
			URL:   expand(s.URL, obj),
		}
		if len(s.Metadata) == 0 {
			doc.Metadata = obj
		} else {
			doc.Metadata = make(map[string]any, len(s.Metadata))
			for k, p := range s.Metadata {
				if mv, ok := lookup(obj, p); ok {
					doc.Metadata[k] = mv
				}
			}
		}
		out = doc

	default:
		return nil, fmt.Errorf("Apply: unknown result shape %q", s.Kind)
	}

	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("Apply: encode result: %w", err)
	}
	return b, nil
}

func itemsOf(v any) ([]any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return t, nil
	case map[string]any:
		if items, ok := t["items"].([]any); ok {
			return items, nil
		}
	}
	return nil, fmt.Errorf("Apply: search_results needs a list, got %T", v)
}

func lookup(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringAt(obj map[string]any, path string) string {
	if path == "" {
		return ""
	}
	v, ok := lookup(obj, path)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if _, ok := v.(map[string]any); ok {
		b, _ := json.Marshal(v)
		return string(b)
	}
	return fmt.Sprint(v)
}

func expand(tmpl string, obj map[string]any) string {
	if tmpl == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		return stringAt(obj, m[1:len(m)-1])
	})
}
