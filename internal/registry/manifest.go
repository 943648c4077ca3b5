package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/shape"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

// Manifest declares which operations become tools and how.
type Manifest struct {
	// Scalars maps custom GraphQL scalars to validation kinds (string, number, ...).
	Scalars map[string]string `yaml:"scalars"`
	Tools   []ToolSpec        `yaml:"tools"`
}

// ToolSpec is one manifest entry.
type ToolSpec struct {
	Name        string         `yaml:"name"`
	Operation   string         `yaml:"operation"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Arguments   []ExposedArg   `yaml:"arguments"`
	Fixed       map[string]any `yaml:"fixed"`
	// Selection overrides the generated selection set (the node selection for connections).
	Selection   string      `yaml:"selection"`
	Annotations Annotations `yaml:"annotations"`
	Result      *shape.Spec `yaml:"result"`
}

// LoadManifest reads a YAML manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadManifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, toolerr.Wrap(toolerr.KindRegistration, err, "parse tools manifest")
	}
	for i, t := range m.Tools {
		if t.Name == "" {
			return nil, toolerr.Newf(toolerr.KindRegistration, "tools[%d]: name is required", i)
		}
		if t.Operation == "" {
			return nil, toolerr.Newf(toolerr.KindRegistration, "tool %q: operation is required", t.Name)
		}
	}
	return &m, nil
}

// Filter keeps only the named tools, in manifest order. An empty list keeps
// everything; unknown names fail.
func (m *Manifest) Filter(names []string) (*Manifest, error) {
	if len(names) == 0 {
		return m, nil
	}
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	out := &Manifest{Scalars: m.Scalars}
	for _, t := range m.Tools {
		if keep[t.Name] {
			out.Tools = append(out.Tools, t)
			delete(keep, t.Name)
		}
	}
	if len(keep) > 0 {
		missing := make([]string, 0, len(keep))
		for n := range keep {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, toolerr.Newf(toolerr.KindRegistration, "exposed tools not in manifest: %v", missing)
	}
	return out, nil
}

// CatalogOptions returns catalog options restricted to the operations the
// manifest uses.
func (m *Manifest) CatalogOptions(depth int) (catalog.Options, error) {
	opts := catalog.Options{MaxSelectionDepth: depth}
	if len(m.Scalars) > 0 {
		opts.Scalars = make(map[string]catalog.ScalarKind, len(m.Scalars))
		for name, kind := range m.Scalars {
			k, err := catalog.ParseScalarKind(kind)
			if err != nil {
				return catalog.Options{}, toolerr.Wrap(toolerr.KindRegistration, err, fmt.Sprintf("scalar %s", name))
			}
			opts.Scalars[name] = k
		}
	}
	seen := make(map[string]bool)
	for _, t := range m.Tools {
		if !seen[t.Operation] {
			seen[t.Operation] = true
			opts.Operations = append(opts.Operations, t.Operation)
		}
	}
	return opts, nil
}

// Build registers every manifest tool against cat and seals reg.
func Build(cat *catalog.Catalog, m *Manifest, reg *Registry) error {
	for _, spec := range m.Tools {
		desc, ok := cat.Lookup(spec.Operation)
		if !ok {
			return toolerr.Newf(toolerr.KindRegistration, "tool %q: operation %q is not in the catalog", spec.Name, spec.Operation)
		}
		if spec.Selection != "" {
			custom, err := cat.WithSelection(spec.Operation, spec.Selection)
			if err != nil {
				return toolerr.Wrap(toolerr.KindRegistration, err, fmt.Sprintf("tool %q: invalid selection", spec.Name))
			}
			desc = custom
		}

		opts := []Option{WithAnnotations(spec.Annotations)}
		if spec.Title != "" {
			opts = append(opts, WithTitle(spec.Title))
		}
		if spec.Description != "" {
			opts = append(opts, WithDescription(spec.Description))
		}
		if len(spec.Fixed) > 0 {
			opts = append(opts, WithFixed(spec.Fixed))
		}
		if spec.Result != nil && spec.Result.Kind != shape.None {
			opts = append(opts, WithResult(spec.Result))
		}

		if _, err := reg.Register(desc, spec.Name, spec.Arguments, opts...); err != nil {
			return err
		}
	}
	reg.Seal()
	return nil
}
