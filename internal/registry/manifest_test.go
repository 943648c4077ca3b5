package registry

import (
	"testing"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/shape"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

const shopManifest = `
scalars:
  DateTime: string
tools:
  - name: search
    operation: products
    title: Search products
    description: Fetch products from the default channel.
    arguments:
      - name: query
        maps_to: search
        description: Full-text search.
    fixed:
      channel: default-channel
    selection: "id name slug thumbnail { url }"
    annotations:
      read_only: true
      idempotent: true
      open_world: true
    result:
      kind: search_results
      id: id
      title: name
      image: thumbnail.url
      url: "https://demo.nimara.store/products/{slug}"
  - name: fetch
    operation: product
    arguments:
      - name: id
    fixed:
      channel: default-channel
    result:
      kind: fetch_result
      id: id
      title: name
      text: description
      url: "https://demo.nimara.store/products/{slug}"
`

func buildManifest(t *testing.T, m *Manifest) (*Registry, error) {
	t.Helper()
	opts, err := m.CatalogOptions(0)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Parse("shop.graphql", shopSchema, opts)
	if err != nil {
		t.Fatal(err)
	}
	reg := newTestRegistry()
	return reg, Build(cat, m, reg)
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(shopManifest))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(m.Tools))
	}
	search := m.Tools[0]
	if search.Arguments[0].Target() != "search" {
		t.Fatalf("expected maps_to search, got %q", search.Arguments[0].Target())
	}
	if search.Annotations.ReadOnly == nil || !*search.Annotations.ReadOnly {
		t.Fatal("expected read_only annotation")
	}
	if search.Annotations.Destructive != nil {
		t.Fatal("expected destructive to stay unset")
	}
	if search.Result.Kind != shape.SearchResults {
		t.Fatalf("expected search_results, got %q", search.Result.Kind)
	}

	opts, err := m.CatalogOptions(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Operations) != 2 || opts.Scalars["DateTime"] != catalog.ScalarString || opts.MaxSelectionDepth != 3 {
		t.Fatalf("unexpected catalog options %+v", opts)
	}
}

func TestParseManifest_RejectsUnknownKeys(t *testing.T) {
	_, err := ParseManifest([]byte("tools:\n  - name: a\n    operation: products\n    colour: red\n"))
	expectKind(t, err, toolerr.KindRegistration)

	_, err = ParseManifest([]byte("tools:\n  - operation: products\n"))
	expectKind(t, err, toolerr.KindRegistration)
}

func TestBuild_RegistersAndSeals(t *testing.T) {
	m, err := ParseManifest([]byte(shopManifest))
	if err != nil {
		t.Fatal(err)
	}
	reg, err := buildManifest(t, m)
	if err != nil {
		t.Fatal(err)
	}

	search, err := reg.Resolve("search")
	if err != nil {
		t.Fatal(err)
	}
	if search.Title != "Search products" {
		t.Fatalf("unexpected title %q", search.Title)
	}
	if search.Operation.Connection.NodeSelection != "{ id name slug thumbnail { url } }" {
		t.Fatalf("selection override not applied: %q", search.Operation.Connection.NodeSelection)
	}
	if search.Result == nil || search.Result.Kind != shape.SearchResults {
		t.Fatal("expected search_results shape")
	}

	fetch, err := reg.Resolve("fetch")
	if err != nil {
		t.Fatal(err)
	}
	if fetch.Paginated {
		t.Fatal("fetch must not be paginated")
	}
	if fetch.Fixed["channel"] != "default-channel" {
		t.Fatalf("unexpected fixed %v", fetch.Fixed)
	}

	_, err = reg.Register(search.Operation, "late", nil)
	expectKind(t, err, toolerr.KindRegistration)
}

func TestBuild_Failures(t *testing.T) {
	cases := map[string]string{
		"unknown operation": "tools:\n  - name: a\n    operation: orders\n",
		"bad selection":     "tools:\n  - name: a\n    operation: product\n    arguments: [{name: id}]\n    selection: \"{ price }\"\n",
		"bad shape":         "tools:\n  - name: a\n    operation: product\n    arguments: [{name: id}]\n    result: {kind: fetch_result}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			m, err := ParseManifest([]byte(doc))
			if err != nil {
				t.Fatal(err)
			}
			cat, err := catalog.Parse("shop.graphql", shopSchema, catalog.Options{
				Scalars: map[string]catalog.ScalarKind{"DateTime": catalog.ScalarString},
			})
			if err != nil {
				t.Fatal(err)
			}
			expectKind(t, Build(cat, m, newTestRegistry()), toolerr.KindRegistration)
		})
	}
}

func TestManifestFilter(t *testing.T) {
	m, err := ParseManifest([]byte(shopManifest))
	if err != nil {
		t.Fatal(err)
	}

	only, err := m.Filter([]string{"fetch"})
	if err != nil {
		t.Fatal(err)
	}
	if len(only.Tools) != 1 || only.Tools[0].Name != "fetch" {
		t.Fatalf("unexpected filtered tools %+v", only.Tools)
	}

	all, err := m.Filter(nil)
	if err != nil || len(all.Tools) != 2 {
		t.Fatalf("empty filter must keep everything: %v", err)
	}

	_, err = m.Filter([]string{"fetch", "checkout"})
	expectKind(t, err, toolerr.KindRegistration)
}

func TestLoadManifest_Example(t *testing.T) {
	m, err := LoadManifest("../../config/tools.example.yaml")
	if err != nil {
		t.Fatal(err)
	}
	opts, err := m.CatalogOptions(0)
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load("../catalog/testdata/schema.graphql", opts)
	if err != nil {
		t.Fatal(err)
	}
	reg := newTestRegistry()
	if err := Build(cat, m, reg); err != nil {
		t.Fatal(err)
	}
	if len(reg.List()) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(reg.List()))
	}
	search, err := reg.Resolve("search")
	if err != nil {
		t.Fatal(err)
	}
	if !search.Paginated || search.Fixed["channel"] != "default-channel" {
		t.Fatalf("unexpected search tool %+v", search)
	}
}
