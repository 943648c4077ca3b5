package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/shape"
)

// mockExposureStore is a test helper.
type mockExposureStore struct {
	rows    []*exposureRow
	scalars map[string]string
	err     error
}

func (m *mockExposureStore) ListExposures(_ context.Context) ([]*exposureRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func (m *mockExposureStore) ListScalars(_ context.Context) (map[string]string, error) {
	return m.scalars, nil
}

func TestPostgresManifestSource_Load(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := &mockExposureStore{
		rows: []*exposureRow{
			{
				Name:        "search",
				Operation:   "products",
				Title:       sql.NullString{String: "Search products", Valid: true},
				Arguments:   `[{"name":"query","maps_to":"search"}]`,
				Fixed:       `{"channel":"default-channel"}`,
				Annotations: `{"read_only":true,"open_world":true}`,
				Result:      sql.NullString{String: `{"kind":"search_results","id":"id","title":"name"}`, Valid: true},
			},
			{
				Name:        "fetch",
				Operation:   "product",
				Arguments:   `[{"name":"id"}]`,
				Fixed:       `{}`,
				Annotations: `{}`,
			},
		},
		scalars: map[string]string{"DateTime": "string"},
	}
	src := newPostgresManifestSourceWithStore(store, logger)

	m, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(m.Tools))
	}
	search := m.Tools[0]
	if search.Title != "Search products" || search.Arguments[0].Target() != "search" {
		t.Fatalf("unexpected tool %+v", search)
	}
	if search.Annotations.ReadOnly == nil || !*search.Annotations.ReadOnly {
		t.Fatal("expected read_only annotation")
	}
	if search.Result == nil || search.Result.Kind != shape.SearchResults {
		t.Fatalf("unexpected result %+v", search.Result)
	}
	if m.Tools[1].Fixed != nil || m.Tools[1].Result != nil {
		t.Fatalf("expected empty fixed and result, got %+v", m.Tools[1])
	}

	reg, err := buildManifest(t, m)
	if err != nil {
		t.Fatal(err)
	}
	if len(reg.List()) != 2 {
		t.Fatalf("expected 2 registered tools, got %d", len(reg.List()))
	}
}

func TestPostgresManifestSource_BadJSON(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := &mockExposureStore{rows: []*exposureRow{{Name: "x", Operation: "product", Arguments: `{not json`}}}

	_, err := newPostgresManifestSourceWithStore(store, logger).Load(context.Background())
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPostgresManifestSource_StoreError(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := &mockExposureStore{err: errors.New("connection refused")}

	_, err := newPostgresManifestSourceWithStore(store, logger).Load(context.Background())
	if err == nil {
		t.Fatal("expected store error")
	}
}
