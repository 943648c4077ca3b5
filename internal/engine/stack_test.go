package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/graphql"
	"github.com/triage-ai/graphql-mcp/internal/pagination"
	"github.com/triage-ai/graphql-mcp/internal/registry"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

const shopSchema = `
input ProductFilter { priceLte: Float channel: String }
type Product { id: ID! name: String! price: Float! }
type PageInfo { hasNextPage: Boolean! endCursor: String }
type ProductEdge { cursor: String! node: Product! }
type ProductConnection { edges: [ProductEdge!]! pageInfo: PageInfo! }

type Query {
  products(first: Int, after: String, filter: ProductFilter): ProductConnection
}
`

type shopProduct struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// shopBackend serves products with price 5*i, filtered by priceLte and the PL
// channel. Cursors encode the position after the edge.
type shopBackend struct {
	calls    atomic.Int32
	products []shopProduct
}

func newShopBackend(n int) *shopBackend {
	b := &shopBackend{}
	for i := 0; i < n; i++ {
		b.products = append(b.products, shopProduct{ID: strconv.Itoa(i), Name: fmt.Sprintf("Product %d", i), Price: float64(5 * i)})
	}
	return b
}

func (b *shopBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.calls.Add(1)
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var matched []shopProduct
	filter, _ := req.Variables["filter"].(map[string]any)
	for _, p := range b.products {
		if lte, ok := filter["priceLte"].(float64); ok && p.Price > lte {
			continue
		}
		if ch, ok := filter["channel"].(string); ok && ch != "PL" {
			continue
		}
		matched = append(matched, p)
	}

	start := 0
	if after, ok := req.Variables["after"].(string); ok {
		start, _ = strconv.Atoi(strings.TrimPrefix(after, "c"))
	}
	first := int(req.Variables["first"].(float64))
	end := start + first
	if end > len(matched) {
		end = len(matched)
	}

	type edge struct {
		Cursor string      `json:"cursor"`
		Node   shopProduct `json:"node"`
	}
	edges := make([]edge, 0, end-start)
	for i := start; i < end; i++ {
		edges = append(edges, edge{Cursor: fmt.Sprintf("c%d", i+1), Node: matched[i]})
	}
	resp := map[string]any{"data": map[string]any{"products": map[string]any{
		"edges":    edges,
		"pageInfo": map[string]any{"hasNextPage": end < len(matched), "endCursor": fmt.Sprintf("c%d", end)},
	}}}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newShopDispatcher(t *testing.T, b *shopBackend) *Dispatcher {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	logger, _ := zap.NewDevelopment()

	cat, err := catalog.Parse("shop.graphql", shopSchema, catalog.Options{})
	if err != nil {
		t.Fatal(err)
	}
	client, err := graphql.NewClient(graphql.Config{Endpoint: srv.URL, Timeout: 5 * time.Second}, logger)
	if err != nil {
		t.Fatal(err)
	}
	cfg := pagination.Config{PageSize: 8, DefaultLimit: 10, MaxLimit: 50}
	normalizer := pagination.NewNormalizer(client, pagination.NewCursorCache(time.Minute), cfg, nil, logger)

	reg := registry.New(cfg, logger)
	products, _ := cat.Lookup("products")
	if _, err := reg.Register(products, "search_products", []registry.ExposedArg{{Name: "filter"}}); err != nil {
		t.Fatal(err)
	}
	reg.Seal()

	return NewDispatcher(reg, client, normalizer, &recordingWriter{}, &recordingObserver{}, logger)
}

func decodePage(t *testing.T, env *Envelope) pagination.Page {
	t.Helper()
	if env.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", env.Error)
	}
	var page pagination.Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatal(err)
	}
	return page
}

func TestDispatch_SearchProductsEndToEnd(t *testing.T) {
	b := newShopBackend(40)
	d := newShopDispatcher(t, b)
	ctx := context.Background()

	env := d.Dispatch(ctx, Call{
		ToolName:  "search_products",
		Arguments: json.RawMessage(`{"filter":{"priceLte":100,"channel":"PL"},"limit":10,"offset":0}`),
	})
	page := decodePage(t, env)
	if len(page.Items) != 10 || page.Offset != 0 || page.Limit != 10 || !page.HasMore {
		t.Fatalf("unexpected page %s", env.Data)
	}
	for i, raw := range page.Items {
		var p shopProduct
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Fatal(err)
		}
		if p.Price > 100 || p.ID != strconv.Itoa(i) {
			t.Fatalf("item %d: unexpected product %+v", i, p)
		}
	}
	if got := b.calls.Load(); got != 2 {
		t.Fatalf("expected 2 backend calls, got %d", got)
	}

	// The second window resumes from the cursor recorded at offset 8.
	env = d.Dispatch(ctx, Call{
		ToolName:  "search_products",
		Arguments: json.RawMessage(`{"filter":{"priceLte":100,"channel":"PL"},"limit":10,"offset":10}`),
	})
	page = decodePage(t, env)
	if len(page.Items) != 10 || page.Offset != 10 || !page.HasMore {
		t.Fatalf("unexpected page %s", env.Data)
	}
	var first shopProduct
	if err := json.Unmarshal(page.Items[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.ID != "10" {
		t.Fatalf("expected window to start at product 10, got %+v", first)
	}
	if got := b.calls.Load(); got != 4 {
		t.Fatalf("expected 4 backend calls in total, got %d", got)
	}

	env = d.Dispatch(ctx, Call{ToolName: "search_orders", Arguments: json.RawMessage(`{}`)})
	if env.Status != StatusError || env.Error.Kind != toolerr.KindNotFound {
		t.Fatalf("expected NotFound, got %+v", env)
	}
	if got := b.calls.Load(); got != 4 {
		t.Fatalf("unknown tool must not reach the backend, got %d calls", got)
	}
}
