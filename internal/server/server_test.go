package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/auth"
	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/engine"
	"github.com/triage-ai/graphql-mcp/internal/pagination"
	"github.com/triage-ai/graphql-mcp/internal/registry"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

const testSchema = `
type Product { id: ID! name: String! }
type Query { product(id: ID!): Product }
`

// fakeDispatcher records calls and returns canned envelopes.
type fakeDispatcher struct {
	mu    sync.Mutex
	tools []*registry.ToolDefinition
	calls []engine.Call
	hosts []*auth.Host
}

func (f *fakeDispatcher) Tools() []*registry.ToolDefinition { return f.tools }

func (f *fakeDispatcher) Dispatch(ctx context.Context, call engine.Call) *engine.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.hosts = append(f.hosts, auth.HostFrom(ctx))
	if call.ToolName != "fetch" {
		return &engine.Envelope{
			Status:    engine.StatusError,
			Error:     &engine.ErrorBody{Kind: toolerr.KindNotFound, Message: "tool not found"},
			RequestID: "req-1",
		}
	}
	return &engine.Envelope{Status: engine.StatusSuccess, Data: json.RawMessage(`{"id":"1"}`), RequestID: "req-1"}
}

func (f *fakeDispatcher) lastCall(t *testing.T) (engine.Call, *auth.Host) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("expected a dispatched call")
	}
	return f.calls[len(f.calls)-1], f.hosts[len(f.hosts)-1]
}

func newFakeDispatcher(t *testing.T) *fakeDispatcher {
	t.Helper()
	cat, err := catalog.Parse("test.graphql", testSchema, catalog.Options{})
	if err != nil {
		t.Fatal(err)
	}
	reg := registry.New(pagination.Config{}, zap.NewNop())
	op, _ := cat.Lookup("product")
	readOnly := true
	if _, err := reg.Register(op, "fetch", []registry.ExposedArg{{Name: "id"}},
		registry.WithTitle("Fetch product"),
		registry.WithAnnotations(registry.Annotations{ReadOnly: &readOnly}),
	); err != nil {
		t.Fatal(err)
	}
	reg.Seal()
	return &fakeDispatcher{tools: reg.List()}
}
