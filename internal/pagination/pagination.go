// Package pagination presents cursor connections as offset/limit windows.
// Pages are walked sequentially from the nearest cached cursor; the cursor
// cache is shared by all invocations.
package pagination

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/catalog"
	"github.com/triage-ai/graphql-mcp/internal/graphql"
	"github.com/triage-ai/graphql-mcp/internal/toolerr"
)

const (
	DefaultPageSize = 100
	DefaultLimit    = 20
	DefaultMaxLimit = 100
)

// Invoker executes one backend call.
type Invoker interface {
	Invoke(ctx context.Context, desc *catalog.OperationDescriptor, args map[string]any) (*graphql.Result, error)
}

// Observer is told about page fetches and cache lookups.
type Observer interface {
	ObservePageFetch(operation string)
	ObserveCursorLookup(operation string, hit bool)
}

// Config sizes windows and backend pages. Zero values take the defaults.
type Config struct {
	PageSize     int
	DefaultLimit int
	MaxLimit     int
}

// Window is a caller-facing slice of a connection.
type Window struct {
	Offset int
	// Limit 0 means the configured default.
	Limit int
}

// Page is the materialized window.
type Page struct {
	Items   []json.RawMessage `json:"items"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	HasMore bool              `json:"hasMore"`
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	client   Invoker
	cache    *CursorCache
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

// NewNormalizer returns a Normalizer backed by cache. observer may be nil.
func NewNormalizer(client Invoker, cache *CursorCache, cfg Config, observer Observer, logger *zap.Logger) *Normalizer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = DefaultMaxLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{client: client, cache: cache, cfg: cfg, observer: observer, logger: logger}
}

// Config returns the effective configuration.
func (n *Normalizer) Config() Config { return n.cfg }

// Cache returns the shared cursor cache.
func (n *Normalizer) Cache() *CursorCache { return n.cache }

type connectionData struct {
	Edges []struct {
		Node json.RawMessage `json:"node"`
	} `json:"edges"`
	PageInfo struct {
		HasNextPage bool    `json:"hasNextPage"`
		EndCursor   *string `json:"endCursor"`
	} `json:"pageInfo"`
}

// Fetch returns the window w of the connection desc returns for args. Cursor
// arguments in args are ignored.
func (n *Normalizer) Fetch(ctx context.Context, desc *catalog.OperationDescriptor, args map[string]any, w Window) (*Page, error) {
	if !desc.Paginated {
		return nil, toolerr.Newf(toolerr.KindInternal, "operation %q is not a connection", desc.Name)
	}
	if w.Offset < 0 {
		return nil, toolerr.New(toolerr.KindValidation, "argument offset: must be >= 0")
	}
	limit := w.Limit
	switch {
	case limit == 0:
		limit = n.cfg.DefaultLimit
	case limit < 0:
		return nil, toolerr.New(toolerr.KindValidation, "argument limit: must be >= 1")
	case limit > n.cfg.MaxLimit:
		limit = n.cfg.MaxLimit
	}

	base := make(map[string]any, len(args)+2)
	for k, v := range args {
		if !catalog.IsCursorArgument(k) {
			base[k] = v
		}
	}
	scope, err := scopeOf(base)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindValidation, err, "arguments are not JSON encodable")
	}

	pos, cursor := n.cache.Nearest(desc.Name, scope, w.Offset)
	if n.observer != nil {
		n.observer.ObserveCursorLookup(desc.Name, pos > 0)
	}

	page := &Page{Items: make([]json.RawMessage, 0, limit), Offset: w.Offset, Limit: limit}
	end := w.Offset + limit
	for {
		if err := ctx.Err(); err != nil {
			return nil, toolerr.Wrap(toolerr.KindTransport, err, "pagination cancelled")
		}

		call := make(map[string]any, len(base)+2)
		for k, v := range base {
			call[k] = v
		}
		call["first"] = n.cfg.PageSize
		if cursor != "" {
			call["after"] = cursor
		}

		res, err := n.client.Invoke(ctx, desc, call)
		if err != nil {
			return nil, err
		}
		if n.observer != nil {
			n.observer.ObservePageFetch(desc.Name)
		}

		var conn *connectionData
		if err := json.Unmarshal(res.Data, &conn); err != nil {
			return nil, toolerr.Wrap(toolerr.KindTransport, err, fmt.Sprintf("decode %s connection", desc.Name))
		}
		if conn == nil {
			conn = &connectionData{}
		}

		for i, e := range conn.Edges {
			at := pos + i
			if at >= w.Offset && at < end {
				page.Items = append(page.Items, e.Node)
			} else if at >= end {
				page.HasMore = true
			}
		}
		pos += len(conn.Edges)

		if !conn.PageInfo.HasNextPage {
			break
		}
		if conn.PageInfo.EndCursor == nil || *conn.PageInfo.EndCursor == "" {
			return nil, toolerr.Newf(toolerr.KindPagination, "%s reported hasNextPage without endCursor at offset %d", desc.Name, pos)
		}
		if len(conn.Edges) == 0 {
			return nil, toolerr.Newf(toolerr.KindPagination, "%s returned an empty page with hasNextPage at offset %d", desc.Name, pos)
		}
		cursor = *conn.PageInfo.EndCursor
		if !n.cache.Record(desc.Name, scope, pos, cursor) {
			n.logger.Debug("cursor cache kept existing entry",
				zap.String("operation", desc.Name),
				zap.Int("offset", pos),
			)
		}
		if pos >= end {
			page.HasMore = true
			break
		}
	}

	if w.Offset > 0 && w.Offset >= pos {
		return nil, toolerr.Newf(toolerr.KindPagination, "offset %d is beyond the end of %s (%d items)", w.Offset, desc.Name, pos)
	}
	return page, nil
}

// scopeOf hashes the canonical JSON of the non-cursor arguments.
// encoding/json sorts map keys, so equal argument sets hash equally.
func scopeOf(args map[string]any) (string, error) {
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
