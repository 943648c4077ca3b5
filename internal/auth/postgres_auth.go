package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCacheTTL is used when no cache TTL is configured.
const DefaultCacheTTL = 30 * time.Second

// HostStore abstracts DB queries for testability.
type HostStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*hostRow, error)
}

type hostRow struct {
	HostID     string
	Name       string
	APIKeyHash string
	Revoked    bool
}

// sqlHostStore is the real implementation using *sql.DB.
type sqlHostStore struct {
	db *sql.DB
}

func (s *sqlHostStore) LookupByPrefix(ctx context.Context, prefix string) (*hostRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT host_id, name, api_key_hash, revoked_at IS NOT NULL
		FROM api_keys
		WHERE api_key_prefix = $1
	`, prefix)

	var r hostRow
	if err := row.Scan(&r.HostID, &r.Name, &r.APIKeyHash, &r.Revoked); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates gqm_ API keys against the api_keys table.
type PostgresAuthenticator struct {
	store    HostStore
	cache    *AuthCache
	logger   *zap.Logger
	failOpen bool
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	FailOpen bool
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	return NewPostgresAuthenticatorWithStore(&sqlHostStore{db: cfg.DB}, cfg.CacheTTL, cfg.FailOpen, cfg.Logger)
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store HostStore, cacheTTL time.Duration, failOpen bool, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &PostgresAuthenticator{
		store:    store,
		cache:    NewAuthCache(cacheTTL),
		logger:   logger,
		failOpen: failOpen,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, token string) (*Host, error) {
	if !strings.HasPrefix(token, KeyPrefix) || len(token) < prefixLength {
		return nil, ErrUnauthenticated
	}

	cacheResult := a.cache.Get(token)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return cacheResult.Host, nil
	}

	host, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		if a.failOpen {
			a.logger.Warn("auth lookup failed, degrading to fail-open", zap.Error(err))
			return AnonymousHost, nil
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(token, host)
	return host, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*Host, error) {
	row, err := a.store.LookupByPrefix(ctx, token[:prefixLength])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}
	if row.Revoked {
		return nil, ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}
	return &Host{ID: row.HostID, Name: row.Name}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host, err := a.authenticateFromDB(ctx, token)
	if errors.Is(err, ErrUnauthenticated) {
		a.logger.Info("api key no longer valid, evicting from cache")
		a.cache.Delete(token)
		return
	}
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(token, host)
}
