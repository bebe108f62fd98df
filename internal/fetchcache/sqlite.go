// Package fetchcache persists raw provider payloads in SQLite so repeated
// analyses of the same area do not refetch the walk network or features.
package fetchcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Cache is a TTL cache of JSON payloads backed by modernc.org/sqlite.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the cache database at dsn and configures WAL mode.
func Open(dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "fetchcache: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "fetchcache: exec %s", pragma)
		}
	}
	return &Cache{db: db, now: time.Now}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	kind       TEXT NOT NULL,
	key        TEXT NOT NULL,
	payload    BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (kind, key)
);

CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires_at ON fetch_cache(expires_at);
`

// Migrate creates the cache schema.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "fetchcache: migrate")
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get decodes the live payload stored under (kind, key) into dst. It
// reports false on a miss or an expired entry.
func (c *Cache) Get(ctx context.Context, kind, key string, dst any) (bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT payload FROM fetch_cache WHERE kind = ? AND key = ? AND expires_at > ?`,
		kind, key, c.now().Unix(),
	)
	var payload []byte
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "fetchcache: get %s", kind)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, eris.Wrapf(err, "fetchcache: unmarshal %s", kind)
	}
	return true, nil
}

// Set stores v under (kind, key) for ttl, replacing any previous entry.
func (c *Cache) Set(ctx context.Context, kind, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "fetchcache: marshal %s", kind)
	}
	now := c.now()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO fetch_cache (kind, key, payload, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (kind, key) DO UPDATE SET
		   payload = excluded.payload,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at`,
		kind, key, payload, now.Unix(), now.Add(ttl).Unix(),
	)
	return eris.Wrapf(err, "fetchcache: set %s", kind)
}

// Prune deletes expired entries and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM fetch_cache WHERE expires_at <= ?`, c.now().Unix(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "fetchcache: prune")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "fetchcache: rows affected")
}

// Clear deletes every entry of the given kind, or all entries when kind is
// empty.
func (c *Cache) Clear(ctx context.Context, kind string) (int, error) {
	var (
		res sql.Result
		err error
	)
	if kind == "" {
		res, err = c.db.ExecContext(ctx, `DELETE FROM fetch_cache`)
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM fetch_cache WHERE kind = ?`, kind)
	}
	if err != nil {
		return 0, eris.Wrap(err, "fetchcache: clear")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "fetchcache: rows affected")
}

// KindStats counts cache entries of one kind.
type KindStats struct {
	Kind    string `json:"kind"`
	Live    int    `json:"live"`
	Expired int    `json:"expired"`
}

// Stats returns live and expired entry counts per kind.
func (c *Cache) Stats(ctx context.Context) ([]KindStats, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT kind,
		        SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END),
		        SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END)
		 FROM fetch_cache GROUP BY kind ORDER BY kind`,
		c.now().Unix(), c.now().Unix(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "fetchcache: stats")
	}
	defer rows.Close() //nolint:errcheck

	var out []KindStats
	for rows.Next() {
		var ks KindStats
		if err := rows.Scan(&ks.Kind, &ks.Live, &ks.Expired); err != nil {
			return nil, eris.Wrap(err, "fetchcache: scan stats")
		}
		out = append(out, ks)
	}
	return out, eris.Wrap(rows.Err(), "fetchcache: iterate stats")
}

// Key hashes the given parts into a stable cache key.
func Key(parts ...any) string {
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = fmt.Sprint(p)
	}
	sum := sha256.Sum256([]byte(strings.Join(s, "|")))
	return hex.EncodeToString(sum[:])
}
