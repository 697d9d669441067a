package problem

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hurttlocker/arena/internal/logging"
)

// Catalog indexes the problem bundles under a root directory in a
// SQLite database so listing and lookup never re-read every bundle.
type Catalog struct {
	db  *sql.DB
	log *zap.Logger
}

// NewCatalog opens (or creates) the catalog database. Pass ":memory:"
// for tests.
func NewCatalog(dbPath string) (*Catalog, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	c := &Catalog{db: db, log: logging.Logger().Named("problem.catalog")}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	_, err := c.db.Exec(`
CREATE TABLE IF NOT EXISTS problems (
    id            TEXT PRIMARY KEY,
    dir           TEXT NOT NULL,
    problem_type  TEXT NOT NULL,
    score_type    TEXT NOT NULL,
    time_limit    REAL NOT NULL,
    memory_limit  INTEGER NOT NULL,
    contest_hours REAL NOT NULL,
    indexed_at    TEXT NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("creating problems table: %w", err)
	}
	return nil
}

// Sync scans root for problem bundles and upserts each one. Bundles
// that fail to load are skipped with a warning.
func (c *Catalog) Sync(ctx context.Context, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("scanning problem root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "problem.yaml")); err != nil {
			continue
		}
		p, err := Load(dir)
		if err != nil {
			c.log.Warn("skipping unloadable problem bundle", zap.String("dir", dir), zap.Error(err))
			continue
		}
		_, err = c.db.ExecContext(ctx, `
INSERT INTO problems (id, dir, problem_type, score_type, time_limit, memory_limit, contest_hours, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    dir = excluded.dir,
    problem_type = excluded.problem_type,
    score_type = excluded.score_type,
    time_limit = excluded.time_limit,
    memory_limit = excluded.memory_limit,
    contest_hours = excluded.contest_hours,
    indexed_at = excluded.indexed_at`,
			p.ID, dir, string(p.Type), string(p.ScoreType),
			p.TimeLimit, p.MemoryLimit, p.ContestLength.Hours(),
			time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("indexing problem %s: %w", p.ID, err)
		}
	}
	return nil
}

// ListIDs returns every indexed problem id in lexicographic order.
func (c *Catalog) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id FROM problems ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing problems: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get loads the full bundle for one problem id.
func (c *Catalog) Get(ctx context.Context, id string) (*Problem, error) {
	var dir string
	err := c.db.QueryRowContext(ctx, "SELECT dir FROM problems WHERE id = ?", id).Scan(&dir)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unknown problem id %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up problem %s: %w", id, err)
	}
	return Load(dir)
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
