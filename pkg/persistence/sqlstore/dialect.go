package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour and the database/sql driver.
type Dialect string

const (
	// SQLite uses github.com/mattn/go-sqlite3
	SQLite Dialect = "sqlite3"

	// Postgres uses the github.com/jackc/pgx/v5 stdlib driver
	Postgres Dialect = "pgx"
)

// TableName is the single table holding every imported entity
const TableName = "daedalus_entities"

// ParseDSN maps a store DSN to a dialect and a driver data source name.
//
//	sqlite://orders.db, file:orders.db, :memory:  -> SQLite
//	postgres://..., postgresql://...              -> Postgres
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == ":memory:":
		return SQLite, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlite DSN %q has no path", dsn)
		}
		return SQLite, path, nil
	case strings.HasPrefix(dsn, "file:"):
		return SQLite, dsn, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return Postgres, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported store DSN %q", dsn)
	}
}

func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d Dialect) schema() []string {
	if d == Postgres {
		return []string{
			`CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	data JSONB NOT NULL
)`,
			`CREATE INDEX IF NOT EXISTS ` + TableName + `_type_idx ON ` + TableName + ` (entity_type)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	data TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS ` + TableName + `_type_idx ON ` + TableName + ` (entity_type)`,
	}
}

func (d Dialect) upsert() string {
	return fmt.Sprintf(`INSERT INTO %s (id, entity_type, data) VALUES (%s, %s, %s)
ON CONFLICT (id) DO UPDATE SET entity_type = excluded.entity_type, data = excluded.data`,
		TableName, d.placeholder(1), d.placeholder(2), d.placeholder(3))
}

// lookup builds the query matching every named property. Names must be
// sorted by the caller; arguments are the JSON path (or key) followed by the
// canonical value for non-null keys.
func (d Dialect) lookup(names []string, nulls map[string]bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT id, data FROM %s WHERE entity_type = %s", TableName, d.placeholder(1))
	n := 2
	for _, name := range names {
		expr := fmt.Sprintf("json_extract(data, %s)", d.placeholder(n))
		if d == Postgres {
			expr = fmt.Sprintf("data->>(%s::text)", d.placeholder(n))
		}
		n++
		if nulls[name] {
			fmt.Fprintf(&b, " AND %s IS NULL", expr)
			continue
		}
		fmt.Fprintf(&b, " AND %s = %s", expr, d.placeholder(n))
		n++
	}
	b.WriteString(" LIMIT 1")
	return b.String()
}

func (d Dialect) path(name string) string {
	if d == Postgres {
		return name
	}
	return `$."` + name + `"`
}
