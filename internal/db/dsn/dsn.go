// Package dsn turns a database URL into a gorm dialector.
package dsn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrUnsupportedScheme is returned for URLs without a known driver prefix.
var ErrUnsupportedScheme = errors.New("unsupported database url scheme")

// Engine names the driver picked for a URL.
type Engine string

const (
	// EngineSQLite selects github.com/glebarez/sqlite.
	EngineSQLite Engine = "sqlite"
	// EnginePostgres selects gorm.io/driver/postgres.
	EnginePostgres Engine = "postgres"
	// EngineMySQL selects gorm.io/driver/mysql.
	EngineMySQL Engine = "mysql"
)

// Parse splits a database URL into its engine and the driver specific DSN.
//
//	sqlite:///./db.sqlite3           -> sqlite, ./db.sqlite3
//	sqlite:////var/lib/app.db        -> sqlite, /var/lib/app.db
//	postgres://u:p@host:5432/db      -> postgres, unchanged
//	mysql://u:p@tcp(host:3306)/db    -> mysql, u:p@tcp(host:3306)/db?parseTime=true
func Parse(url string) (Engine, string, error) {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		// sqlite:///relative and sqlite:////absolute
		path = strings.TrimPrefix(path, "/")

		if path == "" {
			return "", "", fmt.Errorf("%w: empty sqlite path", ErrUnsupportedScheme)
		}

		return EngineSQLite, path, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return EnginePostgres, url, nil
	case strings.HasPrefix(url, "mysql://"):
		out := strings.TrimPrefix(url, "mysql://")
		if !strings.Contains(out, "parseTime=") {
			sep := "?"
			if strings.Contains(out, "?") {
				sep = "&"
			}

			out += sep + "parseTime=true"
		}

		return EngineMySQL, out, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, redact(url))
	}
}

// Dialector opens the gorm dialector for a database URL.
func Dialector(url string) (gorm.Dialector, error) {
	engine, dsn, err := Parse(url)
	if err != nil {
		return nil, err
	}

	switch engine {
	case EnginePostgres:
		return postgres.Open(dsn), nil
	case EngineMySQL:
		return mysql.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// redact strips credentials so a bad URL can be logged.
func redact(url string) string {
	scheme, rest, found := strings.Cut(url, "://")
	if !found {
		return "<invalid>"
	}

	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = rest[at+1:]
	}

	return scheme + "://" + rest
}
