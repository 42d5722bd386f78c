// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Service types served by this package
const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// dialect holds the per-database SQL the handler needs
type dialect struct {
	driver        string
	listTables    string
	columns       string
	defaultSchema string
}

var dialects = map[string]dialect{
	TypePostgres: {
		driver: "postgres",
		listTables: `SELECT table_schema, table_name FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema') ORDER BY table_schema, table_name`,
		columns: `SELECT column_name, data_type, is_nullable, COALESCE(column_default, '') FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`,
		defaultSchema: "public",
	},
	TypeMySQL: {
		driver: "mysql",
		listTables: `SELECT table_schema, table_name FROM information_schema.tables
WHERE table_schema = DATABASE() ORDER BY table_schema, table_name`,
		columns: `SELECT column_name, data_type, is_nullable, COALESCE(column_default, '') FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ? ORDER BY ordinal_position`,
	},
}

// dataSourceName normalizes connection_url for the driver. PostgreSQL URLs
// are converted to key=value form; MySQL DSNs get safe defaults forced on.
func dataSourceName(serviceType, raw, username, password string) (string, error) {
	switch serviceType {
	case TypePostgres:
		if strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://") {
			dsn, err := pq.ParseURL(raw)
			if err != nil {
				return "", err
			}
			raw = dsn
		}
		if username != "" {
			raw += " user=" + quotePQ(username)
		}
		if password != "" {
			raw += " password=" + quotePQ(password)
		}
		return raw, nil
	case TypeMySQL:
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(raw, "mysql://"))
		if err != nil {
			return "", err
		}
		if username != "" {
			cfg.User = username
		}
		if password != "" {
			cfg.Passwd = password
		}
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		cfg.MultiStatements = false
		cfg.InterpolateParams = false
		if cfg.Timeout == 0 {
			cfg.Timeout = 10 * time.Second
		}
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported SQL type %q", serviceType)
	}
}

func quotePQ(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
