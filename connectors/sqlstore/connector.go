// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

const (
	defaultMaxRows = 1000
	maxParams      = 100
)

var (
	readStatement = regexp.MustCompile(`(?is)^\s*(SELECT|WITH|SHOW|EXPLAIN|VALUES|TABLE)\b`)
	writeKeyword  = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|MERGE|UPSERT|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|CALL|COPY|LOCK|VACUUM|REINDEX|REPLACE\s+INTO|INTO\s+OUTFILE|SET)\b`)
	lineComment   = regexp.MustCompile(`--[^\n]*`)
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Connector runs read-only SQL against one database
type Connector struct {
	*sdk.BaseConnector
	db      *sql.DB
	dialect dialect
	maxRows int
}

// New opens a pool for cfg.Type ("postgres" or "mysql"). sql.Open does not
// dial; the first query or health probe does.
func New(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil || cfg.ConnectionURL == "" {
		return nil, base.NewConnectorError("sql", "New", "connection_url is required", nil)
	}
	d, ok := dialects[cfg.Type]
	if !ok {
		return nil, base.NewConnectorError(cfg.Name, "New", fmt.Sprintf("unsupported type %q", cfg.Type), nil)
	}
	dsn, err := dataSourceName(cfg.Type, cfg.ConnectionURL, cfg.Credential("username"), cfg.Credential("password"))
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "invalid connection_url", err)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "failed to open connection pool", err)
	}

	db.SetMaxOpenConns(cfg.IntOption("max_open_conns", 25))
	db.SetMaxIdleConns(cfg.IntOption("max_idle_conns", 5))
	lifetime := 5 * time.Minute
	if v := cfg.StringOption("conn_max_lifetime", ""); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			lifetime = parsed
		}
	}
	db.SetConnMaxLifetime(lifetime)

	return NewWithDB(cfg, db)
}

// NewWithDB builds the handler on an open pool, which Shutdown closes
func NewWithDB(cfg *base.ConnectorConfig, db *sql.DB) (*Connector, error) {
	d, ok := dialects[cfg.Type]
	if !ok {
		return nil, base.NewConnectorError(cfg.Name, "New", fmt.Sprintf("unsupported type %q", cfg.Type), nil)
	}
	b := sdk.NewBaseConnector(cfg.Type, cfg)
	c := &Connector{
		BaseConnector: b,
		db:            db,
		dialect:       d,
		maxRows:       cfg.IntOption("max_rows", defaultMaxRows),
	}

	ops := c.Operations()
	ops.MustRegister(types.Capability{
		Name:        "query",
		Aliases:     []string{"select"},
		Description: "Run a read-only SQL statement",
		Parameters: []types.Parameter{
			{Name: "sql", Type: "string", Required: true, Positional: true},
			{Name: "params", Type: "array", Description: "Bind parameters"},
			{Name: "limit", Type: "integer", Description: "Maximum rows returned"},
		},
		RequiresAuth: true,
		TokenCost:    5,
		Permission:   "sql:read",
		ReadOnly:     true,
	}, c.query)
	ops.MustRegister(types.Capability{
		Name:         "list-tables",
		Description:  "List tables visible to the service user",
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "sql:read",
		ReadOnly:     true,
	}, c.listTables)
	ops.MustRegister(types.Capability{
		Name:        "describe-table",
		Description: "List the columns of a table",
		Parameters: []types.Parameter{
			{Name: "table", Type: "string", Description: "table or schema.table", Required: true, Positional: true},
		},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "sql:read",
		ReadOnly:     true,
	}, c.describeTable)

	c.OnShutdown(func(context.Context) error { return c.db.Close() })
	return c, nil
}

// QueryResult is the result of query
type QueryResult struct {
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	RowCount  int                      `json:"rowCount"`
	Truncated bool                     `json:"truncated"`
}

// Table identifies one table
type Table struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// Column describes one table column
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Nullable bool   `json:"nullable"`
	Default  string `json:"default,omitempty"`
}

// CheckReadOnly rejects anything but a single read statement
func CheckReadOnly(statement string) error {
	stripped := blockComment.ReplaceAllString(statement, " ")
	stripped = lineComment.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)
	stripped = strings.TrimSuffix(stripped, ";")

	if stripped == "" {
		return errors.New("statement is empty")
	}
	if strings.Contains(stripped, ";") {
		return errors.New("only one statement is allowed")
	}
	if !readStatement.MatchString(stripped) {
		return errors.New("only SELECT, WITH, SHOW, EXPLAIN, VALUES and TABLE statements are allowed")
	}
	if kw := writeKeyword.FindString(stripped); kw != "" {
		return fmt.Errorf("keyword %s is not allowed", strings.ToUpper(kw))
	}
	return nil
}

func (c *Connector) query(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	statement := base.Param(req, 0, "sql")
	if err := CheckReadOnly(statement); err != nil {
		return nil, base.InvalidParameter(req.Operation, "sql", err.Error())
	}

	var args []interface{}
	if raw, ok := req.Option("params"); ok {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, base.InvalidParameter(req.Operation, "params", "must be an array")
		}
		if len(list) > maxParams {
			return nil, base.InvalidParameter(req.Operation, "params", fmt.Sprintf("at most %d parameters", maxParams))
		}
		args = list
	}

	limit := req.IntOption("limit", c.maxRows)
	if limit < 1 || limit > c.maxRows {
		return nil, base.InvalidParameter(req.Operation, "limit", fmt.Sprintf("must be between 1 and %d", c.maxRows))
	}

	var result QueryResult
	err := c.readOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, statement, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		if result.Columns, err = rows.Columns(); err != nil {
			return err
		}
		result.Rows = make([]map[string]interface{}, 0)
		for rows.Next() {
			if len(result.Rows) >= limit {
				result.Truncated = true
				break
			}
			row, err := scanRow(rows, result.Columns)
			if err != nil {
				return err
			}
			result.Rows = append(result.Rows, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	result.RowCount = len(result.Rows)

	return &base.Result{Data: result, TokensUsed: 5 + result.RowCount/10}, nil
}

func (c *Connector) listTables(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	tables := make([]Table, 0)
	err := c.readOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, c.dialect.listTables)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var t Table
			if err := rows.Scan(&t.Schema, &t.Name); err != nil {
				return err
			}
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	return base.NewResult(tables), nil
}

func (c *Connector) describeTable(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	name := base.Param(req, 0, "table")
	if err := base.ValidateSQLIdentifier(name); err != nil {
		return nil, base.InvalidParameter(req.Operation, "table", err.Error())
	}
	schema, table := c.dialect.defaultSchema, name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		schema, table = name[:i], name[i+1:]
	}

	columns := make([]Column, 0)
	err := c.readOnly(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, c.dialect.columns, schema, table)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var col Column
			var nullable string
			if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.Default); err != nil {
				return err
			}
			col.Nullable = strings.EqualFold(nullable, "YES")
			columns = append(columns, col)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	if len(columns) == 0 {
		return nil, base.NotFound(c.Name(), "table "+name)
	}
	return base.NewResult(map[string]interface{}{"table": name, "columns": columns}), nil
}

// readOnly runs fn in a read-only transaction that is always rolled back
func (c *Connector) readOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

func scanRow(rows *sql.Rows, columns []string) (map[string]interface{}, error) {
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	row := make(map[string]interface{}, len(columns))
	for i, col := range columns {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}

// mapError sorts driver errors into caller mistakes and backend failures
func (c *Connector) mapError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return base.MapTransportError(c.Name(), operation, ctxErr)
	}
	details := map[string]interface{}{"service": c.Name(), "operation": operation}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		details["sqlState"] = string(pqErr.Code)
		switch pqErr.Code.Class() {
		case "42", "22":
			details["backendMessage"] = base.SanitizeLogString(pqErr.Message)
			return types.NewValidationError(types.CodeInvalidParameter, "query rejected by database", details)
		case "28":
			return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", details)
		case "25":
			return types.NewValidationError(types.CodeInvalidParameter, "statement is not allowed in a read-only transaction", details)
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		details["errorNumber"] = myErr.Number
		switch myErr.Number {
		case 1054, 1064, 1146, 1149:
			details["backendMessage"] = base.SanitizeLogString(myErr.Message)
			return types.NewValidationError(types.CodeInvalidParameter, "query rejected by database", details)
		case 1044, 1045, 1142:
			return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", details)
		case 1792:
			return types.NewValidationError(types.CodeInvalidParameter, "statement is not allowed in a read-only transaction", details)
		}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return types.NewServiceUnavailableError(fmt.Sprintf("%s connection lost", c.Name()), err)
	}
	return base.MapTransportError(c.Name(), operation, err)
}

// HealthCheck pings the pool and reports its statistics
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	err := c.db.PingContext(ctx)
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	stats := c.db.Stats()
	status.Details = map[string]string{
		"open_connections": fmt.Sprintf("%d", stats.OpenConnections),
		"in_use":           fmt.Sprintf("%d", stats.InUse),
		"idle":             fmt.Sprintf("%d", stats.Idle),
	}
	return status, nil
}
