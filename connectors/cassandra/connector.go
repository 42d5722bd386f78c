// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package cassandra runs read-only CQL against Apache Cassandra or ScyllaDB
package cassandra

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Type is the service type this handler serves
const Type = "cassandra"

const (
	defaultMaxRows = 1000
	maxParams      = 100
	defaultPort    = "9042"
)

var (
	selectStatement = regexp.MustCompile(`(?is)^\s*SELECT\b`)
	cqlWriteKeyword = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|BATCH|APPLY|USE)\b`)
	cqlLineComment  = regexp.MustCompile(`(--|//)[^\n]*`)
	cqlBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cqlIdentifier   = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)
)

var consistencies = map[string]gocql.Consistency{
	"ANY":          gocql.Any,
	"ONE":          gocql.One,
	"TWO":          gocql.Two,
	"THREE":        gocql.Three,
	"QUORUM":       gocql.Quorum,
	"ALL":          gocql.All,
	"LOCAL_QUORUM": gocql.LocalQuorum,
	"EACH_QUORUM":  gocql.EachQuorum,
	"LOCAL_ONE":    gocql.LocalOne,
}

// Connector reads one keyspace
type Connector struct {
	*sdk.BaseConnector
	store    Store
	keyspace string
	maxRows  int
}

// New configures a cluster for connection_url
// (cassandra://host1:9042,host2/keyspace). The session is created on the
// first operation or health probe.
func New(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil || cfg.ConnectionURL == "" {
		return nil, base.NewConnectorError(Type, "New", "connection_url is required", nil)
	}
	hosts, keyspace, err := ParseConnectionURL(cfg.ConnectionURL)
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "invalid connection_url", err)
	}
	consistency, err := ParseConsistency(cfg.StringOption("consistency", "LOCAL_QUORUM"))
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "invalid consistency", err)
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = consistency
	cluster.Timeout = cfg.GetTimeout(5 * time.Second)
	cluster.ConnectTimeout = cluster.Timeout
	cluster.NumConns = cfg.IntOption("num_conns", 2)
	if user := cfg.Credential("username"); user != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: user,
			Password: cfg.Credential("password"),
		}
	}
	return NewWithStore(cfg, keyspace, &gocqlStore{cluster: cluster}), nil
}

// NewWithStore builds the handler on an existing store, which Shutdown
// closes
func NewWithStore(cfg *base.ConnectorConfig, keyspace string, store Store) *Connector {
	b := sdk.NewBaseConnector(Type, cfg)
	c := &Connector{
		BaseConnector: b,
		store:         store,
		keyspace:      keyspace,
		maxRows:       cfg.IntOption("max_rows", defaultMaxRows),
	}

	ops := c.Operations()
	ops.MustRegister(types.Capability{
		Name:        "query",
		Aliases:     []string{"select", "cql"},
		Description: "Run a CQL SELECT statement",
		Parameters: []types.Parameter{
			{Name: "cql", Type: "string", Required: true, Positional: true},
			{Name: "params", Type: "array", Description: "Bind parameters"},
			{Name: "limit", Type: "integer", Description: "Maximum rows returned"},
		},
		RequiresAuth: true,
		TokenCost:    5,
		Permission:   "cassandra:read",
		ReadOnly:     true,
	}, c.query)
	ops.MustRegister(types.Capability{
		Name:         "list-tables",
		Description:  "List the tables of the keyspace",
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "cassandra:read",
		ReadOnly:     true,
	}, c.listTables)
	ops.MustRegister(types.Capability{
		Name:        "describe-table",
		Description: "List the columns of a table",
		Parameters: []types.Parameter{
			{Name: "table", Type: "string", Required: true, Positional: true},
		},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "cassandra:read",
		ReadOnly:     true,
	}, c.describeTable)

	c.OnShutdown(func(context.Context) error { return c.store.Close() })
	return c
}

// ParseConnectionURL splits cassandra://host1:port,host2/keyspace. Hosts
// without a port get 9042.
func ParseConnectionURL(raw string) ([]string, string, error) {
	rest, ok := strings.CutPrefix(raw, "cassandra://")
	if !ok {
		return nil, "", errors.New("scheme must be cassandra://")
	}
	hostPart, keyspace, ok := strings.Cut(rest, "/")
	if !ok || keyspace == "" {
		return nil, "", errors.New("keyspace is required (cassandra://host:port/keyspace)")
	}
	if !cqlIdentifier.MatchString(keyspace) {
		return nil, "", fmt.Errorf("invalid keyspace %q", keyspace)
	}
	var hosts []string
	for _, h := range strings.Split(hostPart, ",") {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if !strings.Contains(h, ":") {
			h += ":" + defaultPort
		}
		hosts = append(hosts, h)
	}
	if len(hosts) == 0 {
		return nil, "", errors.New("at least one host is required")
	}
	return hosts, keyspace, nil
}

// ParseConsistency maps a consistency name such as LOCAL_QUORUM
func ParseConsistency(name string) (gocql.Consistency, error) {
	if c, ok := consistencies[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown consistency level %q", name)
}

// CheckReadOnly rejects anything but a single SELECT
func CheckReadOnly(statement string) error {
	stripped := cqlBlockComment.ReplaceAllString(statement, " ")
	stripped = cqlLineComment.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)
	stripped = strings.TrimSuffix(stripped, ";")

	if stripped == "" {
		return errors.New("statement is empty")
	}
	if strings.Contains(stripped, ";") {
		return errors.New("only one statement is allowed")
	}
	if !selectStatement.MatchString(stripped) {
		return errors.New("only SELECT statements are allowed")
	}
	if kw := cqlWriteKeyword.FindString(stripped); kw != "" {
		return fmt.Errorf("keyword %s is not allowed", strings.ToUpper(kw))
	}
	return nil
}

func (c *Connector) query(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	statement := base.Param(req, 0, "cql")
	if err := CheckReadOnly(statement); err != nil {
		return nil, base.InvalidParameter(req.Operation, "cql", err.Error())
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

	rows, err := c.store.Select(ctx, statement, args, limit)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	return &base.Result{
		Data: map[string]interface{}{
			"columns":   rows.Columns,
			"rows":      rows.Rows,
			"rowCount":  len(rows.Rows),
			"truncated": rows.Truncated,
		},
		TokensUsed: 5 + len(rows.Rows)/10,
	}, nil
}

func (c *Connector) listTables(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	rows, err := c.store.Select(ctx,
		"SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?",
		[]interface{}{c.keyspace}, c.maxRows)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	tables := make([]string, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		if name, ok := row["table_name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return base.NewResult(map[string]interface{}{"keyspace": c.keyspace, "tables": tables}), nil
}

// Column describes one table column
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Kind string `json:"kind"`
}

func (c *Connector) describeTable(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	table := base.Param(req, 0, "table")
	if !cqlIdentifier.MatchString(table) {
		return nil, base.InvalidParameter(req.Operation, "table", "must be a plain CQL identifier")
	}
	rows, err := c.store.Select(ctx,
		"SELECT column_name, type, kind FROM system_schema.columns WHERE keyspace_name = ? AND table_name = ?",
		[]interface{}{c.keyspace, table}, c.maxRows)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	if len(rows.Rows) == 0 {
		return nil, base.NotFound(c.Name(), "table "+table)
	}
	columns := make([]Column, 0, len(rows.Rows))
	for _, row := range rows.Rows {
		col := Column{}
		col.Name, _ = row["column_name"].(string)
		col.Type, _ = row["type"].(string)
		col.Kind, _ = row["kind"].(string)
		columns = append(columns, col)
	}
	return base.NewResult(map[string]interface{}{"table": table, "columns": columns}), nil
}

// mapError sorts driver errors into caller mistakes and backend failures
func (c *Connector) mapError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return base.MapTransportError(c.Name(), operation, ctxErr)
	}
	if errors.Is(err, gocql.ErrNotFound) {
		return base.NotFound(c.Name(), "row")
	}
	details := map[string]interface{}{"service": c.Name(), "operation": operation}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		details["errorCode"] = reqErr.Code()
		switch reqErr.Code() {
		case gocql.ErrCodeSyntax, gocql.ErrCodeInvalid:
			details["backendMessage"] = base.SanitizeLogString(reqErr.Message())
			return types.NewValidationError(types.CodeInvalidParameter, "query rejected by cluster", details)
		case gocql.ErrCodeUnauthorized, gocql.ErrCodeCredentials:
			return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", details)
		case gocql.ErrCodeUnavailable, gocql.ErrCodeOverloaded, gocql.ErrCodeBootstrapping,
			gocql.ErrCodeReadTimeout, gocql.ErrCodeReadFailure:
			e := types.NewServiceUnavailableError(fmt.Sprintf("%s cannot serve the read", c.Name()), err)
			e.Details = details
			return e
		}
	}
	if errors.Is(err, errStoreClosed) {
		return types.NewServiceUnavailableError(fmt.Sprintf("%s has been shut down", c.Name()), err)
	}
	return base.MapTransportError(c.Name(), operation, err)
}

// HealthCheck reads the release version of the coordinator
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	version, err := c.store.Ping(ctx)
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Details = map[string]string{"release_version": version, "keyspace": c.keyspace}
	return status, nil
}
