// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Type is the service type this handler serves
const Type = "mongodb"

const (
	defaultLimit          = 100
	maxLimit              = 1000
	defaultConnectTimeout = 10 * time.Second
)

var (
	collectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.-]{0,119}$`)

	// operators that evaluate JavaScript on the server
	forbiddenOperators = map[string]bool{"$where": true, "$function": true, "$accumulator": true}
)

// Connector reads and writes one MongoDB database
type Connector struct {
	*sdk.BaseConnector
	store Store
}

// New connects a client for connection_url and options.database. The
// driver dials lazily, so an unreachable server surfaces on the first
// operation or health probe.
func New(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil || cfg.ConnectionURL == "" {
		return nil, base.NewConnectorError(Type, "New", "connection_url is required", nil)
	}
	dbName := cfg.StringOption("database", "")
	if dbName == "" {
		return nil, base.NewConnectorError(cfg.Name, "New", "options.database is required", nil)
	}

	clientOpts := options.Client().
		ApplyURI(cfg.ConnectionURL).
		SetAppName(cfg.StringOption("app_name", "agent-gateway")).
		SetMaxPoolSize(uint64(cfg.IntOption("max_pool_size", 100))).
		SetConnectTimeout(defaultConnectTimeout).
		SetServerSelectionTimeout(cfg.GetTimeout(sdk.DefaultTimeout)).
		SetRetryReads(true)
	if user := cfg.Credential("username"); user != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   user,
			Password:   cfg.Credential("password"),
			AuthSource: cfg.StringOption("auth_database", "admin"),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "failed to create MongoDB client", err)
	}
	return NewWithStore(cfg, &mongoStore{client: client, db: client.Database(dbName)}), nil
}

// NewWithStore builds the handler on an existing store, which Shutdown
// closes
func NewWithStore(cfg *base.ConnectorConfig, store Store) *Connector {
	b := sdk.NewBaseConnector(Type, cfg)
	c := &Connector{BaseConnector: b, store: store}

	ops := c.Operations()
	ops.MustRegister(types.Capability{
		Name:        "find",
		Description: "Find documents matching a filter",
		Parameters: []types.Parameter{
			{Name: "collection", Type: "string", Required: true, Positional: true},
			{Name: "filter", Type: "object", Description: "Query filter"},
			{Name: "sort", Type: "string", Description: "Comma separated fields, prefix - for descending"},
			{Name: "limit", Type: "integer", Default: defaultLimit},
		},
		RequiresAuth: true,
		TokenCost:    4,
		Permission:   "mongodb:read",
		ReadOnly:     true,
	}, c.find)
	ops.MustRegister(types.Capability{
		Name:        "count",
		Aliases:     []string{"count-documents"},
		Description: "Count documents matching a filter",
		Parameters: []types.Parameter{
			{Name: "collection", Type: "string", Required: true, Positional: true},
			{Name: "filter", Type: "object"},
		},
		RequiresAuth: true,
		TokenCost:    1,
		Permission:   "mongodb:read",
		ReadOnly:     true,
	}, c.count)
	ops.MustRegister(types.Capability{
		Name:        "insert-one",
		Aliases:     []string{"insert"},
		Description: "Insert one document",
		Parameters: []types.Parameter{
			{Name: "collection", Type: "string", Required: true, Positional: true},
			{Name: "document", Type: "object", Required: true},
		},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "mongodb:write",
	}, c.insertOne)
	ops.MustRegister(types.Capability{
		Name:         "list-collections",
		Description:  "List collection names",
		RequiresAuth: true,
		TokenCost:    1,
		Permission:   "mongodb:read",
		ReadOnly:     true,
	}, c.listCollections)

	c.OnShutdown(func(ctx context.Context) error { return c.store.Close(ctx) })
	return c
}

func (c *Connector) collection(req *types.OperationRequest) (string, error) {
	name := base.Param(req, 0, "collection")
	if !collectionName.MatchString(name) || strings.HasPrefix(name, "system.") {
		return "", base.InvalidParameter(req.Operation, "collection", "invalid collection name")
	}
	return name, nil
}

func (c *Connector) find(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	coll, err := c.collection(req)
	if err != nil {
		return nil, err
	}
	filter, err := objectOption(req, "filter")
	if err != nil {
		return nil, err
	}
	limit := req.IntOption("limit", defaultLimit)
	if limit < 1 || limit > maxLimit {
		return nil, base.InvalidParameter(req.Operation, "limit", fmt.Sprintf("must be between 1 and %d", maxLimit))
	}
	sortSpec, err := parseSort(req.StringOption("sort", ""))
	if err != nil {
		return nil, base.InvalidParameter(req.Operation, "sort", err.Error())
	}

	docs, err := c.store.Find(ctx, coll, filter, FindOptions{Limit: int64(limit), Sort: sortSpec})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	out := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		out[i] = normalize(d).(map[string]interface{})
	}
	return &base.Result{
		Data:       map[string]interface{}{"documents": out, "count": len(out)},
		TokensUsed: 4 + len(out)/10,
	}, nil
}

func (c *Connector) count(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	coll, err := c.collection(req)
	if err != nil {
		return nil, err
	}
	filter, err := objectOption(req, "filter")
	if err != nil {
		return nil, err
	}
	n, err := c.store.Count(ctx, coll, filter)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	return base.NewResult(map[string]interface{}{"collection": coll, "count": n}), nil
}

func (c *Connector) insertOne(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	coll, err := c.collection(req)
	if err != nil {
		return nil, err
	}
	doc, err := objectOption(req, "document")
	if err != nil {
		return nil, err
	}
	for k := range doc {
		if strings.HasPrefix(k, "$") {
			return nil, base.InvalidParameter(req.Operation, "document", fmt.Sprintf("field %q must not start with $", k))
		}
	}
	id, err := c.store.InsertOne(ctx, coll, doc)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	return base.NewResult(map[string]interface{}{"collection": coll, "insertedId": normalize(id)}), nil
}

func (c *Connector) listCollections(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	names, err := c.store.ListCollections(ctx)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	visible := make([]string, 0, len(names))
	for _, n := range names {
		if !strings.HasPrefix(n, "system.") {
			visible = append(visible, n)
		}
	}
	sort.Strings(visible)
	return base.NewResult(visible), nil
}

// objectOption reads an object option given either as a JSON object or as
// a string holding one. A missing option is an empty object.
func objectOption(req *types.OperationRequest, name string) (bson.M, error) {
	raw, ok := req.Option(name)
	if !ok {
		return bson.M{}, nil
	}
	var m map[string]interface{}
	switch v := raw.(type) {
	case map[string]interface{}:
		m = v
	case string:
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, base.InvalidParameter(req.Operation, name, "must be a JSON object")
		}
	default:
		return nil, base.InvalidParameter(req.Operation, name, "must be an object")
	}
	if op := findForbidden(m); op != "" {
		return nil, base.InvalidParameter(req.Operation, name, fmt.Sprintf("operator %s is not allowed", op))
	}
	return bson.M(m), nil
}

func findForbidden(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, child := range val {
			if forbiddenOperators[k] {
				return k
			}
			if op := findForbidden(child); op != "" {
				return op
			}
		}
	case []interface{}:
		for _, child := range val {
			if op := findForbidden(child); op != "" {
				return op
			}
		}
	}
	return ""
}

func parseSort(order string) (bson.D, error) {
	if strings.TrimSpace(order) == "" {
		return nil, nil
	}
	var d bson.D
	for _, field := range strings.Split(order, ",") {
		field = strings.TrimSpace(field)
		dir := 1
		if strings.HasPrefix(field, "-") {
			dir = -1
			field = field[1:]
		}
		if field == "" || strings.HasPrefix(field, "$") {
			return nil, fmt.Errorf("invalid sort field %q", field)
		}
		d = append(d, bson.E{Key: field, Value: dir})
	}
	return d, nil
}

// normalize turns driver values into plain JSON-friendly ones
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return normalize(map[string]interface{}(val))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = normalize(child)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(val))
		for _, e := range val {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		return normalize([]interface{}(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = normalize(child)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC()
	default:
		return v
	}
}

func (c *Connector) mapError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return base.MapTransportError(c.Name(), operation, ctxErr)
	}
	details := map[string]interface{}{"service": c.Name(), "operation": operation}
	if mongo.IsDuplicateKeyError(err) {
		return types.NewValidationError(types.CodeInvalidParameter, "document violates a unique index", details)
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 13, 18:
			return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", details)
		case 2, 9:
			details["backendMessage"] = base.SanitizeLogString(cmdErr.Message)
			return types.NewValidationError(types.CodeInvalidParameter, "query rejected by database", details)
		}
	}
	return base.MapTransportError(c.Name(), operation, err)
}

// HealthCheck pings the primary
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	err := c.store.Ping(ctx)
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}
