// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package blobstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

const (
	defaultMaxObjectBytes = 5 * 1024 * 1024
	maxListKeys           = 1000
)

// Flavor names a provider and what it calls a container
type Flavor struct {
	Type string
	// Term is "bucket" or "container"; it names the parameter, the default
	// and allow-list options and the listing operation
	Term string
}

// Connector is the object storage handler
type Connector struct {
	*sdk.BaseConnector
	backend          Backend
	term             string
	defaultContainer string
	allowed          map[string]bool
	maxObjectBytes   int
}

// NewWithBackend builds the handler on backend, which Shutdown closes
func NewWithBackend(flavor Flavor, cfg *base.ConnectorConfig, backend Backend) *Connector {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	term := flavor.Term
	c := &Connector{
		BaseConnector:    sdk.NewBaseConnector(flavor.Type, cfg),
		backend:          backend,
		term:             term,
		defaultContainer: cfg.StringOption("default_"+term, ""),
		maxObjectBytes:   cfg.IntOption("max_object_bytes", defaultMaxObjectBytes),
	}
	if list := cfg.StringOption("allowed_"+term+"s", ""); list != "" {
		c.allowed = make(map[string]bool)
		for _, name := range strings.Split(list, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.allowed[name] = true
			}
		}
	}

	ops := c.Operations()
	ops.MustRegister(types.Capability{
		Name:         "list-" + term + "s",
		Description:  fmt.Sprintf("List %ss", term),
		RequiresAuth: true,
		TokenCost:    1,
		Permission:   "storage:read",
		ReadOnly:     true,
	}, c.listContainers)
	ops.MustRegister(types.Capability{
		Name:        "list-objects",
		Aliases:     []string{"ls"},
		Description: "List objects under a prefix",
		Parameters: []types.Parameter{
			{Name: "prefix", Type: "string", Positional: true},
			{Name: term, Type: "string", Description: "Defaults to the configured " + term},
			{Name: "max_keys", Type: "integer", Default: 100},
			{Name: "page_token", Type: "string"},
		},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "storage:read",
		ReadOnly:     true,
	}, c.listObjects)
	ops.MustRegister(types.Capability{
		Name:        "get-object",
		Aliases:     []string{"download"},
		Description: "Read an object",
		Parameters: []types.Parameter{
			{Name: "key", Type: "string", Required: true, Positional: true},
			{Name: term, Type: "string"},
		},
		RequiresAuth: true,
		TokenCost:    3,
		Permission:   "storage:read",
		ReadOnly:     true,
	}, c.getObject)
	ops.MustRegister(types.Capability{
		Name:        "put-object",
		Aliases:     []string{"upload"},
		Description: "Write an object",
		Parameters: []types.Parameter{
			{Name: "key", Type: "string", Required: true, Positional: true},
			{Name: "content", Type: "string", Required: true},
			{Name: "encoding", Type: "string", Description: "utf8 (default) or base64"},
			{Name: "content_type", Type: "string"},
			{Name: term, Type: "string"},
		},
		RequiresAuth: true,
		TokenCost:    3,
		Permission:   "storage:write",
	}, c.putObject)

	c.OnShutdown(func(context.Context) error { return c.backend.Close() })
	return c
}

// ObjectContent is the result of get-object
type ObjectContent struct {
	Container   string `json:"container"`
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
}

func (c *Connector) container(req *types.OperationRequest) (string, error) {
	name := req.StringOption(c.term, c.defaultContainer)
	if name == "" {
		return "", types.NewMissingParameterError(req.Operation, []string{c.term})
	}
	if c.allowed != nil && !c.allowed[name] {
		return "", base.InvalidParameter(req.Operation, c.term, fmt.Sprintf("%s %q is not enabled for this service", c.term, name))
	}
	return name, nil
}

func (c *Connector) listContainers(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	all, err := c.backend.ListContainers(ctx)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	names := make([]string, 0, len(all))
	for _, name := range all {
		if c.allowed == nil || c.allowed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return base.NewResult(names), nil
}

func (c *Connector) listObjects(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	container, err := c.container(req)
	if err != nil {
		return nil, err
	}
	maxKeys := req.IntOption("max_keys", 100)
	if maxKeys < 1 || maxKeys > maxListKeys {
		return nil, base.InvalidParameter(req.Operation, "max_keys", fmt.Sprintf("must be between 1 and %d", maxListKeys))
	}

	page, err := c.backend.ListObjects(ctx, container, ListQuery{
		Prefix:    base.Param(req, 0, "prefix"),
		PageToken: req.StringOption("page_token", ""),
		MaxKeys:   maxKeys,
	})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	objects := page.Objects
	if objects == nil {
		objects = []Object{}
	}
	data := map[string]interface{}{c.term: container, "objects": objects, "truncated": page.NextPageToken != ""}
	if page.NextPageToken != "" {
		data["nextPageToken"] = page.NextPageToken
	}
	return &base.Result{Data: data, TokensUsed: 2 + len(objects)/50}, nil
}

func (c *Connector) getObject(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	container, err := c.container(req)
	if err != nil {
		return nil, err
	}
	key := base.Param(req, 0, "key")
	if err := base.ValidateObjectKey(key); err != nil {
		return nil, base.InvalidParameter(req.Operation, "key", err.Error())
	}

	obj, err := c.backend.ReadObject(ctx, container, key, int64(c.maxObjectBytes))
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	if obj.Size > int64(c.maxObjectBytes) || len(obj.Data) > c.maxObjectBytes {
		return nil, base.InvalidParameter(req.Operation, "key", fmt.Sprintf("object exceeds %d bytes", c.maxObjectBytes))
	}

	content := ObjectContent{
		Container:   container,
		Key:         key,
		ContentType: obj.ContentType,
		Size:        len(obj.Data),
		Encoding:    "utf8",
	}
	if utf8.Valid(obj.Data) {
		content.Content = string(obj.Data)
	} else {
		content.Encoding = "base64"
		content.Content = base64.StdEncoding.EncodeToString(obj.Data)
	}
	return &base.Result{Data: content, TokensUsed: 3 + len(obj.Data)/4096}, nil
}

func (c *Connector) putObject(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	container, err := c.container(req)
	if err != nil {
		return nil, err
	}
	key := base.Param(req, 0, "key")
	if err := base.ValidateObjectKey(key); err != nil {
		return nil, base.InvalidParameter(req.Operation, "key", err.Error())
	}

	raw := req.StringOption("content", "")
	var body []byte
	switch enc := req.StringOption("encoding", "utf8"); enc {
	case "utf8", "":
		body = []byte(raw)
	case "base64":
		if body, err = base64.StdEncoding.DecodeString(raw); err != nil {
			return nil, base.InvalidParameter(req.Operation, "content", "invalid base64")
		}
	default:
		return nil, base.InvalidParameter(req.Operation, "encoding", "must be utf8 or base64")
	}
	if len(body) > c.maxObjectBytes {
		return nil, base.InvalidParameter(req.Operation, "content", fmt.Sprintf("exceeds %d bytes", c.maxObjectBytes))
	}

	etag, err := c.backend.WriteObject(ctx, container, key, body, req.StringOption("content_type", ""))
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	return &base.Result{
		Data: map[string]interface{}{
			c.term: container,
			"key":  key,
			"size": len(body),
			"etag": strings.Trim(etag, `"`),
		},
		TokensUsed: 3 + len(body)/4096,
	}, nil
}

func (c *Connector) mapError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return base.MapTransportError(c.Name(), operation, ctxErr)
	}
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return base.NotFound(c.Name(), "object")
	case errors.Is(err, ErrContainerNotFound):
		return base.NotFound(c.Name(), c.term)
	case errors.Is(err, ErrAccessDenied):
		return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", map[string]interface{}{
			"service":   c.Name(),
			"operation": operation,
		})
	}
	return base.MapTransportError(c.Name(), operation, err)
}

// HealthCheck pings the default container, or the account when none is set
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	err := c.backend.Ping(ctx, c.defaultContainer)
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}
