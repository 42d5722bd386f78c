// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package sourcecontrol

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Type is the service type this handler serves
const Type = "source-control"

// DefaultBaseURL is used when the service sets no base_url
const DefaultBaseURL = "https://api.github.com"

const (
	defaultPerPage = 30
	maxPerPage     = 100
)

// Connector talks to the source control REST API
type Connector struct {
	*sdk.BaseConnector
	client *sdk.HTTPClient
}

// New builds the handler. A configured base URL is checked against
// internal addresses unless options.allow_private_ips is set.
func New(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	b := sdk.NewBaseConnector(Type, cfg)

	baseURL := DefaultBaseURL
	if cfg.BaseURL != "" {
		policy := base.URLPolicy{AllowPrivateIPs: cfg.BoolOption("allow_private_ips", false)}
		if err := base.ValidateBaseURL(cfg.BaseURL, policy); err != nil {
			return nil, base.NewConnectorError(b.Name(), "New", "invalid base_url", err)
		}
		baseURL = cfg.BaseURL
	}

	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
		"User-Agent":           "agent-gateway",
	}
	var auth sdk.AuthProvider
	if token := cfg.Credential("token"); token != "" {
		auth = sdk.NewBearerTokenAuth(token, time.Time{})
	}

	c := &Connector{
		BaseConnector: b,
		client: sdk.NewHTTPClient(b.Name(), sdk.HTTPClientConfig{
			BaseURL:           baseURL,
			Timeout:           b.GetTimeout(),
			RequestsPerSecond: float64(cfg.RateLimitPerMinute) / 60.0,
			Burst:             5,
			Headers:           headers,
			Auth:              auth,
		}),
	}
	c.registerOperations()
	c.OnShutdown(func(context.Context) error {
		c.client.CloseIdleConnections()
		return nil
	})
	return c, nil
}

var repoParam = types.Parameter{
	Name:        "repo",
	Type:        "string",
	Description: "Repository as owner/name",
	Required:    true,
	Positional:  true,
}

func (c *Connector) registerOperations() {
	ops := c.Operations()

	ops.MustRegister(types.Capability{
		Name:        "list-repos",
		Aliases:     []string{"list-repositories"},
		Description: "List repositories of the authenticated account or of an owner",
		Parameters: []types.Parameter{
			{Name: "owner", Type: "string", Description: "User or organization; defaults to the authenticated account"},
			{Name: "per_page", Type: "integer", Default: defaultPerPage},
			{Name: "page", Type: "integer", Default: 1},
			{Name: "sort", Type: "string", Default: "updated"},
		},
		RequiresAuth: true,
		TokenCost:    5,
		Permission:   "repo:read",
		ReadOnly:     true,
	}, c.listRepos)

	ops.MustRegister(types.Capability{
		Name:         "get-repo",
		Aliases:      []string{"get-repository"},
		Description:  "Get one repository",
		Parameters:   []types.Parameter{repoParam},
		RequiresAuth: true,
		TokenCost:    2,
		Permission:   "repo:read",
		ReadOnly:     true,
	}, c.getRepo)

	ops.MustRegister(types.Capability{
		Name:        "list-issues",
		Description: "List issues of a repository",
		Parameters: []types.Parameter{
			repoParam,
			{Name: "state", Type: "string", Description: "open, closed or all", Default: "open"},
			{Name: "labels", Type: "string", Description: "Comma-separated label names"},
			{Name: "per_page", Type: "integer", Default: defaultPerPage},
			{Name: "page", Type: "integer", Default: 1},
		},
		RequiresAuth: true,
		TokenCost:    5,
		Permission:   "issues:read",
		ReadOnly:     true,
	}, c.listIssues)

	ops.MustRegister(types.Capability{
		Name:        "create-issue",
		Aliases:     []string{"open-issue"},
		Description: "Open an issue",
		Parameters: []types.Parameter{
			repoParam,
			{Name: "title", Type: "string", Required: true},
			{Name: "body", Type: "string"},
			{Name: "labels", Type: "array", Description: "Label names, as an array or comma-separated"},
		},
		RequiresAuth: true,
		TokenCost:    10,
		Permission:   "issues:write",
	}, c.createIssue)

	ops.MustRegister(types.Capability{
		Name:        "list-pull-requests",
		Aliases:     []string{"list-prs"},
		Description: "List pull requests of a repository",
		Parameters: []types.Parameter{
			repoParam,
			{Name: "state", Type: "string", Default: "open"},
			{Name: "per_page", Type: "integer", Default: defaultPerPage},
			{Name: "page", Type: "integer", Default: 1},
		},
		RequiresAuth: true,
		TokenCost:    5,
		Permission:   "pulls:read",
		ReadOnly:     true,
	}, c.listPullRequests)
}

// HealthCheck probes the rate limit endpoint, which costs no quota
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	_, err := c.client.DoJSON(ctx, "health", http.MethodGet, "/rate_limit", nil, nil, nil)
	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
		Details:   map[string]string{"base_url": c.client.BaseURL()},
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

func (c *Connector) listRepos(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	query, err := paging(req)
	if err != nil {
		return nil, err
	}
	query.Set("sort", req.StringOption("sort", "updated"))

	path := "/user/repos"
	if owner := req.StringOption("owner", ""); owner != "" {
		path = "/users/" + url.PathEscape(owner) + "/repos"
	}

	var repos []apiRepository
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodGet, path, query, nil, &repos); err != nil {
		return nil, err
	}
	out := make([]Repository, len(repos))
	for i, r := range repos {
		out[i] = r.toRepository()
	}
	return &base.Result{Data: out, Metadata: map[string]interface{}{"count": len(out)}}, nil
}

func (c *Connector) getRepo(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	owner, name, err := parseRepo(req)
	if err != nil {
		return nil, err
	}
	var repo apiRepository
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodGet, repoPath(owner, name), nil, nil, &repo); err != nil {
		return nil, err
	}
	return base.NewResult(repo.toRepository()), nil
}

func (c *Connector) listIssues(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	owner, name, err := parseRepo(req)
	if err != nil {
		return nil, err
	}
	query, err := paging(req)
	if err != nil {
		return nil, err
	}
	state, err := stateOption(req)
	if err != nil {
		return nil, err
	}
	query.Set("state", state)
	if labels := req.StringOption("labels", ""); labels != "" {
		query.Set("labels", labels)
	}

	var issues []apiIssue
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodGet, repoPath(owner, name)+"/issues", query, nil, &issues); err != nil {
		return nil, err
	}
	out := make([]Issue, 0, len(issues))
	for _, is := range issues {
		// The issues endpoint also returns pull requests
		if is.PullRequest != nil {
			continue
		}
		out = append(out, is.toIssue())
	}
	return &base.Result{Data: out, Metadata: map[string]interface{}{"count": len(out)}}, nil
}

func (c *Connector) createIssue(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	owner, name, err := parseRepo(req)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"title": req.StringOption("title", "")}
	if text := req.StringOption("body", ""); text != "" {
		body["body"] = text
	}
	if labels := stringList(req, "labels"); len(labels) > 0 {
		body["labels"] = labels
	}

	var issue apiIssue
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodPost, repoPath(owner, name)+"/issues", nil, body, &issue); err != nil {
		return nil, err
	}
	return base.NewResult(issue.toIssue()), nil
}

func (c *Connector) listPullRequests(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	owner, name, err := parseRepo(req)
	if err != nil {
		return nil, err
	}
	query, err := paging(req)
	if err != nil {
		return nil, err
	}
	state, err := stateOption(req)
	if err != nil {
		return nil, err
	}
	query.Set("state", state)

	var pulls []apiPullRequest
	if _, err := c.client.DoJSON(ctx, req.Operation, http.MethodGet, repoPath(owner, name)+"/pulls", query, nil, &pulls); err != nil {
		return nil, err
	}
	out := make([]PullRequest, len(pulls))
	for i, p := range pulls {
		out[i] = p.toPullRequest()
	}
	return &base.Result{Data: out, Metadata: map[string]interface{}{"count": len(out)}}, nil
}

func repoPath(owner, name string) string {
	return "/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(name)
}

// parseRepo splits the owner/name repository parameter
func parseRepo(req *types.OperationRequest) (string, string, error) {
	full := base.Param(req, 0, "repo")
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", base.InvalidParameter(req.Operation, "repo", "expected owner/name")
	}
	return owner, name, nil
}

func paging(req *types.OperationRequest) (url.Values, error) {
	perPage := req.IntOption("per_page", defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		return nil, base.InvalidParameter(req.Operation, "per_page", fmt.Sprintf("must be between 1 and %d", maxPerPage))
	}
	page := req.IntOption("page", 1)
	if page < 1 {
		return nil, base.InvalidParameter(req.Operation, "page", "must be positive")
	}
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	return q, nil
}

func stateOption(req *types.OperationRequest) (string, error) {
	state := req.StringOption("state", "open")
	switch state {
	case "open", "closed", "all":
		return state, nil
	}
	return "", base.InvalidParameter(req.Operation, "state", "must be open, closed or all")
}

// stringList accepts a JSON array or a comma-separated string
func stringList(req *types.OperationRequest, name string) []string {
	v, ok := req.Option(name)
	if !ok {
		return nil
	}
	var out []string
	switch val := v.(type) {
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range val {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(val, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
