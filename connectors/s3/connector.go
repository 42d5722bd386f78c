// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/connectors/sdk"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// Type is the service type this handler serves
const Type = "s3"

const (
	defaultMaxObjectBytes = 5 * 1024 * 1024
	maxListKeys           = 1000
)

// API is the part of *s3.Client the handler uses
type API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Connector reads and writes objects
type Connector struct {
	*sdk.BaseConnector
	client         API
	defaultBucket  string
	allowed        map[string]bool
	maxObjectBytes int
}

// New loads AWS configuration and builds an S3 client. No request is sent
// until the first operation or health probe.
func New(ctx context.Context, cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.StringOption("region", "us-east-1")),
	}
	if id, secret := cfg.Credential("access_key_id"), cfg.Credential("secret_access_key"); id != "" && secret != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, cfg.Credential("session_token"))))
	}
	if cfg.MaxRetries > 0 {
		optFns = append(optFns, config.WithRetryMaxAttempts(cfg.MaxRetries+1))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "failed to load AWS config", err)
	}

	endpoint := cfg.StringOption("endpoint", "")
	if endpoint != "" {
		policy := base.URLPolicy{AllowPrivateIPs: cfg.BoolOption("allow_private_ips", false)}
		if err := base.ValidateBaseURL(endpoint, policy); err != nil {
			return nil, base.NewConnectorError(cfg.Name, "New", "invalid endpoint", err)
		}
	}
	pathStyle := cfg.BoolOption("force_path_style", false)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return NewWithClient(cfg, client), nil
}

// NewWithClient builds the handler on an existing client
func NewWithClient(cfg *base.ConnectorConfig, client API) *Connector {
	b := sdk.NewBaseConnector(Type, cfg)
	c := &Connector{
		BaseConnector:  b,
		client:         client,
		defaultBucket:  cfg.StringOption("default_bucket", ""),
		maxObjectBytes: cfg.IntOption("max_object_bytes", defaultMaxObjectBytes),
	}
	if list := cfg.StringOption("allowed_buckets", ""); list != "" {
		c.allowed = make(map[string]bool)
		for _, name := range strings.Split(list, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.allowed[name] = true
			}
		}
	}

	ops := c.Operations()
	ops.MustRegister(types.Capability{
		Name:         "list-buckets",
		Description:  "List buckets",
		RequiresAuth: true,
		TokenCost:    1,
		Permission:   "storage:read",
		ReadOnly:     true,
	}, c.listBuckets)
	ops.MustRegister(types.Capability{
		Name:        "list-objects",
		Aliases:     []string{"ls"},
		Description: "List objects under a prefix",
		Parameters: []types.Parameter{
			{Name: "prefix", Type: "string", Positional: true},
			{Name: "bucket", Type: "string", Description: "Defaults to the configured bucket"},
			{Name: "max_keys", Type: "integer", Default: 100},
			{Name: "continuation_token", Type: "string"},
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
			{Name: "bucket", Type: "string"},
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
			{Name: "bucket", Type: "string"},
		},
		RequiresAuth: true,
		TokenCost:    3,
		Permission:   "storage:write",
	}, c.putObject)
	return c
}

// Object is one listed object
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag,omitempty"`
}

// ObjectContent is the result of get-object
type ObjectContent struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
	Encoding    string `json:"encoding"`
	Content     string `json:"content"`
}

func (c *Connector) bucket(req *types.OperationRequest) (string, error) {
	name := req.StringOption("bucket", c.defaultBucket)
	if name == "" {
		return "", types.NewMissingParameterError(req.Operation, []string{"bucket"})
	}
	if c.allowed != nil && !c.allowed[name] {
		return "", base.InvalidParameter(req.Operation, "bucket", fmt.Sprintf("bucket %q is not enabled for this service", name))
	}
	return name, nil
}

func (c *Connector) listBuckets(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	out, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		if c.allowed == nil || c.allowed[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return base.NewResult(names), nil
}

func (c *Connector) listObjects(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	bucket, err := c.bucket(req)
	if err != nil {
		return nil, err
	}
	maxKeys := req.IntOption("max_keys", 100)
	if maxKeys < 1 || maxKeys > maxListKeys {
		return nil, base.InvalidParameter(req.Operation, "max_keys", fmt.Sprintf("must be between 1 and %d", maxListKeys))
	}
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}
	if prefix := base.Param(req, 0, "prefix"); prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if token := req.StringOption("continuation_token", ""); token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := c.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	objects := make([]Object, 0, len(out.Contents))
	for _, o := range out.Contents {
		objects = append(objects, Object{
			Key:          aws.ToString(o.Key),
			Size:         aws.ToInt64(o.Size),
			LastModified: aws.ToTime(o.LastModified),
			ETag:         strings.Trim(aws.ToString(o.ETag), `"`),
		})
	}
	data := map[string]interface{}{"bucket": bucket, "objects": objects, "truncated": aws.ToBool(out.IsTruncated)}
	if next := aws.ToString(out.NextContinuationToken); next != "" {
		data["nextContinuationToken"] = next
	}
	return &base.Result{Data: data, TokensUsed: 2 + len(objects)/50}, nil
}

func (c *Connector) getObject(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	bucket, err := c.bucket(req)
	if err != nil {
		return nil, err
	}
	key := base.Param(req, 0, "key")
	if err := base.ValidateObjectKey(key); err != nil {
		return nil, base.InvalidParameter(req.Operation, "key", err.Error())
	}

	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	defer out.Body.Close()

	if n := aws.ToInt64(out.ContentLength); n > int64(c.maxObjectBytes) {
		return nil, base.InvalidParameter(req.Operation, "key", fmt.Sprintf("object is %d bytes; the limit is %d", n, c.maxObjectBytes))
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, int64(c.maxObjectBytes)+1))
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	if len(data) > c.maxObjectBytes {
		return nil, base.InvalidParameter(req.Operation, "key", fmt.Sprintf("object exceeds %d bytes", c.maxObjectBytes))
	}

	content := ObjectContent{
		Bucket:      bucket,
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        len(data),
		Encoding:    "utf8",
	}
	if utf8.Valid(data) {
		content.Content = string(data)
	} else {
		content.Encoding = "base64"
		content.Content = base64.StdEncoding.EncodeToString(data)
	}
	// one token per 4KB read on top of the static cost
	return &base.Result{Data: content, TokensUsed: 3 + len(data)/4096}, nil
}

func (c *Connector) putObject(ctx context.Context, req *types.OperationRequest) (*base.Result, error) {
	bucket, err := c.bucket(req)
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

	in := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if ct := req.StringOption("content_type", ""); ct != "" {
		in.ContentType = aws.String(ct)
	}
	out, err := c.client.PutObject(ctx, in)
	if err != nil {
		return nil, c.mapError(ctx, req.Operation, err)
	}
	return &base.Result{
		Data: map[string]interface{}{
			"bucket": bucket,
			"key":    key,
			"size":   len(body),
			"etag":   strings.Trim(aws.ToString(out.ETag), `"`),
		},
		TokensUsed: 3 + len(body)/4096,
	}, nil
}

func (c *Connector) mapError(ctx context.Context, operation string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return base.MapTransportError(c.Name(), operation, ctxErr)
	}
	var noKey *s3types.NoSuchKey
	var noBucket *s3types.NoSuchBucket
	if errors.As(err, &noKey) {
		return base.NotFound(c.Name(), "object")
	}
	if errors.As(err, &noBucket) {
		return base.NotFound(c.Name(), "bucket")
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return types.NewValidationError(types.CodeBackendAuthFailed, "authentication failed", map[string]interface{}{
				"service":     c.Name(),
				"operation":   operation,
				"backendCode": apiErr.ErrorCode(),
			})
		case "NotFound":
			return base.NotFound(c.Name(), "object")
		case "SlowDown", "ServiceUnavailable", "InternalError":
			return types.NewServiceUnavailableError(fmt.Sprintf("%s returned %s", c.Name(), apiErr.ErrorCode()), err)
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			return types.NewValidationError(types.CodeInvalidParameter, "backend rejected the request", map[string]interface{}{
				"service":        c.Name(),
				"operation":      operation,
				"backendCode":    apiErr.ErrorCode(),
				"backendMessage": base.SanitizeLogString(apiErr.ErrorMessage()),
			})
		}
	}
	return base.MapTransportError(c.Name(), operation, err)
}

// HealthCheck heads the default bucket, or lists buckets when none is set
func (c *Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.IsShutdown() {
		return c.BaseConnector.HealthCheck(ctx)
	}
	start := time.Now()
	var err error
	if c.defaultBucket != "" {
		_, err = c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.defaultBucket)})
	} else {
		_, err = c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	}
	status := &base.HealthStatus{Healthy: err == nil, Latency: time.Since(start), Timestamp: time.Now()}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}
