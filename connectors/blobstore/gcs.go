// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
	"github.com/ozean-licht/ozean-licht-sub011/shared/types"
)

// GCSType is the service type of the Google Cloud Storage handler
const GCSType = "gcs"

// GCSFlavor describes Google Cloud Storage
var GCSFlavor = Flavor{Type: GCSType, Term: "bucket"}

// NewGCS builds a Google Cloud Storage handler. Credentials come from the
// credentials_json or credentials_file credential, or application default
// credentials; the anonymous option disables authentication (emulators).
// Listing buckets needs the project_id option.
func NewGCS(ctx context.Context, cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	var opts []option.ClientOption
	switch {
	case cfg.Credential("credentials_json") != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Credential("credentials_json"))))
	case cfg.Credential("credentials_file") != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credential("credentials_file")))
	case cfg.BoolOption("anonymous", false):
		opts = append(opts, option.WithoutAuthentication())
	}
	if endpoint := cfg.StringOption("endpoint", ""); endpoint != "" {
		policy := base.URLPolicy{AllowPrivateIPs: cfg.BoolOption("allow_private_ips", false)}
		if err := base.ValidateBaseURL(endpoint, policy); err != nil {
			return nil, base.NewConnectorError(cfg.Name, "New", "invalid endpoint", err)
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "failed to create GCS client", err)
	}
	return NewWithBackend(GCSFlavor, cfg, &gcsBackend{
		client:    client,
		projectID: cfg.StringOption("project_id", ""),
	}), nil
}

type gcsBackend struct {
	client    *storage.Client
	projectID string
}

func (b *gcsBackend) ListContainers(ctx context.Context) ([]string, error) {
	if b.projectID == "" {
		return nil, types.NewValidationError(types.CodeInvalidRequest, "listing buckets requires the project_id option on this service", nil)
	}
	var names []string
	it := b.client.Buckets(ctx, b.projectID)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, gcsError(err)
		}
		names = append(names, attrs.Name)
	}
}

func (b *gcsBackend) ListObjects(ctx context.Context, container string, q ListQuery) (*ObjectPage, error) {
	it := b.client.Bucket(container).Objects(ctx, &storage.Query{Prefix: q.Prefix})
	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, q.MaxKeys, q.PageToken).NextPage(&attrs)
	if err != nil {
		return nil, gcsError(err)
	}
	page := &ObjectPage{NextPageToken: next, Objects: make([]Object, 0, len(attrs))}
	for _, a := range attrs {
		page.Objects = append(page.Objects, Object{
			Key:          a.Name,
			Size:         a.Size,
			LastModified: a.Updated,
			ETag:         a.Etag,
			ContentType:  a.ContentType,
		})
	}
	return page, nil
}

func (b *gcsBackend) ReadObject(ctx context.Context, container, key string, limit int64) (*ObjectData, error) {
	r, err := b.client.Bucket(container).Object(key).NewReader(ctx)
	if err != nil {
		return nil, gcsError(err)
	}
	defer r.Close()

	obj := &ObjectData{Size: r.Attrs.Size, ContentType: r.Attrs.ContentType}
	if obj.Size > limit {
		return obj, nil
	}
	if obj.Data, err = io.ReadAll(io.LimitReader(r, limit+1)); err != nil {
		return nil, gcsError(err)
	}
	return obj, nil
}

func (b *gcsBackend) WriteObject(ctx context.Context, container, key string, data []byte, contentType string) (string, error) {
	w := b.client.Bucket(container).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", gcsError(err)
	}
	if err := w.Close(); err != nil {
		return "", gcsError(err)
	}
	return w.Attrs().Etag, nil
}

func (b *gcsBackend) Ping(ctx context.Context, container string) error {
	if container != "" {
		_, err := b.client.Bucket(container).Attrs(ctx)
		return gcsError(err)
	}
	if b.projectID == "" {
		return nil
	}
	_, err := b.client.Buckets(ctx, b.projectID).Next()
	if errors.Is(err, iterator.Done) {
		return nil
	}
	return gcsError(err)
}

func (b *gcsBackend) Close() error {
	return b.client.Close()
}

func gcsError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("%w: %w", ErrContainerNotFound, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		}
	}
	return err
}
