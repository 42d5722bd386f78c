// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/ozean-licht/ozean-licht-sub011/connectors/base"
)

// AzureType is the service type of the Azure Blob Storage handler
const AzureType = "azure-blob"

// AzureFlavor describes Azure Blob Storage
var AzureFlavor = Flavor{Type: AzureType, Term: "container"}

// NewAzure builds an Azure Blob Storage handler. Authentication, in order:
// the connection_string credential, the account_key credential with the
// account_name option, or DefaultAzureCredential when use_managed_identity
// is set. The client does not dial until first use.
func NewAzure(cfg *base.ConnectorConfig) (*Connector, error) {
	if cfg == nil {
		cfg = &base.ConnectorConfig{}
	}
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, base.NewConnectorError(cfg.Name, "New", "failed to create Azure Blob client", err)
	}
	return NewWithBackend(AzureFlavor, cfg, &azureBackend{client: client}), nil
}

func newAzureClient(cfg *base.ConnectorConfig) (*azblob.Client, error) {
	if cs := cfg.Credential("connection_string"); cs != "" {
		return azblob.NewClientFromConnectionString(cs, nil)
	}

	account := cfg.StringOption("account_name", "")
	serviceURL := cfg.StringOption("endpoint", "")
	if serviceURL != "" {
		policy := base.URLPolicy{AllowPrivateIPs: cfg.BoolOption("allow_private_ips", false)}
		if err := base.ValidateBaseURL(serviceURL, policy); err != nil {
			return nil, fmt.Errorf("invalid endpoint: %w", err)
		}
	} else {
		if account == "" {
			return nil, errors.New("account_name or a connection_string credential is required")
		}
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	}

	if key := cfg.Credential("account_key"); key != "" {
		if account == "" {
			return nil, errors.New("account_key requires account_name")
		}
		cred, err := azblob.NewSharedKeyCredential(account, key)
		if err != nil {
			return nil, err
		}
		return azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	}
	if cfg.BoolOption("use_managed_identity", false) {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, err
		}
		return azblob.NewClient(serviceURL, cred, nil)
	}
	return nil, errors.New("no authentication method: set connection_string, account_key or use_managed_identity")
}

type azureBackend struct {
	client *azblob.Client
}

func (b *azureBackend) ListContainers(ctx context.Context) ([]string, error) {
	var names []string
	pager := b.client.NewListContainersPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, azureError(err)
		}
		for _, item := range page.ContainerItems {
			if item != nil && item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func (b *azureBackend) ListObjects(ctx context.Context, container string, q ListQuery) (*ObjectPage, error) {
	maxResults := int32(q.MaxKeys)
	opts := &azblob.ListBlobsFlatOptions{MaxResults: &maxResults}
	if q.Prefix != "" {
		opts.Prefix = &q.Prefix
	}
	if q.PageToken != "" {
		opts.Marker = &q.PageToken
	}

	resp, err := b.client.NewListBlobsFlatPager(container, opts).NextPage(ctx)
	if err != nil {
		return nil, azureError(err)
	}
	page := &ObjectPage{}
	if resp.NextMarker != nil {
		page.NextPageToken = *resp.NextMarker
	}
	if resp.Segment == nil {
		return page, nil
	}
	for _, item := range resp.Segment.BlobItems {
		if item == nil || item.Name == nil {
			continue
		}
		obj := Object{Key: *item.Name}
		if p := item.Properties; p != nil {
			if p.ContentLength != nil {
				obj.Size = *p.ContentLength
			}
			if p.LastModified != nil {
				obj.LastModified = *p.LastModified
			}
			if p.ETag != nil {
				obj.ETag = string(*p.ETag)
			}
			if p.ContentType != nil {
				obj.ContentType = *p.ContentType
			}
		}
		page.Objects = append(page.Objects, obj)
	}
	return page, nil
}

func (b *azureBackend) ReadObject(ctx context.Context, container, key string, limit int64) (*ObjectData, error) {
	resp, err := b.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		return nil, azureError(err)
	}
	defer resp.Body.Close()

	obj := &ObjectData{Size: -1}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
		if obj.Size > limit {
			return obj, nil
		}
	}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	if obj.Data, err = io.ReadAll(io.LimitReader(resp.Body, limit+1)); err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *azureBackend) WriteObject(ctx context.Context, container, key string, data []byte, contentType string) (string, error) {
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	resp, err := b.client.UploadBuffer(ctx, container, key, data, opts)
	if err != nil {
		return "", azureError(err)
	}
	if resp.ETag == nil {
		return "", nil
	}
	return string(*resp.ETag), nil
}

func (b *azureBackend) Ping(ctx context.Context, container string) error {
	var err error
	if container != "" {
		_, err = b.client.ServiceClient().NewContainerClient(container).GetProperties(ctx, nil)
	} else {
		_, err = b.client.ServiceClient().GetProperties(ctx, nil)
	}
	return azureError(err)
}

func (b *azureBackend) Close() error { return nil }

func azureError(err error) error {
	switch {
	case err == nil:
		return nil
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return fmt.Errorf("%w: %w", ErrContainerNotFound, err)
	case bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure,
		bloberror.AuthorizationPermissionMismatch, bloberror.InsufficientAccountPermissions):
		return fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}
	return err
}
