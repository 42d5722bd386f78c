// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package blobstore serves object storage providers that share one
// operation set: list containers, list, read and write objects. Each
// provider supplies a Backend; Azure Blob Storage and Google Cloud Storage
// ship here.
package blobstore

import (
	"context"
	"errors"
	"time"
)

// Backend sentinels. Providers wrap their own errors with these so the
// handler can map them without knowing the SDK.
var (
	ErrObjectNotFound    = errors.New("object not found")
	ErrContainerNotFound = errors.New("container not found")
	ErrAccessDenied      = errors.New("access denied")
)

// Backend is one object storage provider
type Backend interface {
	ListContainers(ctx context.Context) ([]string, error)
	ListObjects(ctx context.Context, container string, q ListQuery) (*ObjectPage, error)
	// ReadObject returns at most limit+1 bytes so callers can detect
	// oversized objects
	ReadObject(ctx context.Context, container, key string, limit int64) (*ObjectData, error)
	WriteObject(ctx context.Context, container, key string, data []byte, contentType string) (etag string, err error)
	// Ping checks the container, or the account when container is empty
	Ping(ctx context.Context, container string) error
	Close() error
}

// ListQuery selects one page of objects
type ListQuery struct {
	Prefix    string
	PageToken string
	MaxKeys   int
}

// ObjectPage is one page of a listing
type ObjectPage struct {
	Objects       []Object
	NextPageToken string
}

// Object is one listed object
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag,omitempty"`
	ContentType  string    `json:"contentType,omitempty"`
}

// ObjectData is a downloaded object
type ObjectData struct {
	ContentType string
	// Size is the size the provider reported, or -1 when unknown
	Size int64
	Data []byte
}
