// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cassandra

import (
	"context"
	"errors"
	"sync"

	"github.com/gocql/gocql"
)

// Rows is the result of a select
type Rows struct {
	Columns   []string                 `json:"columns"`
	Rows      []map[string]interface{} `json:"rows"`
	Truncated bool                     `json:"truncated"`
}

// Store is the cluster surface the handler needs
type Store interface {
	// Select returns at most limit rows
	Select(ctx context.Context, statement string, args []interface{}, limit int) (*Rows, error)
	Ping(ctx context.Context) (releaseVersion string, err error)
	Close() error
}

var errStoreClosed = errors.New("cassandra session closed")

// gocqlStore opens its session on first use
type gocqlStore struct {
	cluster *gocql.ClusterConfig

	mu      sync.Mutex
	session *gocql.Session
	closed  bool
}

func (s *gocqlStore) open() (*gocql.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed
	}
	if s.session == nil {
		session, err := s.cluster.CreateSession()
		if err != nil {
			return nil, err
		}
		s.session = session
	}
	return s.session, nil
}

func (s *gocqlStore) Select(ctx context.Context, statement string, args []interface{}, limit int) (*Rows, error) {
	session, err := s.open()
	if err != nil {
		return nil, err
	}
	iter := session.Query(statement, args...).WithContext(ctx).PageSize(limit + 1).Iter()

	out := &Rows{Rows: make([]map[string]interface{}, 0)}
	for _, col := range iter.Columns() {
		out.Columns = append(out.Columns, col.Name)
	}
	for {
		row := make(map[string]interface{}, len(out.Columns))
		if !iter.MapScan(row) {
			break
		}
		if len(out.Rows) == limit {
			out.Truncated = true
			break
		}
		out.Rows = append(out.Rows, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gocqlStore) Ping(ctx context.Context) (string, error) {
	session, err := s.open()
	if err != nil {
		return "", err
	}
	var version string
	err = session.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&version)
	return version, err
}

func (s *gocqlStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.session != nil {
		s.session.Close()
		s.session = nil
	}
	return nil
}
