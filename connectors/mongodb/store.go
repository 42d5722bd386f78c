// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// FindOptions narrows a find
type FindOptions struct {
	Limit int64
	Sort  bson.D
}

// Store is the database surface the handler needs
type Store interface {
	Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error)
	Count(ctx context.Context, collection string, filter bson.M) (int64, error)
	InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error)
	ListCollections(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// mongoStore is Store on a live mongo.Client
type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *mongoStore) Find(ctx context.Context, collection string, filter bson.M, opts FindOptions) ([]bson.M, error) {
	findOpts := options.Find().SetLimit(opts.Limit)
	if len(opts.Sort) > 0 {
		findOpts.SetSort(opts.Sort)
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	docs := make([]bson.M, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *mongoStore) Count(ctx context.Context, collection string, filter bson.M) (int64, error) {
	return s.db.Collection(collection).CountDocuments(ctx, filter)
}

func (s *mongoStore) InsertOne(ctx context.Context, collection string, doc bson.M) (interface{}, error) {
	res, err := s.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (s *mongoStore) ListCollections(ctx context.Context) ([]string, error) {
	return s.db.ListCollectionNames(ctx, bson.D{})
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
