/*
Copyright © 2019 the Sprawl authors.
This file is part of Sprawl.

Sprawl is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Sprawl is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Sprawl.  If not, see <http://www.gnu.org/licenses/>.
*/

package sprawl

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ctessum/requestcache"
	"github.com/sirupsen/logrus"
)

// FeaturesKey returns the storage key of the feature table of a city.
func FeaturesKey(cityRef, dataSource string) string {
	return cityRef + "_urban_features_" + dataSource
}

// TrainingKey returns the storage key of the training data of a city.
func TrainingKey(cityRef string) string {
	return cityRef + "_X_Y"
}

// Store returns stored feature tables and training data when they are
// available and calculates and stores them otherwise.
type Store struct {
	features, training *requestcache.Cache
	loc                string

	Log logrus.FieldLogger
}

// computeRequest carries the calculation to run when a requested
// result is not stored.
type computeRequest struct {
	compute func(context.Context) (interface{}, error)
}

func processRequest(ctx context.Context, payload interface{}) (interface{}, error) {
	return payload.(computeRequest).compute(ctx)
}

// NewStore creates a store at loc. If loc is empty, results are
// only held in memory. If it starts with "http", results are read
// from that URL and are not written. If it starts with "gs://", results
// are held in Google Cloud Storage. Otherwise, loc is a local directory,
// which is created if it does not exist. memCacheSize is the number of
// results of each type held in memory.
func NewStore(ctx context.Context, loc string, memCacheSize int) (*Store, error) {
	s := &Store{loc: loc, Log: logrus.StandardLogger()}
	var err error
	if s.features, err = newCache(ctx, loc, memCacheSize); err != nil {
		return nil, err
	}
	if s.training, err = newCache(ctx, loc, memCacheSize); err != nil {
		return nil, err
	}
	return s, nil
}

func newCache(ctx context.Context, loc string, memCacheSize int) (*requestcache.Cache, error) {
	marshal, unmarshal := requestcache.MarshalGob, requestcache.UnmarshalGob
	switch {
	case loc == "":
		return requestcache.NewCache(processRequest, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize)), nil
	case strings.HasPrefix(loc, "http"):
		return requestcache.NewCache(processRequest, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize), requestcache.HTTP(loc, unmarshal)), nil
	case strings.HasPrefix(loc, "gs://"):
		u, err := url.Parse(loc)
		if err != nil {
			return nil, fmt.Errorf("sprawl: parsing cache location: %w", err)
		}
		cf, err := requestcache.GoogleCloudStorage(ctx, u.Host, strings.TrimLeft(u.Path, "/"), marshal, unmarshal)
		if err != nil {
			return nil, fmt.Errorf("sprawl: opening cache: %w", err)
		}
		return requestcache.NewCache(processRequest, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize), cf), nil
	default:
		if err := os.MkdirAll(loc, os.ModePerm); err != nil {
			return nil, fmt.Errorf("sprawl: creating cache directory: %w", err)
		}
		return requestcache.NewCache(processRequest, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize), requestcache.Disk(loc, marshal, unmarshal)), nil
	}
}

// Features returns the stored feature table for the city and data source,
// or calculates it with compute.
func (s *Store) Features(ctx context.Context, cityRef, dataSource string, compute func(context.Context) (*FeatureTable, error)) (*FeatureTable, error) {
	key := FeaturesKey(cityRef, dataSource)
	r := s.features.NewRequest(ctx, computeRequest{
		compute: func(ctx context.Context) (interface{}, error) {
			s.Log.WithFields(logrus.Fields{"key": key, "location": s.loc}).Info("calculating urban features")
			t, err := compute(ctx)
			if err != nil {
				return nil, err
			}
			s.Log.WithFields(logrus.Fields{"key": key, "fingerprint": t.Fingerprint()}).Info("calculated urban features")
			return t, nil
		},
	}, key)
	result, err := r.Result()
	if err != nil {
		return nil, err
	}
	switch t := result.(type) {
	case *FeatureTable:
		return t, nil
	case FeatureTable:
		return &t, nil
	default:
		return nil, fmt.Errorf("sprawl: stored features for %s have invalid type %T", key, result)
	}
}

// Training returns the stored training data for the city, or
// calculates it with compute. Y, X and the column names are always
// stored and retrieved together.
func (s *Store) Training(ctx context.Context, cityRef string, compute func(context.Context) (*TrainingSet, error)) (*TrainingSet, error) {
	key := TrainingKey(cityRef)
	r := s.training.NewRequest(ctx, computeRequest{
		compute: func(ctx context.Context) (interface{}, error) {
			s.Log.WithFields(logrus.Fields{"key": key, "location": s.loc}).Info("calculating training data")
			return compute(ctx)
		},
	}, key)
	result, err := r.Result()
	if err != nil {
		return nil, err
	}
	switch t := result.(type) {
	case *TrainingSet:
		return t, nil
	case TrainingSet:
		return &t, nil
	default:
		return nil, fmt.Errorf("sprawl: stored training data for %s has invalid type %T", key, result)
	}
}
