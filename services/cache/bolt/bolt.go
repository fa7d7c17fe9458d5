// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bolt

import (
	"bytes"
	"context"
	"encoding/gob"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/cogment/rag-backend/services/cache"
)

var log = logrus.WithField("component", "cache/bolt")

type boltBackend struct {
	db       *bolt.DB
	filePath string
	ttl      time.Duration
}

var entriesBucketName = []byte("entries")

func getEntriesBucket(tx *bolt.Tx) *bolt.Bucket {
	entriesBucket := tx.Bucket(entriesBucketName)
	if entriesBucket == nil {
		log.Fatal("entries bucket doesn't exist")
	}
	return entriesBucket
}

func serializeKey(key string) []byte {
	return []byte(key)
}

func serializeEntry(entry *cache.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(*entry)
	if err != nil {
		return nil, cache.NewUnexpectedError("unable to serialize cache entry (%w)", err)
	}
	return buf.Bytes(), nil
}

func deserializeEntry(v []byte) (*cache.Entry, error) {
	dec := gob.NewDecoder(bytes.NewBuffer(v))
	entry := &cache.Entry{}
	err := dec.Decode(entry)
	if err != nil {
		return nil, cache.NewUnexpectedError("unable to deserialize cache entry (%w)", err)
	}
	return entry, nil
}

// CreateBoltBackend opens, or creates, a cache persisted in the bolt database at filePath.
func CreateBoltBackend(filePath string, ttl time.Duration) (cache.Backend, error) {
	db, err := bolt.Open(filePath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucketName)
		if err != nil {
			return cache.NewUnexpectedError("unable to create the entries bucket (%w)", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", filePath).Debug("bolt cache opened")

	return &boltBackend{
		db:       db,
		filePath: filePath,
		ttl:      ttl,
	}, nil
}

func (b *boltBackend) Destroy() {
	b.db.Close()
	b.db = nil
}

func (b *boltBackend) Get(_ context.Context, key string) (*cache.Entry, bool, error) {
	var entry *cache.Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		v := getEntriesBucket(tx).Get(serializeKey(key))
		if v == nil {
			return nil
		}
		var err error
		entry, err = deserializeEntry(v)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	if entry.Expired(b.ttl, time.Now()) {
		err := b.db.Update(func(tx *bolt.Tx) error {
			return getEntriesBucket(tx).Delete(serializeKey(key))
		})
		if err != nil {
			return nil, false, cache.NewUnexpectedError("unable to delete expired entry (%w)", err)
		}
		return nil, false, nil
	}
	return entry, true, nil
}

func (b *boltBackend) Set(_ context.Context, key string, entry *cache.Entry) error {
	v, err := serializeEntry(entry)
	if err != nil {
		return err
	}
	// Batch calls can be retried, the function must stay idempotent
	return b.db.Batch(func(tx *bolt.Tx) error {
		err := getEntriesBucket(tx).Put(serializeKey(key), v)
		if err != nil {
			return cache.NewUnexpectedError("unable to store entry (%w)", err)
		}
		return nil
	})
}
