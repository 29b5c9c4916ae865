// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docanalysis/storage"
)

// DocumentStore implements storage.DocumentStore for BadgerDB.
type DocumentStore struct {
	backend *Backend
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(backend *Backend) *DocumentStore {
	return &DocumentStore{
		backend: backend,
	}
}

// Put stores a document body, replacing any previous one.
func (s *DocumentStore) Put(ctx context.Context, documentID string, data []byte) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeDocumentKey(documentID), data)
	})
}

// Get retrieves a document body.
// Returns storage.ErrNotFound if no document is stored.
func (s *DocumentStore) Get(ctx context.Context, documentID string) ([]byte, error) {
	var data []byte
	err := s.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(documentID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: document %s", storage.ErrNotFound, documentID)
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// Delete removes a document body. Deleting a missing document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, documentID string) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Delete(makeDocumentKey(documentID))
	})
}
