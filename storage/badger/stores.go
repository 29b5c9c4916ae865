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

// Stores bundles the badger-backed stores sharing one backend.
type Stores struct {
	Backend   *Backend
	Vectors   *VectorIndex
	Queue     *JobQueue
	Documents *DocumentStore
}

// OpenStores opens a backend at path and builds every store on it.
func OpenStores(path string, inMemory bool, dimension int, opts ...VectorIndexOption) (*Stores, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	queue, err := NewJobQueue(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	return &Stores{
		Backend:   backend,
		Vectors:   NewVectorIndex(backend, dimension, opts...),
		Queue:     queue,
		Documents: NewDocumentStore(backend),
	}, nil
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must Close the result when done.
func NewMemoryStores(dimension int) (*Stores, error) {
	return OpenStores("", true, dimension)
}

// Close releases the queue sequence and closes the backend.
func (s *Stores) Close() error {
	if err := s.Queue.Close(); err != nil {
		s.Backend.Close()
		return err
	}
	return s.Backend.Close()
}
