// Package storagetest provides an in-memory storage.System for tests.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/geoassign/pkg/lifecycle"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

type object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// Memory is a storage.System backed by a map. The zero value is not usable;
// call NewMemory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
	// FailUpload, when set, is returned by every Upload.
	FailUpload error
}

var _ storage.System = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

// Put stores data at key directly.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: slices.Clone(data), modified: time.Now().UTC()}
}

// Get returns the bytes stored at key.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o.data, ok
}

// Keys lists every stored key in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (m *Memory) Start(*lifecycle.Coordinator) error { return nil }

func (m *Memory) List(_ context.Context, prefix, marker string, maxResults int32) (*storage.BlobList, error) {
	if maxResults < 1 {
		return nil, storage.ErrInvalidMaxResults
	}
	result := &storage.BlobList{Blobs: []storage.BlobMeta{}}
	for _, key := range m.Keys() {
		if !strings.HasPrefix(key, prefix) || (marker != "" && key < marker) {
			continue
		}
		if int32(len(result.Blobs)) == maxResults {
			result.NextMarker = key
			break
		}
		meta, _ := m.Find(context.Background(), key)
		result.Blobs = append(result.Blobs, *meta)
	}
	return result, nil
}

func (m *Memory) Find(_ context.Context, key string) (*storage.BlobMeta, error) {
	if key == "" {
		return nil, storage.ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.BlobMeta{
		Key:           key,
		ContentType:   o.contentType,
		ContentLength: int64(len(o.data)),
		LastModified:  o.modified,
	}, nil
}

func (m *Memory) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	if m.FailUpload != nil {
		return m.FailUpload
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, contentType: contentType, modified: time.Now().UTC()}
	return nil
}

func (m *Memory) Download(_ context.Context, key string) (*storage.BlobResult, error) {
	if key == "" {
		return nil, storage.ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.BlobResult{
		Body:          io.NopCloser(bytes.NewReader(o.data)),
		ContentType:   o.contentType,
		ContentLength: int64(len(o.data)),
	}, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Find(ctx, key)
	if err == storage.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}
