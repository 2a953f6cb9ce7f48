package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/inkwellapp/inkwell-server/internal/contentindex"
	"github.com/inkwellapp/inkwell-server/internal/searchindex"
)

// Derived index records. These live under their own key namespaces so a
// full index wipe never touches book records, and every record is gated
// on its embedded schema version: a stale version reads as absent and the
// caller rebuilds from source.
const (
	contentManifestKey  = "contentSearch.__manifest__"
	contentRecordPrefix = "contentSearch.book:"
	searchSnapshotKey   = "searchIndex.global"
)

// Content index

// GetContentRecord loads a book's content index record. Returns (nil, nil)
// when the record is absent or was written at a different schema version.
func (s *Store) GetContentRecord(ctx context.Context, bookID string) (*contentindex.Record, error) {
	var record contentindex.Record
	err := s.get([]byte(contentRecordPrefix+bookID), &record)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content record: %w", err)
	}
	if record.Version != contentindex.SchemaVersion {
		return nil, nil
	}
	return &record, nil
}

// PutContentRecord persists a book's content index record.
func (s *Store) PutContentRecord(ctx context.Context, record *contentindex.Record) error {
	if err := s.set([]byte(contentRecordPrefix+record.BookID), record); err != nil {
		return fmt.Errorf("put content record: %w", err)
	}
	return nil
}

// DeleteContentRecord removes a book's content index record. Deleting an
// absent record is not an error.
func (s *Store) DeleteContentRecord(ctx context.Context, bookID string) error {
	if err := s.delete([]byte(contentRecordPrefix + bookID)); err != nil {
		return fmt.Errorf("delete content record: %w", err)
	}
	return nil
}

// GetContentManifest loads the content index manifest. Returns (nil, nil)
// when absent or written at a different schema version.
func (s *Store) GetContentManifest(ctx context.Context) (*contentindex.Manifest, error) {
	var manifest contentindex.Manifest
	err := s.get([]byte(contentManifestKey), &manifest)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get content manifest: %w", err)
	}
	if manifest.Version != contentindex.SchemaVersion {
		return nil, nil
	}
	if manifest.Books == nil {
		manifest.Books = make(map[string]contentindex.ManifestEntry)
	}
	return &manifest, nil
}

// PutContentManifest persists the content index manifest.
func (s *Store) PutContentManifest(ctx context.Context, manifest *contentindex.Manifest) error {
	if err := s.set([]byte(contentManifestKey), manifest); err != nil {
		return fmt.Errorf("put content manifest: %w", err)
	}
	return nil
}

// Search index

// GetSearchSnapshot loads the aggregate search snapshot. Returns
// (nil, nil) when absent or written at a different schema version.
func (s *Store) GetSearchSnapshot(ctx context.Context) (*searchindex.Snapshot, error) {
	var snapshot searchindex.Snapshot
	err := s.get([]byte(searchSnapshotKey), &snapshot)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get search snapshot: %w", err)
	}
	if snapshot.Version != searchindex.SchemaVersion {
		return nil, nil
	}
	if snapshot.Records == nil {
		snapshot.Records = make(map[string]*searchindex.Record)
	}
	return &snapshot, nil
}

// PutSearchSnapshot persists the aggregate search snapshot.
func (s *Store) PutSearchSnapshot(ctx context.Context, snapshot *searchindex.Snapshot) error {
	if err := s.set([]byte(searchSnapshotKey), snapshot); err != nil {
		return fmt.Errorf("put search snapshot: %w", err)
	}
	return nil
}
