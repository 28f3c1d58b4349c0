// Package history persists one snapshot per refresh in a revisioned local
// store, so operators can ask how a host drifted into its current state.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/vahti/types"
)

// Bucket names in bbolt
var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

var keyCurrentRevision = []byte("current_revision")

// Store is a revisioned snapshot store: bbolt on disk, a btree summary
// index in memory for time-range queries without full scans.
type Store struct {
	mu sync.RWMutex

	index *btree.BTreeG[indexEntry]
	db    *bbolt.DB

	currentRev int64
	dir        string
}

// indexEntry is the in-memory summary of one stored snapshot
type indexEntry struct {
	Revision  int64
	Timestamp time.Time
	Severity  string
}

// Open opens (or creates) the snapshot store in dir
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	// Timeout keeps a second process (the CLI reading history while the
	// daemon runs) from blocking forever on the file lock.
	db, err := bbolt.Open(filepath.Join(dir, "vahti.db"), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{
		index: btree.NewG[indexEntry](32, func(a, b indexEntry) bool {
			return a.Revision < b.Revision
		}),
		db:  db,
		dir: dir,
	}

	if err := store.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}

// Record persists a snapshot under the next revision and returns it
func (s *Store) Record(snap types.Snapshot) (int64, error) {
	if err := snap.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to record snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rev := s.currentRev + 1
	snap.Revision = rev

	err := s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketSnapshots).Put(revisionKey(rev), value); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentRevision, int64ToBytes(rev))
	})
	if err != nil {
		return 0, err
	}

	s.currentRev = rev
	s.index.ReplaceOrInsert(indexEntry{
		Revision:  rev,
		Timestamp: snap.Timestamp,
		Severity:  snap.Severity,
	})

	return rev, nil
}

// Latest returns the most recent snapshot, or nil when nothing has been
// recorded yet
func (s *Store) Latest() (*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.index.Max()
	if !ok {
		return nil, nil
	}
	return s.getLocked(entry.Revision)
}

// Get returns the snapshot stored at a revision
func (s *Store) Get(rev int64) (*types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(rev)
}

func (s *Store) getLocked(rev int64) (*types.Snapshot, error) {
	var snap *types.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketSnapshots).Get(revisionKey(rev))
		if value == nil {
			return fmt.Errorf("no snapshot at revision %d", rev)
		}
		snap = &types.Snapshot{}
		return json.Unmarshal(value, snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// List returns snapshots taken at or after since, oldest first, capped at
// limit entries. A zero since means everything; a zero limit means no cap.
func (s *Store) List(since time.Time, limit int) ([]types.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var revisions []int64
	s.index.Ascend(func(entry indexEntry) bool {
		if !since.IsZero() && entry.Timestamp.Before(since) {
			return true
		}
		revisions = append(revisions, entry.Revision)
		return limit <= 0 || len(revisions) < limit
	})

	snapshots := make([]types.Snapshot, 0, len(revisions))
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		for _, rev := range revisions {
			value := bucket.Get(revisionKey(rev))
			if value == nil {
				continue
			}
			var snap types.Snapshot
			if err := json.Unmarshal(value, &snap); err != nil {
				return err
			}
			snapshots = append(snapshots, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshots, nil
}

// Prune deletes snapshots taken before cutoff and returns how many went.
// The newest snapshot always survives, so a quiet host keeps its last
// known state however old it gets.
func (s *Store) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	newest, ok := s.index.Max()
	if !ok {
		return 0, nil
	}

	var doomed []indexEntry
	s.index.Ascend(func(entry indexEntry) bool {
		if entry.Revision != newest.Revision && entry.Timestamp.Before(cutoff) {
			doomed = append(doomed, entry)
		}
		return true
	})
	if len(doomed) == 0 {
		return 0, nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		for _, entry := range doomed {
			if err := bucket.Delete(revisionKey(entry.Revision)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, entry := range doomed {
		s.index.Delete(entry)
	}

	return len(doomed), nil
}

// CurrentRevision returns the revision of the newest snapshot
func (s *Store) CurrentRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

func (s *Store) loadRevision() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentRevision)
		if data != nil {
			s.currentRev = bytesToInt64(data)
		}
		return nil
	})
}

// rebuildIndex reloads the summary index from disk after open
func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap types.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("corrupt snapshot at key %s: %w", k, err)
			}
			s.index.ReplaceOrInsert(indexEntry{
				Revision:  snap.Revision,
				Timestamp: snap.Timestamp,
				Severity:  snap.Severity,
			})
			return nil
		})
	})
}

func revisionKey(rev int64) []byte {
	return []byte(fmt.Sprintf("%016d", rev))
}

func int64ToBytes(n int64) []byte {
	return []byte(fmt.Sprintf("%d", n))
}

func bytesToInt64(b []byte) int64 {
	var n int64
	_, _ = fmt.Sscanf(string(b), "%d", &n)
	return n
}
