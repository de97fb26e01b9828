// Package boltstore implements the persistence.Writer and
// persistence.Reader contracts on top of go.etcd.io/bbolt, a single
// embedded file per Participant. Each persistenceGUID gets its own
// bucket under the "writers" (resp. "readers") top-level bucket, so
// one bbolt.DB can back every TRANSIENT writer and persistent reader a
// Participant owns. Snapshot values are CBOR-encoded
// (github.com/fxamacker/cbor/v2, the same library and encode/decode
// idiom core/pki/descriptor.go uses for its own on-the-wire structs)
// — a deliberate departure from the bit-exact RTPS wire format of
// spec.md §4.1, since this is a local snapshot format private to one
// process's restarts, not an interoperability format.
package boltstore

import (
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/history"
)

var (
	writersBucket = []byte("writers")
	readersBucket = []byte("readers")
)

// Store is a single bbolt-backed persistence.Writer and
// persistence.Reader.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// its two top-level buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(writersBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(readersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func guidKey(g guid.GUID) []byte {
	key := make([]byte, guid.PrefixLength+guid.EntityIDLength)
	copy(key, g.Prefix[:])
	copy(key[guid.PrefixLength:], g.EntityID[:])
	return key
}

func seqKey(seq seqnum.SequenceNumber) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	return b[:]
}

// snapshotChange is the CBOR-serializable mirror of history.CacheChange;
// kept distinct from it so the on-disk shape doesn't silently change
// if CacheChange ever grows fields that shouldn't be persisted (e.g.
// in-progress Fragments).
type snapshotChange struct {
	Kind            history.ChangeKind
	WriterPrefix    guid.Prefix
	WriterEntityID  guid.EntityID
	InstanceHandle  history.InstanceHandle
	SequenceNumber  seqnum.SequenceNumber
	Payload         []byte
	SourceTimestamp int64 // UnixNano
}

func toSnapshot(c *history.CacheChange) snapshotChange {
	return snapshotChange{
		Kind:            c.Kind,
		WriterPrefix:    c.WriterGUID.Prefix,
		WriterEntityID:  c.WriterGUID.EntityID,
		InstanceHandle:  c.InstanceHandle,
		SequenceNumber:  c.SequenceNumber,
		Payload:         c.Payload,
		SourceTimestamp: c.SourceTimestamp.UnixNano(),
	}
}

func (s snapshotChange) toChange() *history.CacheChange {
	return &history.CacheChange{
		Kind:           s.Kind,
		WriterGUID:     guid.GUID{Prefix: s.WriterPrefix, EntityID: s.WriterEntityID},
		InstanceHandle: s.InstanceHandle,
		SequenceNumber: s.SequenceNumber,
		Payload:        s.Payload,
	}
}

// LoadWriterState implements persistence.Writer.
func (s *Store) LoadWriterState(persistenceGUID guid.GUID) ([]*history.CacheChange, error) {
	var out []*history.CacheChange
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(writersBucket).Bucket(guidKey(persistenceGUID))
		if root == nil {
			return nil
		}
		return root.ForEach(func(_, v []byte) error {
			var snap snapshotChange
			if err := cbor.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("boltstore: decode change: %w", err)
			}
			out = append(out, snap.toChange())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StoreChange implements persistence.Writer.
func (s *Store) StoreChange(persistenceGUID guid.GUID, c *history.CacheChange) error {
	raw, err := cbor.Marshal(toSnapshot(c))
	if err != nil {
		return fmt.Errorf("boltstore: encode change: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.Bucket(writersBucket).CreateBucketIfNotExists(guidKey(persistenceGUID))
		if err != nil {
			return err
		}
		return root.Put(seqKey(c.SequenceNumber), raw)
	})
}

// RemoveChange implements persistence.Writer.
func (s *Store) RemoveChange(persistenceGUID guid.GUID, seq seqnum.SequenceNumber) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(writersBucket).Bucket(guidKey(persistenceGUID))
		if root == nil {
			return nil
		}
		return root.Delete(seqKey(seq))
	})
}

// LoadLastNotified implements persistence.Reader.
func (s *Store) LoadLastNotified(persistenceGUID, writerGUID guid.GUID) (seqnum.SequenceNumber, error) {
	last := seqnum.Unknown
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(readersBucket).Bucket(guidKey(persistenceGUID))
		if root == nil {
			return nil
		}
		raw := root.Get(guidKey(writerGUID))
		if raw == nil {
			return nil
		}
		last = seqnum.SequenceNumber(int64(binary.BigEndian.Uint64(raw)))
		return nil
	})
	if err != nil {
		return seqnum.Unknown, err
	}
	return last, nil
}

// StoreLastNotified implements persistence.Reader.
func (s *Store) StoreLastNotified(persistenceGUID, writerGUID guid.GUID, seq seqnum.SequenceNumber) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(seq))
	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.Bucket(readersBucket).CreateBucketIfNotExists(guidKey(persistenceGUID))
		if err != nil {
			return err
		}
		return root.Put(guidKey(writerGUID), b[:])
	})
}
