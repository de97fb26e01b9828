// Package persistence defines the collaborator contract of spec.md §6
// ("Persistence contract (for TRANSIENT writers and persistent
// readers)"), kept as an explicit external collaborator rather than
// baked into `endpoint`. participant.CreateWriter calls
// Writer.LoadWriterState once, when it creates a TRANSIENT writer, and
// seeds the new HistoryCache with the result. Nothing in the engine
// calls StoreChange, RemoveChange, or any Reader method: later writes
// are not mirrored into the store, and readers do not persist the
// sequence numbers they have delivered. Concrete
// implementations live in subpackages (persistence/boltstore); this
// package only names the contract, per spec.md §1's "persistence
// back-ends" being an out-of-scope, externally-provided concern.
package persistence

import (
	"github.com/rtps-go/rtps/core/guid"
	"github.com/rtps-go/rtps/core/seqnum"
	"github.com/rtps-go/rtps/history"
)

// Writer is the TRANSIENT-durability writer-side persistence
// collaborator of spec.md §6. persistenceGUID substitutes the
// writer's own GUID so history survives the writer being recreated
// with a new GUID across participant restarts (spec.md §4.4
// "Durability": "a persistence_guid substitutes writer_guid for
// cross-run continuity").
type Writer interface {
	// LoadWriterState returns every change previously stored for
	// persistenceGUID, in ascending sequence-number order, to seed a
	// freshly constructed StatefulWriter's HistoryCache.
	LoadWriterState(persistenceGUID guid.GUID) ([]*history.CacheChange, error)
	// StoreChange durably records c under persistenceGUID.
	StoreChange(persistenceGUID guid.GUID, c *history.CacheChange) error
	// RemoveChange deletes the previously stored change at seq, e.g.
	// once every matched reader has acknowledged it.
	RemoveChange(persistenceGUID guid.GUID, seq seqnum.SequenceNumber) error
}

// Reader is the persistent-reader-side collaborator of spec.md §6: it
// remembers the last sequence number a reader has delivered to its
// application per matched writer, so a restarted reader does not
// redeliver samples already seen in a previous run.
type Reader interface {
	// LoadLastNotified returns the last sequence number delivered from
	// writerGUID to the reader identified by persistenceGUID, or
	// seqnum.Unknown if none was ever recorded.
	LoadLastNotified(persistenceGUID, writerGUID guid.GUID) (seqnum.SequenceNumber, error)
	// StoreLastNotified records seq as the last delivered sequence
	// number from writerGUID for persistenceGUID.
	StoreLastNotified(persistenceGUID, writerGUID guid.GUID, seq seqnum.SequenceNumber) error
}
