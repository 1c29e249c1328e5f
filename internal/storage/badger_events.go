package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/radiusdt/dynaq/internal/models"
)

var (
	eventPrefix = []byte("event/")
	indexPrefix = []byte("idx/")
)

// BadgerEventStore implements EventStore on an embedded badger database.
//
// Layout:
//
//	event/<id>                          -> JSON event
//	idx/<project_id>\x00<ts><id>        -> <id>
//
// ts is an 8 byte big-endian, sign-flipped UnixNano so keys sort by time.
type BadgerEventStore struct {
	db *badger.DB
}

// NewBadgerEventStore creates a new badger-backed event store.
func NewBadgerEventStore(db *badger.DB) *BadgerEventStore {
	return &BadgerEventStore{db: db}
}

func badgerEventKey(id string) []byte {
	return append(append([]byte{}, eventPrefix...), id...)
}

func badgerProjectPrefix(projectID string) []byte {
	k := make([]byte, 0, len(indexPrefix)+len(projectID)+1)
	k = append(k, indexPrefix...)
	k = append(k, projectID...)
	return append(k, 0)
}

func badgerTimeBytes(ts time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ts.UnixNano())^(1<<63))
	return b[:]
}

func badgerIndexKey(e *models.TrackingEvent) []byte {
	k := badgerProjectPrefix(e.ProjectID)
	k = append(k, badgerTimeBytes(e.Timestamp)...)
	return append(k, e.ID...)
}

func (s *BadgerEventStore) SaveEvent(ctx context.Context, e *models.TrackingEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.SetEntry(badger.NewEntry(badgerEventKey(e.ID), data)); err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(badgerIndexKey(e), []byte(e.ID)))
	})
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func getBadgerEvent(txn *badger.Txn, id string) (*models.TrackingEvent, error) {
	item, err := txn.Get(badgerEventKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e models.TrackingEvent
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
	}
	return &e, nil
}

func (s *BadgerEventStore) GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	var e *models.TrackingEvent
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = getBadgerEvent(txn, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (s *BadgerEventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	var existed bool
	err := s.db.Update(func(txn *badger.Txn) error {
		e, err := getBadgerEvent(txn, id)
		if err != nil || e == nil {
			return err
		}
		existed = true
		if err := txn.Delete(badgerEventKey(id)); err != nil {
			return err
		}
		return txn.Delete(badgerIndexKey(e))
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	return existed, nil
}

func (s *BadgerEventStore) ListEvents(ctx context.Context, q EventQuery) ([]*models.TrackingEvent, error) {
	prefix := badgerProjectPrefix(q.ProjectID)
	start := prefix
	if q.From != nil {
		start = append(append([]byte{}, prefix...), badgerTimeBytes(*q.From)...)
	}
	var end []byte
	if q.To != nil {
		// index keys for To carry the id after the time bytes, so compare
		// only the time part
		end = badgerTimeBytes(*q.To)
	}

	result := make([]*models.TrackingEvent, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		o := badger.DefaultIteratorOptions
		o.Prefix = prefix
		o.PrefetchValues = false
		it := txn.NewIterator(o)
		defer it.Close()

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			if end != nil && len(key) >= len(prefix)+8 &&
				bytes.Compare(key[len(prefix):len(prefix)+8], end) > 0 {
				break
			}

			var id string
			err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			})
			if err != nil {
				return err
			}

			e, err := getBadgerEvent(txn, id)
			if err != nil {
				return err
			}
			if e != nil && q.Match(e) {
				result = append(result, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	sortNewestFirst(result)
	return result, nil
}

// Ping reports whether the database is still open.
func (s *BadgerEventStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}
