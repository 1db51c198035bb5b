// Package history keeps a local record of queries sent to the Voysis
// service, so they can be rated later or their conversation continued.
//
// Records are msgpack-encoded and stored in BadgerDB under two key spaces:
//
//	query:<unix-nanos>:<id>  the record, ordered by creation time
//	id:<id>                  the record's query key
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voysis/go/pkg/voysis"
)

// ErrNotFound is returned when no record exists for a query id.
var ErrNotFound = errors.New("history: not found")

const (
	queryPrefix = "query:"
	idPrefix    = "id:"
)

// Record is a stored query.
type Record struct {
	ID             string    `msgpack:"id" json:"id"`
	Locale         string    `msgpack:"locale" json:"locale"`
	QueryType      string    `msgpack:"type" json:"queryType"`
	ConversationID string    `msgpack:"conversation_id,omitempty" json:"conversationId,omitempty"`
	Text           string    `msgpack:"text,omitempty" json:"text,omitempty"`
	Intent         string    `msgpack:"intent,omitempty" json:"intent,omitempty"`
	Reply          string    `msgpack:"reply,omitempty" json:"reply,omitempty"`
	SelfHref       string    `msgpack:"self" json:"self"`
	CreatedAt      time.Time `msgpack:"created_at" json:"createdAt"`
	Rating         int       `msgpack:"rating,omitempty" json:"rating,omitempty"`
}

// FromQuery builds a record from a query returned by the service.
func FromQuery(q *voysis.Query, now time.Time) Record {
	r := Record{
		ID:             q.ID,
		Locale:         q.Locale,
		QueryType:      q.QueryType,
		ConversationID: q.ConversationID,
		Text:           q.Text(),
		Intent:         q.Intent,
		SelfHref:       q.Links.Self.Href,
		CreatedAt:      now,
	}
	if q.Reply != nil {
		r.Reply = q.Reply.Text
	}
	return r
}

// Query returns the minimal query resource needed to rate the record.
func (r *Record) Query() *voysis.Query {
	return &voysis.Query{
		ID:             r.ID,
		Locale:         r.Locale,
		QueryType:      r.QueryType,
		ConversationID: r.ConversationID,
		Links:          voysis.QueryLinks{Self: voysis.Link{Href: r.SelfHref}},
	}
}

// Options configures a Store.
type Options struct {
	// Dir is the database directory. Required unless InMemory is set.
	Dir string

	// InMemory keeps the database in memory only.
	InMemory bool

	// Logger receives badger warnings and errors. Nil uses slog.Default.
	Logger *slog.Logger
}

// Store is a BadgerDB-backed query history.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("history: Options.Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{logger})
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true).WithLogger(badgerLogger{logger})
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	return &Store{db: db}, nil
}

func queryKey(r *Record) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", queryPrefix, r.CreatedAt.UnixNano(), r.ID)
}

// Put stores r, replacing any earlier record with the same id.
func (s *Store) Put(_ context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("history: record has no id")
	}
	val, err := msgpack.Marshal(&r)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	key := queryKey(&r)
	return s.db.Update(func(txn *badger.Txn) error {
		idKey := []byte(idPrefix + r.ID)
		if item, err := txn.Get(idKey); err == nil {
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(old); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
}

// Get returns the record for a query id.
func (s *Store) Get(_ context.Context, id string) (*Record, error) {
	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(idPrefix + id))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if item, err = txn.Get(key); err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get %s: %w", id, err)
	}
	return &r, nil
}

// SetRating records the rating given to a query.
func (s *Store) SetRating(ctx context.Context, id string, rating int) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	r.Rating = rating
	return s.Put(ctx, *r)
}

// List returns up to limit records, newest first. A limit of zero or less
// returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(queryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks from just past the prefix.
		for it.Seek([]byte(queryPrefix + "\xff")); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Record
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

// Latest returns the newest record.
func (s *Store) Latest(ctx context.Context) (*Record, error) {
	records, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// Clear deletes every record and returns how many there were.
func (s *Store) Clear(_ context.Context) (int, error) {
	var keys [][]byte
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if len(key) > len(queryPrefix) && string(key[:len(queryPrefix)]) == queryPrefix {
				n++
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("history: clear: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's warnings and errors into slog.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error("badger: " + fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn("badger: " + fmt.Sprintf(f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

// RatingString returns the rating as text, or "-" when unrated.
func (r *Record) RatingString() string {
	if r.Rating == 0 {
		return "-"
	}
	return strconv.Itoa(r.Rating)
}
