// Package journal records every successful batch commit so the
// dashboard and CLI can show recent activity without round-tripping to
// the GitHub API. Entries are zstd-compressed JSON in badger, keyed so
// an ascending scan walks newest first.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

const keyPrefix = "journal:"

// zstd frame magic, used to tell compressed payloads from plain JSON.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Entry is one landed batch commit.
type Entry struct {
	SHA       string    `json:"sha"`
	ActorTag  string    `json:"actor_tag"`
	Message   string    `json:"message"`
	Report    string    `json:"report"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewStore(db *badger.DB) (*Store, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(2)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating journal encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating journal decoder: %w", err)
	}

	return &Store{db: db, enc: enc, dec: dec}, nil
}

func (s *Store) Close() {
	s.enc.Close()
	s.dec.Close()
}

// key builds "journal:<inverted-nanos>:<sha>" so that lexicographic
// order is reverse-chronological.
func key(e *Entry) []byte {
	inverted := uint64(math.MaxInt64) - uint64(e.CreatedAt.UnixNano())
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefix, inverted, e.SHA))
}

// Record appends one landed commit to the journal.
func (s *Store) Record(e *Entry) error {
	if e.SHA == "" {
		return fmt.Errorf("journal entry needs a commit sha")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling journal entry: %w", err)
	}
	compressed := s.enc.EncodeAll(data, nil)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(e), compressed)
	})
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(entries) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				entry, err := s.decode(val)
				if err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return entries, nil
}

func (s *Store) decode(val []byte) (Entry, error) {
	raw := val
	if len(val) > 4 && bytes.Equal(val[:4], zstdMagic) {
		var err error
		raw, err = s.dec.DecodeAll(val, nil)
		if err != nil {
			return Entry{}, fmt.Errorf("decompressing journal entry: %w", err)
		}
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshaling journal entry: %w", err)
	}
	return entry, nil
}
