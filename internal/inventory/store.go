// Package inventory tracks the plant's alternative-fuel waste streams and
// their remaining stock. Stock is persisted in a Badger key-value store so
// consumption survives console restarts; an in-memory mode backs demos and
// tests.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned when no stream exists under the requested name.
var ErrNotFound = errors.New("inventory: stream not found")

// Stream is one waste stream available for co-processing.
type Stream struct {
	// Name identifies the stream ("Tires", "Plastic", ...).
	Name string `json:"name"`

	// PCI is the calorific value in kcal/kg.
	PCI float64 `json:"pci"`

	// Chlorine is the chlorine mass fraction.
	Chlorine float64 `json:"chlorine"`

	// Sulfur is the sulfur mass fraction.
	Sulfur float64 `json:"sulfur"`

	// Humidity is the moisture mass fraction.
	Humidity float64 `json:"humidity"`

	// StockTons is the remaining stock in tons. Never negative.
	StockTons float64 `json:"stock"`
}

// DefaultStreams is the seed inventory for a fresh store.
var DefaultStreams = []Stream{
	{Name: "Tires", PCI: 8000, Chlorine: 0.01, Sulfur: 1.5, Humidity: 0.02, StockTons: 500},
	{Name: "Plastic", PCI: 6000, Chlorine: 0.05, Sulfur: 0.2, Humidity: 0.10, StockTons: 350},
	{Name: "Wood", PCI: 3500, Chlorine: 0.02, Sulfur: 0.1, Humidity: 0.20, StockTons: 1200},
	{Name: "Biomass", PCI: 1500, Chlorine: 0.03, Sulfur: 0.1, Humidity: 0.40, StockTons: 800},
}

// Store persists waste streams in Badger. All operations are safe for
// concurrent use; Badger serialises transactions internally.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory store that is lost on Close.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("inventory: create directory: %w", err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("inventory: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Seed inserts DefaultStreams into an empty store. A store that already
// holds any stream is left untouched.
func (s *Store) Seed() error {
	existing, err := s.List()
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, st := range DefaultStreams {
		if err := s.Put(st); err != nil {
			return err
		}
	}
	return nil
}

// Put inserts or replaces a stream keyed by its name.
func (s *Store) Put(st Stream) error {
	if st.Name == "" {
		return errors.New("inventory: stream name is required")
	}
	if st.StockTons < 0 {
		st.StockTons = 0
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("inventory: marshal stream: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(st.Name), data)
	})
	if err != nil {
		return fmt.Errorf("inventory: put %q: %w", st.Name, err)
	}
	return nil
}

// Get returns the stream with the given name.
func (s *Store) Get(name string) (Stream, error) {
	var st Stream
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Stream{}, fmt.Errorf("inventory: %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Stream{}, fmt.Errorf("inventory: get %q: %w", name, err)
	}
	return st, nil
}

// List returns every stream, sorted by name.
func (s *Store) List() ([]Stream, error) {
	var out []Stream
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var st Stream
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &st)
			})
			if err != nil {
				return err
			}
			out = append(out, st)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Adjust changes a stream's stock by deltaTons (negative for consumption)
// and returns the updated stream. Stock clamps at zero rather than going
// negative: consuming more than remains empties the stream.
func (s *Store) Adjust(name string, deltaTons float64) (Stream, error) {
	var updated Stream
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		var st Stream
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		}); err != nil {
			return err
		}
		st.StockTons += deltaTons
		if st.StockTons < 0 {
			st.StockTons = 0
		}
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(name), data); err != nil {
			return err
		}
		updated = st
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Stream{}, fmt.Errorf("inventory: %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return Stream{}, fmt.Errorf("inventory: adjust %q: %w", name, err)
	}
	return updated, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
