package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerConfig holds configuration for a Badger-backed store.
type BadgerConfig struct {
	// Dir is the directory for Badger files. Ignored when InMemory is true.
	Dir string

	// InMemory enables in-memory mode (no disk persistence). Useful for tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives Badger's internal log output. Nil disables it.
	Logger *zap.Logger
}

// BadgerStore keeps items as JSON values under "item/<zone>/<id>" keys.
type BadgerStore struct {
	db *badger.DB
}

// compile-time check that BadgerStore implements Store.
var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts zap to Badger's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// OpenBadger opens a Badger database with the given configuration.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("badger directory is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: bdb}, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func zonePrefix(zone Zone) []byte {
	return []byte("item/" + string(zone) + "/")
}

func itemKey(zone Zone, id string) []byte {
	return append(zonePrefix(zone), id...)
}

func (b *BadgerStore) GetItems(ctx context.Context, zone Zone) ([]*RawItem, error) {
	items := []*RawItem{}
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := zonePrefix(zone)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().Key()
			var item *RawItem
			if err := it.Item().Value(func(val []byte) error {
				item = decodeValue(key[len(prefix):], val)
				return nil
			}); err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (b *BadgerStore) GetItem(ctx context.Context, zone Zone, id string) (*RawItem, error) {
	var item *RawItem
	err := b.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get(itemKey(zone, id))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			item = decodeValue([]byte(id), val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// decodeValue never fails: a value that is not valid JSON comes back as an
// Unreadable stub keyed by id, so one corrupt entry cannot hide the zone.
func decodeValue(id, val []byte) *RawItem {
	var item RawItem
	if err := json.Unmarshal(val, &item); err != nil || item.ID == "" {
		return &RawItem{ID: string(id), Properties: map[string]any{}, Unreadable: true}
	}
	if item.Properties == nil {
		item.Properties = map[string]any{}
	}
	return &item
}

func (b *BadgerStore) Push(ctx context.Context, zone Zone, item *RawItem, overwrite bool) error {
	if err := validateItem(item); err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %s: %w", item.ID, err)
	}

	key := itemKey(zone, item.ID)
	return b.db.Update(func(txn *badger.Txn) error {
		if !overwrite {
			_, err := txn.Get(key)
			if err == nil {
				return fmt.Errorf("item %s: %w", item.ID, ErrAlreadyExists)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("failed to check item %s: %w", item.ID, err)
			}
		}
		if err := txn.Set(key, data); err != nil {
			return fmt.Errorf("failed to push item %s: %w", item.ID, err)
		}
		return nil
	})
}

func (b *BadgerStore) Delete(ctx context.Context, zone Zone, id string) error {
	key := itemKey(zone, id)
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to check item %s: %w", id, err)
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		return nil
	})
}
