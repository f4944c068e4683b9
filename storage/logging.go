package storage

import (
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/numbleroot/handoff/crdt"
	"github.com/pkg/errors"
)

// Structs

type loggingStore struct {
	logger log.Logger
	store  Store
}

// Functions

// NewLoggingStore wraps a provided existing
// store with the provided logger.
func NewLoggingStore(s Store, logger log.Logger) Store {

	return &loggingStore{
		logger: logger,
		store:  s,
	}
}

// Load wraps this store's Load method
// with added logging capabilities.
func (s *loggingStore) Load(id string) (*crdt.Snapshot[string], error) {

	start := time.Now()
	snap, err := s.store.Load(id)

	logger := log.With(s.logger,
		"method", "Load",
		"replica", id,
		"took", time.Since(start),
	)

	if err != nil && errors.Cause(err) != ErrNotFound {
		level.Warn(logger).Log("msg", "failed to load replica state", "err", err)
	} else {
		level.Debug(logger).Log("found", err == nil)
	}

	return snap, err
}

// Save wraps this store's Save method
// with added logging capabilities.
func (s *loggingStore) Save(snap *crdt.Snapshot[string]) error {

	start := time.Now()
	err := s.store.Save(snap)

	logger := log.With(s.logger,
		"method", "Save",
		"replica", snap.ID,
		"took", time.Since(start),
	)

	if err != nil {
		level.Warn(logger).Log("msg", "failed to save replica state", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}

// Close wraps this store's Close method
// with added logging capabilities.
func (s *loggingStore) Close() error {

	err := s.store.Close()
	if err != nil {
		level.Warn(s.logger).Log(
			"msg", "failed to close store",
			"err", err,
		)
	}

	return err
}
