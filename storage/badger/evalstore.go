// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hitsave-io/hitsave/store"
)

// Key layout. Digests are fixed-length hex and never contain '/', so a
// prefix scan over eval/<symbol>/<argsHash>/ enumerates the function
// versions one argument set has been evaluated under.
//
//	eval/<symbol>/<argsHash>/<fnHash> → gob evalRecord
//	binding/<symbol>/<digest>         → gob bindingRecord
//	blob/<digest>                     → raw result bytes
//	evalid/<id>                       → eval key bytes
const (
	prefixEval    = "eval/"
	prefixBinding = "binding/"
	prefixBlob    = "blob/"
	prefixEvalID  = "evalid/"
)

type evalRecord struct {
	ID           string
	Key          store.EvalKey
	Status       store.Status
	Deps         map[string]string
	Args         map[string]string
	StartTime    time.Time
	Elapsed      time.Duration
	ResultDigest string
	IsExperiment bool
}

type bindingRecord struct {
	Kind    string
	DiffStr string
}

// EvalStore is the persistent store.Store backed by BadgerDB.
type EvalStore struct {
	db  *badger.DB
	gc  *gcRunner
	log *slog.Logger
}

var _ store.Store = (*EvalStore)(nil)

// Open opens the local evaluation store. Evaluations left in the
// started state by a dead process are removed: their results never
// landed and they would otherwise shadow future writes.
func Open(cfg Config) (*EvalStore, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s := &EvalStore{db: db, log: log}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, log)
		s.gc.start()
	}
	if err := s.cleanStarted(); err != nil {
		s.Close()
		return nil, fmt.Errorf("clean stale evaluations: %w", err)
	}
	return s, nil
}

// OpenInMemory opens a throwaway store for tests.
func OpenInMemory() (*EvalStore, error) {
	return Open(InMemoryConfig())
}

func (s *EvalStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

func evalKeyBytes(key store.EvalKey) []byte {
	return []byte(prefixEval + key.Fn.String() + "/" + key.ArgsHash + "/" + key.FnHash)
}

// Poll classifies a lookup into hit, code-changed, new-arguments, or
// never-evaluated, in that preference order.
func (s *EvalStore) Poll(ctx context.Context, key store.EvalKey) (*store.Result, error) {
	started := time.Now()
	var result *store.Result
	var missErr error

	err := withReadTxn(ctx, s.db, func(txn *badger.Txn) error {
		// Exact resolved hit.
		if rec, err := readEval(txn, evalKeyBytes(key)); err == nil && rec.Status == store.StatusResolved {
			data, err := readBlob(txn, rec.ResultDigest)
			if err != nil {
				return err
			}
			result = &store.Result{Data: data, Digest: rec.ResultDigest, Elapsed: rec.Elapsed}
			return nil
		} else if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		// Same function and arguments under another function version.
		argPrefix := []byte(prefixEval + key.Fn.String() + "/" + key.ArgsHash + "/")
		var changed *evalRecord
		if err := scanEvals(txn, argPrefix, func(rec *evalRecord) {
			if rec.Status == store.StatusResolved && rec.Key.FnHash != key.FnHash {
				changed = rec
			}
		}); err != nil {
			return err
		}
		if changed != nil {
			old := map[string]string{}
			for dep, digest := range changed.Deps {
				if b, err := readBinding(txn, dep, digest); err == nil {
					old[dep] = b.DiffStr
				} else {
					old[dep] = digest
				}
			}
			missErr = &store.CodeChanged{Old: old}
			return nil
		}

		// Same function version under other arguments.
		fnPrefix := []byte(prefixEval + key.Fn.String() + "/")
		sameVersion := false
		if err := scanEvals(txn, fnPrefix, func(rec *evalRecord) {
			if rec.Status == store.StatusResolved && rec.Key.FnHash == key.FnHash {
				sameVersion = true
			}
		}); err != nil {
			return err
		}
		if sameVersion {
			missErr = &store.Miss{Reason: store.ReasonNewArguments}
		} else {
			missErr = &store.Miss{Reason: store.ReasonNoEvaluation}
		}
		return nil
	})

	recordPollLatency(ctx, time.Since(started), result != nil)
	if err != nil {
		return nil, err
	}
	if missErr != nil {
		return nil, missErr
	}
	return result, nil
}

// Start writes a started evaluation record plus the bindings behind its
// dependency digests, and indexes the record by id.
func (s *EvalStore) Start(ctx context.Context, eval store.Eval) (string, error) {
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	rec := evalRecord{
		ID:           eval.ID,
		Key:          eval.Key,
		Status:       store.StatusStarted,
		Deps:         eval.Deps,
		Args:         eval.Args,
		StartTime:    eval.StartTime,
		IsExperiment: eval.IsExperiment,
	}
	err := withTxn(ctx, s.db, func(txn *badger.Txn) error {
		keyBytes := evalKeyBytes(eval.Key)
		if err := writeGob(txn, keyBytes, &rec); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixEvalID+eval.ID), keyBytes); err != nil {
			return err
		}
		for _, b := range eval.Bindings {
			brec := bindingRecord{Kind: b.Kind, DiffStr: b.DiffStr}
			if err := writeGob(txn, []byte(prefixBinding+b.Symbol+"/"+b.Digest), &brec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return eval.ID, nil
}

// Resolve stores the result blob and marks the evaluation resolved.
func (s *EvalStore) Resolve(ctx context.Context, id string, res store.Result) error {
	return withTxn(ctx, s.db, func(txn *badger.Txn) error {
		rec, keyBytes, err := s.evalByID(txn, id)
		if err != nil {
			return err
		}
		if rec.Status != store.StatusStarted {
			return store.ErrNotStarted
		}
		if err := txn.Set([]byte(prefixBlob+res.Digest), res.Data); err != nil {
			return err
		}
		rec.Status = store.StatusResolved
		rec.ResultDigest = res.Digest
		rec.Elapsed = res.Elapsed
		return writeGob(txn, keyBytes, rec)
	})
}

// Reject marks a started evaluation failed. The record is dropped
// rather than kept: a rejected evaluation carries no servable data and
// must not shadow a future retry.
func (s *EvalStore) Reject(ctx context.Context, id string) error {
	return withTxn(ctx, s.db, func(txn *badger.Txn) error {
		rec, keyBytes, err := s.evalByID(txn, id)
		if err != nil {
			return err
		}
		if rec.Status != store.StatusStarted {
			return store.ErrNotStarted
		}
		if err := txn.Delete(keyBytes); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixEvalID + id))
	})
}

func (s *EvalStore) evalByID(txn *badger.Txn, id string) (*evalRecord, []byte, error) {
	item, err := txn.Get([]byte(prefixEvalID + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, store.ErrNotStarted
	}
	if err != nil {
		return nil, nil, err
	}
	keyBytes, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	rec, err := readEval(txn, keyBytes)
	if err != nil {
		return nil, nil, err
	}
	return rec, keyBytes, nil
}

// cleanStarted removes evaluations a previous process started but never
// resolved.
func (s *EvalStore) cleanStarted() error {
	var stale [][]byte
	var ids []string
	err := withReadTxn(context.Background(), s.db, func(txn *badger.Txn) error {
		return scanEvalKeys(txn, []byte(prefixEval), func(key []byte, rec *evalRecord) {
			if rec.Status == store.StatusStarted {
				stale = append(stale, append([]byte(nil), key...))
				ids = append(ids, rec.ID)
			}
		})
	})
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}
	s.log.Info("removing unresolved evaluations from a previous process", "count", len(stale))
	return withTxn(context.Background(), s.db, func(txn *badger.Txn) error {
		for i, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete([]byte(prefixEvalID + ids[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

func readEval(txn *badger.Txn, key []byte) (*evalRecord, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	var rec evalRecord
	if err := item.Value(func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func readBinding(txn *badger.Txn, sym, digest string) (*bindingRecord, error) {
	item, err := txn.Get([]byte(prefixBinding + sym + "/" + digest))
	if err != nil {
		return nil, err
	}
	var rec bindingRecord
	if err := item.Value(func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
	}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func readBlob(txn *badger.Txn, digest string) ([]byte, error) {
	item, err := txn.Get([]byte(prefixBlob + digest))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func writeGob(txn *badger.Txn, key []byte, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return txn.Set(key, buf.Bytes())
}

func scanEvals(txn *badger.Txn, prefix []byte, fn func(rec *evalRecord)) error {
	return scanEvalKeys(txn, prefix, func(_ []byte, rec *evalRecord) { fn(rec) })
}

func scanEvalKeys(txn *badger.Txn, prefix []byte, fn func(key []byte, rec *evalRecord)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var rec evalRecord
		if err := item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&rec)
		}); err != nil {
			return err
		}
		fn(item.Key(), &rec)
	}
	return nil
}
