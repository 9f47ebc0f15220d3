// Package reconcile merges remote listings into local records. One
// generic routine serves every entity: it matches by natural key, creates
// or updates in place, isolates per-record failures, and optionally
// prunes local records that the listing no longer contains.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/pmsync/internal/logger"
)

// ErrSkip is returned by Create or Apply to leave a record untouched
// without counting it as a failure (for example a board whose project is
// not known locally).
var ErrSkip = errors.New("record skipped")

// Spec describes how records of one entity are matched, created, merged,
// saved, and pruned. R is the remote record type and L the local one.
type Spec[R, L any] struct {
	// Entity names the entity in logs.
	Entity string

	// Key returns the natural key of a remote record.
	Key func(R) string

	// Find returns the local record matching a remote one, or nil.
	Find func(ctx context.Context, remote R) (*L, error)

	// Create builds a fresh local record for a remote one.
	Create func(ctx context.Context, remote R) (L, error)

	// Apply overwrites the remote-sourced fields of local and reports
	// whether anything changed.
	Apply func(ctx context.Context, local *L, remote R) (bool, error)

	// Save persists a created or changed record.
	Save func(ctx context.Context, local L) error

	// Prune is optional. When set, local records whose key is absent
	// from the listing are deleted.
	Prune *Prune[L]
}

// Prune lists and deletes local records absent from a remote listing.
type Prune[L any] struct {
	List   func(ctx context.Context) ([]L, error)
	Key    func(L) string
	Delete func(ctx context.Context, local L) error
}

// Result counts the outcome of one Reconcile call.
type Result struct {
	Processed int
	Created   int
	Updated   int
	Unchanged int
	Deleted   int
	Skipped   int
	Failed    int
}

// Add accumulates another result.
func (r *Result) Add(o Result) {
	r.Processed += o.Processed
	r.Created += o.Created
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Deleted += o.Deleted
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
)

// Reconcile merges records into the local store following spec. Errors
// on single records are logged with the record's key and counted in
// Result.Failed. The returned error is non-nil only when ctx is done or
// the prune listing fails.
func Reconcile[R, L any](ctx context.Context, spec Spec[R, L], records []R) (Result, error) {
	var res Result
	log := logger.WithFields(logger.F("entity", spec.Entity))

	// Every listed key counts as present for pruning, including records
	// that failed or were skipped.
	present := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		key := spec.Key(rec)
		present[key] = struct{}{}
		res.Processed++

		out, err := reconcileOne(ctx, spec, key, rec)
		switch {
		case err != nil:
			res.Failed++
			log.Error("reconciling record failed", logger.F("key", key), logger.F("error", err))
			continue
		case out == outcomeCreated:
			res.Created++
		case out == outcomeUpdated:
			res.Updated++
		case out == outcomeUnchanged:
			res.Unchanged++
		case out == outcomeSkipped:
			res.Skipped++
		}
	}

	if spec.Prune == nil {
		return res, nil
	}

	locals, err := spec.Prune.List(ctx)
	if err != nil {
		return res, fmt.Errorf("listing local %s records for pruning: %w", spec.Entity, err)
	}
	for _, local := range locals {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		key := spec.Prune.Key(local)
		if _, ok := present[key]; ok {
			continue
		}
		if err := spec.Prune.Delete(ctx, local); err != nil {
			res.Failed++
			log.Error("pruning record failed", logger.F("key", key), logger.F("error", err))
			continue
		}
		res.Deleted++
		log.Debug("pruned record absent from remote", logger.F("key", key))
	}

	return res, nil
}

// reconcileOne handles a single record. A panic inside the callbacks is
// turned into an error so it stays isolated to this record.
func reconcileOne[R, L any](ctx context.Context, spec Spec[R, L], key string, rec R) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	existing, err := spec.Find(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("finding %s %s: %w", spec.Entity, key, err)
	}

	if existing == nil {
		local, err := spec.Create(ctx, rec)
		if errors.Is(err, ErrSkip) {
			logger.Warn("skipping record", logger.F("entity", spec.Entity),
				logger.F("key", key), logger.F("reason", err))
			return outcomeSkipped, nil
		}
		if err != nil {
			return 0, err
		}
		if err := spec.Save(ctx, local); err != nil {
			return 0, err
		}
		return outcomeCreated, nil
	}

	changed, err := spec.Apply(ctx, existing, rec)
	if errors.Is(err, ErrSkip) {
		logger.Warn("skipping record", logger.F("entity", spec.Entity),
			logger.F("key", key), logger.F("reason", err))
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, err
	}
	if !changed {
		return outcomeUnchanged, nil
	}
	if err := spec.Save(ctx, *existing); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}
