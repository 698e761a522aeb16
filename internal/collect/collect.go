// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pdiddy/census-collector/pkg/types"
)

const defaultBatchSize = 20

// Candidate is one identifier queued for collection. Entity is non-nil
// for search-derived candidates and enables fallback metadata when the
// metadata endpoint fails; directly-supplied candidates have no fallback.
type Candidate struct {
	ID     types.TableID
	Entity *types.CandidateEntity

	// Year is an explicit reference year from the caller's input,
	// overriding derived years during mapping.
	Year string
}

// RecordHandler receives the emitted record stream. Every candidate
// produces exactly one call: HandleRecord on success, HandleError on
// failure. Implementations must record durably before returning.
type RecordHandler interface {
	HandleRecord(ctx context.Context, rec *types.OutputRecord) error
	HandleError(ctx context.Context, rec *types.ErrorRecord) error
}

// Run holds the per-run deduplication state. It is owned by one
// collection invocation and never shared across runs, so concurrent runs
// cannot interfere.
type Run struct {
	seen    map[string]bool
	emitted int
}

// NewRun returns an empty run context.
func NewRun() *Run {
	return &Run{seen: make(map[string]bool)}
}

// Emitted returns the number of records pushed so far (successes + errors).
func (r *Run) Emitted() int { return r.emitted }

// Summary holds the outcome counts of one collection invocation.
type Summary struct {
	Collected int
	Failed    int
	Skipped   int
}

// Total returns the number of candidates processed.
func (s Summary) Total() int { return s.Collected + s.Failed + s.Skipped }

// Scheduler drives batched, bounded-concurrency collection.
type Scheduler struct {
	Client *Client
	Cfg    types.CollectionConfig
}

// Collect fetches metadata and data for every candidate, merges and
// normalizes them, and pushes exactly one record per unseen identifier to
// sink. Identifiers already seen in the run are skipped without a record.
// Batches are sized to the remaining item cap so a started batch always
// runs to completion and the cap is never exceeded; the fixed batch delay
// applies between batches, not between requests. A failure on one
// identifier never interrupts its siblings; only a mapping precondition
// violation or a sink failure aborts the run.
func (s *Scheduler) Collect(ctx context.Context, run *Run, candidates []Candidate, sink RecordHandler, w io.Writer) (Summary, error) {
	batchSize := s.Cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var summary Summary
	next := 0
	firstBatch := true

	for next < len(candidates) {
		size := batchSize
		if s.Cfg.MaxItems > 0 {
			remaining := s.Cfg.MaxItems - run.emitted
			if remaining <= 0 {
				break
			}
			if remaining < size {
				size = remaining
			}
		}

		// Form the next batch, skipping identifiers this run has seen.
		batch := make([]Candidate, 0, size)
		for next < len(candidates) && len(batch) < size {
			cand := candidates[next]
			next++
			key := cand.ID.String()
			if run.seen[key] {
				summary.Skipped++
				continue
			}
			run.seen[key] = true
			batch = append(batch, cand)
		}
		if len(batch) == 0 {
			continue
		}

		if !firstBatch && s.Cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(s.Cfg.BatchDelay):
			}
		}
		firstBatch = false

		results := make([]result, len(batch))
		var wg sync.WaitGroup
		for i, cand := range batch {
			wg.Add(1)
			go func(i int, cand Candidate) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errRec := &types.ErrorRecord{
							TableID:      cand.ID.String(),
							ErrorMessage: fmt.Sprintf("panic while collecting: %v", r),
							FetchedAt:    mapClock().UTC().Format(time.RFC3339),
						}
						if cand.Entity != nil {
							errRec.EntityID = cand.Entity.ID()
						}
						results[i] = result{errRec: errRec}
					}
				}()
				results[i] = s.collectOne(ctx, cand)
			}(i, cand)
		}
		wg.Wait()

		// Emit the whole batch, errors included, before the next batch
		// starts. Warnings collected by the workers are written here, on
		// this goroutine only: the writer is not a shared resource of the
		// batch workers.
		for i, res := range results {
			if res.fatal != nil {
				return summary, res.fatal
			}
			for _, warn := range res.warnings {
				fmt.Fprintln(w, warn)
			}
			if res.errRec != nil {
				fmt.Fprintf(w, "failed:    %s (%s)\n", batch[i].ID, res.errRec.ErrorMessage)
				if err := sink.HandleError(ctx, res.errRec); err != nil {
					return summary, fmt.Errorf("recording error for %s: %w", batch[i].ID, err)
				}
				run.emitted++
				summary.Failed++
				continue
			}
			fmt.Fprintf(w, "collected: %s (%s)\n", res.rec.TableID, res.rec.Title)
			if err := sink.HandleRecord(ctx, res.rec); err != nil {
				return summary, fmt.Errorf("recording %s: %w", res.rec.TableID, err)
			}
			run.emitted++
			summary.Collected++
		}
	}

	fmt.Fprintf(w, "\nCollection summary: %d collected, %d failed, %d skipped (total: %d)\n",
		summary.Collected, summary.Failed, summary.Skipped, summary.Total())
	return summary, nil
}

// result is the per-identifier outcome slot filled by a batch worker.
// Exactly one of rec and errRec is set unless fatal is set. Workers
// never touch the progress writer; warning lines are carried here and
// written during the serial emission pass.
type result struct {
	rec      *types.OutputRecord
	errRec   *types.ErrorRecord
	fatal    error
	warnings []string
}

// collectOne fetches metadata and data for one candidate concurrently,
// merges them, and maps the result through the size guard. Metadata
// failure is fatal to the identifier unless an entity fallback exists;
// data failure only leaves the payload absent.
func (s *Scheduler) collectOne(ctx context.Context, cand Candidate) result {
	id := cand.ID.String()

	var (
		wg        sync.WaitGroup
		meta      *types.TableMetadata
		metaTitle string
		metaErr   error
		data      []byte
		dataErr   error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		meta, metaTitle, metaErr = s.Client.FetchMetadata(ctx, id)
	}()

	if !s.Cfg.SkipData {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, dataErr = s.Client.FetchData(ctx, id, s.Cfg.Geography)
		}()
	}
	wg.Wait()

	merged := types.MergedTable{ID: cand.ID, Year: cand.Year}
	var res result

	if metaErr != nil {
		if cand.Entity == nil {
			res.errRec = &types.ErrorRecord{
				TableID:      id,
				ErrorMessage: fmt.Sprintf("metadata fetch failed: %v", metaErr),
				FetchedAt:    mapClock().UTC().Format(time.RFC3339),
			}
			return res
		}
		res.warnings = append(res.warnings,
			fmt.Sprintf("  warning: metadata fetch for %s failed, using search-entity fallback: %v", id, metaErr))
		merged.Meta = fallbackMetadata(cand.Entity)
		merged.Title = cand.Entity.Title
	} else {
		merged.Meta = meta
		merged.Title = metaTitle
		if merged.Title == "" && cand.Entity != nil {
			merged.Title = cand.Entity.Title
		}
	}

	if dataErr != nil {
		res.warnings = append(res.warnings,
			fmt.Sprintf("  warning: data fetch for %s failed, payload absent: %v", id, dataErr))
	} else {
		merged.Data = data
	}

	if cand.Entity != nil && merged.Vintage == "" {
		merged.Vintage = cand.Entity.Hints.Vintage
	}

	rec, err := MapRecord(&merged)
	if err != nil {
		// Missing identifier is a caller bug and aborts the run.
		res.fatal = err
		return res
	}

	admitted, errRec := Admit(rec, s.Cfg.SizeBudget)
	if errRec != nil {
		if cand.Entity != nil {
			errRec.EntityID = cand.Entity.ID()
		}
		res.errRec = errRec
		return res
	}
	res.rec = admitted
	return res
}

// fallbackMetadata reconstructs a minimal metadata object from a search
// entity's title, description, and hint bag.
func fallbackMetadata(e *types.CandidateEntity) *types.TableMetadata {
	return &types.TableMetadata{
		Title:       e.Title,
		Description: e.Description,
		Survey:      e.Hints.Program,
		Universe:    e.Hints.Universe,
		Vintage:     e.Hints.Vintage,
	}
}
