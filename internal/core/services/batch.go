package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driving"
	"github.com/Pg1910/clinical-rag/internal/logger"
	"github.com/Pg1910/clinical-rag/internal/telemetry"
)

// Ensure BatchService implements the interface.
var _ driving.BatchService = (*BatchService)(nil)

// BatchService runs cases on a fixed worker pool over one shared,
// read-only corpus. A failing case is recorded and the batch continues.
type BatchService struct {
	cases   driving.CaseService
	runs    driven.RunStore
	workers int
	now     func() time.Time
}

// NewBatchService creates a new batch service.
// The runs parameter is optional (can be nil); run summaries are then not persisted.
func NewBatchService(cases driving.CaseService, runs driven.RunStore, settings domain.BatchSettings) *BatchService {
	workers := settings.Workers
	if workers <= 0 {
		workers = domain.DefaultAppSettings().Batch.Workers
	}
	return &BatchService{
		cases:   cases,
		runs:    runs,
		workers: workers,
		now:     time.Now,
	}
}

// caseOutcome is what a worker reports for one request.
type caseOutcome struct {
	req    domain.CaseRequest
	result *domain.CaseResult
	err    error
}

// Run processes every request. Per-case errors never fail the batch; only
// a cancelled context does. Results are ordered by row id.
func (s *BatchService) Run(ctx context.Context, corpus *driven.Corpus, reqs []domain.CaseRequest) (*domain.BatchResult, error) {
	logger.Section("Batch")

	batch := &domain.BatchResult{
		BatchID:   uuid.NewString(),
		Completed: []*domain.CaseResult{},
		Failed:    []domain.CaseFailure{},
		StartedAt: s.now().UTC(),
	}

	ctx, span := telemetry.StartSpan(ctx, "batch.run",
		attribute.String("batch.id", batch.BatchID),
		attribute.Int("batch.cases", len(reqs)),
		attribute.Int("batch.workers", s.workers),
	)
	defer span.End()

	jobs := make(chan domain.CaseRequest)
	outcomes := make(chan caseOutcome)

	var wg sync.WaitGroup
	for range min(s.workers, max(len(reqs), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				outcomes <- s.runOne(ctx, corpus, batch.BatchID, req)
			}
		}()
	}

	// dispatched is written before jobs closes and read after outcomes closes.
	dispatched := 0
	go func() {
		defer close(jobs)
		for _, req := range reqs {
			select {
			case jobs <- req:
				dispatched++
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for out := range outcomes {
		if out.err != nil {
			logger.Warn("%s failed: %v", out.req.Label(), out.err)
			batch.Failed = append(batch.Failed, domain.CaseFailure{Request: out.req, Error: out.err.Error()})
			continue
		}
		batch.Completed = append(batch.Completed, out.result)
	}

	// Requests never handed to a worker fail with the cancellation cause.
	for _, req := range reqs[dispatched:] {
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		s.record(ctx, corpus, batch.BatchID, s.now().UTC(), caseOutcome{req: req, err: err})
		batch.Failed = append(batch.Failed, domain.CaseFailure{Request: req, Error: err.Error()})
	}

	sort.SliceStable(batch.Completed, func(i, j int) bool {
		return rowLess(batch.Completed[i].Request.RowID, batch.Completed[j].Request.RowID)
	})
	sort.SliceStable(batch.Failed, func(i, j int) bool {
		return rowLess(batch.Failed[i].Request.RowID, batch.Failed[j].Request.RowID)
	})
	batch.FinishedAt = s.now().UTC()

	logger.Info("batch %s: %d completed, %d failed", batch.BatchID, len(batch.Completed), len(batch.Failed))

	if err := ctx.Err(); err != nil {
		return batch, err
	}
	return batch, nil
}

// runOne runs a case and persists its summary. A panic in the case is
// converted into a failure so other cases keep running.
func (s *BatchService) runOne(ctx context.Context, corpus *driven.Corpus, batchID string, req domain.CaseRequest) (out caseOutcome) {
	out.req = req
	started := s.now().UTC()

	defer func() {
		if r := recover(); r != nil {
			out.result = nil
			out.err = errors.New("case panicked: " + panicMessage(r))
		}
		s.record(ctx, corpus, batchID, started, out)
	}()

	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}
	out.result, out.err = s.cases.Run(ctx, corpus, req)
	return out
}

// record saves the run summary. Store failures are logged, not returned.
func (s *BatchService) record(ctx context.Context, corpus *driven.Corpus, batchID string, started time.Time, out caseOutcome) {
	if s.runs == nil {
		return
	}

	run := domain.RunRecord{
		RunID:      uuid.NewString(),
		BatchID:    batchID,
		RowID:      out.req.RowID,
		Status:     domain.RunCompleted,
		StartedAt:  started,
		FinishedAt: s.now().UTC(),
	}
	if corpus != nil {
		run.Generation = corpus.Generation
	}
	if out.err != nil {
		run.Status = domain.RunFailed
		run.Error = out.err.Error()
	} else {
		run.RunID = out.result.RunID
		run.Score = out.result.Quality.Score
		run.Passed = out.result.Quality.Passed
	}

	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("saving run %s: %v", run.RunID, err)
	}
}

// rowLess orders requests by row id with corpus-wide requests first.
func rowLess(a, b *int) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "unknown panic"
}
