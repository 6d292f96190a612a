package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pg1910/clinical-rag/internal/core/domain"
	"github.com/Pg1910/clinical-rag/internal/core/ports/driven"
)

func rowsRequests(ids ...*int) []domain.CaseRequest {
	reqs := make([]domain.CaseRequest, len(ids))
	for i, id := range ids {
		reqs[i] = domain.CaseRequest{RowID: id}
	}
	return reqs
}

func okResult(req domain.CaseRequest) *domain.CaseResult {
	return &domain.CaseResult{
		RunID:   "run-" + req.Label(),
		Request: req,
		Quality: domain.QualityGateResult{Score: 72, Passed: true},
	}
}

func TestBatchService_IsolatesFailures(t *testing.T) {
	cases := &mockCaseService{run: func(req domain.CaseRequest) (*domain.CaseResult, error) {
		switch {
		case req.RowID == nil:
			return okResult(req), nil
		case *req.RowID == 3:
			return nil, &domain.InferenceError{Attempts: 3, Err: domain.ErrInferenceTimeout}
		case *req.RowID == 5:
			panic("index out of range")
		default:
			return okResult(req), nil
		}
	}}
	runs := &mockRunStore{}
	svc := NewBatchService(cases, runs, domain.BatchSettings{Workers: 3})
	corpus := &driven.Corpus{Generation: "gen-1"}

	batch, err := svc.Run(context.Background(), corpus,
		rowsRequests(intPtr(9), nil, intPtr(3), intPtr(1), intPtr(5)))

	require.NoError(t, err)
	assert.NotEmpty(t, batch.BatchID)
	require.Len(t, batch.Completed, 3)
	assert.Nil(t, batch.Completed[0].Request.RowID)
	assert.Equal(t, 1, *batch.Completed[1].Request.RowID)
	assert.Equal(t, 9, *batch.Completed[2].Request.RowID)

	require.Len(t, batch.Failed, 2)
	assert.Equal(t, 3, *batch.Failed[0].Request.RowID)
	assert.Contains(t, batch.Failed[0].Error, "inference failed after 3 attempt(s)")
	assert.Equal(t, 5, *batch.Failed[1].Request.RowID)
	assert.Equal(t, "case panicked: index out of range", batch.Failed[1].Error)
	assert.False(t, batch.FinishedAt.Before(batch.StartedAt))

	require.Len(t, runs.runs, 5)
	statuses := map[string]domain.RunStatus{}
	for _, run := range runs.runs {
		assert.Equal(t, batch.BatchID, run.BatchID)
		assert.Equal(t, "gen-1", run.Generation)
		statuses[domain.CaseRequest{RowID: run.RowID}.Label()] = run.Status
		if run.Status == domain.RunCompleted {
			assert.Equal(t, 72, run.Score)
			assert.True(t, run.Passed)
			assert.Equal(t, "run-"+domain.CaseRequest{RowID: run.RowID}.Label(), run.RunID)
		}
	}
	assert.Equal(t, map[string]domain.RunStatus{
		"corpus": domain.RunCompleted,
		"row 1":  domain.RunCompleted,
		"row 3":  domain.RunFailed,
		"row 5":  domain.RunFailed,
		"row 9":  domain.RunCompleted,
	}, statuses)
}

func TestBatchService_RunStoreErrorsDoNotFailCases(t *testing.T) {
	cases := &mockCaseService{run: func(req domain.CaseRequest) (*domain.CaseResult, error) {
		return okResult(req), nil
	}}
	svc := NewBatchService(cases, &mockRunStore{err: errors.New("database is locked")}, domain.BatchSettings{Workers: 2})

	batch, err := svc.Run(context.Background(), &driven.Corpus{}, rowsRequests(intPtr(0), intPtr(1)))

	require.NoError(t, err)
	assert.Len(t, batch.Completed, 2)
	assert.Empty(t, batch.Failed)
}

func TestBatchService_ManyCasesFewWorkers(t *testing.T) {
	var inFlight, peak atomic.Int32
	cases := &mockCaseService{run: func(req domain.CaseRequest) (*domain.CaseResult, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if *req.RowID%4 == 0 {
			return nil, fmt.Errorf("row %d: %w", *req.RowID, domain.ErrSchemaValidation)
		}
		return okResult(req), nil
	}}
	svc := NewBatchService(cases, nil, domain.BatchSettings{Workers: 2})

	ids := make([]*int, 0, 20)
	for i := 19; i >= 0; i-- {
		ids = append(ids, intPtr(i))
	}
	batch, err := svc.Run(context.Background(), &driven.Corpus{}, rowsRequests(ids...))

	require.NoError(t, err)
	assert.Len(t, batch.Completed, 15)
	assert.Len(t, batch.Failed, 5)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	for i := 1; i < len(batch.Completed); i++ {
		assert.Less(t, *batch.Completed[i-1].Request.RowID, *batch.Completed[i].Request.RowID)
	}
}

func TestBatchService_Cancelled(t *testing.T) {
	var calls atomic.Int32
	cases := &mockCaseService{run: func(req domain.CaseRequest) (*domain.CaseResult, error) {
		calls.Add(1)
		return okResult(req), nil
	}}
	svc := NewBatchService(cases, nil, domain.BatchSettings{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := svc.Run(ctx, &driven.Corpus{}, rowsRequests(intPtr(1), intPtr(2), intPtr(3)))

	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, batch)
	assert.Empty(t, batch.Completed)
	assert.Equal(t, int32(0), calls.Load())

	// Every request is accounted for, dispatched or not.
	require.Len(t, batch.Failed, 3)
	for i, f := range batch.Failed {
		assert.Equal(t, i+1, *f.Request.RowID)
		assert.Equal(t, context.Canceled.Error(), f.Error)
	}
}

func TestBatchService_CancelMidBatchAccountsForEveryRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cases := &mockCaseService{run: func(req domain.CaseRequest) (*domain.CaseResult, error) {
		cancel()
		return okResult(req), nil
	}}
	runs := &mockRunStore{}
	svc := NewBatchService(cases, runs, domain.BatchSettings{Workers: 1})

	batch, err := svc.Run(ctx, &driven.Corpus{}, rowsRequests(intPtr(1), intPtr(2), intPtr(3), intPtr(4), intPtr(5)))

	assert.True(t, errors.Is(err, context.Canceled))
	require.Len(t, batch.Completed, 1)
	assert.Equal(t, 1, *batch.Completed[0].Request.RowID)
	require.Len(t, batch.Failed, 4)
	for i, f := range batch.Failed {
		assert.Equal(t, i+2, *f.Request.RowID)
		assert.Equal(t, context.Canceled.Error(), f.Error)
	}
	assert.Len(t, runs.runs, 5)
}

func TestBatchService_EmptyBatch(t *testing.T) {
	svc := NewBatchService(&mockCaseService{}, nil, domain.BatchSettings{Workers: 4})

	batch, err := svc.Run(context.Background(), &driven.Corpus{}, nil)

	require.NoError(t, err)
	assert.Empty(t, batch.Completed)
	assert.Empty(t, batch.Failed)
}

func TestRowLess(t *testing.T) {
	assert.True(t, rowLess(nil, intPtr(0)))
	assert.False(t, rowLess(intPtr(0), nil))
	assert.False(t, rowLess(nil, nil))
	assert.True(t, rowLess(intPtr(1), intPtr(2)))
	assert.False(t, rowLess(intPtr(2), intPtr(2)))
}
