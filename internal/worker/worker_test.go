package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/jobledger/internal/backend"
	"github.com/cuongbtq/jobledger/internal/domain"
	"github.com/cuongbtq/jobledger/internal/ledger"
	"github.com/cuongbtq/jobledger/internal/storage"
	"github.com/cuongbtq/jobledger/internal/storage/storagetest"
	"github.com/cuongbtq/jobledger/internal/worker"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userID = "user-1"

type env struct {
	db     *sqlx.DB
	store  *storage.Storage
	ledger *ledger.Ledger
}

func newEnv(t *testing.T, credits int64) *env {
	t.Helper()
	db := storagetest.NewDB(t)
	storagetest.SeedUser(t, db, userID, credits)
	logger := storagetest.Logger()
	return &env{
		db:     db,
		store:  storage.NewStorage(db, logger),
		ledger: ledger.New(db, logger),
	}
}

// createJob inserts a pending job and, when cost > 0, its creation-time charge
func (e *env) createJob(t *testing.T, jobType domain.JobType, payload string, cost int64) *domain.Job {
	t.Helper()
	ctx := context.Background()
	now := e.store.Now()
	job := &domain.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       jobType,
		Status:     domain.JobStatusPending,
		Payload:    payload,
		MaxRetries: domain.DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	require.NoError(t, storage.WithTx(ctx, e.db, func(tx *sqlx.Tx) error {
		if err := e.store.CreateJob(ctx, tx, job); err != nil {
			return err
		}
		if cost == 0 {
			return nil
		}
		_, err := e.ledger.Debit(ctx, tx, ledger.Entry{UserID: userID, JobID: job.ID, Amount: cost, Reason: domain.ReasonJobCharge})
		return err
	}))
	return job
}

func (e *env) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := e.store.GetJobByID(context.Background(), nil, id)
	require.NoError(t, err)
	return job
}

func (e *env) balance(t *testing.T) int64 {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func (e *env) transactions(t *testing.T, jobID string, txType domain.TransactionType) []domain.CreditTransaction {
	t.Helper()
	all, err := e.ledger.JobTransactions(context.Background(), jobID)
	require.NoError(t, err)
	var out []domain.CreditTransaction
	for _, tx := range all {
		if tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

func allHandlers(h worker.Handler) worker.Handlers {
	return worker.Handlers{Analyze: h, GenerateResume: h, GeneratePDF: h}
}

func (e *env) newWorker(t *testing.T, handlers worker.Handlers, mutate func(cfg *worker.Config)) *worker.Worker {
	t.Helper()
	cfg := &worker.Config{
		Logger:            storagetest.Logger(),
		Storage:           e.store,
		Ledger:            e.ledger,
		Handlers:          handlers,
		Pricing:           domain.DefaultPricing(),
		HeartbeatInterval: time.Hour,
		WorkerID:          "test-worker",
	}
	if mutate != nil {
		mutate(cfg)
	}
	w, err := worker.NewWorker(cfg)
	require.NoError(t, err)
	return w
}

const textPayload = `{"resume_text":"r","job_description":"d"}`

func succeed(result string) worker.HandlerFunc {
	return func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}
}

func failWith(err error) worker.HandlerFunc {
	return func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		return nil, err
	}
}

func TestProcess_Success(t *testing.T) {
	e := newEnv(t, 0)
	job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	w := e.newWorker(t, allHandlers(succeed(`{"score":90}`)), nil)

	require.NoError(t, w.Process(context.Background(), job.ID))

	got := e.job(t, job.ID)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.JSONEq(t, `{"score":90}`, *got.Result)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Error)
}

func TestProcess_RetriesExhaustedRefundsOnce(t *testing.T) {
	e := newEnv(t, 1)
	job := e.createJob(t, domain.JobTypeGenerateResume, textPayload, 1)
	require.Equal(t, int64(0), e.balance(t))

	upstream := domain.NewRetryableError(&backend.UpstreamError{Service: "generation backend", StatusCode: 503, Message: "overloaded"})
	var calls atomic.Int32
	w := e.newWorker(t, allHandlers(worker.HandlerFunc(func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		calls.Add(1)
		return nil, upstream
	})), nil)

	ctx := context.Background()
	for attempt := 1; attempt <= 2; attempt++ {
		err := w.Process(ctx, job.ID)
		var retryable *domain.RetryableError
		require.ErrorAs(t, err, &retryable, "attempt %d", attempt)

		got := e.job(t, job.ID)
		assert.Equal(t, domain.JobStatusPending, got.Status)
		assert.Equal(t, attempt, got.Retries)
		assert.Empty(t, e.transactions(t, job.ID, domain.TransactionRefund))
	}

	require.NoError(t, w.Process(ctx, job.ID))

	got := e.job(t, job.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.Retries)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "overloaded")

	refunds := e.transactions(t, job.ID, domain.TransactionRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.ReasonJobFailureExhausted, refunds[0].Reason)
	assert.Equal(t, int64(1), refunds[0].Amount)
	assert.Equal(t, int64(1), e.balance(t))

	// Redelivery of a terminal job changes nothing
	require.NoError(t, w.Process(ctx, job.ID))
	require.NoError(t, w.Process(ctx, job.ID))
	w.HandleExhausted(ctx, job.ID, errors.New("exhausted"))

	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, e.transactions(t, job.ID, domain.TransactionRefund), 1)
	assert.Equal(t, int64(1), e.balance(t))
	assert.Equal(t, domain.JobStatusFailed, e.job(t, job.ID).Status)

	audit, err := e.ledger.Audit(ctx, userID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent())
}

func TestProcess_FatalFailsImmediately(t *testing.T) {
	e := newEnv(t, 2)
	job := e.createJob(t, domain.JobTypeGeneratePDF, `{"resume":{}}`, 2)
	w := e.newWorker(t, allHandlers(failWith(domain.NewFatalError(errors.New("malformed resume")))), nil)

	require.NoError(t, w.Process(context.Background(), job.ID))

	got := e.job(t, job.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.Retries)

	refunds := e.transactions(t, job.ID, domain.TransactionRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.ReasonJobFailureFatal, refunds[0].Reason)
	assert.Equal(t, int64(2), refunds[0].Amount)
	assert.Equal(t, int64(2), e.balance(t))
}

func TestProcess_FreeJobFailureHasNoRefund(t *testing.T) {
	e := newEnv(t, 0)
	job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	w := e.newWorker(t, allHandlers(failWith(domain.NewFatalError(errors.New("bad input")))), nil)

	require.NoError(t, w.Process(context.Background(), job.ID))

	assert.Equal(t, domain.JobStatusFailed, e.job(t, job.ID).Status)
	assert.Empty(t, e.transactions(t, job.ID, domain.TransactionRefund))
}

func TestProcess_UnclassifiedErrorIsRetryable(t *testing.T) {
	e := newEnv(t, 0)
	job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	w := e.newWorker(t, allHandlers(failWith(errors.New("connection reset"))), nil)

	err := w.Process(context.Background(), job.ID)
	var retryable *domain.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, domain.JobStatusPending, e.job(t, job.ID).Status)
}

func TestProcess_OnSuccessBilling(t *testing.T) {
	pricing := domain.Pricing{
		domain.JobTypeAnalyze:        {Cost: 2, Mode: domain.BillingOnSuccess},
		domain.JobTypeGenerateResume: {Mode: domain.BillingFree},
		domain.JobTypeGeneratePDF:    {Mode: domain.BillingFree},
	}

	tests := []struct {
		name        string
		credits     int64
		wantStatus  domain.JobStatus
		wantBalance int64
		wantDebits  int
	}{
		{name: "charged on completion", credits: 3, wantStatus: domain.JobStatusCompleted, wantBalance: 1, wantDebits: 1},
		{name: "insufficient at completion", credits: 1, wantStatus: domain.JobStatusFailed, wantBalance: 1, wantDebits: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.credits)
			job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
			w := e.newWorker(t, allHandlers(succeed(`{"ok":true}`)), func(cfg *worker.Config) {
				cfg.Pricing = pricing
			})

			require.NoError(t, w.Process(context.Background(), job.ID))

			got := e.job(t, job.ID)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantBalance, e.balance(t))
			assert.Len(t, e.transactions(t, job.ID, domain.TransactionDeduction), tt.wantDebits)
			assert.Empty(t, e.transactions(t, job.ID, domain.TransactionRefund))
		})
	}
}

func TestProcess_TimeoutIsRetryable(t *testing.T) {
	e := newEnv(t, 0)
	job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	w := e.newWorker(t, allHandlers(worker.HandlerFunc(func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})), func(cfg *worker.Config) {
		cfg.Timeouts = map[domain.JobType]time.Duration{domain.JobTypeAnalyze: 20 * time.Millisecond}
	})

	err := w.Process(context.Background(), job.ID)
	var retryable *domain.RetryableError
	require.ErrorAs(t, err, &retryable)

	got := e.job(t, job.ID)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Retries)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "timed out")
}

func TestProcess_PanicIsFatal(t *testing.T) {
	e := newEnv(t, 1)
	job := e.createJob(t, domain.JobTypeGeneratePDF, `{"resume":{}}`, 1)
	w := e.newWorker(t, allHandlers(worker.HandlerFunc(func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		panic("nil renderer")
	})), nil)

	require.NoError(t, w.Process(context.Background(), job.ID))
	assert.Equal(t, domain.JobStatusFailed, e.job(t, job.ID).Status)
	assert.Equal(t, int64(1), e.balance(t))
}

func TestProcess_DuplicateDeliverySkipped(t *testing.T) {
	e := newEnv(t, 0)
	job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)

	_, err := e.store.ClaimJob(context.Background(), e.db, job.ID)
	require.NoError(t, err)

	var calls atomic.Int32
	w := e.newWorker(t, allHandlers(worker.HandlerFunc(func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		calls.Add(1)
		return nil, nil
	})), nil)

	require.NoError(t, w.Process(context.Background(), job.ID))
	require.NoError(t, w.Process(context.Background(), "unknown-job"))
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, domain.JobStatusProcessing, e.job(t, job.ID).Status)
}

func TestProcess_Heartbeat(t *testing.T) {
	e := newEnv(t, 0)
	job := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)

	var observed *domain.Job
	w := e.newWorker(t, allHandlers(worker.HandlerFunc(func(ctx context.Context, j *domain.Job) (json.RawMessage, error) {
		time.Sleep(80 * time.Millisecond)
		observed = e.job(t, j.ID)
		return nil, nil
	})), func(cfg *worker.Config) {
		cfg.HeartbeatInterval = 10 * time.Millisecond
	})

	require.NoError(t, w.Process(context.Background(), job.ID))
	require.NotNil(t, observed)
	require.NotNil(t, observed.StartedAt)
	require.NotNil(t, observed.LastHeartbeatAt)
	assert.True(t, observed.LastHeartbeatAt.After(*observed.StartedAt))

	got := e.job(t, job.ID)
	require.NotNil(t, got.Result)
	assert.JSONEq(t, `{}`, *got.Result)
}

func TestHandleExhausted_PendingJob(t *testing.T) {
	e := newEnv(t, 1)
	job := e.createJob(t, domain.JobTypeGeneratePDF, `{"resume":{}}`, 1)
	w := e.newWorker(t, allHandlers(succeed(`{}`)), nil)

	ctx := context.Background()
	w.HandleExhausted(ctx, job.ID, errors.New("max retry reached"))
	w.HandleExhausted(ctx, job.ID, errors.New("max retry reached"))

	got := e.job(t, job.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "max retry reached", *got.Error)

	refunds := e.transactions(t, job.ID, domain.TransactionRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.ReasonJobFailureExhausted, refunds[0].Reason)
	assert.Equal(t, int64(1), e.balance(t))
}

func TestHandleExhausted_ProcessingJobUntouched(t *testing.T) {
	e := newEnv(t, 1)
	job := e.createJob(t, domain.JobTypeGeneratePDF, `{"resume":{}}`, 1)
	_, err := e.store.ClaimJob(context.Background(), e.db, job.ID)
	require.NoError(t, err)

	w := e.newWorker(t, allHandlers(succeed(`{}`)), nil)
	w.HandleExhausted(context.Background(), job.ID, errors.New("exhausted"))
	w.HandleExhausted(context.Background(), "missing", errors.New("exhausted"))

	assert.Equal(t, domain.JobStatusProcessing, e.job(t, job.ID).Status)
	assert.Equal(t, int64(0), e.balance(t))
}

func TestNewWorker_RequiresEveryHandler(t *testing.T) {
	e := newEnv(t, 0)
	_, err := worker.NewWorker(&worker.Config{
		Logger:   storagetest.Logger(),
		Storage:  e.store,
		Ledger:   e.ledger,
		Handlers: worker.Handlers{Analyze: succeed(`{}`)},
	})
	assert.ErrorIs(t, err, domain.ErrNoHandler)
}

func TestHandlers_For(t *testing.T) {
	analyze := succeed(`{"a":1}`)
	pdf := succeed(`{"p":1}`)
	h := worker.Handlers{Analyze: analyze, GeneratePDF: pdf}

	got, err := h.For(domain.JobTypeAnalyze)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = h.For(domain.JobTypeGenerateResume)
	assert.ErrorIs(t, err, domain.ErrNoHandler)

	_, err = h.For(domain.JobType("translate"))
	assert.ErrorIs(t, err, domain.ErrNoHandler)
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	return nil
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *fakeQueue) Close() error { return nil }

// backdate moves a job's updated_at, and its heartbeat when it has one, d into the past
func (e *env) backdate(t *testing.T, id string, d time.Duration) {
	t.Helper()
	past := e.store.Now().Add(-d)
	_, err := e.db.Exec(e.db.Rebind(`UPDATE jobs SET updated_at = ? WHERE id = ?`), past, id)
	require.NoError(t, err)
	_, err = e.db.Exec(e.db.Rebind(`UPDATE jobs SET last_heartbeat_at = ? WHERE id = ? AND last_heartbeat_at IS NOT NULL`), past, id)
	require.NoError(t, err)
}

var reclaimCfg = worker.ReclaimerConfig{
	RequeueAfter: 10 * time.Minute,
	Interval:     10 * time.Millisecond,
}

func TestReclaimer_ResetsStuckJobsOnce(t *testing.T) {
	e := newEnv(t, 1)
	stuck := e.createJob(t, domain.JobTypeGeneratePDF, `{"resume":{}}`, 1)
	done := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)

	ctx := context.Background()
	for _, id := range []string{stuck.ID, done.ID} {
		_, err := e.store.ClaimJob(ctx, e.db, id)
		require.NoError(t, err)
	}
	_, err := e.store.CompleteJob(ctx, e.db, done.ID, `{}`)
	require.NoError(t, err)

	q := &fakeQueue{}
	r := worker.NewReclaimer(e.store, q, reclaimCfg, storagetest.Logger())

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reset)
	assert.Equal(t, 1, result.Requeued)
	assert.Equal(t, []string{stuck.ID}, q.ids)
	assert.Equal(t, domain.JobStatusPending, e.job(t, stuck.ID).Status)
	assert.Equal(t, domain.JobStatusCompleted, e.job(t, done.ID).Status)

	result, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reset)
	assert.Equal(t, 0, result.Requeued)

	// The reclaimed job is processed to a terminal state
	w := e.newWorker(t, allHandlers(succeed(`{"ok":true}`)), nil)
	require.NoError(t, w.Process(ctx, stuck.ID))
	assert.Equal(t, domain.JobStatusCompleted, e.job(t, stuck.ID).Status)
	assert.Equal(t, int64(0), e.balance(t))
}

func TestReclaimer_RequeuesOnlyIdlePendingJobs(t *testing.T) {
	e := newEnv(t, 0)
	idle := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	waiting := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	e.backdate(t, idle.ID, time.Hour)

	// waiting was just sent back to pending by a retryable failure and
	// still has a delayed redelivery in flight
	ctx := context.Background()
	_, err := e.store.ClaimJob(ctx, e.db, waiting.ID)
	require.NoError(t, err)
	_, err = e.store.RequeueJob(ctx, e.db, waiting.ID, 1, "503")
	require.NoError(t, err)

	q := &fakeQueue{}
	r := worker.NewReclaimer(e.store, q, reclaimCfg, storagetest.Logger())

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Reset)
	assert.Equal(t, 1, result.Requeued)
	assert.Equal(t, []string{idle.ID}, q.ids)

	// republished jobs wait another RequeueAfter before the next attempt
	result, err = r.RequeueIdle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Requeued)
	assert.Len(t, q.ids, 1)
}

func TestReclaimer_EnqueueFailureIsCounted(t *testing.T) {
	e := newEnv(t, 0)
	idle := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	e.backdate(t, idle.ID, time.Hour)

	q := &fakeQueue{err: errors.New("broker unavailable")}
	r := worker.NewReclaimer(e.store, q, reclaimCfg, storagetest.Logger())

	result, err := r.RequeueIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Requeued)

	// nothing was published, so the job stays idle for the next sweep
	q.err = nil
	result, err = r.RequeueIdle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Requeued)
}

func TestReclaimer_LoopNeverResets(t *testing.T) {
	e := newEnv(t, 0)
	idle := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	running := e.createJob(t, domain.JobTypeAnalyze, textPayload, 0)
	e.backdate(t, idle.ID, time.Hour)

	_, err := e.store.ClaimJob(context.Background(), e.db, running.ID)
	require.NoError(t, err)
	e.backdate(t, running.ID, time.Hour)

	q := &fakeQueue{}
	r := worker.NewReclaimer(e.store, q, reclaimCfg, storagetest.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Loop(ctx) }()

	assert.Eventually(t, func() bool { return q.len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reclaimer did not stop")
	}

	assert.Equal(t, domain.JobStatusProcessing, e.job(t, running.ID).Status)
	assert.Equal(t, []string{idle.ID}, q.ids)
}

// resetWhileRunning returns a handler that has the job reset to pending,
// as a reclaimer in another process would, before returning err
func (e *env) resetWhileRunning(t *testing.T, result string, err error) worker.HandlerFunc {
	return func(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
		ok, resetErr := e.store.ResetJob(ctx, e.db, job.ID)
		require.NoError(t, resetErr)
		require.True(t, ok)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(result), nil
	}
}

func TestProcess_ResetWhileRunning(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus domain.JobStatus
		wantErr    bool
		wantRefund bool
	}{
		{name: "success is kept", wantStatus: domain.JobStatusCompleted},
		{name: "fatal failure is recorded", err: domain.NewFatalError(errors.New("422")), wantStatus: domain.JobStatusFailed, wantRefund: true},
		{name: "retryable failure is redelivered", err: domain.NewRetryableError(errors.New("503")), wantStatus: domain.JobStatusPending, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, 1)
			job := e.createJob(t, domain.JobTypeGenerateResume, textPayload, 1)
			w := e.newWorker(t, allHandlers(e.resetWhileRunning(t, `{"resume":{}}`, tt.err)), nil)

			err := w.Process(context.Background(), job.ID)
			if tt.wantErr {
				var retryable *domain.RetryableError
				assert.ErrorAs(t, err, &retryable)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.wantStatus, e.job(t, job.ID).Status)
			if tt.wantRefund {
				assert.Len(t, e.transactions(t, job.ID, domain.TransactionRefund), 1)
				assert.Equal(t, int64(1), e.balance(t))
			} else {
				assert.Empty(t, e.transactions(t, job.ID, domain.TransactionRefund))
				assert.Equal(t, int64(0), e.balance(t))
			}
		})
	}
}
