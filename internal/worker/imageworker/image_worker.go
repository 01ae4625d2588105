// Package imageworker implements C7, the hot path: draining image-batch
// jobs, downloading each image, captioning/embedding it, and writing the
// completed row atomically. Grounded on the teacher's
// infrastructure/worker/face_worker.go — same CircuitBreaker type, same
// bounded-concurrency batch-of-N processing loop — generalized from face
// detection to caption/embed, and from DB polling to draining the Queue.
package imageworker

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/caption"
	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/logger"
)

const (
	lease        = 2 * time.Minute
	pollInterval = 1 * time.Second
)

// CircuitBreaker prevents cascading failures against the captioning
// backend, grounded directly on the teacher's face_worker.go CircuitBreaker.
type CircuitBreaker struct {
	failures     int32
	threshold    int32
	resetTimeout time.Duration
	lastFailure  time.Time
	mu           sync.RWMutex
}

func NewCircuitBreaker(threshold int32, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, resetTimeout: resetTimeout}
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	if atomic.LoadInt32(&cb.failures) >= cb.threshold {
		return time.Since(cb.lastFailure) <= cb.resetTimeout
	}
	return false
}

func (cb *CircuitBreaker) RecordSuccess() {
	atomic.StoreInt32(&cb.failures, 0)
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	atomic.AddInt32(&cb.failures, 1)
	cb.lastFailure = time.Now()
}

// Result is processOne's per-image outcome (spec §4.7: a single image's
// failure must never fail the batch).
type Result struct {
	ImageID  uuid.UUID
	Success  bool
	FatalQuota bool
	Err      error
}

// Broadcaster pushes a live-progress event to subscribed clients (spec
// §4.12). Declared here instead of depending on the websocket package
// directly, so the worker stays usable without an HTTP layer in tests.
type Broadcaster interface {
	Broadcast(room, event string, payload interface{})
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, string, interface{}) {}

// Worker drains the images queue (batch jobs), running each batch's members
// concurrently via processOne.
type Worker struct {
	q       *queue.Queue
	store   store.Store
	drive   *drive.Adapter
	caption *caption.Adapter
	breaker *CircuitBreaker
	hub     Broadcaster

	concurrency int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func New(q *queue.Queue, st store.Store, driveAdapter *drive.Adapter, captionAdapter *caption.Adapter, concurrency int, hub Broadcaster) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &Worker{
		q:           q,
		store:       st,
		drive:       driveAdapter,
		caption:     captionAdapter,
		breaker:     NewCircuitBreaker(10, 60*time.Second),
		hub:         hub,
		concurrency: concurrency,
	}
}

func (w *Worker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()
	logger.ImageWorker("start", "image worker started", map[string]interface{}{"concurrency": w.concurrency})
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	logger.ImageWorker("stop", "image worker stopped", nil)
}

func (w *Worker) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce()
		}
	}
}

func (w *Worker) drainOnce() {
	if w.breaker.IsOpen() {
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job, err := w.q.Dequeue(w.ctx, queue.Images, lease)
		if err != nil {
			logger.ImageWorkerError("dequeue", "failed to dequeue image batch job", err, nil)
			return
		}
		if job == nil {
			return
		}
		w.processBatchJob(job)
	}
}

func (w *Worker) processBatchJob(job *queue.Job) {
	ctx := w.ctx

	var payload struct {
		FolderID   uuid.UUID         `json:"folderId"`
		ImageIDs   []uuid.UUID       `json:"imageIds"`
		Credential *drive.Credential `json:"credential,omitempty"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		logger.ImageWorkerError("unmarshal_payload", "malformed image batch payload", err, map[string]interface{}{"jobId": job.ID})
		_ = w.q.Fail(ctx, queue.Images, job.ID, "malformed payload")
		return
	}

	results := make([]Result, len(payload.ImageIDs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, w.concurrency)
	var fatalQuota int32

	for i, imageID := range payload.ImageIDs {
		if atomic.LoadInt32(&fatalQuota) == 1 {
			results[i] = Result{ImageID: imageID, Success: false}
			_ = w.store.ResetImageToPending(ctx, store.ImageFilter{ImageID: &imageID})
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, imageID uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()

			res := w.processOne(ctx, imageID, payload.Credential)
			results[i] = res
			if res.Success {
				w.breaker.RecordSuccess()
			} else {
				w.breaker.RecordFailure()
			}
			if res.FatalQuota {
				atomic.StoreInt32(&fatalQuota, 1)
			}
		}(i, imageID)
	}
	wg.Wait()

	var processed, failed int
	for _, r := range results {
		if r.Success {
			processed++
		} else {
			failed++
		}
	}

	if err := w.recomputeFolderProgress(ctx, payload.FolderID); err != nil {
		logger.ImageWorkerError("recompute_progress", "failed to recompute folder progress", err, map[string]interface{}{"folderId": payload.FolderID.String()})
	}

	fields := map[string]interface{}{"jobId": job.ID, "processed": processed, "failed": failed}
	logger.ImageWorker("batch_completed", "image batch completed", fields)
	w.hub.Broadcast(payload.FolderID.String(), "ingest:progress", fields)
	_ = w.q.Complete(ctx, queue.Images, job.ID)
}

// processOne implements spec §4.7 steps 1-6.
func (w *Worker) processOne(ctx context.Context, imageID uuid.UUID, cred *drive.Credential) Result {
	image, err := w.store.GetImage(ctx, imageID)
	if err != nil {
		return Result{ImageID: imageID, Err: err}
	}

	if !models.IsSupportedMimeType(image.MimeType) {
		_ = w.store.SetImageFailed(ctx, imageID, "unsupported mime type: "+image.MimeType)
		return Result{ImageID: imageID, Success: false}
	}

	if err := w.store.SetImageProcessing(ctx, imageID); err != nil {
		return Result{ImageID: imageID, Err: err}
	}

	data, err := w.drive.DownloadBytes(ctx, image.DriveFileID, cred)
	if err != nil {
		return w.failOne(ctx, imageID, err)
	}

	capResult, err := w.caption.Caption(ctx, data, image.MimeType)
	if err != nil {
		return w.failOne(ctx, imageID, err)
	}

	vector, err := w.caption.EmbedCaption(ctx, capResult.Caption, capResult.Tags)
	if err != nil {
		return w.failOne(ctx, imageID, err)
	}

	if err := w.store.SetImageCompleted(ctx, imageID, capResult.Caption, capResult.Tags, vector); err != nil {
		return w.failOne(ctx, imageID, err)
	}

	return Result{ImageID: imageID, Success: true}
}

// failOne records a per-row failure, or — for a PermissionDenied or
// RateLimitExhausted error from any step — signals the batch to
// short-circuit the remaining members back to pending (spec §4.7's
// fatal-to-quota carve-out). The caption adapter reports failed model
// requests as TransientUpstream, so an authentication rejection from the
// captioning backend is recorded as a per-row failure.
func (w *Worker) failOne(ctx context.Context, imageID uuid.UUID, err error) Result {
	if apperr.Is(err, apperr.PermissionDenied) || apperr.Is(err, apperr.RateLimitExhausted) {
		logger.ImageWorkerError("fatal_quota", "captioning backend rejected the batch, short-circuiting", err, map[string]interface{}{"imageId": imageID.String()})
		_ = w.store.ResetImageToPending(ctx, store.ImageFilter{ImageID: &imageID})
		return Result{ImageID: imageID, Success: false, FatalQuota: true, Err: err}
	}

	logger.ImageWorkerError("process_one_failed", "image processing failed", err, map[string]interface{}{"imageId": imageID.String()})
	_ = w.store.SetImageFailed(ctx, imageID, err.Error())
	return Result{ImageID: imageID, Success: false, Err: err}
}

func (w *Worker) recomputeFolderProgress(ctx context.Context, folderID uuid.UUID) error {
	counts, err := w.store.UpdateFolderProgress(ctx, folderID)
	if err != nil {
		return err
	}
	if counts.Total() > 0 && counts.Completed == counts.Total() {
		if err := w.store.SetFolderStatus(ctx, folderID, models.FolderStatusCompleted); err != nil {
			return err
		}
		w.hub.Broadcast(folderID.String(), "ingest:completed", map[string]interface{}{"folderId": folderID.String()})
	}
	return nil
}
