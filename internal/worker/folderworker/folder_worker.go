// Package folderworker implements C6: draining folder jobs from the Queue,
// listing pending images for a folder, and fanning them out as image-batch
// jobs. Grounded on the teacher's infrastructure/worker package (the
// Start/Stop/run lifecycle, bounded-concurrency semaphore loop) adapted from
// polling the database for SyncJob rows to draining the Queue (C5).
package folderworker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/logger"
)

const (
	lease           = 2 * time.Minute
	batchSize       = 5
	pollInterval    = 1 * time.Second
	maxConcurrency  = 5
)

// FolderJobPayload is the payload enqueued by the Ingest Coordinator (C10)
// and the Sync Engine (C8).
type FolderJobPayload struct {
	FolderID   uuid.UUID         `json:"folderId"`
	Credential *drive.Credential `json:"credential,omitempty"`
}

// ImageBatchPayload is the payload a folder job fans out into.
type ImageBatchPayload struct {
	FolderID   uuid.UUID         `json:"folderId"`
	ImageIDs   []uuid.UUID       `json:"imageIds"`
	Credential *drive.Credential `json:"credential,omitempty"`
}

// Broadcaster pushes a live-progress event to subscribed clients (spec
// §4.12). Declared here instead of depending on the websocket package
// directly, so the worker stays usable without an HTTP layer in tests.
type Broadcaster interface {
	Broadcast(room, event string, payload interface{})
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, string, interface{}) {}

// Worker drains the folders queue with bounded concurrency.
type Worker struct {
	q     *queue.Queue
	store store.Store
	hub   Broadcaster

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	running bool
}

func New(q *queue.Queue, st store.Store, hub Broadcaster) *Worker {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &Worker{q: q, store: st, hub: hub}
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

	sem := make(chan struct{}, maxConcurrency)
	w.wg.Add(1)
	go w.run(sem)

	logger.FolderWorker("start", "folder worker started", nil)
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
	logger.FolderWorker("stop", "folder worker stopped", nil)
}

func (w *Worker) run(sem chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(sem)
		}
	}
}

func (w *Worker) drainOnce(sem chan struct{}) {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job, err := w.q.Dequeue(w.ctx, queue.Folders, lease)
		if err != nil {
			logger.FolderWorkerError("dequeue", "failed to dequeue folder job", err, nil)
			return
		}
		if job == nil {
			return
		}

		sem <- struct{}{}
		w.wg.Add(1)
		go func(j *queue.Job) {
			defer w.wg.Done()
			defer func() { <-sem }()
			w.processJob(j)
		}(job)
	}
}

// processJob implements spec §4.6 steps 1-5.
func (w *Worker) processJob(job *queue.Job) {
	ctx := w.ctx

	var payload FolderJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		logger.FolderWorkerError("unmarshal_payload", "malformed folder job payload", err, map[string]interface{}{"jobId": job.ID})
		_ = w.q.Fail(ctx, queue.Folders, job.ID, "malformed payload")
		return
	}

	logFields := map[string]interface{}{"folderId": payload.FolderID.String(), "jobId": job.ID}
	logger.FolderWorker("job_started", "folder job started", logFields)
	w.hub.Broadcast(payload.FolderID.String(), "ingest:started", logFields)

	if err := w.store.SetFolderStatus(ctx, payload.FolderID, models.FolderStatusProcessing); err != nil {
		w.fail(job, payload.FolderID, err, "failed to mark folder processing")
		return
	}

	pending, err := w.store.ListPendingImages(ctx, payload.FolderID, 0)
	if err != nil {
		w.fail(job, payload.FolderID, err, "failed to list pending images")
		return
	}

	if len(pending) == 0 {
		if err := w.recomputeAndMaybeComplete(ctx, payload.FolderID); err != nil {
			logger.FolderWorkerError("recompute_progress", "failed to recompute folder progress", err, logFields)
		}
		_ = w.q.Complete(ctx, queue.Folders, job.ID)
		return
	}

	now := time.Now().UnixMilli()
	batchIndex := 0
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		ids := make([]uuid.UUID, 0, end-start)
		for _, img := range pending[start:end] {
			ids = append(ids, img.ID)
		}

		batchJobID := fmt.Sprintf("batch:%s:%d:%d", payload.FolderID, now, batchIndex)
		batchPayload := ImageBatchPayload{
			FolderID:   payload.FolderID,
			ImageIDs:   ids,
			Credential: payload.Credential,
		}
		if err := w.q.Enqueue(ctx, queue.Images, batchJobID, batchPayload); err != nil {
			w.fail(job, payload.FolderID, err, "failed to enqueue image batch")
			return
		}
		batchIndex++
	}

	if err := w.recomputeAndMaybeComplete(ctx, payload.FolderID); err != nil {
		logger.FolderWorkerError("recompute_progress", "failed to recompute folder progress", err, logFields)
	}

	completedFields := map[string]interface{}{
		"folderId": payload.FolderID.String(), "jobId": job.ID, "batches": batchIndex,
	}
	logger.FolderWorker("job_completed", "folder job completed, batches enqueued", completedFields)
	w.hub.Broadcast(payload.FolderID.String(), "images:added", completedFields)
	_ = w.q.Complete(ctx, queue.Folders, job.ID)
}

func (w *Worker) recomputeAndMaybeComplete(ctx context.Context, folderID uuid.UUID) error {
	counts, err := w.store.UpdateFolderProgress(ctx, folderID)
	if err != nil {
		return err
	}
	if counts.Total() > 0 && counts.Completed == counts.Total() {
		if err := w.store.SetFolderStatus(ctx, folderID, models.FolderStatusCompleted); err != nil {
			return err
		}
		w.hub.Broadcast(folderID.String(), "ingest:completed", map[string]interface{}{"folderId": folderID.String()})
		return nil
	}
	return nil
}

func (w *Worker) fail(job *queue.Job, folderID uuid.UUID, err error, message string) {
	fields := map[string]interface{}{"folderId": folderID.String(), "jobId": job.ID}
	logger.FolderWorkerError("job_failed", message, err, fields)
	w.hub.Broadcast(folderID.String(), "ingest:failed", fields)
	_ = w.store.SetFolderStatus(w.ctx, folderID, models.FolderStatusFailed)
	_ = w.q.Fail(w.ctx, queue.Folders, job.ID, message)
}
