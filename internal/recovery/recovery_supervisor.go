// Package recovery implements C11: the periodic sweep that resets stuck
// rows, reconciles folder progress, re-activates folders with abandoned
// pending work, and declares stalled queue jobs failed, per spec §4.11.
// Grounded on the teacher's infrastructure/worker reconciliation loops
// (sync_worker.go's "walk and repair" shape) generalized from a single
// Drive-facing reconciliation into the five-step sweep spec §4.11 names,
// and scheduled with the teacher's pkg/scheduler gocron wrapper.
package recovery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/logger"
	"driveingest/internal/pkg/scheduler"
)

const (
	stalledImageAge = 5 * time.Minute
	requeueBatch    = 5
	sweepJobID      = "recovery_sweep"
	sweepCron       = "* * * * *"
)

type Supervisor struct {
	store store.Store
	queue *queue.Queue
}

func New(st store.Store, q *queue.Queue) *Supervisor {
	return &Supervisor{store: st, queue: q}
}

// Schedule runs one sweep immediately, then registers it to run every
// minute on sched, per spec §4.11's "at startup, then every minute" rule.
func (s *Supervisor) Schedule(ctx context.Context, sched scheduler.Scheduler) error {
	s.Sweep(ctx)
	return sched.AddJob(sweepJobID, sweepCron, func() { s.Sweep(ctx) })
}

// Sweep runs all five steps of spec §4.11 once. Safe to call concurrently
// with the workers and with itself; every write goes through the same
// status-guarded Store methods the workers use.
func (s *Supervisor) Sweep(ctx context.Context) {
	s.resetStalledImages(ctx)
	s.reconcileFolderProgress(ctx)
	s.reactivateStalledFolders(ctx)
	s.failStalledQueueJobs(ctx)
	s.requeuePendingImages(ctx)
}

// Step 1: images stuck in processing longer than stalledImageAge reset to
// pending with their error cleared.
func (s *Supervisor) resetStalledImages(ctx context.Context) {
	images, err := s.store.StalledProcessingImages(ctx, stalledImageAge)
	if err != nil {
		logger.RecoveryError("list_stalled_images_failed", "failed to list stalled processing images", err, nil)
		return
	}
	for _, img := range images {
		id := img.ID
		if err := s.store.ResetImageToPending(ctx, store.ImageFilter{ImageID: &id}); err != nil {
			logger.RecoveryError("reset_stalled_image_failed", "failed to reset stalled image", err, map[string]interface{}{
				"imageId": id.String(),
			})
			continue
		}
		logger.Recovery("image_reset_to_pending", "reset stalled processing image to pending", map[string]interface{}{
			"imageId": id.String(),
		})
	}
}

// Step 2: recompute processed/total against live row counts for every
// non-completed folder that holds pending images, so drift from a crashed
// worker self-heals.
func (s *Supervisor) reconcileFolderProgress(ctx context.Context) {
	folders, err := s.store.FoldersWithPendingImagesNotCompleted(ctx)
	if err != nil {
		logger.RecoveryError("list_active_folders_failed", "failed to list folders for reconciliation", err, nil)
		return
	}
	for _, f := range folders {
		if _, err := s.store.UpdateFolderProgress(ctx, f.ID); err != nil {
			logger.RecoveryError("reconcile_folder_progress_failed", "failed to reconcile folder progress", err, map[string]interface{}{
				"folderId": f.ID.String(),
			})
		}
	}
}

// Step 3: a folder with pending images sitting outside status=processing
// (e.g. the enqueue after a prior sweep's write never landed) gets
// re-activated and its pending work re-enqueued.
func (s *Supervisor) reactivateStalledFolders(ctx context.Context) {
	folders, err := s.store.FoldersWithPendingImagesNotProcessing(ctx)
	if err != nil {
		logger.RecoveryError("list_stalled_folders_failed", "failed to list folders with abandoned pending work", err, nil)
		return
	}
	for _, f := range folders {
		if err := s.store.SetFolderStatus(ctx, f.ID, models.FolderStatusProcessing); err != nil {
			logger.RecoveryError("reactivate_folder_failed", "failed to mark folder processing", err, map[string]interface{}{
				"folderId": f.ID.String(),
			})
			continue
		}
		if err := s.enqueueFolderJob(ctx, f.ID); err != nil {
			logger.RecoveryError("reactivate_folder_enqueue_failed", "failed to enqueue recovered folder job", err, map[string]interface{}{
				"folderId": f.ID.String(),
			})
			continue
		}
		logger.Recovery("folder_reactivated", "re-activated folder with abandoned pending work", map[string]interface{}{
			"folderId": f.ID.String(),
		})
	}
}

// Step 4: jobs that have been active longer than the lease without a
// heartbeat are declared stalled and moved to failed by the Queue itself.
func (s *Supervisor) failStalledQueueJobs(ctx context.Context) {
	for _, queueName := range []string{queue.Folders, queue.Images} {
		ids, err := s.queue.StalledJobs(ctx, queueName)
		if err != nil {
			logger.RecoveryError("stalled_jobs_scan_failed", "failed to scan for stalled queue jobs", err, map[string]interface{}{
				"queue": queueName,
			})
			continue
		}
		if len(ids) > 0 {
			logger.Recovery("stalled_jobs_failed", "declared stalled queue jobs failed", map[string]interface{}{
				"queue": queueName, "count": len(ids),
			})
		}
	}
}

// Step 5: bulk re-queue pending images of every non-completed folder, in
// batches of five, matching the Folder Worker's own batch size. This must
// query status != completed, not the status != processing subset Step 3
// shares: a folder whose status is already processing (the common case
// after Step 1 resets a single stuck image back to pending without
// touching the folder's own status) still needs its pending image
// re-enqueued here.
func (s *Supervisor) requeuePendingImages(ctx context.Context) {
	folders, err := s.store.FoldersWithPendingImagesNotCompleted(ctx)
	if err != nil {
		logger.RecoveryError("list_requeue_folders_failed", "failed to list folders for bulk requeue", err, nil)
		return
	}
	for _, f := range folders {
		pending, err := s.store.ListPendingImages(ctx, f.ID, 0)
		if err != nil {
			logger.RecoveryError("list_pending_images_failed", "failed to list pending images for requeue", err, map[string]interface{}{
				"folderId": f.ID.String(),
			})
			continue
		}
		for batchStart := 0; batchStart < len(pending); batchStart += requeueBatch {
			end := batchStart + requeueBatch
			if end > len(pending) {
				end = len(pending)
			}
			ids := make([]string, 0, end-batchStart)
			for _, img := range pending[batchStart:end] {
				ids = append(ids, img.ID.String())
			}
			jobID := "batch:" + f.ID.String() + ":" + time.Now().Format("20060102150405.000000000") + ":" + ids[0]
			payload := struct {
				FolderID string   `json:"folderId"`
				ImageIDs []string `json:"imageIds"`
			}{FolderID: f.ID.String(), ImageIDs: ids}
			if err := s.queue.Enqueue(ctx, queue.Images, jobID, payload); err != nil {
				logger.RecoveryError("requeue_batch_failed", "failed to requeue pending image batch", err, map[string]interface{}{
					"folderId": f.ID.String(),
				})
			}
		}
	}
}

// enqueueFolderJob carries no credential: a recovered folder's original
// drive credential is not retained past its first enqueue, so the image
// batches a recovered job leads to download with the Drive Adapter's
// service key or default credentials, never the original user's token.
func (s *Supervisor) enqueueFolderJob(ctx context.Context, folderID uuid.UUID) error {
	jobID := "folder:" + folderID.String() + ":" + time.Now().Format("20060102150405.000000000")
	payload := struct {
		FolderID string `json:"folderId"`
	}{FolderID: folderID.String()}
	return s.queue.Enqueue(ctx, queue.Folders, jobID, payload)
}
