// Package handlers implements the thin HTTP front-end (spec §6): one Fiber
// handler per row of the Public API surface table, each mapping 1:1 onto a
// transport-agnostic component call. Grounded on the teacher's
// interfaces/api/handlers.go composition root (one struct bundling every
// handler, constructed once at startup and threaded into routes).
package handlers

import (
	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/ingest"
	"driveingest/internal/pkg/config"
	"driveingest/internal/search"
	"driveingest/internal/sync"
)

// Handlers bundles every HTTP handler behind the Public API surface.
type Handlers struct {
	Ingest    *IngestHandler
	Sync      *SyncHandler
	Folder    *FolderHandler
	Search    *SearchHandler
	Retry     *RetryHandler
	Health    *HealthHandler
	Thumbnail *ThumbnailHandler
	Admin     *AdminHandler
}

// Deps is everything the HTTP layer needs from the rest of the module.
type Deps struct {
	Store        store.Store
	Queue        *queue.Queue
	Drive        *drive.Adapter
	Coordinator  *ingest.Coordinator
	SyncEngine   *sync.Engine
	SearchEngine *search.Engine
	Config       *config.Config
}

func New(d Deps) *Handlers {
	return &Handlers{
		Ingest:    NewIngestHandler(d.Coordinator),
		Sync:      NewSyncHandler(d.SyncEngine, d.Store),
		Folder:    NewFolderHandler(d.Store),
		Search:    NewSearchHandler(d.SearchEngine),
		Retry:     NewRetryHandler(d.Store, d.Queue),
		Health:    NewHealthHandler(d.Store, d.Queue),
		Thumbnail: NewThumbnailHandler(d.Drive),
		Admin:     NewAdminHandler(d.Config),
	}
}
