package server

import (
	"github.com/shishobooks/shelfsync/pkg/annotations"
	"github.com/shishobooks/shelfsync/pkg/books"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/catalogsync"
	"github.com/shishobooks/shelfsync/pkg/config"
	"github.com/shishobooks/shelfsync/pkg/fetcher"
	"github.com/shishobooks/shelfsync/pkg/jobs"
	"github.com/shishobooks/shelfsync/pkg/libraries"
	"github.com/shishobooks/shelfsync/pkg/search"
	"github.com/shishobooks/shelfsync/pkg/servers"
	"github.com/uptrace/bun"
)

// Services is the set of long-lived services shared by the HTTP handlers
// and the background worker.
type Services struct {
	Annotations *annotations.Service
	Books       *books.Service
	Fetcher     *fetcher.Worker
	Jobs        *jobs.Service
	Libraries   *libraries.Service
	Search      *search.Service
	Servers     *servers.Service
	Syncer      *catalogsync.Syncer
	Tracker     *catalogsync.Tracker
}

// NewCatalogClient returns the HTTP catalog transport. Server addresses are
// looked up in the database on every request so URL changes apply at once.
func NewCatalogClient(cfg *config.Config, db *bun.DB) *catalog.HTTPClient {
	resolver := servers.NewService(db, nil)
	return catalog.NewHTTPClient(resolver.Resolve, catalog.StaticCredentials(cfg.CatalogCredentials), catalog.HTTPClientOptions{
		Timeout:    cfg.CatalogTimeout,
		MaxRetries: cfg.CatalogMaxRetries,
	})
}

func NewServices(cfg *config.Config, db *bun.DB, client catalog.Client) *Services {
	s := &Services{
		Annotations: annotations.NewService(db),
		Books:       books.NewService(db),
		Jobs:        jobs.NewService(db),
		Libraries:   libraries.NewService(db),
		Servers:     servers.NewService(db, client),
		Tracker:     catalogsync.NewTracker(),
	}
	s.Annotations.SetSessionWindow(cfg.SessionRecencyWindow)

	s.Fetcher = fetcher.New(client, s.Books, s.Libraries, s.Annotations, fetcher.Config{
		BatchSize:    cfg.FetchBatchSize,
		RetryBatches: cfg.FetchRetryBatches,
		MaxRounds:    cfg.FetchMaxRounds,
	})
	s.Search = search.NewService(client, s.Books, s.Fetcher)
	s.Syncer = catalogsync.New(client, s.Books, s.Libraries, s.Fetcher, s.Search, s.Tracker, catalogsync.Config{
		IDBatchSize:    cfg.IDBatchSize,
		FetchBatchSize: cfg.FetchBatchSize,
	})
	return s
}
