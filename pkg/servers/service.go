package servers

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfsync/pkg/catalog"
	"github.com/shishobooks/shelfsync/pkg/errcodes"
	"github.com/shishobooks/shelfsync/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveServerOptions struct {
	UUID    *string
	BaseURL *string
}

type UpdateServerOptions struct {
	Columns []string
}

type Service struct {
	db      *bun.DB
	catalog catalog.Client
}

func NewService(db *bun.DB, client catalog.Client) *Service {
	return &Service{db, client}
}

// Probe asks the catalog which libraries the server hosts and records the
// server together with every library found. Probing a base URL that is
// already known returns the existing server and adds any new libraries.
func (svc *Service) Probe(ctx context.Context, server *models.Server) (*models.Server, error) {
	log := logger.FromContext(ctx)
	server.BaseURL = strings.TrimRight(server.BaseURL, "/")

	existing, err := svc.RetrieveServer(ctx, RetrieveServerOptions{BaseURL: &server.BaseURL})
	if err != nil && !isNotFound(err) {
		return nil, errors.WithStack(err)
	}
	if existing != nil {
		if server.Username != nil {
			existing.Username = server.Username
		}
		if server.PublicURL != nil {
			existing.PublicURL = server.PublicURL
		}
		server = existing
	} else if server.UUID == "" {
		server.UUID = uuid.New().String()
	}

	info, err := svc.catalog.LibraryInfo(ctx, server)
	if err != nil {
		log.Err(err).Warn("probe failed", logger.Data{"base_url": server.BaseURL})
		return nil, errcodes.CatalogUnavailable(err.Error())
	}

	names := make([]string, 0, len(info.LibraryMap))
	for name := range info.LibraryMap {
		names = append(names, name)
	}
	sort.Strings(names)
	if info.DefaultLibrary != "" {
		server.DefaultLibrary = &info.DefaultLibrary
	}
	if server.Name == "" {
		server.Name = server.BaseURL
	}

	now := time.Now()
	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if server.CreatedAt.IsZero() {
			server.CreatedAt = now
		}
		server.UpdatedAt = now
		_, err := tx.NewInsert().
			Model(server).
			On("CONFLICT (uuid) DO UPDATE").
			Set("public_url = EXCLUDED.public_url").
			Set("username = EXCLUDED.username").
			Set("default_library = EXCLUDED.default_library").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, name := range names {
			library := &models.Library{
				ServerUUID: server.UUID,
				Name:       name,
				CreatedAt:  now,
				UpdatedAt:  now,
				AutoUpdate: true,
			}
			_, err := tx.NewInsert().
				Model(library).
				On("CONFLICT (server_uuid, name) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	log.Info("server probed", logger.Data{"server": server.UUID, "libraries": len(names)})

	return svc.RetrieveServer(ctx, RetrieveServerOptions{UUID: &server.UUID})
}

func (svc *Service) RetrieveServer(ctx context.Context, opts RetrieveServerOptions) (*models.Server, error) {
	server := &models.Server{}

	q := svc.db.
		NewSelect().
		Model(server).
		Relation("Libraries", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("name ASC")
		})

	if opts.UUID != nil {
		q = q.Where("s.uuid = ?", *opts.UUID)
	}
	if opts.BaseURL != nil {
		q = q.Where("s.base_url = ?", *opts.BaseURL)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Server")
		}
		return nil, errors.WithStack(err)
	}

	return server, nil
}

// Resolve satisfies catalog.ServerResolver.
func (svc *Service) Resolve(ctx context.Context, id string) (*models.Server, error) {
	server := &models.Server{}
	err := svc.db.NewSelect().Model(server).Where("s.uuid = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Server")
		}
		return nil, errors.WithStack(err)
	}
	return server, nil
}

func (svc *Service) ListServers(ctx context.Context) ([]*models.Server, error) {
	servers := []*models.Server{}

	err := svc.db.
		NewSelect().
		Model(&servers).
		Relation("Libraries", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("name ASC")
		}).
		Order("s.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return servers, nil
}

func (svc *Service) UpdateServer(ctx context.Context, server *models.Server, opts UpdateServerOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	server.UpdatedAt = time.Now()
	columns := append(append([]string{}, opts.Columns...), "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(server).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func isNotFound(err error) bool {
	var e *errcodes.Error
	return errors.As(err, &e) && e.Code == "not_found"
}
