package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE servers (
				uuid TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				name TEXT,
				base_url TEXT NOT NULL,
				public_url TEXT,
				username TEXT,
				default_library TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE libraries (
				server_uuid TEXT REFERENCES servers (uuid) NOT NULL,
				name TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				last_modified TIMESTAMPTZ,
				custom_columns TEXT,
				plugin_overrides TEXT,
				auto_update BOOLEAN NOT NULL DEFAULT FALSE,
				hidden BOOLEAN NOT NULL DEFAULT FALSE,
				last_sync_error TEXT,
				last_synced TIMESTAMPTZ,
				PRIMARY KEY (server_uuid, name)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE books (
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				id INTEGER NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT,
				title_sort TEXT,
				authors TEXT,
				author_sort TEXT,
				series TEXT,
				series_index REAL,
				tags TEXT,
				identifiers TEXT,
				publisher TEXT,
				rating REAL,
				page_count INTEGER,
				comments TEXT,
				timestamp TIMESTAMPTZ,
				pub_date TIMESTAMPTZ,
				last_modified TIMESTAMPTZ,
				last_synced TIMESTAMPTZ,
				in_shelf BOOLEAN NOT NULL DEFAULT FALSE,
				removed BOOLEAN NOT NULL DEFAULT FALSE,
				removed_at TIMESTAMPTZ,
				PRIMARY KEY (server_uuid, library_name, id),
				FOREIGN KEY (server_uuid, library_name) REFERENCES libraries (server_uuid, name)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_library_removed ON books (server_uuid, library_name, removed)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE book_formats (
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				format TEXT NOT NULL,
				server_size INTEGER NOT NULL DEFAULT 0,
				server_mtime TIMESTAMPTZ,
				cached BOOLEAN NOT NULL DEFAULT FALSE,
				cache_size INTEGER,
				cache_mtime TIMESTAMPTZ,
				PRIMARY KEY (server_uuid, library_name, book_id, format),
				FOREIGN KEY (server_uuid, library_name, book_id) REFERENCES books (server_uuid, library_name, id) ON DELETE CASCADE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE fetch_errors (
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				message TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				failed_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (server_uuid, library_name, book_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				data TEXT NOT NULL,
				progress INTEGER NOT NULL,
				process_id TEXT,
				server_uuid TEXT,
				library_name TEXT,
				error TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_jobs_type_library_status ON jobs (type, server_uuid, library_name, status)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"jobs", "fetch_errors", "book_formats", "books", "libraries", "servers"} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
