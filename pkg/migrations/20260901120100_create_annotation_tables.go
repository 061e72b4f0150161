package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE reading_positions (
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				format TEXT NOT NULL,
				device_id TEXT NOT NULL,
				reader_name TEXT NOT NULL DEFAULT '',
				last_read_page INTEGER NOT NULL DEFAULT 0,
				last_read_chapter TEXT NOT NULL DEFAULT '',
				last_chapter_progress REAL NOT NULL DEFAULT 0,
				last_progress REAL NOT NULL DEFAULT 0,
				max_page INTEGER NOT NULL DEFAULT 0,
				last_position_page INTEGER NOT NULL DEFAULT 0,
				last_position_x REAL NOT NULL DEFAULT 0,
				last_position_y REAL NOT NULL DEFAULT 0,
				epoch REAL NOT NULL,
				structural_style INTEGER NOT NULL DEFAULT 0,
				structural_root_page_number INTEGER NOT NULL DEFAULT 0,
				position_tracking_style INTEGER NOT NULL DEFAULT 0,
				take_precedence BOOLEAN NOT NULL DEFAULT FALSE,
				dirty BOOLEAN NOT NULL DEFAULT FALSE,
				PRIMARY KEY (server_uuid, library_name, book_id, device_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE bookmarks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				format TEXT NOT NULL,
				pos TEXT NOT NULL,
				pos_type TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				date TIMESTAMPTZ NOT NULL,
				removed BOOLEAN NOT NULL DEFAULT FALSE,
				dirty BOOLEAN NOT NULL DEFAULT FALSE
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_bookmarks_book_pos ON bookmarks (server_uuid, library_name, book_id, format, pos)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE highlights (
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				format TEXT NOT NULL,
				uuid TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT '',
				style TEXT,
				note TEXT,
				highlighted_text TEXT NOT NULL DEFAULT '',
				start_cfi TEXT NOT NULL DEFAULT '',
				end_cfi TEXT NOT NULL DEFAULT '',
				spine_index INTEGER NOT NULL DEFAULT 0,
				page INTEGER NOT NULL DEFAULT 0,
				start_offset INTEGER NOT NULL DEFAULT 0,
				end_offset INTEGER NOT NULL DEFAULT 0,
				date TIMESTAMPTZ NOT NULL,
				removed BOOLEAN NOT NULL DEFAULT FALSE,
				dirty BOOLEAN NOT NULL DEFAULT FALSE,
				PRIMARY KEY (server_uuid, library_name, book_id, format, uuid)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE reading_sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				server_uuid TEXT NOT NULL,
				library_name TEXT NOT NULL,
				book_id INTEGER NOT NULL,
				device_id TEXT NOT NULL,
				reader_name TEXT NOT NULL DEFAULT '',
				start_datetime TIMESTAMPTZ NOT NULL,
				start_page INTEGER NOT NULL DEFAULT 0,
				start_x REAL NOT NULL DEFAULT 0,
				start_y REAL NOT NULL DEFAULT 0,
				end_datetime TIMESTAMPTZ,
				end_page INTEGER,
				end_x REAL,
				end_y REAL,
				epoch REAL NOT NULL DEFAULT 0
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		// Lookups are always "the latest session for this book and device".
		_, err = db.Exec(`CREATE INDEX ix_reading_sessions_book_device ON reading_sessions (server_uuid, library_name, book_id, device_id, start_datetime DESC)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"reading_sessions", "highlights", "bookmarks", "reading_positions"} {
			_, err := db.Exec("DROP TABLE IF EXISTS " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
