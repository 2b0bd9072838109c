// Package db persists hardware lifecycle events: driver mode selections,
// camera source transitions, and board faults. Operator commands are not
// recorded here; the event log exists to answer "what happened to the
// hardware" after the fact, not to replay driving sessions.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/pi-tank/tankd/internal/monitoring"
)

type DB struct {
	*sql.DB

	// path is the database file as opened, kept so the debug surfaces
	// label the database actually in use rather than a default name.
	path string
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			event_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			source            TEXT NOT NULL,
			kind              TEXT NOT NULL,
			detail            TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS events_source_idx ON events (source, timestamp);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// Event is one recorded hardware lifecycle event.
type Event struct {
	ID        int64
	Source    string
	Kind      string
	Detail    string
	Timestamp time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s [%s] %s: %s", e.Timestamp.Format(time.RFC3339), e.Source, e.Kind, e.Detail)
}

// RecordEvent appends one event to the log. Source names the subsystem
// ("board", "camera", "server"), kind the transition, detail is free text.
func (db *DB) RecordEvent(source, kind, detail string) error {
	_, err := db.Exec(
		"INSERT INTO events (source, kind, detail) VALUES (?, ?, ?)",
		source, kind, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Events returns the most recent events, newest first.
func (db *DB) Events(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT event_id, source, kind, COALESCE(detail, ''), timestamp
		FROM events
		ORDER BY event_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Source, &e.Kind, &e.Detail, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: fmt.Sprintf("Tank DB (%s)", db.path),
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			monitoring.Logf("failed to stream backup: %v", err)
		}
	}))

	debug.Handle("events", "Recent hardware lifecycle events", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		events, err := db.Events(200)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load events: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, e := range events {
			fmt.Fprintln(w, e)
		}
	}))
}
