// Package persist stores profile snapshots in SQLite. The format is an
// internal key-value contract: the loop treats persistence as a
// best-effort collaborator, never a hard dependency for startup or exit.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"evoloop/internal/profile"
	"evoloop/internal/statevec"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	profile_id        TEXT PRIMARY KEY,
	original_artifact TEXT NOT NULL,
	current_artifact  TEXT NOT NULL,
	last_state        TEXT,
	created_at        TEXT NOT NULL,
	last_evaluated_at TEXT,
	evolution_count   INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT
);

CREATE TABLE IF NOT EXISTS history (
	profile_id  TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	recorded_at TEXT NOT NULL,
	entry_json  TEXT NOT NULL,
	PRIMARY KEY (profile_id, seq),
	FOREIGN KEY (profile_id) REFERENCES profiles(profile_id) ON DELETE CASCADE
);
`
// #endregion schema

// #region store-struct
// Store manages profile snapshots in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region save
// Save upserts one profile snapshot and rewrites its history rows in a
// single transaction.
func (s *Store) Save(ctx context.Context, p profile.Profile) error {
	origJSON, err := json.Marshal(p.OriginalArtifact)
	if err != nil {
		return fmt.Errorf("marshal original artifact: %w", err)
	}
	curJSON, err := json.Marshal(p.CurrentArtifact)
	if err != nil {
		return fmt.Errorf("marshal current artifact: %w", err)
	}

	var statePtr interface{}
	if p.LastStateVector != nil {
		stateJSON, err := json.Marshal(p.LastStateVector)
		if err != nil {
			return fmt.Errorf("marshal state vector: %w", err)
		}
		statePtr = string(stateJSON)
	}

	var evaluatedPtr interface{}
	if !p.LastEvaluatedAt.IsZero() {
		evaluatedPtr = p.LastEvaluatedAt.Format(time.RFC3339Nano)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (profile_id, original_artifact, current_artifact, last_state, created_at, last_evaluated_at, evolution_count, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id) DO UPDATE SET
		   current_artifact = excluded.current_artifact,
		   last_state = excluded.last_state,
		   last_evaluated_at = excluded.last_evaluated_at,
		   evolution_count = excluded.evolution_count,
		   last_error = excluded.last_error`,
		p.ID, string(origJSON), string(curJSON), statePtr,
		p.CreatedAt.Format(time.RFC3339Nano), evaluatedPtr,
		p.EvolutionCount, nullIfEmpty(p.LastErr),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM history WHERE profile_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for i, entry := range p.History {
		entryJSON, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal history entry %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO history (profile_id, seq, recorded_at, entry_json) VALUES (?, ?, ?, ?)`,
			p.ID, i, entry.Timestamp.Format(time.RFC3339Nano), string(entryJSON),
		)
		if err != nil {
			return fmt.Errorf("insert history entry %d: %w", i, err)
		}
	}

	return tx.Commit()
}
// #endregion save

// #region load-all
// LoadAll reassembles every persisted profile with history in append order.
func (s *Store) LoadAll(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT profile_id, original_artifact, current_artifact, last_state, created_at, last_evaluated_at, evolution_count, last_error
		 FROM profiles ORDER BY profile_id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []profile.Profile
	for rows.Next() {
		var p profile.Profile
		var origJSON, curJSON, createdStr string
		var stateJSON, evaluatedStr, lastErr sql.NullString

		if err := rows.Scan(&p.ID, &origJSON, &curJSON, &stateJSON, &createdStr, &evaluatedStr, &p.EvolutionCount, &lastErr); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if err := json.Unmarshal([]byte(origJSON), &p.OriginalArtifact); err != nil {
			return nil, fmt.Errorf("unmarshal original artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(curJSON), &p.CurrentArtifact); err != nil {
			return nil, fmt.Errorf("unmarshal current artifact: %w", err)
		}
		if stateJSON.Valid {
			var v statevec.Vector
			if err := json.Unmarshal([]byte(stateJSON.String), &v); err != nil {
				return nil, fmt.Errorf("unmarshal state vector: %w", err)
			}
			p.LastStateVector = &v
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		if evaluatedStr.Valid {
			p.LastEvaluatedAt, _ = time.Parse(time.RFC3339Nano, evaluatedStr.String)
		}
		if lastErr.Valid {
			p.LastErr = lastErr.String
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range profiles {
		history, err := s.loadHistory(ctx, profiles[i].ID)
		if err != nil {
			return nil, err
		}
		profiles[i].History = history
	}
	return profiles, nil
}

func (s *Store) loadHistory(ctx context.Context, id string) ([]profile.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_json FROM history WHERE profile_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", id, err)
	}
	defer rows.Close()

	var entries []profile.HistoryEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		var entry profile.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
// #endregion load-all

// #region delete
// Delete removes a profile snapshot and its history rows in one
// transaction, so a failure can never leave a half-deleted profile.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history WHERE profile_id = ?`, id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE profile_id = ?`, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}
// #endregion delete

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
