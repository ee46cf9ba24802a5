package archive

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// maxSessions bounds retention; the oldest archived sessions are pruned
// on every insert.
const maxSessions = 100

// Store persists finished session timelines to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the archive database at connStr and applies pending
// migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("archive open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts a finished session with its ordered event log in one
// transaction, then prunes sessions beyond the retention bound.
func (s *Store) SaveSession(sess Session, events []Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO archive_sessions
		   (id, session_id, started_at, ended_at, reason, event_count, streamed_chars, cost, plagiarism_score, quality_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sess.ID, sess.SessionID, sess.StartedAt.UTC(), endedAtUTC(sess.EndedAt), sess.Reason,
		sess.EventCount, sess.StreamedChars, sess.Cost, sess.PlagiarismScore, sess.QualityScore,
	)
	if err != nil {
		return err
	}

	for _, ev := range events {
		_, err = tx.Exec(
			`INSERT INTO archive_events (id, session_row, seq, type, agent, stage, received_at, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ev.ID, sess.ID, ev.Seq, ev.Type, ev.Agent, ev.Stage, ev.ReceivedAt.UTC(), []byte(ev.Payload),
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(
		`DELETE FROM archive_sessions WHERE id NOT IN
		   (SELECT id FROM archive_sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ListSessions returns archived sessions ordered newest first.
func (s *Store) ListSessions(limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM archive_sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, started_at, ended_at, reason, event_count, streamed_chars, cost, plagiarism_score, quality_score
		FROM archive_sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns one archived session with its ordered event log,
// looked up by the external session id (latest archive row wins).
func (s *Store) GetSession(sessionID string) (*Session, []Event, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, started_at, ended_at, reason, event_count, streamed_chars, cost, plagiarism_score, quality_score
		FROM archive_sessions
		WHERE session_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, seq, type, agent, stage, received_at, payload FROM archive_events WHERE session_row = $1 ORDER BY seq ASC`,
		sess.ID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err = rows.Scan(&ev.ID, &ev.Seq, &ev.Type, &ev.Agent, &ev.Stage, &ev.ReceivedAt, &ev.Payload); err != nil {
			return nil, nil, err
		}
		ev.SessionRow = sess.ID
		events = append(events, ev)
	}
	return &sess, events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var endedAt sql.NullTime
	err := row.Scan(&sess.ID, &sess.SessionID, &sess.StartedAt, &endedAt, &sess.Reason,
		&sess.EventCount, &sess.StreamedChars, &sess.Cost, &sess.PlagiarismScore, &sess.QualityScore)
	if err != nil {
		return Session{}, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	return sess, nil
}

func endedAtUTC(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
