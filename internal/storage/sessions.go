package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const sessionColumns = `kind, id, position, current_json, original_json, saving, updated_at`

const selectColumns = sessionColumns + `, saving_since`

// ReplaceKind drops every session of kind and stores sessions in the given
// order. It fails with ErrSaveInProgress while any session of kind holds a
// live saving mark.
func (s *Store) ReplaceKind(kind string, sessions []Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	var saving int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM sessions
		WHERE kind = ? AND saving = 1 AND saving_since IS NOT NULL AND saving_since >= ?`,
		kind, s.staleCutoff(),
	).Scan(&saving); err != nil {
		return fmt.Errorf("checking saving sessions: %w", err)
	}
	if saving > 0 {
		return ErrSaveInProgress
	}

	if _, err := tx.Exec(`DELETE FROM sessions WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("clearing %s sessions: %w", kind, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i, sess := range sessions {
		if _, err := tx.Exec(`
			INSERT INTO sessions (`+sessionColumns+`)
			VALUES (?, ?, ?, ?, ?, 0, ?)`,
			kind, sess.ID, i, string(sess.Current), string(sess.Original), now,
		); err != nil {
			return fmt.Errorf("inserting session %s/%s: %w", kind, sess.ID, err)
		}
	}
	return tx.Commit()
}

// AppendSession stores a new session after the existing ones of its kind.
func (s *Store) AppendSession(sess Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, (SELECT COALESCE(MAX(position), -1) + 1 FROM sessions WHERE kind = ?), ?, ?, 0, ?)`,
		sess.Kind, sess.ID, sess.Kind, string(sess.Current), string(sess.Original),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("appending session %s/%s: %w", sess.Kind, sess.ID, err)
	}
	return nil
}

// UpdateSession overwrites the current and original documents of a session.
func (s *Store) UpdateSession(sess Session) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET current_json = ?, original_json = ?, updated_at = ?
		WHERE kind = ? AND id = ?`,
		string(sess.Current), string(sess.Original), time.Now().UTC().Format(time.RFC3339),
		sess.Kind, sess.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) GetSession(kind, id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM sessions WHERE kind = ? AND id = ?`, kind, id)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns the sessions of kind in backend order.
func (s *Store) ListSessions(kind string) ([]Session, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM sessions WHERE kind = ? ORDER BY position ASC`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, sess)
	}
	return results, rows.Err()
}

// BeginSave marks a session as saving. A second call before EndSave fails
// with ErrSaveInProgress, unless the first mark has gone stale.
func (s *Store) BeginSave(kind, id string) error {
	res, err := s.db.Exec(`
		UPDATE sessions SET saving = 1, saving_since = ?
		WHERE kind = ? AND id = ?
		  AND (saving = 0 OR saving_since IS NULL OR saving_since < ?)`,
		s.now().UTC().Format(time.RFC3339), kind, id, s.staleCutoff(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetSession(kind, id); err != nil {
		return err
	}
	return ErrSaveInProgress
}

// EndSave clears the saving mark.
func (s *Store) EndSave(kind, id string) error {
	res, err := s.db.Exec(`UPDATE sessions SET saving = 0, saving_since = NULL WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// staleCutoff is the oldest saving_since still treated as a live save.
func (s *Store) staleCutoff() string {
	return s.now().Add(-s.staleSave).UTC().Format(time.RFC3339)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanSession(row scanner) (Session, error) {
	var sess Session
	var current, original, updatedAt string
	var savingSince sql.NullString
	var saving int
	if err := row.Scan(&sess.Kind, &sess.ID, &sess.Position, &current, &original, &saving, &updatedAt, &savingSince); err != nil {
		return Session{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	sess.Current = []byte(current)
	sess.Original = []byte(original)
	sess.UpdatedAt = t
	if saving != 0 && savingSince.Valid {
		since, err := time.Parse(time.RFC3339, savingSince.String)
		if err != nil {
			return Session{}, fmt.Errorf("parsing saving_since: %w", err)
		}
		sess.SavingSince = since
		sess.Saving = s.now().Sub(since) <= s.staleSave
	}
	return sess, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
