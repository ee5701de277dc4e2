package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Trina-Dasgupta/portfolio-admin/internal/tracker"
	"github.com/Trina-Dasgupta/portfolio-admin/internal/upload"
)

var _ upload.Previews = (*Store)(nil)

// AcquirePreview records a preview handle for f. Handles outlive the process
// so a session can be saved by a later command.
func (s *Store) AcquirePreview(f tracker.File) (string, error) {
	handle := upload.NewPreviewHandle()
	_, err := s.db.Exec(`
		INSERT INTO previews (handle, path, name, content_type, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		handle, f.Path, f.Name, f.ContentType, f.Size, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("recording preview: %w", err)
	}
	return handle, nil
}

// ReleasePreview marks handle as released. Releasing an unknown or already
// released handle returns ErrNotFound.
func (s *Store) ReleasePreview(handle string) error {
	res, err := s.db.Exec(`UPDATE previews SET released_at = ? WHERE handle = ? AND released_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), handle)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// ActivePreviews returns the handles not yet released, oldest first.
func (s *Store) ActivePreviews() ([]Preview, error) {
	rows, err := s.db.Query(`
		SELECT handle, path, name, content_type, size, created_at
		FROM previews WHERE released_at IS NULL ORDER BY created_at ASC, handle ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Preview
	for rows.Next() {
		var p Preview
		var createdAt string
		if err := rows.Scan(&p.Handle, &p.Path, &p.Name, &p.ContentType, &p.Size, &createdAt); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// PruneReleased deletes preview rows released before cutoff.
func (s *Store) PruneReleased(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM previews WHERE released_at IS NOT NULL AND released_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) GetPreview(handle string) (Preview, error) {
	var p Preview
	var createdAt string
	var releasedAt sql.NullString
	err := s.db.QueryRow(`
		SELECT handle, path, name, content_type, size, created_at, released_at
		FROM previews WHERE handle = ?`, handle,
	).Scan(&p.Handle, &p.Path, &p.Name, &p.ContentType, &p.Size, &createdAt, &releasedAt)
	if err == sql.ErrNoRows {
		return Preview{}, ErrNotFound
	}
	if err != nil {
		return Preview{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Preview{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if releasedAt.Valid {
		if p.ReleasedAt, err = time.Parse(time.RFC3339, releasedAt.String); err != nil {
			return Preview{}, fmt.Errorf("parsing released_at: %w", err)
		}
	}
	return p, nil
}
