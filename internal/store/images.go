package store

import "time"

// RecordImage inserts or updates the ledger row for a saved file.
func (s *Store) RecordImage(img *Image) error {
	if img.SavedAt.IsZero() {
		img.SavedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO images (run_id, slug, chapter, name, url, bytes, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug, chapter, name) DO UPDATE SET
			run_id = excluded.run_id,
			url = excluded.url,
			bytes = excluded.bytes,
			saved_at = excluded.saved_at
	`, img.RunID, img.Slug, img.Chapter, img.Name, img.URL, img.Bytes, img.SavedAt)
	return err
}

// ListImages returns the recorded images of a chapter ordered by name.
func (s *Store) ListImages(slug, chapter string) ([]Image, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, slug, chapter, name, url, bytes, saved_at
		FROM images
		WHERE slug = ? AND chapter = ?
		ORDER BY name
	`, slug, chapter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		err := rows.Scan(&img.ID, &img.RunID, &img.Slug, &img.Chapter,
			&img.Name, &img.URL, &img.Bytes, &img.SavedAt)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// CountImages returns how many images a run recorded.
func (s *Store) CountImages(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM images WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
