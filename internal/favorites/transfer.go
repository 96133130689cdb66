package favorites

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/mmcdole/pixora/internal/domain"
)

const catalogDownloadURL = "https://api.unsplash.com/photos/%s/download"

// ImportReport summarizes a merge
type ImportReport struct {
	Added   int
	Skipped int // already present, duplicated in the file, or missing an id
}

// Export writes the active collection as an indented JSON array
func (s *Store) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.List()); err != nil {
		return fmt.Errorf("failed to export favorites: %w", err)
	}
	return nil
}

// Import merges a JSON array of favorites into the active collection.
// Existing entries win; everything is persisted in one write.
func (s *Store) Import(r io.Reader) (ImportReport, error) {
	// The web client wrote the public download link under "download" and never
	// kept the issuance endpoint, so that field is ignored and rebuilt from the id.
	var records []domain.Favorite
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return ImportReport{}, fmt.Errorf("failed to parse favorites file: %w", err)
	}

	s.mu.Lock()
	stored, err := s.readForUpdate()
	if err != nil {
		s.mu.Unlock()
		return ImportReport{}, err
	}
	items := slices.Clone(stored)
	var report ImportReport
	for _, f := range records {
		if f.ID == "" || indexOf(items, f.ID) >= 0 {
			report.Skipped++
			continue
		}
		if f.DownloadEndpoint == "" {
			f.DownloadEndpoint = fmt.Sprintf(catalogDownloadURL, f.ID)
		}
		items = append(items, f)
		report.Added++
	}

	if report.Added == 0 {
		s.items = items
		s.mu.Unlock()
		return report, nil
	}
	if err := s.write(items); err != nil {
		s.mu.Unlock()
		return ImportReport{}, err
	}
	key, count := s.key, len(items)
	s.mu.Unlock()

	s.logger.Info("favorites imported", "key", key, "added", report.Added, "skipped", report.Skipped)
	s.notify(domain.FavoritesEvent{Key: key, Count: count})
	return report, nil
}
