package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tierup/pkg/models"
)

// SummaryFileName is the summary file written into the output directory
// after every run.
const SummaryFileName = "download_summary.json"

// imageExtensions lists the file extensions ItemsFromDir treats as covers.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Summary ties together everything a run produced. It is written next to
// the downloaded images so a later publish can pick up where a collect
// left off.
type Summary struct {
	RunID       string                   `json:"run_id"`
	LibraryURL  string                   `json:"library_url"`
	GeneratedAt time.Time                `json:"generated_at"`
	Result      *models.CollectionResult `json:"result,omitempty"`
	Upload      *models.UploadOutcome    `json:"upload,omitempty"`
}

// Items returns the per-item records of the run with upload results
// overlaid on the collection records they came from, ready for a final
// outcome listing.
func (s *Summary) Items() []models.ImageRecord {
	if s == nil {
		return nil
	}
	if s.Result == nil {
		if s.Upload == nil {
			return nil
		}
		return s.Upload.Items
	}

	items := make([]models.ImageRecord, len(s.Result.Items))
	copy(items, s.Result.Items)
	if s.Upload == nil {
		return items
	}

	uploaded := make(map[string]models.ImageRecord, len(s.Upload.Items))
	for _, item := range s.Upload.Items {
		uploaded[item.Key] = item
	}
	for i, item := range items {
		if final, ok := uploaded[item.Key]; ok {
			items[i] = final
		}
	}
	return items
}

// Save writes the summary into dir atomically. The file is staged under a
// temporary name and renamed into place so a crash mid-write never leaves
// a truncated summary behind.
func Save(dir string, summary *Summary) error {
	summary.GeneratedAt = time.Now()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}

	target := filepath.Join(dir, SummaryFileName)
	tempFile := target + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temp summary file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to sync summary file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close summary file: %w", err)
	}

	if err := os.Rename(tempFile, target); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename summary file: %w", err)
	}

	return nil
}

// Load reads the summary from dir. A missing file is not an error; it
// returns (nil, nil) so callers can fall back to ItemsFromDir.
func Load(dir string) (*Summary, error) {
	data, err := os.ReadFile(filepath.Join(dir, SummaryFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}

	return &summary, nil
}

// Exists reports whether dir holds a summary file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, SummaryFileName))
	return err == nil
}

// ItemsFromDir rebuilds an item list from the image files in dir, for
// publishing a directory that has no summary. Files are listed in name
// order and titles are recovered from the sanitized filenames.
func ItemsFromDir(dir string) ([]models.ImageRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	items := make([]models.ImageRecord, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		var size int64
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		items = append(items, models.ImageRecord{
			ID:        len(items) + 1,
			Title:     strings.ReplaceAll(base, "_", " "),
			Filename:  name,
			LocalPath: path,
			Size:      size,
			Status:    models.StatusDownloaded,
		})
	}

	return items, nil
}
