package models

import (
	"fmt"
	"time"
)

// ItemStatus tracks a single image through the collect and publish phases.
type ItemStatus string

const (
	StatusPending      ItemStatus = "pending"
	StatusDownloaded   ItemStatus = "downloaded"
	StatusFailed       ItemStatus = "failed"
	StatusSkipped      ItemStatus = "skipped"
	StatusUploaded     ItemStatus = "uploaded"
	StatusUploadFailed ItemStatus = "upload_failed"
)

// ImageRecord is one cover image discovered on the library page.
type ImageRecord struct {
	ID        int        `json:"id"`
	Title     string     `json:"title"`
	SourceURL string     `json:"source_url"`
	Key       string     `json:"key"`
	Filename  string     `json:"filename,omitempty"`
	LocalPath string     `json:"local_path,omitempty"`
	Size      int64      `json:"size,omitempty"`
	Status    ItemStatus `json:"status"`
	Attempts  int        `json:"attempts,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// CollectionResult is the outcome of one collection pass over a library page.
type CollectionResult struct {
	RunID            string        `json:"run_id"`
	LibraryURL       string        `json:"library_url"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	ScrollIterations int           `json:"scroll_iterations"`
	Found            int           `json:"found"`
	Downloaded       int           `json:"downloaded"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	Items            []ImageRecord `json:"items"`
}

// Empty reports whether the page yielded no usable images at all.
func (r *CollectionResult) Empty() bool {
	return r == nil || r.Found == 0
}

// DownloadedItems returns the records that made it to disk, in page order.
func (r *CollectionResult) DownloadedItems() []ImageRecord {
	if r == nil {
		return nil
	}
	out := make([]ImageRecord, 0, r.Downloaded)
	for _, item := range r.Items {
		if item.Status == StatusDownloaded || item.Status == StatusUploaded || item.Status == StatusUploadFailed {
			out = append(out, item)
		}
	}
	return out
}

// Summary returns a one-line human description of the result.
func (r *CollectionResult) Summary() string {
	return fmt.Sprintf("%d found, %d downloaded, %d failed, %d skipped in %d scroll iterations",
		r.Found, r.Downloaded, r.Failed, r.Skipped, r.ScrollIterations)
}

// UploadOutcome is the outcome of one publish pass against the builder page.
type UploadOutcome struct {
	RunID      string        `json:"run_id"`
	TargetURL  string        `json:"target_url"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Attempted  int           `json:"attempted"`
	Uploaded   int           `json:"uploaded"`
	Failed     int           `json:"failed"`
	Items      []ImageRecord `json:"items"`
}

// Summary returns a one-line human description of the outcome.
func (o *UploadOutcome) Summary() string {
	return fmt.Sprintf("%d of %d uploaded, %d failed", o.Uploaded, o.Attempted, o.Failed)
}
