// Package model holds the results shared by the pipeline and its sinks.
package model

import "time"

// PageStatus is the outcome of one page.
type PageStatus string

const (
	// PageStatusCleaned means the service returned a cleaned image.
	PageStatusCleaned PageStatus = "cleaned"

	// PageStatusBlank means the page was blank and passed through unchanged.
	PageStatusBlank PageStatus = "blank"

	// PageStatusKept means cleaning failed and the original raster was kept.
	PageStatusKept PageStatus = "kept"

	// PageStatusFailed means the page is missing from the output.
	PageStatusFailed PageStatus = "failed"
)

// String returns the string representation of PageStatus.
func (status PageStatus) String() string {
	return string(status)
}

// InOutput reports whether the page appears in the assembled PDF.
func (status PageStatus) InOutput() bool {
	return status == PageStatusCleaned || status == PageStatusBlank || status == PageStatusKept
}

// PageResult records what happened to one page.
type PageResult struct {
	Status   PageStatus    `yaml:"status"`
	Source   string        `yaml:"source"`
	Output   string        `yaml:"output,omitempty"`
	Error    string        `yaml:"error,omitempty"`
	Index    int           `yaml:"index"`
	Duration time.Duration `yaml:"duration"`
}

// DocumentResult records one processed PDF.
type DocumentResult struct {
	StartedAt     time.Time     `yaml:"started_at"`
	InputModTime  time.Time     `yaml:"input_mod_time"`
	RunID         string        `yaml:"run_id"`
	InputPath     string        `yaml:"input_path"`
	OutputPath    string        `yaml:"output_path,omitempty"`
	Error         string        `yaml:"error,omitempty"`
	Pages         []PageResult  `yaml:"pages,omitempty"`
	TotalPages    int           `yaml:"total_pages"`
	CleanedPages  int           `yaml:"cleaned_pages"`
	BlankPages    int           `yaml:"blank_pages"`
	KeptPages     int           `yaml:"kept_pages"`
	FailedPages   int           `yaml:"failed_pages"`
	OriginalBytes int64         `yaml:"original_bytes"`
	FinalBytes    int64         `yaml:"final_bytes"`
	Duration      time.Duration `yaml:"duration"`
	Success       bool          `yaml:"success"`
}

// SizeRatio is the final size over the original size, or 0 when unknown.
func (result DocumentResult) SizeRatio() float64 {
	if result.OriginalBytes <= 0 || result.FinalBytes <= 0 {
		return 0
	}

	return float64(result.FinalBytes) / float64(result.OriginalBytes)
}

// CountPages fills the per-status counters from Pages.
func (result *DocumentResult) CountPages() {
	result.TotalPages = len(result.Pages)
	result.CleanedPages, result.BlankPages, result.KeptPages, result.FailedPages = 0, 0, 0, 0

	for _, page := range result.Pages {
		switch page.Status {
		case PageStatusCleaned:
			result.CleanedPages++
		case PageStatusBlank:
			result.BlankPages++
		case PageStatusKept:
			result.KeptPages++
		case PageStatusFailed:
			result.FailedPages++
		}
	}
}

// Summary aggregates a batch of documents.
type Summary struct {
	StartedAt       time.Time     `yaml:"started_at"`
	RunID           string        `yaml:"run_id"`
	Documents       int           `yaml:"documents"`
	Succeeded       int           `yaml:"succeeded"`
	Failed          int           `yaml:"failed"`
	Skipped         int           `yaml:"skipped"`
	SuccessRate     float64       `yaml:"success_rate"`
	TotalDuration   time.Duration `yaml:"total_duration"`
	AverageDuration time.Duration `yaml:"average_duration"`
}

// Summarize builds the batch summary. SuccessRate is a percentage of the
// documents that were attempted; skipped documents are not attempted.
func Summarize(runID string, startedAt time.Time, results []DocumentResult, skipped int) Summary {
	summary := Summary{
		StartedAt:       startedAt,
		RunID:           runID,
		Documents:       len(results),
		Succeeded:       0,
		Failed:          0,
		Skipped:         skipped,
		SuccessRate:     0,
		TotalDuration:   0,
		AverageDuration: 0,
	}

	for _, result := range results {
		if result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		summary.TotalDuration += result.Duration
	}

	if len(results) > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(len(results)) * 100
		summary.AverageDuration = summary.TotalDuration / time.Duration(len(results))
	}

	return summary
}
