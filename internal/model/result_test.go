package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/pdf-watermark-remover/internal/model"
)

func TestPageStatusInOutput(t *testing.T) {
	t.Parallel()

	assert.True(t, model.PageStatusCleaned.InOutput())
	assert.True(t, model.PageStatusBlank.InOutput())
	assert.True(t, model.PageStatusKept.InOutput())
	assert.False(t, model.PageStatusFailed.InOutput())
	assert.Equal(t, "blank", model.PageStatusBlank.String())
}

func TestCountPagesAndRatio(t *testing.T) {
	t.Parallel()

	result := model.DocumentResult{
		Pages: []model.PageResult{
			{Status: model.PageStatusCleaned},
			{Status: model.PageStatusCleaned},
			{Status: model.PageStatusBlank},
			{Status: model.PageStatusKept},
			{Status: model.PageStatusFailed},
		},
		OriginalBytes: 200,
		FinalBytes:    300,
	}
	result.CountPages()

	assert.Equal(t, 5, result.TotalPages)
	assert.Equal(t, 2, result.CleanedPages)
	assert.Equal(t, 1, result.BlankPages)
	assert.Equal(t, 1, result.KeptPages)
	assert.Equal(t, 1, result.FailedPages)
	assert.InDelta(t, 1.5, result.SizeRatio(), 1e-9)

	assert.Zero(t, model.DocumentResult{OriginalBytes: 0, FinalBytes: 10}.SizeRatio())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	results := []model.DocumentResult{
		{Success: true, Duration: 10 * time.Second},
		{Success: false, Duration: 20 * time.Second},
		{Success: true, Duration: 30 * time.Second},
		{Success: true, Duration: 40 * time.Second},
	}

	summary := model.Summarize("run-1", started, results, 2)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, started, summary.StartedAt)
	assert.Equal(t, 4, summary.Documents)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.InDelta(t, 75.0, summary.SuccessRate, 1e-9)
	assert.Equal(t, 100*time.Second, summary.TotalDuration)
	assert.Equal(t, 25*time.Second, summary.AverageDuration)

	empty := model.Summarize("run-2", started, nil, 0)
	assert.Zero(t, empty.SuccessRate)
	assert.Zero(t, empty.AverageDuration)
}
