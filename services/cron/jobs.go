package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

// deadJobRetention is how long dead-lettered ingestion jobs are kept for
// inspection before cleanup removes them
const deadJobRetention = 14 * 24 * time.Hour

// RequeueStaleIngestionJobs makes jobs whose visibility timeout lapsed
// deliverable again so a crashed worker's video resumes promptly
func (m *CronManager) RequeueStaleIngestionJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	jobName := "requeue_stale_ingestion"

	requeued, err := m.ingest.RequeueStale(ctx)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to requeue stale jobs: %w", err))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Requeued %d stale jobs", requeued))
}

// BackfillSessionTitles generates titles for sessions whose async title
// generation never landed
func (m *CronManager) BackfillSessionTitles() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	jobName := "backfill_session_titles"

	attempted, err := m.chat.BackfillTitles(ctx, 50)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to backfill titles: %w", err))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Attempted %d session titles", attempted))
}

// CleanupOldData removes dead-lettered ingestion jobs past retention and
// completed job rows older than the dead-job window
func (m *CronManager) CleanupOldData() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	jobName := "cleanup_old_data"

	pruned, err := m.ingest.PruneDead(ctx, deadJobRetention)
	if err != nil {
		m.logJobError(jobName, fmt.Errorf("failed to prune dead jobs: %w", err))
		return
	}

	cutoff := time.Now().Add(-deadJobRetention)
	completed := m.db.WithContext(ctx).
		Where("status = ? AND completed_at < ?", model.IngestionJobStatusCompleted, cutoff).
		Delete(&model.IngestionJob{})
	if completed.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to prune completed jobs: %w", completed.Error))
		return
	}

	logs := m.db.WithContext(ctx).
		Where("started_at < ?", cutoff).
		Delete(&model.CronJobLog{})
	if logs.Error != nil {
		m.logJobError(jobName, fmt.Errorf("failed to prune cron logs: %w", logs.Error))
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf(
		"Pruned %d dead jobs, %d completed jobs, %d cron logs",
		pruned, completed.RowsAffected, logs.RowsAffected))
}
