package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

const (
	// visibilityTimeout is how long a claimed job stays invisible to other
	// workers; a crashed worker's job reappears after it elapses
	visibilityTimeout = 10 * time.Minute

	// pollInterval spaces dequeue attempts when the queue is empty
	pollInterval = 2 * time.Second

	// maxExtractAttempts bounds retries of one extraction method within a
	// single delivery
	maxExtractAttempts = 5

	// extractRetryBase is the first retry delay; subsequent delays double
	extractRetryBase = 2 * time.Second

	// extractRetryCap bounds the exponential growth
	extractRetryCap = 2 * time.Minute
)

var errJobCancelled = errors.New("ingestion job cancelled")

// IngestConfig tunes the ingestion worker pool
type IngestConfig struct {
	Workers int
}

// IngestService owns the durable ingestion queue and drives each video through
// resolve → extract → chunk → embed → complete. Jobs are plain database rows
// claimed with SKIP LOCKED, so any number of workers (and processes) can share
// the queue without double-delivery.
type IngestService struct {
	db        *gorm.DB
	resolver  *TranscriptResolver
	adapters  map[model.ExtractionMethod]TranscriptAdapter
	chunker   *Chunker
	embedder  *EmbeddingService
	config    IngestConfig

	// activeJobs maps job ID to the cancel func of the worker processing it
	activeJobs   map[uint]context.CancelFunc
	activeJobsMu sync.Mutex

	wg sync.WaitGroup
}

// NewIngestService creates a new ingestion service
func NewIngestService(db *gorm.DB, resolver *TranscriptResolver, adapters []TranscriptAdapter, chunker *Chunker, embedder *EmbeddingService, config IngestConfig) *IngestService {
	if config.Workers <= 0 {
		config.Workers = 5
	}
	byMethod := make(map[model.ExtractionMethod]TranscriptAdapter, len(adapters))
	for _, adapter := range adapters {
		byMethod[adapter.Method()] = adapter
	}
	return &IngestService{
		db:         db,
		resolver:   resolver,
		adapters:   byMethod,
		chunker:    chunker,
		embedder:   embedder,
		config:     config,
		activeJobs: make(map[uint]context.CancelFunc),
	}
}

// RequestIngestion enqueues ingestion for a video. The call is idempotent:
// an already-open job is returned as-is, and a completed video is a no-op
// unless forceResync is set.
func (s *IngestService) RequestIngestion(ctx context.Context, video *model.Video, forceResync bool) (*model.IngestionJob, error) {
	if err := video.Validate(); err != nil {
		return nil, err
	}

	var existing model.IngestionJob
	err := s.db.WithContext(ctx).
		Where("video_id = ? AND status IN ?", video.ID,
			[]model.IngestionJobStatus{model.IngestionJobStatusPending, model.IngestionJobStatusRunning}).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check for open ingestion job: %w", err)
	}

	if video.Status == model.VideoStatusCompleted && !forceResync {
		return nil, nil
	}

	job := model.IngestionJob{
		VideoID:     video.ID,
		TenantID:    video.TenantID,
		Status:      model.IngestionJobStatusPending,
		ForceResync: forceResync,
		VisibleAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		// A concurrent request can slip past the lookup above; the partial
		// unique index on open jobs rejects the second insert. Return the
		// winner's job so the call stays idempotent.
		var raced model.IngestionJob
		lookupErr := s.db.WithContext(ctx).
			Where("video_id = ? AND status IN ?", video.ID,
				[]model.IngestionJobStatus{model.IngestionJobStatusPending, model.IngestionJobStatusRunning}).
			First(&raced).Error
		if lookupErr == nil {
			return &raced, nil
		}
		return nil, fmt.Errorf("failed to enqueue ingestion job: %w", err)
	}
	return &job, nil
}

// Cancel flags a job for cooperative cancellation. A running worker notices at
// its next state-transition boundary; a queued job is cancelled immediately.
func (s *IngestService) Cancel(ctx context.Context, jobID uint) error {
	var job model.IngestionJob
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return fmt.Errorf("failed to load ingestion job %d: %w", jobID, err)
	}
	if !job.IsOpen() {
		return fmt.Errorf("ingestion job %d is already %s", jobID, job.Status)
	}

	if err := s.db.WithContext(ctx).Model(&job).Update("cancelled", true).Error; err != nil {
		return fmt.Errorf("failed to flag job %d cancelled: %w", jobID, err)
	}

	if job.Status == model.IngestionJobStatusPending {
		return s.db.WithContext(ctx).Model(&job).
			Update("status", model.IngestionJobStatusCancelled).Error
	}

	// Wake the worker if it is blocked in a retry sleep or provider call
	s.activeJobsMu.Lock()
	if cancel, ok := s.activeJobs[jobID]; ok {
		cancel()
	}
	s.activeJobsMu.Unlock()
	return nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (s *IngestService) Start(ctx context.Context) {
	log.Printf("Starting %d ingestion workers", s.config.Workers)
	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}
}

// Wait blocks until all workers have exited
func (s *IngestService) Wait() {
	s.wg.Wait()
}

func (s *IngestService) workerLoop(ctx context.Context, worker int) {
	defer s.wg.Done()
	for {
		job, err := s.dequeue(ctx)
		if err != nil {
			log.Printf("Worker %d: dequeue error: %v", worker, err)
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		s.process(ctx, job)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// dequeue claims the oldest deliverable job. The claim increments Deliveries
// and pushes VisibleAt forward; a job past its delivery budget is dead-lettered
// instead of delivered.
func (s *IngestService) dequeue(ctx context.Context) (*model.IngestionJob, error) {
	var claimed *model.IngestionJob

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.IngestionJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND visible_at <= ?",
				[]model.IngestionJobStatus{model.IngestionJobStatusPending, model.IngestionJobStatusRunning},
				time.Now()).
			Order("visible_at asc").
			First(&job).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		job.Deliveries++
		if job.Deliveries > model.MaxJobDeliveries {
			job.Status = model.IngestionJobStatusDead
			if job.LastError == "" {
				job.LastError = "delivery budget exhausted"
			}
			if err := tx.Save(&job).Error; err != nil {
				return err
			}
			return s.markVideoFailed(tx, job.VideoID, "ingestion repeatedly interrupted")
		}

		now := time.Now()
		job.Status = model.IngestionJobStatusRunning
		job.VisibleAt = now.Add(visibilityTimeout)
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		if err := tx.Save(&job).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	return claimed, err
}

// process runs the full state machine for one claimed job
func (s *IngestService) process(ctx context.Context, job *model.IngestionJob) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.activeJobsMu.Lock()
	s.activeJobs[job.ID] = cancel
	s.activeJobsMu.Unlock()
	defer func() {
		s.activeJobsMu.Lock()
		delete(s.activeJobs, job.ID)
		s.activeJobsMu.Unlock()
	}()

	var video model.Video
	if err := s.db.First(&video, job.VideoID).Error; err != nil {
		s.failJob(job, nil, fmt.Sprintf("video %d not found: %v", job.VideoID, err))
		return
	}

	// Already-completed video: nothing to do unless a re-sync was forced
	if video.Status == model.VideoStatusCompleted && !job.ForceResync {
		s.completeJob(job)
		return
	}

	if err := s.runPipeline(jobCtx, job, &video); err != nil {
		if errors.Is(err, errJobCancelled) {
			s.cancelJob(job, &video)
			return
		}
		s.failJob(job, &video, err.Error())
		return
	}
	s.completeJob(job)
}

// runPipeline advances the video through every state; each transition boundary
// re-checks the cancellation flag before committing to more work. A video that
// already serves a published chunk set (forced re-sync) keeps its completed
// status throughout, so search sees the old generation until the new one
// commits; progress is tracked on the job row instead.
func (s *IngestService) runPipeline(ctx context.Context, job *model.IngestionJob, video *model.Video) error {
	published := hasPublishedChunks(video.Status, video.ChunkGeneration)

	if err := s.checkCancelled(ctx, job); err != nil {
		return err
	}
	s.advanceStage(job, video, model.VideoStatusResolving, published)

	plan, err := s.resolver.Resolve(video)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}

	if err := s.checkCancelled(ctx, job); err != nil {
		return err
	}
	s.advanceStage(job, video, model.VideoStatusExtracting, published)

	result, method, err := s.extract(ctx, job, video, plan, published)
	if err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job); err != nil {
		return err
	}
	s.advanceStage(job, video, model.VideoStatusChunking, published)

	generation := video.ChunkGeneration + 1
	chunks := s.chunker.Chunk(video, result.Segments)
	for i := range chunks {
		chunks[i].Generation = generation
	}
	if len(chunks) == 0 {
		return errors.New("transcript contained no indexable content")
	}

	if err := s.checkCancelled(ctx, job); err != nil {
		return err
	}
	s.advanceStage(job, video, model.VideoStatusEmbedding, published)

	promptTokens, err := s.embedder.EmbedChunks(ctx, chunks)
	if promptTokens > 0 {
		// The spend happened whether or not embedding fully succeeded
		usage := NewEmbeddingUsage(promptTokens)
		usage.TenantID = video.TenantID
		usage.VideoID = &video.ID
		if dbErr := s.db.Create(&usage).Error; dbErr != nil {
			log.Printf("Failed to record embedding usage for video %d: %v", video.ID, dbErr)
		}
	}
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	if err := s.checkCancelled(ctx, job); err != nil {
		return err
	}
	return s.commitChunks(video, method, result, chunks, generation)
}

// extract walks the plan, retrying each method with exponential backoff on
// transient failures and advancing past methods that turn out unavailable
func (s *IngestService) extract(ctx context.Context, job *model.IngestionJob, video *model.Video, plan *TranscriptPlan, published bool) (*transcript.Transcript, model.ExtractionMethod, error) {
	type attemptLog struct {
		Method  string `json:"method"`
		Attempt int    `json:"attempt"`
		Kind    string `json:"kind,omitempty"`
		Error   string `json:"error,omitempty"`
	}
	var attempts []attemptLog

	saveAttempts := func() {
		detail, err := json.Marshal(attempts)
		if err != nil {
			return
		}
		s.db.Model(job).Update("attempt_detail", detail)
	}

	for {
		method, ok := plan.Next()
		if !ok {
			saveAttempts()
			return nil, "", errors.New("no transcript source available for this video")
		}

		adapter, ok := s.adapters[method]
		if !ok {
			log.Printf("No adapter registered for method %s, skipping", method)
			continue
		}
		s.db.Model(job).Update("method_tried", method)

		for attempt := 1; attempt <= maxExtractAttempts; attempt++ {
			if err := s.checkCancelled(ctx, job); err != nil {
				saveAttempts()
				return nil, "", err
			}

			result, err := adapter.Extract(ctx, video)
			if err == nil {
				if method == model.MethodPaidSpeechToText {
					s.recordTranscriptionSpend(video, result.DurationSeconds)
				}
				saveAttempts()
				return result, method, nil
			}
			if ctx.Err() != nil {
				saveAttempts()
				return nil, "", errJobCancelled
			}

			kind := transcript.ClassifyFailure(err)
			attempts = append(attempts, attemptLog{
				Method:  string(method),
				Attempt: attempt,
				Kind:    string(kind),
				Error:   err.Error(),
			})

			switch decideAfterFailure(kind, attempt, maxExtractAttempts) {
			case outcomeAbort:
				saveAttempts()
				return nil, "", fmt.Errorf("extraction via %s rejected permanently: %w", method, err)
			case outcomeAdvanceMethod:
				log.Printf("Video %d: method %s unavailable (%s), advancing", video.ID, method, kind)
				attempt = maxExtractAttempts // break the attempt loop
			case outcomeRetrySameMethod:
				s.advanceStage(job, video, model.VideoStatusRetrying, published)
				delay := retryBackoff(attempt)
				log.Printf("Video %d: method %s attempt %d failed (%s), retrying in %s",
					video.ID, method, attempt, kind, delay)
				select {
				case <-ctx.Done():
					saveAttempts()
					return nil, "", errJobCancelled
				case <-time.After(delay):
				}
				s.advanceStage(job, video, model.VideoStatusExtracting, published)
			}
		}
	}
}

// recordTranscriptionSpend writes the speech-to-text usage record immediately;
// the money is spent even if chunking or embedding later fails
func (s *IngestService) recordTranscriptionSpend(video *model.Video, durationSeconds float64) {
	usage := NewTranscriptionUsage(durationSeconds)
	usage.TenantID = video.TenantID
	usage.VideoID = &video.ID
	if err := s.db.Create(&usage).Error; err != nil {
		log.Printf("Failed to record transcription usage for video %d: %v", video.ID, err)
		return
	}
	video.ExtractionCost = usage.Cost
	s.db.Model(video).Update("extraction_cost", usage.Cost)
}

// commitChunks atomically publishes the new chunk generation: the rows are
// inserted and the video's generation pointer flipped in one transaction, so
// search either sees the old complete set or the new complete set
func (s *IngestService) commitChunks(video *model.Video, method model.ExtractionMethod, result *transcript.Transcript, chunks []model.Chunk, generation int) error {
	now := time.Now()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(chunks, 200).Error; err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}

		updates := map[string]interface{}{
			"status":            model.VideoStatusCompleted,
			"transcript_text":   result.FullText,
			"extraction_method": method,
			"chunk_generation":  generation,
			"last_synced_at":    now,
			"failure_reason":    "",
		}
		if result.DurationSeconds > 0 {
			updates["duration_seconds"] = result.DurationSeconds
		}
		if err := tx.Model(video).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to publish video: %w", err)
		}

		// Superseded generations are invisible to search already; drop them
		return tx.Where("video_id = ? AND generation < ?", video.ID, generation).
			Delete(&model.Chunk{}).Error
	})
	if err != nil {
		return err
	}

	video.Status = model.VideoStatusCompleted
	video.ChunkGeneration = generation
	return nil
}

// checkCancelled re-reads the cooperative cancellation flag
func (s *IngestService) checkCancelled(ctx context.Context, job *model.IngestionJob) error {
	if ctx.Err() != nil {
		return errJobCancelled
	}
	var cancelled bool
	err := s.db.Model(&model.IngestionJob{}).
		Select("cancelled").
		Where("id = ?", job.ID).
		Scan(&cancelled).Error
	if err != nil {
		return fmt.Errorf("failed to check cancellation flag: %w", err)
	}
	if cancelled {
		return errJobCancelled
	}
	return nil
}

func (s *IngestService) setVideoStatus(video *model.Video, status model.VideoStatus) {
	video.Status = status
	if err := s.db.Model(video).Update("status", status).Error; err != nil {
		log.Printf("Failed to update video %d status to %s: %v", video.ID, status, err)
	}
}

// advanceStage records pipeline progress on the job row and mirrors it onto
// the video unless the video already serves a published chunk set. Search
// filters on videos.status = completed, so touching a published video's status
// mid-run would black out its old chunks before the new generation commits.
func (s *IngestService) advanceStage(job *model.IngestionJob, video *model.Video, status model.VideoStatus, published bool) {
	job.Stage = string(status)
	if err := s.db.Model(job).Update("stage", job.Stage).Error; err != nil {
		log.Printf("Failed to update job %d stage to %s: %v", job.ID, status, err)
	}
	if !published {
		s.setVideoStatus(video, status)
	}
}

// hasPublishedChunks reports whether the video has a committed chunk
// generation currently serving search
func hasPublishedChunks(status model.VideoStatus, chunkGeneration int) bool {
	return status == model.VideoStatusCompleted && chunkGeneration > 0
}

func (s *IngestService) completeJob(job *model.IngestionJob) {
	now := time.Now()
	s.db.Model(job).Updates(map[string]interface{}{
		"status":       model.IngestionJobStatusCompleted,
		"completed_at": now,
	})
}

// failJob finalizes a failed delivery. A video still serving a published chunk
// generation (failed re-sync) stays completed on that generation; the failure
// lives on the job row.
func (s *IngestService) failJob(job *model.IngestionJob, video *model.Video, reason string) {
	now := time.Now()
	s.db.Model(job).Updates(map[string]interface{}{
		"status":       model.IngestionJobStatusFailed,
		"completed_at": now,
		"last_error":   reason,
	})
	if video != nil && !hasPublishedChunks(video.Status, video.ChunkGeneration) {
		if err := s.markVideoFailed(s.db, video.ID, reason); err != nil {
			log.Printf("Failed to mark video %d failed: %v", video.ID, err)
		}
	}
	log.Printf("Ingestion job %d failed: %s", job.ID, reason)
}

// cancelJob finalizes a cooperatively cancelled job. A forced re-sync never
// left its published generation, so the video simply stays completed; a
// first-time ingestion has nothing published yet, so the video fails.
func (s *IngestService) cancelJob(job *model.IngestionJob, video *model.Video) {
	now := time.Now()
	s.db.Model(job).Updates(map[string]interface{}{
		"status":       model.IngestionJobStatusCancelled,
		"completed_at": now,
	})

	if hasPublishedChunks(video.Status, video.ChunkGeneration) {
		return
	}
	if err := s.markVideoFailed(s.db, video.ID, "ingestion cancelled by requester"); err != nil {
		log.Printf("Failed to mark video %d failed: %v", video.ID, err)
	}
}

func (s *IngestService) markVideoFailed(tx *gorm.DB, videoID uint, reason string) error {
	return tx.Model(&model.Video{}).Where("id = ?", videoID).Updates(map[string]interface{}{
		"status":         model.VideoStatusFailed,
		"failure_reason": reason,
	}).Error
}

// RequeueStale makes jobs whose visibility timeout has lapsed immediately
// deliverable again. Called from the maintenance cron; dequeue would pick them
// up eventually, this just shortens the wait after a crash.
func (s *IngestService) RequeueStale(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&model.IngestionJob{}).
		Where("status = ? AND visible_at <= ?", model.IngestionJobStatusRunning, time.Now()).
		Update("visible_at", time.Now())
	return result.RowsAffected, result.Error
}

// PruneDead deletes dead-lettered jobs older than the retention window
func (s *IngestService) PruneDead(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.IngestionJobStatusDead, cutoff).
		Delete(&model.IngestionJob{})
	return result.RowsAffected, result.Error
}

// ---------------------------------------------------------------------------
// Pure transition decisions

type attemptOutcome int

const (
	outcomeRetrySameMethod attemptOutcome = iota
	outcomeAdvanceMethod
	outcomeAbort
)

// decideAfterFailure maps a classified extraction failure to the orchestrator's
// next move. Unavailability advances the plan, permanent rejection aborts, and
// anything retryable retries until the attempt budget runs out, then advances.
func decideAfterFailure(kind transcript.FailureKind, attempt, maxAttempts int) attemptOutcome {
	switch kind {
	case transcript.FailureNotAvailable:
		return outcomeAdvanceMethod
	case transcript.FailurePermanentReject:
		return outcomeAbort
	}
	if attempt >= maxAttempts {
		return outcomeAdvanceMethod
	}
	return outcomeRetrySameMethod
}

// retryBackoff returns the delay before retry attempt+1 (exponential, capped)
func retryBackoff(attempt int) time.Duration {
	delay := extractRetryBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= extractRetryCap {
			return extractRetryCap
		}
	}
	return delay
}
