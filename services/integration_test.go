package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

// staticEmbedder returns the same vector for every input, so retrieval tests
// control similarity purely through the stored chunk embeddings
type staticEmbedder struct {
	vec []float64
}

func (s *staticEmbedder) CreateEmbeddings(ctx context.Context, inputs []string) (*openai.EmbeddingResult, error) {
	vectors := make([][]float64, len(inputs))
	for i := range inputs {
		vectors[i] = s.vec
	}
	return &openai.EmbeddingResult{Vectors: vectors, PromptTokens: len(inputs)}, nil
}

func setupIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION_TESTS") != "true" {
		t.Skip("Skipping integration test. Set RUN_INTEGRATION_TESTS=true to run.")
	}
	for _, v := range []string{"DB_HOST", "DB_USER_NAME", "DB_PASSWORD", "DB_NAME", "DB_PORT"} {
		if os.Getenv(v) == "" {
			t.Skipf("%s not set", v)
		}
	}

	sslMode := os.Getenv("DB_SSL_MODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER_NAME"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
		sslMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&model.Video{}, &model.Chunk{}, &model.IngestionJob{}); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_ingestion_jobs_open_video
		ON ingestion_jobs (video_id) WHERE status IN ('pending', 'running')`).Error
	if err != nil {
		t.Fatalf("failed to create open-job index: %v", err)
	}
	return db
}

// testTenantID derives a tenant id unlikely to collide with other runs or data
func testTenantID() uint {
	return uint(time.Now().UnixNano()%1_000_000) + 1_000_000
}

func cleanupTenant(t *testing.T, db *gorm.DB, tenantID uint) {
	t.Helper()
	db.Where("tenant_id = ?", tenantID).Delete(&model.Chunk{})
	db.Where("tenant_id = ?", tenantID).Delete(&model.IngestionJob{})
	db.Unscoped().Where("tenant_id = ?", tenantID).Delete(&model.Video{})
}

func createCompletedVideo(t *testing.T, db *gorm.DB, tenantID uint, title string, chunkVecs []pq.Float64Array) *model.Video {
	t.Helper()
	video := &model.Video{
		TenantID:        tenantID,
		Title:           title,
		SourceKind:      model.SourceKindEmbedYouTube,
		EmbedID:         fmt.Sprintf("it-%d", time.Now().UnixNano()),
		Status:          model.VideoStatusCompleted,
		ChunkGeneration: 1,
	}
	if err := db.Create(video).Error; err != nil {
		t.Fatalf("failed to create video: %v", err)
	}
	for i, vec := range chunkVecs {
		chunk := model.Chunk{
			VideoID:      video.ID,
			TenantID:     tenantID,
			OrdinalIndex: i,
			Generation:   1,
			Text:         fmt.Sprintf("%s chunk %d", title, i),
			StartTime:    float64(i * 60),
			EndTime:      float64((i + 1) * 60),
			Embedding:    vec,
		}
		if err := db.Create(&chunk).Error; err != nil {
			t.Fatalf("failed to create chunk: %v", err)
		}
	}
	return video
}

// Search must never surface another tenant's chunks, no matter how similar
func TestSearchTenantIsolationIntegration(t *testing.T) {
	db := setupIntegrationDB(t)
	tenantA := testTenantID()
	tenantB := tenantA + 1
	defer cleanupTenant(t, db, tenantA)
	defer cleanupTenant(t, db, tenantB)

	vec := pq.Float64Array{1, 0, 0}
	createCompletedVideo(t, db, tenantA, "Tenant A lecture", []pq.Float64Array{vec, vec})
	createCompletedVideo(t, db, tenantB, "Tenant B lecture", []pq.Float64Array{vec})

	search := NewSearchService(db, &staticEmbedder{vec: []float64{1, 0, 0}},
		SearchConfig{TopK: 10, SimilarityFloor: 0.5})

	results, _, err := search.Search(context.Background(), tenantA, nil, "anything")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected tenant A's 2 chunks, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.TenantID != tenantA {
			t.Errorf("chunk from tenant %d leaked into tenant %d's results",
				r.Chunk.TenantID, tenantA)
		}
	}
}

// During a re-sync the old chunk generation must keep serving search, and the
// generation flip must swap the visible set atomically
func TestChunkGenerationSwapVisibilityIntegration(t *testing.T) {
	db := setupIntegrationDB(t)
	tenantID := testTenantID()
	defer cleanupTenant(t, db, tenantID)

	vec := pq.Float64Array{1, 0, 0}
	video := createCompletedVideo(t, db, tenantID, "Resynced lecture", []pq.Float64Array{vec, vec})

	svc := NewIngestService(db, NewTranscriptResolver(), nil, nil, nil, IngestConfig{Workers: 1})
	search := NewSearchService(db, &staticEmbedder{vec: []float64{1, 0, 0}},
		SearchConfig{TopK: 10, SimilarityFloor: 0.5})

	job := &model.IngestionJob{
		VideoID:     video.ID,
		TenantID:    tenantID,
		Status:      model.IngestionJobStatusRunning,
		ForceResync: true,
		VisibleAt:   time.Now().Add(visibilityTimeout),
	}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("failed to create job: %v", err)
	}

	// Mid-pipeline stages of a published video must not leave the video row
	for _, stage := range []model.VideoStatus{
		model.VideoStatusResolving, model.VideoStatusExtracting, model.VideoStatusEmbedding,
	} {
		svc.advanceStage(job, video, stage, true)

		var current model.Video
		if err := db.First(&current, video.ID).Error; err != nil {
			t.Fatalf("failed to reload video: %v", err)
		}
		if current.Status != model.VideoStatusCompleted {
			t.Fatalf("video left completed during stage %s: %s", stage, current.Status)
		}

		results, _, err := search.Search(context.Background(), tenantID, nil, "anything")
		if err != nil {
			t.Fatalf("search failed during stage %s: %v", stage, err)
		}
		if len(results) != 2 {
			t.Fatalf("old generation invisible during stage %s: got %d chunks", stage, len(results))
		}
	}

	newChunks := []model.Chunk{
		{VideoID: video.ID, TenantID: tenantID, OrdinalIndex: 0, Generation: 2,
			Text: "replacement chunk 0", StartTime: 0, EndTime: 60, Embedding: vec},
		{VideoID: video.ID, TenantID: tenantID, OrdinalIndex: 1, Generation: 2,
			Text: "replacement chunk 1", StartTime: 60, EndTime: 120, Embedding: vec},
		{VideoID: video.ID, TenantID: tenantID, OrdinalIndex: 2, Generation: 2,
			Text: "replacement chunk 2", StartTime: 120, EndTime: 180, Embedding: vec},
	}
	err := svc.commitChunks(video, model.MethodPaidSpeechToText,
		&transcript.Transcript{FullText: "replacement transcript"}, newChunks, 2)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	results, _, err := search.Search(context.Background(), tenantID, nil, "anything")
	if err != nil {
		t.Fatalf("search failed after swap: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected the 3 new chunks after swap, got %d", len(results))
	}
	for _, r := range results {
		if r.Chunk.Generation != 2 {
			t.Errorf("superseded generation %d still visible", r.Chunk.Generation)
		}
	}

	var oldRows int64
	db.Model(&model.Chunk{}).
		Where("video_id = ? AND generation < 2", video.ID).
		Count(&oldRows)
	if oldRows != 0 {
		t.Errorf("%d superseded chunk rows left behind", oldRows)
	}
}

// Concurrent ingestion requests for one video must converge on a single open
// job; the partial unique index backstops the check-then-insert window
func TestConcurrentEnqueueSingleOpenJobIntegration(t *testing.T) {
	db := setupIntegrationDB(t)
	tenantID := testTenantID()
	defer cleanupTenant(t, db, tenantID)

	video := &model.Video{
		TenantID:   tenantID,
		Title:      "Raced lecture",
		SourceKind: model.SourceKindEmbedYouTube,
		EmbedID:    fmt.Sprintf("race-%d", time.Now().UnixNano()),
		Status:     model.VideoStatusPending,
	}
	if err := db.Create(video).Error; err != nil {
		t.Fatalf("failed to create video: %v", err)
	}

	svc := NewIngestService(db, NewTranscriptResolver(), nil, nil, nil, IngestConfig{Workers: 1})

	const callers = 8
	jobIDs := make([]uint, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job, err := svc.RequestIngestion(context.Background(), video, false)
			if err != nil {
				errs[i] = err
				return
			}
			jobIDs[i] = job.ID
		}(i)
	}
	wg.Wait()

	distinct := make(map[uint]bool)
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		distinct[jobIDs[i]] = true
	}
	if len(distinct) != 1 {
		t.Errorf("callers saw %d distinct jobs, want 1", len(distinct))
	}

	var open int64
	db.Model(&model.IngestionJob{}).
		Where("video_id = ? AND status IN ?", video.ID,
			[]model.IngestionJobStatus{model.IngestionJobStatusPending, model.IngestionJobStatusRunning}).
		Count(&open)
	if open != 1 {
		t.Errorf("%d open jobs for one video, want 1", open)
	}
}
