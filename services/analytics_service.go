package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

// AnalyticsService handles tenant usage analytics and reporting
type AnalyticsService struct {
	db *gorm.DB
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{
		db: db,
	}
}

// TenantStats represents overall usage for one tenant
type TenantStats struct {
	TenantID          uint    `json:"tenant_id"`
	TotalVideos       int64   `json:"total_videos"`
	VideosCompleted   int64   `json:"videos_completed"`
	VideosProcessing  int64   `json:"videos_processing"`
	VideosFailed      int64   `json:"videos_failed"`
	TotalChatSessions int64   `json:"total_chat_sessions"`
	TotalChatMessages int64   `json:"total_chat_messages"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalCost         float64 `json:"total_cost"`
	TranscriptionCost float64 `json:"transcription_cost"`
	CompletionCost    float64 `json:"completion_cost"`
	EmbeddingCost     float64 `json:"embedding_cost"`
	ActiveSessions24h int64   `json:"active_sessions_24h"`
}

// GetTenantStats retrieves overall usage statistics for a tenant
func (s *AnalyticsService) GetTenantStats(ctx context.Context, tenantID uint) (*TenantStats, error) {
	stats := &TenantStats{TenantID: tenantID}

	// Video counts by pipeline state
	if err := s.db.Model(&model.Video{}).
		Where("tenant_id = ?", tenantID).
		Count(&stats.TotalVideos).Error; err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}

	if err := s.db.Model(&model.Video{}).
		Where("tenant_id = ? AND status = ?", tenantID, model.VideoStatusCompleted).
		Count(&stats.VideosCompleted).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed videos: %w", err)
	}

	if err := s.db.Model(&model.Video{}).
		Where("tenant_id = ? AND status = ?", tenantID, model.VideoStatusFailed).
		Count(&stats.VideosFailed).Error; err != nil {
		return nil, fmt.Errorf("failed to count failed videos: %w", err)
	}
	stats.VideosProcessing = stats.TotalVideos - stats.VideosCompleted - stats.VideosFailed

	// Chat statistics
	if err := s.db.Model(&model.ChatSession{}).
		Where("tenant_id = ?", tenantID).
		Count(&stats.TotalChatSessions).Error; err != nil {
		return nil, fmt.Errorf("failed to count chat sessions: %w", err)
	}

	if err := s.db.Model(&model.ChatMessage{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.tenant_id = ?", tenantID).
		Count(&stats.TotalChatMessages).Error; err != nil {
		return nil, fmt.Errorf("failed to count chat messages: %w", err)
	}

	// Spend breakdown by usage kind
	var spend []struct {
		Kind         model.UsageKind
		Cost         float64
		InputTokens  int64
		OutputTokens int64
	}
	if err := s.db.Model(&model.UsageRecord{}).
		Select("kind, COALESCE(SUM(cost), 0) as cost, COALESCE(SUM(input_tokens), 0) as input_tokens, COALESCE(SUM(output_tokens), 0) as output_tokens").
		Where("tenant_id = ?", tenantID).
		Group("kind").
		Scan(&spend).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate spend: %w", err)
	}
	for _, row := range spend {
		stats.TotalCost += row.Cost
		stats.TotalInputTokens += row.InputTokens
		stats.TotalOutputTokens += row.OutputTokens
		switch row.Kind {
		case model.UsageKindTranscription:
			stats.TranscriptionCost = row.Cost
		case model.UsageKindCompletion:
			stats.CompletionCost = row.Cost
		case model.UsageKindEmbedding:
			stats.EmbeddingCost = row.Cost
		}
	}

	// Sessions active in the last day
	dayAgo := time.Now().Add(-24 * time.Hour)
	if err := s.db.Model(&model.ChatSession{}).
		Where("tenant_id = ? AND last_message_at >= ?", tenantID, dayAgo).
		Count(&stats.ActiveSessions24h).Error; err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	return stats, nil
}

// SessionStats represents engagement metrics for one chat session
type SessionStats struct {
	SessionID       uint    `json:"session_id"`
	MessageCount    int64   `json:"message_count"`
	DurationMinutes float64 `json:"duration_minutes"`
	InputTokens     int64   `json:"input_tokens"`
	OutputTokens    int64   `json:"output_tokens"`
	Cost            float64 `json:"cost"`
}

// GetSessionStats retrieves engagement metrics for a session
func (s *AnalyticsService) GetSessionStats(ctx context.Context, tenantID, sessionID uint) (*SessionStats, error) {
	var session model.ChatSession
	if err := s.db.Where("id = ? AND tenant_id = ?", sessionID, tenantID).
		First(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	stats := &SessionStats{SessionID: sessionID}

	if err := s.db.Model(&model.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&stats.MessageCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	// Session duration runs from the first message to the last
	var span struct {
		First *time.Time
		Last  *time.Time
	}
	if err := s.db.Model(&model.ChatMessage{}).
		Select("MIN(created_at) as first, MAX(created_at) as last").
		Where("session_id = ?", sessionID).
		Scan(&span).Error; err != nil {
		return nil, fmt.Errorf("failed to compute session span: %w", err)
	}
	stats.DurationMinutes = SessionDurationMinutes(span.First, span.Last)

	var tokensResult struct {
		Input  int64
		Output int64
		Cost   float64
	}
	if err := s.db.Model(&model.UsageRecord{}).
		Select("COALESCE(SUM(input_tokens), 0) as input, COALESCE(SUM(output_tokens), 0) as output, COALESCE(SUM(cost), 0) as cost").
		Where("session_id = ?", sessionID).
		Scan(&tokensResult).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate session usage: %w", err)
	}
	stats.InputTokens = tokensResult.Input
	stats.OutputTokens = tokensResult.Output
	stats.Cost = tokensResult.Cost

	return stats, nil
}

// SessionDurationMinutes measures the span between a session's first and last
// message. A session with fewer than two messages has no span.
func SessionDurationMinutes(first, last *time.Time) float64 {
	if first == nil || last == nil {
		return 0
	}
	return last.Sub(*first).Minutes()
}

// VideoReferenceCount pairs a video with how often assistant answers cited it
type VideoReferenceCount struct {
	VideoID    uint   `json:"video_id"`
	VideoTitle string `json:"video_title"`
	Count      int    `json:"count"`
}

// GetMostReferencedVideos ranks the tenant's videos by citation frequency in
// assistant answers. Citations live inside each message's JSONB references, so
// the tally runs over the decoded rows rather than in SQL.
func (s *AnalyticsService) GetMostReferencedVideos(ctx context.Context, tenantID uint, since time.Time, limit int) ([]VideoReferenceCount, error) {
	var messages []model.ChatMessage
	err := s.db.WithContext(ctx).
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.tenant_id = ? AND chat_messages.role = ? AND chat_messages.created_at >= ?",
			tenantID, model.MessageRoleAssistant, since).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load assistant messages: %w", err)
	}

	return TallyVideoReferences(messages, limit), nil
}

// TallyVideoReferences counts citations per video across assistant messages,
// most-cited first with video id as the deterministic tie-break
func TallyVideoReferences(messages []model.ChatMessage, limit int) []VideoReferenceCount {
	counts := make(map[uint]*VideoReferenceCount)
	for _, msg := range messages {
		for _, ref := range msg.VideoRefs {
			entry, ok := counts[ref.VideoID]
			if !ok {
				entry = &VideoReferenceCount{VideoID: ref.VideoID, VideoTitle: ref.VideoTitle}
				counts[ref.VideoID] = entry
			}
			entry.Count++
		}
	}

	ranked := make([]VideoReferenceCount, 0, len(counts))
	for _, entry := range counts {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].VideoID < ranked[j].VideoID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// TopicCount pairs a keyword with its frequency across user questions
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// GetTopTopics extracts the most frequent keywords from the tenant's user
// questions in the window
func (s *AnalyticsService) GetTopTopics(ctx context.Context, tenantID uint, since time.Time, limit int) ([]TopicCount, error) {
	var questions []string
	err := s.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.tenant_id = ? AND chat_messages.role = ? AND chat_messages.created_at >= ?",
			tenantID, model.MessageRoleUser, since).
		Pluck("chat_messages.content", &questions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	return ExtractTopics(questions, limit), nil
}

// stopWords are skipped during topic extraction
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "do": true, "does": true, "did": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "how": true, "can": true, "could": true, "would": true,
	"should": true, "i": true, "you": true, "it": true, "this": true,
	"that": true, "these": true, "those": true, "my": true, "your": true,
	"in": true, "on": true, "at": true, "of": true, "for": true, "to": true,
	"from": true, "with": true, "about": true, "and": true, "or": true,
	"not": true, "me": true, "we": true, "us": true, "they": true,
	"there": true, "here": true, "please": true, "explain": true, "tell": true,
}

// ExtractTopics tallies non-stop-word keywords across questions, most frequent
// first with alphabetical tie-break. Words shorter than three letters are
// skipped along with stop words.
func ExtractTopics(questions []string, limit int) []TopicCount {
	counts := make(map[string]int)
	for _, question := range questions {
		for _, raw := range strings.Fields(strings.ToLower(question)) {
			word := strings.Trim(raw, ".,!?;:\"'()[]")
			if len(word) < 3 || stopWords[word] {
				continue
			}
			counts[word]++
		}
	}

	topics := make([]TopicCount, 0, len(counts))
	for word, count := range counts {
		topics = append(topics, TopicCount{Topic: word, Count: count})
	}
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Count != topics[j].Count {
			return topics[i].Count > topics[j].Count
		}
		return topics[i].Topic < topics[j].Topic
	})

	if limit > 0 && len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}

// HourCount is one bucket of the peak-hour histogram
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// GetPeakUsageHours retrieves the message-per-hour-of-day histogram for a
// tenant over the window
func (s *AnalyticsService) GetPeakUsageHours(ctx context.Context, tenantID uint, since time.Time) ([]HourCount, error) {
	var times []time.Time
	err := s.db.WithContext(ctx).Model(&model.ChatMessage{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.tenant_id = ? AND chat_messages.created_at >= ?", tenantID, since).
		Pluck("chat_messages.created_at", &times).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load message times: %w", err)
	}

	return BuildHourHistogram(times), nil
}

// BuildHourHistogram buckets timestamps into 24 hour-of-day counters
func BuildHourHistogram(times []time.Time) []HourCount {
	histogram := make([]HourCount, 24)
	for i := range histogram {
		histogram[i].Hour = i
	}
	for _, t := range times {
		histogram[t.Hour()].Count++
	}
	return histogram
}

// TimeSeriesPoint represents one day of spend
type TimeSeriesPoint struct {
	Date string  `json:"date"`
	Cost float64 `json:"cost"`
}

// GetSpendTimeSeries retrieves daily spend for a tenant over the last N days
func (s *AnalyticsService) GetSpendTimeSeries(ctx context.Context, tenantID uint, days int) ([]TimeSeriesPoint, error) {
	startDate := time.Now().AddDate(0, 0, -days).Truncate(24 * time.Hour)

	var results []TimeSeriesPoint
	if err := s.db.Model(&model.UsageRecord{}).
		Select("DATE(created_at) as date, COALESCE(SUM(cost), 0) as cost").
		Where("tenant_id = ? AND created_at >= ?", tenantID, startDate).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch spend time series: %w", err)
	}

	return results, nil
}
