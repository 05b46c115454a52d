package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/model"
	"github.com/sahilchouksey/lecture-chat-api/services/openai"
	"github.com/sahilchouksey/lecture-chat-api/services/transcript"
)

const (
	// historyWindow is how many prior messages accompany each completion call
	historyWindow = 10

	// snippetLimit truncates citation snippets
	snippetLimit = 200

	// titleCacheTTL is the negative-cache window for failed title generation,
	// and the single-flight hold while one is in progress
	titleCacheTTL = 10 * time.Minute

	// noMatchAnswer is returned without a completion call when retrieval finds
	// nothing above the similarity floor
	noMatchAnswer = "I couldn't find anything in your video library related to that question. " +
		"Try rephrasing it, or check whether the relevant lecture has finished processing."
)

const chatSystemPrompt = `You are a study assistant answering questions about a library of lecture videos.
Answer using ONLY the numbered transcript excerpts provided. When a statement is
supported by an excerpt, append its marker, e.g. [1]. If the excerpts do not
contain the answer, say so plainly instead of guessing.`

// ErrSessionNotFound is returned when the caller references a session outside
// their tenant (or one that does not exist).
var ErrSessionNotFound = errors.New("chat session not found")

// ErrSessionArchived is returned when the caller writes to an archived session
var ErrSessionArchived = errors.New("chat session is archived")

// CompletionProvider is the slice of the OpenAI client the chat service needs
type CompletionProvider interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)
}

// Cache is the small key-value surface used for title single-flighting,
// backed by Redis in production
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ChatConfig tunes the chat engine
type ChatConfig struct {
	SessionFreshness time.Duration // reuse window for implicit sessions
}

// DefaultChatConfig returns the default chat configuration
func DefaultChatConfig() ChatConfig {
	return ChatConfig{SessionFreshness: 24 * time.Hour}
}

// ChatRequest is one question from a requester
type ChatRequest struct {
	TenantID    uint
	RequesterID uint
	SessionID   *uint // explicit session; nil means find-or-create
	VideoID     *uint // anchor video for implicit sessions
	Question    string
	Tier        model.ModelTier
}

// ChatResponse carries the persisted turn back to the caller
type ChatResponse struct {
	Session          *model.ChatSession `json:"session"`
	UserMessage      *model.ChatMessage `json:"user_message"`
	AssistantMessage *model.ChatMessage `json:"assistant_message"`
}

// ChatService answers questions against the tenant's video library, grounding
// every answer in retrieved transcript chunks and citing video timestamps.
type ChatService struct {
	db       *gorm.DB
	search   *SearchService
	provider CompletionProvider
	cache    Cache
	config   ChatConfig

	// sessionLocks serializes turns within one session so interleaved requests
	// cannot corrupt message ordering. A fixed stripe set keeps memory bounded;
	// distinct sessions sharing a stripe merely serialize against each other.
	sessionLocks [sessionLockStripes]sync.Mutex
}

// sessionLockStripes sizes the keyed-mutex pool for per-session serialization
const sessionLockStripes = 64

// NewChatService creates a new chat service
func NewChatService(db *gorm.DB, search *SearchService, provider CompletionProvider, cache Cache, config ChatConfig) *ChatService {
	if config.SessionFreshness <= 0 {
		config.SessionFreshness = DefaultChatConfig().SessionFreshness
	}
	return &ChatService{
		db:       db,
		search:   search,
		provider: provider,
		cache:    cache,
		config:   config,
	}
}

// Chat runs one question-answer turn: resolve the session, retrieve grounding
// chunks, call the completion model, and persist both messages
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errors.New("question must not be empty")
	}
	if req.Tier == "" {
		req.Tier = model.TierStandard
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	lock := s.lockFor(session.ID)
	lock.Lock()
	defer lock.Unlock()

	results, queryTokens, err := s.search.Search(ctx, req.TenantID, session.AnchorVideoID, question)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	if queryTokens > 0 {
		usage := NewEmbeddingUsage(queryTokens)
		usage.TenantID = req.TenantID
		usage.RequesterID = req.RequesterID
		usage.SessionID = &session.ID
		if err := s.db.Create(&usage).Error; err != nil {
			log.Printf("Failed to record query embedding usage: %v", err)
		}
	}

	userMessage := &model.ChatMessage{
		SessionID: session.ID,
		Role:      model.MessageRoleUser,
		Content:   question,
	}
	if err := s.db.WithContext(ctx).Create(userMessage).Error; err != nil {
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	var assistantMessage *model.ChatMessage
	if len(results) == 0 {
		assistantMessage = &model.ChatMessage{
			SessionID: session.ID,
			Role:      model.MessageRoleAssistant,
			Content:   noMatchAnswer,
			VideoRefs: model.VideoReferences{},
		}
	} else {
		assistantMessage, err = s.answer(ctx, session, userMessage.ID, question, results, req.Tier)
		if err != nil {
			return nil, err
		}
		usage := NewCompletionUsage(req.Tier, assistantMessage.InputTokens, assistantMessage.OutputTokens)
		usage.TenantID = req.TenantID
		usage.RequesterID = req.RequesterID
		usage.SessionID = &session.ID
		defer func() {
			usage.MessageID = &assistantMessage.ID
			if err := s.db.Create(&usage).Error; err != nil {
				log.Printf("Failed to record completion usage: %v", err)
			}
		}()
	}

	if err := s.db.WithContext(ctx).Create(assistantMessage).Error; err != nil {
		return nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	now := time.Now()
	session.MessageCount += 2
	session.LastMessageAt = &now
	if err := s.db.Model(session).Updates(map[string]interface{}{
		"message_count":   session.MessageCount,
		"last_message_at": now,
	}).Error; err != nil {
		log.Printf("Failed to update session %d counters: %v", session.ID, err)
	}

	if session.Title == "" {
		go s.generateTitle(session.ID, question)
	}

	return &ChatResponse{
		Session:          session,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
	}, nil
}

// resolveSession loads the explicit session or finds/creates an implicit one.
// Implicit resolution reuses the requester's most recent unarchived session for
// the same anchor when its last activity is inside the freshness window.
func (s *ChatService) resolveSession(ctx context.Context, req ChatRequest) (*model.ChatSession, error) {
	if req.SessionID != nil {
		var session model.ChatSession
		err := s.db.WithContext(ctx).
			Where("id = ? AND tenant_id = ? AND requester_id = ?", *req.SessionID, req.TenantID, req.RequesterID).
			First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if session.Archived {
			return nil, ErrSessionArchived
		}
		return &session, nil
	}

	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND requester_id = ? AND archived = false", req.TenantID, req.RequesterID)
	if req.VideoID != nil {
		query = query.Where("anchor_video_id = ?", *req.VideoID)
	} else {
		query = query.Where("anchor_video_id IS NULL")
	}

	var recent model.ChatSession
	err := query.Order("COALESCE(last_message_at, created_at) desc").First(&recent).Error
	if err == nil && recent.FreshWithin(s.config.SessionFreshness, time.Now()) {
		return &recent, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up recent session: %w", err)
	}

	session := model.ChatSession{
		TenantID:      req.TenantID,
		RequesterID:   req.RequesterID,
		AnchorVideoID: req.VideoID,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &session, nil
}

// answer builds the grounded prompt, calls the completion model, and converts
// cited markers into structured video references
func (s *ChatService) answer(ctx context.Context, session *model.ChatSession, questionID uint, question string, results []SearchResult, tier model.ModelTier) (*model.ChatMessage, error) {
	refs, contextBlock, err := s.buildContext(ctx, results)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatMessage{
		{Role: "system", Content: chatSystemPrompt},
	}

	// The question itself rides on the final context-bearing turn, so the
	// just-persisted user message is excluded from history
	var history []model.ChatMessage
	err = s.db.WithContext(ctx).
		Where("session_id = ? AND id <> ?", session.ID, questionID).
		Order("created_at desc").Limit(historyWindow).
		Find(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, openai.ChatMessage{
			Role:    string(history[i].Role),
			Content: history[i].Content,
		})
	}

	messages = append(messages, openai.ChatMessage{
		Role:    "user",
		Content: contextBlock + "\n\nQuestion: " + question,
	})

	resp, err := s.provider.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       CompletionModel(tier),
		Messages:    messages,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	return &model.ChatMessage{
		SessionID:    session.ID,
		Role:         model.MessageRoleAssistant,
		Content:      resp.Content,
		VideoRefs:    ParseCitations(resp.Content, refs),
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		ModelTier:    tier,
	}, nil
}

// buildContext renders the retrieved chunks as numbered excerpts and prepares
// the citation candidates aligned with those numbers
func (s *ChatService) buildContext(ctx context.Context, results []SearchResult) ([]model.VideoReference, string, error) {
	videoIDs := make([]uint, 0, len(results))
	seen := make(map[uint]bool)
	for _, r := range results {
		if !seen[r.Chunk.VideoID] {
			seen[r.Chunk.VideoID] = true
			videoIDs = append(videoIDs, r.Chunk.VideoID)
		}
	}

	titles := make(map[uint]string, len(videoIDs))
	var videos []model.Video
	if err := s.db.WithContext(ctx).Where("id IN ?", videoIDs).Find(&videos).Error; err != nil {
		return nil, "", fmt.Errorf("failed to load cited videos: %w", err)
	}
	for _, v := range videos {
		titles[v.ID] = v.Title
	}

	refs := make([]model.VideoReference, len(results))
	var sb strings.Builder
	sb.WriteString("Transcript excerpts:\n")
	for i, r := range results {
		stamp := transcript.FormatTimestamp(r.Chunk.StartTime)
		refs[i] = model.VideoReference{
			VideoID:    r.Chunk.VideoID,
			VideoTitle: titles[r.Chunk.VideoID],
			Seconds:    r.Chunk.StartTime,
			Timestamp:  stamp,
			Snippet:    truncateSnippet(r.Chunk.Text, snippetLimit),
		}
		fmt.Fprintf(&sb, "\n[%d] %q at %s:\n%s\n", i+1, titles[r.Chunk.VideoID], stamp, r.Chunk.Text)
	}
	return refs, sb.String(), nil
}

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// ParseCitations maps [n] markers in the answer to the excerpt references they
// point at. References are deduplicated and kept in first-appearance order;
// out-of-range markers are ignored.
func ParseCitations(answer string, refs []model.VideoReference) model.VideoReferences {
	cited := model.VideoReferences{}
	seen := make(map[int]bool)
	for _, match := range citationMarker.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(refs) || seen[n] {
			continue
		}
		seen[n] = true
		cited = append(cited, refs[n-1])
	}
	return cited
}

// generateTitle summarizes the first question into a short session title.
// A cache key single-flights concurrent attempts and negative-caches failures
// so a flaky provider cannot trigger a title storm.
func (s *ChatService) generateTitle(sessionID uint, firstQuestion string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := fmt.Sprintf("chat:title:%d", sessionID)
	if s.cache != nil {
		if state, err := s.cache.Get(ctx, key); err == nil && state != "" {
			return
		}
		if err := s.cache.Set(ctx, key, "pending", titleCacheTTL); err != nil {
			log.Printf("Title cache set failed for session %d: %v", sessionID, err)
		}
	}

	resp, err := s.provider.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.ModelStandard,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: "Produce a title of at most six words for a chat that starts with the following question. Reply with the title only."},
			{Role: "user", Content: firstQuestion},
		},
		MaxTokens:   20,
		Temperature: 0.5,
	})
	if err != nil {
		log.Printf("Title generation failed for session %d: %v", sessionID, err)
		return
	}

	title := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	if title == "" {
		return
	}
	if err := s.db.Model(&model.ChatSession{}).
		Where("id = ? AND (title = '' OR title IS NULL)", sessionID).
		Update("title", title).Error; err != nil {
		log.Printf("Failed to save title for session %d: %v", sessionID, err)
	}
}

// BackfillTitles generates titles for sessions that have messages but never
// got one (e.g. the async generation goroutine died with the process). Returns
// how many sessions were attempted.
func (s *ChatService) BackfillTitles(ctx context.Context, limit int) (int, error) {
	var sessions []model.ChatSession
	err := s.db.WithContext(ctx).
		Where("(title = '' OR title IS NULL) AND message_count > 0").
		Order("created_at asc").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find untitled sessions: %w", err)
	}

	attempted := 0
	for _, session := range sessions {
		var first model.ChatMessage
		err := s.db.WithContext(ctx).
			Where("session_id = ? AND role = ?", session.ID, model.MessageRoleUser).
			Order("created_at asc").
			First(&first).Error
		if err != nil {
			continue
		}
		s.generateTitle(session.ID, first.Content)
		attempted++
	}
	return attempted, nil
}

// History returns a session's messages in chronological order
func (s *ChatService) History(ctx context.Context, tenantID, requesterID, sessionID uint) (*model.ChatSession, []model.ChatMessage, error) {
	var session model.ChatSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND requester_id = ?", sessionID, tenantID, requesterID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, fmt.Errorf("failed to load session: %w", err)
	}

	var messages []model.ChatMessage
	err = s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return &session, messages, nil
}

// ArchiveSession marks a session read-only
func (s *ChatService) ArchiveSession(ctx context.Context, tenantID, requesterID, sessionID uint) error {
	result := s.db.WithContext(ctx).Model(&model.ChatSession{}).
		Where("id = ? AND tenant_id = ? AND requester_id = ?", sessionID, tenantID, requesterID).
		Update("archived", true)
	if result.Error != nil {
		return fmt.Errorf("failed to archive session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *ChatService) lockFor(sessionID uint) *sync.Mutex {
	return &s.sessionLocks[sessionID%sessionLockStripes]
}

func truncateSnippet(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
