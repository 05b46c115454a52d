package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sahilchouksey/lecture-chat-api/model"
)

// ExportFormat selects the export rendering
type ExportFormat string

const (
	ExportFormatJSON     ExportFormat = "json"
	ExportFormatMarkdown ExportFormat = "markdown"
)

// ExportService renders chat sessions into portable documents
type ExportService struct {
	db *gorm.DB
}

// NewExportService creates a new export service
func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{db: db}
}

// sessionExport is the JSON export shape
type sessionExport struct {
	SessionID  uint             `json:"session_id"`
	Title      string           `json:"title"`
	CreatedAt  time.Time        `json:"created_at"`
	ExportedAt time.Time        `json:"exported_at"`
	Messages   []messageExport  `json:"messages"`
}

type messageExport struct {
	Role       model.MessageRole     `json:"role"`
	Content    string                `json:"content"`
	CreatedAt  time.Time             `json:"created_at"`
	References model.VideoReferences `json:"video_references,omitempty"`
}

// ExportSession renders a session's full conversation, including timestamp
// citations, in the requested format. Scoping matches History: the requester
// only ever exports their own sessions.
func (s *ExportService) ExportSession(ctx context.Context, tenantID, requesterID, sessionID uint, format ExportFormat) ([]byte, string, error) {
	var session model.ChatSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND requester_id = ?", sessionID, tenantID, requesterID).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, "", ErrSessionNotFound
		}
		return nil, "", fmt.Errorf("failed to load session: %w", err)
	}

	var messages []model.ChatMessage
	err = s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Find(&messages).Error
	if err != nil {
		return nil, "", fmt.Errorf("failed to load messages: %w", err)
	}

	switch format {
	case ExportFormatMarkdown:
		return renderMarkdown(&session, messages), "text/markdown", nil
	case ExportFormatJSON, "":
		data, err := renderJSON(&session, messages)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
	return nil, "", fmt.Errorf("unsupported export format %q", format)
}

func renderJSON(session *model.ChatSession, messages []model.ChatMessage) ([]byte, error) {
	export := sessionExport{
		SessionID:  session.ID,
		Title:      session.Title,
		CreatedAt:  session.CreatedAt,
		ExportedAt: time.Now(),
		Messages:   make([]messageExport, len(messages)),
	}
	for i, msg := range messages {
		export.Messages[i] = messageExport{
			Role:       msg.Role,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
			References: msg.VideoRefs,
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}
	return data, nil
}

func renderMarkdown(session *model.ChatSession, messages []model.ChatMessage) []byte {
	var sb strings.Builder

	title := session.Title
	if title == "" {
		title = fmt.Sprintf("Chat session %d", session.ID)
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "_Started %s_\n", session.CreatedAt.Format("2006-01-02 15:04"))

	for _, msg := range messages {
		switch msg.Role {
		case model.MessageRoleUser:
			sb.WriteString("\n## You\n\n")
		case model.MessageRoleAssistant:
			sb.WriteString("\n## Assistant\n\n")
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if len(msg.VideoRefs) > 0 {
			sb.WriteString("\n**Sources:**\n\n")
			for _, ref := range msg.VideoRefs {
				fmt.Fprintf(&sb, "- %s at %s\n", ref.VideoTitle, ref.Timestamp)
			}
		}
	}
	return []byte(sb.String())
}
