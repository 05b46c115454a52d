package chat

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/sahilchouksey/lecture-chat-api/services"
)

// Internal chat failures must reach the learner as a generic message, never as
// raw service or provider error text.
func TestSendMessageHidesInternalErrors(t *testing.T) {
	app := fiber.New()
	handler := NewChatHandler(nil, services.NewChatService(nil, nil, nil, nil, services.ChatConfig{}), nil)
	app.Post("/chat", handler.SendMessage)

	// Whitespace survives validation but fails inside the service, exercising
	// the generic error branch
	req := httptest.NewRequest("POST", "/chat", strings.NewReader(`{"question":"   "}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.Contains(string(body), "must not be empty") {
		t.Error("raw service error text leaked to the client")
	}
	if !strings.Contains(string(body), "Something went wrong") {
		t.Errorf("expected generic fallback message, got %s", body)
	}
}
