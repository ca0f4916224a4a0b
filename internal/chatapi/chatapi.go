// Package chatapi is the client for the consult backend, a second service
// that pairs each image analysis with a chat reply and keeps a flat per-user
// chat log. It is independent of medapi and has its own base URL.
package chatapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

// Endpoint paths. This service's routes are relative to its base URL.
const (
	PathAnalyzeAndChat = "analyze_and_chat"
	PathChats          = "chats"
)

// ChatRecord is one entry of the consult log.
type ChatRecord struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Message   string            `json:"message"`
	Reply     string            `json:"reply"`
	Language  string            `json:"language,omitempty"`
	Diagnosis *medapi.Diagnosis `json:"diagnosis,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewChat is the body of POST chats.
type NewChat struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
}

// ChatList is the body of GET chats/{userId}.
type ChatList struct {
	Chats []ChatRecord `json:"chats"`
}

// Client calls the consult backend.
type Client struct {
	t       *transport.Client
	session *session.Session
}

// New creates a Client for sess.
func New(t *transport.Client, sess *session.Session) *Client {
	return &Client{t: t, session: sess}
}

// AnalyzeAndChat uploads an image with an optional question and returns the
// stored log entry with both the diagnosis and the reply.
func (c *Client) AnalyzeAndChat(ctx context.Context, imagePath, message string) transport.Result[ChatRecord] {
	fields := map[string]string{"user_id": c.session.UserID()}
	if message != "" {
		fields["message"] = message
	}
	if c.session != nil && c.session.Language != "" {
		fields["language"] = c.session.Language
	}
	return transport.Call[ChatRecord](ctx, c.t, transport.Request{
		Method:  http.MethodPost,
		Path:    PathAnalyzeAndChat,
		Fields:  fields,
		Files:   []transport.FilePart{{Field: medapi.UploadField, Path: imagePath}},
		Auth:    true,
		Session: c.session,
		Class:   transport.ClassAnalysis,
	})
}

// CreateChat posts a text-only message to the consult log.
func (c *Client) CreateChat(ctx context.Context, message string) transport.Result[ChatRecord] {
	body := NewChat{UserID: c.session.UserID(), Message: message}
	if c.session != nil {
		body.Language = c.session.Language
	}
	return transport.Call[ChatRecord](ctx, c.t, transport.Request{
		Method:  http.MethodPost,
		Path:    PathChats,
		JSON:    body,
		Auth:    true,
		Session: c.session,
		Class:   transport.ClassAnalysis,
	})
}

// ListChats returns the consult log for userID, oldest first. An empty
// userID means the signed-in user.
func (c *Client) ListChats(ctx context.Context, userID string) transport.Result[[]ChatRecord] {
	if userID == "" {
		userID = c.session.UserID()
	}
	res := transport.Call[ChatList](ctx, c.t, transport.Request{
		Path:    PathChats + "/" + url.PathEscape(userID),
		Auth:    true,
		Session: c.session,
	})
	return transport.Map(res, func(l ChatList) []ChatRecord { return l.Chats })
}
