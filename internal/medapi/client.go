// Package medapi is the client for the diagnosis backend: image analysis,
// stored records, and the chat assistant.
package medapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

// Endpoint paths.
const (
	PathChat            = "/chat"
	PathChatHistory     = "/chat/history"
	PathAnalyze         = "/analyze"
	PathAnalyzeAndStore = "/analyze-and-store"
	PathRecords         = "/records"
)

// UploadField is the multipart field carrying the image.
const UploadField = "file"

// Client calls the diagnosis backend on behalf of one session.
type Client struct {
	t       *transport.Client
	session *session.Session
}

// New creates a Client. sess may be nil or signed out; calls that need
// authorization then fail with AUTH_REQUIRED without reaching the network.
func New(t *transport.Client, sess *session.Session) *Client {
	return &Client{t: t, session: sess}
}

// Analyze uploads the image at imagePath for diagnosis without storing it.
func (c *Client) Analyze(ctx context.Context, imagePath string) transport.Result[Diagnosis] {
	return transport.Call[Diagnosis](ctx, c.t, transport.Request{
		Method:  http.MethodPost,
		Path:    PathAnalyze,
		Files:   []transport.FilePart{{Field: UploadField, Path: imagePath}},
		Session: c.session,
		Class:   transport.ClassAnalysis,
	})
}

// AnalyzeAndStore uploads the image, diagnoses it, and stores the result as a
// record owned by the signed-in user.
func (c *Client) AnalyzeAndStore(ctx context.Context, imagePath string) transport.Result[Record] {
	return transport.Call[Record](ctx, c.t, transport.Request{
		Method:  http.MethodPost,
		Path:    PathAnalyzeAndStore,
		Fields:  c.userFields(),
		Files:   []transport.FilePart{{Field: UploadField, Path: imagePath}},
		Auth:    true,
		Session: c.session,
		Class:   transport.ClassAnalysis,
	})
}

// Records lists the signed-in user's stored records, newest first.
func (c *Client) Records(ctx context.Context) transport.Result[[]Record] {
	res := transport.Call[RecordList](ctx, c.t, transport.Request{
		Path:    PathRecords,
		Query:   c.userQuery(),
		Auth:    true,
		Session: c.session,
	})
	return transport.Map(res, func(l RecordList) []Record { return l.Records })
}

// Record fetches one stored record.
func (c *Client) Record(ctx context.Context, id string) transport.Result[Record] {
	return transport.Call[Record](ctx, c.t, transport.Request{
		Path:    PathRecords + "/" + url.PathEscape(id),
		Query:   c.userQuery(),
		Auth:    true,
		Session: c.session,
	})
}

// DeleteRecord removes a stored record.
func (c *Client) DeleteRecord(ctx context.Context, id string) transport.Result[Deleted] {
	return transport.Call[Deleted](ctx, c.t, transport.Request{
		Method:  http.MethodDelete,
		Path:    PathRecords + "/" + url.PathEscape(id),
		Query:   c.userQuery(),
		Auth:    true,
		Session: c.session,
	})
}

// Chat sends one message to the assistant. The session's language and user
// are filled in when the request leaves them empty.
func (c *Client) Chat(ctx context.Context, req ChatRequest) transport.Result[ChatResponse] {
	if req.Language == "" && c.session != nil {
		req.Language = c.session.Language
	}
	if req.UserID == "" {
		req.UserID = c.session.UserID()
	}
	return transport.Call[ChatResponse](ctx, c.t, transport.Request{
		Method:  http.MethodPost,
		Path:    PathChat,
		JSON:    req,
		Session: c.session,
		Class:   transport.ClassAnalysis,
	})
}

// History returns the signed-in user's conversations. A non-empty sessionID
// restricts the result to that conversation.
func (c *Client) History(ctx context.Context, sessionID string) transport.Result[[]ChatSession] {
	q := c.userQuery()
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	res := transport.Call[ChatHistory](ctx, c.t, transport.Request{
		Path:    PathChatHistory,
		Query:   q,
		Auth:    true,
		Session: c.session,
	})
	return transport.Map(res, func(h ChatHistory) []ChatSession { return h.Sessions })
}

// DeleteHistory removes one conversation.
func (c *Client) DeleteHistory(ctx context.Context, sessionID string) transport.Result[Deleted] {
	return transport.Call[Deleted](ctx, c.t, transport.Request{
		Method:  http.MethodDelete,
		Path:    PathChatHistory + "/" + url.PathEscape(sessionID),
		Query:   c.userQuery(),
		Auth:    true,
		Session: c.session,
	})
}

func (c *Client) userQuery() url.Values {
	q := url.Values{}
	if id := c.session.UserID(); id != "" {
		q.Set("user_id", id)
	}
	return q
}

func (c *Client) userFields() map[string]string {
	fields := map[string]string{}
	if id := c.session.UserID(); id != "" {
		fields["user_id"] = id
	}
	return fields
}
