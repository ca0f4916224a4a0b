// Package store persists the diagnosis server's data: analysed-image records,
// chat conversations, and the consult log.
//
// Everything a user owns lives under one partition (USER#{userId}), so a
// listing is a single query. Chat messages live under their conversation's
// partition (CHAT#{sessionId}) with a pointer item in the owner's partition.
// Requests without a user are filed under AnonymousUser.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fpang/medassist/internal/chatapi"
	"github.com/fpang/medassist/internal/medapi"
)

// AnonymousUser owns data submitted without a user ID.
const AnonymousUser = "anonymous"

// ChatTTL is how long an idle conversation is kept. Records and consult
// entries do not expire.
const ChatTTL = 30 * 24 * time.Hour

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("not found")

// RecordStore keeps analysed-image records. Records are scoped to their owner:
// a record is only visible under the user ID it was stored with.
type RecordStore interface {
	PutRecord(ctx context.Context, rec *medapi.Record) error
	// GetRecord returns ErrNotFound when the owner has no such record.
	GetRecord(ctx context.Context, userID, id string) (*medapi.Record, error)
	// ListRecords returns the owner's records, newest first.
	ListRecords(ctx context.Context, userID string) ([]medapi.Record, error)
	// DeleteRecord returns ErrNotFound when the owner has no such record.
	DeleteRecord(ctx context.Context, userID, id string) error
}

// ChatStore keeps chat conversations.
type ChatStore interface {
	// GetChat returns the conversation with its messages in order, or
	// ErrNotFound.
	GetChat(ctx context.Context, sessionID string) (*medapi.ChatSession, error)
	// AppendMessages creates the conversation if needed, appends msgs and
	// bumps UpdatedAt. The session's metadata (user, record, language) is
	// taken from chat; chat.Messages is ignored.
	AppendMessages(ctx context.Context, chat *medapi.ChatSession, msgs ...medapi.ChatMessage) error
	// ListChats returns the owner's conversations, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]medapi.ChatSession, error)
	// DeleteChat removes a conversation and its messages, or returns ErrNotFound.
	DeleteChat(ctx context.Context, sessionID string) error
}

// ConsultStore keeps the flat consult log used by the analyze_and_chat flow.
type ConsultStore interface {
	PutConsult(ctx context.Context, rec *chatapi.ChatRecord) error
	// ListConsults returns the owner's entries, oldest first.
	ListConsults(ctx context.Context, userID string) ([]chatapi.ChatRecord, error)
}

// Store is everything the server persists.
type Store interface {
	RecordStore
	ChatStore
	ConsultStore
}

// Owner normalises a user ID for storage.
func Owner(userID string) string {
	if userID == "" {
		return AnonymousUser
	}
	return userID
}
