package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fpang/medassist/internal/chatapi"
	"github.com/fpang/medassist/internal/medapi"
)

// MemoryStore keeps everything in process memory. It backs local runs and
// tests; data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]map[string]medapi.Record // owner -> id -> record
	chats    map[string]*medapi.ChatSession
	consults map[string][]chatapi.ChatRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]map[string]medapi.Record),
		chats:    make(map[string]*medapi.ChatSession),
		consults: make(map[string][]chatapi.ChatRecord),
	}
}

func (m *MemoryStore) PutRecord(_ context.Context, rec *medapi.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	owner := Owner(rec.UserID)
	if m.records[owner] == nil {
		m.records[owner] = make(map[string]medapi.Record)
	}
	m.records[owner][rec.ID] = *rec
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, userID, id string) (*medapi.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[Owner(userID)][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) ListRecords(_ context.Context, userID string) ([]medapi.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]medapi.Record, 0, len(m.records[Owner(userID)]))
	for _, rec := range m.records[Owner(userID)] {
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := m.records[Owner(userID)]
	if _, ok := owned[id]; !ok {
		return ErrNotFound
	}
	delete(owned, id)
	return nil
}

func (m *MemoryStore) GetChat(_ context.Context, sessionID string) (*medapi.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyChat(chat), nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, chat *medapi.ChatSession, msgs ...medapi.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.chats[chat.SessionID]
	if !ok {
		existing = &medapi.ChatSession{
			SessionID: chat.SessionID,
			UserID:    Owner(chat.UserID),
			RecordID:  chat.RecordID,
			Language:  chat.Language,
			Messages:  []medapi.ChatMessage{},
		}
		m.chats[chat.SessionID] = existing
	}
	existing.RecordID = chat.RecordID
	existing.Language = chat.Language
	existing.Messages = append(existing.Messages, msgs...)
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) ListChats(_ context.Context, userID string) ([]medapi.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner := Owner(userID)
	out := []medapi.ChatSession{}
	for _, chat := range m.chats {
		if chat.UserID == owner {
			out = append(out, *copyChat(chat))
		}
	}
	sortChats(out)
	return out, nil
}

func (m *MemoryStore) DeleteChat(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.chats, sessionID)
	return nil
}

func (m *MemoryStore) PutConsult(_ context.Context, rec *chatapi.ChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	owner := Owner(rec.UserID)
	m.consults[owner] = append(m.consults[owner], *rec)
	return nil
}

func (m *MemoryStore) ListConsults(_ context.Context, userID string) ([]chatapi.ChatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.consults[Owner(userID)]
	out := make([]chatapi.ChatRecord, len(entries))
	copy(out, entries)
	return out, nil
}

func copyChat(c *medapi.ChatSession) *medapi.ChatSession {
	cp := *c
	cp.Messages = append([]medapi.ChatMessage(nil), c.Messages...)
	if cp.Messages == nil {
		cp.Messages = []medapi.ChatMessage{}
	}
	return &cp
}

func sortRecords(recs []medapi.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID > recs[j].ID
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}

func sortChats(chats []medapi.ChatSession) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].SessionID < chats[j].SessionID
		}
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}
