package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/diagnosis"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/store"
)

const (
	defaultLanguage = "en"
	chatNotFound    = "Conversation not found"
)

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req medapi.ChatRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		httpError(w, r, apiErr)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		httpError(w, r, apierr.Validation("Message is required."))
		return
	}
	owner := store.Owner(req.UserID)

	chat := &medapi.ChatSession{SessionID: req.SessionID, UserID: owner, RecordID: req.RecordID}
	if chat.SessionID == "" {
		chat.SessionID = uuid.NewString()
	} else {
		existing, err := s.store.GetChat(r.Context(), req.SessionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// A client-chosen session ID starts a new conversation.
		case err != nil:
			httpError(w, r, apierr.New(apierr.CodeStorage, err))
			return
		case existing.UserID != owner:
			notFound(w, chatNotFound)
			return
		default:
			chat = existing
			if req.RecordID != "" {
				chat.RecordID = req.RecordID
			}
		}
	}
	chat.Language = firstNonEmpty(req.Language, chat.Language, defaultLanguage)

	in := diagnosis.ReplyInput{Message: req.Message, Language: chat.Language, History: chat.Messages}
	if chat.RecordID != "" {
		rec, err := s.store.GetRecord(r.Context(), owner, chat.RecordID)
		if err != nil {
			storeError(w, r, err, recordNotFound)
			return
		}
		in.Diagnosis = &rec.Diagnosis
	}

	userAt := time.Now().UTC()
	reply, err := s.svc.Reply(r.Context(), in)
	if err != nil {
		httpError(w, r, err)
		return
	}
	replyAt := time.Now().UTC()

	err = s.store.AppendMessages(r.Context(), chat,
		medapi.ChatMessage{Role: diagnosis.RoleUser, Content: req.Message, CreatedAt: userAt},
		medapi.ChatMessage{Role: diagnosis.RoleAssistant, Content: reply, CreatedAt: replyAt},
	)
	if err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}

	respondJSON(w, http.StatusOK, medapi.ChatResponse{SessionID: chat.SessionID, Reply: reply, CreatedAt: replyAt})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	owner := store.Owner(r.URL.Query().Get("user_id"))

	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		chat, err := s.store.GetChat(r.Context(), sessionID)
		if err != nil {
			storeError(w, r, err, chatNotFound)
			return
		}
		if chat.UserID != owner {
			notFound(w, chatNotFound)
			return
		}
		respondJSON(w, http.StatusOK, medapi.ChatHistory{Sessions: []medapi.ChatSession{*chat}})
		return
	}

	chats, err := s.store.ListChats(r.Context(), owner)
	if err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}
	respondJSON(w, http.StatusOK, medapi.ChatHistory{Sessions: chats})
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	chat, err := s.store.GetChat(r.Context(), sessionID)
	if err != nil {
		storeError(w, r, err, chatNotFound)
		return
	}
	if chat.UserID != store.Owner(r.URL.Query().Get("user_id")) {
		notFound(w, chatNotFound)
		return
	}
	if err := s.store.DeleteChat(r.Context(), sessionID); err != nil {
		storeError(w, r, err, chatNotFound)
		return
	}
	respondJSON(w, http.StatusOK, medapi.Deleted{Deleted: true, ID: sessionID})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
