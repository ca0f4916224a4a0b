package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/chatapi"
	"github.com/fpang/medassist/internal/diagnosis"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/store"
)

// consultHistoryEntries bounds how many earlier consult entries are replayed
// as conversation context.
const consultHistoryEntries = 10

func (s *Server) handleAnalyzeAndChat(w http.ResponseWriter, r *http.Request) {
	up, apiErr := s.readUpload(w, r)
	if apiErr != nil {
		httpError(w, r, apiErr)
		return
	}
	owner := store.Owner(r.FormValue("user_id"))
	language := firstNonEmpty(r.FormValue("language"), defaultLanguage)
	message := strings.TrimSpace(r.FormValue("message"))

	d, err := s.svc.Analyze(r.Context(), up.Data, up.ContentType)
	if err != nil {
		httpError(w, r, err)
		return
	}

	reply := diagnosis.Summary(d, language)
	if message != "" {
		reply, err = s.svc.Reply(r.Context(), diagnosis.ReplyInput{Message: message, Language: language, Diagnosis: &d})
		if err != nil {
			httpError(w, r, err)
			return
		}
	}

	rec := &chatapi.ChatRecord{
		ID:        uuid.NewString(),
		UserID:    owner,
		Message:   message,
		Reply:     reply,
		Language:  language,
		Diagnosis: &d,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutConsult(r.Context(), rec); err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateConsult(w http.ResponseWriter, r *http.Request) {
	var req chatapi.NewChat
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
	language := firstNonEmpty(req.Language, defaultLanguage)

	previous, err := s.store.ListConsults(r.Context(), owner)
	if err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}
	in := diagnosis.ReplyInput{
		Message:   req.Message,
		Language:  language,
		History:   consultHistory(previous),
		Diagnosis: latestDiagnosis(previous),
	}

	reply, err := s.svc.Reply(r.Context(), in)
	if err != nil {
		httpError(w, r, err)
		return
	}

	rec := &chatapi.ChatRecord{
		ID:        uuid.NewString(),
		UserID:    owner,
		Message:   req.Message,
		Reply:     reply,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.PutConsult(r.Context(), rec); err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListConsults(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListConsults(r.Context(), r.PathValue("userId"))
	if err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}
	respondJSON(w, http.StatusOK, chatapi.ChatList{Chats: entries})
}

// consultHistory turns the most recent consult entries into chat turns.
func consultHistory(entries []chatapi.ChatRecord) []medapi.ChatMessage {
	if len(entries) > consultHistoryEntries {
		entries = entries[len(entries)-consultHistoryEntries:]
	}
	var out []medapi.ChatMessage
	for _, e := range entries {
		if e.Message != "" {
			out = append(out, medapi.ChatMessage{Role: diagnosis.RoleUser, Content: e.Message, CreatedAt: e.CreatedAt})
		}
		out = append(out, medapi.ChatMessage{Role: diagnosis.RoleAssistant, Content: e.Reply, CreatedAt: e.CreatedAt})
	}
	return out
}

// latestDiagnosis returns the diagnosis of the newest entry that has one.
func latestDiagnosis(entries []chatapi.ChatRecord) *medapi.Diagnosis {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Diagnosis != nil {
			return entries[i].Diagnosis
		}
	}
	return nil
}
