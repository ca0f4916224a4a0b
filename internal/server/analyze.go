package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/medapi"
	"github.com/fpang/medassist/internal/s3util"
	"github.com/fpang/medassist/internal/store"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	up, apiErr := s.readUpload(w, r)
	if apiErr != nil {
		httpError(w, r, apiErr)
		return
	}
	d, err := s.svc.Analyze(r.Context(), up.Data, up.ContentType)
	if err != nil {
		httpError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleAnalyzeAndStore(w http.ResponseWriter, r *http.Request) {
	up, apiErr := s.readUpload(w, r)
	if apiErr != nil {
		httpError(w, r, apiErr)
		return
	}
	userID := store.Owner(r.FormValue("user_id"))

	d, err := s.svc.Analyze(r.Context(), up.Data, up.ContentType)
	if err != nil {
		httpError(w, r, err)
		return
	}

	rec := &medapi.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		FileName:  up.FileName,
		Diagnosis: d,
		CreatedAt: time.Now().UTC(),
	}
	if s.images != nil {
		key := s3util.ImageKey(userID, rec.ID, up.FileName)
		if err := s.images.Put(r.Context(), key, up.Data, up.ContentType); err != nil {
			httpError(w, r, apierr.New(apierr.CodeUpload, err))
			return
		}
		rec.ImageKey = key
	}
	if err := s.store.PutRecord(r.Context(), rec); err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}

	log.Info().Str("recordId", rec.ID).Str("userId", userID).Bool("imageStored", rec.ImageKey != "").Msg("Record stored")
	s.attachImageURL(r.Context(), rec)
	respondJSON(w, http.StatusOK, rec)
}

// attachImageURL fills ImageURL with a presigned link. Failures leave it
// empty.
func (s *Server) attachImageURL(ctx context.Context, rec *medapi.Record) {
	if s.images == nil || rec.ImageKey == "" {
		return
	}
	url, err := s.images.URL(ctx, rec.ImageKey)
	if err != nil {
		log.Warn().Err(err).Str("key", rec.ImageKey).Msg("Failed to presign image URL")
		return
	}
	rec.ImageURL = url
}
