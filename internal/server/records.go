package server

import (
	"net/http"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/medapi"
)

const recordNotFound = "Record not found"

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListRecords(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		httpError(w, r, apierr.New(apierr.CodeStorage, err))
		return
	}
	for i := range records {
		s.attachImageURL(r.Context(), &records[i])
	}
	respondJSON(w, http.StatusOK, medapi.RecordList{Records: records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetRecord(r.Context(), r.URL.Query().Get("user_id"), r.PathValue("id"))
	if err != nil {
		storeError(w, r, err, recordNotFound)
		return
	}
	s.attachImageURL(r.Context(), rec)
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteRecord(r.Context(), r.URL.Query().Get("user_id"), id); err != nil {
		storeError(w, r, err, recordNotFound)
		return
	}
	respondJSON(w, http.StatusOK, medapi.Deleted{Deleted: true, ID: id})
}
