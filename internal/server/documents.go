package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/joseph-ayodele/compliance-tracker/internal/common"
	"github.com/joseph-ayodele/compliance-tracker/internal/pipeline"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, common.InvalidInputf("file exceeds %d bytes", s.MaxUploadBytes))
			return
		}
		s.writeError(w, r, common.InvalidInputf("multipart form: %v", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, common.InvalidInputf("file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, common.InvalidInputf("read upload: %v", err))
		return
	}
	entityID, err := optionalID(r.FormValue("entity_id"), "entity_id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.Pipeline.Upload(r.Context(), pipeline.UploadInput{
		AccountID:        accountID(r),
		EntityID:         entityID,
		DocumentTypeCode: r.FormValue("document_type"),
		FileName:         header.Filename,
		MimeType:         header.Header.Get("Content-Type"),
		Data:             data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.Pipeline.Get(r.Context(), accountID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleProcess runs the pipeline synchronously. A failed run is still a 200 carrying
// status=failed and processing_error.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.Pipeline.Get(r.Context(), accountID(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.Pipeline.Process(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.Pipeline.Retry(r.Context(), accountID(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var c pipeline.Correction
	if err := decodeJSON(w, r, &c); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.Pipeline.Correct(r.Context(), accountID(r), id, c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
