package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fivegmag/rt-5gms-application-server/internal/metrics"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
)

func certificateResourcePath(id string) string {
	return problemPrefix + "/certificates/" + id
}

func (s *Server) ListCertificates(w http.ResponseWriter, r *http.Request) {
	paths := []string{}
	for _, id := range s.store.ListCertIds() {
		paths = append(paths, certificateResourcePath(id))
	}
	send(w, http.StatusOK, paths)
}

func (s *Server) CreateCertificate(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		sendProblem(w, r, http.StatusInternalServerError,
			"Internal Server Error", "application server is not initialised")
		return
	}
	id := chi.URLParam(r, "certificateId")

	pem, err := io.ReadAll(r.Body)
	if err != nil {
		sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "error reading request body")
		return
	}

	if err := s.store.AddCert(id, pem); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			sendProblem(w, r, http.StatusMethodNotAllowed,
				"Method Not Allowed", "certificate already exists, use PUT to update it")
			return
		}
		s.logger.Error("error storing certificate", "certificateId", id, "error", err)
		sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	metrics.Registry.SetGauge(metrics.Certificates, float32(len(s.store.ListCertIds())))

	if !s.applyConfiguration(w, r) {
		return
	}
	w.Header().Set("Location", certificateResourcePath(id))
	sendEmpty(w, http.StatusCreated)
}

func (s *Server) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "certificateId")

	pem, err := io.ReadAll(r.Body)
	if err != nil {
		sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "error reading request body")
		return
	}

	result, err := s.store.UpdateCert(id, pem)
	if err != nil {
		s.logger.Error("error updating certificate", "certificateId", id, "error", err)
		sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	switch result {
	case store.ResultNone:
		sendProblem(w, r, http.StatusNotFound, "Not Found", "certificate not found")
	case store.ResultNoChange:
		sendEmpty(w, http.StatusNoContent)
	case store.ResultUpdated:
		if !s.applyConfiguration(w, r) {
			return
		}
		sendEmpty(w, http.StatusOK)
	}
}

func (s *Server) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "certificateId")

	if err := s.store.DeleteCert(id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			sendProblem(w, r, http.StatusNotFound, "Not Found", "certificate not found")
		case errors.Is(err, store.ErrInUse):
			sendProblem(w, r, http.StatusConflict,
				"Conflict", "certificate is referenced by a content hosting configuration")
		default:
			s.logger.Error("error deleting certificate", "certificateId", id, "error", err)
			sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return
	}
	metrics.Registry.SetGauge(metrics.Certificates, float32(len(s.store.ListCertIds())))

	if !s.applyConfiguration(w, r) {
		return
	}
	sendEmpty(w, http.StatusNoContent)
}
