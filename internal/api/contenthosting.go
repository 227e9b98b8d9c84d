package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fivegmag/rt-5gms-application-server/internal/core"
	"github.com/fivegmag/rt-5gms-application-server/internal/metrics"
	"github.com/fivegmag/rt-5gms-application-server/internal/proxy"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
)

func contentHostingResourcePath(psid string) string {
	return problemPrefix + "/content-hosting-configurations/" + psid
}

func (s *Server) ListContentHostingConfigurations(w http.ResponseWriter, r *http.Request) {
	paths := []string{}
	for _, psid := range s.store.ListPsids() {
		paths = append(paths, contentHostingResourcePath(psid))
	}
	send(w, http.StatusOK, paths)
}

func (s *Server) CreateContentHostingConfiguration(w http.ResponseWriter, r *http.Request) {
	psid := chi.URLParam(r, "provisioningSessionId")

	chc := &core.ContentHostingConfiguration{}
	if err := json.NewDecoder(r.Body).Decode(chc); err != nil {
		sendProblem(w, r, http.StatusUnsupportedMediaType,
			"Unsupported Media Type", "request body is not a valid ContentHostingConfiguration")
		return
	}

	if err := s.store.AddCHC(psid, chc); err != nil {
		var invalid *store.InvalidError
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			sendProblem(w, r, http.StatusMethodNotAllowed,
				"Method Not Allowed", "provisioning session already has a content hosting configuration, use PUT to update it")
		case errors.As(err, &invalid):
			sendProblem(w, r, http.StatusUnsupportedMediaType,
				"Unsupported Media Type", invalid.Reason,
				InvalidParam{Param: invalid.Param, Reason: invalid.Reason})
		default:
			s.logger.Error("error storing content hosting configuration", "provisioningSession", psid, "error", err)
			sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return
	}
	metrics.Registry.SetGauge(metrics.ProvisioningSessions, float32(len(s.store.ListPsids())))

	if !s.applyConfiguration(w, r) {
		return
	}
	w.Header().Set("Location", contentHostingResourcePath(psid))
	sendEmpty(w, http.StatusCreated)
}

func (s *Server) UpdateContentHostingConfiguration(w http.ResponseWriter, r *http.Request) {
	psid := chi.URLParam(r, "provisioningSessionId")

	chc := &core.ContentHostingConfiguration{}
	if err := json.NewDecoder(r.Body).Decode(chc); err != nil {
		sendProblem(w, r, http.StatusUnsupportedMediaType,
			"Unsupported Media Type", "request body is not a valid ContentHostingConfiguration")
		return
	}

	result, err := s.store.UpdateCHC(psid, chc)
	if err != nil {
		var invalid *store.InvalidError
		if errors.As(err, &invalid) {
			sendProblem(w, r, http.StatusUnsupportedMediaType,
				"Unsupported Media Type", invalid.Reason,
				InvalidParam{Param: invalid.Param, Reason: invalid.Reason})
			return
		}
		s.logger.Error("error updating content hosting configuration", "provisioningSession", psid, "error", err)
		sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	switch result {
	case store.ResultNone:
		sendProblem(w, r, http.StatusNotFound, "Not Found", "provisioning session not found")
	case store.ResultNoChange:
		sendEmpty(w, http.StatusNoContent)
	case store.ResultUpdated:
		if !s.applyConfiguration(w, r) {
			return
		}
		sendEmpty(w, http.StatusOK)
	}
}

func (s *Server) DeleteContentHostingConfiguration(w http.ResponseWriter, r *http.Request) {
	psid := chi.URLParam(r, "provisioningSessionId")

	if !s.store.DeleteCHC(psid) {
		sendProblem(w, r, http.StatusNotFound, "Not Found", "provisioning session not found")
		return
	}
	metrics.Registry.SetGauge(metrics.ProvisioningSessions, float32(len(s.store.ListPsids())))

	// drop the session's cached content along with its configuration
	if _, err := s.backend.PurgeAll(psid); err != nil {
		s.logger.Warn("error purging cache for deleted provisioning session",
			"provisioningSession", psid, "error", err)
	}

	if !s.applyConfiguration(w, r) {
		return
	}
	sendEmpty(w, http.StatusNoContent)
}

func (s *Server) PurgeContentHostingCache(w http.ResponseWriter, r *http.Request) {
	psid := chi.URLParam(r, "provisioningSessionId")

	if !s.store.HasCHC(psid) {
		sendProblem(w, r, http.StatusNotFound, "Not Found", "provisioning session not found")
		return
	}

	if err := r.ParseForm(); err != nil {
		sendProblem(w, r, http.StatusUnsupportedMediaType,
			"Unsupported Media Type", "request body is not a valid form")
		return
	}

	var deleted int
	var err error
	if pattern := r.PostFormValue("pattern"); pattern != "" {
		deleted, err = s.backend.PurgeRegex(psid, pattern)
	} else {
		deleted, err = s.backend.PurgeAll(psid)
	}
	if err != nil {
		var invalidPattern *proxy.InvalidPatternError
		if errors.As(err, &invalidPattern) {
			sendProblem(w, r, http.StatusUnprocessableEntity,
				"Unprocessable Entity", invalidPattern.Error(),
				InvalidParam{Param: "pattern", Reason: invalidPattern.Err.Error()})
			return
		}
		s.logger.Error("error purging cache", "provisioningSession", psid, "error", err)
		sendProblem(w, r, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	if deleted == 0 {
		sendEmpty(w, http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%d\n", deleted)
}
