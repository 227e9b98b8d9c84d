package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"

	"github.com/fivegmag/rt-5gms-application-server/internal/proxy"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
)

const (
	pemMediaType  = "application/x-pem-file"
	jsonMediaType = "application/json"
	formMediaType = "application/x-www-form-urlencoded"
)

type ServerConfig struct {
	Logger          hclog.Logger
	Address         string
	Store           *store.Store
	Backend         proxy.Backend
	ShutdownTimeout time.Duration
}

// Server serves the M3 control interface towards the application function.
// Mutating handlers commit to the control store first and only then
// regenerate the proxy configuration and reload the proxy.
type Server struct {
	logger  hclog.Logger
	store   *store.Store
	backend proxy.Backend

	server          *http.Server
	shutdownTimeout time.Duration
}

func NewServer(config ServerConfig) *Server {
	s := &Server{
		logger:          config.Logger,
		store:           config.Store,
		backend:         config.Backend,
		shutdownTimeout: config.ShutdownTimeout,
	}

	router := chi.NewRouter()
	router.Use(requestID, s.logRequests)
	router.Route(problemPrefix, func(r chi.Router) {
		r.Get("/certificates", s.ListCertificates)
		r.Post("/certificates/{certificateId}", requireMediaType(pemMediaType, s.CreateCertificate))
		r.Put("/certificates/{certificateId}", requireMediaType(pemMediaType, s.UpdateCertificate))
		r.Delete("/certificates/{certificateId}", s.DeleteCertificate)

		r.Get("/content-hosting-configurations", s.ListContentHostingConfigurations)
		r.Post("/content-hosting-configurations/{provisioningSessionId}", requireMediaType(jsonMediaType, s.CreateContentHostingConfiguration))
		r.Put("/content-hosting-configurations/{provisioningSessionId}", requireMediaType(jsonMediaType, s.UpdateContentHostingConfiguration))
		r.Delete("/content-hosting-configurations/{provisioningSessionId}", s.DeleteContentHostingConfiguration)
		r.Post("/content-hosting-configurations/{provisioningSessionId}/purge", requireMediaType(formMediaType, s.PurgeContentHostingCache))
	})

	s.server = &http.Server{
		Handler: router,
		Addr:    config.Address,
	}
	return s
}

// Run starts the M3 API server and shuts it down when the context is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		errs <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown attempts to gracefully shutdown the server, it is called
// automatically when the context passed into the Run function is canceled.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// applyConfiguration regenerates the proxy configuration from the control
// store and reloads the running proxy. It is called strictly after the store
// mutation has been committed.
func (s *Server) applyConfiguration(w http.ResponseWriter, r *http.Request) bool {
	if err := s.backend.WriteConfig(); err != nil {
		s.logger.Error("error regenerating proxy configuration", "error", err)
		sendProblem(w, r, http.StatusInternalServerError,
			"Internal Server Error", "unable to regenerate the proxy configuration")
		return false
	}
	s.backend.Reload()
	return true
}
