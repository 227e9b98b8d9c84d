package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/fivegmag/rt-5gms-application-server/internal/certificates"
	"github.com/fivegmag/rt-5gms-application-server/internal/core"
)

// UpdateResult describes the outcome of an idempotent update.
type UpdateResult int

const (
	// ResultNone means the targeted resource does not exist.
	ResultNone UpdateResult = iota
	// ResultUpdated means the resource content changed and was replaced.
	ResultUpdated
	// ResultNoChange means the incoming content hashed equal to the stored
	// content and nothing was replaced.
	ResultNoChange
)

type sessionState struct {
	chc  *core.ContentHostingConfiguration
	hash string
}

// Store is the control-plane state backing the M3 API: provisioning session
// to content hosting configuration, and certificate id to on-disk PEM path.
// All mutators are serialized through its mutex; the store is the single
// source of truth for configuration generation.
type Store struct {
	logger hclog.Logger
	certs  *certificates.Cache

	// This mutex acts as a stop-the-world type global mutex; once a lock is
	// acquired any operation on the session map can happen without further
	// thread-safety concerns.
	mutex sync.RWMutex

	sessions map[string]*sessionState
}

func New(logger hclog.Logger, certs *certificates.Cache) *Store {
	return &Store{
		logger:   logger,
		certs:    certs,
		sessions: make(map[string]*sessionState),
	}
}

// AddCHC adds the content hosting configuration for a new provisioning
// session. It fails with ErrAlreadyExists if the session already has one
// and validates the ingest protocol and certificate references.
func (s *Store) AddCHC(psid string, chc *core.ContentHostingConfiguration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.sessions[psid]; found {
		return ErrAlreadyExists
	}
	if err := s.validateCHC(chc); err != nil {
		return err
	}

	s.logger.Info("adding content hosting configuration", "provisioningSession", psid)
	s.sessions[psid] = &sessionState{chc: chc, hash: chc.Hash()}
	return nil
}

// UpdateCHC replaces the content hosting configuration for an existing
// provisioning session. ResultNoChange is returned without replacing when the
// incoming content hashes equal to the stored content.
func (s *Store) UpdateCHC(psid string, chc *core.ContentHostingConfiguration) (UpdateResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, found := s.sessions[psid]
	if !found {
		return ResultNone, nil
	}
	if err := s.validateCHC(chc); err != nil {
		return ResultNone, err
	}

	hash := chc.Hash()
	if hash == state.hash {
		return ResultNoChange, nil
	}

	s.logger.Info("updating content hosting configuration", "provisioningSession", psid)
	s.sessions[psid] = &sessionState{chc: chc, hash: hash}
	return ResultUpdated, nil
}

// DeleteCHC removes the provisioning session's configuration, reporting
// whether it existed.
func (s *Store) DeleteCHC(psid string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.sessions[psid]; !found {
		return false
	}
	s.logger.Info("deleting content hosting configuration", "provisioningSession", psid)
	delete(s.sessions, psid)
	return true
}

func (s *Store) HasCHC(psid string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, found := s.sessions[psid]
	return found
}

func (s *Store) GetCHC(psid string) *core.ContentHostingConfiguration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if state, found := s.sessions[psid]; found {
		return state.chc
	}
	return nil
}

// ListPsids returns the provisioning session ids in lexical order.
func (s *Store) ListPsids() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	psids := make([]string, 0, len(s.sessions))
	for psid := range s.sessions {
		psids = append(psids, psid)
	}
	sort.Strings(psids)
	return psids
}

// AddCert persists a new certificate, failing with ErrAlreadyExists if the
// id is already present.
func (s *Store) AddCert(id string, pem []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.certs.Has(id) {
		return ErrAlreadyExists
	}
	if _, err := s.certs.Write(id, pem); err != nil {
		return err
	}
	s.logger.Info("added certificate", "certificateId", id)
	return nil
}

// UpdateCert replaces an existing certificate's PEM content. ResultNoChange
// is returned when the stored bytes already equal the incoming bytes.
func (s *Store) UpdateCert(id string, pem []byte) (UpdateResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.certs.Has(id) {
		return ResultNone, nil
	}
	changed, err := s.certs.Write(id, pem)
	if err != nil {
		return ResultNone, err
	}
	if !changed {
		return ResultNoChange, nil
	}
	s.logger.Info("updated certificate", "certificateId", id)
	return ResultUpdated, nil
}

// DeleteCert removes a certificate. It fails with ErrInUse while any
// distribution configuration still references the id, and with ErrNotFound
// if the id is unknown.
func (s *Store) DeleteCert(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.certs.Has(id) {
		return ErrNotFound
	}
	for psid, state := range s.sessions {
		for _, dc := range state.chc.DistributionConfigurations {
			if dc.CertificateID == id {
				s.logger.Warn("refusing to delete certificate in use",
					"certificateId", id, "provisioningSession", psid)
				return ErrInUse
			}
		}
	}

	found, err := s.certs.Delete(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	s.logger.Info("deleted certificate", "certificateId", id)
	return nil
}

func (s *Store) HasCert(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.certs.Has(id)
}

func (s *Store) GetCertPath(id string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	path, err := s.certs.Path(id)
	if errors.Is(err, certificates.ErrNotFound) {
		return "", ErrNotFound
	}
	return path, err
}

func (s *Store) ListCertIds() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.certs.IDs()
}

// ReassessCrossReferences re-verifies that every certificate referenced by a
// distribution configuration still exists. It is used after the certificate
// cache has been reloaded from disk.
func (s *Store) ReassessCrossReferences() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for psid, state := range s.sessions {
		for i, dc := range state.chc.DistributionConfigurations {
			if dc.CertificateID != "" && !s.certs.Has(dc.CertificateID) {
				return &InvalidError{
					Param: fmt.Sprintf("distributionConfigurations[%d].certificateId", i),
					Reason: fmt.Sprintf("provisioning session %q references unknown certificate %q",
						psid, dc.CertificateID),
				}
			}
		}
	}
	return nil
}

// validateCHC checks semantic validity plus certificate cross-references.
// Callers must hold the mutex.
func (s *Store) validateCHC(chc *core.ContentHostingConfiguration) error {
	if chc == nil {
		return &InvalidError{Param: "contentHostingConfiguration", Reason: "missing body"}
	}
	if err := chc.Validate(); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			return &InvalidError{Param: verr.Param, Reason: verr.Reason}
		}
		return err
	}
	for i, dc := range chc.DistributionConfigurations {
		if dc.CertificateID != "" && !s.certs.Has(dc.CertificateID) {
			return &InvalidError{
				Param:  fmt.Sprintf("distributionConfigurations[%d].certificateId", i),
				Reason: fmt.Sprintf("unknown certificate %q", dc.CertificateID),
			}
		}
	}
	return nil
}
