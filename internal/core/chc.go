package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
)

// PullIngestProtocol is the only ingest protocol the application server can
// translate into a reverse proxy configuration.
const PullIngestProtocol = "urn:3gpp:5gms:content-protocol:http-pull-ingest"

// ContentHostingConfiguration describes one ingest origin and one or more
// distribution fronts for a provisioning session, per TS 26.512.
type ContentHostingConfiguration struct {
	Name                       string                      `json:"name,omitempty"`
	IngestConfiguration        IngestConfiguration         `json:"ingestConfiguration"`
	DistributionConfigurations []DistributionConfiguration `json:"distributionConfigurations"`
}

type IngestConfiguration struct {
	Pull     bool   `json:"pull"`
	Protocol string `json:"protocol"`
	BaseURL  string `json:"baseURL"`
}

// DistributionConfiguration is one downstream-facing front: hostnames, an
// optional TLS certificate reference, the M4d path prefix and optional path
// rewrite rules.
type DistributionConfiguration struct {
	CanonicalDomainName string            `json:"canonicalDomainName"`
	DomainNameAlias     string            `json:"domainNameAlias,omitempty"`
	BaseURL             string            `json:"baseURL"`
	CertificateID       string            `json:"certificateId,omitempty"`
	PathRewriteRules    []PathRewriteRule `json:"pathRewriteRules,omitempty"`
}

type PathRewriteRule struct {
	RequestPathPattern string `json:"requestPathPattern"`
	MappedPath         string `json:"mappedPath"`
}

// ValidationError describes a semantic violation of a
// ContentHostingConfiguration, naming the offending parameter.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// Validate checks the semantic constraints the application server relies on
// before translating the configuration: http-pull-ingest only, at least one
// distribution configuration, and well-formed URLs throughout.
func (c *ContentHostingConfiguration) Validate() error {
	if !c.IngestConfiguration.Pull || c.IngestConfiguration.Protocol != PullIngestProtocol {
		return &ValidationError{
			Param:  "ingestConfiguration.protocol",
			Reason: fmt.Sprintf("only pull ingest with protocol %q is supported", PullIngestProtocol),
		}
	}
	if _, err := url.Parse(c.IngestConfiguration.BaseURL); err != nil || c.IngestConfiguration.BaseURL == "" {
		return &ValidationError{Param: "ingestConfiguration.baseURL", Reason: "missing or unparseable URL"}
	}
	if len(c.DistributionConfigurations) == 0 {
		return &ValidationError{Param: "distributionConfigurations", Reason: "at least one distribution configuration is required"}
	}
	for i, dc := range c.DistributionConfigurations {
		if dc.CanonicalDomainName == "" {
			return &ValidationError{
				Param:  fmt.Sprintf("distributionConfigurations[%d].canonicalDomainName", i),
				Reason: "canonical domain name is required",
			}
		}
		if _, err := url.Parse(dc.BaseURL); err != nil || dc.BaseURL == "" {
			return &ValidationError{
				Param:  fmt.Sprintf("distributionConfigurations[%d].baseURL", i),
				Reason: "missing or unparseable URL",
			}
		}
	}
	return nil
}

// Hash returns the content-equivalence hash of the configuration. Two
// configurations with the same hash are treated as unchanged by the control
// store so that no-op updates skip proxy reloads.
func (c *ContentHostingConfiguration) Hash() string {
	// encoding/json serializes struct fields in declaration order, so the
	// encoding is canonical for equal values.
	encoded, err := json.Marshal(c)
	if err != nil {
		// all field types are marshalable, this cannot happen
		panic(err)
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
