package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCHC() *ContentHostingConfiguration {
	return &ContentHostingConfiguration{
		IngestConfiguration: IngestConfiguration{
			Pull:     true,
			Protocol: PullIngestProtocol,
			BaseURL:  "http://origin/",
		},
		DistributionConfigurations: []DistributionConfiguration{{
			CanonicalDomainName: "example.com",
			BaseURL:             "https://example.com/m4d/ps1/",
		}},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validCHC().Validate())

	for _, test := range []struct {
		name      string
		mutate    func(*ContentHostingConfiguration)
		wantParam string
	}{{
		name:      "push ingest",
		mutate:    func(c *ContentHostingConfiguration) { c.IngestConfiguration.Pull = false },
		wantParam: "ingestConfiguration.protocol",
	}, {
		name:      "wrong protocol",
		mutate:    func(c *ContentHostingConfiguration) { c.IngestConfiguration.Protocol = "urn:other" },
		wantParam: "ingestConfiguration.protocol",
	}, {
		name:      "missing ingest URL",
		mutate:    func(c *ContentHostingConfiguration) { c.IngestConfiguration.BaseURL = "" },
		wantParam: "ingestConfiguration.baseURL",
	}, {
		name:      "no distribution configurations",
		mutate:    func(c *ContentHostingConfiguration) { c.DistributionConfigurations = nil },
		wantParam: "distributionConfigurations",
	}, {
		name: "missing canonical domain",
		mutate: func(c *ContentHostingConfiguration) {
			c.DistributionConfigurations[0].CanonicalDomainName = ""
		},
		wantParam: "distributionConfigurations[0].canonicalDomainName",
	}} {
		t.Run(test.name, func(t *testing.T) {
			chc := validCHC()
			test.mutate(chc)
			err := chc.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, test.wantParam, verr.Param)
		})
	}
}

func TestHash(t *testing.T) {
	a := validCHC()
	b := validCHC()
	assert.Equal(t, a.Hash(), b.Hash())

	b.DistributionConfigurations[0].CanonicalDomainName = "other.example.com"
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestJSONRoundTrip(t *testing.T) {
	encoded, err := json.Marshal(validCHC())
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"canonicalDomainName":"example.com"`)
	assert.Contains(t, string(encoded), `"protocol":"urn:3gpp:5gms:content-protocol:http-pull-ingest"`)

	decoded := &ContentHostingConfiguration{}
	require.NoError(t, json.Unmarshal(encoded, decoded))
	assert.Equal(t, validCHC(), decoded)
}
