package store

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivegmag/rt-5gms-application-server/internal/certificates"
	"github.com/fivegmag/rt-5gms-application-server/internal/core"
)

const testPEM = "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"

func testStore(t *testing.T) *Store {
	t.Helper()

	cache, err := certificates.NewCache(hclog.NewNullLogger(), filepath.Join(t.TempDir(), "certificates"))
	require.NoError(t, err)
	return New(hclog.NewNullLogger(), cache)
}

func testCHC(certID string) *core.ContentHostingConfiguration {
	return &core.ContentHostingConfiguration{
		IngestConfiguration: core.IngestConfiguration{
			Pull:     true,
			Protocol: core.PullIngestProtocol,
			BaseURL:  "http://origin/",
		},
		DistributionConfigurations: []core.DistributionConfiguration{{
			CanonicalDomainName: "example.com",
			BaseURL:             "https://example.com/m4d/ps1/",
			CertificateID:       certID,
		}},
	}
}

func TestStore_AddCHC(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.AddCHC("ps1", testCHC("")))
	assert.True(t, s.HasCHC("ps1"))
	assert.NotNil(t, s.GetCHC("ps1"))
	assert.Equal(t, []string{"ps1"}, s.ListPsids())

	// a provisioning session owns at most one configuration
	assert.ErrorIs(t, s.AddCHC("ps1", testCHC("")), ErrAlreadyExists)
}

func TestStore_AddCHCValidatesIngest(t *testing.T) {
	s := testStore(t)

	chc := testCHC("")
	chc.IngestConfiguration.Pull = false
	err := s.AddCHC("ps1", chc)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "ingestConfiguration.protocol", invalid.Param)

	chc = testCHC("")
	chc.IngestConfiguration.Protocol = "urn:3gpp:5gms:content-protocol:http-push-ingest"
	require.Error(t, s.AddCHC("ps1", chc))
	assert.False(t, s.HasCHC("ps1"))
}

func TestStore_AddCHCValidatesCertificateReferences(t *testing.T) {
	s := testStore(t)

	err := s.AddCHC("ps1", testCHC("cert-A"))
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Param, "certificateId")

	require.NoError(t, s.AddCert("cert-A", []byte(testPEM)))
	require.NoError(t, s.AddCHC("ps1", testCHC("cert-A")))
}

func TestStore_UpdateCHCHashIdempotence(t *testing.T) {
	s := testStore(t)

	chc := testCHC("")
	require.NoError(t, s.AddCHC("ps1", chc))

	// an identical configuration is a no-change update
	result, err := s.UpdateCHC("ps1", testCHC(""))
	require.NoError(t, err)
	assert.Equal(t, ResultNoChange, result)

	changed := testCHC("")
	changed.DistributionConfigurations[0].CanonicalDomainName = "other.example.com"
	result, err = s.UpdateCHC("ps1", changed)
	require.NoError(t, err)
	assert.Equal(t, ResultUpdated, result)
	assert.Equal(t, "other.example.com", s.GetCHC("ps1").DistributionConfigurations[0].CanonicalDomainName)

	result, err = s.UpdateCHC("ps2", testCHC(""))
	require.NoError(t, err)
	assert.Equal(t, ResultNone, result)
}

func TestStore_DeleteCHC(t *testing.T) {
	s := testStore(t)

	assert.False(t, s.DeleteCHC("ps1"))

	require.NoError(t, s.AddCHC("ps1", testCHC("")))
	assert.True(t, s.DeleteCHC("ps1"))
	assert.False(t, s.HasCHC("ps1"))
}

func TestStore_CertificateLifecycle(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.AddCert("cert-A", []byte(testPEM)))
	assert.ErrorIs(t, s.AddCert("cert-A", []byte(testPEM)), ErrAlreadyExists)
	assert.True(t, s.HasCert("cert-A"))
	assert.Equal(t, []string{"cert-A"}, s.ListCertIds())

	path, err := s.GetCertPath("cert-A")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	result, err := s.UpdateCert("cert-A", []byte(testPEM))
	require.NoError(t, err)
	assert.Equal(t, ResultNoChange, result)

	result, err = s.UpdateCert("cert-A", []byte(testPEM+"\n"))
	require.NoError(t, err)
	assert.Equal(t, ResultUpdated, result)

	result, err = s.UpdateCert("cert-B", []byte(testPEM))
	require.NoError(t, err)
	assert.Equal(t, ResultNone, result)

	require.NoError(t, s.DeleteCert("cert-A"))
	assert.ErrorIs(t, s.DeleteCert("cert-A"), ErrNotFound)
	_, err = s.GetCertPath("cert-A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DeleteCertInUse(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.AddCert("cert-A", []byte(testPEM)))
	require.NoError(t, s.AddCHC("ps1", testCHC("cert-A")))

	// a referenced certificate cannot be deleted
	assert.ErrorIs(t, s.DeleteCert("cert-A"), ErrInUse)
	assert.True(t, s.HasCert("cert-A"))

	// dropping the referencing session releases it
	require.True(t, s.DeleteCHC("ps1"))
	require.NoError(t, s.DeleteCert("cert-A"))
}

func TestStore_ReassessCrossReferences(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.AddCert("cert-A", []byte(testPEM)))
	require.NoError(t, s.AddCHC("ps1", testCHC("cert-A")))
	require.NoError(t, s.ReassessCrossReferences())

	// simulate the certificate disappearing from disk behind the store
	_, err := s.certs.Delete("cert-A")
	require.NoError(t, err)

	err = s.ReassessCrossReferences()
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "cert-A")
}
