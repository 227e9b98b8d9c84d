package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivegmag/rt-5gms-application-server/internal/certificates"
	"github.com/fivegmag/rt-5gms-application-server/internal/config"
	"github.com/fivegmag/rt-5gms-application-server/internal/proxy"
	"github.com/fivegmag/rt-5gms-application-server/internal/store"
	"github.com/fivegmag/rt-5gms-application-server/internal/supervisor"
)

const testPEM = "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"

// stubBackend records configuration and purge activity without any real
// proxy behind it.
type stubBackend struct {
	writes     int
	reloads    int
	purgeCount int
	purged     []string
}

func (b *stubBackend) Name() string        { return "stub" }
func (b *stubBackend) IsPresent() bool     { return true }
func (b *stubBackend) WriteConfig() error  { b.writes++; return nil }
func (b *stubBackend) TidyConfig() error   { return nil }
func (b *stubBackend) UpdateConfig(*config.Config) {}
func (b *stubBackend) Start() error        { return nil }
func (b *stubBackend) Wait(context.Context) (*supervisor.ExitStatus, error) {
	return nil, nil
}
func (b *stubBackend) Stop() error           { return nil }
func (b *stubBackend) Signal(os.Signal) bool { return true }
func (b *stubBackend) Reload() bool          { b.reloads++; return true }
func (b *stubBackend) RapidStartCount() int  { return 0 }

func (b *stubBackend) PurgeAll(psid string) (int, error) {
	b.purged = append(b.purged, psid)
	return b.purgeCount, nil
}

func (b *stubBackend) PurgeRegex(psid, pattern string) (int, error) {
	if _, err := regexp2.Compile(pattern, regexp2.None); err != nil {
		return 0, &proxy.InvalidPatternError{Pattern: pattern, Err: err}
	}
	b.purged = append(b.purged, psid)
	return b.purgeCount, nil
}

func (b *stubBackend) PurgePrefix(psid, prefix string) (int, error) { return b.purgeCount, nil }
func (b *stubBackend) PurgePath(psid, path string) (int, error)     { return b.purgeCount, nil }

func testServer(t *testing.T) (*httptest.Server, *stubBackend, *store.Store) {
	t.Helper()

	cache, err := certificates.NewCache(hclog.NewNullLogger(), filepath.Join(t.TempDir(), "certificates"))
	require.NoError(t, err)
	controlStore := store.New(hclog.NewNullLogger(), cache)

	backend := &stubBackend{}
	server := NewServer(ServerConfig{
		Logger:          hclog.NewNullLogger(),
		Address:         "localhost:0",
		Store:           controlStore,
		Backend:         backend,
		ShutdownTimeout: time.Second,
	})

	ts := httptest.NewServer(server.server.Handler)
	t.Cleanup(ts.Close)
	return ts, backend, controlStore
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, contentType, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func testCHCJSON(t *testing.T, certID string) string {
	t.Helper()

	chc := map[string]interface{}{
		"ingestConfiguration": map[string]interface{}{
			"pull":     true,
			"protocol": "urn:3gpp:5gms:content-protocol:http-pull-ingest",
			"baseURL":  "http://origin/",
		},
		"distributionConfigurations": []map[string]interface{}{{
			"canonicalDomainName": "example.com",
			"baseURL":             "https://example.com/m4d/ps1/",
		}},
	}
	if certID != "" {
		chc["distributionConfigurations"].([]map[string]interface{})[0]["certificateId"] = certID
	}
	encoded, err := json.Marshal(chc)
	require.NoError(t, err)
	return string(encoded)
}

func TestCertificates_CreateUpdateDelete(t *testing.T) {
	ts, backend, _ := testServer(t)

	// create
	resp := doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/certificates/cert-A", "application/x-pem-file", testPEM)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/3gpp-m3/v1/certificates/cert-A", resp.Header.Get("Location"))
	assert.Equal(t, 1, backend.writes)
	assert.Equal(t, 1, backend.reloads)

	// duplicate create
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/certificates/cert-A", "application/x-pem-file", testPEM)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	// wrong media type
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/certificates/cert-B", "text/plain", testPEM)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	// no-change update skips regeneration
	resp = doRequest(t, ts, http.MethodPut, "/3gpp-m3/v1/certificates/cert-A", "application/x-pem-file", testPEM)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, backend.writes)

	// real update regenerates
	resp = doRequest(t, ts, http.MethodPut, "/3gpp-m3/v1/certificates/cert-A", "application/x-pem-file", testPEM+"\n")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, backend.writes)

	// unknown certificate
	resp = doRequest(t, ts, http.MethodPut, "/3gpp-m3/v1/certificates/cert-B", "application/x-pem-file", testPEM)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// list
	resp = doRequest(t, ts, http.MethodGet, "/3gpp-m3/v1/certificates", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Equal(t, []string{"/3gpp-m3/v1/certificates/cert-A"}, listed)

	// delete
	resp = doRequest(t, ts, http.MethodDelete, "/3gpp-m3/v1/certificates/cert-A", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doRequest(t, ts, http.MethodDelete, "/3gpp-m3/v1/certificates/cert-A", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentHostingConfigurations_CreateUpdateDelete(t *testing.T) {
	ts, backend, _ := testServer(t)

	resp := doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/certificates/cert-A", "application/x-pem-file", testPEM)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// create
	body := testCHCJSON(t, "cert-A")
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "/3gpp-m3/v1/content-hosting-configurations/ps1", resp.Header.Get("Location"))

	// duplicate create is rejected
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", body)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	// deleting a referenced certificate is blocked
	resp = doRequest(t, ts, http.MethodDelete, "/3gpp-m3/v1/certificates/cert-A", "", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// identical update is a no-op without regeneration
	writes := backend.writes
	resp = doRequest(t, ts, http.MethodPut, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", body)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, writes, backend.writes)

	// real update regenerates
	changed := strings.Replace(body, "example.com", "other.example.com", 1)
	resp = doRequest(t, ts, http.MethodPut, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", changed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, writes+1, backend.writes)

	// list
	resp = doRequest(t, ts, http.MethodGet, "/3gpp-m3/v1/content-hosting-configurations", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Equal(t, []string{"/3gpp-m3/v1/content-hosting-configurations/ps1"}, listed)

	// delete drops the session's cache entries too
	resp = doRequest(t, ts, http.MethodDelete, "/3gpp-m3/v1/content-hosting-configurations/ps1", "", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, backend.purged, "ps1")

	resp = doRequest(t, ts, http.MethodDelete, "/3gpp-m3/v1/content-hosting-configurations/ps1", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentHostingConfigurations_SemanticValidation(t *testing.T) {
	ts, _, _ := testServer(t)

	// unknown certificate reference
	resp := doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", testCHCJSON(t, "cert-missing"))
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	var problem Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "/3gpp-m3/v1", problem.Type)
	assert.Equal(t, "/content-hosting-configurations/ps1", problem.Instance)
	require.Len(t, problem.InvalidParams, 1)
	assert.Contains(t, problem.InvalidParams[0].Param, "certificateId")

	// push ingest is not supported
	pushIngest := strings.Replace(testCHCJSON(t, ""), "http-pull-ingest", "http-push-ingest", 1)
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", pushIngest)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	// malformed JSON
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", "{not json")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestPurge(t *testing.T) {
	ts, backend, _ := testServer(t)

	resp := doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1", "application/json", testCHCJSON(t, ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// unknown session
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps2/purge", "application/x-www-form-urlencoded", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// wrong media type
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1/purge", "application/json", "{}")
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	// nothing matched
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1/purge", "application/x-www-form-urlencoded", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// matched entries are reported
	backend.purgeCount = 2
	form := url.Values{"pattern": []string{"^/a/.*"}}.Encode()
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1/purge", "application/x-www-form-urlencoded", form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// a bad regex names the offending parameter
	form = url.Values{"pattern": []string{"(unclosed"}}.Encode()
	resp = doRequest(t, ts, http.MethodPost, "/3gpp-m3/v1/content-hosting-configurations/ps1/purge", "application/x-www-form-urlencoded", form)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var problem Problem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	require.Len(t, problem.InvalidParams, 1)
	assert.Equal(t, "pattern", problem.InvalidParams[0].Param)
}
