package core

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"bacman/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCA(t *testing.T) tls.Certificate {
	t.Helper()
	cert, key, err := generateCA("test CA")
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key, Leaf: cert}
}

// idorBackend serves user A's data to any session, and refuses requests without a cookie.
func idorBackend() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Cookie") {
		case "session=userA":
			http.Error(w, "forbidden", http.StatusForbidden)
		case "session=userB":
			_, _ = w.Write([]byte(`{"invoice":1,"owner":"userA"}`))
		default:
			http.Error(w, "login required", http.StatusUnauthorized)
		}
	}))
}

func proxiedGet(t *testing.T, proxy *httptest.Server, target string) *http.Response {
	t.Helper()
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	req.Header.Set("Cookie", "session=userA")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func newProxyHarness(t *testing.T, opts ProxyOptions, active bool) (*httptest.Server, *Coordinator, *ResultLog) {
	t.Helper()
	sender := loopbackSender()
	t.Cleanup(sender.Close)
	log := NewResultLog(0)
	gate := NewActivationGate(models.ActivationState{Active: active, OverrideHeaderText: "Cookie: session=userB"}, nil)
	coord := NewCoordinator(gate, &ReplayExecutor{Sender: sender}, log, CoordinatorOptions{})
	proxy := httptest.NewServer(NewProbeProxy(testCA(t), opts, coord))
	t.Cleanup(proxy.Close)
	return proxy, coord, log
}

func TestProbeProxy_ReplaysInterceptedRequest(t *testing.T) {
	backend := idorBackend()
	defer backend.Close()
	proxy, coord, log := newProxyHarness(t, ProxyOptions{WaitForResponse: true}, true)

	resp := proxiedGet(t, proxy, backend.URL+"/invoices/1")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "the client still gets its own response")
	coord.Wait()

	results := log.Snapshot()
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, models.OriginProxy, r.Origin)
	assert.Equal(t, int64(1), r.SequenceID)
	assert.Equal(t, backend.URL+"/invoices/1", r.URL)
	assert.Equal(t, http.StatusForbidden, r.OriginalSummary.StatusCode)
	assert.Equal(t, http.StatusOK, r.TestSummary.StatusCode)
	assert.Equal(t, models.RiskHigh, r.RiskCategory)
}

func TestProbeProxy_SubmitAtRequestTime(t *testing.T) {
	backend := idorBackend()
	defer backend.Close()
	proxy, coord, log := newProxyHarness(t, ProxyOptions{WaitForResponse: false}, true)

	proxiedGet(t, proxy, backend.URL+"/invoices/1")
	coord.Wait()

	results := log.Snapshot()
	require.Len(t, results, 1)
	assert.False(t, results[0].OriginalSummary.Known())
	assert.Equal(t, http.StatusOK, results[0].TestSummary.StatusCode)
	assert.Equal(t, models.RiskNone, results[0].RiskCategory)
}

func TestProbeProxy_InactiveAndExcluded(t *testing.T) {
	backend := idorBackend()
	defer backend.Close()

	t.Run("inactive gate", func(t *testing.T) {
		proxy, coord, log := newProxyHarness(t, ProxyOptions{WaitForResponse: true}, false)
		proxiedGet(t, proxy, backend.URL+"/invoices/1")
		coord.Wait()
		assert.Zero(t, log.Len())
		assert.Equal(t, int64(1), coord.NextSequenceID())
	})

	t.Run("excluded extension", func(t *testing.T) {
		opts := ProxyOptions{
			WaitForResponse: true,
			Exclusions: []models.ProbeExclusionRule{
				{ID: "static", RuleType: models.RuleTypeFileExtension, Pattern: ".png", IsEnabled: true},
			},
		}
		proxy, coord, log := newProxyHarness(t, opts, true)
		proxiedGet(t, proxy, backend.URL+"/logo.png")
		coord.Wait()
		assert.Zero(t, log.Len())
	})
}

func TestServiceFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "https://secure.example/x", nil)
	assert.Equal(t, models.Service{Scheme: "https", Host: "secure.example", Port: 443}, serviceFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "http://plain.example:8080/x", nil)
	assert.Equal(t, models.Service{Scheme: "http", Host: "plain.example", Port: 8080}, serviceFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/relative", nil)
	r.Host = "origin.example:9000"
	assert.Equal(t, models.Service{Scheme: "http", Host: "origin.example", Port: 9000}, serviceFromRequest(r))
}
