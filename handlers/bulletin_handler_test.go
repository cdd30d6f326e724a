package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]interface{}) {
	t.Helper()

	request := httptest.NewRequest(http.MethodGet, path, nil)
	response, err := app.Test(request, 15000)
	require.NoError(t, err)

	return response, decodeBody(t, response)
}

func TestGetCurrentBulletinEndpoint(t *testing.T) {
	app := newTestApp(t, true)

	response, payload := getJSON(t, app, "/api/v1/bulletin")
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Equal(t, true, payload["success"])

	data := payload["data"].(map[string]interface{})
	require.Equal(t, "March", data["month"])
	require.Equal(t, float64(2026), data["year"])
	require.Contains(t, data["url"], "/2026/visa-bulletin-for-march-2026.html")
}

func TestGetCurrentBulletinOutage(t *testing.T) {
	app := newTestApp(t, false)

	response, payload := getJSON(t, app, "/api/v1/bulletin")
	require.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
	require.Equal(t, "BULLETIN_UNAVAILABLE", payload["code"])

	details := payload["details"].(map[string]interface{})
	require.Len(t, details["attempted_urls"], 2)
}

func TestGetCutoffsEndpoint(t *testing.T) {
	app := newTestApp(t, true)

	response, payload := getJSON(t, app, "/api/v1/bulletin/cutoffs?country=INDIA&preference=EB-2")
	require.Equal(t, http.StatusOK, response.StatusCode)

	data := payload["data"].(map[string]interface{})
	cutoffs := data["cutoffs"].(map[string]interface{})
	require.Equal(t, "INDIA", cutoffs["country"])
	require.Equal(t, "EB-2", cutoffs["preference"])

	filing := cutoffs["filing_cutoff"].(map[string]interface{})
	require.Equal(t, "date", filing["kind"])
	require.NotNil(t, data["resolved_filing_cutoff"])
}

func TestGetCutoffsDefaultsToRestOfWorld(t *testing.T) {
	app := newTestApp(t, true)

	response, payload := getJSON(t, app, "/api/v1/bulletin/cutoffs")
	require.Equal(t, http.StatusOK, response.StatusCode)

	data := payload["data"].(map[string]interface{})
	cutoffs := data["cutoffs"].(map[string]interface{})
	require.Equal(t, "Rest of World", cutoffs["country"])

	// EB-2 Rest of World is current in the filing table, so the resolved
	// display date falls back to today.
	filing := cutoffs["filing_cutoff"].(map[string]interface{})
	require.Equal(t, "current", filing["kind"])
	require.NotNil(t, data["resolved_filing_cutoff"])
}

func TestGetCutoffsRejectsUnknownCountry(t *testing.T) {
	app := newTestApp(t, true)

	response, payload := getJSON(t, app, "/api/v1/bulletin/cutoffs?country=ATLANTIS")
	require.Equal(t, http.StatusBadRequest, response.StatusCode)
	require.Equal(t, "INPUT_OUT_OF_RANGE", payload["code"])
}

func TestGetMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, true)

	// Prime the resolver so the counters are non-zero.
	_, payload := getJSON(t, app, "/api/v1/bulletin/cutoffs?country=INDIA&preference=EB-2")
	require.Equal(t, true, payload["success"])

	response, payload := getJSON(t, app, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, response.StatusCode)

	data := payload["data"].(map[string]interface{})
	resolver := data["resolver"].(map[string]interface{})
	require.Equal(t, "Bulletin_Resolver", resolver["service_name"])
	require.Equal(t, float64(1), resolver["total_requests"])
	require.Equal(t, float64(1), data["cutoff_cache_size"])
}
