package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/visatrack/timeline-backend/services"
)

const employmentTablesHTML = `<html><body>
<table>
  <tr><td>Employment- based</td><td>All Chargeability Areas Except Those Listed</td><td>CHINA- mainland born</td><td>INDIA</td><td>MEXICO</td><td>PHILIPPINES</td></tr>
  <tr><td>1st</td><td>C</td><td>01JAN23</td><td>01MAR22</td><td>C</td><td>C</td></tr>
  <tr><td>2nd</td><td>C</td><td>01JUN21</td><td>01JAN25</td><td>C</td><td>C</td></tr>
  <tr><td>3rd</td><td>15NOV23</td><td>01SEP20</td><td>01AUG20</td><td>15NOV23</td><td>01JUL22</td></tr>
</table>
<table>
  <tr><td>Employment- based</td><td>All Chargeability Areas Except Those Listed</td><td>CHINA- mainland born</td><td>INDIA</td><td>MEXICO</td><td>PHILIPPINES</td></tr>
  <tr><td>1st</td><td>C</td><td>01NOV22</td><td>01FEB22</td><td>C</td><td>C</td></tr>
  <tr><td>2nd</td><td>15NOV23</td><td>01DEC20</td><td>01JUN24</td><td>15NOV23</td><td>15NOV23</td></tr>
  <tr><td>3rd</td><td>01JUN23</td><td>01MAY20</td><td>01APR13</td><td>01JUN23</td><td>U</td></tr>
</table>
</body></html>`

// newTestApp wires the full handler stack against a stub bulletin site.
// When published is false the stub answers 404 for every candidate month.
func newTestApp(t *testing.T, published bool) *fiber.App {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !published || r.URL.Path != "/2026/visa-bulletin-for-march-2026.html" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, employmentTablesHTML)
	}))
	t.Cleanup(server.Close)

	resolver := services.NewBulletinResolver(&services.BulletinResolverConfiguration{
		BaseURL:            server.URL,
		HTTPRequestTimeout: 5 * time.Second,
		ProbeRateLimit:     0,
	})
	resolver.SetClock(func() time.Time {
		return time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	})

	cutoffCache := services.NewCutoffCacheService(resolver, time.Hour)
	calculator := services.NewTimelineCalculator(nil)

	timelineHandler := NewTimelineHandler(calculator, cutoffCache)
	bulletinHandler := NewBulletinHandler(resolver, cutoffCache)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/bulletin", bulletinHandler.GetCurrentBulletin)
	api.Get("/bulletin/cutoffs", bulletinHandler.GetCutoffs)
	api.Post("/timeline", timelineHandler.ComputeTimeline)
	api.Get("/metrics", bulletinHandler.GetMetrics)

	return app
}

func postTimeline(t *testing.T, app *fiber.App, body map[string]interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/api/v1/timeline", bytes.NewReader(raw))
	request.Header.Set("Content-Type", "application/json")

	response, err := app.Test(request, 15000)
	require.NoError(t, err)

	payload := decodeBody(t, response)
	return response, payload
}

func decodeBody(t *testing.T, response *http.Response) map[string]interface{} {
	t.Helper()

	raw, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	response.Body.Close()

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func baselineRequestBody() map[string]interface{} {
	return map[string]interface{}{
		"prep_start":           "2026-02-01T00:00:00Z",
		"priority_date":        "2026-02-01T00:00:00Z",
		"letters_months":       0,
		"petition_months":      1,
		"premium":              false,
		"i140_approval_months": 4,
		"rfe_expected":         false,
		"i485_months":          8,
		"ead_months":           4,
		"country":              "INDIA",
		"preference":           "EB-2",
	}
}

func TestComputeTimelineEndpoint(t *testing.T) {
	app := newTestApp(t, true)

	response, payload := postTimeline(t, app, baselineRequestBody())
	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Equal(t, true, payload["success"])

	data := payload["data"].(map[string]interface{})
	require.Equal(t, float64(396), data["backlog_filing_days"])
	require.Equal(t, float64(610), data["backlog_final_days"])

	milestones := data["milestones"].([]interface{})
	require.Len(t, milestones, 8)
	first := milestones[0].(map[string]interface{})
	require.Equal(t, "Preparation Started", first["label"])

	segments := data["segments"].([]interface{})
	require.Len(t, segments, 6)
}

func TestComputeTimelineRejectsOutOfRangeInput(t *testing.T) {
	app := newTestApp(t, true)

	body := baselineRequestBody()
	body["i485_months"] = 30

	response, payload := postTimeline(t, app, body)
	require.Equal(t, http.StatusBadRequest, response.StatusCode)
	require.Equal(t, false, payload["success"])
	require.Equal(t, "INPUT_OUT_OF_RANGE", payload["code"])
}

func TestComputeTimelineRejectsMalformedBody(t *testing.T) {
	app := newTestApp(t, true)

	request := httptest.NewRequest(http.MethodPost, "/api/v1/timeline", bytes.NewReader([]byte("{not json")))
	request.Header.Set("Content-Type", "application/json")

	response, err := app.Test(request, 15000)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestComputeTimelineUnavailableCutoff(t *testing.T) {
	app := newTestApp(t, true)

	// EB-3 Philippines carries "U" in the final-action table.
	body := baselineRequestBody()
	body["country"] = "PHILIPPINES"
	body["preference"] = "EB-3"

	response, payload := postTimeline(t, app, body)
	require.Equal(t, http.StatusUnprocessableEntity, response.StatusCode)
	require.Equal(t, "CUTOFF_UNAVAILABLE", payload["code"])
}

func TestComputeTimelineBulletinOutage(t *testing.T) {
	app := newTestApp(t, false)

	response, payload := postTimeline(t, app, baselineRequestBody())
	require.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
	require.Equal(t, "BULLETIN_UNAVAILABLE", payload["code"])
}
