/*
handlers_test.go - HTTP tests for the settlement API

Tests for:
- Generation endpoint and response envelope
- Lifecycle transitions and guard responses over HTTP
- Item adjustment and video rate override
- Config, scenarios, and the payout statement
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starworks/settlement-engine/settlement"
	memstore "github.com/starworks/settlement-engine/settlement/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, settlement.Store) {
	t.Helper()
	store := memstore.NewMemory()
	srv := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv, store
}

// seedMonth seeds one graded creator with two approved submissions in
// March 2025 at a 40000 grade rate.
func seedMonth(t *testing.T, store settlement.Store) {
	t.Helper()
	ctx := context.Background()
	gradeID := "grade-silver"
	if err := store.SaveGrade(ctx, settlement.Grade{
		ID: gradeID, Name: "Silver", BaseRate: decimal.NewFromInt(40000),
	}); err != nil {
		t.Fatalf("Failed to save grade: %v", err)
	}
	if err := store.SaveStar(ctx, settlement.Star{
		ID: "star-1", Name: "Ji-ho Park", GradeID: &gradeID,
	}); err != nil {
		t.Fatalf("Failed to save star: %v", err)
	}
	for i := 1; i <= 2; i++ {
		videoID := fmt.Sprintf("video-%d", i)
		if err := store.SaveVideo(ctx, settlement.Video{
			ID: videoID, Title: fmt.Sprintf("Video %d", i), OwnerID: "star-1",
		}); err != nil {
			t.Fatalf("Failed to save video: %v", err)
		}
		if err := store.SaveSubmission(ctx, settlement.Submission{
			ID: fmt.Sprintf("sub-%d", i), VideoID: videoID, Version: 1,
			Status:    settlement.SubmissionApproved,
			CreatedAt: time.Date(2025, 3, i+4, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("Failed to save submission: %v", err)
		}
	}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp, decoded
}

// generateMarch runs generation over HTTP and returns the settlement ID.
func generateMarch(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, "POST", srv.URL+"/api/settlements/generate",
		map[string]int{"year": 2025, "month": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Generate returned %d: %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	settlements := data["settlements"].([]any)
	if len(settlements) != 1 {
		t.Fatalf("Expected 1 settlement, got %d", len(settlements))
	}
	return settlements[0].(map[string]any)["id"].(string)
}

func errorCode(t *testing.T, body map[string]any) (string, string) {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("Expected error envelope, got %v", body)
	}
	return e["code"].(string), e["message"].(string)
}

// =============================================================================
// GENERATION
// =============================================================================

func TestGenerateEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)

	resp, body := doJSON(t, "POST", srv.URL+"/api/settlements/generate",
		map[string]int{"year": 2025, "month": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	data := body["data"].(map[string]any)
	settlements := data["settlements"].([]any)
	if len(settlements) != 1 {
		t.Fatalf("Expected 1 settlement, got %d", len(settlements))
	}
	got := settlements[0].(map[string]any)
	if got["status"] != "PENDING" {
		t.Errorf("Expected PENDING, got %v", got["status"])
	}
	if got["totalAmount"] != float64(80000) {
		t.Errorf("Expected total 80000, got %v", got["totalAmount"])
	}
}

func TestGenerateEndpoint_InvalidPeriod(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "POST", srv.URL+"/api/settlements/generate",
		map[string]int{"year": 2025, "month": 13})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
	code, _ := errorCode(t, body)
	if code != "INVALID_REQUEST" {
		t.Errorf("Expected INVALID_REQUEST, got %s", code)
	}
}

// =============================================================================
// LISTING AND DETAIL
// =============================================================================

func TestListSettlements_EnvelopeAndPaging(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)
	generateMarch(t, srv)

	resp, body := doJSON(t, "GET", srv.URL+"/api/settlements?year=2025&month=3&page=1&pageSize=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if body["total"] != float64(1) || body["page"] != float64(1) ||
		body["pageSize"] != float64(10) || body["totalPages"] != float64(1) {
		t.Errorf("Unexpected paging envelope: %v", body)
	}
}

func TestGetSettlement_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, "GET", srv.URL+"/api/settlements/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	code, _ := errorCode(t, body)
	if code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %s", code)
	}
}

// =============================================================================
// LIFECYCLE OVER HTTP
// =============================================================================

func TestCompleteCancelDeleteFlow(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)
	id := generateMarch(t, srv)

	// Complete
	resp, body := doJSON(t, "PATCH", srv.URL+"/api/settlements/"+id+"/complete", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Complete returned %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["status"] != "COMPLETED" {
		t.Errorf("Expected COMPLETED, got %v", data["status"])
	}
	if data["paymentDate"] == nil {
		t.Error("Expected paymentDate to be set")
	}

	// Deleting a completed settlement is refused with the guard message
	resp, body = doJSON(t, "DELETE", srv.URL+"/api/settlements/"+id, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
	code, msg := errorCode(t, body)
	if code != "STATE_CONFLICT" {
		t.Errorf("Expected STATE_CONFLICT, got %s", code)
	}
	if msg != "cannot delete completed settlement" {
		t.Errorf("Unexpected guard message: %q", msg)
	}

	// Cancel back to PENDING, payment date kept
	resp, body = doJSON(t, "PATCH", srv.URL+"/api/settlements/"+id+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Cancel returned %d", resp.StatusCode)
	}
	data = body["data"].(map[string]any)
	if data["status"] != "PENDING" {
		t.Errorf("Expected PENDING, got %v", data["status"])
	}
	if data["paymentDate"] == nil {
		t.Error("Expected paymentDate to survive cancellation")
	}

	// Now deletion succeeds
	resp, _ = doJSON(t, "DELETE", srv.URL+"/api/settlements/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Delete returned %d", resp.StatusCode)
	}
}

func TestUpdateNote_GuardedOnCompleted(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)
	id := generateMarch(t, srv)

	resp, body := doJSON(t, "PATCH", srv.URL+"/api/settlements/"+id,
		map[string]string{"note": "hold until contract review"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Note update returned %d", resp.StatusCode)
	}
	if body["data"].(map[string]any)["note"] != "hold until contract review" {
		t.Error("Note was not saved")
	}

	doJSON(t, "PATCH", srv.URL+"/api/settlements/"+id+"/complete", nil)

	resp, _ = doJSON(t, "PATCH", srv.URL+"/api/settlements/"+id,
		map[string]string{"note": "too late"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
}

// =============================================================================
// ITEM ADJUSTMENT AND RATE OVERRIDE
// =============================================================================

func TestUpdateItemAmount(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)
	id := generateMarch(t, srv)

	_, body := doJSON(t, "GET", srv.URL+"/api/settlements/"+id, nil)
	items := body["data"].(map[string]any)["items"].([]any)
	itemID := items[0].(map[string]any)["id"].(string)

	resp, body := doJSON(t, "PATCH", srv.URL+"/api/settlements/items/"+itemID,
		map[string]int{"adjustedAmount": 25000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Item update returned %d", resp.StatusCode)
	}
	if got := body["data"].(map[string]any)["totalAmount"]; got != float64(65000) {
		t.Errorf("Expected recomputed total 65000, got %v", got)
	}

	// Negative adjustment rejected
	resp, _ = doJSON(t, "PATCH", srv.URL+"/api/settlements/items/"+itemID,
		map[string]int{"adjustedAmount": -1})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestSetVideoRate(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)
	id := generateMarch(t, srv)

	resp, _ := doJSON(t, "PATCH", srv.URL+"/api/videos/video-1/rate",
		map[string]int{"customRate": 60000})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Rate update returned %d", resp.StatusCode)
	}

	_, body := doJSON(t, "GET", srv.URL+"/api/settlements/"+id, nil)
	if got := body["data"].(map[string]any)["totalAmount"]; got != float64(100000) {
		t.Errorf("Expected total 100000 after override, got %v", got)
	}
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "PATCH", srv.URL+"/api/settlements/config",
		map[string]any{"settings": map[string]string{
			settlement.SettingAIToolSupportEnabled: "true",
			settlement.SettingAIToolSupportFee:     "15000",
		}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Config update returned %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/api/settlements/config", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Config read returned %d", resp.StatusCode)
	}
	settings := body["data"].([]any)
	if len(settings) != 2 {
		t.Fatalf("Expected 2 settings, got %d", len(settings))
	}
}

// =============================================================================
// SCENARIOS AND STATEMENT
// =============================================================================

func TestScenarioLoadAndGenerate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/scenarios/load",
		map[string]string{"scenarioId": "basic-generation"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Scenario load returned %d", resp.StatusCode)
	}

	now := time.Now().UTC()
	resp, body := doJSON(t, "POST", srv.URL+"/api/settlements/generate",
		map[string]int{"year": now.Year(), "month": int(now.Month())})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Generate returned %d", resp.StatusCode)
	}
	settlements := body["data"].(map[string]any)["settlements"].([]any)
	if len(settlements) != 3 {
		t.Errorf("Expected 3 settlements from basic-generation, got %d", len(settlements))
	}
}

func TestScenarioLoad_Unknown(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/scenarios/load",
		map[string]string{"scenarioId": "nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestStatement_RendersHTML(t *testing.T) {
	srv, store := newTestServer(t)
	seedMonth(t, store)
	id := generateMarch(t, srv)

	resp, err := http.Get(srv.URL + "/api/settlements/" + id + "/statement")
	if err != nil {
		t.Fatalf("Statement request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %s", ct)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, "Ji-ho Park") || !strings.Contains(html, "2025-03") {
		t.Errorf("Statement missing expected content")
	}
}
