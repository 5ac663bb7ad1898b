package e2e

import (
	"net/http"
	"testing"
)

func TestBaseURL(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if _, ok := body["timestamp"]; !ok {
		t.Error("expected 'timestamp' field in response")
	}
}

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	for _, path := range []string{"/health", "/api/health"} {
		resp, err := doRequest(ta.app, http.MethodGet, path, "", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}

		assertStatus(t, resp, http.StatusOK)

		body := parseJSON(t, resp)
		if body["status"] != "ok" {
			t.Errorf("%s: expected status 'ok', got %v", path, body["status"])
		}
		if body["apiKeyConfigured"] != true {
			t.Errorf("%s: expected apiKeyConfigured true", path)
		}
		if body["webhookConfigured"] != true || body["signatureRequired"] != true {
			t.Errorf("%s: unexpected webhook flags %v", path, body)
		}
		if body["registry"] != "memory" {
			t.Errorf("%s: expected memory registry, got %v", path, body["registry"])
		}
		if body["jobs"] != float64(0) {
			t.Errorf("%s: expected 0 jobs, got %v", path, body["jobs"])
		}
	}
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/ws/transcriptions/req_1", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUpgradeRequired)
}

func TestUnknownRoute(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/nope", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	if code := errorCode(parseJSON(t, resp)); code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND envelope, got %q", code)
	}
}
