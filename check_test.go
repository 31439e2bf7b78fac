package main

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestEndpointChecks(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	checks := endpointChecks(now, 7)

	if len(checks) != 6 {
		t.Fatalf("checks = %d, want 6", len(checks))
	}
	for _, c := range checks {
		if c.params == nil {
			continue
		}
		if c.params.Get("start") != "2024-01-08T12:00:00Z" || c.params.Get("end") != "2024-01-15T12:00:00Z" {
			t.Errorf("%s window = %s..%s", c.name, c.params.Get("start"), c.params.Get("end"))
		}
	}
}

func TestRunChecks(t *testing.T) {
	api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/user/profile/basic":
			writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": 1, "email": "a@b.c"})
		case "/v2/cycle":
			writeJSON(w, http.StatusOK, map[string]interface{}{"records": []map[string]interface{}{{"id": 1}, {"id": 2}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client, _ := newTestClient(t, api, ClientConfig{})

	checks := []endpointCheck{
		{name: "User Profile", path: "/v2/user/profile/basic"},
		{name: "Cycle Data", path: "/v2/cycle"},
		{name: "Missing", path: "/v2/nope"},
	}

	var out bytes.Buffer
	failed := runChecks(testContext(t), client, checks, &out)

	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("output lines = %d, want 3:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "2 field(s)") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2 record(s)") {
		t.Errorf("line 2 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "HTTP 404") {
		t.Errorf("line 3 = %q", lines[2])
	}
}
