package httpserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	quadraticvoting "quadvote/contexts/governance/quadratic-voting"
	votinghttp "quadvote/contexts/governance/quadratic-voting/transport/http"
	"quadvote/internal/platform/httpserver"
	"quadvote/internal/platform/ratelimit"
)

func newServer(t *testing.T, limiter *ratelimit.Limiter, policy httpserver.RateLimitPolicy) (*httpserver.Server, quadraticvoting.Module) {
	t.Helper()
	module := quadraticvoting.NewInMemoryModule(nil, nil)
	return httpserver.New(module, limiter, policy, nil, ":0"), module
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

const createBody = `{"workspace_id":"w1","channel_id":"c1","title":"Snack budget","options":["fruit","chips"]}`

func TestCreateRespondEndOverHTTP(t *testing.T) {
	server, _ := newServer(t, nil, httpserver.RateLimitPolicy{})
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes", "creator-1", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d body %s", rec.Code, rec.Body.String())
	}
	var vote votinghttp.VoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &vote); err != nil {
		t.Fatalf("decode vote: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes/"+vote.VoteID+"/responses", "voter-1",
		`{"allocations":[{"option_index":0,"credits":81}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("respond: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	var response votinghttp.RecordResponseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Spent != 81 || response.Remaining != 19 {
		t.Fatalf("expected spent 81 remaining 19, got %d/%d", response.Spent, response.Remaining)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes/"+vote.VoteID+"/responses", "voter-1",
		`{"allocations":[{"option_index":1,"credits":40}]}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("over budget: expected 409, got %d", rec.Code)
	}
	var budget votinghttp.BudgetExceededResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &budget); err != nil {
		t.Fatalf("decode budget error: %v", err)
	}
	if budget.Code != "budget_exceeded" || budget.Attempted != 40 || budget.Available != 19 {
		t.Fatalf("unexpected budget error payload: %+v", budget)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes/"+vote.VoteID+"/end", "creator-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("end: expected 200, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/votes/v1/votes/"+vote.VoteID+"/results", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("results: expected 200, got %d", rec.Code)
	}
	var results votinghttp.ResultsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if !results.Ended || len(results.Options) != 2 {
		t.Fatalf("unexpected results payload: %+v", results)
	}
	if results.Options[0].Votes != 9.0 || results.Options[0].Percentage != 100 {
		t.Fatalf("expected 9.0 votes at 100%%, got %v at %d", results.Options[0].Votes, results.Options[0].Percentage)
	}
}

func TestMissingUserHeaderIsRejected(t *testing.T) {
	server, _ := newServer(t, nil, httpserver.RateLimitPolicy{})
	rec := doJSON(t, server.Handler(), http.MethodPost, "/api/votes/v1/votes", "", createBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without X-User-Id, got %d", rec.Code)
	}
}

func TestRateLimitRejectsWithHeaders(t *testing.T) {
	limiter := ratelimit.NewLimiter(2, time.Minute, nil)
	server, _ := newServer(t, limiter, httpserver.RateLimitPolicy{})
	handler := server.Handler()

	for i := 0; i < 2; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes", "creator-1", createBody)
		if rec.Code != http.StatusCreated {
			t.Fatalf("hit %d: expected 201, got %d", i+1, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes", "creator-1", createBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "2" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatalf("missing reset header")
	}

	// Read endpoints are not throttled.
	rec = doJSON(t, handler, http.MethodGet, "/api/votes/v1/votes/missing/results", "", "")
	if rec.Code == http.StatusTooManyRequests {
		t.Fatalf("read endpoint should bypass the limiter")
	}
}

func TestRateLimitSkipFailedRefundsHit(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, time.Minute, nil)
	server, _ := newServer(t, limiter, httpserver.RateLimitPolicy{SkipFailed: true})
	handler := server.Handler()

	// Invalid body fails with 400, which the policy refunds.
	rec := doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes", "creator-1", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/votes/v1/votes", "creator-1", createBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("refunded hit should leave room for the valid request, got %d", rec.Code)
	}
}

func TestRateLimitKeysOnForwardedFor(t *testing.T) {
	limiter := ratelimit.NewLimiter(1, time.Minute, nil)
	server, _ := newServer(t, limiter, httpserver.RateLimitPolicy{})
	handler := server.Handler()

	send := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/votes/v1/votes", strings.NewReader(createBody))
		req.Header.Set("X-User-Id", "creator-1")
		req.Header.Set("X-Forwarded-For", forwardedFor)
		req.RemoteAddr = "198.51.100.7:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send("203.0.113.1, 70.1.2.3"); code != http.StatusCreated {
		t.Fatalf("first client: expected 201, got %d", code)
	}
	if code := send("203.0.113.1, 70.9.9.9"); code != http.StatusTooManyRequests {
		t.Fatalf("same first hop should share the bucket, got %d", code)
	}
	if code := send("203.0.113.2"); code != http.StatusCreated {
		t.Fatalf("different client should have its own bucket, got %d", code)
	}
}
