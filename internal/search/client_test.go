package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"muppetd/internal/apperrors"
)

func TestSearchSuccess(t *testing.T) {
	var gotKey, gotPath string
	var gotReq Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(Response{Results: []Result{{Title: "t", URL: "https://example.com"}}})
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	resp, err := c.Search(context.Background(), "key-1", Request{Query: "golang sqlite"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotKey != "key-1" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotPath != "/search" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotReq.NumResults != defaultNumResults {
		t.Fatalf("expected default numResults %d, got %d", defaultNumResults, gotReq.NumResults)
	}
	if len(resp.Results) != 1 || resp.Results[0].URL != "https://example.com" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSearchRetriesTemporaryFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{})
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, MaxRetries: 2, BackoffBase: time.Millisecond})
	if _, err := c.Search(context.Background(), "k", Request{Query: "q"}); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestSearchPermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, MaxRetries: 3, BackoffBase: time.Millisecond})
	if _, err := c.Search(context.Background(), "k", Request{Query: "q"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("401 should not be retried, got %d calls", calls.Load())
	}
}

func TestSearchValidation(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})

	cases := []struct {
		name   string
		apiKey string
		req    Request
	}{
		{"empty query", "k", Request{Query: "  "}},
		{"too many results", "k", Request{Query: "q", NumResults: maxNumResults + 1}},
		{"missing api key", "", Request{Query: "q"}},
	}
	for _, tc := range cases {
		_, err := c.Search(context.Background(), tc.apiKey, tc.req)
		if apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
			t.Fatalf("%s: expected INVALID_ARGUMENT, got %v", tc.name, err)
		}
	}
}
