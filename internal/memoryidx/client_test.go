package memoryidx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"muppetd/internal/apperrors"
)

func TestIndex(t *testing.T) {
	var gotAuth, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(IndexResponse{ID: "mem-1"})
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, APIKey: "mk"})
	resp, err := c.Index(context.Background(), IndexRequest{ConversationID: "c1", Content: "note"})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if resp.ID != "mem-1" {
		t.Fatalf("unexpected id %q", resp.ID)
	}
	if gotAuth != "Bearer mk" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotPath != "/index" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestQuery(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(QueryResponse{Results: []QueryResult{{ID: "m1", Content: "x", Score: 0.9}}})
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL})
	resp, err := c.Query(context.Background(), QueryRequest{Query: "x", Limit: 5})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Score != 0.9 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestValidation(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})

	if _, err := c.Index(context.Background(), IndexRequest{Content: " "}); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for empty content, got %v", err)
	}
	if _, err := c.Query(context.Background(), QueryRequest{}); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT for empty query, got %v", err)
	}

	unconfigured := New(Config{})
	if _, err := unconfigured.Query(context.Background(), QueryRequest{Query: "q"}); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT when unconfigured, got %v", err)
	}
}
