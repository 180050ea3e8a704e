package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_FetchPage_Success(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth, gotUserAgent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		gotAuth = r.Header.Get("Authorization")
		gotUserAgent = r.Header.Get("User-Agent")

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"total_count": 250,
			"has_more": true,
			"next_page_token": 20,
			"data": [{"id": 42, "subject": "hello"}]
		}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "secret-token", 12345, "group-archive/test")

	token := int64(10)
	page, err := client.FetchPage(context.Background(), DirectionNewest, &token, 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if gotQuery["group_id"] != "12345" {
		t.Errorf("Expected group_id 12345, got %q", gotQuery["group_id"])
	}
	if gotQuery["sort_dir"] != "desc" {
		t.Errorf("Expected sort_dir desc, got %q", gotQuery["sort_dir"])
	}
	if gotQuery["sort_field"] != "id" {
		t.Errorf("Expected sort_field id, got %q", gotQuery["sort_field"])
	}
	if gotQuery["limit"] != "20" {
		t.Errorf("Expected limit 20, got %q", gotQuery["limit"])
	}
	if gotQuery["page_token"] != "10" {
		t.Errorf("Expected page_token 10, got %q", gotQuery["page_token"])
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotUserAgent != "group-archive/test" {
		t.Errorf("Expected custom user agent, got %q", gotUserAgent)
	}

	if len(page.Records) != 1 || page.Records[0].ID != 42 {
		t.Errorf("Unexpected records: %+v", page.Records)
	}
	if !page.HasMore {
		t.Error("Expected has_more true")
	}
	if page.NextPageToken == nil || *page.NextPageToken != 20 {
		t.Errorf("Expected next page token 20, got %v", page.NextPageToken)
	}
	if page.TotalCount != 250 {
		t.Errorf("Expected total count 250, got %d", page.TotalCount)
	}
}

func TestClient_FetchPage_LimitClamped(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "t", 1, "ua")

	if _, err := client.FetchPage(context.Background(), DirectionNewest, nil, 500); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotLimit != "100" {
		t.Errorf("Expected limit clamped to 100, got %q", gotLimit)
	}
}

func TestClient_FetchPage_RetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"data": [{"id": 1}]}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "t", 1, "ua")

	page, err := client.FetchPage(context.Background(), DirectionNewest, nil, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if len(page.Records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(page.Records))
	}
}

func TestClient_FetchPage_ExhaustedRetriesReturnUnavailable(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "t", 1, "ua")

	_, err := client.FetchPage(context.Background(), DirectionNewest, nil, 10)
	if err == nil {
		t.Fatal("Expected error after exhausted retries")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if attempts != 4 {
		t.Errorf("Expected initial attempt plus 3 retries, got %d", attempts)
	}
}

func TestClient_FetchPage_ClientErrorFailsFast(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "bad-token", 1, "ua")

	_, err := client.FetchPage(context.Background(), DirectionNewest, nil, 10)
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	if !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected no retries on client error, got %d attempts", attempts)
	}
}

func TestClient_FetchPage_RateLimitHonorsRetryAfter(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data": []}`)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "t", 1, "ua")

	start := time.Now()
	_, err := client.FetchPage(context.Background(), DirectionNewest, nil, 10)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Expected the client to wait out the Retry-After hint, waited %v", elapsed)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestClient_FetchPage_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	client := NewClient(server.Client(), server.URL, "t", 1, "ua")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchPage(ctx, DirectionNewest, nil, 10)
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
