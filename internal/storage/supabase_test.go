package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

func TestSupabaseStorePutSuccess(t *testing.T) {
	t.Parallel()

	var (
		gotPath        string
		gotBody        string
		gotAuth        string
		gotAPIKey      string
		gotContentType string
		gotUpsert      string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
		}
		gotPath = r.URL.EscapedPath()
		gotBody = string(body)
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		gotContentType = r.Header.Get("Content-Type")
		gotUpsert = r.Header.Get("x-upsert")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"Key":"documents/owner-1/1-a.pdf"}`))
	}))
	defer server.Close()

	store, err := NewSupabaseStore(server.URL+"/", "documents", "service-key")
	if err != nil {
		t.Fatalf("NewSupabaseStore() error = %v", err)
	}

	err = store.Put(context.Background(), "owner-1/1-my report.pdf", strings.NewReader("payload"), 7, "application/pdf")
	if err != nil {
		t.Fatalf("Put() unexpected error: %v", err)
	}

	if gotPath != "/storage/v1/object/documents/owner-1/1-my%20report.pdf" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody != "payload" {
		t.Fatalf("body = %q, want payload", gotBody)
	}
	if gotAuth != "Bearer service-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotAPIKey != "service-key" {
		t.Fatalf("apikey = %q", gotAPIKey)
	}
	if gotContentType != "application/pdf" {
		t.Fatalf("Content-Type = %q, want application/pdf", gotContentType)
	}
	if gotUpsert != "false" {
		t.Fatalf("x-upsert = %q, want false", gotUpsert)
	}
}

func TestSupabaseStorePutStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "conflict is permanent", statusCode: http.StatusConflict, wantTransient: false},
		{name: "forbidden is permanent", statusCode: http.StatusForbidden, wantTransient: false},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte("storage failed"))
			}))
			defer server.Close()

			store, err := NewSupabaseStore(server.URL, "documents", "service-key")
			if err != nil {
				t.Fatalf("NewSupabaseStore() error = %v", err)
			}

			err = store.Put(context.Background(), "owner-1/1-a.pdf", strings.NewReader("x"), 1, "")
			if err == nil {
				t.Fatal("expected error")
			}

			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.wantTransient)
			}

			var storageErr *StorageError
			if !errors.As(err, &storageErr) {
				t.Fatalf("expected StorageError, got %T", err)
			}
			if storageErr.StatusCode != tc.statusCode {
				t.Fatalf("StorageError.StatusCode = %d, want %d", storageErr.StatusCode, tc.statusCode)
			}
			if !strings.Contains(err.Error(), "storage failed") {
				t.Fatalf("error %q should carry the response body", err.Error())
			}
		})
	}
}

func TestSupabaseStorePutTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resty.New()
	client.SetTimeout(30 * time.Millisecond)

	store, err := NewSupabaseStoreWithClient(server.URL, "documents", "service-key", client)
	if err != nil {
		t.Fatalf("NewSupabaseStoreWithClient() error = %v", err)
	}

	err = store.Put(context.Background(), "owner-1/1-a.pdf", strings.NewReader("x"), 1, "text/plain")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("IsTransient() = false, want true (err=%v)", err)
	}
}

func TestSupabaseStoreDelete(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(status)
	}))
	defer server.Close()

	store, err := NewSupabaseStore(server.URL, "documents", "service-key")
	if err != nil {
		t.Fatalf("NewSupabaseStore() error = %v", err)
	}

	if err := store.Delete(context.Background(), "owner-1/1-a.pdf"); err != nil {
		t.Fatalf("Delete() unexpected error: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/storage/v1/object/documents/owner-1/1-a.pdf" {
		t.Fatalf("path = %q", gotPath)
	}

	status = http.StatusNotFound
	if err := store.Delete(context.Background(), "owner-1/missing.pdf"); err != nil {
		t.Fatalf("Delete() of missing object should succeed, got %v", err)
	}
}

func TestNewSupabaseStoreValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSupabaseStore("", "documents", "key"); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewSupabaseStore("http://localhost", " ", "key"); err == nil {
		t.Fatal("expected error for empty bucket")
	}
	if _, err := NewSupabaseStore("http://localhost", "documents", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
	if _, err := NewSupabaseStoreWithClient("http://localhost", "documents", "key", nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}

func TestCleanObjectPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "owner/1-a.pdf", want: "owner/1-a.pdf"},
		{input: "/owner//1-a.pdf", want: "owner/1-a.pdf"},
		{input: "owner/../other/a.pdf", wantErr: true},
		{input: "  ", wantErr: true},
		{input: "/", wantErr: true},
	}

	for _, tt := range tests {
		got, err := CleanObjectPath(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("CleanObjectPath(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Fatalf("CleanObjectPath(%q) unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("CleanObjectPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
