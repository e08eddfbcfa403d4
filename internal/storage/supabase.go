package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultSupabaseTimeout = 60 * time.Second

var _ ObjectStore = (*SupabaseStore)(nil)

// SupabaseStore writes objects through the Supabase Storage REST API.
type SupabaseStore struct {
	client  *resty.Client
	baseURL string
	bucket  string
	apiKey  string
}

func NewSupabaseStore(baseURL, bucket, apiKey string) (*SupabaseStore, error) {
	client := resty.New()
	client.SetTimeout(defaultSupabaseTimeout)
	client.SetRetryCount(0)

	return NewSupabaseStoreWithClient(baseURL, bucket, apiKey, client)
}

func NewSupabaseStoreWithClient(baseURL, bucket, apiKey string, client *resty.Client) (*SupabaseStore, error) {
	trimmedURL := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedURL == "" {
		return nil, fmt.Errorf("supabase url is required")
	}
	if _, err := url.ParseRequestURI(trimmedURL); err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("supabase api key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSupabaseTimeout)
	}
	client.SetRetryCount(0)

	return &SupabaseStore{
		client:  client,
		baseURL: trimmedURL,
		bucket:  strings.TrimSpace(bucket),
		apiKey:  strings.TrimSpace(apiKey),
	}, nil
}

func (s *SupabaseStore) Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("supabase store is not initialized")
	}
	cleaned, err := CleanObjectPath(objectPath)
	if err != nil {
		return &StorageError{Op: "put", Path: objectPath, Message: err.Error()}
	}
	if body == nil {
		return &StorageError{Op: "put", Path: cleaned, Message: "object body is required"}
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	req := s.request(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(body)
	if size >= 0 {
		// The storage API rejects chunked bodies for known sizes.
		req.SetContentLength(true)
	}

	response, err := req.Post(s.objectURL(cleaned))
	return s.classify("put", cleaned, response, err)
}

func (s *SupabaseStore) Delete(ctx context.Context, objectPath string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("supabase store is not initialized")
	}
	cleaned, err := CleanObjectPath(objectPath)
	if err != nil {
		return &StorageError{Op: "delete", Path: objectPath, Message: err.Error()}
	}

	response, err := s.request(ctx).Delete(s.objectURL(cleaned))
	if response != nil && response.StatusCode() == http.StatusNotFound {
		return nil
	}
	return s.classify("delete", cleaned, response, err)
}

func (s *SupabaseStore) request(ctx context.Context) *resty.Request {
	return s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+s.apiKey).
		SetHeader("apikey", s.apiKey)
}

func (s *SupabaseStore) objectURL(objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(segments, "/"))
}

func (s *SupabaseStore) classify(op, objectPath string, response *resty.Response, err error) error {
	if err != nil {
		return &StorageError{
			Op:        op,
			Path:      objectPath,
			Message:   "storage request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &StorageError{
			Op:        op,
			Path:      objectPath,
			Message:   "storage returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &StorageError{
		Op:         op,
		Path:       objectPath,
		StatusCode: statusCode,
		Message:    storageErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func storageErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("storage returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
