package domain

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

// ItemState represents the lifecycle state of a file item within an upload batch.
type ItemState string

const (
	ItemStateIdle      ItemState = "IDLE"
	ItemStateUploading ItemState = "UPLOADING"
	ItemStateSuccess   ItemState = "SUCCESS"
	ItemStateError     ItemState = "ERROR"
)

func (s ItemState) String() string { return string(s) }

func (s ItemState) IsValid() bool {
	switch s {
	case ItemStateIdle, ItemStateUploading, ItemStateSuccess, ItemStateError:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition can happen.
func (s ItemState) IsTerminal() bool {
	return s == ItemStateSuccess || s == ItemStateError
}

func ParseItemStateFromString(s string) (ItemState, error) {
	st := ItemState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid item state %q", ErrValidation, s)
	}
	return st, nil
}

// Progress checkpoints emitted by the commit pipeline.
const (
	ProgressNone        = 0
	ProgressStarted     = 10
	ProgressObjectSaved = 60
	ProgressDone        = 100
)

// Source opens the byte stream of a file payload. Each call returns a fresh reader.
type Source interface {
	Open() (io.ReadCloser, error)
}

// BytesSource serves a payload held in memory. The bytes are private to the source,
// so copies of a FileHandle can never change what gets uploaded.
type BytesSource struct {
	data []byte
}

// NewBytesSource copies data into a new source.
func NewBytesSource(data []byte) BytesSource {
	return BytesSource{data: bytes.Clone(data)}
}

func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (b BytesSource) Len() int {
	return len(b.data)
}

// PathSource serves a payload from the local filesystem.
type PathSource string

func (p PathSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", string(p), err)
	}
	return f, nil
}

// FileHandle describes the binary payload of a pending upload. It is immutable once created.
type FileHandle struct {
	Name        string
	Size        int64
	ContentType string
	Source      Source
}

// Extension returns the lowercase extension without the leading dot.
func (h FileHandle) Extension() string {
	name := strings.TrimSpace(h.Name)
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}

// FileItem is one file's unit of work plus its tracked state.
type FileItem struct {
	Index       int
	Handle      FileHandle
	State       ItemState
	Progress    int
	ErrorDetail string
	Path        string
	DocumentID  string
}

// Owner identifies the tenant that namespaces storage paths and metadata rows.
type Owner struct {
	ID    string
	Email string
}

func (o Owner) IsAuthenticated() bool {
	return strings.TrimSpace(o.ID) != ""
}
