// Package source retrieves snapshot documents from static storage.
package source

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/spmonitor/dashboard/internal/downloads"
)

// MaxDocumentBytes caps the size of a snapshot document.
const MaxDocumentBytes = 64 << 20

// HTTPFetcher loads snapshots from a public blob endpoint with a single GET.
type HTTPFetcher struct {
	Domain string
	Client *http.Client
	now    func() time.Time
}

// NewHTTPFetcher builds a fetcher for the given storage domain. A nil client uses a
// client bounded by timeout.
func NewHTTPFetcher(domain string, client *http.Client, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPFetcher{Domain: domain, Client: client, now: time.Now}
}

// Fetch resolves conn into an endpoint URL and loads it.
func (f *HTTPFetcher) Fetch(ctx context.Context, conn downloads.Connection) (downloads.Snapshot, error) {
	endpoint, err := conn.URL(f.Domain)
	if err != nil {
		return downloads.Snapshot{}, err
	}
	return f.FetchURL(ctx, endpoint)
}

// FetchURL performs one retrieval of endpoint. Every failure is reported as a
// *downloads.DataLoadError.
func (f *HTTPFetcher) FetchURL(ctx context.Context, endpoint string) (downloads.Snapshot, error) {
	if f == nil {
		return downloads.Snapshot{}, fmt.Errorf("http fetcher not initialised")
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Message: "invalid endpoint", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Status: resp.StatusCode, Message: "unexpected status " + http.StatusText(resp.StatusCode)}
	}

	return decode(endpoint, resp.Body, f.clock())
}

func (f *HTTPFetcher) clock() time.Time {
	if f.now == nil {
		return time.Now()
	}
	return f.now()
}

var errTooLarge = errors.New("document exceeds size limit")

// decode reads a snapshot document, digesting the raw bytes as they are read.
func decode(endpoint string, body io.Reader, loadedAt time.Time) (downloads.Snapshot, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return downloads.Snapshot{}, err
	}
	limited := &io.LimitedReader{R: body, N: MaxDocumentBytes + 1}
	raw, err := io.ReadAll(io.TeeReader(limited, hash))
	if err != nil {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Message: "read failed", Err: err}
	}
	if len(raw) > MaxDocumentBytes {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Message: "read failed", Err: errTooLarge}
	}
	if strings.TrimSpace(string(raw)) == "" {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Message: "empty document"}
	}

	var dataset downloads.Dataset
	if err := json.Unmarshal(raw, &dataset); err != nil {
		return downloads.Snapshot{}, &downloads.DataLoadError{URL: endpoint, Message: "invalid document", Err: err}
	}
	if dataset.Downloads == nil {
		dataset.Downloads = []downloads.Record{}
	}
	return downloads.Snapshot{
		Dataset:  dataset,
		Endpoint: endpoint,
		Digest:   hex.EncodeToString(hash.Sum(nil)),
		LoadedAt: loadedAt,
	}, nil
}
