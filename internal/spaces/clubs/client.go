// Package clubs integrates the external club directory: membership lookup,
// a local cache of club records, and sharing spaces with club mates.
package clubs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bdobrica/spaces/common/retry"
)

// ErrNoClub means the directory has no record for the query.
var ErrNoClub = errors.New("clubs: no matching club")

// DirectoryRecord is a club as the directory reports it.
type DirectoryRecord struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	// Role is only set on person-scoped lookups.
	Role string `json:"role,omitempty"`
}

// Directory looks up clubs and memberships in the external directory.
type Directory interface {
	// LookupByEmail returns the club a person belongs to, with their role.
	LookupByEmail(ctx context.Context, email string) (*DirectoryRecord, error)
	// LookupClub returns a club by its directory name.
	LookupClub(ctx context.Context, name string) (*DirectoryRecord, error)
}

// HTTPDirectory talks to the directory service over HTTP.
type HTTPDirectory struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPDirectory builds a directory client with a bounded default timeout.
func NewHTTPDirectory(baseURL, apiKey string) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *HTTPDirectory) LookupByEmail(ctx context.Context, email string) (*DirectoryRecord, error) {
	return d.get(ctx, "/v1/members?email="+url.QueryEscape(email))
}

func (d *HTTPDirectory) LookupClub(ctx context.Context, name string) (*DirectoryRecord, error) {
	return d.get(ctx, "/v1/clubs/"+url.PathEscape(name))
}

func (d *HTTPDirectory) get(ctx context.Context, path string) (*DirectoryRecord, error) {
	var record *DirectoryRecord
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, ErrNoClub) },
	},
		func() error {
			var err error
			record, err = d.fetch(ctx, path)
			return err
		})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (d *HTTPDirectory) fetch(ctx context.Context, path string) (*DirectoryRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	if d.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.APIKey)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Not retryable and not a fault: the person or club is unknown.
		return nil, ErrNoClub
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("directory returned %d: %s", resp.StatusCode, body)
	}

	var record DirectoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}
	if record.Name == "" {
		return nil, ErrNoClub
	}
	return &record, nil
}
