package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/hiremind/authsync/internal/models"
)

// Syncer mirrors the signed-in account into the backend.
type Syncer interface {
	Sync(ctx context.Context, credential string) (*models.UserView, error)
}

// HTTPSyncer calls POST /api/auth/login on the sync service.
type HTTPSyncer struct {
	baseURL    string
	httpClient *http.Client
}

var _ Syncer = (*HTTPSyncer)(nil)

func NewHTTPSyncer(baseURL string, httpClient *http.Client) *HTTPSyncer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSyncer{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (s *HTTPSyncer) Sync(ctx context.Context, credential string) (*models.UserView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/auth/login", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read sync response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp models.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			return nil, fmt.Errorf("sync endpoint returned status %d: %s", resp.StatusCode, errResp.Message)
		}
		return nil, fmt.Errorf("sync endpoint returned status %d", resp.StatusCode)
	}

	var syncResp models.SyncResponse
	if err := json.Unmarshal(body, &syncResp); err != nil {
		return nil, fmt.Errorf("failed to decode sync response: %w", err)
	}
	if !syncResp.Success || syncResp.User == nil {
		return nil, fmt.Errorf("sync endpoint reported failure: %s", syncResp.Message)
	}
	return syncResp.User, nil
}
