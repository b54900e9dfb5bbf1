// Package provider is the HTTP client for the external email-sync
// provider. The provider owns the actual sync engine; this client only
// triggers jobs, polls counters, and refreshes grant tokens.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tdaniel1925/easemail-pro-sub002/pkg/metrics"
)

// StatusFetchTimeout bounds every provider call. A timed-out status
// fetch is treated as transient by the poller, not as a sync failure.
const StatusFetchTimeout = 30 * time.Second

type Client struct {
	baseURL      string
	apiKey       string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewClient(baseURL, apiKey, clientID, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient: &http.Client{
			Timeout: StatusFetchTimeout,
		},
	}
}

// StatusMetrics is the counter set the provider reports for one account.
type StatusMetrics struct {
	SyncStatus        string  `json:"syncStatus"`
	SyncProgress      int     `json:"syncProgress"`
	SyncedEmailCount  int     `json:"syncedEmailCount"`
	TotalEmailCount   int     `json:"totalEmailCount"`
	ContinuationCount int     `json:"continuationCount"`
	CurrentPage       int     `json:"currentPage"`
	MaxPages          int     `json:"maxPages"`
	LastError         *string `json:"lastError"`
}

// AccountStats is the per-account folder/message counts returned by the
// batched stats endpoint.
type AccountStats struct {
	AccountID   string `json:"accountId"`
	FolderCount int    `json:"folderCount"`
	EmailCount  int    `json:"emailCount"`
	UnreadCount int    `json:"unreadCount"`
}

type TokenRefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type apiResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Metrics *StatusMetrics `json:"metrics"`
	Stats   []AccountStats `json:"stats"`
}

// GetSyncStatus fetches the current sync counters for one account.
func (c *Client) GetSyncStatus(ctx context.Context, accountID string) (*StatusMetrics, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v3/accounts/"+url.PathEscape(accountID)+"/sync/status", "get_sync_status", nil)
	if err != nil {
		return nil, err
	}
	if resp.Metrics == nil {
		return nil, fmt.Errorf("status response missing metrics for account %s", accountID)
	}
	return resp.Metrics, nil
}

// SyncFolders requests a folder-list sync. This must succeed before a
// background message sync may be requested.
func (c *Client) SyncFolders(ctx context.Context, accountID string) error {
	_, err := c.do(ctx, http.MethodPost, "/v3/accounts/"+url.PathEscape(accountID)+"/sync/folders", "sync_folders", nil)
	return err
}

// StartBackgroundSync requests the bulk message sync for an account.
// Success means the request was accepted, not that any data has moved.
func (c *Client) StartBackgroundSync(ctx context.Context, accountID string) error {
	body := map[string]string{"accountId": accountID}
	_, err := c.do(ctx, http.MethodPost, "/v3/sync/background", "start_background_sync", body)
	return err
}

func (c *Client) PauseSync(ctx context.Context, accountID string) error {
	_, err := c.do(ctx, http.MethodPost, "/v3/accounts/"+url.PathEscape(accountID)+"/sync/pause", "pause_sync", nil)
	return err
}

func (c *Client) ResumeSync(ctx context.Context, accountID string) error {
	_, err := c.do(ctx, http.MethodPost, "/v3/accounts/"+url.PathEscape(accountID)+"/sync/resume", "resume_sync", nil)
	return err
}

func (c *Client) StopSync(ctx context.Context, accountID string) error {
	_, err := c.do(ctx, http.MethodPost, "/v3/accounts/"+url.PathEscape(accountID)+"/sync/stop", "stop_sync", nil)
	return err
}

// GetAccountStats fetches folder/email counts for all given accounts in
// one call.
func (c *Client) GetAccountStats(ctx context.Context, accountIDs []string) (map[string]AccountStats, error) {
	if len(accountIDs) == 0 {
		return map[string]AccountStats{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(accountIDs, ","))
	resp, err := c.do(ctx, http.MethodGet, "/v3/accounts/stats?"+q.Encode(), "get_account_stats", nil)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]AccountStats, len(resp.Stats))
	for _, s := range resp.Stats {
		stats[s.AccountID] = s
	}
	return stats, nil
}

// RefreshAccessToken refreshes an account's grant token against the
// provider's OAuth endpoint.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenRefreshResult, error) {
	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: c.baseURL + "/v3/oauth/token",
		},
	}

	token := &oauth2.Token{RefreshToken: refreshToken}

	start := time.Now()
	tokenSource := config.TokenSource(ctx, token)
	newToken, err := tokenSource.Token()
	if err != nil {
		metrics.ObserveProviderCall("refresh_token", "error", time.Since(start))
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	metrics.ObserveProviderCall("refresh_token", "ok", time.Since(start))

	result := &TokenRefreshResult{
		AccessToken: newToken.AccessToken,
		ExpiresAt:   newToken.Expiry,
	}

	// The provider may rotate the refresh token.
	if newToken.RefreshToken != "" && newToken.RefreshToken != refreshToken {
		result.RefreshToken = newToken.RefreshToken
	} else {
		result.RefreshToken = refreshToken
	}

	return result, nil
}

// do issues one request and decodes the provider's {success, error, ...}
// envelope. A transport failure, a non-2xx status, or success=false all
// come back as errors carrying the upstream message.
func (c *Client) do(ctx context.Context, method, path, operation string, body interface{}) (resp *apiResponse, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveProviderCall(operation, outcome, time.Since(start))
	}()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded apiResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
				return nil, fmt.Errorf("failed to parse provider response: %w", err)
			}
			return nil, fmt.Errorf("provider error (status %d): %s", httpResp.StatusCode, strings.TrimSpace(string(respBody)))
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		if decoded.Error != "" {
			return nil, fmt.Errorf("provider error (status %d): %s", httpResp.StatusCode, decoded.Error)
		}
		return nil, fmt.Errorf("provider error (status %d): %s", httpResp.StatusCode, http.StatusText(httpResp.StatusCode))
	}

	if !decoded.Success {
		if decoded.Error != "" {
			return nil, fmt.Errorf("provider rejected request: %s", decoded.Error)
		}
		return nil, fmt.Errorf("provider rejected request")
	}

	return &decoded, nil
}
