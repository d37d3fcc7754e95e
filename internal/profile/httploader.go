package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPLoader queries the external profile service over HTTP. It uses a
// dedicated *http.Client with a bounded timeout, built per loader instance
// rather than shared global client state.
type HTTPLoader struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLoader constructs a loader against baseURL, bounding every request
// to timeout.
func NewHTTPLoader(baseURL string, timeout time.Duration) *HTTPLoader {
	return &HTTPLoader{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type profileResponse struct {
	DisplayName string `json:"displayName"`
	Mobile      string `json:"mobile"`
}

// LoadProfile fetches GET {baseURL}/profiles/{customerID}.
func (l *HTTPLoader) LoadProfile(ctx context.Context, customerID string) (Profile, error) {
	u := l.baseURL + "/profiles/" + url.PathEscape(customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile: unexpected status %d for %s", resp.StatusCode, customerID)
	}

	var body profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, fmt.Errorf("profile: decode response: %w", err)
	}
	return Profile{DisplayName: body.DisplayName, Mobile: body.Mobile}, nil
}
