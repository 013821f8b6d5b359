package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusClient posts status updates to a Twitter-style statuses/update
// endpoint using basic auth.
type StatusClient struct {
	url      string
	username string
	password string
	client   *http.Client
}

func NewStatusClient(endpoint, username, password string, timeout time.Duration) *StatusClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StatusClient{
		url:      endpoint,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type statusResponse struct {
	ID    json.Number `json:"id"`
	IDStr string      `json:"id_str"`
}

// Post publishes message and returns the id the API assigned to it.
func (c *StatusClient) Post(ctx context.Context, message string) (string, error) {
	form := url.Values{}
	form.Set("status", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	default:
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}

	id := sr.IDStr
	if id == "" {
		id = sr.ID.String()
	}
	if id == "" {
		return "", fmt.Errorf("missing id in response body=%q", string(body))
	}
	return id, nil
}
