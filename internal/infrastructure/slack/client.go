package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"relay-core-integrations-layer/internal/ports"

	"github.com/rs/zerolog"
)

const defaultAPIURL = "https://slack.com/api"

// Client resolves human-entered channel names against the Slack web API.
// This is the concrete ChannelResolver for slack-notify actions; the core
// only ever sees the interface.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new Slack client
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
		logger:     logger,
	}
}

type conversationsResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// ResolveChannel looks up the channel ID for a channel name. A leading "#"
// is accepted and stripped.
func (c *Client) ResolveChannel(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "#")
	cursor := ""

	for {
		values := url.Values{}
		values.Set("limit", "200")
		values.Set("exclude_archived", "true")
		if cursor != "" {
			values.Set("cursor", cursor)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/conversations.list?"+values.Encode(), nil)
		if err != nil {
			return "", fmt.Errorf("failed to create channel lookup request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to look up channel: %w", err)
		}

		var body conversationsResponse
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("failed to decode channel lookup response: %w", err)
		}
		if !body.OK {
			c.logger.Warn().
				Str("channel", name).
				Str("slackError", body.Error).
				Msg("Slack channel lookup rejected")
			return "", fmt.Errorf("channel lookup rejected: %s", body.Error)
		}

		for _, ch := range body.Channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}

		cursor = body.ResponseMetadata.NextCursor
		if cursor == "" {
			return "", fmt.Errorf("channel %q not found", name)
		}
	}
}

var _ ports.ChannelResolver = (*Client)(nil)
