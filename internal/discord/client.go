// Package discord wraps the small slice of the Discord REST API the hub
// needs: OAuth2 code exchange, member role lookup, role grants, and
// webhook execution.
package discord

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
)

const defaultBaseURL = "https://discord.com/api/v10"

// Client wraps interactions with the Discord API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	botToken     string
	guildID      string
}

// Config collects the credentials the client needs.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BotToken     string
	GuildID      string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(base, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		botToken:     cfg.BotToken,
		guildID:      cfg.GuildID,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// User is the subset of the Discord user object the hub stores.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// AuthURL builds the OAuth2 authorization redirect for the identify scope.
func (c *Client) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "identify")
	q.Set("state", state)
	return "https://discord.com/oauth2/authorize?" + q.Encode()
}

// ExchangeCode trades an OAuth2 authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("discord: token exchange returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("discord: decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("discord: empty access token")
	}
	return payload.AccessToken, nil
}

// FetchIdentity loads the authenticated user's profile with a user token.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (User, error) {
	var user User
	err := c.getJSON(ctx, "/users/@me", "Bearer "+accessToken, &user)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// FetchMemberRoles returns the role IDs the user holds in the configured
// guild, via the bot token.
func (c *Client) FetchMemberRoles(ctx context.Context, userID string) ([]string, error) {
	var member struct {
		Roles []string `json:"roles"`
	}
	path := fmt.Sprintf("/guilds/%s/members/%s", c.guildID, userID)
	if err := c.getJSON(ctx, path, "Bot "+c.botToken, &member); err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// AddMemberRole grants a guild role to the user.
func (c *Client) AddMemberRole(ctx context.Context, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", c.guildID, userID, roleID)
	return c.do(ctx, http.MethodPut, path, "Bot "+c.botToken, nil)
}

// RemoveMemberRole revokes a guild role from the user.
func (c *Client) RemoveMemberRole(ctx context.Context, userID, roleID string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", c.guildID, userID, roleID)
	return c.do(ctx, http.MethodDelete, path, "Bot "+c.botToken, nil)
}

// WebhookEmbed is a Discord embed object.
type WebhookEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []WebhookEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// WebhookEmbedField is a single embed field.
type WebhookEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// WebhookPayload is the body of a webhook execution.
type WebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []WebhookEmbed `json:"embeds,omitempty"`
}

// ExecuteWebhook posts a payload to a webhook URL. The URL comes from
// category or department configuration, not from this client's base URL.
func (c *Client) ExecuteWebhook(ctx context.Context, webhookURL string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path, authorization string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authorization)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: GET %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

func (c *Client) do(ctx context.Context, method, path, authorization string, body []byte) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", authorization)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: %s %s returned status %d", method, path, resp.StatusCode)
	}
	return nil
}
