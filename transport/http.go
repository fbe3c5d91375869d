package transport

import (
	"bytes"
	"chat-client/domain"
	"chat-client/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// HTTPConfig holds configuration for creating an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the root of the chat service (e.g. "http://localhost:8000").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Tokens supplies the bearer token for message routes. Optional.
	Tokens TokenSource
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// HTTPClient talks to the chat service REST API. It implements AuthAPI and MessageAPI.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *slog.Logger
}

var (
	_ AuthAPI    = (*HTTPClient)(nil)
	_ MessageAPI = (*HTTPClient)(nil)
)

func NewHTTPClient(config HTTPConfig) (*HTTPClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("transport: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("transport: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     config.Tokens,
		log:        logger,
	}, nil
}

// authResponse is the body returned by login, refresh and verify-otp.
type authResponse struct {
	Success      *bool  `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
}

func (r authResponse) rejected() bool {
	return r.Success != nil && !*r.Success
}

func (r authResponse) credentials() domain.Credentials {
	return domain.Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Identity: domain.Identity{
			UserID:      r.UserID,
			Email:       r.Email,
			DisplayName: r.Username,
		},
	}
}

func (c *HTTPClient) Verify(ctx context.Context, accessToken string) (bool, error) {
	if accessToken == "" {
		return false, nil
	}
	_, err := c.doRequest(ctx, http.MethodGet, "/api/auth/verify", accessToken, nil, nil)
	switch {
	case err == nil:
		return true, nil
	case isRejection(err):
		return false, nil
	default:
		return false, err
	}
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/auth/refresh", "", nil,
		map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return RefreshResult{}, err
	}
	var response authResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return RefreshResult{}, fmt.Errorf("%w: refresh response: %v", errors.ErrTransport, err)
	}
	if response.rejected() || response.AccessToken == "" {
		return RefreshResult{}, fmt.Errorf("%w: refresh: %s", errors.ErrAuthentication, response.Message)
	}
	return RefreshResult{AccessToken: response.AccessToken, UserID: response.UserID}, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (domain.Credentials, error) {
	return c.credentialsRequest(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *HTTPClient) Register(ctx context.Context, email, username, password string) error {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/auth/register", "", nil, map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	var response authResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("%w: register response: %v", errors.ErrTransport, err)
	}
	if response.rejected() {
		return fmt.Errorf("%w: %s", errors.ErrInvalidRequest, response.Message)
	}
	return nil
}

func (c *HTTPClient) ConfirmRegistration(ctx context.Context, email, code string) (domain.Credentials, error) {
	return c.credentialsRequest(ctx, "/api/auth/verify-otp", map[string]string{
		"email":    email,
		"otp_code": code,
	})
}

func (c *HTTPClient) credentialsRequest(ctx context.Context, path string, payload any) (domain.Credentials, error) {
	body, err := c.doRequest(ctx, http.MethodPost, path, "", nil, payload)
	if err != nil {
		return domain.Credentials{}, err
	}
	var response authResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return domain.Credentials{}, fmt.Errorf("%w: %s response: %v", errors.ErrTransport, path, err)
	}
	if response.rejected() {
		return domain.Credentials{}, fmt.Errorf("%w: %s", errors.ErrAuthentication, response.Message)
	}
	creds := response.credentials()
	if !creds.Complete() {
		return domain.Credentials{}, fmt.Errorf("%w: %s returned a partial credential set", errors.ErrIncompleteCredentials, path)
	}
	return creds, nil
}

func (c *HTTPClient) FetchConversation(ctx context.Context, local, remote string) ([]domain.Message, error) {
	query := url.Values{"user_id": {local}}
	body, err := c.doRequest(ctx, http.MethodGet, "/api/messages/chat/"+url.PathEscape(remote), c.bearer(ctx), query, nil)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: conversation response: %v", errors.ErrTransport, err)
	}
	messages := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		m, err := DecodeMessage(r)
		if err != nil {
			c.log.Warn("Skipping undecodable message in conversation", "remote", remote, "error", err)
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (c *HTTPClient) Send(ctx context.Context, sender, recipient, content string) (domain.Message, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/messages/send", c.bearer(ctx), nil, map[string]string{
		"sender_id":    sender,
		"recipient_id": recipient,
		"content":      content,
	})
	if err != nil {
		return domain.Message{}, err
	}
	m, err := DecodeMessage(body)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: send response: %v", errors.ErrTransport, err)
	}
	// The send route answers with the stored (encrypted) record, not the plain text.
	if m.Content == "" {
		m.Content = content
	}
	return m, nil
}

func (c *HTTPClient) bearer(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, _ := c.tokens.Token(ctx)
	return token
}

// doRequest performs one JSON round-trip. Network failures wrap ErrTransport,
// non-2xx answers are returned as *APIError.
func (c *HTTPClient) doRequest(ctx context.Context, method, path, accessToken string, query url.Values, requestBody any) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("transport: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("transport: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		request.Header.Set("Authorization", "Bearer "+accessToken)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errors.ErrTransport, method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s %s: %v", errors.ErrTransport, method, path, err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	c.log.Debug("Remote rejected request", "method", method, "path", path, "status", response.StatusCode)
	return nil, &APIError{StatusCode: response.StatusCode, Detail: errorDetail(responseBody)}
}

// errorDetail extracts the human-readable reason from an error body.
func errorDetail(body []byte) string {
	var shape struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return strings.TrimSpace(string(body))
	}
	var detail string
	if err := json.Unmarshal(shape.Detail, &detail); err == nil && detail != "" {
		return detail
	}
	if len(shape.Detail) > 0 {
		return string(shape.Detail)
	}
	return shape.Message
}

func isRejection(err error) bool {
	apiErr, ok := err.(*APIError) //nolint:errorlint // doRequest returns it unwrapped
	return ok && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden)
}
