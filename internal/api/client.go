package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/whole-tale/girder-wt-data-manager/internal/config"
	"github.com/whole-tale/girder-wt-data-manager/internal/constants"
	"github.com/whole-tale/girder-wt-data-manager/internal/http"
	"github.com/whole-tale/girder-wt-data-manager/internal/logging"
	"github.com/whole-tale/girder-wt-data-manager/internal/models"
)

// Girder resource paths, relative to the API root.
const (
	PathContainers     = "dm/testing/container"
	PathTransfers      = "dm/transfer"
	PathSessions       = "dm/session"
	PathDeleteSessions = "dm/testing/deleteSessions"
	PathCreateItems    = "dm/testing/createItems"
	PathSettings       = "system/setting"
)

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("retry: " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg("retry: " + msg)
}

// Client is a Girder REST client for the data-manager endpoints.
//
// Reads go through a retrying client. Commands are sent exactly once.
type Client struct {
	reads    *nethttp.Client
	commands *nethttp.Client
	baseURL  string
	token    string
	log      *logging.Logger
}

// Option customises a Client.
type Option func(*options)

type options struct {
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	log          *logging.Logger
}

// WithRetryMax sets how many times a failed read is retried.
func WithRetryMax(n int) Option { return func(o *options) { o.retryMax = n } }

// WithRetryWait sets the backoff bounds between read retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(o *options) { o.retryWaitMin, o.retryWaitMax = min, max }
}

// WithLogger sets the logger for request failures and retries.
func WithLogger(l *logging.Logger) Option { return func(o *options) { o.log = l } }

// NewClient creates an API client from configuration.
func NewClient(cfg *config.Config, log *logging.Logger) (*Client, error) {
	httpClient, err := http.NewClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	return New(cfg.APIURL, cfg.Token, httpClient, WithRetryMax(cfg.RetryMax), WithLogger(log))
}

// New creates an API client over an existing HTTP client.
func New(baseURL, token string, httpClient *nethttp.Client, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}
	o := options{
		retryMax:     constants.DefaultRetryMax,
		retryWaitMin: constants.RetryInitialDelay,
		retryWaitMax: constants.RetryMaxDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.NewNopLogger()
	}
	if httpClient == nil {
		httpClient = &nethttp.Client{Timeout: constants.APIContextTimeout}
	}

	return &Client{
		reads:    wrapRetry(httpClient, o.retryMax, o, o.log),
		commands: wrapRetry(httpClient, 0, o, o.log),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		token:    token,
		log:      o.log,
	}, nil
}

// wrapRetry returns a standard client that retries up to retryMax times.
// The final response is passed through untouched so error bodies can be parsed.
func wrapRetry(base *nethttp.Client, retryMax int, o options, log *logging.Logger) *nethttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = o.retryWaitMin
	retryClient.RetryWaitMax = o.retryWaitMax
	retryClient.Logger = &retryLogger{log: log}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return retryClient.StandardClient()
}

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is the raw outcome of a successful command.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

// doRequest performs one request and returns the body of a 2xx response.
// Non-2xx responses become *Error.
func (c *Client) doRequest(ctx context.Context, hc *nethttp.Client, method, path string, query url.Values, body io.Reader, contentType string) (int, []byte, error) {
	u := c.baseURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", reqID)
	if c.token != "" {
		req.Header.Set("Girder-Token", c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Debug().Str("method", method).Str("path", path).Str("request_id", reqID).Err(err).Msg("request failed")
		return 0, nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Str("request_id", reqID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, respBody, newError(method, path, resp.StatusCode, respBody)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	_, body, err := c.doRequest(ctx, c.reads, nethttp.MethodGet, path, query, nil, "")
	return body, err
}

// command sends a mutating request once.
func (c *Client) command(ctx context.Context, method, path string, payload any) (*Response, error) {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	status, respBody, err := c.doRequest(ctx, c.commands, method, path, nil, body, contentType)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: status, Body: normalizeBody(respBody)}, nil
}

func normalizeBody(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}

func containerPath(id string) string {
	return PathContainers + "/" + url.PathEscape(id)
}

// ListContainers lists the test containers visible to the user.
func (c *Client) ListContainers(ctx context.Context) ([]models.ContainerRecord, error) {
	body, err := c.get(ctx, PathContainers, nil)
	if err != nil {
		return nil, err
	}
	return models.DecodeList[models.ContainerRecord](PathContainers, body)
}

// GetContainer fetches a single container.
func (c *Client) GetContainer(ctx context.Context, id string) (*models.ContainerRecord, error) {
	path := containerPath(id)
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}

	var rec models.ContainerRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode container: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, &models.ValidationError{
			Resource: path,
			Records:  []models.RecordError{{ID: rec.ID, Err: err}},
		}
	}
	return &rec, nil
}

// ListSessions lists the current user's data-manager sessions.
func (c *Client) ListSessions(ctx context.Context) ([]models.SessionRecord, error) {
	body, err := c.get(ctx, PathSessions, nil)
	if err != nil {
		return nil, err
	}
	return models.DecodeList[models.SessionRecord](PathSessions, body)
}

// ListTransfers lists transfers, restricted to one session when sessionID is set.
func (c *Client) ListTransfers(ctx context.Context, sessionID string) ([]models.TransferRecord, error) {
	path := PathTransfers
	if sessionID != "" {
		path = PathSessions + "/" + url.PathEscape(sessionID) + "/transfer"
	}
	body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	return models.DecodeList[models.TransferRecord](path, body)
}

// CreateContainer asks the server to create a container over dataSet, which
// is sent verbatim as a string.
func (c *Client) CreateContainer(ctx context.Context, dataSet string) (*Response, error) {
	return c.command(ctx, nethttp.MethodPost, PathContainers, struct {
		DataSet string `json:"dataSet"`
	}{DataSet: dataSet})
}

// StartContainer starts a container.
func (c *Client) StartContainer(ctx context.Context, id string) (*Response, error) {
	return c.command(ctx, nethttp.MethodGet, containerPath(id)+"/start", nil)
}

// StopContainer stops a container.
func (c *Client) StopContainer(ctx context.Context, id string) (*Response, error) {
	return c.command(ctx, nethttp.MethodGet, containerPath(id)+"/stop", nil)
}

// RemoveContainer deletes a container.
func (c *Client) RemoveContainer(ctx context.Context, id string) (*Response, error) {
	return c.command(ctx, nethttp.MethodDelete, containerPath(id), nil)
}

// DeleteSessions removes every data-manager session.
func (c *Client) DeleteSessions(ctx context.Context) (*Response, error) {
	return c.command(ctx, nethttp.MethodGet, PathDeleteSessions, nil)
}

// CreateTestItems populates the server with the testing plugin's sample items.
func (c *Client) CreateTestItems(ctx context.Context) (*Response, error) {
	return c.command(ctx, nethttp.MethodPost, PathCreateItems, nil)
}

// GetSettings reads the given Girder settings. Values are returned as raw JSON.
func (c *Client) GetSettings(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	list, err := json.Marshal(keys)
	if err != nil {
		return nil, err
	}
	body, err := c.get(ctx, PathSettings, url.Values{"list": {string(list)}})
	if err != nil {
		return nil, err
	}

	out := make(map[string]json.RawMessage, len(keys))
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return out, nil
}

// SettingValue is one key/value pair for PutSettings.
type SettingValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PutSettings writes settings in one request. The server validates them and
// rejects the whole list with a structured error on the first bad value.
func (c *Client) PutSettings(ctx context.Context, values []SettingValue) error {
	list, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	form := url.Values{"list": {string(list)}}
	_, _, err = c.doRequest(ctx, c.commands, nethttp.MethodPut, PathSettings, nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	return err
}

// SettingString renders a raw setting value for display: strings unquoted,
// everything else as JSON text.
func SettingString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
