package backend

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const DefaultSessionCookie = "session"

type Config struct {
	BaseURL string
	// Timeout bounds a single read attempt.
	Timeout time.Duration
	// WriteTimeout bounds a mutation or form submission. Zero leaves it to
	// the caller's context.
	WriteTimeout  time.Duration
	RetryMax      int
	SessionCookie string
	Logger        logrus.FieldLogger
}

// Client talks to the merchandising backend. Reads go through a retrying
// client; mutations are sent once.
type Client struct {
	baseURL    string
	cookieName string
	cookie     string
	reads      *retryablehttp.Client
	writes     *http.Client
	log        logrus.FieldLogger
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = DefaultSessionCookie
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	reads := retryablehttp.NewClient()
	reads.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	reads.RetryMax = cfg.RetryMax
	reads.RetryWaitMin = 100 * time.Millisecond
	reads.RetryWaitMax = 2 * time.Second
	reads.CheckRetry = checkRetry
	reads.ErrorHandler = retryablehttp.PassthroughErrorHandler
	reads.Logger = leveledLogger{log: logger.WithField("component", "backend")}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cookieName: cfg.SessionCookie,
		reads:      reads,
		writes:     &http.Client{Timeout: cfg.WriteTimeout},
		log:        logger,
	}
}

// WithSession returns a copy of c that forwards the given backend session
// cookie value on every request.
func (c *Client) WithSession(value string) *Client {
	cp := *c
	cp.cookie = value
	return &cp
}

func (c *Client) SessionCookieName() string {
	return c.cookieName
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	c.applySession(req.Header)

	resp, err := c.reads.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: GET %s: %v", ErrTransport, path, err)
	}
	return c.readEnvelope(resp, path)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode %s payload: %w", path, err)
	}
	return c.post(ctx, path, "application/json", bytes.NewReader(body))
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.applySession(req.Header)

	resp, err := c.writes.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: POST %s: %v", ErrTransport, path, err)
	}
	return c.readEnvelope(resp, path)
}

func (c *Client) applySession(h http.Header) {
	if c.cookie == "" {
		return
	}
	h.Set("Cookie", (&http.Cookie{Name: c.cookieName, Value: c.cookie}).String())
}

func (c *Client) readEnvelope(resp *http.Response, path string) (gjson.Result, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	result, err := decodeEnvelope(resp.StatusCode, raw)
	if err != nil {
		c.log.WithFields(logrus.Fields{"path": path, "status": resp.StatusCode}).WithError(err).Debug("backend call failed")
	}
	return result, err
}

// decodeEnvelope checks the {success, message, ...} wrapper every backend
// response carries.
func decodeEnvelope(status int, raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		if status >= http.StatusInternalServerError {
			return gjson.Result{}, fmt.Errorf("%w: status %d", ErrTransport, status)
		}
		return gjson.Result{}, fmt.Errorf("%w: status %d: body is not JSON", ErrMalformed, status)
	}
	result := gjson.ParseBytes(raw)
	success := result.Get("success")
	if !success.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: status %d: missing success flag", ErrMalformed, status)
	}
	if !success.Bool() {
		return gjson.Result{}, &APIError{Status: status, Message: strings.TrimSpace(result.Get("message").String())}
	}
	return result, nil
}

// checkRetry leaves 500s alone: the backend reports logical failures with
// that status and repeating them only repeats the same answer.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusInternalServerError {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func stringArray(result gjson.Result) ([]string, error) {
	if !result.Exists() || result.Type == gjson.Null {
		return []string{}, nil
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: expected array", ErrMalformed)
	}
	out := make([]string, 0, len(result.Array()))
	for _, item := range result.Array() {
		out = append(out, item.String())
	}
	return out, nil
}

type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Warn(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
