package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/settings"
)

// DefaultTimeout bounds one outbound call including the response body read.
const DefaultTimeout = 30 * time.Second

// excerptLimit caps how much of an error response body is kept in errors.
const excerptLimit = 512

// Request is one fully rendered outbound call.
// Params: method, target, headers, optional body, optional basic-auth
// credentials, optional proxy, and TLS trust mode.
// Returns: input to Invoker.Do.
type Request struct {
	Method   settings.Method
	URL      string
	Headers  []settings.Header
	Body     string
	User     string
	Password string
	Proxy    *settings.Proxy

	// AcceptAnyCertificate disables certificate validation. Explicit
	// opt-in from global settings, never a silent default.
	AcceptAnyCertificate bool
}

// Outcome reports one dispatch attempt.
// Params: response status, duration, and terminal error when failed.
// Returns: record consumed by logging and dispatch history.
type Outcome struct {
	Status   int
	Duration time.Duration
	Err      error
}

// Success reports whether the call completed with a 2xx status.
// Params: none.
// Returns: true when no transport error occurred and status is 2xx.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Invoker executes rendered outbound calls. Safe for concurrent use; the
// HTTP client is rebuilt per call because proxy and trust mode vary per
// notification.
type Invoker struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewInvoker builds an invoker with a per-call timeout.
// Params: per-call timeout (DefaultTimeout when zero) and logger.
// Returns: ready invoker.
func NewInvoker(timeout time.Duration, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Invoker{timeout: timeout, logger: logger}
}

// Do executes one rendered request and reports the outcome.
// Params: request-scoped context and rendered request.
// Returns: outcome; transport errors and non-2xx statuses populate Err.
// The error never propagates as a Go error so sibling dispatches are
// unaffected by this call's failure.
func (i *Invoker) Do(ctx context.Context, req Request) Outcome {
	started := time.Now()

	client, err := i.buildClient(req.Proxy, req.AcceptAnyCertificate)
	if err != nil {
		return Outcome{Duration: time.Since(started), Err: err}
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	request, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return Outcome{Duration: time.Since(started), Err: fmt.Errorf("build request: %w", err)}
	}
	for _, header := range req.Headers {
		request.Header.Add(header.Name, header.Value)
	}
	if req.User != "" {
		request.SetBasicAuth(req.User, req.Password)
	}

	response, err := client.Do(request)
	if err != nil {
		return Outcome{Duration: time.Since(started), Err: fmt.Errorf("dispatch: %w", err)}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Outcome{
			Status:   response.StatusCode,
			Duration: time.Since(started),
			Err:      unexpectedHTTPStatusError("dispatch", response),
		}
	}
	// Drain so the connection can be reused before the client is dropped.
	io.Copy(io.Discard, response.Body)
	if i.logger != nil {
		i.logger.Debug("dispatch completed",
			"method", req.Method, "url", req.URL,
			"status", response.StatusCode, "duration", time.Since(started))
	}
	return Outcome{Status: response.StatusCode, Duration: time.Since(started)}
}

// Fetch performs the injection GET with the same transport policy as Do.
// Params: request-scoped context, target url, optional proxy, trust mode.
// Returns: response body, or an error for transport failure or non-2xx.
func (i *Invoker) Fetch(ctx context.Context, target string, proxy *settings.Proxy, acceptAnyCertificate bool) (string, error) {
	client, err := i.buildClient(proxy, acceptAnyCertificate)
	if err != nil {
		return "", err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build injection request: %w", err)
	}
	response, err := client.Do(request)
	if err != nil {
		return "", fmt.Errorf("injection fetch: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", unexpectedHTTPStatusError("injection fetch", response)
	}
	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read injection response: %w", err)
	}
	return string(raw), nil
}

// buildClient assembles the per-call HTTP client.
// Params: optional proxy endpoint and TLS trust mode.
// Returns: configured client or proxy url construction error.
func (i *Invoker) buildClient(proxy *settings.Proxy, acceptAnyCertificate bool) (*http.Client, error) {
	transport := &http.Transport{}
	if acceptAnyCertificate {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if proxy != nil {
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", proxy.Server, proxy.Port),
		}
		if proxy.User != "" {
			proxyURL.User = url.UserPassword(proxy.User, proxy.Password)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	return &http.Client{Transport: transport, Timeout: i.timeout}, nil
}

// unexpectedHTTPStatusError formats a non-2xx response with a body excerpt.
// Params: label for the failing call and HTTP response pointer.
// Returns: status-only or status+body error.
func unexpectedHTTPStatusError(prefix string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, excerptLimit))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	excerpt := strings.TrimSpace(string(rawBody))
	if excerpt == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%q", prefix, response.StatusCode, excerpt)
}
