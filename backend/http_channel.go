/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/acronis/go-feedgate/feed"
	"github.com/acronis/go-feedgate/httpclient"
	"github.com/acronis/go-feedgate/internal/libinfo"
	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/netutil"
	"github.com/acronis/go-feedgate/retry"
)

const (
	documentAPIPath = "/document/v1/"
	headerClientID  = "X-Feed-Client-ID"
	requestType     = "backend"
)

// DeliveryError is returned when the backend responds with a non-successful status.
type DeliveryError struct {
	StatusCode int
	Message    string
}

func (e *DeliveryError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Message)
}

// Temporary returns true when the delivery may succeed if it's retried.
func (e *DeliveryError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// HTTPChannel delivers operations to the document API of the backend over HTTP.
// Put is sent as POST, update as PUT and remove as DELETE to <url>/document/v1/<document id>.
type HTTPChannel struct {
	baseURL     *url.URL
	client      *http.Client
	retryPolicy retry.Policy // nil when retries are disabled
	logger      log.FieldLogger
	metrics     *httpclient.PrometheusMetricsCollector
}

// HTTPChannelOpts represents options for NewHTTPChannel.
type HTTPChannelOpts struct {
	// MetricsNamespace is a namespace for metrics of requests to the backend.
	MetricsNamespace string

	// Transport is the innermost round tripper. By default, it's created from the config.
	Transport http.RoundTripper
}

// NewHTTPChannel creates a new HTTPChannel.
func NewHTTPChannel(cfg *Config, logger log.FieldLogger) (*HTTPChannel, error) {
	return NewHTTPChannelWithOpts(cfg, logger, HTTPChannelOpts{})
}

// NewHTTPChannelWithOpts creates a new HTTPChannel with options.
func NewHTTPChannelWithOpts(cfg *Config, logger log.FieldLogger, opts HTTPChannelOpts) (*HTTPChannel, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		tr.DialContext = netutil.NewDialer(cfg.DNS.Servers, time.Duration(cfg.DNS.Timeout)).DialContext
		transport = tr
	}

	clientCfg := cfg.Client
	if clientCfg == nil {
		clientCfg = httpclient.NewDefaultConfig()
	}
	metrics := httpclient.NewPrometheusMetricsCollector(opts.MetricsNamespace)
	client, err := httpclient.NewWithOpts(clientCfg, httpclient.Opts{
		UserAgent:   libinfo.UserAgent(),
		RequestType: requestType,
		Delegate:    transport,
		Logger:      logger,
		Collector:   metrics,
		Timeout:     time.Duration(cfg.RequestTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create backend http client: %w", err)
	}

	ch := &HTTPChannel{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
	if cfg.Retries.MaxAttempts > 0 {
		ch.retryPolicy = retry.NewExponentialBackoffPolicy(time.Duration(cfg.Retries.InitialInterval),
			time.Duration(cfg.Retries.MaxInterval), cfg.Retries.MaxAttempts)
	}
	return ch, nil
}

// MustRegisterMetrics registers metrics of requests to the backend in Prometheus client and panics if any error occurs.
func (c *HTTPChannel) MustRegisterMetrics() {
	c.metrics.MustRegister()
}

// UnregisterMetrics unregisters metrics of requests to the backend in Prometheus client.
func (c *HTTPChannel) UnregisterMetrics() {
	c.metrics.Unregister()
}

// Open opens a new handle for the client. It doesn't do any I/O.
func (c *HTTPChannel) Open(params HandleParams) (Handle, error) {
	if params.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	if params.Timeout <= 0 {
		params.Timeout = DefaultTimeout
	}
	return &httpHandle{
		channel: c,
		params:  params,
		logger:  c.logger.With(log.String("client_id", params.ClientID)),
	}, nil
}

// CloseIdleConnections closes connections to the backend which are not in use.
func (c *HTTPChannel) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

type httpHandle struct {
	channel *HTTPChannel
	params  HandleParams
	logger  log.FieldLogger

	// Deliveries hold the read lock, Release takes the write lock and so waits for them.
	mu       sync.RWMutex
	released bool
}

func (h *httpHandle) Deliver(ctx context.Context, op feed.Operation) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return ErrHandleReleased
	}

	ctx, cancel := context.WithTimeout(ctx, h.params.Timeout)
	defer cancel()

	if h.channel.retryPolicy == nil {
		return h.deliverOnce(ctx, op)
	}
	return retry.DoWithRetry(ctx, h.channel.retryPolicy, isRetryable,
		retry.LogNotify(h.logger.With(log.String("document_id", op.DocumentID)), "delivery to backend failed, retrying"),
		func(ctx context.Context) error {
			return h.deliverOnce(ctx, op)
		})
}

func (h *httpHandle) deliverOnce(ctx context.Context, op feed.Operation) error {
	req, err := h.newRequest(ctx, op)
	if err != nil {
		return err
	}
	resp, err := h.channel.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			h.logger.Warn("closing backend response body failed", log.Error(closeErr))
		}
	}()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &DeliveryError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}

func (h *httpHandle) newRequest(ctx context.Context, op feed.Operation) (*http.Request, error) {
	var method string
	switch op.Type {
	case feed.OperationPut:
		method = http.MethodPost
	case feed.OperationUpdate:
		method = http.MethodPut
	case feed.OperationRemove:
		method = http.MethodDelete
	default:
		return nil, fmt.Errorf("unknown operation %q", op.Type)
	}

	var body io.Reader
	if len(op.Fields) != 0 {
		var buf bytes.Buffer
		buf.WriteString(`{"fields":`)
		buf.Write(op.Fields)
		buf.WriteString(`}`)
		body = &buf
	}

	u := *h.channel.baseURL
	u.RawPath = h.channel.baseURL.EscapedPath() + documentAPIPath + url.PathEscape(op.DocumentID)
	u.Path += documentAPIPath + op.DocumentID

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerClientID, h.params.ClientID)
	return req, nil
}

func (h *httpHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrHandleReleased
	}
	h.released = true
	h.logger.Debug("backend handle released")
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
