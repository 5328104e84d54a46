package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"evalgo.org/dataflowmigrator/internal/helpers"
)

// Requester is the authenticated REST surface the migration components use.
// Non-2xx answers are not errors at this level; callers inspect StatusCode.
type Requester interface {
	Get(ctx context.Context, path string) (*Response, error)
	Post(ctx context.Context, path string, body interface{}) (*Response, error)
	Patch(ctx context.Context, path string, body interface{}) (*Response, error)
}

// Response is a fully read REST response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status is 200.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// DecodeJSON unmarshals the body into out.
func (r *Response) DecodeJSON(out interface{}) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// API talks to the Fabric REST API below a base path.
type API struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	maxBody int64
}

// ErrResponseTooLarge is returned when a response body exceeds the read limit.
var ErrResponseTooLarge = errors.New("response too large")

// NewAPI creates an API client. httpClient is expected to attach
// credentials; timeout bounds every single call and may be zero.
func NewAPI(baseURL string, httpClient *http.Client, timeout time.Duration) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{
		baseURL: helpers.NormalizeURL(baseURL),
		http:    httpClient,
		timeout: timeout,
		maxBody: helpers.DefaultRequestBodySize,
	}
}

// BaseURL returns the normalized base URL.
func (a *API) BaseURL() string {
	return a.baseURL
}

// Get issues a GET request.
func (a *API) Get(ctx context.Context, path string) (*Response, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with an optional JSON body.
func (a *API) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return a.do(ctx, http.MethodPost, path, body)
}

// Patch issues a PATCH request with a JSON body.
func (a *API) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return a.do(ctx, http.MethodPatch, path, body)
}

func (a *API) do(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if int64(len(respBody)) > a.maxBody {
		return nil, fmt.Errorf("%s %s: %w (over %d bytes)", method, path, ErrResponseTooLarge, a.maxBody)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return payload, nil
	}
}
