// Package helpers provides utility functions for Fabric REST operations.
package helpers

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// DebugMode controls whether detailed debug logging is enabled
var DebugMode bool = false

// DebugLog logs a message only if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	if DebugMode {
		logrus.Debugf(DebugPrefix+format, args...)
	}
}

// DebugLogHTTP logs HTTP-related debug messages only if debug mode is enabled
func DebugLogHTTP(format string, args ...interface{}) {
	if DebugMode {
		logrus.Debugf(DebugHTTPPrefix+format, args...)
	}
}

// NormalizeURL removes trailing slashes from URLs to prevent double-slash issues
func NormalizeURL(urlStr string) string {
	return strings.TrimRight(strings.TrimSpace(urlStr), "/")
}

// JoinPath builds a REST path from escaped segments, e.g.
// JoinPath("workspaces", id, "items") == "/workspaces/<id>/items".
func JoinPath(segments ...string) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// DebugHTTPTransport wraps an http.RoundTripper to log request/response details
type DebugHTTPTransport struct {
	Transport http.RoundTripper
}

// RoundTrip implements http.RoundTripper interface with debugging
func (d *DebugHTTPTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	DebugLogHTTP("%s %s", req.Method, req.URL.String())

	resp, err := d.Transport.RoundTrip(req)
	if err != nil {
		DebugLogHTTP("Request failed: %v", err)
		return resp, err
	}

	DebugLogHTTP("Response Status: %d %s", resp.StatusCode, resp.Status)

	// Error bodies are logged and then restored for the caller
	if DebugMode && resp.StatusCode >= 400 {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			DebugLogHTTP("Failed to read error response body: %v", readErr)
		} else {
			DebugLogHTTP("error response body (status %d): %s", resp.StatusCode, string(bodyBytes))
			resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}
	}

	return resp, err
}

// EnableHTTPDebugLogging wraps the HTTP client with debug logging
func EnableHTTPDebugLogging(client *http.Client) *http.Client {
	if client == nil {
		client = &http.Client{}
	}

	transport := client.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	wrapped := *client
	wrapped.Transport = &DebugHTTPTransport{Transport: transport}
	return &wrapped
}
