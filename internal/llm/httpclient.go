package llm

import (
	"net"
	"net/http"
	"time"
)

// newStreamingHTTPClient builds an HTTP client sized for long-lived
// streaming completions. The header timeout bounds time-to-first-byte;
// the overall timeout bounds the whole stream.
func newStreamingHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Timeout:   180 * time.Second,
		Transport: transport,
	}
}
