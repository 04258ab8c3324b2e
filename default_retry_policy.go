package client

import (
	"net/http"

	"github.com/go-resty/resty/v2"
)

// DefaultRetryPolicy is the default retry condition used by [Client]. It
// retries on HTTP 502 (bad gateway), 503 (service unavailable) and 504
// (gateway timeout). Every other status, and every transport error, is
// surfaced to the caller on the first occurrence.
//
// Supply a custom function via [WithRetryPolicy] to override this behaviour.
// The dispatcher only consults the policy for failed attempts and never
// retries once the request context is done.
func DefaultRetryPolicy(r *resty.Response, err error) bool {
	if err != nil || r == nil {
		return false
	}

	return isTransientStatus(r.StatusCode())
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
