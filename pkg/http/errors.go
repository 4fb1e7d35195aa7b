package http

import (
	"errors"
	"net/http"
)

var (
	ErrMalformedURL       = errors.New("malformed URL")
	ErrUnsupportedScheme  = errors.New("unsupported URL scheme")
	ErrURLTooLong         = errors.New("URL too long")
	ErrMalformedStatus    = errors.New("malformed status line")
	ErrInvalidLength      = errors.New("invalid Content-Length header")
	ErrMissingLength      = errors.New("headers complete without Content-Length")
	ErrBufferExhausted    = errors.New("receive buffer exhausted before headers complete")
	ErrRedirectNotAllowed = errors.New("redirects are not followed (3xx)")
	ErrServerProblem      = errors.New("server error (5xx)")
	ErrResourceNotFound   = errors.New("resource not found (404)")
	ErrAccessDenied       = errors.New("access denied (403)")
	ErrClientRequest      = errors.New("client error (4xx)")
	ErrUnexpectedStatus   = errors.New("unexpected status")
)

// ClassifyStatus converts a response status code into an error; 2xx is nil.
func ClassifyStatus(statusCode int) error {
	switch statusCode {
	case http.StatusNotFound:
		return ErrResourceNotFound
	case http.StatusForbidden:
		return ErrAccessDenied
	default:
		switch {
		case statusCode >= http.StatusInternalServerError:
			return ErrServerProblem
		case statusCode >= http.StatusBadRequest:
			return ErrClientRequest
		case statusCode >= http.StatusMultipleChoices:
			return ErrRedirectNotAllowed
		case statusCode >= http.StatusOK:
			return nil
		default:
			return ErrUnexpectedStatus
		}
	}
}
