package providers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/DrShushen/climb/internal/engine"
)

// wrapError classifies a provider error for the engine's retry policy.
func wrapError(err error) error {
	status, retryAfter := extractErrorMetadata(err)
	return engine.WrapLLMError(err, status, retryAfter)
}

// extractErrorMetadata extracts the HTTP status code and Retry-After value
// from an SDK error, falling back to scanning the message text.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	errStr := err.Error()
	retryAfter := retryAfterFrom(errStr)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, retryAfter
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, retryAfter
	}

	for marker, code := range anthropicErrorTypes {
		if strings.Contains(errStr, marker) {
			return code, retryAfter
		}
	}
	for _, code := range []int{
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusBadRequest,
		http.StatusPaymentRequired,
	} {
		if strings.Contains(errStr, http.StatusText(code)) || strings.Contains(errStr, strconv.Itoa(code)) {
			return code, retryAfter
		}
	}
	return 0, retryAfter
}

// anthropicErrorTypes maps the error type names Anthropic reports in
// streamed error events, which carry no HTTP status.
var anthropicErrorTypes = map[string]int{
	"rate_limit_error":     http.StatusTooManyRequests,
	"overloaded_error":     529,
	"api_error":            http.StatusInternalServerError,
	"authentication_error": http.StatusUnauthorized,
	"permission_error":     http.StatusForbidden,
}

func retryAfterFrom(errStr string) string {
	lower := strings.ToLower(errStr)
	for _, marker := range []string{"retry-after", "retry after"} {
		if idx := strings.Index(lower, marker); idx != -1 {
			parts := strings.Fields(strings.TrimLeft(errStr[idx+len(marker):], ": "))
			if len(parts) > 0 {
				return parts[0]
			}
		}
	}
	return ""
}
