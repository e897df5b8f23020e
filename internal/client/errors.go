package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBodySize = 64 * 1024

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying later may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// parseAPIError builds an APIError from resp and closes its body.
// The message comes from a JSON "detail", "error" or "message" field, then
// from a short plain-text body, then from the status text.
func parseAPIError(resp *http.Response, requestID string) *APIError {
	defer resp.Body.Close()

	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil || len(body) == 0 {
		apiErr.Message = http.StatusText(resp.StatusCode)
		return apiErr
	}

	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, raw := range []json.RawMessage{payload.Detail, payload.Error} {
			if msg := messageFrom(raw); msg != "" {
				apiErr.Message = msg
				return apiErr
			}
		}
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			apiErr.Message = msg
			return apiErr
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		apiErr.Message = text
		return apiErr
	}

	apiErr.Message = http.StatusText(resp.StatusCode)
	return apiErr
}

// messageFrom accepts a string, an object with "message"/"msg", or a list of
// validation items with "msg" (joined with "; ").
func messageFrom(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}

	type item struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	pick := func(it item) string {
		if it.Message != "" {
			return strings.TrimSpace(it.Message)
		}
		return strings.TrimSpace(it.Msg)
	}

	var obj item
	if json.Unmarshal(raw, &obj) == nil {
		if msg := pick(obj); msg != "" {
			return msg
		}
	}

	var list []item
	if json.Unmarshal(raw, &list) == nil {
		msgs := make([]string, 0, len(list))
		for _, it := range list {
			if msg := pick(it); msg != "" {
				msgs = append(msgs, msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
