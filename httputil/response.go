package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

func ReadResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(resp.Body)
	if nil != err {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	if len(respBody) == 0 {
		return nil, errors.New("unexpected empty response body")
	}

	return respBody, nil
}

func ReadOptionalResponseBody(resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(resp.Body)
	if nil != err {
		return nil, fmt.Errorf("failed to read response body: %v", err)
	}

	return respBody, nil
}

// ErrorMessage extracts the error message of a JSON error response body.
// Both {"error": {"message": "..."}} and {"error": "...", "error_description": "..."}
// shapes are understood.
func ErrorMessage(b []byte) string {
	if !gjson.ValidBytes(b) {
		return strings.TrimSpace(string(b))
	}

	res := gjson.GetManyBytes(b, "error.message", "error_description", "error")
	for _, r := range res {
		if r.Type == gjson.String && len(r.Str) > 0 {
			return r.Str
		}
	}

	return ""
}

// RetryAfter parses the Retry-After response header which holds either
// delay-seconds or an HTTP date.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); nil == err {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(v); nil == err {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}
