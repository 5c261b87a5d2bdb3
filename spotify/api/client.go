package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/xeptore/zotify/httputil"
	"github.com/xeptore/zotify/ratelimit"
	"github.com/xeptore/zotify/spotify/types"
)

var ErrNotFound = errors.New("not found")

// TokenSource returns a valid Web API bearer token.
type TokenSource func(ctx context.Context) (string, error)

type Options struct {
	BaseURL         string
	Language        string
	Timeout         time.Duration
	PageConcurrency int
}

type Client struct {
	logger   zerolog.Logger
	http     *http.Client
	opts     Options
	token    TokenSource
	governor *ratelimit.Governor
	policy   ratelimit.Policy
}

func NewClient(
	logger zerolog.Logger,
	opts Options,
	token TokenSource,
	governor *ratelimit.Governor,
	policy ratelimit.Policy,
) *Client {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	opts.PageConcurrency = lo.Ternary(opts.PageConcurrency > 0, opts.PageConcurrency, 1)

	return &Client{
		logger: logger,
		http: &http.Client{ //nolint:exhaustruct
			Timeout: opts.Timeout,
		},
		opts:     opts,
		token:    token,
		governor: governor,
		policy:   policy,
	}
}

// getJSON fetches path under the governor's retry policy and decodes the
// response body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	b, err := c.get(ctx, path, query)
	if nil != err {
		return err
	}

	if err := json.Unmarshal(b, out); nil != err {
		return fmt.Errorf("failed to decode %s response body: %v", path, err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	var body []byte
	err := c.governor.Do(ctx, c.policy, func(ctx context.Context) error {
		b, err := c.do(ctx, path, query)
		if nil != err {
			return err
		}
		body = b

		return nil
	})
	if nil != err {
		return nil, err
	}

	return body, nil
}

func (c *Client) requestURL(path string, query url.Values) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}

	reqURL, err := url.Parse(c.opts.BaseURL + "/" + strings.TrimPrefix(path, "/"))
	if nil != err {
		return "", fmt.Errorf("failed to parse request URL: %v", err)
	}

	if len(query) > 0 {
		reqURL.RawQuery = query.Encode()
	}

	return reqURL.String(), nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (b []byte, err error) {
	logger := c.logger.With().Str("path", path).Logger()

	reqURL, err := c.requestURL(path, query)
	if nil != err {
		return nil, err
	}

	accessToken, err := c.token(ctx)
	if nil != err {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if nil != err {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Add("Authorization", "Bearer "+accessToken)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Accept-Language", c.opts.Language)

	resp, err := c.http.Do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close response body: %v", closeErr))
		}
	}()

	switch code := resp.StatusCode; code {
	case http.StatusOK:
		return httputil.ReadResponseBody(resp)
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusUnauthorized:
		respBytes, _ := httputil.ReadOptionalResponseBody(resp)
		logger.Error().Str("message", httputil.ErrorMessage(respBytes)).Msg("Access token was rejected")

		return nil, types.ErrUnauthorized
	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		retryAfter := httputil.RetryAfter(resp.Header, time.Now())
		logger.Debug().Dur("retry_after", retryAfter).Msg("Received too many requests response")

		return nil, &types.RateLimitedError{RetryAfter: retryAfter}
	default:
		respBytes, err := httputil.ReadOptionalResponseBody(resp)
		if nil != err {
			return nil, fmt.Errorf("failed to read unexpected response body: %w", err)
		}

		logger.Error().Int("status_code", code).Bytes("response_body", respBytes).Msg("Unexpected response status code")

		return nil, &types.UpstreamError{Status: code, Message: httputil.ErrorMessage(respBytes)}
	}
}

// Cover downloads cover art. Image hosts are not rate limited, so the request
// bypasses the governor.
func (c *Client) Cover(ctx context.Context, imageURL string) (b []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if nil != err {
		return nil, fmt.Errorf("failed to create cover request: %v", err)
	}

	resp, err := c.http.Do(req)
	if nil != err {
		return nil, fmt.Errorf("failed to send cover request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close cover response body: %v", closeErr))
		}
	}()

	if code := resp.StatusCode; code != http.StatusOK {
		return nil, &types.UpstreamError{Status: code, Message: "cover download failed"}
	}

	return httputil.ReadResponseBody(resp)
}
