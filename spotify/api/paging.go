package api

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strconv"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/zotify/mathutil"
)

// pages fetches every page of an offset-paginated listing. The first page
// reveals the total, the remaining ones are fetched concurrently and
// concatenated in order.
func pages[T any](ctx context.Context, c *Client, path string, query url.Values, limit int) ([]T, error) {
	pageQuery := func(offset int) url.Values {
		q := maps.Clone(query)
		if nil == q {
			q = make(url.Values, 2)
		}
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))

		return q
	}

	var first page[T]
	if err := c.getJSON(ctx, path, pageQuery(0), &first); nil != err {
		return nil, fmt.Errorf("failed to get first page: %w", err)
	}

	numPages := mathutil.DivCeil(first.Total, limit)
	if numPages <= 1 {
		return first.Items, nil
	}

	var (
		results   = make([][]T, numPages)
		wg, wgCtx = errgroup.WithContext(ctx)
	)
	results[0] = first.Items

	wg.SetLimit(c.opts.PageConcurrency)
	for i := 1; i < numPages; i++ {
		wg.Go(func() error {
			var p page[T]
			if err := c.getJSON(wgCtx, path, pageQuery(i*limit), &p); nil != err {
				return fmt.Errorf("failed to get page %d: %w", i, err)
			}
			results[i] = p.Items

			return nil
		})
	}

	if err := wg.Wait(); nil != err {
		return nil, err
	}

	return lo.Flatten(results), nil
}

// cursorPages follows next links sequentially. unwrap extracts the page
// from a response body that nests it under a key.
func cursorPages[T any](
	ctx context.Context,
	c *Client,
	path string,
	query url.Values,
	unwrap func(b []byte) (*page[T], error),
) ([]T, error) {
	var (
		out  []T
		next = path
		q    = query
	)
	for len(next) > 0 {
		b, err := c.get(ctx, next, q)
		if nil != err {
			return nil, err
		}

		p, err := unwrap(b)
		if nil != err {
			return nil, err
		}
		out = append(out, p.Items...)

		next, q = lo.FromPtr(p.Next), nil
	}

	return out, nil
}
