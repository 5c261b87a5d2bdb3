package api

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type SearchHit struct {
	Category string
	ID       string
	Name     string
	Detail   string
}

type SearchResults struct {
	Hits []SearchHit
}

func (r SearchResults) ByCategory(category string) []SearchHit {
	return lo.Filter(r.Hits, func(h SearchHit, _ int) bool { return h.Category == category })
}

// Search runs query against the given categories. Hits are grouped by category
// in the order categories were given.
func (c *Client) Search(ctx context.Context, query string, categories []string, limit int) (*SearchResults, error) {
	q := marketQuery()
	q.Set("q", query)
	q.Set("type", strings.Join(categories, ","))
	q.Set("limit", strconv.Itoa(limit))

	type namedObject struct {
		ID        string         `json:"id"`
		Name      string         `json:"name"`
		Artists   []artistObject `json:"artists"`
		Publisher string         `json:"publisher"`
		Owner     *struct {
			DisplayName string `json:"display_name"`
		} `json:"owner"`
	}

	var respBody map[string]*page[*namedObject]
	if err := c.getJSON(ctx, "search", q, &respBody); nil != err {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var results SearchResults
	for _, category := range categories {
		p, ok := respBody[category+"s"]
		if !ok || nil == p {
			continue
		}

		for _, item := range p.Items {
			if nil == item {
				continue
			}

			var detail string
			switch {
			case len(item.Artists) > 0:
				detail = strings.Join(lo.Map(item.Artists, func(a artistObject, _ int) string { return a.Name }), ", ")
			case len(item.Publisher) > 0:
				detail = item.Publisher
			case nil != item.Owner:
				detail = item.Owner.DisplayName
			}

			results.Hits = append(results.Hits, SearchHit{
				Category: category,
				ID:       item.ID,
				Name:     item.Name,
				Detail:   detail,
			})
		}
	}

	return &results, nil
}
