// Package pager walks page-numbered registry listings.
//
// A walk stops on the first failed request, on an empty page, after
// MaxPages pages, or after a page shorter than PageSize. The last rule
// assumes the registry never returns a short page followed by more data;
// a listing that does will be truncated.
//
// Project lookup does not walk: it reads one page of 100 projects (see
// client.URLs.Projects).
package pager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
)

// DefaultPageSize is the largest page the registry serves.
const DefaultPageSize = 100

// ErrRestarted is yielded when a walk is ranged over a second time.
var ErrRestarted = errors.New("pager: walk already consumed")

// Getter fetches a URL and returns the response body.
type Getter interface {
	GetBody(ctx context.Context, url string) ([]byte, error)
}

// Options bounds a walk. A MaxPages of 0 means unbounded.
type Options struct {
	PageSize int
	MaxPages int
}

// Page is one decoded JSON array from the listing.
type Page struct {
	Number int
	Items  []json.RawMessage
}

// Walk returns a lazy sequence of pages from endpoint. Pages are fetched
// only as the sequence is consumed, and the sequence can be consumed once.
// A failure is yielded as the final element after any pages already emitted.
func Walk(ctx context.Context, g Getter, endpoint string, opts Options) iter.Seq2[Page, error] {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	consumed := false

	return func(yield func(Page, error) bool) {
		if consumed {
			yield(Page{}, ErrRestarted)
			return
		}
		consumed = true

		for n := 1; ; n++ {
			pageURL, err := withPage(endpoint, n, opts.PageSize)
			if err != nil {
				yield(Page{Number: n}, err)
				return
			}
			body, err := g.GetBody(ctx, pageURL)
			if err != nil {
				yield(Page{Number: n}, err)
				return
			}

			var items []json.RawMessage
			if err := json.Unmarshal(body, &items); err != nil {
				yield(Page{Number: n}, fmt.Errorf("page %d: decoding listing: %w", n, err))
				return
			}
			if len(items) == 0 {
				return
			}
			if !yield(Page{Number: n, Items: items}, nil) {
				return
			}
			if opts.MaxPages > 0 && n >= opts.MaxPages {
				return
			}
			if len(items) < opts.PageSize {
				return
			}
		}
	}
}

// withPage sets per_page and page on endpoint, keeping its other parameters.
func withPage(endpoint string, page, size int) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid listing URL %q: %w", endpoint, err)
	}
	q := u.Query()
	q.Set("per_page", strconv.Itoa(size))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Record is a decoded listing entry that can check its required fields.
type Record interface {
	Validate() error
}

// Decode decodes every item of a page into T, rejecting invalid records.
func Decode[T Record](p Page) ([]T, error) {
	out := make([]T, 0, len(p.Items))
	for i, raw := range p.Items {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return out, fmt.Errorf("page %d item %d: %w", p.Number, i, err)
		}
		if err := rec.Validate(); err != nil {
			return out, fmt.Errorf("page %d item %d: %w", p.Number, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Collect drains a walk into typed records. On error it returns the
// records gathered so far together with the error.
func Collect[T Record](pages iter.Seq2[Page, error]) ([]T, error) {
	var out []T
	for page, err := range pages {
		if err != nil {
			return out, err
		}
		recs, err := Decode[T](page)
		out = append(out, recs...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
