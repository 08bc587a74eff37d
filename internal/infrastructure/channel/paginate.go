package channel

import (
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"strconv"
)

// Page is one page of a paginated listing
type Page struct {
	Number     int
	Items      []json.RawMessage
	// TotalPages is the page count reported by the channel, 0 when unknown
	TotalPages int
}

// PageDecoder extracts items and the total page count from a response
type PageDecoder func(resp *Response) (items []json.RawMessage, totalPages int, err error)

// PageOptions configures Paginate
type PageOptions struct {
	PageParam string
	SizeParam string
	PerPage   int
	Decoder   PageDecoder
}

func (o PageOptions) withDefaults() PageOptions {
	if o.PageParam == "" {
		o.PageParam = "page"
	}
	if o.SizeParam == "" {
		o.SizeParam = "per_page"
	}
	if o.Decoder == nil {
		o.Decoder = DecodeArrayPage
	}
	return o
}

// DecodeArrayPage decodes a JSON array body and reads the total from X-WP-TotalPages
func DecodeArrayPage(resp *Response) ([]json.RawMessage, int, error) {
	var items []json.RawMessage
	if err := resp.Decode(&items); err != nil {
		return nil, 0, err
	}
	total, _ := strconv.Atoi(resp.Header.Get("X-WP-TotalPages"))
	return items, total, nil
}

// Paginate lists collection page by page. A page count reported by the channel decides
// where the listing ends. Without one, the listing ends at an empty page or at a page
// shorter than PerPage or than the largest seen so far, so PerPage must not exceed
// the channel's own page size cap. A failed page is yielded as an error and ends the
// listing.
//
// The sequence is lazy and restartable: breaking out stops fetching, and ranging over
// it again starts from the first page.
func (c *Client) Paginate(ctx context.Context, collection string, query url.Values, opts PageOptions) iter.Seq2[Page, error] {
	opts = opts.withDefaults()
	return func(yield func(Page, error) bool) {
		largest := 0
		for number := 1; ; number++ {
			if err := ctx.Err(); err != nil {
				yield(Page{Number: number}, err)
				return
			}

			q := url.Values{}
			for k, v := range query {
				q[k] = append([]string(nil), v...)
			}
			q.Set(opts.PageParam, strconv.Itoa(number))
			if opts.PerPage > 0 {
				q.Set(opts.SizeParam, strconv.Itoa(opts.PerPage))
			}

			resp, err := c.Get(ctx, collection, q)
			if err != nil {
				yield(Page{Number: number}, err)
				return
			}
			items, total, err := opts.Decoder(resp)
			if err != nil {
				yield(Page{Number: number}, err)
				return
			}
			if len(items) == 0 {
				return
			}
			if !yield(Page{Number: number, Items: items, TotalPages: total}, nil) {
				return
			}
			if total > 0 {
				if number >= total {
					return
				}
				continue
			}
			if len(items) < largest || (opts.PerPage > 0 && len(items) < opts.PerPage) {
				return
			}
			largest = len(items)
		}
	}
}
