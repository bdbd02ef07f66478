/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package ssr

import (
	"context"
	"io"
	"sync"

	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/graphql"

	"github.com/a-h/templ"
)

// QueryResult is given to the render function of a Query component.
type QueryResult struct {
	// Data of the query; nil while loading or on error.
	Data map[string]interface{}

	// Loading is true when the data is not available yet.
	Loading bool

	// Error from the query
	Error error
}

// Query returns a component that runs a query with the client of the render context and renders
// the result with render.
//
// During a resolution pass (see DataFromTree) the query is answered from the cache only. A cache
// miss is recorded for the resolver to fetch, and the component renders as loading. In other
// renders the query runs with its fetch policy on browser clients; server clients answer from the
// cache only and render missing data as loading.
func Query(options client.QueryOptions, render func(result QueryResult) templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return render(runQuery(ctx, options)).Render(ctx, w)
	})
}

func runQuery(ctx context.Context, options client.QueryOptions) QueryResult {
	c := ClientFromContext(ctx)
	if c == nil {
		return QueryResult{
			Error: graphql.NewError("no client in the render context", graphql.Op("ssr.Query"),
				graphql.ErrKindInternal),
		}
	}

	resolution := resolutionFrom(ctx)
	if resolution == nil && !c.SSRMode() {
		result, err := c.Query(ctx, options)
		if err != nil {
			return QueryResult{Error: err}
		}
		return QueryResult{Data: result.Data}
	}

	data, err := c.ReadQuery(options)
	if err == nil {
		return QueryResult{Data: data}
	}
	if !graphql.IsKind(err, graphql.ErrKindCacheMiss) {
		return QueryResult{Error: err}
	}
	if resolution != nil {
		resolution.add(options)
	}
	return QueryResult{Loading: true}
}

// resolution records the queries missing from the cache in a render pass.
type resolution struct {
	mutex   sync.Mutex
	keys    map[string]bool
	pending []client.QueryOptions
}

func newResolution() *resolution {
	return &resolution{
		keys: map[string]bool{},
	}
}

func (r *resolution) add(options client.QueryOptions) {
	key := queryKey(options)

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.keys[key] {
		return
	}
	r.keys[key] = true
	r.pending = append(r.pending, options)
}

func (r *resolution) queries() []client.QueryOptions {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]client.QueryOptions(nil), r.pending...)
}

// queryKey identifies a query across the passes of a resolution.
func queryKey(options client.QueryOptions) string {
	variables, err := json.MarshalToString(options.Variables)
	if err != nil {
		// Unencodable variables cannot be sent either; the fetch reports the error.
		return options.OperationName + "\x00" + options.Query
	}
	return options.OperationName + "\x00" + options.Query + "\x00" + variables
}

type resolutionKey struct{}

func withResolution(ctx context.Context, r *resolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, r)
}

func resolutionFrom(ctx context.Context) *resolution {
	r, _ := ctx.Value(resolutionKey{}).(*resolution)
	return r
}
