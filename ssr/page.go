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
	"fmt"
	"net/http"
	"strings"

	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/head"

	"github.com/a-h/templ"
)

// Page renders a page from its props.
type Page interface {
	Component(props Props) templ.Component
}

// PropsLoader is implemented by pages that load their props before rendering.
type PropsLoader interface {
	LoadProps(ctx context.Context, pc *PageContext) (Props, error)
}

// PageFunc is an adapter to allow the use of ordinary functions as Page.
type PageFunc func(props Props) templ.Component

// Component calls f(props).
func (f PageFunc) Component(props Props) templ.Component {
	return f(props)
}

type namedPage struct {
	Page
	name string
}

func (page namedPage) PageName() string {
	return page.name
}

// loadingNamedPage keeps LoadProps of a named page visible.
type loadingNamedPage struct {
	namedPage
	loader PropsLoader
}

func (page loadingNamedPage) LoadProps(ctx context.Context, pc *PageContext) (Props, error) {
	return page.loader.LoadProps(ctx, pc)
}

// Named gives a name to a page for logs.
func Named(name string, page Page) Page {
	named := namedPage{
		Page: page,
		name: name,
	}
	if loader, ok := page.(PropsLoader); ok {
		return loadingNamedPage{
			namedPage: named,
			loader:    loader,
		}
	}
	return named
}

// PageName returns the name of the page: the result of its PageName method if defined, its type
// name otherwise.
func PageName(page Page) string {
	if named, ok := page.(interface{ PageName() string }); ok {
		return named.PageName()
	}
	name := strings.TrimPrefix(fmt.Sprintf("%T", page), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// PageContext is given to PropsLoader. It describes the request being served.
type PageContext struct {
	// Request is the page request. Nil when not rendering for a request.
	Request *http.Request

	// Response of the request; may be nil.
	Response http.ResponseWriter

	// Client serves the GraphQL queries of the page. Set by WrappedPage before LoadProps runs.
	Client *client.Client

	// Head collects the head tags of the page.
	Head *head.Collector

	finished bool
}

// NewPageContext creates the context of a page request.
func NewPageContext(w http.ResponseWriter, r *http.Request) *PageContext {
	return &PageContext{
		Request:  r,
		Response: w,
		Head:     head.NewCollector(),
	}
}

// Redirect responds with a redirect to location and finishes the response.
func (pc *PageContext) Redirect(location string, code int) {
	if pc.Response != nil {
		http.Redirect(pc.Response, pc.Request, location, code)
	}
	pc.Finish()
}

// Finish marks the response as written so nothing is rendered.
func (pc *PageContext) Finish() {
	pc.finished = true
}

// Finished returns true if the response was written.
func (pc *PageContext) Finished() bool {
	return pc.finished
}
