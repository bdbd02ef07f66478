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
	"io"
	"sync"

	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/head"
	"github.com/botobag/prerender/link"

	"github.com/a-h/templ"
	"go.uber.org/zap"
)

// Option configures Wrap.
type Option func(page *WrappedPage)

// ServerRender enables or disables the resolution of queries when the page renders on the server.
// Default to true.
func ServerRender(enabled bool) Option {
	return func(page *WrappedPage) {
		page.serverRender = enabled
	}
}

// WithAccessor sets the accessor that provides clients. Default to a Server accessor with the
// default client configuration.
func WithAccessor(accessor *client.Accessor) Option {
	return func(page *WrappedPage) {
		page.accessor = accessor
	}
}

// WithResolver sets the resolver of the page tree. Default to &DataFromTree{}.
func WithResolver(resolver TreeResolver) Option {
	return func(page *WrappedPage) {
		page.resolver = resolver
	}
}

// WithLogger sets the logger. Default to zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(page *WrappedPage) {
		page.logger = logger
	}
}

// ResolutionError is the error logged when the resolution of a page fails. It is never returned
// from InitialProps.
type ResolutionError struct {
	Page string
	Err  error
}

// Error implements Go's error interface.
func (e *ResolutionError) Error() string {
	return "error while resolving data of page " + e.Page + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// WrappedPage is a page with access to a GraphQL client whose queries are resolved on the server.
type WrappedPage struct {
	page         Page
	name         string
	serverRender bool
	accessor     *client.Accessor
	resolver     TreeResolver
	logger       *zap.Logger
}

// Wrap adapts page. See WrappedPage.InitialProps for the server path and WrappedPage.Instance for
// the browser path.
func Wrap(page Page, opts ...Option) *WrappedPage {
	wrapped := &WrappedPage{
		page:         page,
		name:         PageName(page),
		serverRender: true,
	}
	for _, opt := range opts {
		opt(wrapped)
	}

	if wrapped.logger == nil {
		wrapped.logger = zap.L()
	}
	if wrapped.resolver == nil {
		wrapped.resolver = &DataFromTree{
			Logger: wrapped.logger,
		}
	}
	if wrapped.accessor == nil {
		accessor, err := client.NewAccessor(client.Server, client.Config{
			Logger: wrapped.logger,
		})
		if err != nil {
			wrapped.logger.DPanic("cannot create the default accessor", zap.Error(err))
		}
		wrapped.accessor = accessor
	}

	if wrapped.name == "App" {
		wrapped.logger.Warn("ssr.Wrap only works with page components", zap.String("page", wrapped.name))
	}

	return wrapped
}

// Name returns the name of the wrapped page.
func (page *WrappedPage) Name() string {
	return page.name
}

// Accessor returns the accessor that provides clients.
func (page *WrappedPage) Accessor() *client.Accessor {
	return page.accessor
}

// HasInitialProps returns true if InitialProps has work to do: the page loads props or server
// render is enabled. Without it, the page renders from empty props.
func (page *WrappedPage) HasInitialProps() bool {
	_, loadsProps := page.page.(PropsLoader)
	return page.serverRender || loadsProps
}

// Tree returns the page rendered with props and c in the context of the render.
func (page *WrappedPage) Tree(props Props, c *client.Client) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return page.page.Component(props.PageProps()).Render(ContextWithClient(ctx, c), w)
	})
}

// InitialProps computes the props of the page for a request:
//
//  1. A client is obtained from the accessor without a snapshot and stored in pc.Client.
//  2. LoadProps of the page, if any, gives the base props.
//  3. If LoadProps finished the response (e.g., with a redirect), the base props are returned.
//  4. On the server with server render enabled, the resolver runs over the page tree. Its errors
//     are logged, never returned. The head tags declared meanwhile are rewound.
//  5. The props are the base props with the snapshot of the cache under StateKey.
func (page *WrappedPage) InitialProps(ctx context.Context, pc *PageContext) (Props, error) {
	const op = graphql.Op("ssr.WrappedPage.InitialProps")

	if pc.Head == nil {
		pc.Head = head.NewCollector()
	}
	if pc.Request != nil {
		ctx = link.WithRequestCookies(ctx, pc.Request)
	}

	c, err := page.accessor.Get(nil)
	if err != nil {
		return nil, graphql.NewError("cannot obtain a client for page "+page.name, op, err)
	}
	pc.Client = c

	var props Props
	if loader, ok := page.page.(PropsLoader); ok {
		if props, err = loader.LoadProps(ctx, pc); err != nil {
			return nil, err
		}
	}
	if props == nil {
		props = Props{}
	}

	if page.accessor.Environment() == client.Server {
		if pc.Finished() {
			return props, nil
		}

		if page.serverRender {
			page.resolve(ctx, pc, props, c)
		}
	}

	return props.withSnapshot(c.Cache().Extract()), nil
}

// resolve runs the resolver over the page tree. Errors and panics of the resolver (including those
// raised by components rendering their data) are logged and the page renders with what the cache
// holds.
func (page *WrappedPage) resolve(ctx context.Context, pc *PageContext, props Props, c *client.Client) {
	const op = graphql.Op("ssr.WrappedPage.resolve")

	defer pc.Head.Rewind()
	defer func() {
		if r := recover(); r != nil {
			var err error
			if e, ok := r.(error); ok {
				err = graphql.NewError("panic while resolving", op, graphql.ErrKindInternal, e)
			} else {
				err = graphql.NewError(fmt.Sprintf("panic while resolving: %v", r), op, graphql.ErrKindInternal)
			}
			page.logResolutionError(err, zap.Stack("stack"))
		}
	}()

	ctx = ContextWithClient(head.WithCollector(ctx, pc.Head), c)
	if err := page.resolver.Resolve(ctx, page.Tree(props, c)); err != nil {
		page.logResolutionError(err)
	}
}

func (page *WrappedPage) logResolutionError(err error, fields ...zap.Field) {
	page.logger.Error("error while running the resolution pass", append([]zap.Field{
		zap.String("page", page.name),
		zap.Error(&ResolutionError{Page: page.name, Err: err}),
	}, fields...)...)
}

// InstanceOption configures an Instance.
type InstanceOption func(instance *Instance)

// WithClient supplies the client of the instance, bypassing the accessor.
func WithClient(c *client.Client) InstanceOption {
	return func(instance *Instance) {
		instance.client = c
	}
}

// Instance is a rendered occurrence of a wrapped page in the browser. It obtains its client once,
// seeded from the snapshot of the props, and keeps it for the rest of its life.
type Instance struct {
	page  *WrappedPage
	props Props

	once   sync.Once
	client *client.Client
	err    error
}

// Instance creates an instance of the page from props.
func (page *WrappedPage) Instance(props Props, opts ...InstanceOption) *Instance {
	instance := &Instance{
		page:  page,
		props: props,
	}
	for _, opt := range opts {
		opt(instance)
	}
	return instance
}

// Client returns the client of the instance.
func (instance *Instance) Client() (*client.Client, error) {
	instance.once.Do(func() {
		if instance.client != nil {
			return
		}
		var snapshot cache.Snapshot
		if s, ok := instance.props.Snapshot(); ok {
			snapshot = s
		}
		instance.client, instance.err = instance.page.accessor.Get(snapshot)
	})
	return instance.client, instance.err
}

// Props returns the props of the instance.
func (instance *Instance) Props() Props {
	return instance.props
}

// Render implements templ.Component.
func (instance *Instance) Render(ctx context.Context, w io.Writer) error {
	c, err := instance.Client()
	if err != nil {
		return err
	}
	return instance.page.Tree(instance.props, c).Render(ctx, w)
}
