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
	"strconv"

	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/graphql"

	"github.com/a-h/templ"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TreeResolver resolves the data dependencies of a component tree. The client of the tree is in
// ctx (see ClientFromContext). Resolve returns when all dependencies were fetched or one failed.
type TreeResolver interface {
	Resolve(ctx context.Context, tree templ.Component) error
}

// TreeResolverFunc is an adapter to allow the use of ordinary functions as TreeResolver.
type TreeResolverFunc func(ctx context.Context, tree templ.Component) error

// Resolve calls f(ctx, tree).
func (f TreeResolverFunc) Resolve(ctx context.Context, tree templ.Component) error {
	return f(ctx, tree)
}

// DefaultMaxPasses is the default of DataFromTree.MaxPasses.
const DefaultMaxPasses = 8

// DataFromTree resolves a tree by rendering it repeatedly. Each pass renders the tree to nowhere,
// collects the Query components missing from the cache and fetches them concurrently. Queries
// nested under loading components are found in later passes. Resolution ends with the first pass
// that has nothing new to fetch. A query is fetched once per resolution: one still missing after
// its fetch (the server left out some of its fields) renders as loading.
type DataFromTree struct {
	// MaxPasses bounds the number of render passes. Default to DefaultMaxPasses.
	MaxPasses int

	// Logger defaults to zap.L().
	Logger *zap.Logger

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

var _ TreeResolver = (*DataFromTree)(nil)

// Resolve implements TreeResolver.
func (resolver *DataFromTree) Resolve(ctx context.Context, tree templ.Component) error {
	const op = graphql.Op("ssr.DataFromTree.Resolve")

	c := ClientFromContext(ctx)
	if c == nil {
		return graphql.NewError("no client in the context", op, graphql.ErrKindInternal)
	}

	maxPasses := resolver.MaxPasses
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	logger := resolver.Logger
	if logger == nil {
		logger = zap.L()
	}
	provider := resolver.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer("github.com/botobag/prerender/ssr")

	fetched := map[string]bool{}
	for pass := 1; ; pass++ {
		n, err := resolver.pass(ctx, tracer, logger, tree, pass, maxPasses, fetched)
		if err != nil {
			return graphql.NewError("resolution pass "+strconv.Itoa(pass)+" failed", op, err)
		}
		if n == 0 {
			logger.Debug("data resolved", zap.Int("passes", pass))
			return nil
		}
	}
}

// pass renders the tree once and fetches the misses not in fetched. It returns the number of
// queries fetched.
func (resolver *DataFromTree) pass(
	ctx context.Context,
	tracer trace.Tracer,
	logger *zap.Logger,
	tree templ.Component,
	pass int,
	maxPasses int,
	fetched map[string]bool) (int, error) {

	ctx, span := tracer.Start(ctx, "ssr.pass", trace.WithAttributes(attribute.Int("ssr.pass", pass)))
	defer span.End()

	r := newResolution()
	if err := tree.Render(withResolution(ctx, r), io.Discard); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return 0, err
	}

	var (
		queries    []client.QueryOptions
		unanswered []string
	)
	for _, options := range r.queries() {
		key := queryKey(options)
		if fetched[key] {
			unanswered = append(unanswered, operationNameOf(options))
			continue
		}
		fetched[key] = true
		queries = append(queries, options)
	}
	span.SetAttributes(attribute.Int("ssr.queries", len(queries)))
	if len(unanswered) > 0 {
		logger.Warn("queries still missing from the cache after their fetch",
			zap.Int("pass", pass),
			zap.Strings("operations", unanswered))
	}
	if len(queries) == 0 {
		return 0, nil
	}
	if pass >= maxPasses {
		err := graphql.NewError("queries still missing after "+strconv.Itoa(maxPasses)+" passes",
			graphql.ErrKindInternal)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	// Wait for every fetch; the first error is reported.
	c := ClientFromContext(ctx)
	var g errgroup.Group
	for _, options := range queries {
		options := options
		g.Go(func() error {
			_, err := c.Query(ctx, options)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return 0, err
	}
	return len(queries), nil
}

func operationNameOf(options client.QueryOptions) string {
	if len(options.OperationName) > 0 {
		return options.OperationName
	}
	return "anonymous"
}
