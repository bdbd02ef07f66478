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

package client

import (
	"net/http"

	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"
	"github.com/botobag/prerender/link"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultURI is the GraphQL endpoint used when Config.URI is empty.
const DefaultURI = "https://nextjs-graphql-with-prisma-simple.vercel.app/api"

// DefaultTypePolicies returns the cache policies of the clients created by a Factory when
// Config.TypePolicies is nil: the paginated allPosts field accumulates its pages.
func DefaultTypePolicies() cache.TypePolicies {
	return cache.TypePolicies{
		"Query": {
			Fields: map[string]cache.FieldPolicy{
				"allPosts": cache.ConcatPagination(),
			},
		},
	}
}

// Config specifies the clients created by a Factory.
type Config struct {
	// URI of the GraphQL endpoint; must be absolute. Default to DefaultURI.
	URI string

	// Credentials mode of the HTTP link. Default to link.CredentialsSameOrigin.
	Credentials link.Credentials

	// TypePolicies of the cache. Default to DefaultTypePolicies().
	TypePolicies cache.TypePolicies

	// PossibleTypes of the cache
	PossibleTypes map[string][]string

	// HTTPClient sends requests of the HTTP link.
	HTTPClient *http.Client

	// TracerProvider for the spans of the HTTP link
	TracerProvider trace.TracerProvider

	// Link replaces the HTTP link when given. URI, Credentials, HTTPClient and TracerProvider are
	// then unused.
	Link link.Link

	// SSRMode is passed to the created clients.
	SSRMode bool

	// DocumentCacheSize is the number of parsed query documents shared by the created clients. Zero
	// disables the cache.
	DocumentCacheSize uint

	// Logger defaults to zap.L().
	Logger *zap.Logger
}

// Factory creates clients from a Config.
type Factory struct {
	config    Config
	documents document.Cache
}

// NewFactory creates a factory. The configuration is validated when a client is created.
func NewFactory(config Config) (*Factory, error) {
	if len(config.URI) == 0 {
		config.URI = DefaultURI
	}
	if len(config.Credentials) == 0 {
		config.Credentials = link.CredentialsSameOrigin
	}
	if config.TypePolicies == nil {
		config.TypePolicies = DefaultTypePolicies()
	}
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	factory := &Factory{
		config: config,
	}

	if config.DocumentCacheSize > 0 {
		documents, err := document.NewLRUCache(config.DocumentCacheSize)
		if err != nil {
			return nil, graphql.NewError("cannot create document cache", graphql.Op("client.NewFactory"),
				graphql.ErrKindConfig, err)
		}
		factory.documents = documents
	}

	return factory, nil
}

// Config returns the configuration with defaults applied.
func (factory *Factory) Config() Config {
	return factory.config
}

// New creates a client whose cache is seeded from snapshot, or empty if snapshot is nil. No
// request is made. A malformed configuration is returned as an error of kind
// graphql.ErrKindConfig.
func (factory *Factory) New(snapshot cache.Snapshot) (*Client, error) {
	config := factory.config
	config.Logger.Debug("new client",
		zap.Bool("initialState", snapshot != nil),
		zap.Bool("ssr", config.SSRMode))

	l := config.Link
	if l == nil {
		httpLink, err := link.NewHTTPLink(config.URI,
			link.WithCredentials(config.Credentials),
			link.WithHTTPClient(config.HTTPClient),
			link.WithTracerProvider(config.TracerProvider),
			link.WithLogger(config.Logger))
		if err != nil {
			return nil, graphql.NewError("cannot create client", graphql.Op("client.Factory.New"), err)
		}
		l = httpLink
	}

	c := cache.New(
		cache.WithTypePolicies(config.TypePolicies),
		cache.WithPossibleTypes(config.PossibleTypes),
	)
	if snapshot != nil {
		c.Restore(snapshot)
	}

	opts := []Option{
		WithSSRMode(config.SSRMode),
		WithLogger(config.Logger),
	}
	if factory.documents != nil {
		opts = append(opts, WithDocumentCache(factory.documents))
	}
	return New(l, c, opts...), nil
}
