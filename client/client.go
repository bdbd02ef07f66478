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

// Package client provides the GraphQL client used by pages: a transport link paired with an
// in-memory cache, and the factory and accessor that decide how instances are created and reused.
package client

import (
	"context"
	"strings"

	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"
	"github.com/botobag/prerender/link"

	"github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FetchPolicy determines whether a query is answered from the cache or the network.
type FetchPolicy int

// Enumeration of FetchPolicy
const (
	// CacheFirst answers from the cache when it holds every selected field and fetches otherwise.
	CacheFirst FetchPolicy = iota

	// NetworkOnly always fetches. The response is still written to the cache.
	NetworkOnly

	// CacheOnly never fetches; a cache miss is an error of kind graphql.ErrKindCacheMiss.
	CacheOnly
)

func (policy FetchPolicy) String() string {
	switch policy {
	case CacheFirst:
		return "cache-first"
	case NetworkOnly:
		return "network-only"
	case CacheOnly:
		return "cache-only"
	}
	return "unknown"
}

// QueryOptions specifies a query.
type QueryOptions struct {
	Query         string
	OperationName string
	Variables     map[string]interface{}
	FetchPolicy   FetchPolicy
}

// QueryResult is the result of Client.Query.
type QueryResult struct {
	// Data keyed by response keys
	Data map[string]interface{}

	// FromCache is true when no request was made.
	FromCache bool
}

// UpdateFunc is called after the result of a mutation is written to the cache.
type UpdateFunc func(cache *cache.InMemoryCache, data map[string]interface{})

// MutateOptions specifies a mutation.
type MutateOptions struct {
	Mutation      string
	OperationName string
	Variables     map[string]interface{}

	// Update, if given, is called with the cache and the data of the mutation result.
	Update UpdateFunc
}

// Option configures a Client.
type Option func(client *Client)

// WithSSRMode marks the client as created for a server render.
func WithSSRMode(ssrMode bool) Option {
	return func(client *Client) {
		client.ssrMode = ssrMode
	}
}

// WithDocumentCache sets the cache for parsed query documents. Default to parse every time.
func WithDocumentCache(documents document.Cache) Option {
	return func(client *Client) {
		client.documents = documents
	}
}

// WithLogger sets the logger. Default to zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// Client executes operations through a link and keeps their results in an in-memory cache.
// Identical queries in flight at the same time are sent once.
type Client struct {
	link      link.Link
	cache     *cache.InMemoryCache
	documents document.Cache
	ssrMode   bool
	logger    *zap.Logger
	inflight  singleflight.Group
}

// New creates a client. No request is made.
func New(l link.Link, c *cache.InMemoryCache, opts ...Option) *Client {
	client := &Client{
		link:  l,
		cache: c,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cache == nil {
		client.cache = cache.New()
	}
	if client.logger == nil {
		client.logger = zap.L()
	}
	return client
}

// Cache returns the cache of the client.
func (client *Client) Cache() *cache.InMemoryCache {
	return client.cache
}

// Link returns the link of the client.
func (client *Client) Link() link.Link {
	return client.link
}

// SSRMode returns true if the client was created for a server render.
func (client *Client) SSRMode() bool {
	return client.ssrMode
}

// prepare parses the query and selects the operation.
func (client *Client) prepare(
	op graphql.Op,
	query string,
	operationName string,
	variables map[string]interface{},
	expected document.OperationType) (cache.Request, *link.Operation, error) {

	doc, err := document.ParseCached(client.documents, query)
	if err != nil {
		return cache.Request{}, nil, graphql.NewError("invalid query document", op, err)
	}

	operation, err := doc.Operation(operationName)
	if err != nil {
		return cache.Request{}, nil, graphql.NewError(err.Error(), op, graphql.ErrKindSyntax, err)
	}
	if operation.Type != expected {
		return cache.Request{}, nil, graphql.NewError(
			`expected a `+string(expected)+` operation but got a `+string(operation.Type), op,
			graphql.ErrKindSyntax)
	}

	if len(operationName) == 0 {
		operationName = operation.Name
	}

	return cache.Request{
			Document:  doc,
			Operation: operation,
			Variables: operation.VariableValues(variables),
		}, &link.Operation{
			Query:         query,
			OperationName: operationName,
			Variables:     variables,
			Type:          operation.Type,
		}, nil
}

// Query runs a query according to its fetch policy.
func (client *Client) Query(ctx context.Context, options QueryOptions) (*QueryResult, error) {
	const op = graphql.Op("client.Query")

	request, operation, err := client.prepare(op, options.Query, options.OperationName,
		options.Variables, document.OperationTypeQuery)
	if err != nil {
		return nil, err
	}

	if options.FetchPolicy != NetworkOnly {
		if data, complete := client.cache.Read(request); complete {
			return &QueryResult{
				Data:      data,
				FromCache: true,
			}, nil
		}
		if options.FetchPolicy == CacheOnly {
			return nil, graphql.NewError("query "+operation.Name()+" is not in the cache", op,
				graphql.ErrKindCacheMiss)
		}
	}

	key, err := inflightKey(operation)
	if err != nil {
		return nil, graphql.NewError("cannot encode variables", op, graphql.ErrKindInternal, err)
	}

	v, err, shared := client.inflight.Do(key, func() (interface{}, error) {
		return client.fetch(ctx, op, request, operation)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		client.logger.Debug("query shared an in-flight request", zap.String("operation", operation.Name()))
	}

	// Read back so merge policies (e.g., concatenated pages) show in the result.
	if data, complete := client.cache.Read(request); complete {
		return &QueryResult{Data: data}, nil
	}
	return &QueryResult{Data: v.(map[string]interface{})}, nil
}

// ReadQuery answers a query from the cache only.
func (client *Client) ReadQuery(options QueryOptions) (map[string]interface{}, error) {
	options.FetchPolicy = CacheOnly
	result, err := client.Query(context.Background(), options)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// WriteQuery writes data for a query into the cache as if it was returned by the server.
func (client *Client) WriteQuery(options QueryOptions, data map[string]interface{}) error {
	const op = graphql.Op("client.WriteQuery")

	request, _, err := client.prepare(op, options.Query, options.OperationName,
		options.Variables, document.OperationTypeQuery)
	if err != nil {
		return err
	}
	return client.cache.Write(request, data)
}

// Mutate runs a mutation, writes its result to the cache and calls the update function.
func (client *Client) Mutate(ctx context.Context, options MutateOptions) (map[string]interface{}, error) {
	const op = graphql.Op("client.Mutate")

	request, operation, err := client.prepare(op, options.Mutation, options.OperationName,
		options.Variables, document.OperationTypeMutation)
	if err != nil {
		return nil, err
	}

	data, err := client.fetch(ctx, op, request, operation)
	if err != nil {
		return nil, err
	}

	if options.Update != nil {
		options.Update(client.cache, data)
	}
	return data, nil
}

// fetch executes the operation with the link and writes the data to the cache.
func (client *Client) fetch(
	ctx context.Context,
	op graphql.Op,
	request cache.Request,
	operation *link.Operation) (map[string]interface{}, error) {

	client.logger.Debug("fetching",
		zap.String("operation", operation.Name()),
		zap.Bool("ssr", client.ssrMode))

	result, err := client.link.Execute(ctx, operation)
	if err != nil {
		return nil, graphql.NewError("operation "+operation.Name()+" failed", op, err)
	}

	if result.Errors.HaveOccurred() {
		messages := make([]string, len(result.Errors.Errors))
		for i, e := range result.Errors.Errors {
			messages[i] = e.Message
		}
		return nil, graphql.NewError(
			"operation "+operation.Name()+" returned errors: "+strings.Join(messages, "; "), op,
			graphql.ErrKindResponse, result.Errors)
	}

	data := result.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	if err := client.cache.Write(request, data); err != nil {
		return nil, graphql.NewError("cannot write result", op, err)
	}
	return data, nil
}

// inflightKey identifies an operation for de-duplication.
func inflightKey(operation *link.Operation) (string, error) {
	variables, err := json.MarshalToString(operation.Variables)
	if err != nil {
		return "", err
	}
	return operation.OperationName + "\x00" + operation.Query + "\x00" + variables, nil
}
