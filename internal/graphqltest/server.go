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

// Package graphqltest provides an in-process GraphQL server for tests.
package graphqltest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"
)

// FieldResolver resolves a root field from its arguments. The returned value is projected through
// the selection set of the field: maps are objects (their "__typename" entry names their type),
// slices of interface{} are lists, anything else is a leaf.
type FieldResolver func(args map[string]interface{}) (interface{}, error)

// Schema lists the root fields served.
type Schema struct {
	Query    map[string]FieldResolver
	Mutation map[string]FieldResolver
}

// Option configures a Server.
type Option func(server *Server)

// WithOnRequest installs a function called with every request before it is executed. It may block
// to hold the response.
func WithOnRequest(f func(req *Request)) Option {
	return func(server *Server) {
		server.onRequest = f
	}
}

// Server is an httptest.Server answering GraphQL requests from a Schema. It counts and records
// requests so tests can assert on network traffic.
type Server struct {
	*httptest.Server

	schema    Schema
	onRequest func(req *Request)
	requests  int64

	mutex    sync.Mutex
	received []*Request
}

// NewServer starts a server. Call Close when done.
func NewServer(schema Schema, opts ...Option) *Server {
	server := &Server{
		schema: schema,
	}
	for _, opt := range opts {
		opt(server)
	}
	server.Server = httptest.NewServer(server)
	return server
}

// Requests returns the number of requests received.
func (server *Server) Requests() int {
	return int(atomic.LoadInt64(&server.requests))
}

// Received returns the requests received in order of arrival.
func (server *Server) Received() []*Request {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return append([]*Request(nil), server.received...)
}

type response struct {
	Data   map[string]interface{} `json:"data"`
	Errors *graphql.Errors        `json:"errors,omitempty"`
}

func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&server.requests, 1)

	req, err := ParseRequest(r)
	if err != nil {
		server.respond(w, http.StatusBadRequest, nil, graphql.ErrorsOf(err.Error()))
		return
	}

	server.mutex.Lock()
	server.received = append(server.received, req)
	server.mutex.Unlock()

	if server.onRequest != nil {
		server.onRequest(req)
	}

	data, errs := server.execute(req)
	status := http.StatusOK
	if data == nil && errs.HaveOccurred() {
		status = http.StatusBadRequest
	}
	server.respond(w, status, data, errs)
}

func (server *Server) respond(
	w http.ResponseWriter,
	status int,
	data map[string]interface{},
	errs graphql.Errors) {

	resp := response{
		Data: data,
	}
	if errs.HaveOccurred() {
		resp.Errors = &errs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func (server *Server) execute(req *Request) (map[string]interface{}, graphql.Errors) {
	doc, err := document.Parse(req.Query)
	if err != nil {
		return nil, graphql.ErrorsOf(err)
	}

	operation, err := doc.Operation(req.OperationName)
	if err != nil {
		return nil, graphql.ErrorsOf(err)
	}

	var (
		vars      = operation.VariableValues(req.Variables)
		typename  = "Query"
		resolvers = server.schema.Query
		errs      graphql.Errors
		data      = map[string]interface{}{}
	)
	if operation.Type == document.OperationTypeMutation {
		typename = "Mutation"
		resolvers = server.schema.Mutation
	}

	for _, field := range doc.CollectFields(operation.SelectionSet, vars, typename, nil) {
		key := field.ResponseKey()
		if field.Name == "__typename" {
			data[key] = typename
			continue
		}

		resolve, exists := resolvers[field.Name]
		if !exists {
			location := doc.Source.LocationInfoOf(field.Location)
			errs.Emplace(`Cannot query field "`+field.Name+`" on type "`+typename+`".`,
				graphql.ErrorLocation{
					Line:   location.Line,
					Column: location.Column,
				})
			continue
		}

		value, err := resolve(field.ArgumentValues(vars))
		if err != nil {
			errs.Emplace(err.Error(), graphql.NewResponsePath(key))
			data[key] = nil
			continue
		}
		data[key] = project(doc, field, value, vars)
	}

	if len(data) == 0 && errs.HaveOccurred() {
		return nil, errs
	}
	return data, errs
}

// project shapes value after the selection set of field.
func project(
	doc *document.Document,
	field *document.Field,
	value interface{},
	vars map[string]interface{}) interface{} {

	switch value := value.(type) {
	case []interface{}:
		list := make([]interface{}, len(value))
		for i, item := range value {
			list[i] = project(doc, field, item, vars)
		}
		return list

	case []map[string]interface{}:
		list := make([]interface{}, len(value))
		for i, item := range value {
			list[i] = project(doc, field, item, vars)
		}
		return list

	case map[string]interface{}:
		if len(field.SelectionSet) == 0 {
			return value
		}
		typename, _ := value["__typename"].(string)
		object := map[string]interface{}{}
		for _, subfield := range doc.CollectFields(field.SelectionSet, vars, typename, nil) {
			object[subfield.ResponseKey()] = project(doc, subfield, value[subfield.Name], vars)
		}
		return object
	}

	return value
}
