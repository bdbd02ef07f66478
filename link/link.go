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

// Package link sends GraphQL operations to a server.
package link

import (
	"context"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"
)

// Operation is a GraphQL request.
type Operation struct {
	// Query is the text of the document.
	Query string

	// OperationName selects the operation in a document with many.
	OperationName string

	// Variables of the operation
	Variables map[string]interface{}

	// Type of the selected operation; used for tracing only.
	Type document.OperationType
}

// Name returns the operation name for logs and spans.
func (operation *Operation) Name() string {
	if len(operation.OperationName) > 0 {
		return operation.OperationName
	}
	return "anonymous"
}

// Result is the response of a server to an operation.
type Result struct {
	// Data is the "data" entry of the response. Nil if the server returned no data.
	Data map[string]interface{}

	// Errors is the "errors" entry of the response.
	Errors graphql.Errors
}

// Link executes operations. Errors returned from Execute are failures to obtain a response (e.g.,
// network errors); errors reported by the server come in Result.Errors.
type Link interface {
	Execute(ctx context.Context, operation *Operation) (*Result, error)
}

// Func is an adapter to allow the use of ordinary functions as Link.
type Func func(ctx context.Context, operation *Operation) (*Result, error)

// Execute calls f(ctx, operation).
func (f Func) Execute(ctx context.Context, operation *Operation) (*Result, error) {
	return f(ctx, operation)
}
