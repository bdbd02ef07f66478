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

// Package ssr runs the GraphQL queries of a page while it is rendered on the server and hands the
// resulting cache to the browser through the page props.
package ssr

import (
	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/graphql"

	"github.com/json-iterator/go"
)

// json escapes <, > and & so bundles embed safely in <script> elements.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateKey is the reserved entry of Props that holds the cache snapshot.
const StateKey = "graphqlState"

// Props are the properties of a page. Values must be encodable to JSON.
type Props map[string]interface{}

// Snapshot returns the cache snapshot stored under StateKey.
func (props Props) Snapshot() (cache.Snapshot, bool) {
	value, exists := props[StateKey]
	if !exists || value == nil {
		return nil, false
	}
	return cache.SnapshotFromValue(value)
}

// PageProps returns the props without the snapshot.
func (props Props) PageProps() Props {
	result := make(Props, len(props))
	for key, value := range props {
		if key != StateKey {
			result[key] = value
		}
	}
	return result
}

// withSnapshot returns a copy of props with the snapshot under StateKey.
func (props Props) withSnapshot(snapshot cache.Snapshot) Props {
	result := make(Props, len(props)+1)
	for key, value := range props {
		result[key] = value
	}
	result[StateKey] = snapshot
	return result
}

// EncodeBundle serializes props for the browser.
func EncodeBundle(props Props) ([]byte, error) {
	if props == nil {
		props = Props{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, graphql.NewError("cannot encode page props", graphql.Op("ssr.EncodeBundle"),
			graphql.ErrKindInternal, err)
	}
	return data, nil
}

// DecodeBundle deserializes props produced by EncodeBundle. The snapshot under StateKey is decoded
// into a cache.Snapshot.
func DecodeBundle(data []byte) (Props, error) {
	const op = graphql.Op("ssr.DecodeBundle")

	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, graphql.NewError("cannot decode page props", op, graphql.ErrKindInternal, err)
	}

	props := make(Props, len(fields))
	for key, raw := range fields {
		if key == StateKey {
			snapshot, err := cache.DecodeSnapshot(raw)
			if err != nil {
				return nil, graphql.NewError("cannot decode cache snapshot", op, graphql.ErrKindInternal, err)
			}
			props[key] = snapshot
			continue
		}

		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, graphql.NewError("cannot decode page prop "+key, op, graphql.ErrKindInternal, err)
		}
		props[key] = value
	}
	return props, nil
}
