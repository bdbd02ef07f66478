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

package cache

import (
	"sort"
	"strings"
)

// MergeContext provides information about the field being written to a MergeFunc.
type MergeContext struct {
	// Typename of the object that owns the field
	Typename string

	// FieldName is the name of the field (not the store field name).
	FieldName string

	// Args are the argument values of the field with variables resolved.
	Args map[string]interface{}
}

// MergeFunc combines the existing value of a field in the store with the incoming value from a
// response. Existing is nil when the store has no value.
type MergeFunc func(existing interface{}, incoming interface{}, ctx MergeContext) interface{}

// NoKeyArgs is given to FieldPolicy.KeyArgs to store a field under its name only, regardless of its
// arguments.
var NoKeyArgs = []string{}

// FieldPolicy customizes how a field is stored.
type FieldPolicy struct {
	// KeyArgs lists the arguments that identify the value of the field in the store. A nil KeyArgs
	// uses all arguments. Use NoKeyArgs to ignore the arguments.
	KeyArgs []string

	// Merge combines the existing and incoming values. A nil Merge replaces the existing value.
	Merge MergeFunc
}

// TypePolicy holds the field policies of a type.
type TypePolicy struct {
	Fields map[string]FieldPolicy
}

// TypePolicies maps type names (e.g., "Query") to their policies.
type TypePolicies map[string]TypePolicy

// fieldPolicy returns the policy of the field or nil.
func (policies TypePolicies) fieldPolicy(typename string, fieldName string) *FieldPolicy {
	typePolicy, exists := policies[typename]
	if !exists {
		return nil
	}
	policy, exists := typePolicy.Fields[fieldName]
	if !exists {
		return nil
	}
	return &policy
}

// StoreFieldName computes the key under which a field with the given arguments is stored. Fields
// without (key) arguments are stored under their names. Otherwise the arguments are appended in
// JSON with sorted keys, e.g., `allPosts({"first":10,"skip":0})`.
func StoreFieldName(fieldName string, args map[string]interface{}, policy *FieldPolicy) string {
	if policy != nil && policy.KeyArgs != nil {
		keyArgs := make(map[string]interface{}, len(policy.KeyArgs))
		for _, name := range policy.KeyArgs {
			if value, exists := args[name]; exists {
				keyArgs[name] = value
			}
		}
		args = keyArgs
	}

	if len(args) == 0 {
		return fieldName
	}

	encoded, err := json.Marshal(args)
	if err != nil {
		// Arguments come from a document or decoded variables and are always encodable. Fall back to a
		// stable rendering of the names.
		names := make([]string, 0, len(args))
		for name := range args {
			names = append(names, name)
		}
		sort.Strings(names)
		return fieldName + "(" + strings.Join(names, ",") + ")"
	}
	return fieldName + "(" + string(encoded) + ")"
}

// ConcatPagination returns a policy for list fields paginated by successive requests: incoming
// pages are appended to the list already stored under the same key. The key is computed from the
// given arguments only; by default all pages share one entry.
func ConcatPagination(keyArgs ...string) FieldPolicy {
	if keyArgs == nil {
		keyArgs = NoKeyArgs
	}
	return FieldPolicy{
		KeyArgs: keyArgs,
		Merge: func(existing interface{}, incoming interface{}, ctx MergeContext) interface{} {
			existingList, _ := existing.([]interface{})
			incomingList, ok := incoming.([]interface{})
			if !ok {
				// null or a malformed page replaces what we have.
				return incoming
			}
			merged := make([]interface{}, 0, len(existingList)+len(incomingList))
			merged = append(merged, existingList...)
			return append(merged, incomingList...)
		},
	}
}

// OffsetLimitPagination returns a policy for list fields paginated with an offset argument: the
// items of an incoming page are written at the offset given by the "offset" or "skip" argument,
// overwriting overlapping items. A page past the end of the list, or without an offset, is
// appended.
func OffsetLimitPagination(keyArgs ...string) FieldPolicy {
	if keyArgs == nil {
		keyArgs = NoKeyArgs
	}
	return FieldPolicy{
		KeyArgs: keyArgs,
		Merge: func(existing interface{}, incoming interface{}, ctx MergeContext) interface{} {
			existingList, _ := existing.([]interface{})
			incomingList, ok := incoming.([]interface{})
			if !ok {
				return incoming
			}

			offset := intArg(ctx.Args, "offset")
			if offset < 0 {
				offset = intArg(ctx.Args, "skip")
			}
			if offset < 0 || offset > len(existingList) {
				offset = len(existingList)
			}

			size := len(existingList)
			if end := offset + len(incomingList); end > size {
				size = end
			}
			merged := make([]interface{}, size)
			copy(merged, existingList)
			copy(merged[offset:], incomingList)
			return merged
		},
	}
}

// intArg reads an integer argument which is int64 when given as a literal and float64 when given
// through decoded variables. Returns -1 if the argument is absent or not a number.
func intArg(args map[string]interface{}, name string) int {
	switch value := args[name].(type) {
	case int64:
		return int(value)
	case int:
		return value
	case float64:
		return int(value)
	}
	return -1
}
