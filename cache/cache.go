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
	"sync"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"
)

// Option configures an InMemoryCache.
type Option func(cache *InMemoryCache)

// WithTypePolicies sets the field policies of the cache.
func WithTypePolicies(policies TypePolicies) Option {
	return func(cache *InMemoryCache) {
		cache.policies = policies
	}
}

// WithPossibleTypes declares the concrete types of abstract types so fragments on interfaces and
// unions apply to the objects implementing them.
func WithPossibleTypes(possibleTypes map[string][]string) Option {
	return func(cache *InMemoryCache) {
		cache.possibleTypes = possibleTypes
	}
}

// InMemoryCache stores the results of operations under root records keyed by store field names.
// Objects are stored nested in their parent fields with aliases removed, so queries selecting the
// same fields with different aliases share entries. It is safe for concurrent use.
type InMemoryCache struct {
	policies      TypePolicies
	possibleTypes map[string][]string

	// mutex guards data.
	mutex sync.RWMutex
	data  Snapshot
}

// New creates an empty cache.
func New(opts ...Option) *InMemoryCache {
	cache := &InMemoryCache{
		data: Snapshot{},
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Restore replaces the contents of the cache with a copy of the snapshot and returns the cache.
// A nil snapshot empties the cache.
func (cache *InMemoryCache) Restore(snapshot Snapshot) *InMemoryCache {
	data := snapshot.Clone()
	if data == nil {
		data = Snapshot{}
	}

	cache.mutex.Lock()
	cache.data = data
	cache.mutex.Unlock()
	return cache
}

// Extract returns a copy of the contents of the cache.
func (cache *InMemoryCache) Extract() Snapshot {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()
	return cache.data.Clone()
}

// Reset empties the cache.
func (cache *InMemoryCache) Reset() {
	cache.Restore(nil)
}

// Evict removes a field of a root record. The field is given by its store field name. Returns true
// if something was removed.
func (cache *InMemoryCache) Evict(rootID string, storeFieldName string) bool {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	record, exists := cache.data[rootID]
	if !exists {
		return false
	}
	if _, exists := record[storeFieldName]; !exists {
		return false
	}
	delete(record, storeFieldName)
	return true
}

// matches implements document.TypeMatcher with the possible types known to the cache.
func (cache *InMemoryCache) matches(typeCondition string, typename string) bool {
	if document.MatchExactType(typeCondition, typename) {
		return true
	}
	for _, possibleType := range cache.possibleTypes[typeCondition] {
		if possibleType == typename {
			return true
		}
	}
	return false
}

// Request identifies the operation to be read or written.
type Request struct {
	Document  *document.Document
	Operation *document.Operation

	// Variables of the operation with defaults applied (see document.Operation.VariableValues)
	Variables map[string]interface{}
}

func rootOf(operationType document.OperationType) (id string, typename string) {
	switch operationType {
	case document.OperationTypeMutation:
		return RootMutation, "Mutation"
	case document.OperationTypeSubscription:
		return RootSubscription, "Subscription"
	}
	return RootQuery, "Query"
}

// Write stores the data of a response to the operation.
func (cache *InMemoryCache) Write(request Request, data map[string]interface{}) error {
	if request.Document == nil || request.Operation == nil {
		return graphql.NewError("write requires a document and an operation",
			graphql.Op("cache.Write"), graphql.ErrKindInternal)
	}

	rootID, typename := rootOf(request.Operation.Type)
	w := writer{
		cache:   cache,
		request: request,
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	root := cache.data[rootID]
	if root == nil {
		root = Record{TypenameField: typename}
	}
	cache.data[rootID] = Record(w.writeSelectionSet(request.Operation.SelectionSet, data, typename, root))
	return nil
}

type writer struct {
	cache   *InMemoryCache
	request Request
}

// writeSelectionSet writes the fields of object selected by the selection set into existing and
// returns it. Existing is modified in place.
func (w *writer) writeSelectionSet(
	set document.SelectionSet,
	object map[string]interface{},
	typename string,
	existing map[string]interface{}) map[string]interface{} {

	if existing == nil {
		existing = map[string]interface{}{}
	}
	if t, ok := object[TypenameField].(string); ok {
		typename = t
	}

	vars := w.request.Variables
	for _, field := range w.request.Document.CollectFields(set, vars, typename, w.cache.matches) {
		value, exists := object[field.ResponseKey()]
		if !exists {
			// Fields absent from the response (e.g., deferred or dropped by the server) are left alone.
			continue
		}

		var (
			args      = field.ArgumentValues(vars)
			policy    = w.cache.policies.fieldPolicy(typename, field.Name)
			storeName = StoreFieldName(field.Name, args, policy)
			current   = existing[storeName]
			incoming  = w.writeValue(field, value, current)
		)

		if policy != nil && policy.Merge != nil {
			incoming = policy.Merge(current, incoming, MergeContext{
				Typename:  typename,
				FieldName: field.Name,
				Args:      args,
			})
		}
		existing[storeName] = incoming
	}

	return existing
}

func (w *writer) writeValue(field *document.Field, value interface{}, current interface{}) interface{} {
	switch value := value.(type) {
	case []interface{}:
		list := make([]interface{}, len(value))
		for i, item := range value {
			list[i] = w.writeValue(field, item, nil)
		}
		return list

	case map[string]interface{}:
		if len(field.SelectionSet) == 0 {
			// Custom scalar with an object value
			return cloneObject(value)
		}
		existing, _ := current.(map[string]interface{})
		if existing != nil {
			// Do not modify the stored object in place; a merge function may still need it.
			existing = cloneObject(existing)
		}
		return w.writeSelectionSet(field.SelectionSet, value, "", existing)
	}
	return value
}

// Read answers the operation from the cache. It returns the data keyed by response keys and true
// if every selected field is in the cache; otherwise it returns nil and false.
func (cache *InMemoryCache) Read(request Request) (map[string]interface{}, bool) {
	if request.Document == nil || request.Operation == nil {
		return nil, false
	}

	rootID, typename := rootOf(request.Operation.Type)
	r := reader{
		cache:   cache,
		request: request,
	}

	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	root, exists := cache.data[rootID]
	if !exists {
		return nil, false
	}
	return r.readSelectionSet(request.Operation.SelectionSet, root, typename)
}

type reader struct {
	cache   *InMemoryCache
	request Request
}

func (r *reader) readSelectionSet(
	set document.SelectionSet,
	object map[string]interface{},
	typename string) (map[string]interface{}, bool) {

	if t, ok := object[TypenameField].(string); ok {
		typename = t
	}

	vars := r.request.Variables
	fields := r.request.Document.CollectFields(set, vars, typename, r.cache.matches)
	result := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		if field.Name == TypenameField && len(typename) > 0 {
			result[field.ResponseKey()] = typename
			continue
		}

		var (
			policy    = r.cache.policies.fieldPolicy(typename, field.Name)
			storeName = StoreFieldName(field.Name, field.ArgumentValues(vars), policy)
		)
		value, exists := object[storeName]
		if !exists {
			return nil, false
		}

		value, complete := r.readValue(field, value)
		if !complete {
			return nil, false
		}
		result[field.ResponseKey()] = value
	}
	return result, true
}

func (r *reader) readValue(field *document.Field, value interface{}) (interface{}, bool) {
	switch value := value.(type) {
	case []interface{}:
		list := make([]interface{}, len(value))
		for i, item := range value {
			v, complete := r.readValue(field, item)
			if !complete {
				return nil, false
			}
			list[i] = v
		}
		return list, true

	case map[string]interface{}:
		if len(field.SelectionSet) == 0 {
			return cloneObject(value), true
		}
		return r.readSelectionSet(field.SelectionSet, value, "")
	}
	return value, true
}
