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

package document

// TypeMatcher reports whether an object with the given __typename satisfies a fragment type
// condition. Typename is empty when the object did not select __typename.
type TypeMatcher func(typeCondition string, typename string) bool

// MatchExactType is the TypeMatcher used when no schema knowledge is available: a fragment applies
// when the object has no __typename or the type condition names it exactly.
func MatchExactType(typeCondition string, typename string) bool {
	return len(typeCondition) == 0 || len(typename) == 0 || typeCondition == typename
}

// CollectFields flattens fragments of the selection set and merges fields with the same response
// key, evaluating @skip and @include. Fields are returned in the order of their first appearance.
func (doc *Document) CollectFields(
	set SelectionSet,
	vars map[string]interface{},
	typename string,
	matches TypeMatcher) []*Field {

	if matches == nil {
		matches = MatchExactType
	}

	var (
		fields  []*Field
		byKey   = map[string]int{}
		visited = map[string]bool{}
		collect func(set SelectionSet)
	)

	collect = func(set SelectionSet) {
		for _, selection := range set {
			if !Included(selection.SelectionDirectives(), vars) {
				continue
			}

			switch selection := selection.(type) {
			case *Field:
				key := selection.ResponseKey()
				i, exists := byKey[key]
				if !exists {
					byKey[key] = len(fields)
					fields = append(fields, selection)
					continue
				}
				// Merge sub-selections into a copy so the document is left untouched.
				merged := *fields[i]
				merged.SelectionSet = append(append(SelectionSet{}, merged.SelectionSet...), selection.SelectionSet...)
				fields[i] = &merged

			case *InlineFragment:
				if matches(selection.TypeCondition, typename) {
					collect(selection.SelectionSet)
				}

			case *FragmentSpread:
				if visited[selection.Name] {
					continue
				}
				visited[selection.Name] = true
				fragment, exists := doc.Fragments[selection.Name]
				if exists && matches(fragment.TypeCondition, typename) {
					collect(fragment.SelectionSet)
				}
			}
		}
	}
	collect(set)

	return fields
}
