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

package document_test

import (
	"errors"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func expectSyntaxError(query string, message string, location graphql.ErrorLocation) {
	_, err := document.Parse(query)
	Expect(err).Should(HaveOccurred())

	var e *graphql.Error
	Expect(errors.As(err, &e)).Should(BeTrue())
	Expect(e.Kind).Should(Equal(graphql.ErrKindSyntax))
	Expect(e.Message).Should(ContainSubstring(message))
	Expect(e.Locations).Should(Equal([]graphql.ErrorLocation{location}))
}

var _ = Describe("Parse", func() {
	It("parses the query shorthand", func() {
		doc, err := document.Parse(`{ hello }`)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(doc.Operations).Should(HaveLen(1))

		operation, err := doc.Operation("")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(operation.Type).Should(Equal(document.OperationTypeQuery))
		Expect(operation.Name).Should(BeEmpty())
		Expect(operation.SelectionSet).Should(HaveLen(1))
		Expect(operation.SelectionSet[0].(*document.Field).Name).Should(Equal("hello"))
	})

	It("parses named operations with variables, aliases, arguments and nested selections", func() {
		doc, err := document.Parse(`
			query allPosts($first: Int!, $skip: Int = 0, $where: [PostFilter!]) @live {
				posts: allPosts(orderBy: createdAt_DESC, first: $first, skip: $skip, where: $where) {
					id
					title
					votes
				}
				_allPostsMeta { count }
			}
		`)
		Expect(err).ShouldNot(HaveOccurred())

		operation, err := doc.Operation("allPosts")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(operation.Type).Should(Equal(document.OperationTypeQuery))
		Expect(operation.Directives).Should(HaveLen(1))
		Expect(operation.Variables).Should(HaveLen(3))
		Expect(operation.Variables[0].Type).Should(Equal("Int!"))
		Expect(operation.Variables[2].Type).Should(Equal("[PostFilter!]"))
		Expect(operation.Variables[1].DefaultValue).Should(Equal(document.IntValue("0")))

		posts := operation.SelectionSet[0].(*document.Field)
		Expect(posts.Alias).Should(Equal("posts"))
		Expect(posts.Name).Should(Equal("allPosts"))
		Expect(posts.ResponseKey()).Should(Equal("posts"))
		Expect(posts.SelectionSet).Should(HaveLen(3))

		Expect(posts.ArgumentValues(operation.VariableValues(map[string]interface{}{
			"first": float64(10),
		}))).Should(Equal(map[string]interface{}{
			"orderBy": "createdAt_DESC",
			"first":   float64(10),
			"skip":    int64(0),
			"where":   nil,
		}))
	})

	It("parses mutations and literal values", func() {
		doc, err := document.Parse(`
			mutation createPost {
				createPost(title: "Hello", url: """https://x.y""", tags: ["a", "b"], meta: {draft: false, score: 1.5, owner: null}) {
					id
				}
			}
		`)
		Expect(err).ShouldNot(HaveOccurred())

		operation, err := doc.Operation("")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(operation.Type).Should(Equal(document.OperationTypeMutation))

		field := operation.SelectionSet[0].(*document.Field)
		Expect(field.ArgumentValues(nil)).Should(Equal(map[string]interface{}{
			"title": "Hello",
			"url":   "https://x.y",
			"tags":  []interface{}{"a", "b"},
			"meta": map[string]interface{}{
				"draft": false,
				"score": 1.5,
				"owner": nil,
			},
		}))
	})

	It("parses fragments", func() {
		doc, err := document.Parse(`
			query { node { ...PostFields ... on Post { url } ... @include(if: true) { id } } }
			fragment PostFields on Post { title }
		`)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(doc.Fragments).Should(HaveKey("PostFields"))
		Expect(doc.Fragments["PostFields"].TypeCondition).Should(Equal("Post"))

		node := doc.Operations[0].SelectionSet[0].(*document.Field)
		Expect(node.SelectionSet).Should(HaveLen(3))
		Expect(node.SelectionSet[0]).Should(BeAssignableToTypeOf(&document.FragmentSpread{}))
		Expect(node.SelectionSet[1].(*document.InlineFragment).TypeCondition).Should(Equal("Post"))
		Expect(node.SelectionSet[2].(*document.InlineFragment).TypeCondition).Should(BeEmpty())
	})

	It("requires an operation name when there are many operations", func() {
		doc, err := document.Parse(`query A { a } query B { b }`)
		Expect(err).ShouldNot(HaveOccurred())

		_, err = doc.Operation("")
		Expect(err).Should(MatchError(ContainSubstring("Must provide operation name")))

		_, err = doc.Operation("C")
		Expect(err).Should(MatchError(ContainSubstring(`Unknown operation named "C"`)))

		operation, err := doc.Operation("B")
		Expect(err).ShouldNot(HaveOccurred())
		Expect(operation.Name).Should(Equal("B"))
	})

	It("reports syntax errors with locations", func() {
		expectSyntaxError(`{`, "Expected Name, found <EOF>", graphql.ErrorLocation{Line: 1, Column: 2})
		expectSyntaxError(`{ ...on }`, "Expected Name, found }", graphql.ErrorLocation{Line: 1, Column: 9})
		expectSyntaxError(`query ($a: Int = $b) { a }`, `Unexpected $`, graphql.ErrorLocation{Line: 1, Column: 18})
		expectSyntaxError(`type Query { a: Int }`, `Unexpected Name "type"`, graphql.ErrorLocation{Line: 1, Column: 1})
		expectSyntaxError("fragment on on T { a }", `Unexpected Name "on"`, graphql.ErrorLocation{Line: 1, Column: 10})
		expectSyntaxError("", "Unexpected <EOF>", graphql.ErrorLocation{Line: 1, Column: 1})
	})

	It("evaluates @skip and @include", func() {
		doc := document.MustParse(`query ($s: Boolean) { a @skip(if: $s) b @include(if: $s) c }`)
		operation := doc.Operations[0]

		names := func(vars map[string]interface{}) []string {
			var result []string
			for _, field := range doc.CollectFields(operation.SelectionSet, vars, "", nil) {
				result = append(result, field.Name)
			}
			return result
		}
		Expect(names(map[string]interface{}{"s": true})).Should(Equal([]string{"b", "c"}))
		Expect(names(map[string]interface{}{"s": false})).Should(Equal([]string{"a", "c"}))
	})
})
