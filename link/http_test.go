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

package link_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/graphql/document"
	"github.com/botobag/prerender/internal/graphqltest"
	. "github.com/botobag/prerender/internal/testutil"
	"github.com/botobag/prerender/link"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var _ = Describe("HTTPLink", func() {
	var server *graphqltest.Server

	BeforeEach(func() {
		server = graphqltest.NewServer(graphqltest.Schema{
			Query: map[string]graphqltest.FieldResolver{
				"hello": func(args map[string]interface{}) (interface{}, error) {
					if name, ok := args["name"].(string); ok {
						return "Hello, " + name, nil
					}
					return "Hello", nil
				},
				"broken": func(args map[string]interface{}) (interface{}, error) {
					return nil, errors.New("resolver failed")
				},
			},
		})
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("NewHTTPLink", func() {
		It("rejects endpoints that are not absolute http URLs", func() {
			for _, uri := range []string{"", "/api", "ftp://example.com/api", "http://", "http://[::1"} {
				_, err := link.NewHTTPLink(uri)
				Expect(err).Should(MatchGraphQLError(
					KindIs(graphql.ErrKindConfig),
					OpIs("link.NewHTTPLink"),
				), uri)
			}
		})

		It("rejects unknown credentials modes", func() {
			_, err := link.NewHTTPLink(server.URL, link.WithCredentials("sometimes"))
			Expect(err).Should(MatchGraphQLError(KindIs(graphql.ErrKindConfig)))
		})

		It("does not contact the server", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(l.URI()).Should(Equal(server.URL))
			Expect(l.Credentials()).Should(Equal(link.CredentialsSameOrigin))
			Expect(server.Requests()).Should(Equal(0))
		})
	})

	Describe("Execute", func() {
		It("returns data", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())

			result, err := l.Execute(context.Background(), &link.Operation{
				Query:     `query Greet($name: String) { hello(name: $name) }`,
				Variables: map[string]interface{}{"name": "Gopher"},
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result.Errors.HaveOccurred()).Should(BeFalse())
			Expect(result.Data).Should(Equal(map[string]interface{}{"hello": "Hello, Gopher"}))
			Expect(server.Requests()).Should(Equal(1))
		})

		It("sends the operation name", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())

			result, err := l.Execute(context.Background(), &link.Operation{
				Query:         `query A { a: hello } query B { b: hello }`,
				OperationName: "B",
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result.Data).Should(Equal(map[string]interface{}{"b": "Hello"}))

			received := server.Received()
			Expect(received).Should(HaveLen(1))
			Expect(received[0].OperationName).Should(Equal("B"))
		})

		It("returns all errors reported by the server together with data", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())

			result, err := l.Execute(context.Background(), &link.Operation{
				Query: `{ hello broken again: broken }`,
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result.Data).Should(Equal(map[string]interface{}{
				"hello":  "Hello",
				"broken": nil,
				"again":  nil,
			}))
			Expect(result.Errors).Should(ConsistOfGraphQLErrors(
				MatchGraphQLError(MessageEqual("resolver failed"), KindIs(graphql.ErrKindResponse)),
				MatchGraphQLError(MessageEqual("resolver failed"), KindIs(graphql.ErrKindResponse)),
			))
			Expect(result.Errors.Errors[0].Path.String()).Should(Equal("broken"))
		})

		It("returns request errors without data", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())

			result, err := l.Execute(context.Background(), &link.Operation{
				Query: `{ hello`,
			})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(result.Data).Should(BeNil())
			Expect(result.Errors).Should(ConsistOfGraphQLErrors(
				MatchGraphQLError(
					MessageContainSubstring("Syntax Error"),
					LocationEqual(graphql.ErrorLocation{Line: 1, Column: 8}),
				),
			))
		})

		It("fails when the server cannot be reached", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())
			server.Close()

			result, err := l.Execute(context.Background(), &link.Operation{
				Query: `{ hello }`,
			})
			Expect(result).Should(BeNil())
			Expect(err).Should(MatchGraphQLError(
				KindIs(graphql.ErrKindTransport),
				MessageContainSubstring("failed to execute operation anonymous"),
			))
		})

		It("fails on a response that is not GraphQL", func() {
			plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusBadGateway)
			}))
			defer plain.Close()

			l, err := link.NewHTTPLink(plain.URL)
			Expect(err).ShouldNot(HaveOccurred())

			_, err = l.Execute(context.Background(), &link.Operation{Query: `{ hello }`})
			Expect(err).Should(MatchGraphQLError(
				KindIs(graphql.ErrKindTransport),
				MessageContainSubstring("Bad Gateway"),
			))
		})

		It("honors cancellation", func() {
			l, err := link.NewHTTPLink(server.URL)
			Expect(err).ShouldNot(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err = l.Execute(ctx, &link.Operation{Query: `{ hello }`})
			Expect(err).Should(MatchGraphQLError(KindIs(graphql.ErrKindTransport)))
			Expect(errors.Is(err, context.Canceled)).Should(BeTrue())
		})

		It("records a span per operation", func() {
			recorder := tracetest.NewSpanRecorder()
			provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			l, err := link.NewHTTPLink(server.URL, link.WithTracerProvider(provider))
			Expect(err).ShouldNot(HaveOccurred())

			_, err = l.Execute(context.Background(), &link.Operation{
				Query:         `query Greet { hello }`,
				OperationName: "Greet",
				Type:          document.OperationTypeQuery,
			})
			Expect(err).ShouldNot(HaveOccurred())

			spans := recorder.Ended()
			Expect(spans).Should(HaveLen(1))
			Expect(spans[0].Name()).Should(Equal("graphql.query"))
			Expect(spans[0].Attributes()).Should(ContainElement(
				attribute.String("graphql.operation.name", "Greet")))
		})
	})

	Describe("credentials", func() {
		execute := func(credentials link.Credentials, pageURL string) string {
			l, err := link.NewHTTPLink(server.URL, link.WithCredentials(credentials))
			Expect(err).ShouldNot(HaveOccurred())

			page := httptest.NewRequest(http.MethodGet, pageURL, nil)
			page.AddCookie(&http.Cookie{Name: "session", Value: "s3cr3t"})

			ctx := link.WithRequestCookies(context.Background(), page)
			_, err = l.Execute(ctx, &link.Operation{Query: `{ hello }`})
			Expect(err).ShouldNot(HaveOccurred())

			received := server.Received()
			return received[len(received)-1].Cookie
		}

		It("forwards cookies to the same origin", func() {
			Expect(execute(link.CredentialsSameOrigin, server.URL+"/posts")).Should(Equal("session=s3cr3t"))
		})

		It("keeps cookies from other origins", func() {
			Expect(execute(link.CredentialsSameOrigin, "http://example.com/posts")).Should(BeEmpty())
		})

		It("forwards cookies anywhere with include", func() {
			Expect(execute(link.CredentialsInclude, "http://example.com/posts")).Should(Equal("session=s3cr3t"))
		})

		It("never forwards cookies with omit", func() {
			Expect(execute(link.CredentialsOmit, server.URL+"/posts")).Should(BeEmpty())
		})

		It("normalizes the case of the mode", func() {
			l, err := link.NewHTTPLink(server.URL, link.WithCredentials("Same-Origin"))
			Expect(err).ShouldNot(HaveOccurred())
			Expect(l.Credentials()).Should(Equal(link.CredentialsSameOrigin))

			Expect(execute("Same-Origin", server.URL+"/posts")).Should(Equal("session=s3cr3t"))
			Expect(execute("INCLUDE", "http://example.com/posts")).Should(Equal("session=s3cr3t"))
		})

		It("sends no cookies without a page request", func() {
			l, err := link.NewHTTPLink(server.URL, link.WithCredentials(link.CredentialsInclude))
			Expect(err).ShouldNot(HaveOccurred())
			_, err = l.Execute(context.Background(), &link.Operation{Query: `{ hello }`})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(server.Received()[0].Cookie).Should(BeEmpty())
		})

		It("parses modes", func() {
			Expect(link.ParseCredentials("include")).Should(Equal(link.CredentialsInclude))
			Expect(link.ParseCredentials("SAME-ORIGIN")).Should(Equal(link.CredentialsSameOrigin))
			Expect(link.ParseCredentials("")).Should(Equal(link.CredentialsSameOrigin))
			_, err := link.ParseCredentials("all")
			Expect(err).Should(HaveOccurred())
		})
	})

	It("adapts functions", func() {
		var l link.Link = link.Func(func(ctx context.Context, operation *link.Operation) (*link.Result, error) {
			return &link.Result{Data: map[string]interface{}{"name": operation.Name()}}, nil
		})
		result, err := l.Execute(context.Background(), &link.Operation{})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(result.Data).Should(Equal(map[string]interface{}{"name": "anonymous"}))
	})
})
