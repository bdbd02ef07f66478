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

package ssr_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/head"
	"github.com/botobag/prerender/internal/graphqltest"
	"github.com/botobag/prerender/ssr"

	"github.com/a-h/templ"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// loaderPage is a page with a LoadProps hook.
type loaderPage struct {
	component func(props ssr.Props) templ.Component
	load      func(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error)
}

func (page *loaderPage) Component(props ssr.Props) templ.Component {
	if page.component == nil {
		return templ.NopComponent
	}
	return page.component(props)
}

func (page *loaderPage) LoadProps(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
	return page.load(ctx, pc)
}

// countingResolver records calls and returns err.
type countingResolver struct {
	calls int
	err   error
}

func (resolver *countingResolver) Resolve(ctx context.Context, tree templ.Component) error {
	resolver.calls++
	if err := tree.Render(ctx, &bytes.Buffer{}); err != nil {
		return err
	}
	return resolver.err
}

const (
	postsQuery  = `query posts { allPosts { id title } }`
	viewerQuery = `query viewer { viewer { name } }`
)

// postsPage renders two independent queries.
func postsPage(props ssr.Props) templ.Component {
	return join(
		head.Title("Posts"),
		ssr.Query(client.QueryOptions{Query: postsQuery}, func(result ssr.QueryResult) templ.Component {
			if result.Loading {
				return text("[loading posts]")
			}
			if result.Error != nil {
				return text("[posts failed]")
			}
			return text("[%d posts]", len(result.Data["allPosts"].([]interface{})))
		}),
		ssr.Query(client.QueryOptions{Query: viewerQuery}, func(result ssr.QueryResult) templ.Component {
			if result.Loading {
				return text("[loading viewer]")
			}
			if result.Error != nil {
				return text("[viewer failed]")
			}
			return text("[hello %s]", result.Data["viewer"].(map[string]interface{})["name"])
		}),
	)
}

var _ = Describe("WrappedPage", func() {
	var (
		server   *graphqltest.Server
		accessor *client.Accessor
		logs     *observer.ObservedLogs
		logger   *zap.Logger
	)

	BeforeEach(func() {
		server = graphqltest.NewServer(blogSchema())

		var core zapcore.Core
		core, logs = observer.New(zapcore.DebugLevel)
		logger = zap.New(core)

		var err error
		accessor, err = client.NewAccessor(client.Server, client.Config{URI: server.URL, Logger: logger})
		Expect(err).ShouldNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	newPageContext := func() (*ssr.PageContext, *httptest.ResponseRecorder) {
		w := httptest.NewRecorder()
		return ssr.NewPageContext(w, httptest.NewRequest(http.MethodGet, "/", nil)), w
	}

	Describe("InitialProps", func() {
		It("returns the props of a finished response unchanged", func() {
			resolver := &countingResolver{}
			page := ssr.Wrap(&loaderPage{
				load: func(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
					pc.Redirect("/login", http.StatusFound)
					return ssr.Props{"from": "/"}, nil
				},
			}, ssr.WithAccessor(accessor), ssr.WithResolver(resolver))

			pc, w := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(props).Should(Equal(ssr.Props{"from": "/"}))
			Expect(props).ShouldNot(HaveKey(ssr.StateKey))
			Expect(resolver.calls).Should(BeZero())
			Expect(pc.Finished()).Should(BeTrue())
			Expect(w.Code).Should(Equal(http.StatusFound))
			Expect(w.Header().Get("Location")).Should(Equal("/login"))
		})

		It("swallows resolution errors", func() {
			resolver := &countingResolver{err: errors.New("boom")}
			page := ssr.Wrap(ssr.PageFunc(postsPage),
				ssr.WithAccessor(accessor), ssr.WithResolver(resolver), ssr.WithLogger(logger))

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(props).Should(HaveKey(ssr.StateKey))
			Expect(resolver.calls).Should(Equal(1))

			entries := logs.FilterMessage("error while running the resolution pass").All()
			Expect(entries).Should(HaveLen(1))
			Expect(entries[0].Level).Should(Equal(zapcore.ErrorLevel))

			var logged error
			for _, field := range entries[0].Context {
				if field.Key == "error" {
					logged, _ = field.Interface.(error)
				}
			}
			var resolutionErr *ssr.ResolutionError
			Expect(errors.As(logged, &resolutionErr)).Should(BeTrue())
			Expect(resolutionErr.Page).Should(Equal("PageFunc"))
			Expect(resolutionErr.Unwrap()).Should(MatchError("boom"))
		})

		It("recovers from a component panicking on its data", func() {
			nullServer := graphqltest.NewServer(graphqltest.Schema{
				Query: map[string]graphqltest.FieldResolver{
					"viewer": func(args map[string]interface{}) (interface{}, error) {
						return nil, nil
					},
				},
			})
			defer nullServer.Close()

			nullAccessor, err := client.NewAccessor(client.Server, client.Config{URI: nullServer.URL, Logger: logger})
			Expect(err).ShouldNot(HaveOccurred())

			page := ssr.Wrap(ssr.PageFunc(func(props ssr.Props) templ.Component {
				return join(
					head.Title("Viewer"),
					ssr.Query(client.QueryOptions{Query: viewerQuery}, func(result ssr.QueryResult) templ.Component {
						if result.Loading {
							return text("[loading viewer]")
						}
						// viewer is null.
						return text("[hello %s]", result.Data["viewer"].(map[string]interface{})["name"])
					}),
				)
			}), ssr.WithAccessor(nullAccessor), ssr.WithLogger(logger))

			pc, _ := newPageContext()
			var props ssr.Props
			Expect(func() {
				props, err = page.InitialProps(context.Background(), pc)
			}).ShouldNot(Panic())
			Expect(err).ShouldNot(HaveOccurred())
			Expect(props).Should(HaveKey(ssr.StateKey))
			Expect(pc.Head.Tags()).Should(BeEmpty())

			snapshot, ok := props.Snapshot()
			Expect(ok).Should(BeTrue())
			Expect(snapshot[cache.RootQuery]).Should(HaveKeyWithValue("viewer", BeNil()))
			Expect(nullServer.Requests()).Should(Equal(1))

			entries := logs.FilterMessage("error while running the resolution pass").All()
			Expect(entries).Should(HaveLen(1))
			Expect(entries[0].Level).Should(Equal(zapcore.ErrorLevel))

			var logged error
			for _, field := range entries[0].Context {
				if field.Key == "error" {
					logged, _ = field.Interface.(error)
				}
			}
			var resolutionErr *ssr.ResolutionError
			Expect(errors.As(logged, &resolutionErr)).Should(BeTrue())
			Expect(resolutionErr.Error()).Should(ContainSubstring("panic while resolving"))
		})

		It("rewinds head tags after resolution", func() {
			for _, resolverErr := range []error{nil, errors.New("boom")} {
				resolver := &countingResolver{err: resolverErr}
				page := ssr.Wrap(ssr.PageFunc(postsPage),
					ssr.WithAccessor(accessor), ssr.WithResolver(resolver), ssr.WithLogger(logger))

				pc, _ := newPageContext()
				_, err := page.InitialProps(context.Background(), pc)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(resolver.calls).Should(Equal(1))
				Expect(pc.Head.Tags()).Should(BeEmpty())
			}
		})

		It("skips resolution when server render is disabled", func() {
			resolver := &countingResolver{}
			page := ssr.Wrap(ssr.PageFunc(postsPage),
				ssr.WithAccessor(accessor), ssr.WithResolver(resolver), ssr.ServerRender(false))

			Expect(page.HasInitialProps()).Should(BeFalse())

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(resolver.calls).Should(BeZero())
			Expect(props).Should(Equal(ssr.Props{ssr.StateKey: cache.Snapshot{}}))
		})

		It("hands the client to LoadProps", func() {
			page := ssr.Wrap(&loaderPage{
				load: func(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
					Expect(pc.Client).ShouldNot(BeNil())
					result, err := pc.Client.Query(ctx, client.QueryOptions{Query: viewerQuery})
					if err != nil {
						return nil, err
					}
					return ssr.Props{"name": result.Data["viewer"].(map[string]interface{})["name"]}, nil
				},
			}, ssr.WithAccessor(accessor), ssr.ServerRender(false))

			Expect(page.HasInitialProps()).Should(BeTrue())

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(props["name"]).Should(Equal("Gopher"))

			snapshot, ok := props.Snapshot()
			Expect(ok).Should(BeTrue())
			Expect(snapshot[cache.RootQuery]).Should(HaveKey("viewer"))
		})

		It("propagates errors of LoadProps", func() {
			page := ssr.Wrap(&loaderPage{
				load: func(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
					return nil, errors.New("no such post")
				},
			}, ssr.WithAccessor(accessor))

			pc, _ := newPageContext()
			_, err := page.InitialProps(context.Background(), pc)
			Expect(err).Should(MatchError("no such post"))
		})

		It("starts every request from an empty cache", func() {
			page := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(accessor))

			first, _ := newPageContext()
			_, err := page.InitialProps(context.Background(), first)
			Expect(err).ShouldNot(HaveOccurred())

			second, _ := newPageContext()
			_, err = page.InitialProps(context.Background(), second)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(second.Client).ShouldNot(BeIdenticalTo(first.Client))
			Expect(server.Requests()).Should(Equal(4))
		})

		It("does not resolve in the browser", func() {
			browser, err := client.NewAccessor(client.Browser, client.Config{URI: server.URL})
			Expect(err).ShouldNot(HaveOccurred())

			resolver := &countingResolver{}
			page := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(browser), ssr.WithResolver(resolver))

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(props).Should(HaveKey(ssr.StateKey))
			Expect(resolver.calls).Should(BeZero())
		})
	})

	It("warns when wrapping the app", func() {
		ssr.Wrap(ssr.Named("App", ssr.PageFunc(postsPage)), ssr.WithAccessor(accessor), ssr.WithLogger(logger))
		Expect(logs.FilterMessage("ssr.Wrap only works with page components").Len()).Should(Equal(1))
	})

	It("names pages", func() {
		Expect(ssr.Wrap(&loaderPage{}, ssr.WithAccessor(accessor)).Name()).Should(Equal("loaderPage"))
		Expect(ssr.Wrap(ssr.Named("Posts", ssr.PageFunc(postsPage)), ssr.WithAccessor(accessor)).Name()).
			Should(Equal("Posts"))

		// Named keeps the LoadProps hook.
		named := ssr.Named("Secret", &loaderPage{})
		_, ok := named.(ssr.PropsLoader)
		Expect(ok).Should(BeTrue())
	})

	Describe("end to end", func() {
		It("hydrates a browser client that answers both queries without requests", func() {
			page := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(accessor), ssr.WithLogger(logger))

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(server.Requests()).Should(Equal(2))

			snapshot, ok := props.Snapshot()
			Expect(ok).Should(BeTrue())
			Expect(snapshot[cache.RootQuery]).Should(HaveKey("allPosts"))
			Expect(snapshot[cache.RootQuery]).Should(HaveKey("viewer"))

			// The server renders from the cache it resolved.
			var html bytes.Buffer
			Expect(page.Tree(props, pc.Client).Render(context.Background(), &html)).Should(Succeed())
			Expect(html.String()).Should(Equal("[2 posts][hello Gopher]"))

			// Ship to the browser.
			data, err := ssr.EncodeBundle(props)
			Expect(err).ShouldNot(HaveOccurred())
			decoded, err := ssr.DecodeBundle(data)
			Expect(err).ShouldNot(HaveOccurred())

			browser, err := client.NewAccessor(client.Browser, client.Config{URI: server.URL})
			Expect(err).ShouldNot(HaveOccurred())
			browserPage := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(browser))

			html.Reset()
			Expect(browserPage.Instance(decoded).Render(context.Background(), &html)).Should(Succeed())
			Expect(html.String()).Should(Equal("[2 posts][hello Gopher]"))
			Expect(server.Requests()).Should(Equal(2))
		})

		It("returns props when a query fails", func() {
			page := ssr.Wrap(ssr.PageFunc(func(props ssr.Props) templ.Component {
				return join(
					postsPage(props),
					ssr.Query(client.QueryOptions{Query: `{ broken }`}, func(result ssr.QueryResult) templ.Component {
						if result.Loading {
							return text("[loading broken]")
						}
						return text("[broken]")
					}),
				)
			}), ssr.WithAccessor(accessor), ssr.WithLogger(logger))

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(logs.FilterMessage("error while running the resolution pass").Len()).Should(Equal(1))

			// The other queries completed.
			snapshot, _ := props.Snapshot()
			Expect(snapshot[cache.RootQuery]).Should(HaveKey("allPosts"))
			Expect(snapshot[cache.RootQuery]).Should(HaveKey("viewer"))

			var html bytes.Buffer
			Expect(page.Tree(props, pc.Client).Render(context.Background(), &html)).Should(Succeed())
			Expect(html.String()).Should(Equal("[2 posts][hello Gopher][loading broken]"))
		})

		It("redirects without a cache entry", func() {
			page := ssr.Wrap(&loaderPage{
				component: postsPage,
				load: func(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
					pc.Redirect("/elsewhere", http.StatusTemporaryRedirect)
					return ssr.Props{"reason": "moved"}, nil
				},
			}, ssr.WithAccessor(accessor))

			pc, _ := newPageContext()
			props, err := page.InitialProps(context.Background(), pc)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(props).Should(Equal(ssr.Props{"reason": "moved"}))
			Expect(server.Requests()).Should(Equal(0))
		})
	})

	Describe("Instance", func() {
		It("obtains its client once", func() {
			page := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(accessor))
			instance := page.Instance(ssr.Props{})

			first, err := instance.Client()
			Expect(err).ShouldNot(HaveOccurred())
			second, err := instance.Client()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(second).Should(BeIdenticalTo(first))

			Expect(instance.Render(context.Background(), &bytes.Buffer{})).Should(Succeed())
			third, _ := instance.Client()
			Expect(third).Should(BeIdenticalTo(first))
		})

		It("seeds the client from the props", func() {
			page := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(accessor))
			instance := page.Instance(ssr.Props{
				ssr.StateKey: cache.Snapshot{
					cache.RootQuery: cache.Record{
						"viewer": map[string]interface{}{"name": "Seeded"},
					},
				},
			})

			c, err := instance.Client()
			Expect(err).ShouldNot(HaveOccurred())
			data, err := c.ReadQuery(client.QueryOptions{Query: viewerQuery})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(data["viewer"]).Should(Equal(map[string]interface{}{"name": "Seeded"}))
		})

		It("uses a supplied client", func() {
			failing, err := client.NewAccessor(client.Browser, client.Config{URI: "::"})
			Expect(err).ShouldNot(HaveOccurred())

			factory, err := client.NewFactory(client.Config{URI: server.URL})
			Expect(err).ShouldNot(HaveOccurred())
			supplied, err := factory.New(nil)
			Expect(err).ShouldNot(HaveOccurred())

			page := ssr.Wrap(ssr.PageFunc(postsPage), ssr.WithAccessor(failing))
			c, err := page.Instance(ssr.Props{}, ssr.WithClient(supplied)).Client()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(c).Should(BeIdenticalTo(supplied))

			_, err = page.Instance(ssr.Props{}).Client()
			Expect(err).Should(HaveOccurred())
		})
	})
})
