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

package client_test

import (
	"context"

	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/internal/graphqltest"
	. "github.com/botobag/prerender/internal/testutil"
	"github.com/botobag/prerender/link"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Factory", func() {
	It("applies defaults", func() {
		factory, err := client.NewFactory(client.Config{})
		Expect(err).ShouldNot(HaveOccurred())

		config := factory.Config()
		Expect(config.URI).Should(Equal(client.DefaultURI))
		Expect(config.Credentials).Should(Equal(link.CredentialsSameOrigin))
		Expect(config.TypePolicies).Should(HaveKey("Query"))
		Expect(config.TypePolicies["Query"].Fields).Should(HaveKey("allPosts"))
	})

	It("creates clients without network requests", func() {
		server := graphqltest.NewServer(blogSchema())
		defer server.Close()

		factory, err := client.NewFactory(client.Config{URI: server.URL})
		Expect(err).ShouldNot(HaveOccurred())

		c, err := factory.New(nil)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(c.Cache().Extract()).Should(BeEmpty())
		Expect(c.Link().(*link.HTTPLink).URI()).Should(Equal(server.URL))
		Expect(server.Requests()).Should(Equal(0))
	})

	It("fails construction on a malformed endpoint", func() {
		factory, err := client.NewFactory(client.Config{URI: "not a url"})
		Expect(err).ShouldNot(HaveOccurred())

		_, err = factory.New(nil)
		Expect(err).Should(MatchGraphQLError(
			KindIs(graphql.ErrKindConfig),
			OpIs("client.Factory.New"),
		))
	})

	It("seeds the cache from a snapshot", func() {
		factory, err := client.NewFactory(client.Config{})
		Expect(err).ShouldNot(HaveOccurred())

		snapshot := cache.Snapshot{
			cache.RootQuery: cache.Record{
				"__typename":    "Query",
				"_allPostsMeta": map[string]interface{}{"count": float64(3)},
			},
		}
		c, err := factory.New(snapshot)
		Expect(err).ShouldNot(HaveOccurred())

		data, err := c.ReadQuery(client.QueryOptions{Query: `{ _allPostsMeta { count } }`})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(data).Should(Equal(map[string]interface{}{
			"_allPostsMeta": map[string]interface{}{"count": float64(3)},
		}))
	})

	Describe("round trip", func() {
		var factory *client.Factory

		BeforeEach(func() {
			var err error
			factory, err = client.NewFactory(client.Config{})
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("extracts an empty snapshot", func() {
			c, err := factory.New(cache.Snapshot{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(c.Cache().Extract()).Should(Equal(cache.Snapshot{}))
		})

		It("extracts the snapshot it was seeded from", func() {
			snapshot := cache.Snapshot{
				cache.RootQuery: cache.Record{
					"__typename": "Query",
					"allPosts": []interface{}{
						map[string]interface{}{"id": "1", "title": "First", "votes": float64(3)},
						map[string]interface{}{"id": "2", "title": "Second", "votes": float64(1)},
					},
					"_allPostsMeta":    map[string]interface{}{"count": float64(2)},
					`post({"id":"1"})`: map[string]interface{}{"id": "1", "tags": []interface{}{"a", "b"}},
				},
				cache.RootMutation: cache.Record{
					"__typename":           "Mutation",
					`votePost({"id":"1"})`: map[string]interface{}{"votes": float64(4)},
				},
			}

			c, err := factory.New(snapshot)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(c.Cache().Extract()).Should(Equal(snapshot))
		})
	})
})

var _ = Describe("Accessor", func() {
	snapshotWithCount := func(count float64) cache.Snapshot {
		return cache.Snapshot{
			cache.RootQuery: cache.Record{
				"_allPostsMeta": map[string]interface{}{"count": count},
			},
		}
	}

	Context("in the browser", func() {
		It("returns the same client and ignores later snapshots", func() {
			accessor, err := client.NewAccessor(client.Browser, client.Config{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(accessor.Environment()).Should(Equal(client.Browser))

			first, err := accessor.Get(snapshotWithCount(1))
			Expect(err).ShouldNot(HaveOccurred())
			second, err := accessor.Get(snapshotWithCount(2))
			Expect(err).ShouldNot(HaveOccurred())
			third, err := accessor.Get(nil)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(second).Should(BeIdenticalTo(first))
			Expect(third).Should(BeIdenticalTo(first))
			Expect(first.SSRMode()).Should(BeFalse())
			Expect(first.Cache().Extract()).Should(Equal(snapshotWithCount(1)))
		})

		It("keeps live cache state", func() {
			accessor, err := client.NewAccessor(client.Browser, client.Config{})
			Expect(err).ShouldNot(HaveOccurred())

			c, err := accessor.Get(nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(c.WriteQuery(client.QueryOptions{Query: `{ _allPostsMeta { count } }`},
				map[string]interface{}{"_allPostsMeta": map[string]interface{}{"count": float64(9)}})).Should(Succeed())

			again, err := accessor.Get(snapshotWithCount(1))
			Expect(err).ShouldNot(HaveOccurred())
			data, err := again.ReadQuery(client.QueryOptions{Query: `{ _allPostsMeta { count } }`})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(data["_allPostsMeta"]).Should(Equal(map[string]interface{}{"count": float64(9)}))
		})

		It("creates one client under concurrent access", func() {
			accessor, err := client.NewAccessor(client.Browser, client.Config{})
			Expect(err).ShouldNot(HaveOccurred())

			clients := make(chan *client.Client, 8)
			for i := 0; i < cap(clients); i++ {
				go func() {
					defer GinkgoRecover()
					c, err := accessor.Get(nil)
					Expect(err).ShouldNot(HaveOccurred())
					clients <- c
				}()
			}

			first := <-clients
			for i := 1; i < cap(clients); i++ {
				Expect(<-clients).Should(BeIdenticalTo(first))
			}
		})

		It("does not keep a failed client", func() {
			accessor, err := client.NewAccessor(client.Browser, client.Config{URI: "::"})
			Expect(err).ShouldNot(HaveOccurred())

			_, err = accessor.Get(nil)
			Expect(err).Should(MatchGraphQLError(KindIs(graphql.ErrKindConfig)))
			_, err = accessor.Get(nil)
			Expect(err).Should(HaveOccurred())
		})
	})

	Context("on the server", func() {
		It("never returns the same client twice", func() {
			accessor, err := client.NewAccessor(client.Server, client.Config{})
			Expect(err).ShouldNot(HaveOccurred())

			seen := map[*client.Client]bool{}
			for _, snapshot := range []cache.Snapshot{nil, nil, snapshotWithCount(1), snapshotWithCount(1)} {
				c, err := accessor.Get(snapshot)
				Expect(err).ShouldNot(HaveOccurred())
				Expect(c.SSRMode()).Should(BeTrue())
				Expect(seen).ShouldNot(HaveKey(c))
				seen[c] = true
			}
		})

		It("does not share caches between clients", func() {
			accessor, err := client.NewAccessor(client.Server, client.Config{})
			Expect(err).ShouldNot(HaveOccurred())

			first, err := accessor.Get(nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(first.WriteQuery(client.QueryOptions{Query: `{ _allPostsMeta { count } }`},
				map[string]interface{}{"_allPostsMeta": map[string]interface{}{"count": 1}})).Should(Succeed())

			second, err := accessor.Get(nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(second.Cache()).ShouldNot(BeIdenticalTo(first.Cache()))
			Expect(second.Cache().Extract()).Should(BeEmpty())

			_, err = second.Query(context.Background(), client.QueryOptions{
				Query:       `{ _allPostsMeta { count } }`,
				FetchPolicy: client.CacheOnly,
			})
			Expect(err).Should(HaveOccurred())
		})
	})

	It("names environments", func() {
		Expect(client.Server.String()).Should(Equal("server"))
		Expect(client.Browser.String()).Should(Equal("browser"))
	})
})
