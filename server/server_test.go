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

package server_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/botobag/prerender/cache"
	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/head"
	"github.com/botobag/prerender/internal/graphqltest"
	"github.com/botobag/prerender/server"
	"github.com/botobag/prerender/ssr"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

type postPage struct{}

func (postPage) Component(props ssr.Props) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := head.Title("Post " + props["id"].(string)).Render(ctx, w); err != nil {
			return err
		}
		return ssr.Query(client.QueryOptions{
			Query:     `query post($id: ID!) { post(id: $id) { title } }`,
			Variables: map[string]interface{}{"id": props["id"]},
		}, func(result ssr.QueryResult) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				if result.Loading {
					_, err := io.WriteString(w, "loading")
					return err
				}
				_, err := fmt.Fprintf(w, "<h1>%s</h1>", templ.EscapeString(
					result.Data["post"].(map[string]interface{})["title"].(string)))
				return err
			})
		}).Render(ctx, w)
	})
}

func (postPage) LoadProps(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
	id := chi.URLParam(pc.Request, "id")
	switch id {
	case "old":
		pc.Redirect("/post/1", http.StatusMovedPermanently)
		return nil, nil
	case "bad":
		return nil, errors.New("bad post")
	}
	return ssr.Props{"id": id}, nil
}

func bundleOf(html string) ssr.Props {
	start := strings.Index(html, `<script id="`+server.DataElementID+`" type="application/json">`)
	Expect(start).ShouldNot(BeNumerically("<", 0))
	rest := html[start:]
	rest = rest[strings.Index(rest, ">")+1:]
	end := strings.Index(rest, "</script>")
	Expect(end).ShouldNot(BeNumerically("<", 0))

	props, err := ssr.DecodeBundle([]byte(rest[:end]))
	Expect(err).ShouldNot(HaveOccurred())
	return props
}

var _ = Describe("Server", func() {
	var (
		backend *graphqltest.Server
		site    *httptest.Server
	)

	BeforeEach(func() {
		backend = graphqltest.NewServer(graphqltest.Schema{
			Query: map[string]graphqltest.FieldResolver{
				"post": func(args map[string]interface{}) (interface{}, error) {
					return map[string]interface{}{"title": "<Title " + fmt.Sprint(args["id"]) + ">"}, nil
				},
			},
		})

		accessor, err := client.NewAccessor(client.Server, client.Config{URI: backend.URL})
		Expect(err).ShouldNot(HaveOccurred())

		s := server.New(server.WithLogger(zap.NewNop()), server.WithScripts("/static/app.js"))
		s.Handle("/post/{id}", ssr.Wrap(postPage{}, ssr.WithAccessor(accessor)))
		s.Handle("/about", ssr.Wrap(ssr.Named("About", ssr.PageFunc(func(props ssr.Props) templ.Component {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				_, err := io.WriteString(w, "<p>about</p>")
				return err
			})
		})), ssr.WithAccessor(accessor), ssr.ServerRender(false)))
		site = httptest.NewServer(s)
	})

	AfterEach(func() {
		site.Close()
		backend.Close()
	})

	get := func(path string) (*http.Response, string) {
		httpClient := &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
		resp, err := httpClient.Get(site.URL + path)
		Expect(err).ShouldNot(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).ShouldNot(HaveOccurred())
		return resp, string(body)
	}

	It("renders the page with its data, head and props", func() {
		resp, html := get("/post/7")
		Expect(resp.StatusCode).Should(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).Should(Equal("text/html; charset=utf-8"))

		Expect(html).Should(HavePrefix("<!DOCTYPE html>"))
		Expect(html).Should(ContainSubstring("<title>Post 7</title>"))
		Expect(html).Should(ContainSubstring(`<div id="__prerender"><h1>&lt;Title 7&gt;</h1></div>`))
		Expect(html).Should(ContainSubstring(`<script src="/static/app.js"></script>`))
		Expect(strings.Count(html, "<title>")).Should(Equal(1))

		props := bundleOf(html)
		Expect(props["id"]).Should(Equal("7"))
		snapshot, ok := props.Snapshot()
		Expect(ok).Should(BeTrue())
		Expect(snapshot[cache.RootQuery]).Should(HaveKey(`post({"id":"7"})`))

		Expect(backend.Requests()).Should(Equal(1))
	})

	It("redirects", func() {
		resp, _ := get("/post/old")
		Expect(resp.StatusCode).Should(Equal(http.StatusMovedPermanently))
		Expect(resp.Header.Get("Location")).Should(Equal("/post/1"))
		Expect(backend.Requests()).Should(Equal(0))
	})

	It("fails when props cannot be loaded", func() {
		resp, _ := get("/post/bad")
		Expect(resp.StatusCode).Should(Equal(http.StatusInternalServerError))
	})

	It("renders pages without initial props", func() {
		resp, html := get("/about")
		Expect(resp.StatusCode).Should(Equal(http.StatusOK))
		Expect(html).Should(ContainSubstring("<p>about</p>"))
		Expect(bundleOf(html)).Should(BeEmpty())
	})

	It("does not serve unknown routes", func() {
		resp, _ := get("/nowhere")
		Expect(resp.StatusCode).Should(Equal(http.StatusNotFound))
	})
})
