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

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/head"
	"github.com/botobag/prerender/link"
	"github.com/botobag/prerender/ssr"

	"github.com/a-h/templ"
	"go.uber.org/zap"
)

const allPostsQuery = `
	query allPosts($first: Int!, $skip: Int!) {
		allPosts(orderBy: createdAt_DESC, first: $first, skip: $skip) {
			id
			title
			votes
			url
			createdAt
		}
		_allPostsMeta {
			count
		}
	}
`

const createPostMutation = `
	mutation createPost($title: String!, $url: String!) {
		createPost(title: $title, url: $url) {
			id
			title
			votes
			url
			createdAt
		}
	}
`

const postsPerPage = 10

func allPostsVars(page int) map[string]interface{} {
	return map[string]interface{}{
		"first": postsPerPage,
		"skip":  page * postsPerPage,
	}
}

// html writes raw markup.
func html(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func join(components ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, component := range components {
			if err := component.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func header(title string) templ.Component {
	return join(
		head.Title(title),
		head.Meta("viewport", "width=device-width, initial-scale=1"),
		html(`<header><a href="/">Home</a> <a href="/about">About</a></header>`),
	)
}

// indexPage lists the posts. "?pages=N" shows N pages, fetched page by page into one list.
type indexPage struct{}

func pagesOf(r *http.Request) int {
	if r == nil {
		return 1
	}
	pages, err := strconv.Atoi(r.URL.Query().Get("pages"))
	if err != nil || pages < 1 {
		return 1
	}
	return pages
}

func (indexPage) LoadProps(ctx context.Context, pc *ssr.PageContext) (ssr.Props, error) {
	pages := pagesOf(pc.Request)

	// The first page is resolved from the tree; later pages are appended to it in the cache.
	if pages > 1 {
		if _, err := pc.Client.Query(ctx, client.QueryOptions{
			Query:     allPostsQuery,
			Variables: allPostsVars(0),
		}); err != nil {
			return nil, err
		}
		for page := 1; page < pages; page++ {
			if _, err := pc.Client.Query(ctx, client.QueryOptions{
				Query:       allPostsQuery,
				Variables:   allPostsVars(page),
				FetchPolicy: client.NetworkOnly,
			}); err != nil {
				return nil, err
			}
		}
	}
	return ssr.Props{"pages": pages}, nil
}

func (indexPage) Component(props ssr.Props) templ.Component {
	pages, _ := props["pages"].(int)
	if pages == 0 {
		if f, ok := props["pages"].(float64); ok {
			pages = int(f)
		}
	}

	return join(
		header("Posts"),
		html(`<p>This page shows posts rendered on the server with their data.</p>`),
		html(`<form method="post" action="/submit"><input name="title" placeholder="title">`+
			`<input name="url" placeholder="url"><button type="submit">Submit</button></form>`),
		ssr.Query(client.QueryOptions{
			Query:     allPostsQuery,
			Variables: allPostsVars(0),
		}, func(result ssr.QueryResult) templ.Component {
			switch {
			case result.Error != nil:
				return html(`<div>Error loading posts.</div>`)
			case result.Loading:
				return html(`<div>Loading</div>`)
			}
			return postList(result.Data, pages)
		}),
	)
}

func postList(data map[string]interface{}, pages int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		posts, _ := data["allPosts"].([]interface{})
		if _, err := io.WriteString(w, "<ul>"); err != nil {
			return err
		}
		for i, item := range posts {
			post, _ := item.(map[string]interface{})
			if _, err := fmt.Fprintf(w, `<li>%d. <a href="%s">%s</a> (%s votes)</li>`, i+1,
				templ.EscapeString(string(templ.URL(fmt.Sprint(post["url"])))),
				templ.EscapeString(fmt.Sprint(post["title"])),
				templ.EscapeString(fmt.Sprint(post["votes"]))); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</ul>"); err != nil {
			return err
		}

		var total int
		if meta, ok := data["_allPostsMeta"].(map[string]interface{}); ok {
			switch count := meta["count"].(type) {
			case float64:
				total = int(count)
			case int:
				total = count
			}
		}
		if len(posts) < total {
			_, err := fmt.Fprintf(w, `<a href="/?pages=%d">Show more</a>`, pages+1)
			return err
		}
		return nil
	})
}

func aboutPage(props ssr.Props) templ.Component {
	return join(
		header("About"),
		html(`<article><h1>The Idea Behind This Example</h1>`+
			`<p>Pages that run GraphQL queries are wrapped so their queries run on the server before the `+
			`first render. The cache is sent to the browser with the page and seeds the client there.</p>`+
			`</article>`),
	)
}

// submitHandler creates a post and returns to the list.
func submitHandler(accessor *client.Accessor, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		c, err := accessor.Get(nil)
		if err != nil {
			logger.Error("cannot obtain a client", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		ctx := link.WithRequestCookies(r.Context(), r)
		if _, err := c.Mutate(ctx, client.MutateOptions{
			Mutation: createPostMutation,
			Variables: map[string]interface{}{
				"title": r.PostForm.Get("title"),
				"url":   r.PostForm.Get("url"),
			},
		}); err != nil {
			logger.Warn("cannot create post", zap.Error(err))
			http.Error(w, "cannot create post", http.StatusBadGateway)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}
