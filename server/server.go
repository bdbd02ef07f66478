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

// Package server serves wrapped pages over HTTP: each request runs the initial props of its page,
// renders the page and embeds the props for hydration in the document.
package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/head"
	"github.com/botobag/prerender/ssr"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DataElementID is the id of the <script> element that holds the page props.
const DataElementID = "__PRERENDER_DATA__"

// RootElementID is the id of the element that holds the rendered page.
const RootElementID = "__prerender"

// Option configures a Server.
type Option func(server *Server)

// WithLogger sets the logger. Default to zap.L().
func WithLogger(logger *zap.Logger) Option {
	return func(server *Server) {
		server.logger = logger
	}
}

// WithScripts adds <script src="..."> elements at the end of the body of every document.
func WithScripts(sources ...string) Option {
	return func(server *Server) {
		server.scripts = append(server.scripts, sources...)
	}
}

// Server routes requests to pages.
type Server struct {
	router  chi.Router
	logger  *zap.Logger
	scripts []string
}

// New creates a server without pages.
func New(opts ...Option) *Server {
	server := &Server{
		router: chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(server)
	}
	if server.logger == nil {
		server.logger = zap.L()
	}

	server.router.Use(middleware.RequestID)
	server.router.Use(server.accessLog)
	server.router.Use(middleware.Recoverer)
	return server
}

// Router returns the router for routes other than pages (e.g., static files).
func (server *Server) Router() chi.Router {
	return server.router
}

// ServeHTTP implements http.Handler.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server.router.ServeHTTP(w, r)
}

// Handle serves page for GET requests matching pattern. URL parameters of the pattern are
// available to LoadProps via chi.URLParam(pc.Request, name).
func (server *Server) Handle(pattern string, page *ssr.WrappedPage) {
	server.router.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		server.servePage(w, r, page)
	})
}

func (server *Server) servePage(w http.ResponseWriter, r *http.Request, page *ssr.WrappedPage) {
	logger := server.logger.With(
		zap.String("page", page.Name()),
		zap.String("requestID", middleware.GetReqID(r.Context())))

	pc := ssr.NewPageContext(w, r)

	var (
		props ssr.Props
		err   error
	)
	if page.HasInitialProps() {
		props, err = page.InitialProps(r.Context(), pc)
		if err != nil {
			logger.Error("cannot compute initial props", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}
	if pc.Finished() {
		return
	}

	c := pc.Client
	if c == nil {
		if c, err = page.Accessor().Get(nil); err != nil {
			logger.Error("cannot obtain a client", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
	}

	var buf bytes.Buffer
	if err := server.document(page, props, c, pc.Head).Render(r.Context(), &buf); err != nil {
		logger.Error("cannot render page", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// document renders the HTML document of a page. The page is rendered before the head so the tags
// it declares can be written.
func (server *Server) document(
	page *ssr.WrappedPage,
	props ssr.Props,
	c *client.Client,
	collector *head.Collector) templ.Component {

	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var body bytes.Buffer
		if err := page.Tree(props, c).Render(head.WithCollector(ctx, collector), &body); err != nil {
			return err
		}

		bundle, err := ssr.EncodeBundle(props)
		if err != nil {
			return err
		}

		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8">`); err != nil {
			return err
		}
		if err := collector.Rewind().Render(ctx, w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</head><body><div id="`+RootElementID+`">`); err != nil {
			return err
		}
		if _, err := w.Write(body.Bytes()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</div><script id="`+DataElementID+`" type="application/json">`); err != nil {
			return err
		}
		if _, err := w.Write(bundle); err != nil {
			return err
		}
		if _, err := io.WriteString(w, `</script>`); err != nil {
			return err
		}
		for _, src := range server.scripts {
			if _, err := io.WriteString(w, `<script src="`+templ.EscapeString(src)+`"></script>`); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</body></html>`)
		return err
	})
}

func (server *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			server.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}
