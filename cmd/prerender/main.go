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

// Command prerender serves the demo pages: a list of posts fetched from a GraphQL endpoint and
// rendered on the server with their data, and a static about page.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/config"
	"github.com/botobag/prerender/server"
	"github.com/botobag/prerender/ssr"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	accessor, err := client.NewAccessor(client.Server, cfg.Client(logger))
	if err != nil {
		return err
	}

	pageOptions := func(extra ...ssr.Option) []ssr.Option {
		return append([]ssr.Option{
			ssr.WithAccessor(accessor),
			ssr.WithResolver(&ssr.DataFromTree{
				MaxPasses: cfg.MaxPasses,
				Logger:    logger,
			}),
			ssr.WithLogger(logger),
			ssr.ServerRender(cfg.SSR),
		}, extra...)
	}

	s := server.New(server.WithLogger(logger))
	s.Handle("/", ssr.Wrap(indexPage{}, pageOptions()...))
	s.Handle("/about", ssr.Wrap(ssr.Named("AboutPage", ssr.PageFunc(aboutPage)), pageOptions(ssr.ServerRender(false))...))
	s.Router().Post("/submit", submitHandler(accessor, logger))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("graphql", cfg.GraphQLURI))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
