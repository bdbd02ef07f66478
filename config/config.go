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

// Package config loads the settings of the prerender server from the environment.
package config

import (
	"github.com/botobag/prerender/client"
	"github.com/botobag/prerender/graphql"
	"github.com/botobag/prerender/link"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the settings of the server.
type Config struct {
	GraphQLURI         string `env:"PRERENDER_GRAPHQL_URI"          envDefault:"https://nextjs-graphql-with-prisma-simple.vercel.app/api"`
	GraphQLCredentials string `env:"PRERENDER_GRAPHQL_CREDENTIALS"  envDefault:"same-origin"`
	HTTPAddr           string `env:"PRERENDER_HTTP_ADDR"            envDefault:":3000"`
	SSR                bool   `env:"PRERENDER_SSR"                  envDefault:"true"`
	MaxPasses          int    `env:"PRERENDER_MAX_PASSES"           envDefault:"8"`
	DocumentCacheSize  uint   `env:"PRERENDER_DOCUMENT_CACHE_SIZE"  envDefault:"256"`
	LogLevel           string `env:"PRERENDER_LOG_LEVEL"            envDefault:"info"`

	credentials link.Credentials
	level       zapcore.Level
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	const op = graphql.Op("config.Load")

	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, graphql.NewError("cannot parse environment", op, graphql.ErrKindConfig, err)
	}

	credentials, err := link.ParseCredentials(cfg.GraphQLCredentials)
	if err != nil {
		return nil, graphql.NewError("invalid PRERENDER_GRAPHQL_CREDENTIALS", op, err)
	}
	cfg.credentials = credentials

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, graphql.NewError("invalid PRERENDER_LOG_LEVEL", op, graphql.ErrKindConfig, err)
	}
	cfg.level = level

	if cfg.MaxPasses <= 0 {
		return nil, graphql.NewError("PRERENDER_MAX_PASSES must be positive", op, graphql.ErrKindConfig)
	}

	return &cfg, nil
}

// Credentials returns the parsed credentials mode.
func (cfg *Config) Credentials() link.Credentials {
	return cfg.credentials
}

// Level returns the parsed log level.
func (cfg *Config) Level() zapcore.Level {
	return cfg.level
}

// Client returns the configuration of GraphQL clients.
func (cfg *Config) Client(logger *zap.Logger) client.Config {
	return client.Config{
		URI:               cfg.GraphQLURI,
		Credentials:       cfg.credentials,
		DocumentCacheSize: cfg.DocumentCacheSize,
		Logger:            logger,
	}
}

// NewLogger builds a production logger at the configured level.
func (cfg *Config) NewLogger() (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(cfg.level)
	return zapConfig.Build()
}
