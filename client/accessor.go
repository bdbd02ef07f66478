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

package client

import (
	"fmt"
	"sync"

	"github.com/botobag/prerender/cache"
)

// Environment is where the code runs.
type Environment int

// Enumeration of Environment
const (
	// Server renders pages for requests. Every client serves a single request.
	Server Environment = iota

	// Browser is a long-lived session where one client survives page transitions.
	Browser
)

func (env Environment) String() string {
	switch env {
	case Server:
		return "server"
	case Browser:
		return "browser"
	}
	return fmt.Sprintf("Environment(%d)", int(env))
}

// Accessor hands out clients according to the environment. On Server, every Get returns a new
// client so no cache is shared between requests. On Browser, the first Get creates the client of
// the session and later calls return it, ignoring their snapshots so live cache state is never
// overwritten.
type Accessor struct {
	env     Environment
	factory *Factory

	// mutex guards singleton.
	mutex     sync.Mutex
	singleton *Client
}

// NewAccessor creates an accessor for env. Clients created on Server are in SSR mode.
func NewAccessor(env Environment, config Config) (*Accessor, error) {
	config.SSRMode = env == Server
	factory, err := NewFactory(config)
	if err != nil {
		return nil, err
	}
	return &Accessor{
		env:     env,
		factory: factory,
	}, nil
}

// Environment returns the environment of the accessor.
func (accessor *Accessor) Environment() Environment {
	return accessor.env
}

// Factory returns the factory used to create clients.
func (accessor *Accessor) Factory() *Factory {
	return accessor.factory
}

// Get returns a client. See Accessor for the policy. A failed creation leaves no client behind so
// a later Get tries again.
func (accessor *Accessor) Get(snapshot cache.Snapshot) (*Client, error) {
	if accessor.env != Browser {
		return accessor.factory.New(snapshot)
	}

	accessor.mutex.Lock()
	defer accessor.mutex.Unlock()

	if accessor.singleton == nil {
		client, err := accessor.factory.New(snapshot)
		if err != nil {
			return nil, err
		}
		accessor.singleton = client
	}
	return accessor.singleton, nil
}
