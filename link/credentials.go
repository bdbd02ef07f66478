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

package link

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/botobag/prerender/graphql"
)

// Credentials controls whether the cookies of the page request are sent to the GraphQL endpoint,
// following the credentials mode of the browser fetch API.
type Credentials string

// Enumeration of Credentials
const (
	// CredentialsOmit never sends cookies.
	CredentialsOmit Credentials = "omit"

	// CredentialsSameOrigin sends cookies when the endpoint has the same origin as the page.
	CredentialsSameOrigin Credentials = "same-origin"

	// CredentialsInclude always sends cookies.
	CredentialsInclude Credentials = "include"
)

// ParseCredentials validates the name of a credentials mode.
func ParseCredentials(s string) (Credentials, error) {
	switch c := Credentials(strings.ToLower(s)); c {
	case CredentialsOmit, CredentialsSameOrigin, CredentialsInclude:
		return c, nil
	case "":
		return CredentialsSameOrigin, nil
	}
	return "", graphql.NewError(`unknown credentials mode "`+s+`"`,
		graphql.Op("link.ParseCredentials"), graphql.ErrKindConfig)
}

type pageRequestKey struct{}

// WithRequestCookies returns a context that carries the incoming page request. Links forward its
// cookies to the endpoint according to their Credentials.
func WithRequestCookies(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, pageRequestKey{}, r)
}

// pageRequestFrom returns the page request stored by WithRequestCookies or nil.
func pageRequestFrom(ctx context.Context) *http.Request {
	r, _ := ctx.Value(pageRequestKey{}).(*http.Request)
	return r
}

// originOf returns scheme and host of the page request.
func originOf(r *http.Request) (scheme string, host string) {
	scheme = "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); len(proto) > 0 {
		scheme = proto
	}
	host = r.Host
	if len(host) == 0 && r.URL != nil {
		host = r.URL.Host
	}
	return scheme, strings.ToLower(host)
}

// shouldSendCookies decides whether cookies of the page go to endpoint.
func (c Credentials) shouldSendCookies(endpoint *url.URL, page *http.Request) bool {
	if page == nil {
		return false
	}
	switch c {
	case CredentialsInclude:
		return true
	case CredentialsSameOrigin:
		scheme, host := originOf(page)
		return scheme == endpoint.Scheme && host == strings.ToLower(endpoint.Host)
	}
	return false
}
