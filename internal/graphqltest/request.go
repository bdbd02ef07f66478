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

package graphqltest

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Default cap of request body
const defaultMaxBodySize = 10 << 20

// Request is a GraphQL request received by the Server.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`

	// Cookie is the Cookie header sent with the request.
	Cookie string `json:"-"`

	// Header of the HTTP request
	Header http.Header `json:"-"`
}

var errRequestBodyTooLarge = errors.New("request body is too large")

// If the value doesn't contains value for the given key, return an empty string without error.
// If there're multiple values associated with the key, return an error.
func getOneValue(values url.Values, key string) (string, error) {
	v := values[key]
	switch len(v) {
	case 0:
		return "", nil
	case 1:
		return v[0], nil
	default:
		return "", fmt.Errorf(`multiple values are provided to "%s", but only one expected`, key)
	}
}

func parseRequestFromValues(values url.Values) (*Request, error) {
	var (
		req Request
		err error
	)

	if req.Query, err = getOneValue(values, "query"); err != nil {
		return nil, err
	}
	if req.OperationName, err = getOneValue(values, "operationName"); err != nil {
		return nil, err
	}

	variables, err := getOneValue(values, "variables")
	if err != nil {
		return nil, err
	}
	if len(variables) > 0 {
		if err := json.UnmarshalFromString(variables, &req.Variables); err != nil {
			return nil, err
		}
	}

	return &req, nil
}

// ParseRequest reads a GraphQL request from GET query parameters or a POST body encoded in
// application/json, application/graphql or application/x-www-form-urlencoded.
func ParseRequest(r *http.Request) (*Request, error) {
	req, err := parseRequest(r)
	if err != nil {
		return nil, err
	}
	req.Cookie = r.Header.Get("Cookie")
	req.Header = r.Header.Clone()
	return req, nil
}

func parseRequest(r *http.Request) (*Request, error) {
	switch r.Method {
	case http.MethodGet:
		values, err := url.ParseQuery(r.URL.RawQuery)
		if err != nil {
			return nil, err
		}
		return parseRequestFromValues(values)

	case http.MethodPost:
		contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

		body, err := io.ReadAll(io.LimitReader(r.Body, defaultMaxBodySize+1))
		if err != nil {
			return nil, err
		}
		if len(body) > defaultMaxBodySize {
			return nil, errRequestBodyTooLarge
		}

		switch contentType {
		case "application/graphql":
			return &Request{
				Query: string(body),
			}, nil

		case "application/x-www-form-urlencoded":
			values, err := url.ParseQuery(string(body))
			if err != nil {
				return nil, err
			}
			return parseRequestFromValues(values)

		case "", "application/json":
			var req Request
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, err
			}
			return &req, nil
		}
		return nil, fmt.Errorf(`unsupported content type "%s"`, contentType)
	}

	return nil, fmt.Errorf("unsupported method %s", r.Method)
}
