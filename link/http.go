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
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/botobag/prerender/graphql"

	"github.com/json-iterator/go"
	machinebox "github.com/machinebox/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Maximum size of a response body kept for decoding errors
const maxResponseSize = 10 << 20

// HTTPOption configures an HTTPLink.
type HTTPOption func(config *httpConfig)

type httpConfig struct {
	credentials    Credentials
	httpClient     *http.Client
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
}

// WithCredentials sets the credentials mode. Default to CredentialsSameOrigin.
func WithCredentials(credentials Credentials) HTTPOption {
	return func(config *httpConfig) {
		config.credentials = credentials
	}
}

// WithHTTPClient sets the client used to send requests. Its transport is wrapped and never
// modified. Default to http.DefaultClient.
func WithHTTPClient(httpClient *http.Client) HTTPOption {
	return func(config *httpConfig) {
		config.httpClient = httpClient
	}
}

// WithLogger sets the logger. Default to zap.L().
func WithLogger(logger *zap.Logger) HTTPOption {
	return func(config *httpConfig) {
		config.logger = logger
	}
}

// WithTracerProvider sets the provider of the tracer that records a span per operation. Default
// to the global provider.
func WithTracerProvider(provider trace.TracerProvider) HTTPOption {
	return func(config *httpConfig) {
		config.tracerProvider = provider
	}
}

// HTTPLink sends operations to a fixed endpoint with HTTP POST.
type HTTPLink struct {
	uri         *url.URL
	credentials Credentials
	client      *machinebox.Client
	logger      *zap.Logger
	tracer      trace.Tracer
}

var _ Link = (*HTTPLink)(nil)

// NewHTTPLink creates a link to the endpoint at uri. The uri must be an absolute http or https URL.
// No request is made.
func NewHTTPLink(uri string, opts ...HTTPOption) (*HTTPLink, error) {
	const op = graphql.Op("link.NewHTTPLink")

	endpoint, err := url.Parse(uri)
	if err != nil {
		return nil, graphql.NewError("invalid GraphQL endpoint", op, graphql.ErrKindConfig, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, graphql.NewError(`GraphQL endpoint "`+uri+`" must use http or https`, op,
			graphql.ErrKindConfig)
	}
	if len(endpoint.Host) == 0 {
		return nil, graphql.NewError(`GraphQL endpoint "`+uri+`" has no host`, op,
			graphql.ErrKindConfig)
	}

	config := httpConfig{
		credentials: CredentialsSameOrigin,
	}
	for _, opt := range opts {
		opt(&config)
	}

	credentials, err := ParseCredentials(string(config.credentials))
	if err != nil {
		return nil, graphql.NewError("invalid credentials mode", op, err)
	}
	config.credentials = credentials
	if config.logger == nil {
		config.logger = zap.L()
	}
	if config.tracerProvider == nil {
		config.tracerProvider = otel.GetTracerProvider()
	}

	base := http.DefaultTransport
	httpClient := &http.Client{}
	if config.httpClient != nil {
		*httpClient = *config.httpClient
		if httpClient.Transport != nil {
			base = httpClient.Transport
		}
	}

	link := &HTTPLink{
		uri:         endpoint,
		credentials: config.credentials,
		logger:      config.logger.With(zap.String("endpoint", endpoint.Redacted())),
		tracer:      config.tracerProvider.Tracer("github.com/botobag/prerender/link"),
	}
	httpClient.Transport = &transport{
		base: base,
		link: link,
	}

	link.client = machinebox.NewClient(endpoint.String(), machinebox.WithHTTPClient(httpClient))
	link.client.Log = func(s string) {
		link.logger.Debug(s)
	}

	return link, nil
}

// URI returns the endpoint.
func (link *HTTPLink) URI() string {
	return link.uri.String()
}

// Credentials returns the credentials mode.
func (link *HTTPLink) Credentials() Credentials {
	return link.credentials
}

// Execute implements Link.
func (link *HTTPLink) Execute(ctx context.Context, operation *Operation) (*Result, error) {
	const op = graphql.Op("link.HTTPLink.Execute")

	ctx, span := link.tracer.Start(ctx, "graphql."+string(operation.Type),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("graphql.operation.name", operation.Name()),
			attribute.String("graphql.operation.type", string(operation.Type)),
		))
	defer span.End()

	req := machinebox.NewRequest(operation.Query)
	for name, value := range operation.Variables {
		req.Var(name, value)
	}

	ex := &exchange{
		operationName: operation.OperationName,
	}
	ctx = context.WithValue(ctx, exchangeKey{}, ex)

	var data map[string]interface{}
	err := link.client.Run(ctx, req, &data)
	if err == nil {
		span.SetAttributes(attribute.Int("http.response.status_code", ex.status))
		return &Result{Data: data}, nil
	}

	// machinebox reports only the first GraphQL error; decode the captured body for all of them.
	if ex.err == nil && ex.status != 0 {
		var response struct {
			Data   map[string]interface{} `json:"data"`
			Errors graphql.Errors         `json:"errors"`
		}
		if json.Unmarshal(ex.body, &response) == nil && response.Errors.HaveOccurred() {
			span.SetAttributes(attribute.Int("http.response.status_code", ex.status))
			span.SetStatus(codes.Error, response.Errors.Errors[0].Message)
			link.logger.Debug("operation returned errors",
				zap.String("operation", operation.Name()),
				zap.Int("errors", len(response.Errors.Errors)))
			return &Result{
				Data:   response.Data,
				Errors: response.Errors,
			}, nil
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if ex.err != nil {
		err = ex.err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	message := "failed to execute operation " + operation.Name()
	if ex.status != 0 {
		message += ": server responded with " + http.StatusText(ex.status)
	}
	return nil, graphql.NewError(message, op, graphql.ErrKindTransport, err)
}

// exchange records what happened to a request on the wire. It is passed to transport via the
// request context.
type exchange struct {
	operationName string
	status        int
	body          []byte
	err           error
}

type exchangeKey struct{}

// transport forwards cookies of the page request, injects trace context and records the response
// into the exchange of the request.
type transport struct {
	base http.RoundTripper
	link *HTTPLink
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)

	r = r.Clone(ctx)
	r.Header.Del("Cookie")
	if page := pageRequestFrom(ctx); t.link.credentials.shouldSendCookies(t.link.uri, page) {
		for _, cookie := range page.Cookies() {
			r.AddCookie(cookie)
		}
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))

	if ex != nil && len(ex.operationName) > 0 && r.Body != nil {
		if err := setOperationName(r, ex.operationName); err != nil {
			ex.err = err
			return nil, err
		}
	}

	resp, err := t.base.RoundTrip(r)
	if err != nil {
		if ex != nil {
			ex.err = err
		}
		return nil, err
	}
	if ex == nil {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	resp.Body.Close()
	if err != nil {
		ex.err = err
		return nil, err
	}
	ex.status = resp.StatusCode
	ex.body = body
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// setOperationName adds "operationName" to the JSON body of r.
func setOperationName(r *http.Request, operationName string) error {
	body, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return err
	}

	var fields map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return err
	}
	name, err := json.Marshal(operationName)
	if err != nil {
		return err
	}
	fields["operationName"] = name

	body, err = json.Marshal(fields)
	if err != nil {
		return err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	r.ContentLength = int64(len(body))
	return nil
}
