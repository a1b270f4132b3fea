package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/sift/internal/authmw"
	"github.com/linnemanlabs/sift/internal/postgres"
)

const maxRequestBody = 64 << 10

// routeRegistrar is satisfied by *backlogapi.API.
type routeRegistrar interface {
	RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler)
}

type routerOptions struct {
	Healthy   http.HandlerFunc
	Ready     http.HandlerFunc
	APITokens string // comma-separated; empty disables auth
}

// newRouter builds the API listener's router. Probes stay outside bearer
// auth so load balancers can reach them.
func newRouter(api routeRegistrar, o routerOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Compress(5, "application/json"))

	// names the logger and span after the chi route pattern
	r.Use(httpmw.AnnotateHTTPRoute)

	// method label for the db query histogram
	r.Use(withHTTPMethod)

	r.Use(httpmw.AccessLog())

	// 413 above this; backlog batches are small text
	r.Use(httpmw.MaxBody(maxRequestBody))

	r.Get("/-/healthy", o.Healthy)
	r.Get("/-/ready", o.Ready)

	var apiMW []func(http.Handler) http.Handler
	if o.APITokens != "" {
		apiMW = append(apiMW, authmw.BearerToken(authmw.SplitTokens(o.APITokens)...))
	}
	api.RegisterRoutes(r, apiMW...)
	return r
}

func withHTTPMethod(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		next.ServeHTTP(w, req.WithContext(postgres.WithHTTPMethod(req.Context(), req.Method)))
	})
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready"
}

// wrapHandler applies the outer middleware chain, innermost first: request
// logger, trace headers, otel spans, metrics, client IP, request ID, panic
// recovery and finally security headers on every response.
func wrapHandler(h http.Handler, L log.Logger, metricsMW func(http.Handler) http.Handler, ipOpts httpmw.ClientIPOptions) http.Handler {
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbe(r) }),
		// AnnotateHTTPRoute renames the span to the route pattern later
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	h = metricsMW(h)
	h = httpmw.ClientIPWithOptions(ipOpts)(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	return httpmw.SecurityHeaders(h)
}
