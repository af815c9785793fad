// Package health reports whether the data-access layer can serve requests.
//
// A Checker reports one component: the warehouse connection manager, the
// result cache and process memory all implement it. An Aggregator runs
// registered checkers concurrently under a deadline and folds their results
// into one Status. An unhealthy component makes the whole report unhealthy.
// A degraded component, such as a cache whose store circuit is open, only
// degrades it.
//
// Routes exposes the aggregate over HTTP:
//
//	r := chi.NewRouter()
//	r.Mount("/", health.Routes(agg))
//
// This serves GET /healthz (liveness), /readyz (readiness), /health (detailed
// JSON) and /health/{name} (one component).
package health
