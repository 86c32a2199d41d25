package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/valyala/fasthttp"

	"cardstate/pkg/api"
	"cardstate/pkg/banner"
	"cardstate/pkg/logger"
	"cardstate/pkg/security"
	"cardstate/pkg/store"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "" && a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.cfg, verStr)
}

// setupHTTPHandlers sets up the read-side handlers on the provided mux.
func (a *App) setupHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/readyz", a.readyzHandler)
	mux.Handle("/", api.Handler())
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/metrics", promhttp.Handler())
}

// readyzHandler reports readiness once the store is open.
func (a *App) readyzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// secConfig flattens the effective security settings for the middleware.
func (a *App) secConfig() security.SecConfig {
	sec := a.cfg.Security
	return security.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		BackendKeys:    security.KeySet(sec.APIKeys.Backend),
		FrontendKeys:   security.KeySet(sec.APIKeys.Frontend),
		AdminKeys:      security.KeySet(sec.APIKeys.Admin),
	}
}

// startHTTP builds the read-side handler, starts the server in a goroutine
// and returns a channel that will carry any fatal server error.
func (a *App) startHTTP() <-chan error {
	mux := http.NewServeMux()
	a.setupHTTPHandlers(mux)

	wrapped := security.Middleware(a.secConfig())(mux)
	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: wrapped}

	errCh := make(chan error, 1)
	go func() {
		cert := a.cfg.Server.TLS.CertFile
		key := a.cfg.Server.TLS.KeyFile
		var err error
		if cert != "" && key != "" {
			err = a.srv.ListenAndServeTLS(cert, key)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()
	logger.Info("read_server_started", "addr", a.cfg.Addr())
	return errCh
}

// startMutations starts the fasthttp mutation listener. Mutations skip the
// read-side middleware chain; API key checks there would add a map lookup
// per request to a surface that only ever enqueues, so the fast listener
// is expected to sit behind the backend perimeter.
func (a *App) startMutations() <-chan error {
	a.fastSrv = &fasthttp.Server{
		Handler:          api.MutationsHandler(),
		Name:             "cardstate-mutations",
		DisableKeepalive: false,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.fastSrv.ListenAndServe(a.cfg.Server.MutationsAddr)
	}()
	logger.Info("mutation_server_started", "addr", a.cfg.Server.MutationsAddr)
	return errCh
}

func (a *App) stopHTTP() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			logger.Warn("read_server_shutdown_error", "error", err)
		}
	}
	if a.fastSrv != nil {
		if err := a.fastSrv.ShutdownWithContext(ctx); err != nil {
			logger.Warn("mutation_server_shutdown_error", "error", err)
		}
	}
}
