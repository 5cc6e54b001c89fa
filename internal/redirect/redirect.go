// Package redirect is a tiny front end that answers every request with a 302
// to the same path and query on a fixed upstream.
package redirect

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Handler redirects to upstream, which must be an absolute http(s) URL. A
// path prefix on upstream is kept in front of the request path.
func Handler(upstream string) (http.Handler, error) {
	u, err := url.Parse(strings.TrimSpace(upstream))
	if err != nil {
		return nil, fmt.Errorf("redirect: parse upstream: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("redirect: upstream scheme must be http or https")
	}
	if u.Host == "" {
		return nil, fmt.Errorf("redirect: upstream host is required")
	}
	base := strings.TrimRight(u.Path, "/")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := url.URL{
			Scheme:   u.Scheme,
			Host:     u.Host,
			Path:     base + r.URL.Path,
			RawQuery: r.URL.RawQuery,
		}
		if target.Path == "" {
			target.Path = "/"
		}
		http.Redirect(w, r, target.String(), http.StatusFound)
	}), nil
}

func Serve(ctx context.Context, listenAddr, upstream string) error {
	h, err := Handler(upstream)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
