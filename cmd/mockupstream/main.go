// Command mockupstream serves a synthetic disease.sh v3 API for local
// development. Point the dashboard at it with
// UPSTREAM_BASE_URL=http://localhost:8090/v3/covid-19.
//
// Usage:
//
//	go run ./cmd/mockupstream -addr :8090 -seed 7 -days 365 -max-latency 800ms
//
// A non-zero -max-latency delays every response by a random amount, which
// makes out-of-order responses to quick region changes easy to reproduce.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/upstreamtest"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", ":8090", "listen address")
	seed := flag.Uint64("seed", 1, "dataset seed")
	days := flag.Int("days", 365, "number of timeline days to generate")
	maxLatency := flag.Duration("max-latency", 0, "upper bound of random per-response delay")
	flag.Parse()

	if *days < 1 {
		flag.Usage()
		return fmt.Errorf("-days must be at least 1")
	}
	if *maxLatency < 0 {
		return fmt.Errorf("-max-latency must not be negative")
	}

	ds := upstreamtest.Generate(*seed, *days)
	handler := upstreamtest.NewHandler(ds)
	if *maxLatency > 0 {
		handler = withLatency(handler, *maxLatency)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serving %d countries and %d days at http://localhost%s%s", len(ds.Countries), *days, *addr, upstreamtest.BasePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func withLatency(next http.Handler, upTo time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delay := rand.N(upTo)
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
		next.ServeHTTP(w, r)
	})
}
