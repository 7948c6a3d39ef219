// Command viewtail follows the dashboard's view-update topic and prints one
// line per committed update. It is the reference out-of-process widget.
//
// Usage:
//
//	go run ./cmd/viewtail -brokers localhost:9092 -topic dashboard-view-updates
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	kafkaadapter "github.com/couchcryptid/outbreak-dashboard/internal/adapter/kafka"
	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic := flag.String("topic", "dashboard-view-updates", "view update topic")
	group := flag.String("group", "", "consumer group (default: a fresh group per run)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *group == "" {
		*group = "viewtail-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	logger := sharedobs.NewLogger(*logLevel, "text")
	reader := kafkaadapter.NewReader(sharedcfg.ParseBrokers(*brokers), *topic, *group, logger)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	follow(ctx, reader, os.Stdout, logger)
}

// Read retry policy. The wait resets after every successful read.
const (
	readBackoff    = 100 * time.Millisecond
	readMaxBackoff = 5 * time.Second
)

type updateReader interface {
	ReadUpdate(ctx context.Context) (domain.ViewUpdate, error)
}

// follow prints updates until ctx is cancelled, backing off while reads fail.
func follow(ctx context.Context, r updateReader, out io.Writer, logger *slog.Logger) {
	wait := readBackoff
	for {
		u, err := r.ReadUpdate(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("read view update", "error", err, "retry_in", wait)
			if !retry.SleepWithContext(ctx, wait) {
				return
			}
			wait = retry.NextBackoff(wait, readMaxBackoff)
			continue
		}
		wait = readBackoff
		fmt.Fprintln(out, describe(u))
	}
}

func describe(u domain.ViewUpdate) string {
	head := fmt.Sprintf("%s #%d %s", u.Kind, u.Version, u.CommittedAt.Format(time.RFC3339))
	switch {
	case u.Selection != nil:
		s := u.Selection
		return fmt.Sprintf("%s region=%s metric=%s cases=%s center=%.4f,%.4f zoom=%d",
			head, s.RegionCode, s.DisplayedMetric, format.Stat(s.Summary.Metrics.Cases),
			s.MapCenter.Lat, s.MapCenter.Lng, s.MapZoom)
	case u.Table != nil:
		top := "-"
		if len(u.Table.Countries) > 0 {
			c := u.Table.Countries[0]
			top = fmt.Sprintf("%s (%s)", c.Name, format.Stat(c.Metrics.Cases))
		}
		return fmt.Sprintf("%s countries=%d top=%s", head, len(u.Table.Countries), top)
	case u.Chart != nil:
		last := "-"
		if n := len(u.Chart.Points); n > 0 {
			p := u.Chart.Points[n-1]
			last = p.Date + " " + format.Signed(float64(p.Delta))
		}
		return fmt.Sprintf("%s metric=%s points=%d last=%s", head, u.Chart.Metric, len(u.Chart.Points), last)
	}
	return head
}
