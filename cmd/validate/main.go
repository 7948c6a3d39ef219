// Command validate checks that an upstream statistics API still honours the
// contract the dashboard relies on: complete headline metrics, usable country
// codes, per-country summaries that agree with the country list, and aligned
// chronological timelines.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -base-url https://disease.sh/v3/covid-19 \
//	  -days 30 \
//	  -sample 10
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/adapter/diseasesh"
	"github.com/couchcryptid/outbreak-dashboard/internal/config"
	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/format"
	"github.com/couchcryptid/outbreak-dashboard/internal/observability"
	"github.com/couchcryptid/outbreak-dashboard/internal/ranking"
	"github.com/couchcryptid/outbreak-dashboard/internal/series"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"golang.org/x/sync/errgroup"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	mu     sync.Mutex
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	baseURL := flag.String("base-url", "https://disease.sh/v3/covid-19", "upstream API base URL")
	days := flag.Int("days", 30, "timeline length to request")
	sample := flag.Int("sample", 10, "number of top-ranked countries to cross-check")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline")
	flag.Parse()

	if *baseURL == "" || *days < 2 || *sample < 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if code := run(ctx, *baseURL, *days, *sample); code != 0 {
		os.Exit(code)
	}
}

func run(ctx context.Context, baseURL string, days, sample int) int {
	cfg := &config.Config{
		UpstreamBaseURL:    baseURL,
		UpstreamTimeout:    10 * time.Second,
		UpstreamMaxRetries: 2,
		UpstreamRateLimit:  5,
	}
	logger := sharedobs.NewLogger("warn", "text")
	client := diseasesh.NewClient(cfg, logger, observability.NewMetrics())

	fmt.Println("=== Upstream Contract Validation ===")
	fmt.Println()

	// ── Load all data sources ──
	var (
		world     domain.Summary
		countries []domain.CountryRecord
		timeline  domain.Timeline
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		world, err = client.Summary(gctx, domain.RegionWorldwide)
		return err
	})
	g.Go(func() (err error) {
		countries, err = client.Countries(gctx)
		return err
	})
	g.Go(func() (err error) {
		timeline, err = client.Historical(gctx, days)
		return err
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load upstream data: %v\n", err)
		return 1
	}

	// ── Run validation phases ──
	phases := []*phase{
		validateWorldSummary(world),
		validateCountryList(countries),
		validateCountrySummaries(ctx, client, logger, countries, sample),
		validateTimeline(timeline, days),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d countries, %d timeline days, worldwide cases %s\n",
		len(countries), lenOrZero(timeline.Cases), format.Stat(world.Metrics.Cases))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Worldwide summary ──
// The tiles need all six headline numbers.

func validateWorldSummary(s domain.Summary) *phase {
	p := &phase{name: "Phase 1: Worldwide Summary"}
	for _, m := range domain.AllMetrics {
		checkMetricPair(p, "worldwide", s.Metrics, m)
	}
	if s.Updated.IsZero() {
		p.errorf("worldwide: missing updated timestamp")
	}
	return p
}

func checkMetricPair(p *phase, who string, ms domain.Metrics, m domain.Metric) {
	total, today := ms.Total(m), ms.Today(m)
	if total == nil {
		p.errorf("%s: missing total %s", who, m)
	} else if *total < 0 {
		p.errorf("%s: negative total %s %d", who, m, *total)
	}
	if today == nil {
		p.errorf("%s: missing today %s", who, m)
	}
}

// ── Phase 2: Country list ──
// Region codes must be unique so the dropdown can address each country, and
// ranking must produce a descending permutation of the list.

func validateCountryList(countries []domain.CountryRecord) *phase {
	p := &phase{name: "Phase 2: Country List"}
	if len(countries) == 0 {
		p.errorf("country list is empty")
		return p
	}

	seen := make(map[string]string, len(countries))
	withCoords := 0
	for i, c := range countries {
		if c.Name == "" {
			p.errorf("country[%d]: empty name", i)
		}
		if c.Coordinates != nil {
			withCoords++
		}
		if c.RegionCode == "" {
			continue
		}
		if prev, dup := seen[c.RegionCode]; dup {
			p.errorf("region code %q used by both %q and %q", c.RegionCode, prev, c.Name)
		}
		seen[c.RegionCode] = c.Name
	}
	if withCoords == 0 {
		p.errorf("no country carries coordinates; the map would be empty")
	}

	ranked := ranking.Rank(countries)
	if len(ranked) != len(countries) {
		p.errorf("ranking changed length: %d -> %d", len(countries), len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if caseCount(ranked[i]) > caseCount(ranked[i-1]) {
			p.errorf("ranking out of order at %d: %q (%d) after %q (%d)",
				i, ranked[i].Name, caseCount(ranked[i]), ranked[i-1].Name, caseCount(ranked[i-1]))
		}
	}
	return p
}

func caseCount(r domain.CountryRecord) int64 {
	if r.Metrics.Cases == nil {
		return 0
	}
	return *r.Metrics.Cases
}

// ── Phase 3: Country summaries ──
// Selecting a country from the dropdown must resolve to the same country.

func validateCountrySummaries(ctx context.Context, src domain.DataSource, logger *slog.Logger, countries []domain.CountryRecord, sample int) *phase {
	p := &phase{name: "Phase 3: Country Summaries (sample)"}

	var picked []domain.CountryRecord
	for _, c := range ranking.Rank(countries) {
		if len(picked) == sample {
			break
		}
		if c.RegionCode != "" {
			picked = append(picked, c)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, c := range picked {
		g.Go(func() error {
			s, err := src.Summary(gctx, c.RegionCode)
			if err != nil {
				p.errorf("%s (%s): %v", c.Name, c.RegionCode, err)
				return nil
			}
			for _, m := range domain.AllMetrics {
				checkMetricPair(p, c.RegionCode, s.Metrics, m)
			}
			if (s.Coordinates == nil) != (c.Coordinates == nil) {
				p.errorf("%s: coordinates present in list=%t, summary=%t",
					c.RegionCode, c.Coordinates != nil, s.Coordinates != nil)
			}
			// Both snapshots come from the same upstream refresh, but a refresh may
			// land between the two requests.
			if s.Metrics.Cases != nil && c.Metrics.Cases != nil && *s.Metrics.Cases < *c.Metrics.Cases {
				p.errorf("%s: summary cases %d below list cases %d", c.RegionCode, *s.Metrics.Cases, *c.Metrics.Cases)
			}
			return nil
		})
	}
	_ = g.Wait()
	logger.Debug("country summaries checked", "count", len(picked))
	return p
}

// ── Phase 4: Timeline ──
// Every metric must cover the same dates in the same order, and the delta
// series must telescope back to the cumulative span.

func validateTimeline(tl domain.Timeline, days int) *phase {
	p := &phase{name: "Phase 4: Historical Timeline"}

	var reference []string
	for _, m := range domain.AllMetrics {
		s := tl.Series(m)
		if s == nil || s.Len() == 0 {
			p.errorf("%s: empty timeline", m)
			continue
		}
		if s.Len() > days {
			p.errorf("%s: %d entries for lastdays=%d", m, s.Len(), days)
		}

		keys := seriesKeys(s)
		if reference == nil {
			reference = keys
		} else if !slices.Equal(reference, keys) {
			p.errorf("%s: dates differ from %s timeline", m, domain.AllMetrics[0])
		}
		checkChronological(p, m, keys)

		deltas := series.BuildDeltas(s, m)
		if len(deltas.Points) != s.Len()-1 {
			p.errorf("%s: %d deltas for %d cumulative entries", m, len(deltas.Points), s.Len())
		}
		var sum int64
		for _, d := range deltas.Points {
			sum += d.Delta
		}
		if span := s.Newest().Value - s.Oldest().Value; sum != span {
			p.errorf("%s: deltas sum to %d, cumulative span is %d", m, sum, span)
		}
	}
	return p
}

func seriesKeys(s *domain.CumulativeSeries) []string {
	keys := make([]string, 0, s.Len())
	for pair := s.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// checkChronological parses upstream M/D/YY keys and reports any that go
// backwards.
func checkChronological(p *phase, m domain.Metric, keys []string) {
	var prev time.Time
	for _, k := range keys {
		t, err := time.Parse("1/2/06", k)
		if err != nil {
			p.errorf("%s: unparseable date key %q", m, k)
			return
		}
		if !prev.IsZero() && !t.After(prev) {
			p.errorf("%s: date %q does not follow %s", m, k, prev.Format("1/2/06"))
		}
		prev = t
	}
}

func lenOrZero(s *domain.CumulativeSeries) int {
	if s == nil {
		return 0
	}
	return s.Len()
}
