// Package dashboard owns the view state shared by the dashboard widgets: the
// current selection, the ranked country table, and the chart series.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/outbreak-dashboard/internal/config"
	"github.com/couchcryptid/outbreak-dashboard/internal/domain"
	"github.com/couchcryptid/outbreak-dashboard/internal/observability"
	"github.com/couchcryptid/outbreak-dashboard/internal/ranking"
	"github.com/couchcryptid/outbreak-dashboard/internal/series"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

// Publisher fans committed view updates out to other processes.
type Publisher interface {
	Publish(ctx context.Context, u domain.ViewUpdate) error
}

// Options tunes the engine. Zero values fall back to the service defaults.
type Options struct {
	View            View
	HistoryDays     int
	FetchTimeout    time.Duration
	RefreshInterval time.Duration // 0 disables periodic refresh
	PublishBuffer   int
	Clock           clockwork.Clock
}

// OptionsFromConfig maps service configuration onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		View: View{
			DefaultCenter: domain.Coordinates{Lat: cfg.DefaultMapLat, Lng: cfg.DefaultMapLng},
			WorldZoom:     cfg.WorldZoom,
			RegionZoom:    cfg.RegionZoom,
		},
		HistoryDays:     cfg.HistoryDays,
		FetchTimeout:    cfg.UpstreamTimeout,
		RefreshInterval: cfg.RefreshInterval,
	}
}

// Engine serializes every state change through a single loop goroutine.
// Readers get immutable snapshots and never block on the loop.
type Engine struct {
	source    domain.DataSource
	publisher Publisher
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	cmds    chan command
	results chan any
	updates chan domain.ViewUpdate

	started atomic.Bool
	running atomic.Bool
	done    chan struct{}

	state        atomic.Pointer[domain.SelectionState]
	summaryReady atomic.Bool
	table        atomic.Pointer[domain.RankedTable]
	countries    atomic.Pointer[[]domain.CountryRecord]
	chart        atomic.Pointer[domain.DeltaSeries]

	// Owned by the loop goroutine.
	seq          uint64
	version      uint64
	updateSeq    uint64
	regionJob    *flight[domain.SelectionState]
	chartJob     *flight[domain.DeltaSeries]
	countriesJob *flight[domain.RankedTable]
	warmup       clockwork.Timer
	warmupWait   time.Duration
}

// New creates an Engine. publisher may be nil.
func New(source domain.DataSource, publisher Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 120
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.PublishBuffer <= 0 {
		opts.PublishBuffer = 64
	}

	e := &Engine{
		source:    source,
		publisher: publisher,
		opts:      opts,
		clock:     opts.Clock,
		logger:    logger,
		metrics:   metrics,
		cmds:      make(chan command),
		results:   make(chan any),
		done:      make(chan struct{}),
	}
	if publisher != nil {
		e.updates = make(chan domain.ViewUpdate, opts.PublishBuffer)
	}
	initial := InitialState(opts.View)
	e.state.Store(&initial)
	return e
}

// --- commands ---

type command interface{ isCommand() }

type selectRegionCmd struct {
	region string
	reply  chan outcome[domain.SelectionState]
}

type setMetricCmd struct {
	metric domain.Metric
	reply  chan outcome[domain.SelectionState]
}

type refreshCountriesCmd struct {
	reply chan outcome[domain.RankedTable]
}

type refreshChartCmd struct {
	reply chan outcome[domain.DeltaSeries]
}

func (selectRegionCmd) isCommand()     {}
func (setMetricCmd) isCommand()        {}
func (refreshCountriesCmd) isCommand() {}
func (refreshChartCmd) isCommand()     {}

// --- fetch results ---

type regionResult struct {
	seq     uint64
	region  string
	summary domain.Summary
	err     error
}

type countriesResult struct {
	seq     uint64
	records []domain.CountryRecord
	err     error
}

type chartResult struct {
	seq      uint64
	metric   domain.Metric
	timeline domain.Timeline
	err      error
}

type outcome[T any] struct {
	value T
	err   error
}

// flight is one in-progress upstream fetch and the callers waiting on it.
type flight[T any] struct {
	seq     uint64
	cancel  context.CancelFunc
	waiters []chan outcome[T]
}

func (f *flight[T]) wait(reply chan outcome[T]) {
	if reply != nil {
		f.waiters = append(f.waiters, reply)
	}
}

// resolve answers every waiter. Reply channels have room for one value, so
// this never blocks the loop.
func (f *flight[T]) resolve(v T, err error) {
	for _, w := range f.waiters {
		w <- outcome[T]{value: v, err: err}
	}
	f.waiters = nil
}

// --- public API ---

// SelectRegion fetches the summary for code and commits the derived selection.
// If a newer selection is requested before the fetch returns, the caller gets
// domain.ErrSuperseded and the newer region wins. On fetch failure the
// previous selection stays committed.
func (e *Engine) SelectRegion(ctx context.Context, code string) (domain.SelectionState, error) {
	region, err := domain.NormalizeRegion(code)
	if err != nil {
		return domain.SelectionState{}, err
	}
	reply := make(chan outcome[domain.SelectionState], 1)
	if err := e.send(ctx, selectRegionCmd{region: region, reply: reply}); err != nil {
		return domain.SelectionState{}, err
	}
	return await(ctx, reply)
}

// SetMetric commits a new displayed metric right away and starts fetching its
// chart series. Selecting the current metric is a no-op.
func (e *Engine) SetMetric(ctx context.Context, m domain.Metric) (domain.SelectionState, error) {
	if !m.Valid() {
		return domain.SelectionState{}, domain.ErrUnknownMetric
	}
	reply := make(chan outcome[domain.SelectionState], 1)
	if err := e.send(ctx, setMetricCmd{metric: m, reply: reply}); err != nil {
		return domain.SelectionState{}, err
	}
	return await(ctx, reply)
}

// RefreshCountries refetches the country list and re-ranks the table. A
// refresh requested while another is in flight joins it.
func (e *Engine) RefreshCountries(ctx context.Context) (domain.RankedTable, error) {
	reply := make(chan outcome[domain.RankedTable], 1)
	if err := e.send(ctx, refreshCountriesCmd{reply: reply}); err != nil {
		return domain.RankedTable{}, err
	}
	return await(ctx, reply)
}

// RefreshChart rebuilds the chart for the displayed metric, joining an
// in-flight chart fetch if there is one.
func (e *Engine) RefreshChart(ctx context.Context) (domain.DeltaSeries, error) {
	reply := make(chan outcome[domain.DeltaSeries], 1)
	if err := e.send(ctx, refreshChartCmd{reply: reply}); err != nil {
		return domain.DeltaSeries{}, err
	}
	return await(ctx, reply)
}

// State returns the committed selection.
func (e *Engine) State() domain.SelectionState {
	return *e.state.Load()
}

// Table returns the ranked country table, if one has been committed.
func (e *Engine) Table() (domain.RankedTable, bool) {
	t := e.table.Load()
	if t == nil {
		return domain.RankedTable{}, false
	}
	return *t, true
}

// Chart returns the delta series for the displayed metric, if one has been
// committed.
func (e *Engine) Chart() (domain.DeltaSeries, bool) {
	c := e.chart.Load()
	if c == nil {
		return domain.DeltaSeries{}, false
	}
	return *c, true
}

// RegionOptions returns the region dropdown entries.
func (e *Engine) RegionOptions() []domain.RegionOption {
	return RegionOptions(e.records())
}

// MapView returns center, zoom and markers taken from the same selection.
func (e *Engine) MapView() domain.MapView {
	s := e.State()
	return domain.MapView{
		Center:  s.MapCenter,
		Zoom:    s.MapZoom,
		Metric:  s.DisplayedMetric,
		Markers: Markers(e.records(), s.DisplayedMetric),
	}
}

// Running reports whether the loop is accepting commands.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// CheckReadiness returns nil once the initial summary and the country table
// have both been committed.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.running.Load() {
		return domain.ErrNotRunning
	}
	if !e.summaryReady.Load() {
		return errors.New("summary has not been loaded yet")
	}
	if e.table.Load() == nil {
		return errors.New("country table has not been loaded yet")
	}
	return nil
}

func (e *Engine) records() []domain.CountryRecord {
	if rs := e.countries.Load(); rs != nil {
		return *rs
	}
	return nil
}

func (e *Engine) send(ctx context.Context, cmd command) error {
	if !e.running.Load() {
		return domain.ErrNotRunning
	}
	select {
	case e.cmds <- cmd:
		return nil
	case <-e.done:
		return domain.ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, reply <-chan outcome[T]) (T, error) {
	select {
	case o := <-reply:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// --- loop ---

// Run loads the initial worldwide view and processes commands until ctx is
// cancelled. It may only be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("dashboard engine already started")
	}

	e.logger.Info("dashboard engine started",
		"history_days", e.opts.HistoryDays,
		"refresh_interval", e.opts.RefreshInterval,
	)
	e.metrics.EngineRunning.Set(1)
	defer e.metrics.EngineRunning.Set(0)

	var publishers sync.WaitGroup
	if e.updates != nil {
		publishers.Add(1)
		go func() {
			defer publishers.Done()
			e.publishLoop(ctx)
		}()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var tick <-chan time.Time
	if e.opts.RefreshInterval > 0 {
		ticker := e.clock.NewTicker(e.opts.RefreshInterval)
		defer ticker.Stop()
		tick = ticker.Chan()
	}

	e.running.Store(true)
	e.startRegion(loopCtx, domain.RegionWorldwide, nil)
	e.startCountries(loopCtx, nil)
	e.startChart(loopCtx, nil)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("dashboard engine stopping", "reason", ctx.Err())
			e.stop()
			if e.updates != nil {
				close(e.updates)
			}
			publishers.Wait()
			return nil
		case cmd := <-e.cmds:
			e.handle(loopCtx, cmd)
		case res := <-e.results:
			e.apply(res)
		case <-tick:
			e.refresh(loopCtx)
		case <-e.warmupChan():
			e.warmUp(loopCtx)
		}
	}
}

func (e *Engine) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case selectRegionCmd:
		e.startRegion(ctx, c.region, c.reply)
	case setMetricCmd:
		e.setMetric(ctx, c)
	case refreshCountriesCmd:
		e.startCountries(ctx, c.reply)
	case refreshChartCmd:
		if e.chartJob != nil {
			e.chartJob.wait(c.reply)
			return
		}
		e.startChart(ctx, c.reply)
	}
}

func (e *Engine) apply(res any) {
	switch r := res.(type) {
	case regionResult:
		e.onRegion(r)
	case countriesResult:
		e.onCountries(r)
	case chartResult:
		e.onChart(r)
	}
}

// stop marks the engine as stopped and answers every waiter.
func (e *Engine) stop() {
	e.running.Store(false)
	close(e.done)
	if f := e.regionJob; f != nil {
		f.cancel()
		f.resolve(domain.SelectionState{}, domain.ErrNotRunning)
	}
	if f := e.countriesJob; f != nil {
		f.cancel()
		f.resolve(domain.RankedTable{}, domain.ErrNotRunning)
	}
	if f := e.chartJob; f != nil {
		f.cancel()
		f.resolve(domain.DeltaSeries{}, domain.ErrNotRunning)
	}
	e.regionJob, e.countriesJob, e.chartJob = nil, nil, nil
	if e.warmup != nil {
		e.warmup.Stop()
		e.warmup = nil
	}
}

// refresh re-fetches the country list, plus the region summary and chart
// when nothing newer is already on its way.
func (e *Engine) refresh(ctx context.Context) {
	e.logger.Debug("periodic refresh")
	e.startCountries(ctx, nil)
	if e.regionJob == nil {
		e.startRegion(ctx, e.State().RegionCode, nil)
	}
	if e.chartJob == nil {
		e.startChart(ctx, nil)
	}
}

// Initial-load retry policy. Retries stop once every view has loaded.
const (
	warmupBackoff    = time.Second
	warmupMaxBackoff = 30 * time.Second
)

func (e *Engine) loaded() bool {
	return e.summaryReady.Load() && e.table.Load() != nil && e.chart.Load() != nil
}

// scheduleWarmup arms the retry timer after a failed fetch while some view
// has never loaded.
func (e *Engine) scheduleWarmup() {
	if e.warmup != nil || e.loaded() {
		return
	}
	if e.warmupWait == 0 {
		e.warmupWait = warmupBackoff
	}
	e.logger.Info("initial load incomplete, retrying", "retry_in", e.warmupWait)
	e.warmup = e.clock.NewTimer(e.warmupWait)
	e.warmupWait = retry.NextBackoff(e.warmupWait, warmupMaxBackoff)
}

func (e *Engine) warmupChan() <-chan time.Time {
	if e.warmup == nil {
		return nil
	}
	return e.warmup.Chan()
}

// warmUp restarts whichever initial fetches have neither succeeded nor are
// already in flight.
func (e *Engine) warmUp(ctx context.Context) {
	e.warmup = nil
	if !e.summaryReady.Load() && e.regionJob == nil {
		e.startRegion(ctx, e.State().RegionCode, nil)
	}
	if e.table.Load() == nil && e.countriesJob == nil {
		e.startCountries(ctx, nil)
	}
	if e.chart.Load() == nil && e.chartJob == nil {
		e.startChart(ctx, nil)
	}
}

// post hands a fetch result to the loop, or drops it once the loop is gone.
func (e *Engine) post(res any) {
	select {
	case e.results <- res:
	case <-e.done:
	}
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// --- region ---

func (e *Engine) startRegion(ctx context.Context, region string, reply chan outcome[domain.SelectionState]) {
	if prev := e.regionJob; prev != nil {
		prev.cancel()
		prev.resolve(domain.SelectionState{}, domain.ErrSuperseded)
	}

	seq := e.nextSeq()
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	f := &flight[domain.SelectionState]{seq: seq, cancel: cancel}
	f.wait(reply)
	e.regionJob = f

	e.logger.Debug("region fetch started", "region", region, "seq", seq)
	go func() {
		s, err := e.source.Summary(fetchCtx, region)
		e.post(regionResult{seq: seq, region: region, summary: s, err: err})
	}()
}

func (e *Engine) onRegion(r regionResult) {
	f := e.regionJob
	if f == nil || f.seq != r.seq {
		e.metrics.StaleResponses.WithLabelValues(domain.UpdateSelection).Inc()
		e.logger.Debug("discarding stale region response", "region", r.region, "seq", r.seq)
		return
	}
	f.cancel()
	e.regionJob = nil

	if r.err != nil {
		e.metrics.FetchFailures.WithLabelValues(domain.UpdateSelection).Inc()
		e.logger.Warn("region fetch failed, keeping previous selection", "region", r.region, "error", r.err)
		f.resolve(domain.SelectionState{}, &domain.FetchError{Query: domain.QuerySummary, Region: r.region, Err: r.err})
		e.scheduleWarmup()
		return
	}

	next := e.commitSelection(RegionSelected(e.State(), r.region, r.summary, e.opts.View))
	e.summaryReady.Store(true)
	e.logger.Info("region selected", "region", r.region, "version", next.Version)
	f.resolve(next, nil)
}

// --- metric and chart ---

func (e *Engine) setMetric(ctx context.Context, c setMetricCmd) {
	cur := e.State()
	if cur.DisplayedMetric == c.metric {
		c.reply <- outcome[domain.SelectionState]{value: cur}
		return
	}
	next := e.commitSelection(MetricChanged(cur, c.metric))
	e.logger.Info("metric changed", "metric", c.metric, "version", next.Version)
	c.reply <- outcome[domain.SelectionState]{value: next}
	e.startChart(ctx, nil)
}

// startChart fetches the series for the displayed metric. An in-flight chart
// fetch is cancelled and its waiters move to the new one.
func (e *Engine) startChart(ctx context.Context, reply chan outcome[domain.DeltaSeries]) {
	var waiters []chan outcome[domain.DeltaSeries]
	if prev := e.chartJob; prev != nil {
		prev.cancel()
		waiters = prev.waiters
	}

	seq := e.nextSeq()
	metric := e.State().DisplayedMetric
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	f := &flight[domain.DeltaSeries]{seq: seq, cancel: cancel, waiters: waiters}
	f.wait(reply)
	e.chartJob = f

	e.logger.Debug("chart fetch started", "metric", metric, "seq", seq)
	days := e.opts.HistoryDays
	go func() {
		tl, err := e.source.Historical(fetchCtx, days)
		e.post(chartResult{seq: seq, metric: metric, timeline: tl, err: err})
	}()
}

func (e *Engine) onChart(r chartResult) {
	f := e.chartJob
	if f == nil || f.seq != r.seq {
		e.metrics.StaleResponses.WithLabelValues(domain.UpdateChart).Inc()
		e.logger.Debug("discarding stale chart response", "metric", r.metric, "seq", r.seq)
		return
	}
	f.cancel()
	e.chartJob = nil

	if r.err != nil {
		e.metrics.FetchFailures.WithLabelValues(domain.UpdateChart).Inc()
		e.logger.Warn("chart fetch failed, keeping previous series", "metric", r.metric, "error", r.err)
		f.resolve(domain.DeltaSeries{}, &domain.FetchError{Query: domain.QueryHistorical, Err: r.err})
		e.scheduleWarmup()
		return
	}

	ds := series.FromTimeline(r.timeline, r.metric)
	ds.UpdatedAt = e.clock.Now()
	e.chart.Store(&ds)
	e.metrics.StateCommits.WithLabelValues(domain.UpdateChart).Inc()
	e.enqueue(domain.ViewUpdate{Kind: domain.UpdateChart, Chart: &ds, CommittedAt: ds.UpdatedAt})
	f.resolve(ds, nil)
}

// --- countries ---

func (e *Engine) startCountries(ctx context.Context, reply chan outcome[domain.RankedTable]) {
	if f := e.countriesJob; f != nil {
		f.wait(reply)
		return
	}

	seq := e.nextSeq()
	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
	f := &flight[domain.RankedTable]{seq: seq, cancel: cancel}
	f.wait(reply)
	e.countriesJob = f

	e.logger.Debug("countries fetch started", "seq", seq)
	go func() {
		rs, err := e.source.Countries(fetchCtx)
		e.post(countriesResult{seq: seq, records: rs, err: err})
	}()
}

func (e *Engine) onCountries(r countriesResult) {
	f := e.countriesJob
	if f == nil || f.seq != r.seq {
		e.metrics.StaleResponses.WithLabelValues(domain.UpdateTable).Inc()
		return
	}
	f.cancel()
	e.countriesJob = nil

	if r.err != nil {
		e.metrics.FetchFailures.WithLabelValues(domain.UpdateTable).Inc()
		e.logger.Warn("countries fetch failed, keeping previous table", "error", r.err)
		f.resolve(domain.RankedTable{}, &domain.FetchError{Query: domain.QueryCountries, Err: r.err})
		e.scheduleWarmup()
		return
	}

	records := r.records
	table := domain.RankedTable{Countries: ranking.Rank(records), UpdatedAt: e.clock.Now()}
	e.countries.Store(&records)
	e.table.Store(&table)
	e.metrics.StateCommits.WithLabelValues(domain.UpdateTable).Inc()
	e.enqueue(domain.ViewUpdate{Kind: domain.UpdateTable, Table: &table, CommittedAt: table.UpdatedAt})
	e.logger.Debug("country table committed", "countries", len(records))
	f.resolve(table, nil)
}

// --- commit and fan-out ---

func (e *Engine) commitSelection(s domain.SelectionState) domain.SelectionState {
	e.version++
	s.Version = e.version
	s.CommittedAt = e.clock.Now()
	e.state.Store(&s)
	e.metrics.StateCommits.WithLabelValues(domain.UpdateSelection).Inc()

	committed := s
	e.enqueue(domain.ViewUpdate{Kind: domain.UpdateSelection, Selection: &committed, CommittedAt: s.CommittedAt})
	return s
}

// enqueue stamps u with the next update version and queues it for the
// publisher. A full buffer drops the update.
func (e *Engine) enqueue(u domain.ViewUpdate) {
	if e.updates == nil {
		return
	}
	e.updateSeq++
	u.Version = e.updateSeq
	select {
	case e.updates <- u:
	default:
		e.metrics.ViewUpdatesDropped.Inc()
		e.logger.Warn("view update buffer full, dropping update", "kind", u.Kind, "version", u.Version)
	}
}

// Publish retry policy. Each attempt is bounded by FetchTimeout.
const (
	publishAttempts   = 3
	publishBackoff    = 100 * time.Millisecond
	publishMaxBackoff = time.Second
)

// publishLoop drains the update buffer until it is closed. Publishing
// outlives ctx so shutdown can flush what is left.
func (e *Engine) publishLoop(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for u := range e.updates {
		if err := e.publish(base, u); err != nil {
			e.metrics.PublishErrors.Inc()
			e.logger.Error("publish view update failed", "kind", u.Kind, "version", u.Version, "error", err)
			continue
		}
		e.metrics.ViewUpdatesPublished.Inc()
	}
}

func (e *Engine) publish(ctx context.Context, u domain.ViewUpdate) error {
	wait := publishBackoff
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.opts.FetchTimeout)
		err := e.publisher.Publish(attemptCtx, u)
		cancel()
		if err == nil || attempt == publishAttempts {
			return err
		}
		e.logger.Debug("publish failed, retrying", "kind", u.Kind, "attempt", attempt, "error", err)
		retry.SleepWithContext(ctx, wait)
		wait = retry.NextBackoff(wait, publishMaxBackoff)
	}
}
