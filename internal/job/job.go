// Package job runs one configured bulk update: it loads the session, feeds the
// table's records through an AsyncPool applying the configured transforms, and
// writes the results to the configured sink.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ocyss/asyncpool/internal/algorithms"
	"github.com/ocyss/asyncpool/internal/config"
	"github.com/ocyss/asyncpool/pool"
	"github.com/ocyss/asyncpool/producer"
	"github.com/ocyss/asyncpool/progress"
	"github.com/ocyss/asyncpool/records"
	"github.com/ocyss/asyncpool/session"
	"github.com/ocyss/asyncpool/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const progressLogEvery = 1000

// Report is the outcome of one run.
type Report struct {
	Name  string
	Mode  string
	Table string
	View  string

	// Produced is the number of records handed to the pool.
	Produced int
	Ledger   *pool.Ledger[records.Record]
	// FlushErr is set when the sink rejected a batch.
	FlushErr *pool.FlushError
	Duration time.Duration

	// FailureView is the view created for the failed records, if any.
	FailureView *records.ViewMeta
}

// OK reports whether every record was processed and written.
func (r *Report) OK() bool {
	return r.FlushErr == nil && r.Ledger != nil && r.Ledger.OK()
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Defaults to the global zerolog logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithProgress sets the progress reporter. Defaults to a reporter that logs
// every 1000 completed records.
func WithProgress(p progress.Reporter) Option {
	return func(r *Runner) {
		r.progress = p
	}
}

// WithOutput sets where the stdout sink writes. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithRedis supplies the client used by the redis sink instead of dialing
// the configured address.
func WithRedis(client redis.Cmdable) Option {
	return func(r *Runner) {
		r.redis = client
	}
}

// WithHTTPClient sets the HTTP client of the record store client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Runner) {
		r.httpClient = c
	}
}

// Runner executes a job configuration.
type Runner struct {
	cfg        *config.Config
	logger     zerolog.Logger
	progress   progress.Reporter
	out        io.Writer
	redis      redis.Cmdable
	httpClient *http.Client
}

// New validates cfg and returns a runner for it.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("job: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("job: invalid config: %w", err)
	}

	r := &Runner{
		cfg:    cfg,
		logger: log.Logger,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = r.logger.With().Str("job", cfg.Job.Name).Logger()
	if r.progress == nil {
		r.progress = progress.NewLogged(progressLogEvery, &r.logger)
	}
	return r, nil
}

// Run executes the job. Record failures do not make Run fail; they are in
// the report's ledger. A rejected batch returns the report together with the
// *pool.FlushError. Setup errors return a nil report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	cfg := r.cfg

	client, err := records.New(records.Config{
		BaseURL:    cfg.API.BaseURL,
		Token:      cfg.API.Token,
		Timeout:    cfg.API.Timeout,
		HTTPClient: r.httpClient,
		Logger:     &r.logger,
	})
	if err != nil {
		return nil, err
	}

	sess := session.New(client, session.WithContext(ctx), session.WithLogger(r.logger))
	defer sess.Close()

	if err := r.selectTarget(ctx, sess); err != nil {
		return nil, err
	}
	table := client.Table(sess.TableID())

	tr, err := Compile(cfg.Job.Transforms, sess)
	if err != nil {
		return nil, fmt.Errorf("compile transforms: %w", err)
	}

	sinkFn, closeSink, err := r.sink(table)
	if err != nil {
		return nil, err
	}
	defer closeSink()

	p, err := pool.New(r.task(tr), cfg.Job.Concurrency, r.poolOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	if err := p.ResultHooks(r.retrying(sinkFn), cfg.Sink.BatchSize); err != nil {
		return nil, err
	}

	r.logger.Info().
		Str("mode", cfg.Job.Mode).
		Str("table", sess.TableID()).
		Str("view", sess.ViewID()).
		Str("sink", cfg.Sink.Type).
		Int("concurrency", cfg.Job.Concurrency).
		Msg("Job started")

	produced, produceErr := r.produce(ctx, table, sess.ViewID(), p)

	// Drain whatever was submitted even when producing stopped early.
	ledger, allErr := p.All(context.WithoutCancel(ctx))

	report := &Report{
		Name:     cfg.Job.Name,
		Mode:     cfg.Job.Mode,
		Table:    sess.TableID(),
		View:     sess.ViewID(),
		Produced: produced,
		Ledger:   ledger,
	}

	var flushErr *pool.FlushError
	if errors.As(allErr, &flushErr) {
		report.FlushErr = flushErr
	} else if allErr != nil {
		return nil, allErr
	}

	if cfg.Job.FailureView && ledger.Failed() > 0 {
		report.FailureView = r.failureView(ctx, sess, table, ledger)
	}
	report.Duration = time.Since(start)

	logEvent := r.logger.Info()
	if !report.OK() {
		logEvent = r.logger.Warn()
	}
	logEvent.
		Int("produced", produced).
		Int("failed", ledger.Failed()).
		Int("flushed", ledger.Flushed).
		Dur("duration", report.Duration).
		Msg("Job finished: " + ledger.Summary())

	switch {
	case flushErr != nil:
		return report, flushErr
	case produceErr != nil:
		return report, fmt.Errorf("produce records: %w", produceErr)
	}
	return report, nil
}

// selectTarget loads the session and switches to the configured table and view.
func (r *Runner) selectTarget(ctx context.Context, sess *session.Session) error {
	if err := sess.Refresh(ctx); err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if t := r.cfg.Job.Table; t != "" && t != sess.TableID() {
		if err := sess.SelectTable(ctx, t); err != nil {
			return err
		}
	}
	if v := r.cfg.Job.View; v != "" && v != sess.ViewID() {
		if err := sess.SelectView(ctx, v); err != nil {
			return err
		}
	}
	if sess.TableID() == "" {
		return session.ErrNoTable
	}
	if r.cfg.Job.Mode == config.ModeSelection && sess.ViewID() == "" {
		return session.ErrNoView
	}
	return nil
}

func (r *Runner) task(tr *Transformer) pool.TaskFunc[records.Record, records.Record] {
	return func(ctx context.Context, rec records.Record) (records.Record, error) {
		if err := ctx.Err(); err != nil {
			return records.Record{}, err
		}
		return tr.Apply(rec)
	}
}

// retrying wraps a batch writer so temporary store errors are retried with
// the configured backoff before the pool sees them. A batch that still fails
// is returned to the pool as a flush failure.
func (r *Runner) retrying(write pool.SinkFunc[records.Record]) pool.SinkFunc[records.Record] {
	retry := r.cfg.Job.Retry
	if !retry.Enabled() {
		return write
	}
	kind, _ := algorithms.ParseKind(retry.Backoff)

	attempt := pool.Retrying(func(ctx context.Context, batch []records.Record) (struct{}, error) {
		return struct{}{}, write(ctx, batch)
	}, pool.RetryPolicy{
		MaxAttempts:  retry.Attempts,
		Backoff:      kind,
		InitialDelay: retry.InitialDelay,
		MaxDelay:     retry.MaxDelay,
		JitterFactor: retry.Jitter,
		RetryIf:      records.IsTemporary,
		OnRetry: func(attempt int, err error) {
			r.logger.Warn().Err(err).Int("attempt", attempt).Msg("Retrying batch write")
		},
	})

	return func(ctx context.Context, batch []records.Record) error {
		_, err := attempt(ctx, batch)
		return err
	}
}

func (r *Runner) poolOptions(ctx context.Context) []pool.Option {
	opts := []pool.Option{
		pool.WithContext(ctx),
		pool.WithName(r.cfg.Job.Name),
		pool.WithLogger(r.logger),
		pool.WithProgress(r.progress),
	}
	if r.cfg.Job.RateLimit > 0 {
		opts = append(opts, pool.WithRateLimit(r.cfg.Job.RateLimit, r.cfg.Job.Burst))
	}
	return opts
}

// sink returns the batch writer for the configured sink type and a function
// releasing its resources.
func (r *Runner) sink(table *records.Table) (pool.SinkFunc[records.Record], func(), error) {
	noop := func() {}

	switch sc := r.cfg.Sink; sc.Type {
	case config.SinkAPI:
		return table.SetRecords, noop, nil

	case config.SinkStdout:
		return sink.NewJSONLines[records.Record](r.out).Write, noop, nil

	case config.SinkRedis:
		client, closeFn := r.redis, noop
		if client == nil {
			c := redis.NewClient(&redis.Options{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
			})
			client = c
			closeFn = func() {
				if err := c.Close(); err != nil {
					r.logger.Warn().Err(err).Msg("Closing redis client failed")
				}
			}
		}
		s := sink.NewRedis(client, sc.Redis.Key, recordID,
			sink.WithTTL(sc.Redis.TTL),
			sink.WithLogger(r.logger),
		)
		return s.Write, closeFn, nil
	}

	return nil, nil, fmt.Errorf("unknown sink type %q", r.cfg.Sink.Type)
}

func recordID(rec records.Record) string {
	return rec.ID
}

func (r *Runner) produce(ctx context.Context, table *records.Table, viewID string, p *pool.AsyncPool[records.Record, records.Record]) (int, error) {
	opts := []producer.Option{
		producer.WithPageSize(r.cfg.Job.PageSize),
		producer.WithPageTimeout(r.cfg.API.Timeout),
		producer.WithProgress(r.progress),
		producer.WithLogger(r.logger),
	}

	if r.cfg.Job.Mode == config.ModeSelection {
		ids, err := table.RecordIDs(ctx, viewID)
		if err != nil {
			return 0, fmt.Errorf("load selection: %w", err)
		}
		return producer.Selection[records.Record](ctx, table, ids, p, opts...)
	}
	return producer.Bulk[records.Record](ctx, table, p, opts...)
}

// failureView creates a view listing the failed records by their primary
// field. Errors are logged, not returned.
func (r *Runner) failureView(ctx context.Context, sess *session.Session, table *records.Table, ledger *pool.Ledger[records.Record]) *records.ViewMeta {
	primary, ok := sess.PrimaryField()
	if !ok {
		return nil
	}

	rows := make([]session.FailureRow, 0, ledger.Failed())
	for _, f := range ledger.Failures {
		rows = append(rows, session.FailureRow{FieldID: primary.ID, Value: f.Item.Fields[primary.ID]})
	}

	view, err := session.FailureView(ctx, sess, table, rows)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Creating failure view failed")
		return nil
	}
	return &view
}
