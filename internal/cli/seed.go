package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/walletprobe/internal/config"
	"github.com/wesleyorama2/walletprobe/internal/identity"
	"github.com/wesleyorama2/walletprobe/internal/transport"
	"github.com/wesleyorama2/walletprobe/internal/workload"
)

const (
	seedScope      = "wallet:read wallet:write wallet:admin"
	seedSubject    = "walletprobe-seed"
	readyPath      = "/v1/ready"
	readyPoll      = 250 * time.Millisecond
	maxReadyTries  = 3
	loggedFailures = 5
)

type seedOptions struct {
	baseURL  string
	secret   string
	audience string

	start       int64
	count       int64
	asset       string
	concurrency int

	timeout    time.Duration
	retries    int
	backoff    time.Duration
	maxBackoff time.Duration
	waitReady  time.Duration

	logLevel  string
	logFormat string
}

type seedCounts struct {
	created  atomic.Int64
	existing atomic.Int64
	failed   atomic.Int64
}

func newSeedCommand() *cobra.Command {
	opts := &seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the wallet range a run transfers between",
		Long: `Seed creates wallets start..start+count-1 so transfer runs have funded
accounts to move money between. Existing wallets (409) count as seeded,
so re-running against a populated service is safe.

  walletprobe seed --base-url http://wallet:8080 --secret dev-secret
  walletprobe seed --start 1 --count 10000 --concurrency 32

Transport errors and 5xx responses are retried with exponential backoff.
Exit status is 1 when any wallet could not be created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", config.DefaultBaseURL, "Wallet service base URL")
	f.StringVar(&opts.secret, "secret", "", "HS256 signing secret (default: $JWT_SECRET)")
	f.StringVar(&opts.audience, "audience", identity.DefaultAudience, "Token audience claim")
	f.Int64Var(&opts.start, "start", 1, "First wallet index")
	f.Int64Var(&opts.count, "count", 2500, "Number of wallets to create")
	f.StringVar(&opts.asset, "asset", config.DefaultAsset, "Wallet asset")
	f.IntVar(&opts.concurrency, "concurrency", 8, "Wallets created in parallel")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Per-request timeout")
	f.IntVar(&opts.retries, "retries", 10, "Retries per request for transport errors and 5xx")
	f.DurationVar(&opts.backoff, "backoff", 200*time.Millisecond, "Initial retry backoff, doubled per attempt")
	f.DurationVar(&opts.maxBackoff, "max-backoff", 2*time.Second, "Retry backoff cap")
	f.DurationVar(&opts.waitReady, "wait-ready", 30*time.Second, "Wait this long for "+readyPath+" before seeding (0 disables)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	return cmd
}

func (o *seedOptions) validate() error {
	switch {
	case o.start < 0:
		return &config.ValidationError{Field: "--start", Message: "must be >= 0"}
	case o.count <= 0:
		return &config.ValidationError{Field: "--count", Message: "must be > 0"}
	case o.start >= identity.MaxWalletIndex || o.count > identity.MaxWalletIndex-o.start:
		return &config.ValidationError{Field: "--count", Message: fmt.Sprintf("%d wallets from index %d exceed the wallet id space", o.count, o.start)}
	case o.concurrency < 1:
		return &config.ValidationError{Field: "--concurrency", Message: "must be >= 1"}
	case o.retries < 0:
		return &config.ValidationError{Field: "--retries", Message: "must be >= 0"}
	case o.timeout <= 0:
		return &config.ValidationError{Field: "--timeout", Message: "must be > 0"}
	case o.backoff < 0 || o.maxBackoff < o.backoff:
		return &config.ValidationError{Field: "--backoff", Message: "must be >= 0 and <= --max-backoff"}
	}
	return nil
}

func runSeed(cmd *cobra.Command, opts *seedOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
	if err != nil {
		return configError(err)
	}
	if err := opts.validate(); err != nil {
		return configError(err)
	}

	secret := opts.secret
	if secret == "" {
		secret = os.Getenv(config.DefaultSecretEnv)
	}
	tokens, err := identity.NewTokenCache(identity.TokenConfig{
		Secret:   []byte(secret),
		Subject:  seedSubject,
		Audience: opts.audience,
	})
	if err != nil {
		return configError(fmt.Errorf("%w (set --secret or $%s)", err, config.DefaultSecretEnv))
	}

	httpCfg := transport.DefaultHTTPConfig()
	httpCfg.Timeout = opts.timeout
	httpCfg.MaxIdleConnsPerHost = opts.concurrency
	httpCfg.Headers = map[string]string{"User-Agent": config.DefaultUserAgent}
	tr, err := transport.NewHTTPTransport(opts.baseURL, httpCfg)
	if err != nil {
		return configError(err)
	}
	defer tr.Close()

	s := &seeder{opts: opts, tr: tr, tokens: tokens, logger: logger}

	if opts.waitReady > 0 {
		if err := s.waitReady(ctx); err != nil {
			return &ExitError{Code: ExitThresholdFailed, Err: err}
		}
	}

	counts := s.seed(ctx)
	last := opts.start + opts.count - 1
	fmt.Fprintf(cmd.OutOrStdout(), "seeded wallet range [%d, %d] (created=%d, already_exists=%d, failed=%d)\n",
		opts.start, last, counts.created.Load(), counts.existing.Load(), counts.failed.Load())

	if err := ctx.Err(); err != nil {
		return &ExitError{Code: ExitThresholdFailed, Err: fmt.Errorf("seeding interrupted: %w", err)}
	}
	if n := counts.failed.Load(); n > 0 {
		return &ExitError{Code: ExitThresholdFailed, Err: fmt.Errorf("%d of %d wallets failed to seed", n, opts.count)}
	}
	return nil
}

type seeder struct {
	opts   *seedOptions
	tr     transport.Transport
	tokens *identity.TokenCache
	logger *slog.Logger
}

// waitReady polls the readiness endpoint until it answers 200 or the wait
// window closes.
func (s *seeder) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.waitReady)
	defer cancel()

	retries := min(max(s.opts.retries, 1), maxReadyTries)
	var last string
	for {
		res := s.send(ctx, &transport.Request{Method: http.MethodGet, Path: readyPath}, retries)
		switch {
		case res.Failed():
			last = res.Err.Error()
		case res.StatusCode == http.StatusOK:
			s.logger.Debug("service ready", slog.Duration("latency", res.Latency))
			return nil
		default:
			last = fmt.Sprintf("ready returned %d: %s", res.StatusCode, truncate(res.Body, 200))
		}

		if !sleepCtx(ctx, readyPoll) {
			return fmt.Errorf("service not ready at %s: %s", s.opts.baseURL, last)
		}
	}
}

// seed creates every wallet in the range with bounded concurrency. It
// stops scheduling new wallets once ctx is cancelled.
func (s *seeder) seed(ctx context.Context) *seedCounts {
	counts := &seedCounts{}
	g := new(errgroup.Group)
	g.SetLimit(s.opts.concurrency)

	end := s.opts.start + s.opts.count
	for i := s.opts.start; i < end && ctx.Err() == nil; i++ {
		g.Go(func() error {
			s.create(ctx, i, counts)
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("seed finished",
		slog.Int64("created", counts.created.Load()),
		slog.Int64("alreadyExists", counts.existing.Load()),
		slog.Int64("failed", counts.failed.Load()))
	return counts
}

func (s *seeder) create(ctx context.Context, index int64, counts *seedCounts) {
	fail := func(attrs ...any) {
		if counts.failed.Add(1) <= loggedFailures {
			s.logger.Warn("seed failed", append([]any{slog.Int64("index", index)}, attrs...)...)
		}
	}

	id, err := identity.WalletID(index)
	if err != nil {
		fail(slog.Any("error", err))
		return
	}
	op := workload.CreateWallet{WalletID: id, Asset: s.opts.asset, Scope: seedScope}

	token, err := s.tokens.Token(op.Scopes())
	if err != nil {
		fail(slog.Any("error", err))
		return
	}
	body, err := op.Body()
	if err != nil {
		fail(slog.Any("error", err))
		return
	}

	res := s.send(ctx, &transport.Request{
		Method:  op.Method(),
		Path:    op.Path(),
		Body:    body,
		Headers: map[string]string{"Authorization": "Bearer " + token.Raw},
	}, s.opts.retries)

	switch {
	case res.Failed():
		fail(slog.String("walletId", id.String()), slog.Any("error", res.Err))
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
		counts.created.Add(1)
	case res.StatusCode == http.StatusConflict:
		counts.existing.Add(1)
	default:
		fail(slog.String("walletId", id.String()),
			slog.Int("status", res.StatusCode),
			slog.String("body", truncate(res.Body, 200)))
	}
}

// send retries transport errors and 5xx responses up to retries times with
// capped exponential backoff. The last result is returned either way.
func (s *seeder) send(ctx context.Context, req *transport.Request, retries int) *transport.Result {
	for attempt := 0; ; attempt++ {
		res := s.tr.Send(ctx, req)
		if res == nil {
			res = &transport.Result{Err: errors.New("transport returned no result")}
		}
		if !retryable(res) || attempt >= retries {
			return res
		}

		delay := backoffDelay(attempt, s.opts.backoff, s.opts.maxBackoff)
		s.logger.Debug("retrying request",
			slog.String("path", req.Path),
			slog.Int("attempt", attempt+1),
			slog.Int("status", res.StatusCode),
			slog.Duration("delay", delay))
		if !sleepCtx(ctx, delay) {
			return res
		}
	}
}

func retryable(res *transport.Result) bool {
	return res.Failed() || res.StatusCode >= http.StatusInternalServerError
}

// backoffDelay is base doubled attempt times, capped at limit.
func backoffDelay(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
