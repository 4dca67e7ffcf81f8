// Package poller drives resolution of unsettled transfers on a fixed interval.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/chainsafe/bridge-tracker/internal/metrics"
	"github.com/chainsafe/bridge-tracker/pkg/config"
	"github.com/chainsafe/bridge-tracker/pkg/resolver"
	"github.com/chainsafe/bridge-tracker/pkg/transfer"
	"github.com/chainsafe/bridge-tracker/pkg/transferstore"
)

// Store is the transfer store as seen by the poller
type Store interface {
	Snapshot() []transfer.Transfer
	Dispatch(ctx context.Context, actions ...transferstore.Action) ([]transferstore.Note, error)
}

// Resolver resolves the cross-chain message of a deposit and proposes the result to the store
type Resolver interface {
	Resolve(ctx context.Context, t transfer.Transfer) (transfer.CrossChainMessageUpdate, error)
}

// SubmissionChecker reports how a pending transfer was mined
type SubmissionChecker interface {
	Check(ctx context.Context, t transfer.Transfer) ([]transferstore.Action, error)
}

type retryState struct {
	failures int
	next     time.Time
	backoff  *backoff.ExponentialBackOff
}

// Poller periodically resolves every transfer that has not settled yet
type Poller struct {
	store    Store
	resolver Resolver
	checker  SubmissionChecker
	cfg      config.PollingConfig
	logger   *zap.Logger
	now      func() time.Time

	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight map[string]struct{}
	retries  map[string]*retryState

	tasks    sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new Poller
func New(store Store, res Resolver, checker SubmissionChecker, cfg config.PollingConfig, logger *zap.Logger) *Poller {
	return &Poller{
		store:    store,
		resolver: res,
		checker:  checker,
		cfg:      cfg,
		logger:   logger.Named("poller"),
		now:      time.Now,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		inFlight: make(map[string]struct{}),
		retries:  make(map[string]*retryState),
		stopCh:   make(chan struct{}),
	}
}

// Start runs Tick every interval until Stop is called or ctx is done
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		p.logger.Info("Started polling", zap.Duration("interval", p.cfg.Interval))
		p.Tick(ctx)

		for {
			select {
			case <-ticker.C:
				p.Tick(ctx)
			case <-p.stopCh:
				p.logger.Info("Stopping polling")
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the loop and waits for in-flight work
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.tasks.Wait()
}

// Wait blocks until all work launched by previous ticks has finished
func (p *Poller) Wait() {
	p.tasks.Wait()
}

// Tick schedules one round of work without waiting for it. Transfers already
// in flight or still backing off after a failure are skipped.
func (p *Poller) Tick(ctx context.Context) {
	metrics.PollTicks.Inc()
	now := p.now()

	var confirm []transferstore.Action
	due := make(map[string]struct{})
	for _, t := range p.store.Snapshot() {
		switch {
		case t.Status == transfer.StatusPending:
			due[t.ID] = struct{}{}
			p.launch(ctx, t, now, p.check)
		case p.needsResolution(t):
			due[t.ID] = struct{}{}
			p.launch(ctx, t, now, p.resolve)
		case p.confirmable(t, now):
			confirm = append(confirm, transferstore.SetStatus{ID: t.ID, Status: transfer.StatusConfirmed})
		}
	}
	p.prune(due)

	if len(confirm) > 0 {
		if _, err := p.store.Dispatch(ctx, confirm...); err != nil {
			p.logger.Warn("Failed to persist confirmed withdrawals", zap.Error(err))
		}
		p.logger.Info("Withdrawals confirmed", zap.Int("count", len(confirm)))
	}
}

func (p *Poller) needsResolution(t transfer.Transfer) bool {
	return t.IsDeposit() &&
		t.CrossChainMessage != nil &&
		t.CrossChainMessage.SourceMessageID != "" &&
		!t.CrossChainMessage.IsFetching &&
		!t.IsLifecycleTerminal()
}

// confirmable reports whether a withdrawal's challenge period has elapsed
func (p *Poller) confirmable(t transfer.Transfer, now time.Time) bool {
	return t.Direction == transfer.DirectionWithdrawal &&
		t.Status == transfer.StatusSuccess &&
		t.TimestampResolved != nil &&
		!now.Before(t.TimestampResolved.Add(p.cfg.ChallengePeriod))
}

func (p *Poller) launch(ctx context.Context, t transfer.Transfer, now time.Time, work func(context.Context, transfer.Transfer) error) {
	if !p.acquire(t.ID, now) {
		return
	}

	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		defer p.release(t.ID)

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		err := work(ctx, t)
		p.record(t.ID, err)
	}()
}

func (p *Poller) check(ctx context.Context, t transfer.Transfer) error {
	actions, err := p.checker.Check(ctx, t)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		return nil
	}
	if _, err := p.store.Dispatch(ctx, actions...); err != nil {
		p.logger.Warn("Failed to persist submission outcome", zap.String("id", t.ID), zap.Error(err))
	}
	return nil
}

func (p *Poller) resolve(ctx context.Context, t transfer.Transfer) error {
	_, err := p.resolver.Resolve(ctx, t)
	if err != nil && !resolver.IsRetryable(err) {
		p.logger.Debug("Transfer is not resolvable", zap.String("id", t.ID), zap.Error(err))
	}
	return err
}

// acquire marks id in flight unless it already is or its backoff has not expired
func (p *Poller) acquire(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, busy := p.inFlight[id]; busy {
		return false
	}
	if r, ok := p.retries[id]; ok && now.Before(r.next) {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

// prune drops the retry state of transfers that were removed or no longer need polling
func (p *Poller) prune(due map[string]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.retries {
		if _, ok := due[id]; !ok {
			delete(p.retries, id)
		}
	}
}

func (p *Poller) release(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

// record updates the retry bookkeeping of id. Success clears it.
func (p *Poller) record(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		delete(p.retries, id)
		return
	}

	r, ok := p.retries[id]
	if !ok {
		b := backoff.NewExponentialBackOff()
		if p.cfg.InitialBackoff > 0 {
			b.InitialInterval = p.cfg.InitialBackoff
		}
		if p.cfg.MaxBackoff > 0 {
			b.MaxInterval = p.cfg.MaxBackoff
		}
		b.MaxElapsedTime = 0
		b.Reset()
		r = &retryState{backoff: b}
		p.retries[id] = r
	}
	r.failures++
	wait := r.backoff.NextBackOff()
	r.next = p.now().Add(wait)

	metrics.ErrorsTotal.WithLabelValues("poller", errorType(err)).Inc()
	p.logger.Warn("Transfer poll failed",
		zap.String("id", id),
		zap.Int("failures", r.failures),
		zap.Duration("retry_in", wait),
		zap.Error(err))
}

func errorType(err error) string {
	if resolver.IsRetryable(err) {
		return "remote"
	}
	return "not_resolvable"
}
