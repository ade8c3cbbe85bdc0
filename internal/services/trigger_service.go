package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/transitlab/sirihub/internal/health"
	"github.com/transitlab/sirihub/internal/leader"
	"github.com/transitlab/sirihub/internal/metrics"
	"github.com/transitlab/sirihub/pkg/domain"
)

// TriggerService drives the subscription lifecycle. Each subscription gets its
// own loop that evaluates, on every tick, exactly one of three mutually
// exclusive actions: start it, cancel it, or probe it with a status check.
// Every action is gated on holding the per-subscription leader lease, so in a
// cluster only one node talks to a given provider.
type TriggerService struct {
	manager   SubscriptionManager
	requester Requester
	gate      leader.Gate
	logger    *slog.Logger
	now       func() time.Time

	tick   time.Duration
	factor int

	mu    sync.Mutex
	state map[string]*subscriptionState
	wg    sync.WaitGroup
}

// subscriptionState is the process-local lifecycle memory for one
// subscription. started is deliberately not shared across nodes: after a
// leader change the new leader re-sends a subscription request, which
// providers treat as idempotent.
type subscriptionState struct {
	started         bool
	lastStatusCheck time.Time
	lastPull        time.Time
	pullCh          chan struct{}
	cancel          context.CancelFunc
}

func NewTriggerService(manager SubscriptionManager, requester Requester, gate leader.Gate, tick time.Duration, factor int, logger *slog.Logger) *TriggerService {
	if tick <= 0 {
		tick = 15 * time.Second
	}
	if factor <= 0 {
		factor = health.DefaultFactor
	}
	return &TriggerService{
		manager:   manager,
		requester: requester,
		gate:      gate,
		logger:    logger,
		now:       time.Now,
		tick:      tick,
		factor:    factor,
		state:     map[string]*subscriptionState{},
	}
}

// Run seeds lifecycle state from the record store and starts one loop per
// registered subscription. It returns immediately; Stop blocks until all
// loops have drained.
func (t *TriggerService) Run(ctx context.Context) error {
	subs, err := t.manager.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		t.startLoop(ctx, sub)
	}
	return nil
}

func (t *TriggerService) startLoop(ctx context.Context, sub *domain.Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.state[sub.SubscriptionID]; ok {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	st := &subscriptionState{
		// An active record means some node already started this
		// subscription; assume it was us so a restart does not re-subscribe
		// needlessly. Health monitoring corrects a wrong guess.
		started: sub.Active,
		pullCh:  make(chan struct{}, 1),
		cancel:  cancel,
	}
	t.state[sub.SubscriptionID] = st

	t.wg.Add(1)
	go t.loop(loopCtx, sub.SubscriptionID, st)

	if sub.Mode == domain.ModeFetchedDelivery || sub.Mode == domain.ModeRequestResponse {
		t.wg.Add(1)
		go t.pullLoop(loopCtx, sub.SubscriptionID, st)
	}
}

// Stop cancels every loop and waits for in-flight ticks to finish.
func (t *TriggerService) Stop() {
	t.mu.Lock()
	for _, st := range t.state {
		st.cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}

// Started reports the process-local lifecycle flag for admin snapshots.
func (t *TriggerService) Started(subscriptionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.state[subscriptionID]
	return ok && st.started
}

// TriggerPull asks the pull loop to fetch now. Non-blocking: a pull already
// pending absorbs the signal.
func (t *TriggerService) TriggerPull(subscriptionID string) {
	t.mu.Lock()
	st, ok := t.state[subscriptionID]
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case st.pullCh <- struct{}{}:
	default:
	}
}

// loop runs ticks back to back on one goroutine, so ticks for a subscription
// never overlap; a slow provider call simply eats its own ticks.
func (t *TriggerService) loop(ctx context.Context, subscriptionID string, st *subscriptionState) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tickOne(ctx, subscriptionID, st)
		}
	}
}

func (t *TriggerService) tickOne(ctx context.Context, subscriptionID string, st *subscriptionState) {
	sub, err := t.manager.Get(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			t.logger.Info("subscription record gone, stopping lifecycle loop", "subscriptionId", subscriptionID)
			st.cancel()
			return
		}
		t.logger.Warn("lifecycle tick skipped", "subscriptionId", subscriptionID, "err", err)
		return
	}

	if !t.gate.IsLeader(ctx, subscriptionID) {
		return
	}

	isActive := sub.Active
	isHealthy := t.manager.IsHealthy(ctx, subscriptionID)
	t.reportHealth(sub, isActive, isHealthy)

	if sub.Mode == domain.ModeRequestResponse {
		t.tickRequestResponse(ctx, sub, st, isActive)
		return
	}

	t.mu.Lock()
	started := st.started
	t.mu.Unlock()

	switch {
	case isActive && !started:
		t.startSubscription(ctx, sub, st)

	case started && (!isActive || !isHealthy):
		t.cancelSubscription(ctx, sub, st, isActive, isHealthy)

	case isActive && sub.URL(domain.ReqCheckStatus) != "" &&
		t.now().Sub(st.lastStatusCheck) >= sub.HeartbeatInterval:
		st.lastStatusCheck = t.now()
		if err := t.requester.CheckStatus(ctx, sub); err != nil {
			t.logger.Warn("status check failed", "subscriptionId", sub.SubscriptionID, "err", err)
		}
	}
}

// startSubscription flips the lifecycle flag before issuing the request, so a
// concurrent tick can never double-start. A transport-level failure flips it
// back for a retry on the next tick; any other failure leaves the flag set
// and health monitoring decides when to tear down and begin again.
func (t *TriggerService) startSubscription(ctx context.Context, sub *domain.Subscription, st *subscriptionState) {
	t.mu.Lock()
	if st.started {
		t.mu.Unlock()
		return
	}
	st.started = true
	t.mu.Unlock()

	t.logger.Info("starting subscription", "subscriptionId", sub.SubscriptionID, "vendor", sub.Vendor)
	if err := t.requester.Start(ctx, sub); err != nil {
		if errors.Is(err, ErrTransport) {
			t.mu.Lock()
			st.started = false
			t.mu.Unlock()
			t.logger.Warn("provider unreachable, will retry", "subscriptionId", sub.SubscriptionID, "err", err)
			return
		}
		t.logger.Error("subscription start failed", "subscriptionId", sub.SubscriptionID, "err", err)
	}
}

func (t *TriggerService) cancelSubscription(ctx context.Context, sub *domain.Subscription, st *subscriptionState, isActive, isHealthy bool) {
	t.logger.Info("cancelling subscription",
		"subscriptionId", sub.SubscriptionID,
		"active", isActive,
		"healthy", isHealthy)

	if err := t.requester.Cancel(ctx, sub); err != nil {
		t.logger.Warn("subscription cancel failed", "subscriptionId", sub.SubscriptionID, "err", err)
	}
	t.mu.Lock()
	st.started = false
	t.mu.Unlock()

	// An unhealthy-but-wanted subscription goes straight back through the
	// start branch on the next tick.
}

// tickRequestResponse polls the provider once per heartbeat period instead of
// holding a push subscription.
func (t *TriggerService) tickRequestResponse(ctx context.Context, sub *domain.Subscription, st *subscriptionState, isActive bool) {
	if !isActive {
		t.mu.Lock()
		st.started = false
		t.mu.Unlock()
		return
	}
	t.mu.Lock()
	st.started = true
	due := t.now().Sub(st.lastPull) >= sub.HeartbeatInterval
	if due {
		st.lastPull = t.now()
	}
	t.mu.Unlock()
	if !due {
		return
	}
	if err := t.requester.Pull(ctx, sub); err != nil {
		t.logger.Warn("poll failed", "subscriptionId", sub.SubscriptionID, "err", err)
	}
}

// pullLoop serves on-demand fetches: data-ready notifications and more-data
// flags funnel in through TriggerPull.
func (t *TriggerService) pullLoop(ctx context.Context, subscriptionID string, st *subscriptionState) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-st.pullCh:
		}
		sub, err := t.manager.Get(ctx, subscriptionID)
		if err != nil {
			continue
		}
		if !sub.Active || !t.gate.IsLeader(ctx, subscriptionID) {
			continue
		}
		if err := t.requester.Pull(ctx, sub); err != nil {
			t.logger.Warn("pull failed", "subscriptionId", subscriptionID, "err", err)
		}
	}
}

func (t *TriggerService) reportHealth(sub *domain.Subscription, isActive, isHealthy bool) {
	g := metrics.SubscriptionHealthy.WithLabelValues(sub.SubscriptionID, sub.Vendor)
	if !isActive {
		g.Set(0)
		return
	}
	if isHealthy {
		g.Set(1)
	} else {
		g.Set(0)
	}
}
