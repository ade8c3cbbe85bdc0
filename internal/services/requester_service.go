package services

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/transitlab/sirihub/internal/metrics"
	"github.com/transitlab/sirihub/internal/tracing"
	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/google/uuid"
)

// ErrTransport marks connect-level and timeout failures against a provider.
// They are transient by definition: the caller leaves state unchanged and the
// next trigger tick retries.
var ErrTransport = errors.New("provider transport failure")

// Requester is the per-mode protocol adapter: it issues outbound requests to
// one provider endpoint and funnels every response body back through the
// dispatcher.
type Requester interface {
	Start(ctx context.Context, sub *domain.Subscription) error
	Cancel(ctx context.Context, sub *domain.Subscription) error
	CheckStatus(ctx context.Context, sub *domain.Subscription) error
	Pull(ctx context.Context, sub *domain.Subscription) error
}

type httpRequester struct {
	manager    SubscriptionManager
	dispatcher Dispatcher
	inboundURL string
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	pulled map[string]bool // full->incremental latch, one-way, per process
}

func NewRequester(manager SubscriptionManager, dispatcher Dispatcher, inboundURL string, logger *slog.Logger) Requester {
	return &httpRequester{
		manager:    manager,
		dispatcher: dispatcher,
		inboundURL: strings.TrimRight(inboundURL, "/"),
		logger:     logger,
		now:        time.Now,
		pulled:     map[string]bool{},
	}
}

// timeoutFor bounds both connect and read: half a heartbeat period, never
// below 30 seconds.
func timeoutFor(sub *domain.Subscription) time.Duration {
	d := sub.HeartbeatInterval / 2
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func (r *httpRequester) consumerAddress(sub *domain.Subscription) string {
	if sub.Address != "" {
		return sub.Address
	}
	if r.inboundURL == "" {
		return ""
	}
	return r.inboundURL + "/siri/" + sub.SubscriptionID
}

func (r *httpRequester) Start(ctx context.Context, sub *domain.Subscription) error {
	now := r.now()
	typed := &domain.TypedSubscriptionRequest{
		SubscriptionIdentifier: sub.SubscriptionID,
		SubscriberRef:          sub.RequestorRef,
		InitialTerminationTime: now.Add(sub.DurationOfSubscription),
		PreviewInterval:        domain.Duration(sub.PreviewInterval),
		UpdateInterval:         domain.Duration(sub.UpdateInterval),
	}
	if sub.IncrementalUpdates {
		inc := true
		typed.IncrementalUpdates = &inc
	}

	req := &domain.SubscriptionRequest{
		RequestTimestamp:  now,
		RequestorRef:      sub.RequestorRef,
		MessageIdentifier: uuid.NewString(),
		ConsumerAddress:   r.consumerAddress(sub),
		HeartbeatInterval: domain.Duration(sub.HeartbeatInterval),
	}
	switch sub.DataType {
	case domain.SituationExchange:
		req.SituationExchangeSubscription = typed
	case domain.VehicleMonitoring:
		req.VehicleMonitoringSubscription = typed
	case domain.EstimatedTimetable:
		req.EstimatedTimetableSubscription = typed
	case domain.ProductionTimetable:
		req.ProductionTimetableSubscription = typed
	default:
		return fmt.Errorf("subscription %s: unsupported data type %q", sub.SubscriptionID, sub.DataType)
	}

	body, err := r.post(ctx, sub, sub.URL(domain.ReqSubscribe), &domain.Siri{Version: sub.Version, SubscriptionRequest: req})
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("start", "failure").Inc()
		return err
	}
	metrics.ProviderRequestsTotal.WithLabelValues("start", "success").Inc()

	// Some providers answer 200 with an empty body and push the confirmation
	// separately; an empty success is itself the confirmation.
	if len(bytes.TrimSpace(body)) == 0 {
		_, err := r.manager.ActivatePending(ctx, sub.SubscriptionID)
		return err
	}
	return r.handleBody(ctx, sub, body)
}

func (r *httpRequester) Cancel(ctx context.Context, sub *domain.Subscription) error {
	req := &domain.TerminateSubscriptionRequest{
		RequestTimestamp:  r.now(),
		RequestorRef:      sub.RequestorRef,
		MessageIdentifier: uuid.NewString(),
		SubscriptionRefs:  []string{sub.SubscriptionID},
	}
	body, err := r.post(ctx, sub, sub.URL(domain.ReqDeleteSubscription), &domain.Siri{Version: sub.Version, TerminateSubscriptionRequest: req})
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("cancel", "failure").Inc()
		return err
	}
	metrics.ProviderRequestsTotal.WithLabelValues("cancel", "success").Inc()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return r.handleBody(ctx, sub, body)
}

func (r *httpRequester) CheckStatus(ctx context.Context, sub *domain.Subscription) error {
	url := sub.URL(domain.ReqCheckStatus)
	if url == "" {
		return nil
	}
	req := &domain.CheckStatusRequest{
		RequestTimestamp:  r.now(),
		RequestorRef:      sub.RequestorRef,
		MessageIdentifier: uuid.NewString(),
	}
	body, err := r.post(ctx, sub, url, &domain.Siri{Version: sub.Version, CheckStatusRequest: req})
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("check_status", "failure").Inc()
		return err
	}
	metrics.ProviderRequestsTotal.WithLabelValues("check_status", "success").Inc()
	if len(bytes.TrimSpace(body)) == 0 {
		// An empty 2xx still proves the provider is alive.
		return r.manager.Touch(ctx, sub.SubscriptionID)
	}
	return r.handleBody(ctx, sub, body)
}

func (r *httpRequester) Pull(ctx context.Context, sub *domain.Subscription) error {
	rt := domain.DataRequestType(sub.DataType)
	url := sub.URL(rt)
	if url == "" {
		return fmt.Errorf("subscription %s: no %s url", sub.SubscriptionID, rt)
	}

	req := &domain.ServiceRequest{
		RequestTimestamp:  r.now(),
		RequestorRef:      sub.RequestorRef,
		MessageIdentifier: uuid.NewString(),
	}
	switch sub.DataType {
	case domain.SituationExchange:
		req.SituationExchangeRequests = []domain.SituationExchangeRequest{{PreviewInterval: domain.Duration(sub.PreviewInterval)}}
	case domain.VehicleMonitoring:
		req.VehicleMonitoringRequests = []domain.VehicleMonitoringRequest{{}}
	case domain.EstimatedTimetable:
		req.EstimatedTimetableRequests = []domain.EstimatedTimetableRequest{{PreviewInterval: domain.Duration(sub.PreviewInterval)}}
	case domain.ProductionTimetable:
		req.ProductionTimetableRequests = []domain.ProductionTimetableRequest{{}}
	default:
		return fmt.Errorf("subscription %s: unsupported data type %q", sub.SubscriptionID, sub.DataType)
	}

	// FETCHED_DELIVERY's first pull asks for everything; later pulls only
	// for changes, and the latch never resets within a process lifetime.
	// Plain REQUEST_RESPONSE polls are one-shot full requests every time.
	latching := sub.Mode == domain.ModeFetchedDelivery
	if latching {
		r.mu.Lock()
		if r.pulled[sub.SubscriptionID] {
			inc := true
			req.IncrementalUpdates = &inc
		}
		r.mu.Unlock()
	}

	body, err := r.post(ctx, sub, url, &domain.Siri{Version: sub.Version, ServiceRequest: req})
	if err != nil {
		metrics.ProviderRequestsTotal.WithLabelValues("pull", "failure").Inc()
		return err
	}
	metrics.ProviderRequestsTotal.WithLabelValues("pull", "success").Inc()

	if latching {
		r.mu.Lock()
		r.pulled[sub.SubscriptionID] = true
		r.mu.Unlock()
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return r.handleBody(ctx, sub, body)
}

func (r *httpRequester) post(ctx context.Context, sub *domain.Subscription, url string, env *domain.Siri) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("subscription %s: no endpoint url", sub.SubscriptionID)
	}
	payload, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	timeout := timeoutFor(sub)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	contentType := sub.ContentType
	if contentType == "" {
		contentType = "text/xml"
	}
	req.Header.Set("Content-Type", contentType)
	tracing.InjectHeaders(reqCtx, req.Header)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		r.logger.Debug("provider unreachable", "subscriptionId", sub.SubscriptionID, "url", url, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("subscription %s: provider returned %d", sub.SubscriptionID, resp.StatusCode)
	}
	return body, nil
}

func (r *httpRequester) handleBody(ctx context.Context, sub *domain.Subscription, body []byte) error {
	var env domain.Siri
	if err := xml.Unmarshal(body, &env); err != nil {
		// A malformed body drops the message; subscription state is
		// untouched and the next tick proceeds normally.
		r.logger.Warn("dropping unparseable provider response", "subscriptionId", sub.SubscriptionID, "err", err)
		return nil
	}
	return r.dispatcher.Process(ctx, sub.SubscriptionID, &env)
}
