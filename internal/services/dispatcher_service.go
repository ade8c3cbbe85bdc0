package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/transitlab/sirihub/internal/collections"
	"github.com/transitlab/sirihub/internal/metrics"
	"github.com/transitlab/sirihub/internal/transformer"
	"github.com/transitlab/sirihub/pkg/domain"

	"github.com/google/uuid"
)

// PullTrigger is how the dispatcher asks the trigger loop to run a pull for a
// subscription, without owning any scheduling itself.
type PullTrigger interface {
	TriggerPull(subscriptionID string)
}

// Dispatcher classifies inbound protocol envelopes and turns them into state
// transitions and data ingestion. The envelope is decoded exactly once before
// it gets here; exactly one payload variant is populated.
type Dispatcher interface {
	// Process handles a message arriving on an established subscription.
	Process(ctx context.Context, subscriptionID string, env *domain.Siri) error
	// ServeAnonymous handles a client request without a subscription id and
	// returns the synchronous answer.
	ServeAnonymous(ctx context.Context, env *domain.Siri, policy transformer.OutboundIDMappingPolicy) (*domain.Siri, error)
}

type DispatcherService struct {
	manager SubscriptionManager
	stores  *collections.Stores
	logger  *slog.Logger
	now     func() time.Time

	// serviceStarted is what check-status answers report so downstream
	// consumers can run their own restart detection against us.
	serviceStarted time.Time

	mu     sync.RWMutex
	chains map[string]*transformer.Chain
	puller PullTrigger
}

func NewDispatcher(manager SubscriptionManager, stores *collections.Stores, logger *slog.Logger) *DispatcherService {
	return &DispatcherService{
		manager:        manager,
		stores:         stores,
		logger:         logger,
		now:            time.Now,
		serviceStarted: time.Now(),
		chains:         map[string]*transformer.Chain{},
	}
}

// SetChains installs the per-subscription value-adapter chains resolved at
// boot.
func (d *DispatcherService) SetChains(chains map[string]*transformer.Chain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chains = chains
}

// SetPullTrigger wires the trigger loop in after construction; dispatcher and
// trigger reference each other.
func (d *DispatcherService) SetPullTrigger(p PullTrigger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.puller = p
}

func (d *DispatcherService) chain(subscriptionID string) *transformer.Chain {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.chains[subscriptionID]
}

func (d *DispatcherService) pullTrigger() PullTrigger {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.puller
}

func (d *DispatcherService) Process(ctx context.Context, subscriptionID string, env *domain.Siri) error {
	variant := env.Variant()
	metrics.MessagesReceivedTotal.WithLabelValues(variant).Inc()
	if err := d.manager.Hit(ctx, subscriptionID); err != nil {
		d.logger.Warn("hit counter update failed", "subscriptionId", subscriptionID, "err", err)
	}

	switch variant {
	case domain.VariantHeartbeat:
		return d.manager.Touch(ctx, subscriptionID)

	case domain.VariantCheckStatusResponse:
		resp := env.CheckStatusResponse
		if resp.ServiceStartedTime.IsZero() {
			return d.manager.Touch(ctx, subscriptionID)
		}
		_, err := d.manager.TouchWithServiceStart(ctx, subscriptionID, resp.ServiceStartedTime)
		return err

	case domain.VariantSubscriptionResponse:
		return d.handleSubscriptionResponse(ctx, subscriptionID, env.SubscriptionResponse)

	case domain.VariantTerminateResponse:
		// Acknowledged cancels leave the active flag alone: the trigger loop
		// cancels unhealthy-but-active subscriptions in order to re-establish
		// them on the next tick. Deactivation happens only through the admin
		// stop and the anonymous terminate request.
		d.logger.Info("provider acknowledged termination", "subscriptionId", subscriptionID)
		return nil

	case domain.VariantDataReady:
		if p := d.pullTrigger(); p != nil {
			p.TriggerPull(subscriptionID)
		}
		return nil

	case domain.VariantServiceDelivery:
		return d.handleServiceDelivery(ctx, subscriptionID, env.ServiceDelivery)
	}

	// Unsupported variants on an established subscription are logged by the
	// caller when the message was pushed; synchronous callers surface this.
	return domain.ErrServiceNotSupported
}

// An empty status list is implicit success: some vendors confirm without
// echoing per-subscription statuses.
func (d *DispatcherService) handleSubscriptionResponse(ctx context.Context, subscriptionID string, resp *domain.SubscriptionResponse) error {
	failed := false
	for _, rs := range resp.ResponseStatuses {
		if domain.OK(rs.Status) {
			continue
		}
		failed = true
		d.logger.Error("subscription request rejected",
			"subscriptionId", subscriptionID,
			"subscriptionRef", rs.SubscriptionRef,
			"detail", rs.ErrorCondition.Flatten())
	}
	if failed {
		return nil
	}
	_, err := d.manager.ActivatePending(ctx, subscriptionID)
	return err
}

func (d *DispatcherService) handleServiceDelivery(ctx context.Context, subscriptionID string, sd *domain.ServiceDelivery) error {
	sub, err := d.manager.Get(ctx, subscriptionID)
	if err != nil {
		return err
	}
	chain := d.chain(subscriptionID)

	var added int64

	for _, del := range sd.SituationExchangeDeliveries {
		if !domain.OK(del.Status) {
			d.logDeliveryError(subscriptionID, "sx", del.ErrorCondition)
			continue
		}
		records := make([]domain.SituationElement, len(del.Situations))
		for i, rec := range del.Situations {
			records[i] = transformSituation(chain, rec)
		}
		changed, err := d.stores.Situations.AddAll(ctx, sub.DatasetID, records)
		if err != nil {
			return err
		}
		added += countIngested("sx", len(changed))
	}

	for _, del := range sd.VehicleMonitoringDeliveries {
		if !domain.OK(del.Status) {
			d.logDeliveryError(subscriptionID, "vm", del.ErrorCondition)
			continue
		}
		records := make([]domain.VehicleActivity, len(del.VehicleActivities))
		for i, rec := range del.VehicleActivities {
			records[i] = transformVehicleActivity(chain, rec)
		}
		changed, err := d.stores.VehicleActivities.AddAll(ctx, sub.DatasetID, records)
		if err != nil {
			return err
		}
		added += countIngested("vm", len(changed))
	}

	for _, del := range sd.EstimatedTimetableDeliveries {
		if !domain.OK(del.Status) {
			d.logDeliveryError(subscriptionID, "et", del.ErrorCondition)
			continue
		}
		var records []domain.EstimatedVehicleJourney
		for _, frame := range del.VersionFrames {
			for _, journey := range frame.Journeys {
				if journey.RecordedAtTime.IsZero() {
					journey.RecordedAtTime = frame.RecordedAtTime
				}
				records = append(records, transformEstimatedJourney(chain, journey))
			}
		}
		changed, err := d.stores.EstimatedTimetables.AddAll(ctx, sub.DatasetID, records)
		if err != nil {
			return err
		}
		added += countIngested("et", len(changed))
	}

	for _, del := range sd.ProductionTimetableDeliveries {
		if !domain.OK(del.Status) {
			d.logDeliveryError(subscriptionID, "pt", del.ErrorCondition)
			continue
		}
		records := make([]domain.DatedTimetableFrame, len(del.DatedTimetables))
		for i, rec := range del.DatedTimetables {
			records[i] = transformTimetableFrame(chain, rec)
		}
		changed, err := d.stores.ProductionTimetables.AddAll(ctx, sub.DatasetID, records)
		if err != nil {
			return err
		}
		added += countIngested("pt", len(changed))
	}

	if added > 0 {
		if err := d.manager.DataReceived(ctx, subscriptionID, added); err != nil {
			return err
		}
	} else if err := d.manager.Touch(ctx, subscriptionID); err != nil {
		return err
	}

	// Providers with more queued data ask to be pulled again right away.
	if sd.MoreData != nil && *sd.MoreData {
		if p := d.pullTrigger(); p != nil {
			p.TriggerPull(subscriptionID)
		}
	}
	return nil
}

func (d *DispatcherService) logDeliveryError(subscriptionID, kind string, ec *domain.ErrorCondition) {
	metrics.DeliveryErrorsTotal.WithLabelValues(kind).Inc()
	d.logger.Error("delivery reported failure",
		"subscriptionId", subscriptionID,
		"kind", kind,
		"detail", ec.Flatten())
}

func countIngested(kind string, n int) int64 {
	if n > 0 {
		metrics.ObjectsIngestedTotal.WithLabelValues(kind).Add(float64(n))
	}
	return int64(n)
}

func (d *DispatcherService) ServeAnonymous(ctx context.Context, env *domain.Siri, policy transformer.OutboundIDMappingPolicy) (*domain.Siri, error) {
	variant := env.Variant()
	metrics.MessagesReceivedTotal.WithLabelValues(variant).Inc()

	switch variant {
	case domain.VariantSubscriptionRequest:
		return d.registerConsumer(ctx, env.SubscriptionRequest)

	case domain.VariantTerminateRequest:
		return d.terminateConsumer(ctx, env.TerminateSubscriptionRequest)

	case domain.VariantCheckStatusRequest:
		ok := true
		return &domain.Siri{CheckStatusResponse: &domain.CheckStatusResponse{
			ResponseTimestamp:  d.now(),
			Status:             &ok,
			ServiceStartedTime: d.serviceStarted,
		}}, nil

	case domain.VariantServiceRequest:
		return d.serveData(ctx, env.ServiceRequest, policy)
	}
	return nil, domain.ErrServiceNotSupported
}

// registerConsumer registers a push subscription on behalf of a downstream
// caller: we become the provider and their consumer address the delivery
// endpoint.
func (d *DispatcherService) registerConsumer(ctx context.Context, req *domain.SubscriptionRequest) (*domain.Siri, error) {
	typed := req.Subscription()
	dataType := req.DataType()
	ok := true
	notOK := false

	if typed == nil || dataType == "" || req.ConsumerAddress == "" {
		return &domain.Siri{SubscriptionResponse: &domain.SubscriptionResponse{
			ResponseTimestamp: d.now(),
			ResponseStatuses:  []domain.ResponseStatus{{RequestorRef: req.RequestorRef, Status: &notOK}},
		}}, nil
	}

	subscriptionID := typed.SubscriptionIdentifier
	if subscriptionID == "" {
		subscriptionID = uuid.NewString()
	}
	now := d.now()
	duration := typed.InitialTerminationTime.Sub(now)
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	heartbeat := req.HeartbeatInterval.Std()
	if heartbeat <= 0 {
		heartbeat = time.Minute
	}
	preview := typed.PreviewInterval.Std()
	if preview <= 0 {
		preview = time.Hour
	}

	sub := &domain.Subscription{
		InternalID:             subscriptionID,
		SubscriptionID:         subscriptionID,
		Vendor:                 req.RequestorRef,
		DatasetID:              req.RequestorRef,
		Version:                "2.0",
		ServiceType:            domain.ServiceREST,
		Mode:                   domain.ModeSubscribe,
		DataType:               dataType,
		HeartbeatInterval:      heartbeat,
		DurationOfSubscription: duration,
		PreviewInterval:        preview,
		RequestorRef:           req.RequestorRef,
		Address:                req.ConsumerAddress,
		URLMap: map[domain.RequestType]string{
			domain.ReqSubscribe:          req.ConsumerAddress,
			domain.ReqDeleteSubscription: req.ConsumerAddress,
		},
		ConsumerRegistered: true,
	}
	if err := d.manager.Add(ctx, sub); err != nil {
		d.logger.Warn("consumer subscription rejected", "requestorRef", req.RequestorRef, "err", err)
		return &domain.Siri{SubscriptionResponse: &domain.SubscriptionResponse{
			ResponseTimestamp: d.now(),
			ResponseStatuses:  []domain.ResponseStatus{{SubscriptionRef: subscriptionID, Status: &notOK}},
		}}, nil
	}
	if _, err := d.manager.ActivatePending(ctx, subscriptionID); err != nil {
		return nil, err
	}

	return &domain.Siri{SubscriptionResponse: &domain.SubscriptionResponse{
		ResponseTimestamp: d.now(),
		ResponseStatuses:  []domain.ResponseStatus{{SubscriptionRef: subscriptionID, Status: &ok}},
	}}, nil
}

func (d *DispatcherService) terminateConsumer(ctx context.Context, req *domain.TerminateSubscriptionRequest) (*domain.Siri, error) {
	ok := true
	statuses := make([]domain.ResponseStatus, 0, len(req.SubscriptionRefs))
	for _, ref := range req.SubscriptionRefs {
		if err := d.manager.Remove(ctx, ref, false); err != nil {
			return nil, err
		}
		statuses = append(statuses, domain.ResponseStatus{SubscriptionRef: ref, Status: &ok})
	}
	return &domain.Siri{TerminateSubscriptionResponse: &domain.TerminateSubscriptionResponse{
		ResponseTimestamp: d.now(),
		ResponseStatuses:  statuses,
	}}, nil
}

// serveData assembles the currently held records for each requested kind,
// rewritten to the id form the caller asked for.
func (d *DispatcherService) serveData(ctx context.Context, req *domain.ServiceRequest, policy transformer.OutboundIDMappingPolicy) (*domain.Siri, error) {
	chain := transformer.OutboundChain(policy, nil)
	ok := true
	now := d.now()
	sd := &domain.ServiceDelivery{ResponseTimestamp: now}

	if len(req.SituationExchangeRequests) > 0 {
		records, err := d.stores.Situations.List(ctx, "")
		if err != nil {
			return nil, err
		}
		for i, rec := range records {
			records[i] = transformSituation(chain, rec)
		}
		sd.SituationExchangeDeliveries = []domain.SituationExchangeDelivery{{
			ResponseTimestamp: now, Status: &ok, Situations: records,
		}}
	}
	if len(req.VehicleMonitoringRequests) > 0 {
		records, err := d.stores.VehicleActivities.List(ctx, "")
		if err != nil {
			return nil, err
		}
		records = filterVehicles(records, req.VehicleMonitoringRequests)
		for i, rec := range records {
			records[i] = transformVehicleActivity(chain, rec)
		}
		sd.VehicleMonitoringDeliveries = []domain.VehicleMonitoringDelivery{{
			ResponseTimestamp: now, Status: &ok, VehicleActivities: records,
		}}
	}
	if len(req.EstimatedTimetableRequests) > 0 {
		records, err := d.stores.EstimatedTimetables.List(ctx, "")
		if err != nil {
			return nil, err
		}
		for i, rec := range records {
			records[i] = transformEstimatedJourney(chain, rec)
		}
		sd.EstimatedTimetableDeliveries = []domain.EstimatedTimetableDelivery{{
			ResponseTimestamp: now, Status: &ok,
			VersionFrames: []domain.EstimatedVersionFrame{{RecordedAtTime: now, Journeys: records}},
		}}
	}
	if len(req.ProductionTimetableRequests) > 0 {
		records, err := d.stores.ProductionTimetables.List(ctx, "")
		if err != nil {
			return nil, err
		}
		for i, rec := range records {
			records[i] = transformTimetableFrame(chain, rec)
		}
		sd.ProductionTimetableDeliveries = []domain.ProductionTimetableDelivery{{
			ResponseTimestamp: now, Status: &ok, DatedTimetables: records,
		}}
	}

	if sd.SituationExchangeDeliveries == nil && sd.VehicleMonitoringDeliveries == nil &&
		sd.EstimatedTimetableDeliveries == nil && sd.ProductionTimetableDeliveries == nil {
		return nil, domain.ErrServiceNotSupported
	}
	return &domain.Siri{ServiceDelivery: sd}, nil
}

func filterVehicles(records []domain.VehicleActivity, reqs []domain.VehicleMonitoringRequest) []domain.VehicleActivity {
	var lineRef, vehicleRef string
	for _, r := range reqs {
		if r.LineRef != "" {
			lineRef = r.LineRef
		}
		if r.VehicleRef != "" {
			vehicleRef = r.VehicleRef
		}
	}
	if lineRef == "" && vehicleRef == "" {
		return records
	}
	var out []domain.VehicleActivity
	for _, rec := range records {
		if lineRef != "" && rec.LineRef != lineRef {
			continue
		}
		if vehicleRef != "" && rec.VehicleRef != vehicleRef {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func transformSituation(chain *transformer.Chain, rec domain.SituationElement) domain.SituationElement {
	rec.LineRefs = chain.ApplyAll(domain.RefLine, rec.LineRefs)
	rec.StopPointRefs = chain.ApplyAll(domain.RefStopPoint, rec.StopPointRefs)
	rec.StopPlaceRefs = chain.ApplyAll(domain.RefStopPlace, rec.StopPlaceRefs)
	return rec
}

func transformVehicleActivity(chain *transformer.Chain, rec domain.VehicleActivity) domain.VehicleActivity {
	rec.VehicleRef = chain.Apply(domain.RefVehicle, rec.VehicleRef)
	rec.LineRef = chain.Apply(domain.RefLine, rec.LineRef)
	rec.CourseOfJourneyRef = chain.Apply(domain.RefCourseOfJourney, rec.CourseOfJourneyRef)
	rec.DestinationRef = chain.Apply(domain.RefDestination, rec.DestinationRef)
	return rec
}

func transformEstimatedJourney(chain *transformer.Chain, rec domain.EstimatedVehicleJourney) domain.EstimatedVehicleJourney {
	rec.LineRef = chain.Apply(domain.RefLine, rec.LineRef)
	rec.JourneyPlaceRef = chain.Apply(domain.RefJourneyPlace, rec.JourneyPlaceRef)
	rec.DestinationRef = chain.Apply(domain.RefDestination, rec.DestinationRef)
	calls := make([]domain.EstimatedCall, len(rec.EstimatedCalls))
	for i, call := range rec.EstimatedCalls {
		call.StopPointRef = chain.Apply(domain.RefStopPoint, call.StopPointRef)
		calls[i] = call
	}
	rec.EstimatedCalls = calls
	return rec
}

func transformTimetableFrame(chain *transformer.Chain, rec domain.DatedTimetableFrame) domain.DatedTimetableFrame {
	rec.LineRef = chain.Apply(domain.RefLine, rec.LineRef)
	journeys := make([]domain.DatedVehicleJourney, len(rec.Journeys))
	for i, j := range rec.Journeys {
		j.JourneyPlaceRef = chain.Apply(domain.RefJourneyPlace, j.JourneyPlaceRef)
		j.DestinationRef = chain.Apply(domain.RefDestination, j.DestinationRef)
		journeys[i] = j
	}
	rec.Journeys = journeys
	return rec
}
