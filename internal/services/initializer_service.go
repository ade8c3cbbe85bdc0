package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/transitlab/sirihub/internal/repository"
	"github.com/transitlab/sirihub/internal/transformer"
	"github.com/transitlab/sirihub/pkg/domain"
)

// InitializerService reconciles the configured subscription set against the
// shared record store at boot. Any configuration error aborts startup before
// a single trigger loop is wired.
type InitializerService interface {
	// Reconcile validates the configured set, replaces stored records whose
	// identity-relevant configuration drifted, drops stored records no longer
	// configured, and returns the resolved value-adapter chain per
	// subscription id.
	Reconcile(ctx context.Context, configured []*domain.Subscription) (map[string]*transformer.Chain, error)
}

type initializerService struct {
	subs     repository.SubscriptionRepository
	activity repository.ActivityRepository
	registry *transformer.Registry
	logger   *slog.Logger
}

func NewInitializerService(subs repository.SubscriptionRepository, activity repository.ActivityRepository, registry *transformer.Registry, logger *slog.Logger) InitializerService {
	return &initializerService{subs: subs, activity: activity, registry: registry, logger: logger}
}

func (s *initializerService) Reconcile(ctx context.Context, configured []*domain.Subscription) (map[string]*transformer.Chain, error) {
	seenSubID := map[string]bool{}
	seenInternal := map[string]bool{}
	chains := make(map[string]*transformer.Chain, len(configured))

	for _, sub := range configured {
		if seenSubID[sub.SubscriptionID] {
			return nil, fmt.Errorf("duplicate subscriptionId %q in configuration", sub.SubscriptionID)
		}
		seenSubID[sub.SubscriptionID] = true
		if sub.InternalID != "" {
			if seenInternal[sub.InternalID] {
				return nil, fmt.Errorf("duplicate internalId %q in configuration", sub.InternalID)
			}
			seenInternal[sub.InternalID] = true
		}

		applyFetchedDeliveryDefaults(sub)

		if err := sub.Validate(); err != nil {
			return nil, err
		}

		chain, err := s.registry.Build(sub)
		if err != nil {
			return nil, err
		}
		chains[sub.SubscriptionID] = chain
	}

	stored, err := s.subs.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored subscriptions: %w", err)
	}
	storedByID := make(map[string]*domain.Subscription, len(stored))
	for _, sub := range stored {
		storedByID[sub.SubscriptionID] = sub
	}

	for _, sub := range configured {
		existing, known := storedByID[sub.SubscriptionID]
		if known && existing.ConfigEquals(sub) {
			// Unchanged configuration keeps its stored state, including the
			// active flag another node may have flipped.
			continue
		}
		if known {
			s.logger.Info("subscription configuration changed, replacing",
				"subscriptionId", sub.SubscriptionID, "internalId", sub.InternalID)
			if err := s.activity.Remove(ctx, sub.SubscriptionID); err != nil {
				return nil, err
			}
		}
		if err := s.subs.Save(ctx, sub); err != nil {
			return nil, err
		}
	}

	// Stored records no longer configured are orphans from a previous deploy.
	// Consumer-registered records never appear in the configuration and stay.
	for id, rec := range storedByID {
		if seenSubID[id] || rec.ConsumerRegistered {
			continue
		}
		s.logger.Info("dropping subscription absent from configuration", "subscriptionId", id)
		if err := s.subs.Delete(ctx, id); err != nil {
			return nil, err
		}
		if err := s.activity.Remove(ctx, id); err != nil {
			return nil, err
		}
	}

	return chains, nil
}

// applyFetchedDeliveryDefaults fills the pull endpoint for FETCHED_DELIVERY
// subscriptions that only declare a subscribe URL: the readiness
// notification's pull phase goes to the same endpoint unless configured
// otherwise.
func applyFetchedDeliveryDefaults(sub *domain.Subscription) {
	if sub.Mode != domain.ModeFetchedDelivery {
		return
	}
	rt := domain.DataRequestType(sub.DataType)
	if rt == "" || sub.URL(rt) != "" || sub.URL(domain.ReqSubscribe) == "" {
		return
	}
	if sub.URLMap == nil {
		sub.URLMap = map[domain.RequestType]string{}
	}
	sub.URLMap[rt] = sub.URL(domain.ReqSubscribe)
}
