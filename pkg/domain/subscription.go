package domain

import (
	"fmt"
	"time"
)

// SubscriptionMode determines how data flows from the provider.
type SubscriptionMode string

const (
	ModeSubscribe       SubscriptionMode = "SUBSCRIBE"
	ModeRequestResponse SubscriptionMode = "REQUEST_RESPONSE"
	ModeFetchedDelivery SubscriptionMode = "FETCHED_DELIVERY"
)

// ServiceType is the transport binding used by the provider endpoint.
type ServiceType string

const (
	ServiceSOAP ServiceType = "SOAP"
	ServiceREST ServiceType = "REST"
)

// DataType is the kind of real-time data carried by a subscription.
type DataType string

const (
	SituationExchange   DataType = "SITUATION_EXCHANGE"
	VehicleMonitoring   DataType = "VEHICLE_MONITORING"
	EstimatedTimetable  DataType = "ESTIMATED_TIMETABLE"
	ProductionTimetable DataType = "PRODUCTION_TIMETABLE"
)

// RequestType keys the per-subscription endpoint URL map.
type RequestType string

const (
	ReqSubscribe              RequestType = "SUBSCRIBE"
	ReqDeleteSubscription     RequestType = "DELETE_SUBSCRIPTION"
	ReqCheckStatus            RequestType = "CHECK_STATUS"
	ReqGetSituationExchange   RequestType = "GET_SITUATION_EXCHANGE"
	ReqGetVehicleMonitoring   RequestType = "GET_VEHICLE_MONITORING"
	ReqGetEstimatedTimetable  RequestType = "GET_ESTIMATED_TIMETABLE"
	ReqGetProductionTimetable RequestType = "GET_PRODUCTION_TIMETABLE"
)

// DataRequestType returns the service-request URL key for a data type.
func DataRequestType(dt DataType) RequestType {
	switch dt {
	case SituationExchange:
		return ReqGetSituationExchange
	case VehicleMonitoring:
		return ReqGetVehicleMonitoring
	case EstimatedTimetable:
		return ReqGetEstimatedTimetable
	case ProductionTimetable:
		return ReqGetProductionTimetable
	}
	return ""
}

// Subscription is the configured, long-lived data feed to one provider for
// one data type. SubscriptionID is globally unique among registered
// subscriptions; InternalID is the configuration identity and stays stable
// across redeploys. Functional fields are never mutated in place: a changed
// configuration produces a full replacement (see ConfigEquals).
type Subscription struct {
	InternalID     string `json:"internalId"`
	SubscriptionID string `json:"subscriptionId"`

	Vendor    string `json:"vendor"`
	DatasetID string `json:"datasetId"`
	Version   string `json:"version"`

	ServiceType ServiceType      `json:"serviceType"`
	Mode        SubscriptionMode `json:"subscriptionMode"`
	DataType    DataType         `json:"dataType"`

	HeartbeatInterval      time.Duration `json:"heartbeatInterval"`
	DurationOfSubscription time.Duration `json:"durationOfSubscription"`
	PreviewInterval        time.Duration `json:"previewInterval,omitempty"`
	UpdateInterval         time.Duration `json:"updateInterval,omitempty"`

	RequestorRef      string `json:"requestorRef"`
	OperatorNamespace string `json:"operatorNamespace,omitempty"`
	ContentType       string `json:"contentType,omitempty"`
	Address           string `json:"address,omitempty"`

	IDMappingPrefixes []string `json:"idMappingPrefixes,omitempty"`
	MappingAdapterID  string   `json:"mappingAdapterId,omitempty"`

	IncrementalUpdates bool `json:"incrementalUpdates,omitempty"`

	URLMap map[RequestType]string `json:"urlMap"`

	// ConsumerRegistered marks records created at runtime through the
	// anonymous subscribe endpoint; they have no configuration counterpart.
	ConsumerRegistered bool `json:"consumerRegistered,omitempty"`

	Active bool `json:"active"`
}

func (s *Subscription) String() string {
	return fmt.Sprintf("[vendor=%s, subscriptionId=%s, internalId=%s]", s.Vendor, s.SubscriptionID, s.InternalID)
}

// URL returns the endpoint for a request type, empty when not configured.
func (s *Subscription) URL(rt RequestType) string {
	if s.URLMap == nil {
		return ""
	}
	return s.URLMap[rt]
}

// ConfigEquals compares the identity-relevant configuration: the subset of
// fields a redeploy must re-validate. SubscriptionID and Active are
// deliberately excluded, they may differ between a stored subscription and a
// freshly loaded configuration without meaning the config changed.
func (s *Subscription) ConfigEquals(o *Subscription) bool {
	if o == nil {
		return false
	}
	if s.InternalID != o.InternalID ||
		s.DataType != o.DataType ||
		s.OperatorNamespace != o.OperatorNamespace ||
		s.Version != o.Version ||
		s.Vendor != o.Vendor ||
		s.DatasetID != o.DatasetID ||
		s.ServiceType != o.ServiceType ||
		s.DurationOfSubscription != o.DurationOfSubscription ||
		s.Mode != o.Mode ||
		s.MappingAdapterID != o.MappingAdapterID {
		return false
	}
	if len(s.IDMappingPrefixes) != len(o.IDMappingPrefixes) {
		return false
	}
	for i := range s.IDMappingPrefixes {
		if s.IDMappingPrefixes[i] != o.IDMappingPrefixes[i] {
			return false
		}
	}
	return true
}

// Validate enforces the per-mode configuration requirements. A failing
// subscription must never be wired up; callers treat the error as fatal.
func (s *Subscription) Validate() error {
	switch {
	case s.Vendor == "":
		return fmt.Errorf("subscription %s: vendor is not set", s.SubscriptionID)
	case s.DatasetID == "":
		return fmt.Errorf("subscription %s: datasetId is not set", s.SubscriptionID)
	case s.SubscriptionID == "":
		return fmt.Errorf("subscription internalId=%s: subscriptionId is not set", s.InternalID)
	case s.RequestorRef == "":
		return fmt.Errorf("subscription %s: requestorRef is not set", s.SubscriptionID)
	case s.Version == "":
		return fmt.Errorf("subscription %s: version is not set", s.SubscriptionID)
	case s.ServiceType == "":
		return fmt.Errorf("subscription %s: serviceType is not set", s.SubscriptionID)
	case s.DataType == "":
		return fmt.Errorf("subscription %s: dataType is not set", s.SubscriptionID)
	case s.HeartbeatInterval <= 0:
		return fmt.Errorf("subscription %s: heartbeatInterval must be > 0", s.SubscriptionID)
	case s.DurationOfSubscription <= 0:
		return fmt.Errorf("subscription %s: durationOfSubscription must be > 0", s.SubscriptionID)
	}

	switch s.Mode {
	case ModeRequestResponse:
		rt := DataRequestType(s.DataType)
		if s.URL(rt) == "" {
			return fmt.Errorf("subscription %s: %s-url is missing", s.SubscriptionID, rt)
		}
	case ModeSubscribe, ModeFetchedDelivery:
		if s.Mode == ModeSubscribe && (s.DataType == EstimatedTimetable || s.DataType == SituationExchange) && s.PreviewInterval <= 0 {
			return fmt.Errorf("subscription %s: previewInterval is not set", s.SubscriptionID)
		}
		if s.URL(ReqSubscribe) == "" {
			return fmt.Errorf("subscription %s: SUBSCRIBE-url is missing", s.SubscriptionID)
		}
		if s.URL(ReqDeleteSubscription) == "" {
			return fmt.Errorf("subscription %s: DELETE_SUBSCRIPTION-url is missing", s.SubscriptionID)
		}
	default:
		return fmt.Errorf("subscription %s: subscription mode not configured", s.SubscriptionID)
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (s *Subscription) Clone() *Subscription {
	cp := *s
	if s.IDMappingPrefixes != nil {
		cp.IDMappingPrefixes = append([]string(nil), s.IDMappingPrefixes...)
	}
	if s.URLMap != nil {
		cp.URLMap = make(map[RequestType]string, len(s.URLMap))
		for k, v := range s.URLMap {
			cp.URLMap[k] = v
		}
	}
	return &cp
}
