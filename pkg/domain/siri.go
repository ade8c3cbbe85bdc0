package domain

import (
	"encoding/xml"
	"errors"
	"time"
)

// ErrServiceNotSupported is returned when an inbound envelope carries none of
// the known payload variants. It surfaces to synchronous callers; for
// asynchronous pushes it is only logged.
var ErrServiceNotSupported = errors.New("service not supported")

// RefKind tags a typed reference field so value adapters can target it.
type RefKind string

const (
	RefLine            RefKind = "LineRef"
	RefStopPoint       RefKind = "StopPointRef"
	RefStopPlace       RefKind = "StopPlaceRef"
	RefVehicle         RefKind = "VehicleRef"
	RefCourseOfJourney RefKind = "CourseOfJourneyRef"
	RefDestination     RefKind = "DestinationRef"
	RefJourneyPlace    RefKind = "JourneyPlaceRef"
)

// Siri is the protocol envelope. The payload variants are mutually exclusive:
// exactly one pointer is populated on a well-formed message. The envelope is
// decoded once at the dispatcher boundary and classified via Variant.
type Siri struct {
	XMLName xml.Name `xml:"Siri" json:"-"`
	Version string   `xml:"version,attr,omitempty" json:"version,omitempty"`

	HeartbeatNotification         *HeartbeatNotification         `xml:"HeartbeatNotification,omitempty" json:"heartbeatNotification,omitempty"`
	CheckStatusRequest            *CheckStatusRequest            `xml:"CheckStatusRequest,omitempty" json:"checkStatusRequest,omitempty"`
	CheckStatusResponse           *CheckStatusResponse           `xml:"CheckStatusResponse,omitempty" json:"checkStatusResponse,omitempty"`
	SubscriptionRequest           *SubscriptionRequest           `xml:"SubscriptionRequest,omitempty" json:"subscriptionRequest,omitempty"`
	SubscriptionResponse          *SubscriptionResponse          `xml:"SubscriptionResponse,omitempty" json:"subscriptionResponse,omitempty"`
	TerminateSubscriptionRequest  *TerminateSubscriptionRequest  `xml:"TerminateSubscriptionRequest,omitempty" json:"terminateSubscriptionRequest,omitempty"`
	TerminateSubscriptionResponse *TerminateSubscriptionResponse `xml:"TerminateSubscriptionResponse,omitempty" json:"terminateSubscriptionResponse,omitempty"`
	DataReadyNotification         *DataReadyNotification         `xml:"DataReadyNotification,omitempty" json:"dataReadyNotification,omitempty"`
	ServiceRequest                *ServiceRequest                `xml:"ServiceRequest,omitempty" json:"serviceRequest,omitempty"`
	ServiceDelivery               *ServiceDelivery               `xml:"ServiceDelivery,omitempty" json:"serviceDelivery,omitempty"`
}

// Variant names for classification and metrics labels.
const (
	VariantHeartbeat            = "heartbeat_notification"
	VariantCheckStatusRequest   = "check_status_request"
	VariantCheckStatusResponse  = "check_status_response"
	VariantSubscriptionRequest  = "subscription_request"
	VariantSubscriptionResponse = "subscription_response"
	VariantTerminateRequest     = "terminate_subscription_request"
	VariantTerminateResponse    = "terminate_subscription_response"
	VariantDataReady            = "data_ready_notification"
	VariantServiceRequest       = "service_request"
	VariantServiceDelivery      = "service_delivery"
	VariantUnknown              = "unknown"
)

// Variant returns the name of the populated payload, VariantUnknown if none.
func (s *Siri) Variant() string {
	switch {
	case s.HeartbeatNotification != nil:
		return VariantHeartbeat
	case s.CheckStatusRequest != nil:
		return VariantCheckStatusRequest
	case s.CheckStatusResponse != nil:
		return VariantCheckStatusResponse
	case s.SubscriptionRequest != nil:
		return VariantSubscriptionRequest
	case s.SubscriptionResponse != nil:
		return VariantSubscriptionResponse
	case s.TerminateSubscriptionRequest != nil:
		return VariantTerminateRequest
	case s.TerminateSubscriptionResponse != nil:
		return VariantTerminateResponse
	case s.DataReadyNotification != nil:
		return VariantDataReady
	case s.ServiceRequest != nil:
		return VariantServiceRequest
	case s.ServiceDelivery != nil:
		return VariantServiceDelivery
	}
	return VariantUnknown
}

type HeartbeatNotification struct {
	RequestTimestamp   time.Time `xml:"RequestTimestamp" json:"requestTimestamp"`
	ProducerRef        string    `xml:"ProducerRef" json:"producerRef"`
	Status             *bool     `xml:"Status" json:"status,omitempty"`
	ServiceStartedTime time.Time `xml:"ServiceStartedTime,omitempty" json:"serviceStartedTime,omitempty"`
}

type CheckStatusRequest struct {
	RequestTimestamp  time.Time `xml:"RequestTimestamp" json:"requestTimestamp"`
	RequestorRef      string    `xml:"RequestorRef" json:"requestorRef"`
	MessageIdentifier string    `xml:"MessageIdentifier" json:"messageIdentifier"`
}

type CheckStatusResponse struct {
	ResponseTimestamp  time.Time `xml:"ResponseTimestamp" json:"responseTimestamp"`
	ProducerRef        string    `xml:"ProducerRef,omitempty" json:"producerRef,omitempty"`
	Status             *bool     `xml:"Status" json:"status,omitempty"`
	ServiceStartedTime time.Time `xml:"ServiceStartedTime,omitempty" json:"serviceStartedTime,omitempty"`
}

// SubscriptionRequest asks the producer to establish a push subscription.
// Exactly one of the typed sub-requests is populated, matching the
// subscription's data type.
type SubscriptionRequest struct {
	RequestTimestamp  time.Time `xml:"RequestTimestamp" json:"requestTimestamp"`
	RequestorRef      string    `xml:"RequestorRef" json:"requestorRef"`
	MessageIdentifier string    `xml:"MessageIdentifier" json:"messageIdentifier"`
	ConsumerAddress   string    `xml:"ConsumerAddress,omitempty" json:"consumerAddress,omitempty"`

	HeartbeatInterval Duration `xml:"SubscriptionContext>HeartbeatInterval,omitempty" json:"heartbeatInterval,omitempty"`

	SituationExchangeSubscription   *TypedSubscriptionRequest `xml:"SituationExchangeSubscriptionRequest,omitempty" json:"situationExchangeSubscription,omitempty"`
	VehicleMonitoringSubscription   *TypedSubscriptionRequest `xml:"VehicleMonitoringSubscriptionRequest,omitempty" json:"vehicleMonitoringSubscription,omitempty"`
	EstimatedTimetableSubscription  *TypedSubscriptionRequest `xml:"EstimatedTimetableSubscriptionRequest,omitempty" json:"estimatedTimetableSubscription,omitempty"`
	ProductionTimetableSubscription *TypedSubscriptionRequest `xml:"ProductionTimetableSubscriptionRequest,omitempty" json:"productionTimetableSubscription,omitempty"`
}

// DataType returns which typed sub-request is populated.
func (r *SubscriptionRequest) DataType() DataType {
	switch {
	case r.SituationExchangeSubscription != nil:
		return SituationExchange
	case r.VehicleMonitoringSubscription != nil:
		return VehicleMonitoring
	case r.EstimatedTimetableSubscription != nil:
		return EstimatedTimetable
	case r.ProductionTimetableSubscription != nil:
		return ProductionTimetable
	}
	return ""
}

// Subscription returns the populated typed sub-request, nil if none.
func (r *SubscriptionRequest) Subscription() *TypedSubscriptionRequest {
	for _, t := range []*TypedSubscriptionRequest{
		r.SituationExchangeSubscription,
		r.VehicleMonitoringSubscription,
		r.EstimatedTimetableSubscription,
		r.ProductionTimetableSubscription,
	} {
		if t != nil {
			return t
		}
	}
	return nil
}

type TypedSubscriptionRequest struct {
	SubscriptionIdentifier string    `xml:"SubscriptionIdentifier" json:"subscriptionIdentifier"`
	SubscriberRef          string    `xml:"SubscriberRef,omitempty" json:"subscriberRef,omitempty"`
	InitialTerminationTime time.Time `xml:"InitialTerminationTime" json:"initialTerminationTime"`
	PreviewInterval        Duration  `xml:"PreviewInterval,omitempty" json:"previewInterval,omitempty"`
	UpdateInterval         Duration  `xml:"UpdateInterval,omitempty" json:"updateInterval,omitempty"`
	IncrementalUpdates     *bool     `xml:"IncrementalUpdates,omitempty" json:"incrementalUpdates,omitempty"`
	VehicleMonitoringRef   string    `xml:"VehicleMonitoringRef,omitempty" json:"vehicleMonitoringRef,omitempty"`
}

type SubscriptionResponse struct {
	ResponseTimestamp time.Time        `xml:"ResponseTimestamp" json:"responseTimestamp"`
	ResponderRef      string           `xml:"ResponderRef,omitempty" json:"responderRef,omitempty"`
	ResponseStatuses  []ResponseStatus `xml:"ResponseStatus" json:"responseStatuses"`
}

type TerminateSubscriptionRequest struct {
	RequestTimestamp  time.Time `xml:"RequestTimestamp" json:"requestTimestamp"`
	RequestorRef      string    `xml:"RequestorRef" json:"requestorRef"`
	MessageIdentifier string    `xml:"MessageIdentifier" json:"messageIdentifier"`
	SubscriptionRefs  []string  `xml:"SubscriptionRef" json:"subscriptionRefs"`
}

type TerminateSubscriptionResponse struct {
	ResponseTimestamp time.Time        `xml:"ResponseTimestamp" json:"responseTimestamp"`
	ResponseStatuses  []ResponseStatus `xml:"TerminationResponseStatus" json:"responseStatuses"`
}

// ResponseStatus reports the outcome for one subscription in a subscription
// or termination response. A nil Status on a subscription response is treated
// as implicit success.
type ResponseStatus struct {
	SubscriptionRef string          `xml:"SubscriptionRef,omitempty" json:"subscriptionRef,omitempty"`
	RequestorRef    string          `xml:"RequestorRef,omitempty" json:"requestorRef,omitempty"`
	Status          *bool           `xml:"Status" json:"status,omitempty"`
	ErrorCondition  *ErrorCondition `xml:"ErrorCondition,omitempty" json:"errorCondition,omitempty"`
}

type DataReadyNotification struct {
	RequestTimestamp time.Time `xml:"RequestTimestamp" json:"requestTimestamp"`
	ProducerRef      string    `xml:"ProducerRef" json:"producerRef"`
}

type ServiceRequest struct {
	RequestTimestamp time.Time `xml:"RequestTimestamp" json:"requestTimestamp"`
	RequestorRef     string    `xml:"RequestorRef" json:"requestorRef"`
	MessageIdentifier string   `xml:"MessageIdentifier,omitempty" json:"messageIdentifier,omitempty"`

	// IncrementalUpdates distinguishes a full snapshot request (absent or
	// false) from a changes-only request.
	IncrementalUpdates *bool `xml:"IncrementalUpdates,omitempty" json:"incrementalUpdates,omitempty"`

	SituationExchangeRequests   []SituationExchangeRequest   `xml:"SituationExchangeRequest" json:"situationExchangeRequests,omitempty"`
	VehicleMonitoringRequests   []VehicleMonitoringRequest   `xml:"VehicleMonitoringRequest" json:"vehicleMonitoringRequests,omitempty"`
	EstimatedTimetableRequests  []EstimatedTimetableRequest  `xml:"EstimatedTimetableRequest" json:"estimatedTimetableRequests,omitempty"`
	ProductionTimetableRequests []ProductionTimetableRequest `xml:"ProductionTimetableRequest" json:"productionTimetableRequests,omitempty"`
}

type SituationExchangeRequest struct {
	PreviewInterval Duration `xml:"PreviewInterval,omitempty" json:"previewInterval,omitempty"`
}

type VehicleMonitoringRequest struct {
	LineRef              string `xml:"LineRef,omitempty" json:"lineRef,omitempty"`
	VehicleRef           string `xml:"VehicleRef,omitempty" json:"vehicleRef,omitempty"`
	VehicleMonitoringRef string `xml:"VehicleMonitoringRef,omitempty" json:"vehicleMonitoringRef,omitempty"`
}

type EstimatedTimetableRequest struct {
	PreviewInterval Duration `xml:"PreviewInterval,omitempty" json:"previewInterval,omitempty"`
}

type ProductionTimetableRequest struct{}

// ServiceDelivery carries actual domain data. Per-kind deliveries each have
// their own status flag and error condition; a failed kind is skipped while
// sibling kinds in the same message are still processed.
type ServiceDelivery struct {
	ResponseTimestamp time.Time `xml:"ResponseTimestamp" json:"responseTimestamp"`
	ProducerRef       string    `xml:"ProducerRef,omitempty" json:"producerRef,omitempty"`
	MoreData          *bool     `xml:"MoreData,omitempty" json:"moreData,omitempty"`

	SituationExchangeDeliveries   []SituationExchangeDelivery   `xml:"SituationExchangeDelivery" json:"situationExchangeDeliveries,omitempty"`
	VehicleMonitoringDeliveries   []VehicleMonitoringDelivery   `xml:"VehicleMonitoringDelivery" json:"vehicleMonitoringDeliveries,omitempty"`
	EstimatedTimetableDeliveries  []EstimatedTimetableDelivery  `xml:"EstimatedTimetableDelivery" json:"estimatedTimetableDeliveries,omitempty"`
	ProductionTimetableDeliveries []ProductionTimetableDelivery `xml:"ProductionTimetableDelivery" json:"productionTimetableDeliveries,omitempty"`
}

type SituationExchangeDelivery struct {
	ResponseTimestamp time.Time          `xml:"ResponseTimestamp" json:"responseTimestamp"`
	Status            *bool              `xml:"Status" json:"status,omitempty"`
	ErrorCondition    *ErrorCondition    `xml:"ErrorCondition,omitempty" json:"errorCondition,omitempty"`
	Situations        []SituationElement `xml:"Situations>PtSituationElement" json:"situations,omitempty"`
}

type VehicleMonitoringDelivery struct {
	ResponseTimestamp time.Time         `xml:"ResponseTimestamp" json:"responseTimestamp"`
	Status            *bool             `xml:"Status" json:"status,omitempty"`
	ErrorCondition    *ErrorCondition   `xml:"ErrorCondition,omitempty" json:"errorCondition,omitempty"`
	VehicleActivities []VehicleActivity `xml:"VehicleActivity" json:"vehicleActivities,omitempty"`
}

type EstimatedTimetableDelivery struct {
	ResponseTimestamp time.Time             `xml:"ResponseTimestamp" json:"responseTimestamp"`
	Status            *bool                 `xml:"Status" json:"status,omitempty"`
	ErrorCondition    *ErrorCondition       `xml:"ErrorCondition,omitempty" json:"errorCondition,omitempty"`
	VersionFrames     []EstimatedVersionFrame `xml:"EstimatedJourneyVersionFrame" json:"versionFrames,omitempty"`
}

type EstimatedVersionFrame struct {
	RecordedAtTime time.Time                 `xml:"RecordedAtTime" json:"recordedAtTime"`
	Journeys       []EstimatedVehicleJourney `xml:"EstimatedVehicleJourney" json:"journeys,omitempty"`
}

type ProductionTimetableDelivery struct {
	ResponseTimestamp time.Time            `xml:"ResponseTimestamp" json:"responseTimestamp"`
	Status            *bool                `xml:"Status" json:"status,omitempty"`
	ErrorCondition    *ErrorCondition      `xml:"ErrorCondition,omitempty" json:"errorCondition,omitempty"`
	Version           string               `xml:"version,attr,omitempty" json:"version,omitempty"`
	DatedTimetables   []DatedTimetableFrame `xml:"DatedTimetableVersionFrame" json:"datedTimetables,omitempty"`
}

type DatedTimetableFrame struct {
	RecordedAtTime time.Time            `xml:"RecordedAtTime" json:"recordedAtTime"`
	LineRef        string               `xml:"LineRef" json:"lineRef"`
	Journeys       []DatedVehicleJourney `xml:"DatedVehicleJourney" json:"journeys,omitempty"`
}

type SituationElement struct {
	CreationTime    time.Time `xml:"CreationTime" json:"creationTime"`
	ParticipantRef  string    `xml:"ParticipantRef" json:"participantRef"`
	SituationNumber string    `xml:"SituationNumber" json:"situationNumber"`
	SituationVersion int      `xml:"Version,omitempty" json:"situationVersion,omitempty"`
	Progress        string    `xml:"Progress,omitempty" json:"progress,omitempty"`
	ValidUntil      time.Time `xml:"ValidityPeriod>EndTime,omitempty" json:"validUntil,omitempty"`
	Summary         string    `xml:"Summary,omitempty" json:"summary,omitempty"`
	LineRefs        []string  `xml:"Affects>Networks>AffectedNetwork>AffectedLine>LineRef" json:"lineRefs,omitempty"`
	StopPointRefs   []string  `xml:"Affects>StopPoints>AffectedStopPoint>StopPointRef" json:"stopPointRefs,omitempty"`
	StopPlaceRefs   []string  `xml:"Affects>StopPlaces>AffectedStopPlace>StopPlaceRef" json:"stopPlaceRefs,omitempty"`
}

type VehicleActivity struct {
	RecordedAtTime     time.Time `xml:"RecordedAtTime" json:"recordedAtTime"`
	ValidUntil         time.Time `xml:"ValidUntilTime,omitempty" json:"validUntil,omitempty"`
	VehicleRef         string    `xml:"MonitoredVehicleJourney>VehicleRef" json:"vehicleRef"`
	LineRef            string    `xml:"MonitoredVehicleJourney>LineRef" json:"lineRef"`
	CourseOfJourneyRef string    `xml:"MonitoredVehicleJourney>CourseOfJourneyRef,omitempty" json:"courseOfJourneyRef,omitempty"`
	DestinationRef     string    `xml:"MonitoredVehicleJourney>DestinationRef,omitempty" json:"destinationRef,omitempty"`
	Monitored          *bool     `xml:"MonitoredVehicleJourney>Monitored,omitempty" json:"monitored,omitempty"`
	Delay              Duration  `xml:"MonitoredVehicleJourney>Delay,omitempty" json:"delay,omitempty"`
}

type EstimatedVehicleJourney struct {
	RecordedAtTime         time.Time       `xml:"RecordedAtTime" json:"recordedAtTime"`
	LineRef                string          `xml:"LineRef" json:"lineRef"`
	DatedVehicleJourneyRef string          `xml:"DatedVehicleJourneyRef" json:"datedVehicleJourneyRef"`
	JourneyPlaceRef        string          `xml:"OriginRef,omitempty" json:"journeyPlaceRef,omitempty"`
	DestinationRef         string          `xml:"DestinationRef,omitempty" json:"destinationRef,omitempty"`
	Cancellation           *bool           `xml:"Cancellation,omitempty" json:"cancellation,omitempty"`
	EstimatedCalls         []EstimatedCall `xml:"EstimatedCalls>EstimatedCall" json:"estimatedCalls,omitempty"`
}

type EstimatedCall struct {
	StopPointRef          string    `xml:"StopPointRef" json:"stopPointRef"`
	Order                 int       `xml:"Order,omitempty" json:"order,omitempty"`
	AimedDepartureTime    time.Time `xml:"AimedDepartureTime,omitempty" json:"aimedDepartureTime,omitempty"`
	ExpectedDepartureTime time.Time `xml:"ExpectedDepartureTime,omitempty" json:"expectedDepartureTime,omitempty"`
}

type DatedVehicleJourney struct {
	DatedVehicleJourneyRef string `xml:"DatedVehicleJourneyCode" json:"datedVehicleJourneyRef"`
	JourneyPlaceRef        string `xml:"OriginRef,omitempty" json:"journeyPlaceRef,omitempty"`
	DestinationRef         string `xml:"DestinationRef,omitempty" json:"destinationRef,omitempty"`
}

// ErrorCondition is the structured error reported by a failed delivery or
// response status. Every populated sub-field is accumulated into a flat
// key/value report for logging.
type ErrorCondition struct {
	AccessNotAllowed             *ErrorText        `xml:"AccessNotAllowedError,omitempty" json:"accessNotAllowed,omitempty"`
	AllowedResourceUsageExceeded *ErrorText        `xml:"AllowedResourceUsageExceededError,omitempty" json:"allowedResourceUsageExceeded,omitempty"`
	BeyondDataHorizon            *ErrorText        `xml:"BeyondDataHorizon,omitempty" json:"beyondDataHorizon,omitempty"`
	CapabilityNotSupported       *ErrorText        `xml:"CapabilityNotSupportedError,omitempty" json:"capabilityNotSupported,omitempty"`
	EndpointDeniedAccess         *ErrorText        `xml:"EndpointDeniedAccessError,omitempty" json:"endpointDeniedAccess,omitempty"`
	EndpointNotAvailableAccess   *ErrorText        `xml:"EndpointNotAvailableAccessError,omitempty" json:"endpointNotAvailableAccess,omitempty"`
	InvalidDataReferences        *ErrorText        `xml:"InvalidDataReferencesError,omitempty" json:"invalidDataReferences,omitempty"`
	ParametersIgnored            *ErrorText        `xml:"ParametersIgnoredError,omitempty" json:"parametersIgnored,omitempty"`
	ServiceNotAvailable          *ErrorText        `xml:"ServiceNotAvailableError,omitempty" json:"serviceNotAvailable,omitempty"`
	UnapprovedKeyAccess          *ErrorText        `xml:"UnapprovedKeyAccessError,omitempty" json:"unapprovedKeyAccess,omitempty"`
	UnknownEndpoint              *ErrorText        `xml:"UnknownEndpointError,omitempty" json:"unknownEndpoint,omitempty"`
	UnknownExtensions            *ErrorText        `xml:"UnknownExtensionsError,omitempty" json:"unknownExtensions,omitempty"`
	UnknownParticipant           *ErrorText        `xml:"UnknownParticipantError,omitempty" json:"unknownParticipant,omitempty"`
	NoInfoForTopic               *ErrorText        `xml:"NoInfoForTopicError,omitempty" json:"noInfoForTopic,omitempty"`
	OtherError                   *ErrorText        `xml:"OtherError,omitempty" json:"otherError,omitempty"`
	Description                  *ErrorDescription `xml:"Description,omitempty" json:"description,omitempty"`
}

type ErrorText struct {
	ErrorText string `xml:"ErrorText,omitempty" json:"errorText,omitempty"`
}

type ErrorDescription struct {
	Value string `xml:",chardata" json:"value,omitempty"`
}

// Flatten collects every populated error sub-field into a flat map.
func (e *ErrorCondition) Flatten() map[string]string {
	out := map[string]string{}
	if e == nil {
		return out
	}
	put := func(key string, t *ErrorText) {
		if t != nil {
			out[key] = t.ErrorText
		}
	}
	put("accessNotAllowed", e.AccessNotAllowed)
	put("allowedResourceUsageExceeded", e.AllowedResourceUsageExceeded)
	put("beyondDataHorizon", e.BeyondDataHorizon)
	put("capabilityNotSupportedError", e.CapabilityNotSupported)
	put("endpointDeniedAccessError", e.EndpointDeniedAccess)
	put("endpointNotAvailableAccessError", e.EndpointNotAvailableAccess)
	put("invalidDataReferencesError", e.InvalidDataReferences)
	put("parametersIgnoredError", e.ParametersIgnored)
	put("serviceNotAvailableError", e.ServiceNotAvailable)
	put("unapprovedKeyAccessError", e.UnapprovedKeyAccess)
	put("unknownEndpointError", e.UnknownEndpoint)
	put("unknownExtensionsError", e.UnknownExtensions)
	put("unknownParticipantError", e.UnknownParticipant)
	put("noInfoForTopicError", e.NoInfoForTopic)
	put("otherError", e.OtherError)
	if e.Description != nil {
		out["description"] = e.Description.Value
	}
	return out
}

// OK reports whether a per-kind delivery status flag means success. A nil
// flag is implicit success.
func OK(status *bool) bool {
	return status == nil || *status
}
