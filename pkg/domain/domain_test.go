package domain

import (
	"strings"
	"testing"
	"time"
)

func validSubscribeSub() *Subscription {
	return &Subscription{
		InternalID:             "1",
		SubscriptionID:         "sub-1",
		Vendor:                 "ruter",
		DatasetID:              "RUT",
		Version:                "2.0",
		ServiceType:            ServiceREST,
		Mode:                   ModeSubscribe,
		DataType:               VehicleMonitoring,
		HeartbeatInterval:      30 * time.Second,
		DurationOfSubscription: 24 * time.Hour,
		RequestorRef:           "sirihub",
		URLMap: map[RequestType]string{
			ReqSubscribe:          "http://provider/subscribe",
			ReqDeleteSubscription: "http://provider/terminate",
		},
	}
}

func TestValidate_Subscribe(t *testing.T) {
	sub := validSubscribeSub()
	if err := sub.Validate(); err != nil {
		t.Fatalf("Expected valid subscription, got %v", err)
	}

	missing := validSubscribeSub()
	delete(missing.URLMap, ReqDeleteSubscription)
	if err := missing.Validate(); err == nil {
		t.Fatal("Expected error for missing DELETE_SUBSCRIPTION url")
	}
}

func TestValidate_SubscribeRequiresPreviewInterval(t *testing.T) {
	// ET and SX push subscriptions must declare a preview window; VM must not.
	for _, dt := range []DataType{EstimatedTimetable, SituationExchange} {
		sub := validSubscribeSub()
		sub.DataType = dt
		if err := sub.Validate(); err == nil {
			t.Errorf("%s: expected error for missing previewInterval", dt)
		}
		sub.PreviewInterval = time.Hour
		if err := sub.Validate(); err != nil {
			t.Errorf("%s: expected valid subscription, got %v", dt, err)
		}
	}
}

func TestValidate_RequestResponse(t *testing.T) {
	sub := validSubscribeSub()
	sub.Mode = ModeRequestResponse
	sub.URLMap = map[RequestType]string{}
	if err := sub.Validate(); err == nil {
		t.Fatal("Expected error for missing data-request url")
	}
	sub.URLMap[ReqGetVehicleMonitoring] = "http://provider/vm"
	if err := sub.Validate(); err != nil {
		t.Fatalf("Expected valid subscription, got %v", err)
	}
}

func TestValidate_ModeRequired(t *testing.T) {
	sub := validSubscribeSub()
	sub.Mode = ""
	if err := sub.Validate(); err == nil {
		t.Fatal("Expected error for unset mode")
	}
	if err := sub.Validate(); !strings.Contains(err.Error(), "mode") {
		t.Errorf("Expected mode error, got %v", err)
	}
}

func TestConfigEquals_IgnoresSubscriptionIDAndActive(t *testing.T) {
	a := validSubscribeSub()
	b := a.Clone()
	b.SubscriptionID = "totally-different"
	b.Active = !a.Active
	if !a.ConfigEquals(b) {
		t.Fatal("Expected equality: subscriptionId and active are not identity fields")
	}
}

func TestConfigEquals_DetectsIdentityChange(t *testing.T) {
	a := validSubscribeSub()

	b := a.Clone()
	b.DurationOfSubscription = 48 * time.Hour
	if a.ConfigEquals(b) {
		t.Error("Expected duration change to break equality")
	}

	c := a.Clone()
	c.IDMappingPrefixes = []string{"RUT", "ATB"}
	if a.ConfigEquals(c) {
		t.Error("Expected prefix change to break equality")
	}

	if a.ConfigEquals(nil) {
		t.Error("Expected nil to compare unequal")
	}
}

func TestClone_Deep(t *testing.T) {
	a := validSubscribeSub()
	a.IDMappingPrefixes = []string{"RUT"}
	b := a.Clone()
	b.URLMap[ReqCheckStatus] = "http://provider/status"
	b.IDMappingPrefixes[0] = "ATB"
	if a.URL(ReqCheckStatus) != "" {
		t.Error("Clone shares URL map with original")
	}
	if a.IDMappingPrefixes[0] != "RUT" {
		t.Error("Clone shares prefix slice with original")
	}
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"PT30S", 30 * time.Second},
		{"PT5M", 5 * time.Minute},
		{"PT1H30M", 90 * time.Minute},
		{"P1D", 24 * time.Hour},
		{"P1DT12H", 36 * time.Hour},
		{"PT0.5S", 500 * time.Millisecond},
		{"-PT10S", -10 * time.Second},
		{"30s", 30 * time.Second},
		{"24h", 24 * time.Hour},
		{"", 0},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.in)
		if err != nil {
			t.Errorf("ParseDuration(%q): %v", tc.in, err)
			continue
		}
		if got.Std() != tc.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tc.in, got.Std(), tc.want)
		}
	}
}

func TestParseDuration_Invalid(t *testing.T) {
	for _, in := range []string{"PT", "P30", "PTXS", "xyz"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q): expected error", in)
		}
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	for _, v := range []time.Duration{0, 30 * time.Second, 90 * time.Minute, 36 * time.Hour} {
		s := Duration(v).String()
		back, err := ParseDuration(s)
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", s, err)
		}
		if back.Std() != v {
			t.Errorf("round trip %v -> %q -> %v", v, s, back.Std())
		}
	}
}

func TestSiriVariant(t *testing.T) {
	hb := &Siri{HeartbeatNotification: &HeartbeatNotification{ProducerRef: "RUT"}}
	if hb.Variant() != VariantHeartbeat {
		t.Errorf("Expected %s, got %s", VariantHeartbeat, hb.Variant())
	}
	empty := &Siri{}
	if empty.Variant() != VariantUnknown {
		t.Errorf("Expected %s, got %s", VariantUnknown, empty.Variant())
	}
	sd := &Siri{ServiceDelivery: &ServiceDelivery{}}
	if sd.Variant() != VariantServiceDelivery {
		t.Errorf("Expected %s, got %s", VariantServiceDelivery, sd.Variant())
	}
}

func TestSubscriptionRequest_DataType(t *testing.T) {
	r := &SubscriptionRequest{VehicleMonitoringSubscription: &TypedSubscriptionRequest{SubscriptionIdentifier: "s"}}
	if r.DataType() != VehicleMonitoring {
		t.Errorf("Expected VEHICLE_MONITORING, got %q", r.DataType())
	}
	if r.Subscription() == nil || r.Subscription().SubscriptionIdentifier != "s" {
		t.Error("Expected populated typed sub-request")
	}
	none := &SubscriptionRequest{}
	if none.DataType() != "" || none.Subscription() != nil {
		t.Error("Expected empty request to report no data type")
	}
}

func TestErrorCondition_Flatten(t *testing.T) {
	ec := &ErrorCondition{
		ServiceNotAvailable: &ErrorText{ErrorText: "maintenance window"},
		UnknownEndpoint:     &ErrorText{ErrorText: "no such consumer"},
		Description:         &ErrorDescription{Value: "try later"},
	}
	got := ec.Flatten()
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %v", len(got), got)
	}
	if got["serviceNotAvailableError"] != "maintenance window" {
		t.Errorf("Unexpected serviceNotAvailableError: %q", got["serviceNotAvailableError"])
	}
	if got["description"] != "try later" {
		t.Errorf("Unexpected description: %q", got["description"])
	}

	var nilEC *ErrorCondition
	if len(nilEC.Flatten()) != 0 {
		t.Error("Expected empty map for nil condition")
	}
}

func TestOK(t *testing.T) {
	f := false
	tr := true
	if !OK(nil) || !OK(&tr) {
		t.Error("nil and true must mean success")
	}
	if OK(&f) {
		t.Error("false must mean failure")
	}
}
