package domain

import "time"

// Activity is the per-subscription liveness record. LastActivity is the most
// recent successful touch of any kind, LastDataReceived the most recent
// delivery that actually carried payload, Activated the moment the
// subscription last transitioned pending to active. Zero values mean "never".
type Activity struct {
	LastActivity     time.Time `json:"lastActivity"`
	LastDataReceived time.Time `json:"lastDataReceived"`
	Activated        time.Time `json:"activated"`
}

// SubscriptionStatus is the admin-facing snapshot for one subscription.
type SubscriptionStatus struct {
	Subscription *Subscription `json:"subscription"`

	// Status is "deactivated" or "active"; Healthy is null for deactivated
	// subscriptions so reporting can tell "stopped" apart from "broken".
	Status  string `json:"status"`
	Healthy *bool  `json:"healthy"`
	Started bool   `json:"started"`

	Activated        string `json:"activated"`
	LastActivity     string `json:"lastActivity"`
	LastDataReceived string `json:"lastDataReceived"`

	FlagAsNotReceivingData bool `json:"flagAsNotReceivingData"`

	HitCount    int64 `json:"hitcount"`
	ObjectCount int64 `json:"objectcount"`

	URLs map[RequestType]string `json:"urllist"`
}
