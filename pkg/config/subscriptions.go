package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/transitlab/sirihub/pkg/domain"

	"gopkg.in/yaml.v3"
)

// SubscriptionEntry is one subscription as declared in the subscription-set
// YAML file. Durations are strings so operators can write either ISO-8601
// ("PT30S") or Go ("30s") forms.
type SubscriptionEntry struct {
	InternalID     string `yaml:"internalId"`
	SubscriptionID string `yaml:"subscriptionId"`

	Vendor    string `yaml:"vendor"`
	DatasetID string `yaml:"datasetId"`
	Version   string `yaml:"version"`

	ServiceType      string `yaml:"serviceType"`
	SubscriptionMode string `yaml:"subscriptionMode"`
	DataType         string `yaml:"dataType"`

	HeartbeatInterval      string `yaml:"heartbeatInterval"`
	DurationOfSubscription string `yaml:"durationOfSubscription"`
	PreviewInterval        string `yaml:"previewInterval"`
	UpdateInterval         string `yaml:"updateInterval"`

	RequestorRef      string `yaml:"requestorRef"`
	OperatorNamespace string `yaml:"operatorNamespace"`
	ContentType       string `yaml:"contentType"`

	IDMappingPrefixes []string `yaml:"idMappingPrefixes"`
	MappingAdapterID  string   `yaml:"mappingAdapterId"`

	IncrementalUpdates bool `yaml:"incrementalUpdates"`

	URLs map[string]string `yaml:"urls"`

	Active bool `yaml:"active"`
}

type subscriptionsFile struct {
	Subscriptions []SubscriptionEntry `yaml:"subscriptions"`
}

// LoadSubscriptions reads the subscription-set file and converts each entry
// to a domain subscription. Conversion errors are fatal; a malformed entry
// must never be silently skipped.
func LoadSubscriptions(filePath string) ([]*domain.Subscription, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var f subscriptionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	subs := make([]*domain.Subscription, 0, len(f.Subscriptions))
	for i := range f.Subscriptions {
		sub, err := f.Subscriptions[i].ToDomain()
		if err != nil {
			return nil, fmt.Errorf("subscription %d in %s: %w", i, filePath, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (e *SubscriptionEntry) ToDomain() (*domain.Subscription, error) {
	heartbeat, err := domain.ParseDuration(e.HeartbeatInterval)
	if err != nil {
		return nil, err
	}
	duration, err := domain.ParseDuration(e.DurationOfSubscription)
	if err != nil {
		return nil, err
	}
	preview, err := domain.ParseDuration(e.PreviewInterval)
	if err != nil {
		return nil, err
	}
	update, err := domain.ParseDuration(e.UpdateInterval)
	if err != nil {
		return nil, err
	}

	urls := make(map[domain.RequestType]string, len(e.URLs))
	for k, v := range e.URLs {
		urls[domain.RequestType(strings.ToUpper(k))] = v
	}

	return &domain.Subscription{
		InternalID:             e.InternalID,
		SubscriptionID:         e.SubscriptionID,
		Vendor:                 e.Vendor,
		DatasetID:              e.DatasetID,
		Version:                e.Version,
		ServiceType:            domain.ServiceType(strings.ToUpper(e.ServiceType)),
		Mode:                   domain.SubscriptionMode(strings.ToUpper(e.SubscriptionMode)),
		DataType:               domain.DataType(strings.ToUpper(e.DataType)),
		HeartbeatInterval:      heartbeat.Std(),
		DurationOfSubscription: duration.Std(),
		PreviewInterval:        preview.Std(),
		UpdateInterval:         update.Std(),
		RequestorRef:           e.RequestorRef,
		OperatorNamespace:      e.OperatorNamespace,
		ContentType:            e.ContentType,
		IDMappingPrefixes:      append([]string(nil), e.IDMappingPrefixes...),
		MappingAdapterID:       e.MappingAdapterID,
		IncrementalUpdates:     e.IncrementalUpdates,
		URLMap:                 urls,
		Active:                 e.Active,
	}, nil
}
