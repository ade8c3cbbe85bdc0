package transformer

import (
	"net/url"
	"strings"

	"github.com/transitlab/sirihub/pkg/domain"
)

// OutboundIDMappingPolicy selects the identifier form served to consumers.
type OutboundIDMappingPolicy int

const (
	// PolicyDefault serves the shared, prefix-qualified namespace.
	PolicyDefault OutboundIDMappingPolicy = iota
	// PolicyOriginalID serves the provider's unqualified ids.
	PolicyOriginalID
	// PolicyAltID serves the alternate id form where a mapping exists.
	PolicyAltID
)

// PolicyFromQuery reads the consumer's requested id form from query
// parameters. `useOriginalId=true` wins over `useAltId=true`; anything else
// is the default form.
func PolicyFromQuery(values url.Values) OutboundIDMappingPolicy {
	if strings.EqualFold(values.Get("useOriginalId"), "true") {
		return PolicyOriginalID
	}
	if strings.EqualFold(values.Get("useAltId"), "true") {
		return PolicyAltID
	}
	return PolicyDefault
}

// StripPrefixAdapter reverses prefix qualification: "RUT:Line:1234" -> "1234".
// Unqualified values pass through.
type StripPrefixAdapter struct {
	kind domain.RefKind
}

func NewStripPrefixAdapter(kind domain.RefKind) *StripPrefixAdapter {
	return &StripPrefixAdapter{kind: kind}
}

func (a *StripPrefixAdapter) Name() string         { return "original-id" }
func (a *StripPrefixAdapter) Kind() domain.RefKind { return a.kind }

func (a *StripPrefixAdapter) Apply(value string) string {
	if i := strings.LastIndex(value, ":"); i >= 0 {
		return value[i+1:]
	}
	return value
}

// OutboundChain builds the adapter chain applied to data served to a
// consumer under the given policy. The default policy needs no rewriting.
func OutboundChain(policy OutboundIDMappingPolicy, altMappings map[domain.RefKind]map[string]string) *Chain {
	chain := NewChain()
	switch policy {
	case PolicyOriginalID:
		for _, kind := range allRefKinds() {
			chain.Add(NewStripPrefixAdapter(kind))
		}
	case PolicyAltID:
		for kind, mapping := range altMappings {
			chain.Add(&altIDAdapter{kind: kind, mapping: mapping})
		}
	}
	return chain
}

type altIDAdapter struct {
	kind    domain.RefKind
	mapping map[string]string
}

func (a *altIDAdapter) Name() string         { return "alt-id" }
func (a *altIDAdapter) Kind() domain.RefKind { return a.kind }

func (a *altIDAdapter) Apply(value string) string {
	if to, ok := a.mapping[value]; ok {
		return to
	}
	return value
}

func allRefKinds() []domain.RefKind {
	return []domain.RefKind{
		domain.RefLine,
		domain.RefStopPoint,
		domain.RefStopPlace,
		domain.RefVehicle,
		domain.RefCourseOfJourney,
		domain.RefDestination,
		domain.RefJourneyPlace,
	}
}
