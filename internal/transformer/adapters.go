package transformer

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/transitlab/sirihub/pkg/domain"
)

// PrefixAdapter qualifies a vendor-local id with a namespace prefix, e.g.
// "1234" -> "RUT:Line:1234". Values already carrying the prefix pass through,
// so re-applying the chain is safe.
type PrefixAdapter struct {
	kind   domain.RefKind
	prefix string
}

func NewPrefixAdapter(kind domain.RefKind, prefix string) *PrefixAdapter {
	return &PrefixAdapter{kind: kind, prefix: prefix}
}

func (a *PrefixAdapter) Name() string         { return "prefix:" + a.prefix }
func (a *PrefixAdapter) Kind() domain.RefKind { return a.kind }

func (a *PrefixAdapter) Apply(value string) string {
	full := a.prefix + ":" + refTypeName(a.kind) + ":"
	if strings.HasPrefix(value, full) {
		return value
	}
	return full + value
}

func refTypeName(kind domain.RefKind) string {
	switch kind {
	case domain.RefLine:
		return "Line"
	case domain.RefStopPoint, domain.RefStopPlace, domain.RefJourneyPlace, domain.RefDestination:
		return "Quay"
	case domain.RefVehicle:
		return "Vehicle"
	case domain.RefCourseOfJourney:
		return "VehicleJourney"
	}
	return string(kind)
}

// LeftPaddingAdapter zero-pads purely numeric ids to a fixed width, the form
// some national registries key their stops by. Non-numeric values pass
// through untouched.
type LeftPaddingAdapter struct {
	kind  domain.RefKind
	width int
}

func NewLeftPaddingAdapter(kind domain.RefKind, width int) *LeftPaddingAdapter {
	return &LeftPaddingAdapter{kind: kind, width: width}
}

func (a *LeftPaddingAdapter) Name() string         { return fmt.Sprintf("leftpad:%d", a.width) }
func (a *LeftPaddingAdapter) Kind() domain.RefKind { return a.kind }

func (a *LeftPaddingAdapter) Apply(value string) string {
	if len(value) >= a.width || !isDigits(value) {
		return value
	}
	return strings.Repeat("0", a.width-len(value)) + value
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CSVReplacerAdapter substitutes ids through a two-column mapping file
// (from,to). Unmapped values pass through untouched.
type CSVReplacerAdapter struct {
	kind    domain.RefKind
	source  string
	mapping map[string]string
}

func NewCSVReplacerAdapter(kind domain.RefKind, filePath string) (*CSVReplacerAdapter, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open mapping file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read mapping file %s: %w", filePath, err)
	}
	mapping := make(map[string]string, len(rows))
	for _, row := range rows {
		mapping[strings.TrimSpace(row[0])] = strings.TrimSpace(row[1])
	}
	return &CSVReplacerAdapter{kind: kind, source: filePath, mapping: mapping}, nil
}

func (a *CSVReplacerAdapter) Name() string         { return "csv:" + a.source }
func (a *CSVReplacerAdapter) Kind() domain.RefKind { return a.kind }

func (a *CSVReplacerAdapter) Apply(value string) string {
	if to, ok := a.mapping[value]; ok {
		return to
	}
	return value
}

// PrefixChain builds the standard inbound chain for a subscription: one
// prefix adapter per declared id-mapping prefix, applied to every reference
// kind that carries vendor-local ids.
func PrefixChain(sub *domain.Subscription) ([]ValueAdapter, error) {
	kinds := []domain.RefKind{
		domain.RefLine,
		domain.RefStopPoint,
		domain.RefStopPlace,
		domain.RefVehicle,
		domain.RefCourseOfJourney,
		domain.RefDestination,
		domain.RefJourneyPlace,
	}
	var adapters []ValueAdapter
	for _, prefix := range sub.IDMappingPrefixes {
		for _, kind := range kinds {
			adapters = append(adapters, NewPrefixAdapter(kind, prefix))
		}
	}
	return adapters, nil
}
