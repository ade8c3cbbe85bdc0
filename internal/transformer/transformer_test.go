package transformer

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/transitlab/sirihub/pkg/domain"
)

func TestPrefixAdapter(t *testing.T) {
	a := NewPrefixAdapter(domain.RefLine, "RUT")

	if got := a.Apply("1234"); got != "RUT:Line:1234" {
		t.Errorf("Apply = %q, want RUT:Line:1234", got)
	}
	// Re-applying must not double-qualify.
	if got := a.Apply("RUT:Line:1234"); got != "RUT:Line:1234" {
		t.Errorf("Apply on qualified id = %q, want unchanged", got)
	}
}

func TestLeftPaddingAdapter(t *testing.T) {
	a := NewLeftPaddingAdapter(domain.RefStopPoint, 8)

	if got := a.Apply("1234"); got != "00001234" {
		t.Errorf("Apply = %q, want 00001234", got)
	}
	if got := a.Apply("123456789"); got != "123456789" {
		t.Errorf("Apply on wide id = %q, want unchanged", got)
	}
	if got := a.Apply("NSR:Quay:1"); got != "NSR:Quay:1" {
		t.Errorf("Apply on non-numeric = %q, want unchanged", got)
	}
}

func TestCSVReplacerAdapter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.csv")
	if err := os.WriteFile(path, []byte("OLD1,NEW1\nOLD2,NEW2\n"), 0644); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	a, err := NewCSVReplacerAdapter(domain.RefStopPoint, path)
	if err != nil {
		t.Fatalf("NewCSVReplacerAdapter: %v", err)
	}
	if got := a.Apply("OLD2"); got != "NEW2" {
		t.Errorf("Apply = %q, want NEW2", got)
	}
	if got := a.Apply("UNMAPPED"); got != "UNMAPPED" {
		t.Errorf("Apply on unmapped = %q, want pass-through", got)
	}
}

func TestCSVReplacerAdapter_MissingFile(t *testing.T) {
	if _, err := NewCSVReplacerAdapter(domain.RefStopPoint, "/nonexistent.csv"); err == nil {
		t.Fatal("expected error for missing mapping file")
	}
}

func TestChainOrderAndKindFilter(t *testing.T) {
	pad := NewLeftPaddingAdapter(domain.RefStopPoint, 4)
	prefix := NewPrefixAdapter(domain.RefStopPoint, "NSR")
	chain := NewChain(pad, prefix)

	// Pad first, then qualify.
	if got := chain.Apply(domain.RefStopPoint, "7"); got != "NSR:Quay:0007" {
		t.Errorf("Apply = %q, want NSR:Quay:0007", got)
	}
	// Adapters only fire for their own kind.
	if got := chain.Apply(domain.RefLine, "7"); got != "7" {
		t.Errorf("Apply for other kind = %q, want unchanged", got)
	}
	if got := chain.Apply(domain.RefStopPoint, ""); got != "" {
		t.Errorf("Apply on empty = %q, want empty", got)
	}
}

func TestChainDeduplicates(t *testing.T) {
	chain := NewChain(
		NewPrefixAdapter(domain.RefLine, "RUT"),
		NewPrefixAdapter(domain.RefLine, "RUT"),
	)
	if chain.Len() != 1 {
		t.Errorf("Len = %d, want 1 after dedup", chain.Len())
	}
	// Same name, different kind is a different transformation.
	chain.Add(NewPrefixAdapter(domain.RefStopPoint, "RUT"))
	if chain.Len() != 2 {
		t.Errorf("Len = %d, want 2", chain.Len())
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("nor-std", PrefixChain); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register("nor-std", nil); err == nil {
		t.Fatal("expected error for duplicate registration")
	}

	sub := &domain.Subscription{
		SubscriptionID:    "sub-1",
		MappingAdapterID:  "nor-std",
		IDMappingPrefixes: []string{"RUT"},
	}
	chain, err := reg.Build(sub)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := chain.Apply(domain.RefLine, "5"); got != "RUT:Line:5" {
		t.Errorf("Apply = %q, want RUT:Line:5", got)
	}

	// Empty mapping id means no transformation, not an error.
	plain, err := reg.Build(&domain.Subscription{SubscriptionID: "sub-2"})
	if err != nil {
		t.Fatalf("Build without mapping id: %v", err)
	}
	if plain.Len() != 0 {
		t.Errorf("Len = %d, want 0", plain.Len())
	}

	// Unknown ids are fatal configuration errors.
	if _, err := reg.Build(&domain.Subscription{SubscriptionID: "sub-3", MappingAdapterID: "nope"}); err == nil {
		t.Fatal("expected error for unknown mapping id")
	}
}

func TestPolicyFromQuery(t *testing.T) {
	cases := []struct {
		query string
		want  OutboundIDMappingPolicy
	}{
		{"", PolicyDefault},
		{"useOriginalId=true", PolicyOriginalID},
		{"useOriginalId=TRUE", PolicyOriginalID},
		{"useOriginalId=false", PolicyDefault},
		{"useAltId=true", PolicyAltID},
		{"useOriginalId=true&useAltId=true", PolicyOriginalID},
	}
	for _, tc := range cases {
		values, _ := url.ParseQuery(tc.query)
		if got := PolicyFromQuery(values); got != tc.want {
			t.Errorf("PolicyFromQuery(%q) = %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestOutboundChain(t *testing.T) {
	orig := OutboundChain(PolicyOriginalID, nil)
	if got := orig.Apply(domain.RefLine, "RUT:Line:1234"); got != "1234" {
		t.Errorf("original-id Apply = %q, want 1234", got)
	}

	alt := OutboundChain(PolicyAltID, map[domain.RefKind]map[string]string{
		domain.RefStopPoint: {"NSR:Quay:1": "ALT-1"},
	})
	if got := alt.Apply(domain.RefStopPoint, "NSR:Quay:1"); got != "ALT-1" {
		t.Errorf("alt-id Apply = %q, want ALT-1", got)
	}
	if got := alt.Apply(domain.RefStopPoint, "NSR:Quay:2"); got != "NSR:Quay:2" {
		t.Errorf("alt-id Apply on unmapped = %q, want pass-through", got)
	}

	def := OutboundChain(PolicyDefault, nil)
	if def.Len() != 0 {
		t.Errorf("default policy chain Len = %d, want 0", def.Len())
	}
}
