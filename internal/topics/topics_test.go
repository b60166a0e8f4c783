package topics

import (
	"reflect"
	"testing"

	"newsroll/internal/catalog"
)

func aiNormalizer() *Normalizer {
	return ForTab(catalog.Default(), "ai")
}

func TestTopicPriority(t *testing.T) {
	n := aiNormalizer()
	tests := []struct {
		candidate string
		want      string
		ok        bool
	}{
		{"models", "Models", true},
		{"  SAFETY ", "Safety", true},
		{"AI Safety Research", "Safety", true}, // first taxonomy entry contained wins
		{"gpu shortage", "Infra", true},
		{"fine-tuning recipes", "Training", true},
		{"weather", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := n.Topic(tt.candidate)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Topic(%q) = %q, %v; want %q, %v", tt.candidate, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTopicsDedupeAndCap(t *testing.T) {
	n := aiNormalizer()
	got := n.Topics([]string{"models", "Models", "gpu", "paper", "launch", "funding", "dataset", "safety"}, "")
	want := []string{"Models", "Infra", "Research", "Product", "Business"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Topics = %v, want %v", got, want)
	}
}

func TestTopicsFallBackToText(t *testing.T) {
	n := aiNormalizer()
	got := n.Topics([]string{"nonsense"}, "New GPU inference kernels")
	want := []string{"Inference", "Infra"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Topics = %v, want %v", got, want)
	}
}

func TestTopicsDefaultToFirstTaxonomyEntry(t *testing.T) {
	n := aiNormalizer()
	got := n.Topics(nil, "zzz")
	if !reflect.DeepEqual(got, []string{"Models"}) {
		t.Errorf("Topics = %v, want [Models]", got)
	}
}

func TestFinanceKoreanKeywords(t *testing.T) {
	n := ForTab(catalog.Default(), "finance")
	got := n.FromText("금융위원회, 가상자산 이용자 보호 규제 발표")
	want := []string{"Regulation", "Crypto"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromText = %v, want %v", got, want)
	}
	if got := n.FromText("aml controls"); !reflect.DeepEqual(got, []string{"Compliance"}) {
		t.Errorf("FromText(aml) = %v", got)
	}
}

func TestTagsFollowCanonicalOrder(t *testing.T) {
	c := catalog.Default()
	tn := NewTagNormalizer(c.Developer.CanonicalTags, c.Developer.TagAliases)

	got := tn.Tags([]string{"vector", "agent"}, "")
	want := []string{"agent tooling", "vector db"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags = %v, want %v", got, want)
	}

	got = tn.Tags([]string{"dataset", "security", "ide"}, "")
	want = []string{"editor", "security"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags capped = %v, want %v", got, want)
	}

	got = tn.Tags(nil, "A tracing sandbox")
	want = []string{"observability", "runtime"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tags from text = %v, want %v", got, want)
	}

	if got := tn.Tags([]string{"unknown"}, ""); len(got) != 0 {
		t.Errorf("Tags(unknown) = %v, want empty", got)
	}
}
