package vocab

import (
	"strings"
	"testing"
)

func TestApplyExactCaseRestore(t *testing.T) {
	m := New([]string{"OpenAI", "Deepgram"})
	got := m.Apply("send it to openai and deepgram")
	want := "send it to OpenAI and Deepgram"
	if got != want {
		t.Fatalf("Apply = %q, want %q", got, want)
	}
}

func TestApplyPhoneticSingle(t *testing.T) {
	m := New([]string{"Kubernetes"})
	got := m.Apply("deploy it on kooberneties today")
	if !strings.Contains(got, "Kubernetes") {
		t.Fatalf("expected phonetic replacement, got %q", got)
	}
	if !strings.HasSuffix(got, "today") {
		t.Fatalf("surrounding words must survive, got %q", got)
	}
}

func TestApplyBigram(t *testing.T) {
	m := New([]string{"pull request"})
	got := m.Apply("open a pul riquest now")
	if !strings.Contains(got, "pull request") {
		t.Fatalf("expected bigram replacement, got %q", got)
	}
	if strings.Contains(got, "pul") || strings.Contains(got, "riquest") {
		t.Fatalf("original misheard tokens must be consumed, got %q", got)
	}
}

func TestApplyKeepsPunctuation(t *testing.T) {
	m := New([]string{"Deepgram"})
	got := m.Apply("ship it to deepgram, then rest")
	want := "ship it to Deepgram, then rest"
	if got != want {
		t.Fatalf("Apply = %q, want %q", got, want)
	}
}

func TestApplyNoFalsePositives(t *testing.T) {
	m := New([]string{"Grafana"})
	in := "the weather is nice outside"
	if got := m.Apply(in); got != in {
		t.Fatalf("unrelated text must pass through, got %q", got)
	}
}

func TestApplyEmptyVocabulary(t *testing.T) {
	m := New(nil)
	if !m.Empty() {
		t.Fatal("expected Empty for nil vocabulary")
	}
	in := "anything at all"
	if got := m.Apply(in); got != in {
		t.Fatalf("Apply with empty vocabulary = %q, want %q", got, in)
	}
}

func TestMatchThresholds(t *testing.T) {
	strict := New([]string{"Terraform"}, WithFuzzyThreshold(0.99), WithPhoneticThreshold(0.99))
	if _, _, ok := strict.match("terrafrom"); ok {
		t.Fatal("near-unity thresholds must reject a transposition")
	}

	lax := New([]string{"Terraform"})
	repl, conf, ok := lax.match("terrafrom")
	if !ok || repl != "Terraform" {
		t.Fatalf("default thresholds must accept transposition, got (%q, %v)", repl, ok)
	}
	if conf <= 0 || conf > 1 {
		t.Fatalf("confidence out of range: %v", conf)
	}
}

func TestBlankEntriesDropped(t *testing.T) {
	m := New([]string{"  ", "", "Redis"})
	if len(m.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.entries))
	}
}
