package llmcache

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
)

var keyPattern = regexp.MustCompile(`^llmcache:(chat|completion|vision):[0-9a-f]{64}$`)

func TestFingerprint_Format(t *testing.T) {
	for _, kind := range []Kind{KindChat, KindCompletion, KindVision} {
		key := Fingerprint(kind, []byte(`{}`))
		if !keyPattern.MatchString(key) {
			t.Errorf("key %q does not match %s", key, keyPattern)
		}
		if !strings.HasPrefix(key, Namespace(kind)) {
			t.Errorf("key %q missing namespace %q", key, Namespace(kind))
		}
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	req := NewChat(ChatRequest{Model: "gpt-4o-mini", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	first, err := Key(req)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := Key(req)
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Fatalf("key changed between calls: %s vs %s", first, again)
		}
	}
}

func TestFingerprint_NamespaceIsolation(t *testing.T) {
	payload := []byte(`{"images":[],"model":"m","prompt":"p"}`)
	completion := Fingerprint(KindCompletion, payload)
	vision := Fingerprint(KindVision, payload)

	if completion == vision {
		t.Fatal("identical bytes under different kinds must not collide")
	}
	// The digests differ too, not just the prefixes.
	if completion[len(Namespace(KindCompletion)):] == vision[len(Namespace(KindVision)):] {
		t.Error("expected digests to differ across kinds")
	}
}

func TestFingerprint_FieldDifferences(t *testing.T) {
	base := NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": 1}})
	variants := []Request{
		NewCompletion(CompletionRequest{Prompt: "y", Context: map[string]any{"a": 1}}),
		NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": 2}}),
		NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": 1}, Metadata: map[string]any{"llm_model": "m"}}),
		NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": "1"}}),
		NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": 1}, Model: "gpt-4o"}),
		NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": json.Number("1.0000000000000000001")}}),
	}

	baseKey, err := Key(base)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range variants {
		k, err := Key(v)
		if err != nil {
			t.Fatal(err)
		}
		if k == baseKey {
			t.Errorf("variant %d produced the base key", i)
		}
	}
}

func TestFingerprint_ContextKeyOrderScenario(t *testing.T) {
	a := NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"a": 1, "b": 2}})
	b := NewCompletion(CompletionRequest{Prompt: "x", Context: map[string]any{"b": 2, "a": 1}})

	ka, err := Key(a)
	if err != nil {
		t.Fatal(err)
	}
	kb, err := Key(b)
	if err != nil {
		t.Fatal(err)
	}
	if ka != kb {
		t.Errorf("expected identical keys, got %s and %s", ka, kb)
	}
}

func TestFingerprint_EmptyInputsAreKeyed(t *testing.T) {
	reqs := []Request{
		NewChat(ChatRequest{}),
		NewCompletion(CompletionRequest{}),
		NewVision(VisionRequest{}),
	}
	seen := map[string]bool{}
	for _, r := range reqs {
		k, err := Key(r)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", r.Kind(), err)
		}
		if !keyPattern.MatchString(k) {
			t.Errorf("%s: malformed key %q", r.Kind(), k)
		}
		seen[k] = true
	}
	if len(seen) != len(reqs) {
		t.Error("expected distinct keys for empty requests of different kinds")
	}
}
