package policy

import (
	"errors"
	"strings"
	"testing"
)

func sampleRequest() Request {
	return Request{
		Sub: Subject{
			ID:       "42",
			Username: "alice",
			Roles:    []string{"editor", "reader"},
			Groups:   []string{"staff"},
			IsActive: true,
		},
		Obj: "/api/documents/7",
		Act: "GET",
	}
}

func TestConditionEvaluation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"empty passes", "", true},
		{"literal true", "true", true},
		{"python True", "True", true},
		{"equality", "sub == 'alice'", true},
		{"attribute equality", "sub.username == 'alice'", true},
		{"inequality", "sub.username != 'bob'", true},
		{"role membership", "'editor' in sub.roles", true},
		{"missing role", "'admin' in sub.roles", false},
		{"group membership", "'staff' in sub.groups", true},
		{"is_active", "sub.is_active", true},
		{"is_active equality", "sub.is_active == true", true},
		{"negation", "!('admin' in sub.roles)", true},
		{"word not", "not ('admin' in sub.roles)", true},
		{"and", "sub.is_active && 'editor' in sub.roles", true},
		{"word and", "sub.is_active and 'editor' in sub.roles", true},
		{"or short circuit", "'admin' in sub.roles || 'editor' in sub.roles", true},
		{"word or", "'admin' in sub.roles or 'editor' in sub.roles", true},
		{"act comparison", "act == 'GET'", true},
		{"obj substring", "'/api/' in obj", true},
		{"number comparison", "2 < 10", true},
		{"string ordering", "'a' < 'b'", true},
		{"grouping", "(act == 'GET' || act == 'HEAD') && sub.is_active", true},
		{"false branch", "act == 'DELETE'", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, err := CompileCondition(tt.src)
			if err != nil {
				t.Fatalf("CompileCondition(%q) failed: %v", tt.src, err)
			}
			if got := cond.Eval(sampleRequest()); got != tt.want {
				t.Fatalf("Eval(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestConditionSandboxRejectsHostileInput(t *testing.T) {
	hostile := []string{
		"__import__('os').system('rm -rf /')",
		"__import__",
		"open('/etc/passwd')",
		"sub.__class__",
		"sub.password_hash == 'x'",
		"exec('1')",
		"lambda: 1",
		"sub.roles[0]",
		"environ",
		"a == b",
		"sub ==",
		"(sub == 'alice'",
		"'unterminated",
		"1 @ 2",
	}

	for _, src := range hostile {
		if _, err := CompileCondition(src); err == nil {
			t.Fatalf("CompileCondition(%q) should fail", src)
		} else if !errors.Is(err, ErrConditionInvalid) {
			t.Fatalf("CompileCondition(%q): expected ErrConditionInvalid, got %v", src, err)
		}
	}
}

func TestConditionLimits(t *testing.T) {
	long := "sub == '" + strings.Repeat("a", maxConditionLen) + "'"
	if _, err := CompileCondition(long); err == nil {
		t.Fatal("over-length condition should fail")
	}

	deep := strings.Repeat("(", maxConditionDepth+2) + "true" + strings.Repeat(")", maxConditionDepth+2)
	if _, err := CompileCondition(deep); err == nil {
		t.Fatal("over-deep condition should fail")
	}
}

func TestConditionTypeErrorsEvaluateFalse(t *testing.T) {
	// Compiles fine, fails at runtime: mixed-type comparison.
	cond, err := CompileCondition("sub.username == 5")
	if err != nil {
		t.Fatalf("CompileCondition failed: %v", err)
	}
	if cond.Eval(sampleRequest()) {
		t.Fatal("type error must evaluate to false")
	}

	// Bare string operand is not a boolean result.
	cond, err = CompileCondition("sub.username")
	if err != nil {
		t.Fatalf("CompileCondition failed: %v", err)
	}
	if cond.Eval(sampleRequest()) {
		t.Fatal("non-boolean result must evaluate to false")
	}
}
