package render

import (
	"reflect"
	"testing"

	"github.com/loomworks/loom/internal/model"
)

func TestInterpolate_Substitutes(t *testing.T) {
	out, missing := Interpolate("Hello {{name}}, ask {{q}}", map[string]string{
		"name": "Alice",
		"q":    "hi",
	})
	if out != "Hello Alice, ask hi" {
		t.Fatalf("got %q", out)
	}
	if len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
}

func TestInterpolate_TrimsPlaceholderName(t *testing.T) {
	out, missing := Interpolate("{{ name }}", map[string]string{"name": "x"})
	if out != "x" {
		t.Fatalf("got %q", out)
	}
	if len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
}

func TestInterpolate_MissingKeepsPlaceholder(t *testing.T) {
	out, missing := Interpolate("Hi {{ghost}}", nil)
	if out != "Hi {{ghost}}" {
		t.Fatalf("got %q", out)
	}
	if !reflect.DeepEqual(missing, []string{"ghost"}) {
		t.Fatalf("got missing %v", missing)
	}
}

func TestInterpolate_MissingSortedAndDeduped(t *testing.T) {
	_, missing := Interpolate("{{b}} {{a}} {{b}}", nil)
	if !reflect.DeepEqual(missing, []string{"a", "b"}) {
		t.Fatalf("got missing %v", missing)
	}
}

func TestInterpolate_EmptyNameKeptLiterally(t *testing.T) {
	out, missing := Interpolate("x {{}} y", map[string]string{"": "nope"})
	if out != "x {{}} y" {
		t.Fatalf("got %q", out)
	}
	if len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
}

func TestInterpolate_UnterminatedCopiedThrough(t *testing.T) {
	out, missing := Interpolate("start {{oops", map[string]string{"oops": "v"})
	if out != "start {{oops" {
		t.Fatalf("got %q", out)
	}
	if len(missing) != 0 {
		t.Fatalf("unexpected missing: %v", missing)
	}
}

func TestInterpolate_MultibyteContent(t *testing.T) {
	out, _ := Interpolate("héllo {{name}} 世界", map[string]string{"name": "ñ"})
	if out != "héllo ñ 世界" {
		t.Fatalf("got %q", out)
	}
}

func TestInterpolate_Idempotent(t *testing.T) {
	values := map[string]string{"a": "1"}
	first, _ := Interpolate("{{a}} {{b}}", values)
	second, _ := Interpolate("{{a}} {{b}}", values)
	if first != second {
		t.Fatalf("not idempotent: %q != %q", first, second)
	}
}

func TestNode_MissingVariableMessage(t *testing.T) {
	seg := Node(model.Node{ID: "n1", Label: "System", Kind: model.NodeKindSystem, Content: "Hi {{ghost}}"}, nil)
	if seg.Rendered != "Hi {{ghost}}" {
		t.Fatalf("got %q", seg.Rendered)
	}
	if !reflect.DeepEqual(seg.MissingVariables, []string{"ghost"}) {
		t.Fatalf("got missing %v", seg.MissingVariables)
	}
	if len(seg.Messages) != 1 || seg.Messages[0].Code != model.CodeMissingVariable {
		t.Fatalf("expected one missing_variable message, got %v", seg.Messages)
	}
	if seg.Messages[0].Severity != model.SeverityWarn {
		t.Fatalf("expected warn severity, got %s", seg.Messages[0].Severity)
	}
}

func TestNode_CleanRenderHasNoMessages(t *testing.T) {
	seg := Node(model.Node{ID: "n1", Label: "User", Kind: model.NodeKindUser, Content: "Ask: {{q}}"},
		map[string]string{"q": "hi"})
	if seg.Rendered != "Ask: hi" {
		t.Fatalf("got %q", seg.Rendered)
	}
	if len(seg.Messages) != 0 {
		t.Fatalf("unexpected messages: %v", seg.Messages)
	}
}

func TestNode_EmptyContent(t *testing.T) {
	seg := Node(model.Node{ID: "n1", Label: "Empty", Kind: model.NodeKindText}, nil)
	if seg.Rendered != "" {
		t.Fatalf("got %q", seg.Rendered)
	}
	if len(seg.MissingVariables) != 0 {
		t.Fatalf("unexpected missing: %v", seg.MissingVariables)
	}
}
