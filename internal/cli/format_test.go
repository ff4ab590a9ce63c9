package cli

import (
	"strings"
	"testing"

	"github.com/linaldb/linal/pkg/engine"
	"github.com/linaldb/linal/pkg/value"
)

func TestRenderTablePadsColumns(t *testing.T) {
	out := &engine.Output{
		Kind: engine.KindDataset,
		Table: &engine.Table{
			Columns: []string{"id", "name"},
			Rows: [][]value.Value{
				{value.NewInt(1), value.NewString("alice")},
				{value.NewInt(2), value.NewString("b")},
			},
		},
		Message: "2 rows",
	}
	got := RenderOutput(out)
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, separator, 2 rows, message; got %d lines:\n%s", len(lines), got)
	}
	if !strings.Contains(lines[0], "id") || !strings.Contains(lines[0], "name") {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines[2]) != len(lines[3]) {
		t.Errorf("rows not padded evenly: %q vs %q", lines[2], lines[3])
	}
}

func TestRenderScalarAndError(t *testing.T) {
	v := value.NewFloat(3.5)
	out := &engine.Output{Kind: engine.KindScalar, Value: &v}
	if got := RenderOutput(out); !strings.Contains(got, "3.5") {
		t.Errorf("scalar render = %q", got)
	}

	errOut := &engine.Output{Kind: engine.KindError, Code: "not_found", Message: "dataset not found: x"}
	if got := RenderOutput(errOut); !strings.Contains(got, "not_found") {
		t.Errorf("error render = %q", got)
	}
}

func TestRenderPlan(t *testing.T) {
	out := &engine.Output{Kind: engine.KindPlan, Plan: "Project(id)\n  Scan(u)"}
	if got := RenderOutput(out); !strings.HasPrefix(got, "Project(id)") {
		t.Errorf("plan render = %q", got)
	}
}
