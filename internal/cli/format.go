package cli

import (
	"fmt"
	"strings"

	"github.com/linaldb/linal/pkg/engine"
)

// RenderOutput formats one output envelope as terminal text.
func RenderOutput(out *engine.Output) string {
	if out == nil {
		return ""
	}
	var sb strings.Builder
	switch out.Kind {
	case engine.KindError:
		sb.WriteString(fmt.Sprintf("error (%s): %s\n", out.Code, out.Message))
	case engine.KindPlan:
		sb.WriteString(out.Plan)
		sb.WriteString("\n")
	case engine.KindScalar, engine.KindVector, engine.KindMatrix, engine.KindTensor:
		if out.Value != nil {
			sb.WriteString(out.Value.String())
			sb.WriteString("\n")
		}
		if out.Message != "" {
			sb.WriteString(out.Message)
			sb.WriteString("\n")
		}
	default:
		if out.Table != nil {
			sb.WriteString(renderTable(out.Table))
		}
		if out.Message != "" {
			sb.WriteString(out.Message)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderTable pads columns to their widest cell.
func renderTable(t *engine.Table) string {
	if len(t.Columns) == 0 {
		return ""
	}
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(t.Rows))
	for ri, row := range t.Rows {
		cells[ri] = make([]string, len(row))
		for ci, v := range row {
			s := v.String()
			cells[ri][ci] = s
			if ci < len(widths) && len(s) > widths[ci] {
				widths[ci] = len(s)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(vals []string) {
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = pad(v, widths[i])
		}
		sb.WriteString(strings.Join(parts, " | "))
		sb.WriteString("\n")
	}
	writeRow(t.Columns)
	seps := make([]string, len(t.Columns))
	for i := range seps {
		seps[i] = strings.Repeat("-", widths[i])
	}
	sb.WriteString(strings.Join(seps, "-+-"))
	sb.WriteString("\n")
	for _, row := range cells {
		writeRow(row)
	}
	return sb.String()
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
