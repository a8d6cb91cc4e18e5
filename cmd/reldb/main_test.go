package main

import (
	"strings"
	"testing"

	"github.com/andreyvit/diff"
	"github.com/stretchr/testify/require"

	"reldb/internal/engine"
)

// TestRenderTableMatchesGolden pins the exact tablewriter box format
// spec.md §6 illustrates (ASCII borders, unformatted headers) so a
// future tablewriter upgrade that changes the box drawing gets caught
// with a readable diff instead of a wall of escaped text.
func TestRenderTableMatchesGolden(t *testing.T) {
	res := &engine.Result{
		Kind:    engine.ResultRows,
		Columns: []string{"a", "b"},
		Rows: [][]interface{}{
			{int32(1), "hello"},
			{int32(2), "world"},
		},
	}

	var out strings.Builder
	renderTable(&out, res)

	want := `+---+-------+
| a | b     |
+---+-------+
| 1 | hello |
| 2 | world |
+---+-------+
(2 rows)
`
	got := out.String()
	if got != want {
		t.Errorf("rendered table did not match golden:\n%s", diff.LineDiff(want, got))
	}
	require.Contains(t, got, "hello")
}
