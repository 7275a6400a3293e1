package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestTableAlignsColumns(t *testing.T) {
	tbl := Table{Header: []string{"id", "name", "state"}}
	tbl.Append("g-1", "web", "running")
	tbl.Append("g-22", "database", "stopped")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "" +
		"ID    NAME      STATE\n" +
		"g-1   web       running\n" +
		"g-22  database  stopped\n"
	if buf.String() != want {
		t.Fatalf("Render =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestTableUsesDisplayWidth(t *testing.T) {
	tbl := Table{Header: []string{"name", "node"}}
	tbl.Append("日本", "n1")
	tbl.Append("ab", "n2")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", lines)
	}
	if lines[1] != "日本  n1" {
		t.Fatalf("wide row = %q", lines[1])
	}
	if lines[2] != "ab    n2" {
		t.Fatalf("narrow row = %q", lines[2])
	}
}

func TestTableTruncatesLongCells(t *testing.T) {
	tbl := Table{MaxCell: 6}
	tbl.Append("abcdefghij", "x")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := buf.String(); got != "abcde…  x\n" {
		t.Fatalf("Render = %q", got)
	}
}

func TestTableRaggedRows(t *testing.T) {
	tbl := Table{Header: []string{"a"}}
	tbl.Append("1", "2")

	var buf bytes.Buffer
	if err := tbl.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := buf.String(); got != "A\n1  2\n" {
		t.Fatalf("Render = %q", got)
	}
}

func TestEmptyTableWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Table{}).Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestKeyValues(t *testing.T) {
	var buf bytes.Buffer
	if err := KeyValues(&buf, [2]string{"user", "alice"}, [2]string{"roles", "admin"}); err != nil {
		t.Fatalf("KeyValues: %v", err)
	}
	want := "user:  alice\nroles: admin\n"
	if buf.String() != want {
		t.Fatalf("KeyValues = %q, want %q", buf.String(), want)
	}
}
