package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Reader", "WPM", "WCPM"}
	rows := [][]string{
		{"Ann", "50.0", "48.0"},
		{"Cleo", "7.5", "7.0"},
		{"山田", "100.0", "99.0"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	want := []string{
		"Reader    WPM  WCPM",
		"Ann      50.0  48.0",
		"Cleo      7.5   7.0",
		"山田    100.0  99.0",
	}
	for i, line := range want {
		if lines[i] != line {
			t.Fatalf("line %d = %q, want %q", i, lines[i], line)
		}
	}
}

func TestFormatTableEmpty(t *testing.T) {
	if lines := formatTable(nil, nil, nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
}
