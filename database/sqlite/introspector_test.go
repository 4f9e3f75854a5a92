package sqlite

import (
	"testing"
)

func TestViewBodyFromCreate(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"CREATE VIEW v AS SELECT 1", "SELECT 1"},
		{"CREATE VIEW v AS SELECT id FROM t;", "SELECT id FROM t"},
		{"create view v as select a, b from t", "select a, b from t"},
	}
	for _, tc := range cases {
		if got := viewBodyFromCreate(tc.input); got != tc.want {
			t.Errorf("viewBodyFromCreate(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestDriverCapabilities(t *testing.T) {
	caps := NewDriver().Capabilities()
	if caps.AdvisoryLocks {
		t.Error("SQLite has no advisory locks")
	}
	if caps.ConcurrentIndexes {
		t.Error("SQLite has no CONCURRENTLY")
	}
	if caps.AlterColumnType {
		t.Error("SQLite cannot alter a column type in place")
	}
	if caps.DropTableCascade {
		t.Error("SQLite's DROP TABLE has no CASCADE clause")
	}
	if caps.ViewOptions {
		t.Error("SQLite views support neither CHECK OPTION nor security_barrier")
	}
}
