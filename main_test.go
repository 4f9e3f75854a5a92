package main

import (
	"testing"
)

func TestDetectDriver(t *testing.T) {
	cases := []struct {
		conn string
		want string
	}{
		{"postgres://localhost:5432/app", "postgres"},
		{"postgresql://localhost:5432/app", "postgres"},
		{"sqlite://app.db", "sqlite"},
		{"app.db", "sqlite"},
		{"data/app.sqlite", "sqlite"},
		{":memory:", "sqlite"},
		{"libsql://tenant.turso.io", "libsql"},
		{"host=localhost dbname=app", "postgres"},
	}
	for _, tc := range cases {
		if got := detectDriver(tc.conn); got != tc.want {
			t.Errorf("detectDriver(%q) = %q, want %q", tc.conn, got, tc.want)
		}
	}
}

func TestNewDriver(t *testing.T) {
	for _, name := range []string{"postgres", "sqlite", "libsql"} {
		drv, err := newDriver(name)
		if err != nil {
			t.Errorf("newDriver(%q) failed: %v", name, err)
		}
		if drv == nil {
			t.Errorf("newDriver(%q) returned nil", name)
		}
	}
	if _, err := newDriver("oracle"); err == nil {
		t.Error("unknown drivers must error")
	}
}

func TestNormalizeConnString(t *testing.T) {
	if got := normalizeConnString("sqlite", "sqlite://app.db"); got != "app.db" {
		t.Errorf("sqlite prefix must be stripped, got %q", got)
	}
	if got := normalizeConnString("postgres", "postgres://x"); got != "postgres://x" {
		t.Errorf("postgres conn strings must pass through, got %q", got)
	}
}

func TestFindClosestCommand(t *testing.T) {
	commands := []string{"apply", "version", "help"}

	if got := findClosestCommand("aply", commands, 2); got != "apply" {
		t.Errorf("expected apply, got %q", got)
	}
	if got := findClosestCommand("verison", commands, 2); got != "version" {
		t.Errorf("expected version, got %q", got)
	}
	if got := findClosestCommand("completely-different", commands, 2); got != "" {
		t.Errorf("expected no suggestion, got %q", got)
	}
}
