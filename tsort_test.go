package main

import (
	"testing"
)

func TestTopologicalSort_OrdersDependenciesFirst(t *testing.T) {
	items := []string{"c", "a", "b"}
	deps := map[string][]string{
		"c": {"b"},
		"b": {"a"},
	}

	sorted, acyclic := topologicalSort(items, deps, func(s string) string { return s })
	if !acyclic {
		t.Fatal("expected acyclic graph")
	}
	if len(sorted) != 3 || sorted[0] != "a" || sorted[1] != "b" || sorted[2] != "c" {
		t.Errorf("unexpected order: %v", sorted)
	}
}

func TestTopologicalSort_DetectsCycleButKeepsAllNodes(t *testing.T) {
	items := []string{"a", "b"}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}

	sorted, acyclic := topologicalSort(items, deps, func(s string) string { return s })
	if acyclic {
		t.Error("expected cycle to be reported")
	}
	if len(sorted) != 2 {
		t.Errorf("cycle members must still be emitted, got %v", sorted)
	}
}

func TestTopologicalSort_IgnoresExternalDependencies(t *testing.T) {
	items := []string{"a"}
	deps := map[string][]string{
		"a": {"not-in-set"},
	}
	sorted, acyclic := topologicalSort(items, deps, func(s string) string { return s })
	if !acyclic || len(sorted) != 1 {
		t.Errorf("dependencies outside the item set must not constrain the sort: %v", sorted)
	}
}

func TestTopologicalSort_Deterministic(t *testing.T) {
	a := []string{"z", "m", "a"}
	b := []string{"a", "z", "m"}

	s1, _ := topologicalSort(a, nil, func(s string) string { return s })
	s2, _ := topologicalSort(b, nil, func(s string) string { return s })

	for i := range s1 {
		if s1[i] != s2[i] {
			t.Fatalf("order depends on input order: %v vs %v", s1, s2)
		}
	}
}
