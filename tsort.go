package main

import (
	"sort"
)

// topologicalSort orders items so that dependencies come before their
// dependents, using DFS with three-color marking. Node visit order is
// sorted by id, so the output is deterministic. Returns false when a
// cycle makes a full ordering impossible.
func topologicalSort[T any](items []T, dependencies map[string][]string, getID func(T) string) ([]T, bool) {
	itemMap := make(map[string]T, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id := getID(item)
		itemMap[id] = item
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sorted []T
	visited := make(map[string]bool)
	visiting := make(map[string]bool)
	acyclic := true

	var visit func(string) bool
	visit = func(id string) bool {
		if visiting[id] {
			return false
		}
		if visited[id] {
			return true
		}

		visiting[id] = true
		deps := append([]string(nil), dependencies[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, exists := itemMap[dep]; !exists {
				continue
			}
			if !visit(dep) {
				acyclic = false
			}
		}
		visiting[id] = false
		visited[id] = true
		sorted = append(sorted, itemMap[id])
		return true
	}

	for _, id := range ids {
		if !visited[id] {
			if !visit(id) {
				acyclic = false
			}
		}
	}

	return sorted, acyclic
}
