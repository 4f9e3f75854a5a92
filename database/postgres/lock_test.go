package postgres

import (
	"testing"
)

func TestLockKey_Deterministic(t *testing.T) {
	a := LockKey("dbterra_migrate_execute")
	b := LockKey("dbterra_migrate_execute")
	if a != b {
		t.Errorf("same name must hash to the same key: %d vs %d", a, b)
	}
}

func TestLockKey_DistinguishesNames(t *testing.T) {
	if LockKey("alpha") == LockKey("beta") {
		t.Error("different lock names should not collide")
	}
}

func TestLockKey_EmptyNameIsStable(t *testing.T) {
	if LockKey("") != LockKey("") {
		t.Error("empty name must still be deterministic")
	}
}
