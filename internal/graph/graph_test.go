package graph

import (
	"context"
	"errors"
	"testing"
)

type fakeWriteLock struct {
	lockErr   error
	unlockErr error
	held      bool
	locks     int
}

func (l *fakeWriteLock) Lock(ctx context.Context) error {
	if l.lockErr != nil {
		return l.lockErr
	}
	l.held = true
	l.locks++
	return nil
}

func (l *fakeWriteLock) Unlock() error {
	l.held = false
	return l.unlockErr
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryRouterDB()

	// no write lock installed
	if err := db.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	if err := db.Release(); err != nil {
		t.Fatalf("Release() = %v", err)
	}

	l := &fakeWriteLock{}
	db.SetWriteLock(l)
	if err := db.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() = %v", err)
	}
	if !l.held {
		t.Error("write lock not held after Acquire")
	}
	if err := db.Release(); err != nil {
		t.Fatalf("Release() = %v", err)
	}
	if l.held {
		t.Error("write lock held after Release")
	}

	unlockErr := errors.New("connection lost")
	l.unlockErr = unlockErr
	if err := db.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := db.Release(); !errors.Is(err, unlockErr) {
		t.Errorf("Release() = %v, want %v", err, unlockErr)
	}
	l.unlockErr = nil

	lockErr := errors.New("timeout")
	l.lockErr = lockErr
	if err := db.Acquire(ctx); !errors.Is(err, lockErr) {
		t.Fatalf("Acquire() = %v, want %v", err, lockErr)
	}

	// a failed Acquire leaves the database unlocked
	l.lockErr = nil
	if err := db.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() after failure = %v", err)
	}
	if err := db.Release(); err != nil {
		t.Fatal(err)
	}
	if l.locks != 3 {
		t.Errorf("locks = %d, want 3", l.locks)
	}
}
