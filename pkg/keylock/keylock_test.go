package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock_SerializesSameKey(t *testing.T) {
	l := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("p-1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.Len())
}

func TestLock_DifferentKeysDoNotBlock(t *testing.T) {
	l := New()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestLockAll_DeduplicatesAndReleases(t *testing.T) {
	l := New()
	unlock := l.LockAll("b", "a", "b")
	assert.Equal(t, 2, l.Len())
	unlock()
	assert.Equal(t, 0, l.Len())
}

func TestLockAll_OppositeOrdersDoNotDeadlock(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			l.LockAll("x", "y")()
		}()
		go func() {
			defer wg.Done()
			l.LockAll("y", "x")()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock")
	}
}
