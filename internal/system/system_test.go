package system

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testEvent struct {
	value int
}

func TestEmitAndListenDeliversInOrder(t *testing.T) {
	s := New[testEvent]("test")
	s.Emit(testEvent{1})
	s.Emit(testEvent{2})

	events, errc := s.Listen()
	require.Equal(t, 1, (<-events).value)
	require.Equal(t, 2, (<-events).value)

	s.Stop()
	_, ok := <-events
	require.False(t, ok)
	select {
	case err := <-errc:
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func TestListenTwicePanics(t *testing.T) {
	s := New[testEvent]("test")
	_, _ = s.Listen()
	defer func() {
		require.NotNil(t, recover())
	}()
	_, _ = s.Listen()
}

func TestEmitAfterStopIsNoOp(t *testing.T) {
	s := New[testEvent]("test")
	s.Stop()
	s.Emit(testEvent{1})
}

func TestPipeFailurePropagates(t *testing.T) {
	s := New[testEvent]("test")
	s.AddPipe(func() error {
		return errors.New("boom")
	})

	events, errc := s.Listen()

	select {
	case err := <-errc:
		var pf *PipeFailure
		require.ErrorAs(t, err, &pf)
	case <-events:
		t.Fatal("expected pipe failure, got an event")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pipe failure")
	}
}

func TestAddPipeAfterStopPanics(t *testing.T) {
	s := New[testEvent]("test")
	s.Stop()
	defer func() {
		require.NotNil(t, recover())
	}()
	s.AddPipe(func() error { return nil })
}

func TestRegisterLookupDeregister(t *testing.T) {
	s := New[testEvent]("registered")
	Register("widget", "1", s)
	defer Deregister("widget", "1")

	found, ok := Lookup[*System[testEvent]]("widget", "1")
	require.True(t, ok)
	require.Same(t, s, found)

	Deregister("widget", "1")
	_, ok = Lookup[*System[testEvent]]("widget", "1")
	require.False(t, ok)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("widget", "2", 1)
	defer Deregister("widget", "2")

	defer func() {
		require.NotNil(t, recover())
	}()
	Register("widget", "2", 2)
}

func TestLookupWrongTypeFails(t *testing.T) {
	Register("widget", "3", "a string, not an int")
	defer Deregister("widget", "3")

	_, ok := Lookup[int]("widget", "3")
	require.False(t, ok)
}
