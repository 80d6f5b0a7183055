package corestate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chessrl/core/internal/corestate"
)

func TestEmitNilChannelIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		corestate.Emit(nil, nil, corestate.Event{Kind: corestate.EventCycleStarted})
	})
}

func TestEmitDeliversOnOpenChannel(t *testing.T) {
	ch := make(chan corestate.Event, 1)
	done := make(chan struct{})
	corestate.Emit(ch, done, corestate.Event{Kind: corestate.EventCycleCompleted})

	got := <-ch
	assert.Equal(t, corestate.EventCycleCompleted, got.Kind)
}

func TestEmitUnblocksOnDone(t *testing.T) {
	ch := make(chan corestate.Event) // unbuffered, no reader
	done := make(chan struct{})
	close(done)

	done2 := make(chan struct{})
	go func() {
		corestate.Emit(ch, done, corestate.Event{Kind: corestate.EventWarning})
		close(done2)
	}()
	<-done2
}

func TestEventKindStringValues(t *testing.T) {
	assert.Equal(t, "cycle_started", corestate.EventCycleStarted.String())
	assert.Equal(t, "warning", corestate.EventWarning.String())
}
