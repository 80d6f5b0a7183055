package main

import (
	"fmt"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/chessrl/core/internal/corestate"
)

func discardLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
}

func TestExitCodeNilIsZero(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil, discardLogger()))
}

func TestExitCodeConfigInvalidIsTwo(t *testing.T) {
	err := corestate.New(corestate.CodeConfigInvalid, "config.Load", "bad field")
	assert.Equal(t, 2, exitCode(err, discardLogger()))
}

func TestExitCodeCheckpointValidationIsOne(t *testing.T) {
	err := corestate.New(corestate.CodeCheckpointValidationFailed, "checkpoint.Load", "corrupt")
	assert.Equal(t, 1, exitCode(err, discardLogger()))

	err = corestate.New(corestate.CodeCheckpointFormatMismatch, "checkpoint.Load", "wrong format")
	assert.Equal(t, 1, exitCode(err, discardLogger()))
}

func TestExitCodeOtherErrorIsThree(t *testing.T) {
	assert.Equal(t, 3, exitCode(fmt.Errorf("boom"), discardLogger()))

	err := corestate.New(corestate.CodeNonFiniteUpdate, "approx.TrainBatch", "nan loss")
	assert.Equal(t, 3, exitCode(err, discardLogger()))
}
