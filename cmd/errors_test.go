package cmd

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForConfigError(t *testing.T) {
	err := fmt.Errorf("%w: bad flag", errConfig)
	assert.Equal(t, exitConfigError, exitCodeFor(err))
}

func TestExitCodeForDatastoreError(t *testing.T) {
	err := fmt.Errorf("%w: redis down", errDatastore)
	assert.Equal(t, exitDatastoreFailure, exitCodeFor(err))
}

func TestExitCodeForInterrupted(t *testing.T) {
	assert.Equal(t, exitInterrupted, exitCodeFor(fmt.Errorf("%w", errInterrupted)))
	assert.Equal(t, exitInterrupted, exitCodeFor(context.Canceled))
}

func TestExitCodeForUnknownError(t *testing.T) {
	assert.Equal(t, 1, exitCodeFor(errors.New("something else")))
}
