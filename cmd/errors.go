package cmd

import (
	"context"
	"errors"
)

// errConfig/errDatastore/errInterrupted are sentinels subcommands wrap their
// failures in so Execute can map them to §6's exit codes without each
// subcommand needing to know the numeric codes itself.
var (
	errConfig     = errors.New("cmd: configuration error")
	errDatastore  = errors.New("cmd: unrecoverable datastore failure")
	errInterrupted = errors.New("cmd: interrupted")
)

func isConfigError(err error) bool {
	return errors.Is(err, errConfig)
}

func isDatastoreError(err error) bool {
	return errors.Is(err, errDatastore)
}

func isInterrupted(err error) bool {
	return errors.Is(err, errInterrupted) || errors.Is(err, context.Canceled)
}
