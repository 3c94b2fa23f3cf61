package app

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParserWorkerCountUsesConfiguredValue(t *testing.T) {
	assert.Equal(t, 7, parserWorkerCount(7))
}

func TestParserWorkerCountDefaultsToCoresMinusOne(t *testing.T) {
	want := runtime.NumCPU() - 1
	if want < 1 {
		want = 1
	}
	assert.Equal(t, want, parserWorkerCount(0))
}
