package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetVerbosityClamps(t *testing.T) {
	defer SetVerbosity(int(Info))

	SetVerbosity(-3)
	assert.Equal(t, Error, Verbosity())

	SetVerbosity(2)
	assert.Equal(t, Debug, Verbosity())

	SetVerbosity(99)
	assert.Equal(t, Trace, Verbosity())
}

func TestInitFormats(t *testing.T) {
	defer Init(Options{Verbosity: int(Info)})

	for _, format := range []string{"console", "json", ""} {
		assert.NotPanics(t, func() {
			Init(Options{Verbosity: int(Trace), Format: format})
			Tracef("event=test format=%s", format)
			Warnf("event=test format=%s", format)
			Sync()
		})
		assert.Equal(t, Trace, Verbosity())
	}
}
