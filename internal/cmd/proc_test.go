package cmd

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignal(t *testing.T) {
	for arg, want := range map[string]syscall.Signal{
		"9":       syscall.SIGKILL,
		"SIGTERM": syscall.SIGTERM,
		"term":    syscall.SIGTERM,
		"HUP":     syscall.SIGHUP,
	} {
		sig, err := parseSignal(arg)
		require.NoError(t, err, arg)
		assert.Equal(t, want, sig, arg)
	}

	_, err := parseSignal("NOTASIGNAL")
	assert.Error(t, err)
}
