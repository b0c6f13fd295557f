package sshrun

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSHArgs(t *testing.T) {
	h := New("remote.example.com")
	h.Port = 2222
	h.User = "deploy"
	h.Cipher = "aes128-ctr"

	args := strings.Join(h.sshArgs(), " ")

	assert.Contains(t, args, "-C")
	assert.Contains(t, args, "-o BatchMode=yes")
	assert.Contains(t, args, "-o ServerAliveInterval=5")
	assert.Contains(t, args, "-o UserKnownHostsFile=/dev/null")
	assert.Contains(t, args, "-o StrictHostKeyChecking=no")
	assert.Contains(t, args, "-o LogLevel=ERROR")
	assert.Contains(t, args, "-c aes128-ctr")
	assert.Contains(t, args, "-p 2222")
	assert.Contains(t, args, "-l deploy")
	assert.Contains(t, args, "-o ConnectTimeout=5")
}

func TestSSHArgsHostKeysOn(t *testing.T) {
	h := New("host")
	h.CheckHostKeys = true

	args := strings.Join(h.sshArgs(), " ")
	assert.NotContains(t, args, "StrictHostKeyChecking")
	assert.NotContains(t, args, "UserKnownHostsFile")
}

func TestSSHArgsIdentity(t *testing.T) {
	t.Setenv(IdentityEnv, "/home/deploy/.ssh/id_special")

	args := strings.Join(New("host").sshArgs(), " ")
	assert.Contains(t, args, "-o IdentityFile=/home/deploy/.ssh/id_special")
}

func TestPutsPrefix(t *testing.T) {
	h := New("db1")
	h.User = "admin"
	h.Port = 22022

	var got string
	h.Output = func(line string) { got = line }

	h.Puts("ready")

	assert.Contains(t, got, "admin@db1:22022")
	assert.True(t, strings.HasSuffix(got, " ready"), "line should end with the payload: %q", got)
}

func TestPutsPadding(t *testing.T) {
	h := New("x")
	h.PrefixPadLength = 10

	var got string
	h.Output = func(line string) { got = line }

	h.Puts("y")

	// Tag is [x] plus padding up to 10 columns, then a space and the line.
	assert.True(t, strings.HasSuffix(got, "]        y"), "got %q", got)
}

func TestPutsReplacesInvalidUTF8(t *testing.T) {
	h := New("host")

	var got string
	h.Output = func(line string) { got = line }

	h.Puts("bad \xff byte")
	assert.Contains(t, got, "bad ? byte")
}

func TestEscapeSingleQuotes(t *testing.T) {
	assert.Equal(t, `it'"'"'s`, escapeSingleQuotes("it's"))
}
