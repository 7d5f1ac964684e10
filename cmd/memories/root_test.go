package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	cmd := newRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "capture")
	assert.Contains(t, names, "sync")
	assert.Contains(t, names, "status")
	assert.Contains(t, names, "retry")
}

func TestCaptureRequiresText(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"capture"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text")
}

func TestCaptureStoryRequiresAudio(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"capture", "--kind", "story", "--text", "a story with no recording"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--audio")
}

func TestRetryRejectsConflictingArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"retry", "some-id", "extra-arg"})

	err := cmd.Execute()
	require.Error(t, err)
}
