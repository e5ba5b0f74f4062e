package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/formzs/poe-to-gpt/cmd"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "dev", version)
}

func TestSetVersion(t *testing.T) {
	old := cmd.GetVersion()
	t.Cleanup(func() { cmd.SetVersion(old) })

	cmd.SetVersion(version)
	assert.Equal(t, version, cmd.GetVersion())
}
