package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	old := GetVersion()
	t.Cleanup(func() { SetVersion(old) })
	SetVersion("2.3.4")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "poeadmin version 2.3.4\n", out)
}

func TestSelfUpdate_RefusesDevelopmentVersion(t *testing.T) {
	old := GetVersion()
	t.Cleanup(func() { SetVersion(old) })

	for _, v := range []string{"", "dev"} {
		SetVersion(v)
		_, err := execute(t, "self-update")
		assert.ErrorIs(t, err, errDevelopmentVersion, "version %q", v)
	}
}
