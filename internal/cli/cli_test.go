package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSlotsCommand(t *testing.T) {
	out, err := run(t, "slots",
		"--expr", "30 9 * * MON",
		"--tz", "Europe/Berlin",
		"--from", "2030-03-01T00:00:00Z",
		"--to", "2030-03-15T00:00:00Z",
		"--duration", "45",
	)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	// 2030-03-04 is a Monday, Berlin is UTC+1 in early March
	assert.Equal(t, "2030-03-04T08:30:00Z\t2030-03-04T09:15:00Z", lines[0])
	assert.Equal(t, "2030-03-11T08:30:00Z\t2030-03-11T09:15:00Z", lines[1])
}

func TestSlotsCommandErrors(t *testing.T) {
	_, err := run(t, "slots")
	assert.Error(t, err)

	_, err = run(t, "slots", "--expr", "0 9 * * *", "--from", "tomorrow")
	assert.ErrorContains(t, err, "--from")

	_, err = run(t, "slots", "--expr", "not cron")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "studio-booking dev (commit=none, built=unknown)\n", out)
}
