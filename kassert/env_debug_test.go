//go:build debug

package kassert_test

import (
	"testing"

	"github.com/kestrel-watch/kestrel/kassert"
	"github.com/stretchr/testify/require"
)

func TestEnvironment_enabled(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		rules string
		path  string
		want  bool
	}{
		{rules: "", path: "heartbeat.resume_balanced", want: false},
		{rules: "*", path: "heartbeat.resume_balanced", want: true},
		{rules: "*", path: "hitch", want: true},
		{rules: "heartbeat.*", path: "heartbeat.resume_balanced", want: true},
		{rules: "heartbeat.*", path: "heartbeat", want: true},
		{rules: "heartbeat.*", path: "hitch.resume_balanced", want: false},
		{rules: "heartbeat.resume_balanced", path: "heartbeat.resume_balanced", want: true},
		{rules: "heartbeat.resume_balanced", path: "heartbeat.resume", want: false},
		{rules: "heartbeat.resume_balanced", path: "heartbeat.resume_balanced_x", want: false},
		{rules: "heartbeat.*,!heartbeat.kill_registered", path: "heartbeat.kill_registered", want: false},
		{rules: "heartbeat.*,!heartbeat.kill_registered", path: "heartbeat.resume_balanced", want: true},
	} {
		env, err := kassert.EnvironmentFromString(tc.rules)
		require.NoError(t, err)
		require.Equalf(t, tc.want, env.Enabled(tc.path), "rules=%q path=%q", tc.rules, tc.path)
	}
}

func TestEnvironmentFromString_invalidRules(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"a..b",
		"a.*.b",
		"a.b*",
		"*.*",
		"a.!b",
		"!a.*",
		"a,,b",
	} {
		_, err := kassert.EnvironmentFromString(in)
		require.Errorf(t, err, "input %q should be rejected", in)
	}
}

func TestEnvironment_handleAssertionFailure(t *testing.T) {
	t.Parallel()

	env, err := kassert.EnvironmentFromString("*")
	require.NoError(t, err)

	// Default behavior panics.
	require.Panics(t, func() {
		env.HandleAssertionFailure(assertErr{})
	})

	// A nil error is always a bug.
	require.Panics(t, func() {
		env.HandleAssertionFailure(nil)
	})
}

type assertErr struct{}

func (assertErr) Error() string { return "misuse" }
