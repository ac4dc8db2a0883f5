//go:build debug

package kasserttest

import "github.com/kestrel-watch/kestrel/kassert"

// DefaultEnv returns an assertion environment that enables all checks.
func DefaultEnv() kassert.Env {
	env, err := kassert.EnvironmentFromString("*")
	if err != nil {
		panic(err)
	}
	return env
}

// NopEnv returns an assertion environment that disables all checks.
// This should generally not be used, but it may help in tests
// that deliberately exercise the release-mode clamping behavior.
func NopEnv() kassert.Env {
	env, err := kassert.EnvironmentFromString("")
	if err != nil {
		panic(err)
	}
	return env
}
