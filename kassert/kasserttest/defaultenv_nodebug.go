//go:build !debug

package kasserttest

import "github.com/kestrel-watch/kestrel/kassert"

// DefaultEnv returns the no-op Env, in non-debug builds.
func DefaultEnv() kassert.Env {
	return kassert.Env{}
}

// NopEnv returns the no-op Env.
func NopEnv() kassert.Env {
	return kassert.Env{}
}
