//go:build !debug

package kassert

// Env is the environment, a pseudo-global state indicating
// which protocol-misuse checks are enabled.
//
// Watchdog types that support these checks always accept a kassert.Env.
// In non-debug builds, Env is an empty struct so as to not consume any memory.
// In debug builds, Env is a type alias to *Environment
// (a type which is only compiled into debug builds).
//
// The non-debug Env deliberately does not have any defined methods.
// User code depending on the assertion environment should also be guarded
// behind the build tag "debug".
type Env struct{}
