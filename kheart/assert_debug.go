//go:build debug

package kheart

import "fmt"

// assertFailure routes a protocol-misuse observation through the
// assertion environment, if the named check is enabled.
func (r *Registry) assertFailure(rule, format string, args ...any) {
	if r.assertEnv == nil || !r.assertEnv.Enabled(rule) {
		return
	}
	r.assertEnv.HandleAssertionFailure(fmt.Errorf(format, args...))
}
