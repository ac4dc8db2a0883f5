//go:build debug

package khitch

import "fmt"

// assertFailure routes a protocol-misuse observation through the
// assertion environment, if the named check is enabled.
func (t *ThreadedWatchdog) assertFailure(rule, format string, args ...any) {
	if t.assertEnv == nil || !t.assertEnv.Enabled(rule) {
		return
	}
	t.assertEnv.HandleAssertionFailure(fmt.Errorf(format, args...))
}
