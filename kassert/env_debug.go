//go:build debug

package kassert

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Env is an alias to the Environment type.
// This allows consumers to have a field of type Env
// which is an empty struct in non-debug builds
// and is a pointer to a proper assertion environment in debug builds.
type Env = *Environment

// Environment holds the set of rules deciding
// which runtime checks are performed.
//
// The rule set is fixed at construction,
// so Enabled is safe for concurrent use.
type Environment struct {
	// Dot-joined prefixes, stored without the trailing wildcard.
	// The empty string is the top-level "*" rule.
	prefixes []string

	// Exact paths excluded from prefix matches.
	excludes []string

	// Exact matches.
	exacts []string

	// By default, failures cause a panic.
	// OnlyLogFailures sets the log field,
	// indicating that HandleAssertionFailure should only log instead.
	log *slog.Logger
}

// EnvironmentFromString parses a comma-separated string containing enable rules.
func EnvironmentFromString(in string) (*Environment, error) {
	var e Environment
	if in == "" {
		// Splitting the empty string would produce one empty rule,
		// which would be rejected; an empty rule set is valid, so return early.
		return &e, nil
	}

	for _, r := range strings.Split(in, ",") {
		if err := e.parseSingleRule(r); err != nil {
			return nil, err
		}
	}

	return &e, nil
}

func (e *Environment) parseSingleRule(r string) error {
	if len(r) == 0 {
		return errors.New("received empty rule")
	}

	if strings.Contains(r, "..") {
		return fmt.Errorf("invalid rule %q: dot-separated sections may not be empty", r)
	}

	if strings.Contains(r, "!") {
		exRule, wasPrefix := strings.CutPrefix(r, "!")
		if !wasPrefix {
			return fmt.Errorf("invalid rule %q: ! may only occur at the start of the rule, indicating an exclusion", r)
		}
		if strings.Contains(exRule, "*") {
			return fmt.Errorf("invalid rule %q: wildcards are not allowed with exclusion rules", r)
		}
		e.excludes = append(e.excludes, exRule)
		return nil
	}

	nStars := strings.Count(r, "*")
	if nStars > 1 {
		return fmt.Errorf("invalid rule %q: may contain at most one *, and it must be at the end", r)
	}
	if nStars == 1 {
		if r == "*" {
			e.prefixes = append(e.prefixes, "")
			return nil
		}

		p, isPrefix := strings.CutSuffix(r, ".*")
		if !isPrefix {
			return fmt.Errorf("invalid rule %q: * only allowed as last element of dot-separated rule", r)
		}
		e.prefixes = append(e.prefixes, p)
		return nil
	}

	e.exacts = append(e.exacts, r)
	return nil
}

// OnlyLogFailures configures e to log assertion failures
// at Error level to the given logger,
// instead of the default behavior of panicking.
//
// OnlyLogFailures must be called before any concurrent use of e.
// Once failure logging is enabled, it may not be disabled.
func (e *Environment) OnlyLogFailures(log *slog.Logger) {
	e.log = log
}

// HandleAssertionFailure marks the given error as a failure.
// The default behavior is to panic.
// However, if e.OnlyLogFailures was called before,
// then the error is only logged.
//
// If the given error is nil, HandleAssertionFailure panics.
func (e *Environment) HandleAssertionFailure(err error) {
	if err == nil {
		panic(errors.New("BUG: HandleAssertionFailure called with nil error"))
	}

	if e.log == nil {
		panic(fmt.Errorf("assertion failure: %w", err))
	}

	e.log.Error("Assertion failure", "err", err)
}

// Enabled reports whether the given check path is enabled.
// Prefix rules are considered first; a prefix match can still be
// invalidated by an exclusion rule for the exact path.
// If no prefix rule matched, exact rules are consulted.
func (e *Environment) Enabled(rule string) bool {
	isPrefixMatch := false
	for _, p := range e.prefixes {
		if p == "" || rule == p || strings.HasPrefix(rule, p+".") {
			isPrefixMatch = true
			break
		}
	}

	if isPrefixMatch {
		for _, ex := range e.excludes {
			if ex == rule {
				// Exclude rule takes precedence.
				return false
			}
		}
		return true
	}

	for _, exact := range e.exacts {
		if exact == rule {
			return true
		}
	}

	return false
}
