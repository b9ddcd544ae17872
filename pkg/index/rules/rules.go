// Package rules implements the indexer's rule engine: glob-based
// accept/reject rules and child-presence accept/reject rules, composed so
// that a path is indexed only if it satisfies every accept rule and no
// reject rule. The glob matching follows mutagen's use of doublestar for
// ignore-pattern matching (pkg/synchronization/core/ignore/mutagen).
package rules

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Action indicates what a single rule resolves to for a candidate path.
type Action int

const (
	// ActionNeutral indicates the rule does not apply to this path.
	ActionNeutral Action = iota
	// ActionAccept indicates the rule explicitly accepts this path.
	ActionAccept
	// ActionReject indicates the rule explicitly rejects this path (and, for
	// a directory, its entire subtree).
	ActionReject
)

// Rule is a single indexing rule.
type Rule interface {
	// Evaluate returns how this rule treats the candidate path. relativePath
	// is relative to the location root and uses forward slashes.
	// isDirectory indicates whether the candidate is a directory.
	Evaluate(relativePath string, isDirectory bool) (Action, error)
}

// globRule is a glob-based accept or reject rule.
type globRule struct {
	pattern string
	reject  bool
}

// NewGlobAcceptRule creates a rule that accepts paths matching pattern.
func NewGlobAcceptRule(pattern string) Rule {
	return &globRule{pattern: pattern}
}

// NewGlobRejectRule creates a rule that rejects paths matching pattern.
func NewGlobRejectRule(pattern string) Rule {
	return &globRule{pattern: pattern, reject: true}
}

func (r *globRule) Evaluate(relativePath string, _ bool) (Action, error) {
	matched, err := doublestar.Match(r.pattern, relativePath)
	if err != nil {
		return ActionNeutral, err
	}
	if !matched {
		// Also try matching against the base name, so that a pattern like
		// "*.tmp" matches regardless of directory depth.
		matched, err = doublestar.Match(r.pattern, filepath.Base(relativePath))
		if err != nil {
			return ActionNeutral, err
		}
	}
	if !matched {
		return ActionNeutral, nil
	}
	if r.reject {
		return ActionReject, nil
	}
	return ActionAccept, nil
}

// childPresenceRule accepts or rejects a directory based on whether a named
// child exists within it (e.g. rejecting any directory containing ".git").
type childPresenceRule struct {
	childName string
	reject    bool
}

// NewChildPresenceAcceptRule creates a rule that accepts a directory if it
// contains a child named childName.
func NewChildPresenceAcceptRule(childName string) Rule {
	return &childPresenceRule{childName: childName}
}

// NewChildPresenceRejectRule creates a rule that rejects a directory (and
// its entire subtree) if it contains a child named childName.
func NewChildPresenceRejectRule(childName string) Rule {
	return &childPresenceRule{childName: childName, reject: true}
}

func (r *childPresenceRule) Evaluate(relativePath string, isDirectory bool) (Action, error) {
	if !isDirectory {
		return ActionNeutral, nil
	}
	// relativePath alone cannot be checked for a child on disk, so this
	// method always returns ActionNeutral. Set.Evaluate does not call it: it
	// passes the absolute candidate path to evaluateChildPresence instead.
	return ActionNeutral, nil
}

// Set is a composed collection of accept and reject rules, evaluated per
// the indexer's composition semantics: a path is indexed only if it
// satisfies every accept rule (or there are no accept rules at all) and no
// reject rule.
type Set struct {
	rules []Rule
}

// NewSet constructs a Set from the given rules, evaluated in order.
func NewSet(rules ...Rule) *Set {
	return &Set{rules: rules}
}

// Decision is the aggregate result of evaluating a Set against a candidate.
type Decision struct {
	// Indexed indicates whether the path should be indexed.
	Indexed bool
	// SkipSubtree indicates that, for a directory, the entire subtree should
	// be skipped without being walked at all (a reject-rule short circuit).
	SkipSubtree bool
}

// Evaluate runs every rule in the set against a candidate path, given its
// absolute location (used for child-presence checks) and its path relative
// to the location root (used for glob checks).
func (s *Set) Evaluate(absolutePath, relativePath string, isDirectory bool) (Decision, error) {
	allAccepted := true
	hasAcceptRules := false

	for _, rule := range s.rules {
		var action Action
		var err error

		switch typed := rule.(type) {
		case *childPresenceRule:
			action, err = evaluateChildPresence(typed, absolutePath, isDirectory)
		default:
			action, err = rule.Evaluate(relativePath, isDirectory)
		}
		if err != nil {
			return Decision{}, err
		}

		if action == ActionReject {
			return Decision{Indexed: false, SkipSubtree: isDirectory}, nil
		}
		if isAcceptOnlyRule(rule) {
			hasAcceptRules = true
			if action != ActionAccept {
				allAccepted = false
			}
		}
	}

	if hasAcceptRules {
		return Decision{Indexed: allAccepted}, nil
	}
	return Decision{Indexed: true}, nil
}

func isAcceptOnlyRule(rule Rule) bool {
	switch typed := rule.(type) {
	case *globRule:
		return !typed.reject
	case *childPresenceRule:
		return !typed.reject
	default:
		return false
	}
}

func evaluateChildPresence(rule *childPresenceRule, absolutePath string, isDirectory bool) (Action, error) {
	if !isDirectory {
		return ActionNeutral, nil
	}
	childPath := filepath.Join(absolutePath, rule.childName)
	if _, err := os.Lstat(childPath); err != nil {
		if os.IsNotExist(err) {
			return ActionNeutral, nil
		}
		return ActionNeutral, err
	}
	if rule.reject {
		return ActionReject, nil
	}
	return ActionAccept, nil
}
