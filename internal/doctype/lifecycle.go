package doctype

import (
	"fmt"

	"github.com/samber/lo"
)

// Transition is one row of a transition table. From lists the statuses the
// row applies to; FromAnyNonTerminal expands to every non-terminal status.
type Transition struct {
	From               []Status
	FromAnyNonTerminal bool
	Action             Action
	To                 Status
	Roles              []Role
	Remarks            RemarksRequirement
	// Approval marks approve/reject style actions that stamp the approver.
	Approval bool
}

// Rule is a resolved (from, action) entry.
type Rule struct {
	From     Status
	Action   Action
	To       Status
	Roles    []Role
	Remarks  RemarksRequirement
	Approval bool
}

type Lifecycle struct {
	Name          string
	Initial       Status
	RevisionEntry Status
	Terminal      []Status
	// Fulfilled statuses still accept transitions (e.g. close) but can no
	// longer be amended.
	Fulfilled   []Status
	Transitions []Transition
}

func (l Lifecycle) IsTerminal(s Status) bool {
	return lo.Contains(l.Terminal, s)
}

// IsAmendable reports whether a document in status s may be revised.
func (l Lifecycle) IsAmendable(s Status) bool {
	return !l.IsTerminal(s) && !lo.Contains(l.Fulfilled, s)
}

// Statuses returns every status mentioned by the lifecycle, in first-seen order.
func (l Lifecycle) Statuses() []Status {
	all := []Status{l.Initial, l.RevisionEntry}
	for _, t := range l.Transitions {
		all = append(all, t.From...)
		all = append(all, t.To)
	}
	all = append(all, l.Terminal...)
	all = append(all, l.Fulfilled...)
	return lo.Uniq(lo.Compact(all))
}

// Lookup finds the rule for (from, action). Terminal statuses never match.
func (l Lifecycle) Lookup(from Status, action Action) (Rule, bool) {
	if l.IsTerminal(from) {
		return Rule{}, false
	}
	for _, t := range l.Transitions {
		if t.Action != action {
			continue
		}
		if !t.FromAnyNonTerminal && !lo.Contains(t.From, from) {
			continue
		}
		return Rule{
			From:     from,
			Action:   t.Action,
			To:       t.To,
			Roles:    t.Roles,
			Remarks:  t.Remarks,
			Approval: t.Approval,
		}, true
	}
	return Rule{}, false
}

// Rules returns all rules leaving status from.
func (l Lifecycle) Rules(from Status) []Rule {
	var rules []Rule
	seen := map[Action]bool{}
	for _, t := range l.Transitions {
		if seen[t.Action] {
			continue
		}
		if rule, ok := l.Lookup(from, t.Action); ok {
			seen[t.Action] = true
			rules = append(rules, rule)
		}
	}
	return rules
}

// Validate checks the table is deterministic and closed: no row starts from a
// terminal status, every row names at least one role, and each (from, action)
// pair resolves to a single row.
func (l Lifecycle) Validate() error {
	if l.Initial == "" {
		return fmt.Errorf("%w: lifecycle %s has no initial status", ErrInvalidConfiguration, l.Name)
	}
	if l.IsTerminal(l.Initial) {
		return fmt.Errorf("%w: lifecycle %s starts in terminal status %s", ErrInvalidConfiguration, l.Name, l.Initial)
	}
	if l.RevisionEntry == "" || l.IsTerminal(l.RevisionEntry) {
		return fmt.Errorf("%w: lifecycle %s has invalid revision entry status %q", ErrInvalidConfiguration, l.Name, l.RevisionEntry)
	}
	if len(l.Terminal) == 0 {
		return fmt.Errorf("%w: lifecycle %s has no terminal status", ErrInvalidConfiguration, l.Name)
	}

	statuses := l.Statuses()
	pairs := map[string]bool{}
	for i, t := range l.Transitions {
		if t.Action == "" || t.To == "" {
			return fmt.Errorf("%w: lifecycle %s row %d is incomplete", ErrInvalidConfiguration, l.Name, i)
		}
		if len(t.Roles) == 0 {
			return fmt.Errorf("%w: lifecycle %s action %s has no roles", ErrInvalidConfiguration, l.Name, t.Action)
		}
		switch t.Remarks {
		case RemarksNone, RemarksOptional, RemarksMandatory:
		default:
			return fmt.Errorf("%w: lifecycle %s action %s has remarks requirement %q", ErrInvalidConfiguration, l.Name, t.Action, t.Remarks)
		}
		if !t.FromAnyNonTerminal && len(t.From) == 0 {
			return fmt.Errorf("%w: lifecycle %s action %s has no source status", ErrInvalidConfiguration, l.Name, t.Action)
		}

		from := t.From
		if t.FromAnyNonTerminal {
			from = lo.Reject(statuses, func(s Status, _ int) bool { return l.IsTerminal(s) })
		}
		for _, s := range from {
			if l.IsTerminal(s) {
				return fmt.Errorf("%w: lifecycle %s leaves terminal status %s", ErrInvalidConfiguration, l.Name, s)
			}
			key := string(s) + "|" + string(t.Action)
			if pairs[key] {
				return fmt.Errorf("%w: lifecycle %s defines %s from %s twice", ErrInvalidConfiguration, l.Name, t.Action, s)
			}
			pairs[key] = true
		}
	}
	return nil
}
