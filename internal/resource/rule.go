package resource

import (
	"sync"
	"time"
)

// Condition operators.
const (
	OpEq  = "eq"
	OpGt  = "gt"
	OpLt  = "lt"
	OpDx  = "dx"
	OpDdx = "ddx"
	OpIn  = "in"
)

// Condition is one AND-term of a rule: a state field address, an operator
// and a literal value.
type Condition struct {
	Address  string `json:"address"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Action is an API-call descriptor dispatched against the bridge's own
// control surface when a rule fires.
type Action struct {
	Address string         `json:"address"`
	Method  string         `json:"method"`
	Body    map[string]any `json:"body"`
}

// Rule is an ordered AND of conditions plus the actions to dispatch when all
// of them hold.
type Rule struct {
	IDV1  string
	Name  string
	Owner string

	Conditions []Condition
	Actions    []Action

	mu             sync.Mutex
	status         string
	created        time.Time
	lastTriggered  time.Time
	timesTriggered int
}

// NewRule creates an enabled rule.
func NewRule(idV1, name string, conditions []Condition, actions []Action) *Rule {
	return &Rule{
		IDV1:       idV1,
		Name:       name,
		Conditions: conditions,
		Actions:    actions,
		status:     "enabled",
		created:    time.Now(),
	}
}

// ObjectPath implements Stateful so rules can be addressed like any other
// resource.
func (r *Rule) ObjectPath() (string, string) {
	return TypeRule, r.IDV1
}

// StateValue implements Stateful.
func (r *Rule) StateValue(field string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch field {
	case "status":
		return r.status, true
	case "timestriggered":
		return r.timesTriggered, true
	default:
		return nil, false
	}
}

// LastChanged implements Stateful.
func (r *Rule) LastChanged(field string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if field == "status" || field == "timestriggered" {
		return r.lastTriggered, !r.lastTriggered.IsZero()
	}
	return time.Time{}, false
}

// Enabled reports whether the rule participates in evaluation.
func (r *Rule) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == "enabled"
}

// SetStatus enables or disables the rule.
func (r *Rule) SetStatus(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

// MarkTriggered records a firing.
func (r *Rule) MarkTriggered(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTriggered = now
	r.timesTriggered++
}

// Triggered returns the trigger bookkeeping.
func (r *Rule) Triggered() (last time.Time, times int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTriggered, r.timesTriggered
}
