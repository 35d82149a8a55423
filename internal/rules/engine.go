// Package rules evaluates v1 rules against resource changes. Evaluation is
// change-driven: every state write the bus reports is matched against every
// enabled rule, conditions short-circuit on the first failure, and the
// actions of a passing rule are dispatched against the bridge's own command
// surface.
package rules

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/bridged/internal/dispatch"
	"github.com/dokzlo13/bridged/internal/eventbus"
	"github.com/dokzlo13/bridged/internal/resource"
)

// actionRate caps dispatched actions per second across all rules, so a rule
// storm (rules triggering rules) degrades to lag instead of a livelock.
const actionRate = 50

// Processor owns rule evaluation and the delayed-trigger timers.
type Processor struct {
	reg        *resource.Registry
	dispatcher dispatch.Dispatcher
	limiter    *rate.Limiter

	// pending holds the cancel for each rule's armed delayed trigger.
	// Re-arming cancels the previous timer: the last trigger wins.
	mu      sync.Mutex
	pending map[string]pendingTimer
	gen     uint64
	wg      sync.WaitGroup
	closed  bool
}

// pendingTimer is one armed delayed trigger. The generation distinguishes a
// timer's own map entry from a replacement armed after it.
type pendingTimer struct {
	cancel context.CancelFunc
	gen    uint64
}

// NewProcessor creates a processor over the registry.
func NewProcessor(reg *resource.Registry, dispatcher dispatch.Dispatcher) *Processor {
	return &Processor{
		reg:        reg,
		dispatcher: dispatcher,
		limiter:    rate.NewLimiter(rate.Limit(actionRate), actionRate),
		pending:    make(map[string]pendingTimer),
	}
}

// HandleEvent is the bus subscriber entry point. Only state updates on
// stateful resources drive rules.
func (p *Processor) HandleEvent(ev eventbus.Event) {
	if ev.Type != eventbus.EventUpdate {
		return
	}
	switch ev.ResourceType {
	case resource.TypeLight, resource.TypeSensor, resource.TypeGroup:
	default:
		return
	}
	dev, err := p.reg.Stateful(ev.ResourceType, ev.ResourceID)
	if err != nil {
		return
	}
	p.Process(dev, ev.Time)
}

// Process evaluates every enabled rule against the device that just
// changed. now must be the timestamp the change was stamped with, since dx
// and ddx conditions compare it against the device's lastchanged values.
func (p *Processor) Process(dev resource.Stateful, now time.Time) {
	for _, rule := range p.reg.Rules() {
		if !rule.Enabled() {
			continue
		}

		res, err := p.evalRule(rule, dev, now, false)
		if err != nil {
			log.Debug().Err(err).Str("rule", rule.IDV1).Msg("Rule evaluation failed")
			continue
		}
		if !res.satisfied {
			continue
		}

		if res.delay > 0 {
			p.armRecheck(rule, dev, res.delayField, now, res.delay)
			continue
		}
		p.fire(rule, now)
	}
}

// evalResult is the outcome of one rule pass. A non-zero delay means a ddx
// condition triggered and the rule wants a delayed re-check instead of an
// immediate fire.
type evalResult struct {
	satisfied  bool
	delay      time.Duration
	delayField string
}

// evalRule checks every condition in order, failing fast. With recheck set,
// ddx conditions count as satisfied without re-arming, which is how a
// delayed trigger avoids scheduling itself forever.
func (p *Processor) evalRule(rule *resource.Rule, dev resource.Stateful, now time.Time, recheck bool) (evalResult, error) {
	// A rule with no conditions never fires.
	if len(rule.Conditions) == 0 {
		return evalResult{}, nil
	}

	devType, devID := dev.ObjectPath()
	var res evalResult

	for _, cond := range rule.Conditions {
		addr, err := parseAddress(cond.Address)
		if err != nil {
			return evalResult{}, fmt.Errorf("condition %q: %w", cond.Address, err)
		}

		switch cond.Operator {
		case resource.OpDx:
			if addr.resource != devType || addr.id != devID {
				return evalResult{}, nil
			}
			lc, ok := dev.LastChanged(addr.field)
			if !ok || !lc.Equal(now) {
				return evalResult{}, nil
			}

		case resource.OpDdx:
			if recheck {
				continue
			}
			if addr.resource != devType || addr.id != devID {
				return evalResult{}, nil
			}
			lc, ok := dev.LastChanged(addr.field)
			if !ok || !lc.Equal(now) {
				return evalResult{}, nil
			}
			delay, err := parseTimerValue(cond.Value)
			if err != nil {
				return evalResult{}, fmt.Errorf("condition %q: %w", cond.Address, err)
			}
			res.delay = delay
			res.delayField = addr.field

		case resource.OpIn:
			ok, err := inWindow(cond.Value, now)
			if err != nil {
				return evalResult{}, fmt.Errorf("condition %q: %w", cond.Address, err)
			}
			if !ok {
				return evalResult{}, nil
			}

		case resource.OpEq, resource.OpGt, resource.OpLt:
			ok, err := p.compare(addr, cond.Operator, cond.Value)
			if err != nil {
				return evalResult{}, err
			}
			if !ok {
				return evalResult{}, nil
			}

		default:
			return evalResult{}, fmt.Errorf("unknown operator %q", cond.Operator)
		}
	}

	res.satisfied = true
	return res, nil
}

// compare resolves the addressed state field and applies eq/gt/lt.
func (p *Processor) compare(addr address, op, want string) (bool, error) {
	target, err := p.reg.Stateful(addr.resource, addr.id)
	if err != nil {
		return false, err
	}
	val, ok := target.StateValue(addr.field)
	if !ok {
		return false, fmt.Errorf("%s/%s has no field %q", addr.resource, addr.id, addr.field)
	}

	switch op {
	case resource.OpEq:
		return stringify(val) == want, nil
	case resource.OpGt, resource.OpLt:
		have, ok := asInt(val)
		if !ok {
			return false, fmt.Errorf("field %q is not numeric", addr.field)
		}
		n, err := strconv.Atoi(want)
		if err != nil {
			return false, fmt.Errorf("value %q is not numeric: %w", want, err)
		}
		if op == resource.OpGt {
			return have > n, nil
		}
		return have < n, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

// fire marks the rule triggered and hands its actions to a dispatch
// goroutine, so a slow action (an unreachable device, a recursing rule)
// never stalls the evaluation pass that triggered it. Actions of one rule
// still run in order.
func (p *Processor) fire(rule *resource.Rule, now time.Time) {
	rule.MarkTriggered(now)
	log.Info().Str("rule", rule.IDV1).Str("name", rule.Name).Msg("Rule triggered")

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	actions := rule.Actions
	go func() {
		defer p.wg.Done()
		for _, action := range actions {
			if err := p.limiter.Wait(context.Background()); err != nil {
				return
			}
			if err := p.dispatcher.Dispatch(action.Address, action.Method, action.Body); err != nil {
				log.Warn().
					Err(err).
					Str("rule", rule.IDV1).
					Str("address", action.Address).
					Msg("Rule action failed")
			}
		}
	}()
}

// Close cancels all armed delayed triggers and waits for them to exit.
func (p *Processor) Close() {
	p.mu.Lock()
	p.closed = true
	for id, timer := range p.pending {
		timer.cancel()
		delete(p.pending, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// address is a parsed condition target: /<resource>/<id>/state/<field>.
type address struct {
	resource string
	id       string
	field    string
}

func parseAddress(raw string) (address, error) {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	// The bridge's own clock is addressed as /config/localtime.
	if len(parts) == 2 && parts[0] == "config" {
		return address{resource: "config", field: parts[1]}, nil
	}
	if len(parts) < 4 {
		return address{}, fmt.Errorf("malformed address")
	}
	return address{resource: parts[0], id: parts[1], field: parts[3]}, nil
}

// parseTimerValue parses a ddx delay of the form PTHH:MM:SS.
func parseTimerValue(value string) (time.Duration, error) {
	raw := strings.TrimPrefix(value, "PT")
	if raw == value {
		return 0, fmt.Errorf("timer value %q missing PT prefix", value)
	}
	var h, m, s int
	if _, err := fmt.Sscanf(raw, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("timer value %q: %w", value, err)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, nil
}

// inWindow checks a THH:MM:SS/THH:MM:SS daily window, wrapping over
// midnight when the end precedes the start.
func inWindow(value string, now time.Time) (bool, error) {
	parts := strings.SplitN(value, "/", 2)
	if len(parts) != 2 {
		return false, fmt.Errorf("window %q missing separator", value)
	}
	start, err := parseDayTime(parts[0])
	if err != nil {
		return false, err
	}
	end, err := parseDayTime(parts[1])
	if err != nil {
		return false, err
	}

	cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
	if start <= end {
		return cur >= start && cur <= end, nil
	}
	// Window spans midnight.
	return cur >= start || cur <= end, nil
}

// parseDayTime parses THH:MM:SS into seconds since midnight.
func parseDayTime(raw string) (int, error) {
	trimmed := strings.TrimPrefix(raw, "T")
	if trimmed == raw {
		return 0, fmt.Errorf("time %q missing T prefix", raw)
	}
	var h, m, s int
	if _, err := fmt.Sscanf(trimmed, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("time %q: %w", raw, err)
	}
	return h*3600 + m*60 + s, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
