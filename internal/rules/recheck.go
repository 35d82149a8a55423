package rules

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/resource"
)

// recheckPoll is how often an armed delayed trigger re-reads the device.
const recheckPoll = time.Second

// armRecheck schedules a delayed trigger for a ddx condition. The timer
// polls the triggering field: if it changes again before the delay elapses,
// the pending trigger is abandoned (a newer change will have armed its own).
// Arming replaces any previous timer for the same rule.
func (p *Processor) armRecheck(rule *resource.Rule, dev resource.Stateful, field string, armedAt time.Time, delay time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return
	}
	if prev, ok := p.pending[rule.IDV1]; ok {
		prev.cancel()
	}
	p.gen++
	gen := p.gen
	p.pending[rule.IDV1] = pendingTimer{cancel: cancel, gen: gen}
	p.wg.Add(1)
	p.mu.Unlock()

	log.Debug().
		Str("rule", rule.IDV1).
		Dur("delay", delay).
		Msg("Delayed trigger armed")

	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			// Only clear our own entry; a newer arm may have replaced it.
			if cur, ok := p.pending[rule.IDV1]; ok && cur.gen == gen {
				delete(p.pending, rule.IDV1)
			}
			p.mu.Unlock()
		}()

		deadline := time.NewTimer(delay)
		defer deadline.Stop()
		poll := time.NewTicker(recheckPoll)
		defer poll.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				lc, ok := dev.LastChanged(field)
				if !ok || !lc.Equal(armedAt) {
					log.Debug().Str("rule", rule.IDV1).Msg("Delayed trigger abandoned, field changed again")
					return
				}
			case <-deadline.C:
				p.recheckAndFire(rule, dev)
				return
			}
		}
	}()
}

// recheckAndFire re-evaluates the whole rule with ddx conditions counted as
// satisfied, and fires if it still passes.
func (p *Processor) recheckAndFire(rule *resource.Rule, dev resource.Stateful) {
	if !rule.Enabled() {
		return
	}
	now := time.Now()
	res, err := p.evalRule(rule, dev, now, true)
	if err != nil {
		log.Debug().Err(err).Str("rule", rule.IDV1).Msg("Delayed re-check failed")
		return
	}
	if !res.satisfied {
		log.Debug().Str("rule", rule.IDV1).Msg("Delayed trigger expired, conditions no longer hold")
		return
	}
	p.fire(rule, now)
}
