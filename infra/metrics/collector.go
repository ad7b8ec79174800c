package metrics

import (
	"context"

	"github.com/mfvargas/fieldops/core/events"
	coremetrics "github.com/mfvargas/fieldops/core/metrics"
	"github.com/mfvargas/fieldops/internal/eventbus"
)

// StartEventCollector subscribes to the lifecycle bus and records a transition
// metric for every event. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = sink.RecordTransition(toTransition(ev))
			}
		}
	}()
}

func toTransition(ev events.Event) coremetrics.TransitionEvent {
	out := coremetrics.TransitionEvent{Role: ev.Role, From: ev.From, Time: ev.At}
	if ev.Service != nil {
		out.Entity = "service"
		out.To = string(ev.Service.Status)
		out.DurationMinutes = ev.Service.DurationMinutes
	} else if ev.Request != nil {
		out.Entity = "request"
		out.To = string(ev.Request.Status)
	}
	return out
}
