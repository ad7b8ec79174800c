package lifecycle

import "github.com/mfvargas/fieldops/core/model"

// RequestSnapshot is a request plus the derived fields the API layer exposes.
type RequestSnapshot struct {
	Request *model.Request `json:"request"`
	// TimeRemainingSeconds counts down to expiry while the request is
	// pending; nil afterwards.
	TimeRemainingSeconds *int64 `json:"time_remaining_seconds,omitempty"`
	ElapsedSeconds       int64  `json:"elapsed_seconds"`
}

// ServiceSnapshot is a service plus the derived fields the API layer exposes.
type ServiceSnapshot struct {
	Service *model.Service `json:"service"`
	// ActiveMinutes is the running (or final) work duration; nil before work
	// starts.
	ActiveMinutes *int `json:"active_minutes,omitempty"`
	// OverSoftLimit reports that unfinished work ran past the advisory limit.
	OverSoftLimit bool `json:"over_soft_limit"`
}

func (e *Engine) snapshotRequest(r *model.Request) *RequestSnapshot {
	now := e.now()
	snap := &RequestSnapshot{
		Request:        r,
		ElapsedSeconds: int64(r.Elapsed(now).Seconds()),
	}
	if d := r.TimeRemaining(now); d != nil {
		secs := int64(d.Seconds())
		snap.TimeRemainingSeconds = &secs
	}
	return snap
}

func (e *Engine) snapshotService(s *model.Service) *ServiceSnapshot {
	now := e.now()
	snap := &ServiceSnapshot{
		Service:       s,
		OverSoftLimit: s.TimeLimitExceeded(now, e.cfg.ServiceSoftLimit),
	}
	if d := s.ActiveDuration(now); d != nil {
		mins := int(d.Minutes())
		snap.ActiveMinutes = &mins
	}
	return snap
}
