package lru

import "sync/atomic"

// Stats is a snapshot of the cache counters.
type Stats struct {
	Hit               int64 `json:"hit"`
	Miss              int64 `json:"miss"`
	Stale             int64 `json:"stale"`
	Error             int64 `json:"error"`
	RevalidateSuccess int64 `json:"revalidateSuccess"`
	RevalidateFailure int64 `json:"revalidateFailure"`
}

type counters struct {
	hit               atomic.Int64
	miss              atomic.Int64
	stale             atomic.Int64
	error             atomic.Int64
	revalidateSuccess atomic.Int64
	revalidateFailure atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Hit:               c.hit.Load(),
		Miss:              c.miss.Load(),
		Stale:             c.stale.Load(),
		Error:             c.error.Load(),
		RevalidateSuccess: c.revalidateSuccess.Load(),
		RevalidateFailure: c.revalidateFailure.Load(),
	}
}
