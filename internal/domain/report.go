package domain

import "time"

// CycleReport resume lo que produjo un ciclo de trading de una red.
type CycleReport struct {
	Network     string
	Round       uint64
	Rollover    bool
	Candidates  int // mercados devueltos por el feed
	Eligible    int // mercados que pasaron el filtro
	Executed    []ExecutedTrade
	Failed      []FailedTrade
	SkippedZero int // sized a cero (sin liquidez o sin allocation)
	Duration    time.Duration
}
