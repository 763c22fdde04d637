// Package metrics collects the latency samples recorded in stress mode and
// reduces them to the per-round statistics written to the results store.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Collector accumulates registration and reaction latency samples for the
// current round. Thread-safe.
type Collector struct {
	registrations []time.Duration
	reactions     []time.Duration
	successful    int
	mu            sync.Mutex
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordRegistration stores the time from accept to handshake completion and
// counts one successful registration.
func (c *Collector) RecordRegistration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations = append(c.registrations, clamp(d))
	c.successful++
}

// RecordReaction stores one reaction latency. Negative values, which only
// come from client clock skew, are stored as zero.
func (c *Collector) RecordReaction(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reactions = append(c.reactions, clamp(d))
}

// Registrations returns the number of successful registrations this round.
func (c *Collector) Registrations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successful
}

// Snapshot copies the current samples.
func (c *Collector) Snapshot() Samples {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Samples{
		Registrations: append([]time.Duration(nil), c.registrations...),
		Reactions:     append([]time.Duration(nil), c.reactions...),
		Successful:    c.successful,
	}
}

// Reset drops all samples and the registration count.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations = nil
	c.reactions = nil
	c.successful = 0
}

// Samples is a point-in-time copy of a collector.
type Samples struct {
	Registrations []time.Duration
	Reactions     []time.Duration
	Successful    int
}

// Stats holds a mean and population standard deviation in milliseconds.
type Stats struct {
	MeanMillis   float64
	StdDevMillis float64
}

// Summary is the reduced form of one round's samples.
type Summary struct {
	Reaction     Stats
	Registration Stats
	NumClients   int
	SuccessRate  float64
}

// Summarize reduces the samples. expectedClients <= 0 means no expectation
// was configured and the success rate is reported as 100.
func (s Samples) Summarize(expectedClients int) Summary {
	return Summary{
		Reaction:     Describe(s.Reactions),
		Registration: Describe(s.Registrations),
		NumClients:   s.Successful,
		SuccessRate:  SuccessRate(s.Successful, expectedClients),
	}
}

// Describe computes the mean and population standard deviation of the
// samples in milliseconds. An empty slice yields zeros.
func Describe(samples []time.Duration) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	var sum float64
	for _, d := range samples {
		sum += millis(d)
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, d := range samples {
		diff := millis(d) - mean
		sq += diff * diff
	}
	return Stats{
		MeanMillis:   mean,
		StdDevMillis: math.Sqrt(sq / float64(len(samples))),
	}
}

// SuccessRate is successful/expected as a percentage, or 100 when no
// expectation is set.
func SuccessRate(successful, expected int) float64 {
	if expected <= 0 {
		return 100.0
	}
	return float64(successful) / float64(expected) * 100.0
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
