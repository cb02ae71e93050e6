package discovery

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Strategy names a load balancing algorithm.
type Strategy string

const (
	// RoundRobin cycles through instances in order
	RoundRobin Strategy = "round_robin"

	// Random selects instances randomly
	Random Strategy = "random"

	// LeastConnections selects the instance with fewest in-flight requests
	LeastConnections Strategy = "least_connections"

	// WeightedRoundRobin cycles through instances proportionally to Weight
	WeightedRoundRobin Strategy = "weighted_round_robin"
)

// ParseStrategy parses a strategy name. An empty name selects RoundRobin.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoundRobin:
		return RoundRobin, nil
	case Random:
		return Random, nil
	case LeastConnections:
		return LeastConnections, nil
	case WeightedRoundRobin:
		return WeightedRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown load balancing strategy %q", s)
	}
}

// Balancer picks one instance out of several.
type Balancer struct {
	strategy Strategy

	mu       sync.Mutex
	next     int
	rand     *rand.Rand
	inflight map[string]int64 // instance base URL -> in-flight requests
}

// NewBalancer creates a balancer for strategy.
func NewBalancer(strategy Strategy) *Balancer {
	if strategy == "" {
		strategy = RoundRobin
	}
	return &Balancer{
		strategy: strategy,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		inflight: make(map[string]int64),
	}
}

// Strategy returns the balancing strategy.
func (b *Balancer) Strategy() Strategy {
	return b.strategy
}

// Select chooses an instance. Only healthy instances are considered.
func (b *Balancer) Select(instances []Instance) (Instance, error) {
	healthy := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Status == StatusHealthy || inst.Status == StatusUnknown {
			healthy = append(healthy, inst)
		}
	}
	if len(healthy) == 0 {
		return Instance{}, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.strategy {
	case Random:
		return healthy[b.rand.Intn(len(healthy))], nil
	case LeastConnections:
		return b.selectLeastConnections(healthy), nil
	case WeightedRoundRobin:
		return b.selectWeighted(healthy), nil
	default:
		inst := healthy[b.next%len(healthy)]
		b.next++
		return inst, nil
	}
}

func (b *Balancer) selectLeastConnections(instances []Instance) Instance {
	best := instances[0]
	bestCount := b.inflight[best.BaseURL()]
	for _, inst := range instances[1:] {
		if n := b.inflight[inst.BaseURL()]; n < bestCount {
			best, bestCount = inst, n
		}
	}
	return best
}

func (b *Balancer) selectWeighted(instances []Instance) Instance {
	total := 0
	for _, inst := range instances {
		total += weightOf(inst)
	}
	slot := b.next % total
	b.next++
	for _, inst := range instances {
		slot -= weightOf(inst)
		if slot < 0 {
			return inst
		}
	}
	return instances[0]
}

func weightOf(inst Instance) int {
	if inst.Weight < 1 {
		return 1
	}
	return inst.Weight
}

// Begin records a request in flight to baseURL and returns the function
// that marks it done.
func (b *Balancer) Begin(baseURL string) (done func()) {
	b.mu.Lock()
	b.inflight[baseURL]++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.inflight[baseURL]--; b.inflight[baseURL] <= 0 {
				delete(b.inflight, baseURL)
			}
		})
	}
}

// InFlight returns the number of requests in flight to baseURL.
func (b *Balancer) InFlight(baseURL string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inflight[baseURL]
}
