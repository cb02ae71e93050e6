// Package discovery resolves service names to live network instances.
//
// The Registry here is an in-process implementation of the Discovery
// capability the remote actor refs depend on. It is fed from static
// configuration and can be updated at runtime.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Discovery errors
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrNoInstances     = errors.New("no healthy instances available")
	ErrInvalidInstance = errors.New("invalid service instance")
)

// Discovery returns the live instances of a named service.
type Discovery interface {
	// Lookup returns the healthy instances of service. An unknown service
	// yields ErrServiceNotFound.
	Lookup(ctx context.Context, service string) ([]Instance, error)
}

// Status represents the health status of an instance.
type Status uint8

const (
	// StatusUnknown means the status is not yet determined
	StatusUnknown Status = iota

	// StatusHealthy means the instance is healthy and available
	StatusHealthy

	// StatusUnhealthy means the instance is unhealthy but still registered
	StatusUnhealthy

	// StatusDraining means the instance is being drained
	StatusDraining
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	case StatusDraining:
		return "draining"
	default:
		return "invalid"
	}
}

// Instance is one network endpoint of a service.
type Instance struct {
	// Service is the logical service name
	Service string

	// Host and Port of the instance
	Host string
	Port int

	// Scheme used to build the base URL, "http" when empty
	Scheme string

	// Weight used by the weighted balancer, 1 when zero
	Weight int

	// Status is the health status
	Status Status

	// Metadata contains additional instance information
	Metadata map[string]string

	// RegisteredAt is when the instance was registered
	RegisteredAt time.Time
}

// ID returns the instance identity within its service.
func (i Instance) ID() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// BaseURL returns the URL remote refs post messages to.
func (i Instance) BaseURL() string {
	scheme := i.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + i.ID()
}

// ParseInstance parses "host:port" or "scheme://host:port" into an instance
// of service.
func ParseInstance(service, addr string) (Instance, error) {
	inst := Instance{Service: service, Status: StatusHealthy, Weight: 1}
	if scheme, rest, ok := strings.Cut(addr, "://"); ok {
		inst.Scheme = scheme
		addr = rest
	}
	addr = strings.TrimSuffix(addr, "/")

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return Instance{}, fmt.Errorf("%w: %s: %v", ErrInvalidInstance, addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Instance{}, fmt.Errorf("%w: %s: bad port", ErrInvalidInstance, addr)
	}
	inst.Host = host
	inst.Port = port
	return inst, nil
}

// EventType represents different types of registry events.
type EventType uint8

const (
	// EventRegister indicates an instance was registered
	EventRegister EventType = iota

	// EventDeregister indicates an instance was removed
	EventDeregister

	// EventStatusChange indicates an instance status changed
	EventStatusChange
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	switch t {
	case EventRegister:
		return "register"
	case EventDeregister:
		return "deregister"
	case EventStatusChange:
		return "status_change"
	default:
		return "unknown"
	}
}

// Event represents a change in the registry.
type Event struct {
	Type      EventType
	Instance  Instance
	Timestamp time.Time
}
