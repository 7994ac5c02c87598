package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Permission is the facility's alert permission state.
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// ParsePermission maps a config value to a Permission.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(s); p {
	case PermissionGranted, PermissionDenied, PermissionUndetermined:
		return p, nil
	default:
		return "", fmt.Errorf("unknown permission %q", s)
	}
}

// Authorizer checks and requests the permission needed to schedule alerts.
type Authorizer interface {
	Status(ctx context.Context) (Permission, error)
	Request(ctx context.Context) (Permission, error)
}

// Gate checks permission lazily, at most once per session once granted.
// Denials are not remembered so the user can grant later.
type Gate struct {
	auth    Authorizer
	mu      sync.Mutex
	granted bool
}

func NewGate(auth Authorizer) *Gate {
	return &Gate{auth: auth}
}

// Ensure returns nil when scheduling is permitted, requesting the
// permission if it has not been decided yet.
func (g *Gate) Ensure(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.granted {
		return nil
	}

	status, err := g.auth.Status(ctx)
	if err != nil {
		return fmt.Errorf("check permission: %w", err)
	}
	if status != PermissionGranted {
		log.Printf("[scheduler] permission %s, requesting", status)
		if status, err = g.auth.Request(ctx); err != nil {
			return fmt.Errorf("request permission: %w", err)
		}
	}
	if status != PermissionGranted {
		return ErrPermissionDenied
	}

	g.granted = true
	return nil
}

// Reset forgets a previous grant so the next Ensure checks again.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.granted = false
	g.mu.Unlock()
}
