package common

import (
	"errors"
	"sync/atomic"
)

var (
	ErrModulePaused  = errors.New("module paused")
	ErrReentrantCall = errors.New("reentrant call")
)

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// StaticPauses is a PauseView backed by a fixed set of module names.
type StaticPauses map[string]bool

func (s StaticPauses) IsPaused(module string) bool { return s[module] }

// ReentrancyGuard rejects nested entry into a set of mutating operations. It
// is not a lock: a second caller entering while the guard is held fails
// immediately instead of waiting.
type ReentrancyGuard struct {
	entered atomic.Bool
}

// Enter marks the guard as held. The returned function releases it.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if !g.entered.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	return func() { g.entered.Store(false) }, nil
}

// Entered reports whether a guarded operation is in flight.
func (g *ReentrancyGuard) Entered() bool {
	return g.entered.Load()
}
