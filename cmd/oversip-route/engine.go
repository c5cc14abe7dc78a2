package main

import (
	"context"
	"sync"

	"github.com/neighborhoods/docker-oversip/proxy"
	"github.com/neighborhoods/docker-oversip/sip"
)

// dryRunEngine accepts every transaction without sending anything.
type dryRunEngine struct {
	mu   sync.Mutex
	last *proxy.Transaction
}

func (e *dryRunEngine) Route(_ context.Context, tx *proxy.Transaction, _ sip.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = tx
	return nil
}

// take returns the transaction routed since the previous call.
func (e *dryRunEngine) take() (*proxy.Transaction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := e.last
	e.last = nil
	return tx, tx != nil
}
