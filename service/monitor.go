// Package service wires long-running background tasks around the voting
// coordinator: periodic proposal refresh, vote status resolution and
// decryption cache maintenance.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zdao/zdao-node/log"
	"github.com/zdao/zdao-node/storage"
	"github.com/zdao/zdao-node/voting"
)

// DefaultMonitorInterval is the default refresh period.
const DefaultMonitorInterval = 30 * time.Second

// cachePruneEvery runs cache maintenance once per this many refresh ticks.
const cachePruneEvery = 20

// ProposalMonitor periodically reloads the proposal list, refreshes the
// voter's ballot status and prunes expired decryption cache entries.
type ProposalMonitor struct {
	coord    *voting.Coordinator
	store    *storage.Storage
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProposalMonitor creates a monitor. A nil storage disables cache
// maintenance.
func NewProposalMonitor(coord *voting.Coordinator, store *storage.Storage, interval time.Duration) *ProposalMonitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &ProposalMonitor{
		coord:    coord,
		store:    store,
		interval: interval,
	}
}

// Start begins the periodic refresh. It returns an error if the monitor is
// already running.
func (m *ProposalMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
	log.Infow("proposal monitor started", "interval", m.interval.String())
	return nil
}

// Stop halts the monitor and waits for the running cycle to finish.
func (m *ProposalMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

func (m *ProposalMonitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.refresh(ctx)
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
			ticks++
			if m.store != nil && ticks%cachePruneEvery == 0 {
				if n, err := m.store.PruneExpired(); err != nil {
					log.Warnw("cache prune failed", "error", err.Error())
				} else if n > 0 {
					log.Debugw("pruned expired decrypt cache entries", "count", n)
				}
			}
		}
	}
}

func (m *ProposalMonitor) refresh(ctx context.Context) {
	if _, err := m.coord.LoadProposals(ctx); err != nil {
		log.Warnw("proposal refresh failed", "error", err.Error())
		return
	}
	if _, err := m.coord.RefreshVoteStatus(ctx); err != nil {
		log.Warnw("vote status refresh failed", "error", err.Error())
	}
}
