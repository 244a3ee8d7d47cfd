package manager

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// shutdownGrace bounds the drain run on SIGINT/SIGTERM.
const shutdownGrace = 10 * time.Second

type signalHooks struct {
	mu   sync.Mutex
	ch   chan os.Signal
	stop chan struct{}
}

// installSignalHooks drains the registry on SIGINT/SIGTERM and then
// re-raises the signal so the default disposition still applies.
func (m *Manager) installSignalHooks() {
	m.signals.mu.Lock()
	defer m.signals.mu.Unlock()
	if m.signals.ch != nil {
		return
	}

	ch := make(chan os.Signal, 1)
	stop := make(chan struct{})
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	m.signals.ch, m.signals.stop = ch, stop

	go func() {
		select {
		case sig := <-ch:
			m.log.Infof("Received %s, disconnecting MCP servers", sig)
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			m.Cleanup(ctx)
			cancel()
			if p, err := os.FindProcess(os.Getpid()); err == nil {
				_ = p.Signal(sig)
			}
		case <-stop:
		}
	}()
}

func (m *Manager) removeSignalHooks() {
	m.signals.mu.Lock()
	defer m.signals.mu.Unlock()
	if m.signals.ch == nil {
		return
	}
	signal.Stop(m.signals.ch)
	close(m.signals.stop)
	m.signals.ch, m.signals.stop = nil, nil
}

// SignalHooksInstalled reports whether the shutdown hooks are active.
func (m *Manager) SignalHooksInstalled() bool {
	m.signals.mu.Lock()
	defer m.signals.mu.Unlock()
	return m.signals.ch != nil
}
