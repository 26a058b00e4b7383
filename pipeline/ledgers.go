package pipeline

import (
	"log/slog"
	"sync"

	"github.com/poiesic/cartograph/artifact"
	"github.com/poiesic/cartograph/ledger"
)

// Ledgers is the registry of per-stage ledgers for one workspace. Ledgers
// are opened lazily and shared: the stage mutating a ledger and the
// orchestrator clearing it on force both see the same instance.
type Ledgers struct {
	mu     sync.Mutex
	ws     *artifact.Workspace
	logger *slog.Logger
	open   map[string]*ledger.Ledger
}

func NewLedgers(ws *artifact.Workspace, logger *slog.Logger) *Ledgers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledgers{
		ws:     ws,
		logger: logger,
		open:   make(map[string]*ledger.Ledger),
	}
}

// Get returns the ledger for a stage, loading it from disk on first use.
func (ls *Ledgers) Get(stage string) (*ledger.Ledger, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if l, ok := ls.open[stage]; ok {
		return l, nil
	}
	l, err := ledger.Open(stage, ls.ws.LedgerPath(stage), ls.logger)
	if err != nil {
		return nil, err
	}
	ls.open[stage] = l
	return l, nil
}

// FlushAll persists every open ledger.
func (ls *Ledgers) FlushAll() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	for _, l := range ls.open {
		if err := l.Flush(); err != nil {
			return err
		}
	}
	return nil
}
