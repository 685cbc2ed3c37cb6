package widget

import (
	"sync"
	"time"
)

// Host keeps the instances created for rendered pages so their runs can be
// started and fed input by id.
type Host struct {
	mu    sync.Mutex
	insts map[string]*Instance
}

func NewHost() *Host {
	return &Host{insts: map[string]*Instance{}}
}

func (h *Host) Add(insts ...*Instance) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, inst := range insts {
		if inst != nil {
			h.insts[inst.ID] = inst
		}
	}
}

func (h *Host) Get(id string) (*Instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.insts[id]
	return inst, ok
}

// Release stops and forgets an instance.
func (h *Host) Release(id string) bool {
	h.mu.Lock()
	inst, ok := h.insts[id]
	delete(h.insts, id)
	h.mu.Unlock()
	if ok {
		inst.Stop()
	}
	return ok
}

// Prune forgets instances that are not running and were last used more than
// maxAge ago. It returns how many were removed.
func (h *Host) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for id, inst := range h.insts {
		if inst.State() == StateRunning || inst.LastUsed().After(cutoff) {
			continue
		}
		delete(h.insts, id)
		n++
	}
	return n
}

func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.insts)
}
