package mmio

import "sync"

// WriteHook models a hardware side effect of a store. It receives the previous word and
// the value written and returns the word the register holds afterwards.
type WriteHook func(old, written uint32) uint32

// Access is one entry of the trace: a store, or a barrier when Barrier is set.
type Access struct {
	Addr    uintptr
	Value   uint32
	Barrier bool
}

// Memory is a simulated register space for host tests. Unwritten words read as zero.
// It is safe for use by several goroutines so a test can flip a status bit while a
// driver is busy-waiting on it.
type Memory struct {
	mu       sync.Mutex
	words    map[uintptr]uint32
	hooks    map[uintptr]WriteHook
	trace    []Access
	barriers int
}

// NewMemory returns an empty simulated register space.
func NewMemory() *Memory {
	return &Memory{
		words: make(map[uintptr]uint32),
		hooks: make(map[uintptr]WriteHook),
	}
}

func (m *Memory) Load(addr uintptr) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[addr]
}

// Store records the access in the trace and applies the hook registered for addr, if any.
func (m *Memory) Store(addr uintptr, value uint32) {
	m.mu.Lock()
	hook := m.hooks[addr]
	old := m.words[addr]
	m.trace = append(m.trace, Access{Addr: addr, Value: value})
	m.mu.Unlock()

	next := value
	if hook != nil {
		next = hook(old, value)
	}

	m.mu.Lock()
	m.words[addr] = next
	m.mu.Unlock()
}

func (m *Memory) Barrier() {
	m.mu.Lock()
	m.barriers++
	m.trace = append(m.trace, Access{Barrier: true})
	m.mu.Unlock()
}

// Poke sets a word without tracing or hooks, as hardware would.
func (m *Memory) Poke(addr uintptr, value uint32) {
	m.mu.Lock()
	m.words[addr] = value
	m.mu.Unlock()
}

// Update atomically rewrites a word without tracing or hooks.
func (m *Memory) Update(addr uintptr, fn func(uint32) uint32) {
	m.mu.Lock()
	m.words[addr] = fn(m.words[addr])
	m.mu.Unlock()
}

// Peek reads a word.
func (m *Memory) Peek(addr uintptr) uint32 {
	return m.Load(addr)
}

// OnWrite installs hook for stores to addr, replacing any previous hook.
// Hooks run outside the memory lock and may call Poke or Update on other addresses.
func (m *Memory) OnWrite(addr uintptr, hook WriteHook) {
	m.mu.Lock()
	m.hooks[addr] = hook
	m.mu.Unlock()
}

// Trace returns a copy of every store and barrier seen so far.
func (m *Memory) Trace() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Access, len(m.trace))
	copy(out, m.trace)
	return out
}

// ResetTrace drops the recorded stores.
func (m *Memory) ResetTrace() {
	m.mu.Lock()
	m.trace = m.trace[:0]
	m.barriers = 0
	m.mu.Unlock()
}

// Barriers returns how many barriers were issued.
func (m *Memory) Barriers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.barriers
}
