package registry

import (
	"sort"
	"sync"

	"github.com/krobus00/mt5-gateway/internal/entity"
)

type clientEntry struct {
	client  entity.Client
	symbols map[string]struct{}
}

// Registry is the single synchronized owner of the connected-client set and
// the per-client symbol subscriptions. The lock guards in-memory maps only;
// it is never held across network or venue I/O. Symbol reference counts are
// maintained incrementally so ActiveSymbols reflects subscribe/unsubscribe
// ordering exactly.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	refs    map[string]int
}

func New() *Registry {
	return &Registry{
		clients: make(map[string]*clientEntry),
		refs:    make(map[string]int),
	}
}

// Register adds a client with an empty subscription set. Re-registering the
// same ID replaces the previous handle and drops its subscriptions.
func (r *Registry) Register(c entity.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.clients[c.ID()]; ok {
		r.dropSymbolsLocked(prev)
	}

	r.clients[c.ID()] = &clientEntry{
		client:  c,
		symbols: make(map[string]struct{}),
	}
}

// Deregister removes the client and all of its subscriptions atomically.
// Removing an unknown ID is a no-op.
func (r *Registry) Deregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[id]
	if !ok {
		return
	}

	r.dropSymbolsLocked(entry)
	delete(r.clients, id)
}

// Subscribe adds symbol to the client's set. Symbols are case-sensitive and
// used verbatim as venue identifiers. Returns false for an unknown client.
func (r *Registry) Subscribe(id, symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[id]
	if !ok {
		return false
	}

	if _, subscribed := entry.symbols[symbol]; subscribed {
		return true
	}

	entry.symbols[symbol] = struct{}{}
	r.refs[symbol]++

	return true
}

// Unsubscribe removes symbol from the client's set; no-op when absent.
func (r *Registry) Unsubscribe(id, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[id]
	if !ok {
		return
	}

	if _, subscribed := entry.symbols[symbol]; !subscribed {
		return
	}

	delete(entry.symbols, symbol)
	r.releaseSymbolLocked(symbol)
}

// ActiveSymbols returns the sorted union of all clients' subscriptions: a
// symbol appears iff at least one client currently subscribes to it.
func (r *Registry) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	symbols := make([]string, 0, len(r.refs))
	for symbol := range r.refs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	return symbols
}

// SubscribersOf returns the clients currently subscribed to symbol.
func (r *Registry) SubscribersOf(symbol string) []entity.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	var subscribers []entity.Client
	for _, entry := range r.clients {
		if _, subscribed := entry.symbols[symbol]; subscribed {
			subscribers = append(subscribers, entry.client)
		}
	}

	return subscribers
}

// CloseAll closes every registered client transport and clears the registry.
// Used at shutdown; the lock is released before the transports are touched.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	clients := make([]entity.Client, 0, len(r.clients))
	for _, entry := range r.clients {
		clients = append(clients, entry.client)
	}
	r.clients = make(map[string]*clientEntry)
	r.refs = make(map[string]int)
	r.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.clients)
}

func (r *Registry) dropSymbolsLocked(entry *clientEntry) {
	for symbol := range entry.symbols {
		r.releaseSymbolLocked(symbol)
	}
}

func (r *Registry) releaseSymbolLocked(symbol string) {
	r.refs[symbol]--
	if r.refs[symbol] <= 0 {
		delete(r.refs, symbol)
	}
}
