package ws

import (
	"errors"
	"sync"

	"github.com/samber/lo"
	"github.com/vedran77/duet/internal/domain"
)

var (
	ErrUnauthenticated = errors.New("socket identity was not authenticated")
	ErrDuplicateSocket = errors.New("socket already registered")
	ErrUnknownSocket   = errors.New("socket not registered")
	ErrRegistryClosed  = errors.New("registry is closed")
)

type socketSet map[string]struct{}

// Registry is the Connection Registry: live sockets, the user each belongs
// to, and the rooms each has joined. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sockets map[string]*Client
	users   map[domain.UserID]socketSet
	rooms   map[string]socketSet
	joined  map[string]socketSet // socket id → room ids
	closed  bool
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.init()
	return r
}

func (r *Registry) init() {
	r.sockets = make(map[string]*Client)
	r.users = make(map[domain.UserID]socketSet)
	r.rooms = make(map[string]socketSet)
	r.joined = make(map[string]socketSet)
}

// Register adds a socket. Its identity must come from Authenticate.
func (r *Registry) Register(c *Client) error {
	if !c.identity.Authenticated() {
		return ErrUnauthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.sockets[c.id]; ok {
		return ErrDuplicateSocket
	}
	r.sockets[c.id] = c
	add(r.users, c.identity.UserID, c.id)
	r.joined[c.id] = make(socketSet)
	return nil
}

// JoinRoom subscribes a registered socket to roomID. Joining twice is a no-op.
func (r *Registry) JoinRoom(socketID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[socketID]
	if !ok {
		return ErrUnknownSocket
	}
	rooms[roomID] = struct{}{}
	add(r.rooms, roomID, socketID)
	return nil
}

// Deregister drops the socket and every room membership it holds. It reports
// false when the socket was already gone.
func (r *Registry) Deregister(socketID string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.sockets[socketID]
	if !ok {
		return nil, false
	}
	for roomID := range r.joined[socketID] {
		remove(r.rooms, roomID, socketID)
	}
	delete(r.joined, socketID)
	remove(r.users, c.identity.UserID, socketID)
	delete(r.sockets, socketID)
	return c, true
}

// SocketsFor returns the ids of every live socket of userID.
func (r *Registry) SocketsFor(userID domain.UserID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.users[userID])
}

// Members returns the ids of the sockets joined to roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.rooms[roomID])
}

// RoomsOf returns the rooms socketID has joined.
func (r *Registry) RoomsOf(socketID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.joined[socketID])
}

// Targets resolves a delivery to clients: the sockets of userID plus the
// members of roomID, each once, minus exclude.
func (r *Registry) Targets(userID domain.UserID, roomID, exclude string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(socketSet, len(r.users[userID]))
	for id := range r.users[userID] {
		ids[id] = struct{}{}
	}
	if roomID != "" {
		for id := range r.rooms[roomID] {
			ids[id] = struct{}{}
		}
	}
	delete(ids, exclude)

	clients := make([]*Client, 0, len(ids))
	for id := range ids {
		clients = append(clients, r.sockets[id])
	}
	return clients
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sockets)
}

// Close empties the registry, refuses later registrations and returns the
// clients it held.
func (r *Registry) Close() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := lo.Values(r.sockets)
	r.init()
	r.closed = true
	return clients
}

func add[K comparable](m map[K]socketSet, key K, socketID string) {
	set, ok := m[key]
	if !ok {
		set = make(socketSet)
		m[key] = set
	}
	set[socketID] = struct{}{}
}

func remove[K comparable](m map[K]socketSet, key K, socketID string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, socketID)
	if len(set) == 0 {
		delete(m, key)
	}
}
