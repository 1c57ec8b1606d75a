package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Factory は新しいセッションを作成する
type Factory func(id uuid.UUID) *Session

// Manager はセッションをIDごとに管理する
// セッションは初回アクセス時に作成され、End で破棄される（永続化はしない）
type Manager struct {
	mu       sync.Mutex
	factory  Factory
	sessions map[uuid.UUID]*Session
}

// NewManager は新しい Manager を作成する
func NewManager(factory Factory) *Manager {
	return &Manager{
		factory:  factory,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Get は既存のセッションを返す。存在しない場合は作成する
func (m *Manager) Get(id uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := m.factory(id)
	m.sessions[id] = s
	return s
}

// Start は新しいIDでセッションを作成する
func (m *Manager) Start() *Session {
	return m.Get(uuid.New())
}

// End はセッションを破棄する
func (m *Manager) End(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len は管理中のセッション数を返す
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
