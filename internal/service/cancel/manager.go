package cancel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Manager tracks in-flight replies so a user can abort them from the chat.
type Manager struct {
	requests map[string]*activeRequest
	mu       sync.RWMutex
}

type activeRequest struct {
	cancel    context.CancelFunc
	chatID    int64
	messageID int
	command   string
	startedAt time.Time
}

type ActiveRequestInfo struct {
	ChatID    int64
	MessageID int
	Command   string
	StartedAt time.Time
}

func NewManager() *Manager {
	return &Manager{
		requests: make(map[string]*activeRequest),
	}
}

func (m *Manager) makeKey(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// Register derives a cancellable context from parent. The returned func
// releases the context and forgets the request.
func (m *Manager) Register(parent context.Context, chatID int64, messageID int, command string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.makeKey(chatID, messageID)
	m.requests[key] = &activeRequest{
		cancel:    cancel,
		chatID:    chatID,
		messageID: messageID,
		command:   command,
		startedAt: time.Now(),
	}

	return ctx, func() {
		cancel()
		m.Unregister(chatID, messageID)
	}
}

func (m *Manager) Unregister(chatID int64, messageID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, m.makeKey(chatID, messageID))
}

func (m *Manager) Cancel(chatID int64, messageID int) bool {
	m.mu.RLock()
	req, exists := m.requests[m.makeKey(chatID, messageID)]
	m.mu.RUnlock()

	if !exists {
		return false
	}
	req.cancel()
	return true
}

// CancelChat aborts every request of a chat and returns how many were running.
func (m *Manager) CancelChat(chatID int64) int {
	m.mu.RLock()
	var cancels []context.CancelFunc
	for _, req := range m.requests {
		if req.chatID == chatID {
			cancels = append(cancels, req.cancel)
		}
	}
	m.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

func (m *Manager) IsActive(chatID int64, messageID int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.requests[m.makeKey(chatID, messageID)]
	return exists
}

func (m *Manager) GetActiveRequest(chatID int64, messageID int) *ActiveRequestInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, exists := m.requests[m.makeKey(chatID, messageID)]
	if !exists {
		return nil
	}
	return &ActiveRequestInfo{
		ChatID:    req.chatID,
		MessageID: req.messageID,
		Command:   req.command,
		StartedAt: req.startedAt,
	}
}
