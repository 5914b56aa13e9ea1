package telegram

import (
	"context"
	"sync"
)

// TestClient is an in-memory Client that records everything sent through it.
type TestClient struct {
	mu       sync.Mutex
	sent     []MessageConfig
	requests []MessageConfig
	actions  []ChatAction
	nextID   int
	self     User
	updates  chan Update
	stopOnce sync.Once

	// SendErr, when set, fails every Send.
	SendErr error
}

func NewTestClient() *TestClient {
	return &TestClient{
		nextID:  1000,
		self:    User{ID: 777, FirstName: "Ollagram", UserName: "ollagram_bot"},
		updates: make(chan Update, 16),
	}
}

func (c *TestClient) Send(_ context.Context, msg MessageConfig) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	c.sent = append(c.sent, msg)
	c.nextID++
	out := &Message{MessageID: c.nextID}
	if m, ok := msg.(TextMessage); ok {
		out.Chat = Chat{ID: m.ChatID}
		out.Text = m.Text
	}
	return out, nil
}

func (c *TestClient) SendWithRetry(ctx context.Context, msg MessageConfig, _ int) (*Message, error) {
	return c.Send(ctx, msg)
}

func (c *TestClient) Request(_ context.Context, msg MessageConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, msg)
	return nil
}

func (c *TestClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return c.Request(ctx, DeleteMessageConfig{ChatID: chatID, MessageID: messageID})
}

func (c *TestClient) SendChatAction(_ context.Context, _ int64, action ChatAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

func (c *TestClient) GetUpdatesChan(UpdateConfig) <-chan Update {
	return c.updates
}

func (c *TestClient) StopReceivingUpdates() {
	c.stopOnce.Do(func() { close(c.updates) })
}

func (c *TestClient) Self() User {
	return c.self
}

// Push delivers an update to GetUpdatesChan readers.
func (c *TestClient) Push(update Update) {
	c.updates <- update
}

// Texts returns the text of every sent TextMessage in order.
func (c *TestClient) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.sent {
		if tm, ok := m.(TextMessage); ok {
			out = append(out, tm.Text)
		}
	}
	return out
}

// Sent returns every sent TextMessage.
func (c *TestClient) Sent() []TextMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []TextMessage
	for _, m := range c.sent {
		if tm, ok := m.(TextMessage); ok {
			out = append(out, tm)
		}
	}
	return out
}

// Edits returns the text of every message edit in order.
func (c *TestClient) Edits() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.requests {
		if e, ok := m.(EditMessageTextConfig); ok {
			out = append(out, e.Text)
		}
	}
	return out
}

// Callbacks returns the answered callback query IDs.
func (c *TestClient) Callbacks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.requests {
		if cb, ok := m.(CallbackConfig); ok {
			out = append(out, cb.CallbackQueryID)
		}
	}
	return out
}

func (c *TestClient) Actions() []ChatAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatAction(nil), c.actions...)
}
