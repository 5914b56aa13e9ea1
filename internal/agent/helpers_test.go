package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, systemPrompt, message string, history []Turn) (string, error) {
	args := m.Called(ctx, systemPrompt, message, history)
	return args.String(0), args.Error(1)
}

type memoryStore struct {
	mu        sync.Mutex
	turns     map[int64][]Turn
	appendErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{turns: make(map[int64][]Turn)}
}

func (s *memoryStore) Append(_ context.Context, id int64, role Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.turns[id] = append(s.turns[id], Turn{Role: role, Content: content})
	return nil
}

func (s *memoryStore) History(_ context.Context, id int64) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns[id]...), nil
}

func (s *memoryStore) count(id int64, role Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.turns[id] {
		if t.Role == role {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

func echoTool(name string) ToolSpec {
	return ToolSpec{
		Name:        name,
		Description: "echoes its text argument",
		Parameters: Schema{
			Type: TypeObject,
			Properties: map[string]Property{
				"text": {Type: TypeString, Description: "text to echo"},
			},
			Required: []string{"text"},
		},
		Func: func(_ context.Context, args Arguments) (any, error) {
			return args.String("text")
		},
	}
}

func failingTool(name string) ToolSpec {
	return ToolSpec{
		Name:       name,
		Parameters: Schema{Type: TypeObject},
		Func: func(context.Context, Arguments) (any, error) {
			return nil, errBoom
		},
	}
}
