package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ollagram/ollagram/internal/agent"
	"github.com/ollagram/ollagram/internal/database"
	"github.com/ollagram/ollagram/internal/logger"
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, systemPrompt, message string, history []agent.Turn) (string, error) {
	args := m.Called(ctx, systemPrompt, message, history)
	return args.String(0), args.Error(1)
}

func newTestDB(t *testing.T) database.Database {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "service.db") + "?_pragma=foreign_keys(1)"
	db, err := database.NewSQLiteDB(dsn, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

const owner int64 = 42

func TestChatService_ActiveCreatesFirstConversation(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatService(db, nil, logger.Nop())
	ctx := context.Background()

	conv, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "Chat 1", conv.Title)

	again, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestChatService_NewSelectAndOwnership(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatService(db, nil, logger.Nop())
	ctx := context.Background()

	first, err := svc.New(ctx, owner, "")
	require.NoError(t, err)
	second, err := svc.New(ctx, owner, "  Travel  ")
	require.NoError(t, err)
	assert.Equal(t, "Travel", second.Title)

	active, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	selected, err := svc.Select(ctx, owner, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, selected.ID)

	_, err = svc.Select(ctx, owner+1, first.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = svc.Select(ctx, owner, 9999)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestChatService_DeleteActiveCreatesReplacement(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatService(db, nil, logger.Nop())
	ctx := context.Background()

	keep, err := svc.New(ctx, owner, "keep")
	require.NoError(t, err)
	active, err := svc.New(ctx, owner, "active")
	require.NoError(t, err)

	deleted, replacement, err := svc.Delete(ctx, owner, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep", deleted.Title)
	assert.Nil(t, replacement)

	deleted, replacement, err = svc.Delete(ctx, owner, active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.ID, deleted.ID)
	require.NotNil(t, replacement)

	current, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, replacement.ID, current.ID)
}

func TestChatService_DeleteAll(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatService(db, nil, logger.Nop())
	ctx := context.Background()

	for range 3 {
		_, err := svc.New(ctx, owner, "")
		require.NoError(t, err)
	}
	n, fresh, err := svc.DeleteAll(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)
}

func TestChatService_Rename(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatService(db, nil, logger.Nop())
	ctx := context.Background()

	conv, err := svc.New(ctx, owner, "old")
	require.NoError(t, err)

	before, err := svc.Rename(ctx, owner, 0, "new")
	require.NoError(t, err)
	assert.Equal(t, "old", before.Title)

	got, err := db.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)

	_, err = svc.Rename(ctx, owner, conv.ID, " ")
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

func TestChatService_HistoryAndClear(t *testing.T) {
	db := newTestDB(t)
	svc := NewChatService(db, nil, logger.Nop())
	ctx := context.Background()

	conv, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	for _, content := range []string{"a", "b", "c"} {
		require.NoError(t, db.AddMessage(ctx, conv.ID, "user", content))
	}

	last, err := svc.History(ctx, owner, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "b", last[0].Content)
	assert.Equal(t, "c", last[1].Content)

	_, err = svc.ClearHistory(ctx, owner)
	require.NoError(t, err)
	all, err := svc.History(ctx, owner, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestChatService_Compress(t *testing.T) {
	db := newTestDB(t)
	model := new(mockModel)
	svc := NewChatService(db, model, logger.NewTestLogger())
	ctx := context.Background()

	conv, err := svc.Active(ctx, owner)
	require.NoError(t, err)

	_, _, err = svc.Compress(ctx, owner, 0)
	assert.ErrorIs(t, err, ErrEmptyHistory)

	require.NoError(t, db.AddMessage(ctx, conv.ID, "user", "How do I read CSV in Python?"))
	require.NoError(t, db.AddMessage(ctx, conv.ID, "assistant", "Use pandas.read_csv()."))

	expected := []agent.Turn{
		{Role: agent.RoleUser, Content: "How do I read CSV in Python?"},
		{Role: agent.RoleAssistant, Content: "Use pandas.read_csv()."},
	}
	model.On("Generate", mock.Anything, CompressPrompt, "", expected).
		Return("  Our chat history so far: CSV via pandas.  ", nil).Once()

	_, summary, err := svc.Compress(ctx, owner, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Our chat history so far: CSV via pandas.", summary)

	history, err := db.GetHistory(ctx, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "assistant", history[0].Role)
	assert.Equal(t, summary, history[0].Content)
	model.AssertExpectations(t)
}

func TestChatService_CompressKeepsHistoryOnModelFailure(t *testing.T) {
	db := newTestDB(t)
	model := new(mockModel)
	svc := NewChatService(db, model, logger.Nop())
	ctx := context.Background()

	conv, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, db.AddMessage(ctx, conv.ID, "user", "hello"))

	model.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("connection refused"))

	_, _, err = svc.Compress(ctx, owner, 0)
	assert.ErrorIs(t, err, agent.ErrBackendUnavailable)

	n, err := db.GetMessageCount(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChatService_CompressRejectsEmptySummary(t *testing.T) {
	db := newTestDB(t)
	model := new(mockModel)
	svc := NewChatService(db, model, logger.Nop())
	ctx := context.Background()

	conv, err := svc.Active(ctx, owner)
	require.NoError(t, err)
	require.NoError(t, db.AddMessage(ctx, conv.ID, "user", "hello"))
	require.NoError(t, db.AddMessage(ctx, conv.ID, "assistant", "hi there"))

	model.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("  \n ", nil)

	_, _, err = svc.Compress(ctx, owner, 0)
	assert.ErrorIs(t, err, ErrEmptySummary)

	n, err := db.GetMessageCount(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHistoryStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	conv, err := db.CreateConversation(ctx, owner, "")
	require.NoError(t, err)

	store := NewHistoryStore(db, 2)
	require.NoError(t, store.Append(ctx, conv.ID, agent.RoleUser, "one"))
	require.NoError(t, store.Append(ctx, conv.ID, agent.RoleAssistant, "two"))
	require.NoError(t, store.Append(ctx, conv.ID, agent.RoleUser, "three"))

	turns, err := store.History(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []agent.Turn{
		{Role: agent.RoleAssistant, Content: "two"},
		{Role: agent.RoleUser, Content: "three"},
	}, turns)

	err = store.Append(ctx, conv.ID, agent.Role("tool"), "x")
	assert.Error(t, err, "role is constrained by the schema")
}

func TestTeacherService_Modes(t *testing.T) {
	db := newTestDB(t)
	teacher := NewTeacherService(db, "base prompt")
	ctx := context.Background()

	mode, err := teacher.Mode(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, ModeChat, mode)

	require.NoError(t, teacher.SetMode(ctx, owner, ModeCorrection))
	mode, err = teacher.Mode(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, ModeCorrection, mode)

	assert.ErrorIs(t, teacher.SetMode(ctx, owner, Mode("poetry")), ErrUnknownMode)
}

func TestTeacherService_Prompt(t *testing.T) {
	teacher := NewTeacherService(nil, "base prompt")

	system, msg := teacher.Prompt(ModeChat, "hi")
	assert.Equal(t, "base prompt", system)
	assert.Equal(t, "hi", msg)

	system, msg = teacher.Prompt(ModeCorrection, "I has a cat")
	assert.Equal(t, teacherCorrectionPrompt, system)
	assert.Contains(t, msg, `"I has a cat"`)

	system, msg = teacher.Prompt(ModeExercises, "my answer is b")
	assert.Equal(t, teacherChatPrompt, system)
	assert.Equal(t, "my answer is b", msg)
}

func TestTeacherService_ExercisePrompt(t *testing.T) {
	teacher := NewTeacherService(nil, "")

	system, msg, err := teacher.ExercisePrompt(ExerciseVocabulary)
	require.NoError(t, err)
	assert.Equal(t, teacherExercisePrompt, system)
	assert.Contains(t, msg, "Generate a vocabulary exercise for beginner level")

	_, _, err = teacher.ExercisePrompt("chemistry")
	assert.ErrorIs(t, err, ErrUnknownExercise)
}

func TestLocalizer(t *testing.T) {
	en, err := NewLocalizer("en")
	require.NoError(t, err)
	assert.Equal(t, "Chat with this ID was not found", en.Localize("chat_not_found", nil))
	assert.Equal(t, `Selected chat (ID-7): "Notes"`, en.Localize("chat_selected", map[string]any{"ID": 7, "Title": "Notes"}))
	assert.Equal(t, "no_such_message", en.Localize("no_such_message", nil))

	ru, err := NewLocalizer("ru")
	require.NoError(t, err)
	assert.Equal(t, "Чат с таким ID не найден", ru.Localize("chat_not_found", nil))

	_, err = NewLocalizer("not a language!")
	assert.Error(t, err)
}
