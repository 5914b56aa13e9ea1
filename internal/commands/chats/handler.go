// Package chats holds the conversation management commands. Every command
// answers through Respond so the console can reuse it.
package chats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ollagram/ollagram/internal/app/di"
	"github.com/ollagram/ollagram/internal/commands"
	"github.com/ollagram/ollagram/internal/commands/base"
	"github.com/ollagram/ollagram/internal/service"
	"github.com/ollagram/ollagram/internal/telegram"
)

const (
	NewCommandName      = "new"
	SelectCommandName   = "select"
	ShowCommandName     = "show"
	DeleteCommandName   = "delete"
	RenameCommandName   = "rename"
	HistoryCommandName  = "history"
	CompressCommandName = "compress"

	activityLayout = "2006-01-02 15:04"
)

var errInvalidID = errors.New("invalid chat id")

// respond runs r for the chat of update and sends the result.
func respond(ctx context.Context, c *base.Command, r commands.TextResponder, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	text, err := r.Respond(ctx, msg.Chat.ID, msg.Arguments)
	if err != nil {
		c.Logger.WithError(err).WithField("command", r.Name()).Error("Command failed")
		text = c.ErrorText(err)
	}
	return c.Reply(ctx, msg.Chat.ID, msg.MessageID, text)
}

// parseID parses an optional chat ID. An empty string yields 0.
func parseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, s)
	}
	return id, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type New struct {
	*base.Command
}

func NewNew(di *di.Container) *New {
	cmd := &New{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *New) Name() string { return NewCommandName }

func (c *New) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	conv, err := c.ChatService.New(ctx, ownerID, args)
	if err != nil {
		return "", err
	}
	return c.L("chat_new", map[string]any{"ID": conv.ID, "Title": conv.Title}), nil
}

func (c *New) Execute(ctx context.Context, update telegram.Update) error {
	return respond(ctx, c.Command, c, update)
}

type Select struct {
	*base.Command
}

func NewSelect(di *di.Container) *Select {
	cmd := &Select{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Select) Name() string { return SelectCommandName }

func (c *Select) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	if strings.TrimSpace(args) == "" {
		return c.L("chat_select_usage", nil), nil
	}
	id, err := parseID(args)
	if err != nil {
		return c.L("chat_invalid_id", nil), nil
	}
	conv, err := c.ChatService.Select(ctx, ownerID, id)
	if errors.Is(err, service.ErrConversationNotFound) {
		return c.L("chat_not_found", nil), nil
	}
	if err != nil {
		return "", err
	}
	return c.L("chat_selected", map[string]any{"ID": conv.ID, "Title": conv.Title}), nil
}

func (c *Select) Execute(ctx context.Context, update telegram.Update) error {
	return respond(ctx, c.Command, c, update)
}

type Show struct {
	*base.Command
}

func NewShow(di *di.Container) *Show {
	cmd := &Show{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Show) Name() string { return ShowCommandName }

func (c *Show) Aliases() []string { return []string{"chats"} }

func (c *Show) Respond(ctx context.Context, ownerID int64, _ string) (string, error) {
	active, err := c.ChatService.Active(ctx, ownerID)
	if err != nil {
		return "", err
	}
	list, err := c.ChatService.List(ctx, ownerID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(c.L("chat_current", map[string]any{"ID": active.ID, "Title": active.Title}))
	sb.WriteString("\n\n")
	sb.WriteString(c.L("chat_list_header", nil))
	for _, conv := range list {
		last := c.L("chat_no_activity", nil)
		if !conv.LastActivity.IsZero() {
			last = conv.LastActivity.Format(activityLayout)
		}
		sb.WriteString("\n")
		sb.WriteString(c.L("chat_list_item", map[string]any{
			"ID":    conv.ID,
			"Title": conv.Title,
			"Count": conv.MessageCount,
			"Last":  last,
		}))
	}
	return sb.String(), nil
}

func (c *Show) Execute(ctx context.Context, update telegram.Update) error {
	return respond(ctx, c.Command, c, update)
}

type Delete struct {
	*base.Command
}

func NewDelete(di *di.Container) *Delete {
	cmd := &Delete{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Delete) Name() string { return DeleteCommandName }

// Respond deletes one chat, or all of them when no ID is given.
func (c *Delete) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return c.L("chat_invalid_id", nil), nil
	}
	if id == 0 {
		n, _, err := c.ChatService.DeleteAll(ctx, ownerID)
		if err != nil {
			return "", err
		}
		return c.L("chat_deleted_all", map[string]any{"Count": n}), nil
	}

	deleted, replacement, err := c.ChatService.Delete(ctx, ownerID, id)
	if errors.Is(err, service.ErrConversationNotFound) {
		return c.L("chat_not_found", nil), nil
	}
	if err != nil {
		return "", err
	}
	text := c.L("chat_deleted", map[string]any{"Title": deleted.Title})
	if replacement != nil {
		text += "\n" + c.L("chat_replacement", map[string]any{"Title": replacement.Title})
	}
	return text, nil
}

func (c *Delete) Execute(ctx context.Context, update telegram.Update) error {
	return respond(ctx, c.Command, c, update)
}

type Rename struct {
	*base.Command
}

func NewRename(di *di.Container) *Rename {
	cmd := &Rename{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Rename) Name() string { return RenameCommandName }

// Respond takes "[ID] <title>". A leading number is a chat ID.
func (c *Rename) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	args = strings.TrimSpace(args)
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return c.L("chat_rename_usage", nil), nil
	}

	var id int64
	title := args
	if isDigits(fields[0]) {
		if len(fields) < 2 {
			return c.L("chat_rename_need_title", nil), nil
		}
		var err error
		if id, err = parseID(fields[0]); err != nil {
			return c.L("chat_invalid_id", nil), nil
		}
		title = strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
	}

	conv, err := c.ChatService.Rename(ctx, ownerID, id, title)
	if errors.Is(err, service.ErrConversationNotFound) {
		return c.L("chat_not_found", nil), nil
	}
	if err != nil {
		return "", err
	}
	return c.L("chat_renamed", map[string]any{"Old": conv.Title, "ID": conv.ID, "New": title}), nil
}

func (c *Rename) Execute(ctx context.Context, update telegram.Update) error {
	return respond(ctx, c.Command, c, update)
}

type History struct {
	*base.Command
}

func NewHistory(di *di.Container) *History {
	cmd := &History{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *History) Name() string { return HistoryCommandName }

// Respond shows the last N messages, or clears the history with -d.
func (c *History) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	args = strings.TrimSpace(args)
	if args == "-d" {
		if _, err := c.ChatService.ClearHistory(ctx, ownerID); err != nil {
			return "", err
		}
		return c.L("history_cleared", nil), nil
	}

	n := service.DefaultHistoryLimit
	if args != "" {
		v, err := strconv.Atoi(args)
		if err != nil || v <= 0 {
			return c.L("history_invalid", nil), nil
		}
		n = v
	}

	messages, err := c.ChatService.History(ctx, ownerID, n)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return c.L("history_empty", nil), nil
	}

	var sb strings.Builder
	sb.WriteString(c.L("history_header", map[string]any{"Count": len(messages)}))
	for _, m := range messages {
		fmt.Fprintf(&sb, "\n%s: %s", m.Role, m.Content)
	}
	return sb.String(), nil
}

func (c *History) Execute(ctx context.Context, update telegram.Update) error {
	return respond(ctx, c.Command, c, update)
}

// Compress summarizes a conversation with the model. It can take a while,
// so it runs through the queue.
type Compress struct {
	*base.Command
}

func NewCompress(di *di.Container) *Compress {
	cmd := &Compress{}
	cmd.Command = base.NewQueuedCommand(cmd, di)
	return cmd
}

func (c *Compress) Name() string { return CompressCommandName }

func (c *Compress) Respond(ctx context.Context, ownerID int64, args string) (string, error) {
	id, err := parseID(args)
	if err != nil {
		return c.L("chat_invalid_id", nil), nil
	}
	_, _, err = c.ChatService.Compress(ctx, ownerID, id)
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		return c.L("chat_not_found", nil), nil
	case errors.Is(err, service.ErrEmptyHistory):
		return c.L("history_empty", nil), nil
	case err != nil:
		c.Logger.WithError(err).WithField("owner_id", ownerID).Error("Compression failed")
		return c.L("compress_failed", nil), nil
	}
	return c.L("compress_done", nil), nil
}

func (c *Compress) Execute(ctx context.Context, update telegram.Update) error {
	msg := telegram.AdaptMessage(update.Message)
	if id, err := parseID(msg.Arguments); err == nil {
		if conv, err := c.ChatService.Get(ctx, msg.Chat.ID, id); err == nil {
			started := c.L("compress_started", map[string]any{"Title": conv.Title})
			if _, err := c.Tg.Send(ctx, telegram.NewMessage(msg.Chat.ID, started, msg.MessageID)); err != nil {
				c.Logger.WithError(err).Warn("Failed to send progress message")
			}
		}
	}
	if err := c.Tg.SendChatAction(ctx, msg.Chat.ID, telegram.ActionTyping); err != nil {
		c.Logger.WithError(err).Debug("Failed to send typing action")
	}
	return respond(ctx, c.Command, c, update)
}
