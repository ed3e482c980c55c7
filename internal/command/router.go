// Package command routes prefixed text commands found in chat messages to
// registered handlers.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/events"
)

// Handler runs a command. Args are the whitespace separated tokens that
// followed the command name, passed through verbatim.
type Handler func(ctx context.Context, msg *discordgo.Message, args []string) error

// Command is a registered command.
type Command struct {
	Name        string
	Description string
	Handler     Handler
}

// DuplicateCommandError is returned when a command name is registered twice
// on the same router.
type DuplicateCommandError struct {
	Name string
}

func (e *DuplicateCommandError) Error() string {
	return fmt.Sprintf("command %q is already registered", e.Name)
}

var _ error = (*DuplicateCommandError)(nil)

// Observer is notified about every command invocation.
type Observer interface {
	CommandInvoked(name string, err error)
}

// Router parses prefixed messages and invokes the matching handler.
type Router struct {
	prefix string

	mu       sync.RWMutex
	commands map[string]*Command

	observer Observer
	logger   *slog.Logger
}

func NewRouter(prefix string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		prefix:   prefix,
		commands: make(map[string]*Command),
		logger:   logger,
	}
}

// SetObserver installs o. Call it during setup.
func (r *Router) SetObserver(o Observer) {
	r.observer = o
}

// Prefix returns the configured command prefix.
func (r *Router) Prefix() string {
	return r.prefix
}

// Register adds a command. Names are case-insensitive.
func (r *Router) Register(name string, handler Handler, description string) error {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[key]; exists {
		return &DuplicateCommandError{Name: key}
	}
	r.commands[key] = &Command{
		Name:        key,
		Description: description,
		Handler:     handler,
	}
	return nil
}

// Unregister removes a command and reports whether it existed.
func (r *Router) Unregister(name string) bool {
	key := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[key]; !exists {
		return false
	}
	delete(r.commands, key)
	return true
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Command) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// Parse splits content into a lower-cased command name and its arguments.
// ok is false when content does not start with prefix or carries no command.
func Parse(prefix, content string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.FieldsFunc(content[len(prefix):], isASCIISpace)
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// ProcessMessage runs the command contained in msg, if any.
// It reports whether a handler ran to completion without error.
// Handler errors and panics are logged here and never propagate.
func (r *Router) ProcessMessage(ctx context.Context, msg *discordgo.Message) bool {
	if msg == nil {
		return false
	}
	name, args, ok := Parse(r.prefix, msg.Content)
	if !ok {
		return false
	}

	r.mu.RLock()
	cmd, exists := r.commands[name]
	r.mu.RUnlock()
	if !exists {
		return false
	}

	err := invoke(ctx, cmd.Handler, msg, args)
	if r.observer != nil {
		r.observer.CommandInvoked(name, err)
	}
	if err != nil {
		r.logger.ErrorContext(
			ctx,
			"command failed",
			slog.String("command", name),
			slog.String("channelID", msg.ChannelID),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

func invoke(ctx context.Context, h Handler, msg *discordgo.Message, args []string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &events.PanicError{Value: rec}
		}
	}()
	return h(ctx, msg, args)
}

// Listener adapts the router to the gateway's message event.
func (r *Router) Listener() events.Listener {
	return events.Typed(func(ctx context.Context, msg *discordgo.Message) error {
		r.ProcessMessage(ctx, msg)
		return nil
	})
}
