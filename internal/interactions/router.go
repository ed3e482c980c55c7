package interactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/events"
	"github.com/glizzus/harmony/internal/ui"
)

// Handler answers a slash command.
type Handler func(c *Context) error

// ModalHandler receives the submitted text input values keyed by custom ID.
type ModalHandler func(c *Context, values map[string]string) error

// Observer is notified about every handled interaction.
type Observer interface {
	CommandInvoked(name string, err error)
}

// CommandSyncer registers commands with the platform.
type CommandSyncer interface {
	SyncCommands(ctx context.Context, appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error)
}

type route struct {
	command SlashCommand
	handler Handler
}

// Router dispatches interactions by type: application commands to the
// handler registered under the command name, components to flows, and modal
// submissions to the handler registered for their custom ID prefix. Anything
// unclaimed falls through to the flows.
type Router struct {
	responder Responder
	flows     *FlowManager

	mu       sync.RWMutex
	commands map[string]route
	modals   map[string]ModalHandler

	observer Observer
	logger   *slog.Logger
}

func NewRouter(responder Responder, flows *FlowManager, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if flows == nil {
		flows = NewFlowManager(nil)
	}
	return &Router{
		responder: responder,
		flows:     flows,
		commands:  make(map[string]route),
		modals:    make(map[string]ModalHandler),
		logger:    logger,
	}
}

// SetObserver installs o. Call it during setup.
func (r *Router) SetObserver(o Observer) {
	r.observer = o
}

func (r *Router) Flows() *FlowManager {
	return r.flows
}

// Register adds a slash command. Commands answered by a flow root are
// registered with a nil handler so they are still synced.
func (r *Router) Register(cmd SlashCommand, handler Handler) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[cmd.Name]; exists {
		return &DuplicateCommandError{Name: cmd.Name}
	}
	r.commands[cmd.Name] = route{command: cmd, handler: handler}
	return nil
}

// HandleModal routes modal submissions whose custom ID starts with
// prefix followed by a colon, or equals prefix.
func (r *Router) HandleModal(prefix string, handler ModalHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modals[prefix] = handler
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []SlashCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SlashCommand, 0, len(r.commands))
	for _, rt := range r.commands {
		out = append(out, rt.command)
	}
	slices.SortFunc(out, func(a, b SlashCommand) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Sync overwrites the application's commands with the registered ones.
func (r *Router) Sync(ctx context.Context, syncer CommandSyncer, appID, guildID string) error {
	cmds := r.Commands()
	wire := make([]*discordgo.ApplicationCommand, len(cmds))
	for i, c := range cmds {
		wire[i] = c.ToWire()
	}
	if _, err := syncer.SyncCommands(ctx, appID, guildID, wire); err != nil {
		return fmt.Errorf("failed to sync %d commands: %w", len(wire), err)
	}
	r.logger.InfoContext(ctx, "Synced commands", "count", len(wire), "guildID", guildID)
	return nil
}

// Handle routes i and reports whether a handler ran without error.
// Handler errors and panics are logged here and never propagate. A
// *UserError is shown to the user as an ephemeral reply.
func (r *Router) Handle(ctx context.Context, i *discordgo.Interaction) bool {
	if i == nil {
		return false
	}
	c := &Context{Context: ctx, Responder: r.responder, Interaction: i}

	name, handled, err := r.route(c)
	if !handled {
		return false
	}
	if r.observer != nil {
		r.observer.CommandInvoked(name, err)
	}
	if err == nil {
		return true
	}

	var userErr *UserError
	if errors.As(err, &userErr) {
		if replyErr := c.Reply(userErr.Message, true); replyErr != nil {
			r.logger.WarnContext(ctx, "Failed to show error to user", "error", replyErr)
		}
		return false
	}
	r.logger.ErrorContext(
		ctx,
		"interaction handler failed",
		slog.String("interaction", name),
		slog.String("guildID", i.GuildID),
		slog.Any("error", err),
	)
	return false
}

func (r *Router) route(c *Context) (name string, handled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			handled = true
			err = &events.PanicError{Value: rec}
		}
	}()

	switch c.Interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := c.Interaction.ApplicationCommandData()
		name = data.Name
		r.mu.RLock()
		rt, ok := r.commands[data.Name]
		r.mu.RUnlock()
		if ok && rt.handler != nil {
			return name, true, rt.handler(c)
		}

	case discordgo.InteractionModalSubmit:
		data := c.Interaction.ModalSubmitData()
		name = CustomIDPrefix(data.CustomID)
		r.mu.RLock()
		h, ok := r.modals[name]
		r.mu.RUnlock()
		if ok {
			return name, true, h(c, ui.ModalValues(data))
		}

	case discordgo.InteractionMessageComponent:
		name = CustomIDPrefix(c.Interaction.MessageComponentData().CustomID)

	default:
		return "", false, nil
	}

	handled, err = r.flows.Route(c)
	return name, handled, err
}

// Listener adapts the router to the gateway's interaction event.
func (r *Router) Listener() events.Listener {
	return events.Typed(func(ctx context.Context, i *discordgo.Interaction) error {
		r.Handle(ctx, i)
		return nil
	})
}
