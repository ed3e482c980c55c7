package interactions

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/permissions"
)

const (
	MaxOptions     = 25
	MaxChoices     = 25
	MaxDescription = 100
)

var commandName = regexp.MustCompile(`^[-_\p{Ll}\p{N}]{1,32}$`)

// Choice is a predefined value for a string, integer or number option.
type Choice struct {
	Name  string
	Value any
}

// Option is a parameter of a slash command, or a subcommand when its type is
// SubCommand or SubCommandGroup.
type Option struct {
	Type         discordgo.ApplicationCommandOptionType
	Name         string
	Description  string
	Required     bool
	Choices      []Choice
	Options      []Option
	ChannelTypes []discordgo.ChannelType
}

// SlashCommand describes an application command as registered with the
// platform.
type SlashCommand struct {
	Name        string
	Description string
	Options     []Option

	// DefaultMemberPermissions restricts the command to members holding
	// these permissions. Nil means everyone.
	DefaultMemberPermissions *permissions.Set
}

// InvalidCommandError describes why a command would be rejected on sync.
type InvalidCommandError struct {
	Path   string
	Reason string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("invalid command %q: %s", e.Path, e.Reason)
}

var _ error = (*InvalidCommandError)(nil)

// Validate checks the naming and size constraints the API enforces.
func (c SlashCommand) Validate() error {
	if !commandName.MatchString(c.Name) {
		return &InvalidCommandError{Path: c.Name, Reason: "name must be 1-32 lower case characters"}
	}
	if n := utf8.RuneCountInString(c.Description); n == 0 || n > MaxDescription {
		return &InvalidCommandError{Path: c.Name, Reason: "description must be 1-100 characters"}
	}
	return validateOptions(c.Name, c.Options)
}

func validateOptions(path string, options []Option) error {
	if len(options) > MaxOptions {
		return &InvalidCommandError{Path: path, Reason: fmt.Sprintf("more than %d options", MaxOptions)}
	}
	var errs []error
	seenOptional := false
	for _, o := range options {
		p := path + " " + o.Name
		if !commandName.MatchString(o.Name) {
			errs = append(errs, &InvalidCommandError{Path: p, Reason: "name must be 1-32 lower case characters"})
		}
		if n := utf8.RuneCountInString(o.Description); n == 0 || n > MaxDescription {
			errs = append(errs, &InvalidCommandError{Path: p, Reason: "description must be 1-100 characters"})
		}
		if len(o.Choices) > MaxChoices {
			errs = append(errs, &InvalidCommandError{Path: p, Reason: fmt.Sprintf("more than %d choices", MaxChoices)})
		}
		if o.Required && seenOptional {
			errs = append(errs, &InvalidCommandError{Path: p, Reason: "required options must come before optional ones"})
		}
		if !o.Required {
			seenOptional = true
		}
		if err := validateOptions(p, o.Options); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ToWire converts c into the form sent to the commands endpoint.
func (c SlashCommand) ToWire() *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Type:        discordgo.ChatApplicationCommand,
		Name:        c.Name,
		Description: c.Description,
		Options:     optionsToWire(c.Options),
	}
	if c.DefaultMemberPermissions != nil {
		cmd.DefaultMemberPermissions = c.DefaultMemberPermissions.Int64()
	}
	return cmd
}

func optionsToWire(options []Option) []*discordgo.ApplicationCommandOption {
	if len(options) == 0 {
		return nil
	}
	out := make([]*discordgo.ApplicationCommandOption, len(options))
	for i, o := range options {
		wire := &discordgo.ApplicationCommandOption{
			Type:         o.Type,
			Name:         o.Name,
			Description:  o.Description,
			Required:     o.Required,
			Options:      optionsToWire(o.Options),
			ChannelTypes: o.ChannelTypes,
		}
		for _, ch := range o.Choices {
			wire.Choices = append(wire.Choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  ch.Name,
				Value: ch.Value,
			})
		}
		out[i] = wire
	}
	return out
}

// FromWire converts a registered command back. JSON decoding turns every
// number into float64, so choices of integer options are normalized back to
// int64.
func FromWire(cmd *discordgo.ApplicationCommand) SlashCommand {
	c := SlashCommand{
		Name:        cmd.Name,
		Description: cmd.Description,
		Options:     optionsFromWire(cmd.Options),
	}
	if cmd.DefaultMemberPermissions != nil {
		p := permissions.Set(*cmd.DefaultMemberPermissions)
		c.DefaultMemberPermissions = &p
	}
	return c
}

func optionsFromWire(options []*discordgo.ApplicationCommandOption) []Option {
	if len(options) == 0 {
		return nil
	}
	out := make([]Option, len(options))
	for i, o := range options {
		opt := Option{
			Type:         o.Type,
			Name:         o.Name,
			Description:  o.Description,
			Required:     o.Required,
			Options:      optionsFromWire(o.Options),
			ChannelTypes: o.ChannelTypes,
		}
		for _, ch := range o.Choices {
			opt.Choices = append(opt.Choices, Choice{
				Name:  ch.Name,
				Value: normalizeChoice(o.Type, ch.Value),
			})
		}
		out[i] = opt
	}
	return out
}

func normalizeChoice(t discordgo.ApplicationCommandOptionType, v any) any {
	if t != discordgo.ApplicationCommandOptionInteger {
		return v
	}
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) {
			return int64(n)
		}
	case int:
		return int64(n)
	}
	return v
}

// CommandPath walks the subcommand groups and subcommands of an invocation.
// It returns the names from the command down to the leaf, and the options
// given to the leaf.
func CommandPath(data discordgo.ApplicationCommandInteractionData) ([]string, []*discordgo.ApplicationCommandInteractionDataOption) {
	path := []string{data.Name}
	options := data.Options
	for len(options) == 1 {
		o := options[0]
		if o.Type != discordgo.ApplicationCommandOptionSubCommand &&
			o.Type != discordgo.ApplicationCommandOptionSubCommandGroup {
			break
		}
		path = append(path, o.Name)
		options = o.Options
	}
	return path, options
}

// OptionMap indexes leaf options by name.
func OptionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, o := range options {
		m[o.Name] = o
	}
	return m
}
