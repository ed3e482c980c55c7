package ui

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

const (
	MaxEmbedFields      = 25
	MaxEmbedTitle       = 256
	MaxEmbedDescription = 4096
)

var (
	ErrTooManyFields   = fmt.Errorf("embed holds at most %d fields", MaxEmbedFields)
	ErrTitleTooLong    = fmt.Errorf("embed title is longer than %d characters", MaxEmbedTitle)
	ErrDescriptionLong = fmt.Errorf("embed description is longer than %d characters", MaxEmbedDescription)
)

// EmbedBuilder builds a rich embed. Violations are collected and reported
// by Build.
type EmbedBuilder struct {
	embed discordgo.MessageEmbed
	errs  []error
}

func NewEmbed() *EmbedBuilder {
	return &EmbedBuilder{embed: discordgo.MessageEmbed{Type: discordgo.EmbedTypeRich}}
}

func (b *EmbedBuilder) Title(title string) *EmbedBuilder {
	if utf8.RuneCountInString(title) > MaxEmbedTitle {
		b.errs = append(b.errs, ErrTitleTooLong)
	}
	b.embed.Title = title
	return b
}

func (b *EmbedBuilder) Description(description string) *EmbedBuilder {
	if utf8.RuneCountInString(description) > MaxEmbedDescription {
		b.errs = append(b.errs, ErrDescriptionLong)
	}
	b.embed.Description = description
	return b
}

func (b *EmbedBuilder) URL(url string) *EmbedBuilder {
	b.embed.URL = url
	return b
}

func (b *EmbedBuilder) Color(color int) *EmbedBuilder {
	b.embed.Color = color
	return b
}

func (b *EmbedBuilder) Timestamp(t time.Time) *EmbedBuilder {
	b.embed.Timestamp = t.UTC().Format(time.RFC3339)
	return b
}

func (b *EmbedBuilder) Footer(text string) *EmbedBuilder {
	b.embed.Footer = &discordgo.MessageEmbedFooter{Text: text}
	return b
}

func (b *EmbedBuilder) Field(name, value string, inline bool) *EmbedBuilder {
	if len(b.embed.Fields) == MaxEmbedFields {
		b.errs = append(b.errs, ErrTooManyFields)
		return b
	}
	b.embed.Fields = append(b.embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: value, Inline: inline})
	return b
}

func (b *EmbedBuilder) Build() (*discordgo.MessageEmbed, error) {
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	embed := b.embed
	return &embed, nil
}
