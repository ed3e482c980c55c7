// Package permissions does permission bit arithmetic and resolves channel
// overwrites.
package permissions

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// Set is a permission bitfield.
type Set int64

const (
	CreateInstantInvite    Set = discordgo.PermissionCreateInstantInvite
	KickMembers            Set = discordgo.PermissionKickMembers
	BanMembers             Set = discordgo.PermissionBanMembers
	Administrator          Set = discordgo.PermissionAdministrator
	ManageChannels         Set = discordgo.PermissionManageChannels
	ManageGuild            Set = discordgo.PermissionManageServer
	AddReactions           Set = discordgo.PermissionAddReactions
	ViewChannel            Set = discordgo.PermissionViewChannel
	SendMessages           Set = discordgo.PermissionSendMessages
	ManageMessages         Set = discordgo.PermissionManageMessages
	AttachFiles            Set = discordgo.PermissionAttachFiles
	Connect                Set = discordgo.PermissionVoiceConnect
	Speak                  Set = discordgo.PermissionVoiceSpeak
	UseVoiceActivity       Set = discordgo.PermissionVoiceUseVAD
	UseApplicationCommands Set = discordgo.PermissionUseSlashCommands

	All Set = discordgo.PermissionAll
)

func (s Set) Add(perms ...Set) Set {
	for _, p := range perms {
		s |= p
	}
	return s
}

func (s Set) Remove(perms ...Set) Set {
	for _, p := range perms {
		s &^= p
	}
	return s
}

// Has reports whether every bit of p is set.
func (s Set) Has(p Set) bool {
	return s&p == p
}

// Allows is Has, except that Administrator grants everything.
func (s Set) Allows(p Set) bool {
	return s.Has(Administrator) || s.Has(p)
}

func (s Set) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// Int64 returns s in the form discordgo uses.
func (s Set) Int64() *int64 {
	v := int64(s)
	return &v
}

// MarshalJSON encodes the set as a decimal string, like the API does.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid permission set %s", data)
		}
		*s = Set(n)
		return nil
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid permission set %q: %w", str, err)
	}
	*s = Set(n)
	return nil
}

// Value is the tri-state of a permission in an overwrite.
type Value int

const (
	Inherit Value = iota
	Allow
	Deny
)

// Overwrite adjusts a channel's permissions for a role or member.
type Overwrite struct {
	ID    string
	Type  discordgo.PermissionOverwriteType
	Allow Set
	Deny  Set
}

// Set moves p into allow, deny, or neither. A permission is never both
// allowed and denied.
func (o *Overwrite) Set(p Set, v Value) {
	switch v {
	case Allow:
		o.Allow = o.Allow.Add(p)
		o.Deny = o.Deny.Remove(p)
	case Deny:
		o.Deny = o.Deny.Add(p)
		o.Allow = o.Allow.Remove(p)
	default:
		o.Allow = o.Allow.Remove(p)
		o.Deny = o.Deny.Remove(p)
	}
}

// Get returns the state of a single permission bit.
func (o Overwrite) Get(p Set) Value {
	switch {
	case o.Allow.Has(p):
		return Allow
	case o.Deny.Has(p):
		return Deny
	default:
		return Inherit
	}
}

// Apply returns base with the overwrite applied.
func (o Overwrite) Apply(base Set) Set {
	return base.Remove(o.Deny).Add(o.Allow)
}

func (o Overwrite) ToWire() *discordgo.PermissionOverwrite {
	return &discordgo.PermissionOverwrite{
		ID:    o.ID,
		Type:  o.Type,
		Allow: int64(o.Allow),
		Deny:  int64(o.Deny),
	}
}

func FromWire(po *discordgo.PermissionOverwrite) Overwrite {
	return Overwrite{
		ID:    po.ID,
		Type:  po.Type,
		Allow: Set(po.Allow),
		Deny:  Set(po.Deny),
	}
}

// Compute resolves the permissions of member in channel: the guild's
// @everyone role and the member's roles, then the channel's @everyone,
// role and member overwrites in that order.
func Compute(guild *discordgo.Guild, member *discordgo.Member, channel *discordgo.Channel) Set {
	if member.User != nil && guild.OwnerID == member.User.ID {
		return All
	}

	roles := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, r := range guild.Roles {
		roles[r.ID] = r
	}

	var base Set
	if everyone, ok := roles[guild.ID]; ok {
		base = Set(everyone.Permissions)
	}
	for _, id := range member.Roles {
		if r, ok := roles[id]; ok {
			base = base.Add(Set(r.Permissions))
		}
	}
	if base.Has(Administrator) {
		return All
	}
	if channel == nil {
		return base
	}

	overwrites := make(map[string]Overwrite, len(channel.PermissionOverwrites))
	for _, po := range channel.PermissionOverwrites {
		overwrites[po.ID] = FromWire(po)
	}

	if o, ok := overwrites[guild.ID]; ok {
		base = o.Apply(base)
	}

	var roleAllow, roleDeny Set
	for _, id := range member.Roles {
		if o, ok := overwrites[id]; ok && o.Type == discordgo.PermissionOverwriteTypeRole {
			roleAllow = roleAllow.Add(o.Allow)
			roleDeny = roleDeny.Add(o.Deny)
		}
	}
	base = Overwrite{Allow: roleAllow, Deny: roleDeny}.Apply(base)

	if member.User != nil {
		if o, ok := overwrites[member.User.ID]; ok && o.Type == discordgo.PermissionOverwriteTypeMember {
			base = o.Apply(base)
		}
	}
	return base
}
