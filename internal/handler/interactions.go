package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/datalayer"
	"github.com/glizzus/harmony/internal/generator"
	"github.com/glizzus/harmony/internal/interactions"
	"github.com/glizzus/harmony/internal/presenters"
	"github.com/glizzus/harmony/internal/queue"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/schedule"
)

// SoundCronStore is the soundcron persistence used by the handlers.
type SoundCronStore interface {
	repository.SoundCronRepository
	UpcomingJobs(ctx context.Context, soundCronID string) ([]repository.SoundCronJobRow, error)
}

var _ SoundCronStore = (*repository.PostgresSoundCronRepository)(nil)

// ClipStore holds soundcron clips and hands out URLs the player can stream.
type ClipStore interface {
	datalayer.BlobStorage
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (*url.URL, error)
}

var _ ClipStore = (*datalayer.MinioStorage)(nil)

// SoundCronHandler answers the soundcron slash commands and the components
// they create.
type SoundCronHandler struct {
	repo        SoundCronStore
	clips       ClipStore
	blacklist   queue.Blacklist
	piper       *AudioPiper
	idGenerator generator.Generator[string]
	maxStorage  int64
	logger      *slog.Logger
}

type SoundCronHandlerOptions struct {
	Repository  SoundCronStore
	Clips       ClipStore
	Blacklist   queue.Blacklist
	Piper       *AudioPiper
	IDGenerator generator.Generator[string]
	MaxStorage  int64
	Logger      *slog.Logger
}

func NewSoundCronHandler(opts SoundCronHandlerOptions) *SoundCronHandler {
	h := &SoundCronHandler{
		repo:        opts.Repository,
		clips:       opts.Clips,
		blacklist:   opts.Blacklist,
		piper:       opts.Piper,
		idGenerator: opts.IDGenerator,
		maxStorage:  opts.MaxStorage,
		logger:      opts.Logger,
	}
	if h.blacklist == nil {
		h.blacklist = queue.NewMemoryBlacklist()
	}
	if h.idGenerator == nil {
		h.idGenerator = &generator.UUIDV4Generator{}
	}
	if h.maxStorage == 0 {
		h.maxStorage = MaxStorageSize
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register adds /ping and /soundcron to the router along with the flows and
// modal that follow from them.
func (h *SoundCronHandler) Register(router *interactions.Router) error {
	if err := router.Register(PingCommand, handlePing); err != nil {
		return err
	}
	if err := router.Register(SoundCronCommand, nil); err != nil {
		return err
	}
	router.HandleModal(presenters.ComponentIDSoundCronEdit, h.submitEdit)

	flows := router.Flows()
	for _, f := range h.flows() {
		if err := flows.RegisterFlow(f); err != nil {
			return err
		}
	}
	return nil
}

func handlePing(c *interactions.Context) error {
	return c.Reply("Pong!", false)
}

func (h *SoundCronHandler) flows() []*interactions.Flow {
	return []*interactions.Flow{
		{
			ID: "soundcron_list",
			Root: &interactions.Node{
				ID:      "list",
				Matcher: isCommand("soundcron", "list"),
				Handler: h.list,
				Next: []*interactions.Node{
					{
						ID:      "select",
						Matcher: isComponent(presenters.ComponentIDSoundCronSelect),
						Handler: h.selected,
					},
				},
			},
		},
		{
			ID: "soundcron_add_file",
			Root: &interactions.Node{
				ID:      "add_file",
				Matcher: isCommand("soundcron", "add", "file"),
				Handler: h.addFile,
			},
		},
		{
			ID: "soundcron_edit",
			Root: &interactions.Node{
				ID:      "edit",
				Matcher: isComponent(presenters.ComponentIDSoundCronEdit),
				Handler: h.edit,
			},
		},
		{
			ID: "soundcron_delete",
			Root: &interactions.Node{
				ID:      "delete",
				Matcher: isComponent(presenters.ComponentIDSoundCronDelete),
				Handler: h.delete,
			},
		},
	}
}

func (h *SoundCronHandler) list(c *interactions.Context, fc *interactions.FlowContext) error {
	soundCrons, err := h.repo.List(c, c.Interaction.GuildID)
	if err != nil {
		return fmt.Errorf("failed to list soundcrons: %w", err)
	}
	resp, err := presenters.BuildListSoundCronsResponse(soundCrons, fc.InstanceID)
	if err != nil {
		return err
	}
	return c.Respond(resp)
}

// get loads a soundcron of the interaction's guild, turning a missing one
// into a message for the user.
func (h *SoundCronHandler) get(c *interactions.Context, id string) (repository.SoundCron, error) {
	sc, err := h.repo.Get(c, c.Interaction.GuildID, id)
	if errors.Is(err, repository.ErrSoundCronNotFound) {
		return sc, interactions.UserErrorf("That soundcron no longer exists.")
	}
	return sc, err
}

func (h *SoundCronHandler) selected(c *interactions.Context, fc *interactions.FlowContext) error {
	values := c.Interaction.MessageComponentData().Values
	if len(values) != 1 {
		return interactions.UserErrorf("Select a single soundcron.")
	}
	sc, err := h.get(c, values[0])
	if err != nil {
		return err
	}
	fc.State["soundCronID"] = sc.ID

	resp, err := presenters.SoundCronListActionsMenu(sc.ID, sc.Name)
	if err != nil {
		return err
	}

	jobs, err := h.repo.UpcomingJobs(c, sc.ID)
	if err != nil {
		h.logger.WarnContext(c, "Failed to list upcoming runs", "soundCronID", sc.ID, "error", err)
	}
	upcoming := make([]time.Time, len(jobs))
	for i, j := range jobs {
		upcoming[i] = j.RunTime
	}
	embed, err := presenters.SoundCronDetails(sc, upcoming)
	if err != nil {
		return err
	}
	resp.Data.Embeds = []*discordgo.MessageEmbed{embed}
	return c.Respond(resp)
}

func (h *SoundCronHandler) edit(c *interactions.Context, _ *interactions.FlowContext) error {
	id := interactions.InstanceIDFromInteraction(c.Interaction)
	sc, err := h.get(c, id)
	if err != nil {
		return err
	}
	modal, err := presenters.SoundCronEditModal(sc.ID, sc.Cron)
	if err != nil {
		return err
	}
	return c.ShowModal(modal)
}

func (h *SoundCronHandler) submitEdit(c *interactions.Context, values map[string]string) error {
	id := interactions.InstanceIDFromInteraction(c.Interaction)
	cron := values[presenters.InputIDCron]
	if err := schedule.ValidateCron(cron); err != nil {
		return interactions.UserErrorf("`%s` is not a valid cron expression.", cron)
	}

	sc, err := h.get(c, id)
	if err != nil {
		return err
	}
	sc.Cron = cron
	if err := h.repo.Save(c, sc); err != nil {
		return fmt.Errorf("failed to update soundcron %s: %w", sc.ID, err)
	}
	h.logger.InfoContext(c, "Updated soundcron", "guildID", sc.GuildID, "soundCronID", sc.ID, "cron", cron)
	return c.Reply(fmt.Sprintf("**%s** now runs on `%s`.", sc.Name, cron), true)
}

func (h *SoundCronHandler) delete(c *interactions.Context, _ *interactions.FlowContext) error {
	id := interactions.InstanceIDFromInteraction(c.Interaction)
	sc, err := h.get(c, id)
	if err != nil {
		return err
	}

	if err := h.repo.Delete(c, sc.GuildID, sc.ID); err != nil {
		if errors.Is(err, repository.ErrSoundCronNotFound) {
			return interactions.UserErrorf("That soundcron no longer exists.")
		}
		return fmt.Errorf("failed to delete soundcron %s: %w", sc.ID, err)
	}
	// Runs claimed before the delete are still waiting in the scheduler.
	if err := h.blacklist.AddToBlacklist(c, sc.ID); err != nil {
		h.logger.WarnContext(c, "Failed to blacklist deleted soundcron", "soundCronID", sc.ID, "error", err)
	}
	if h.clips != nil {
		if err := h.clips.Delete(c, ClipKey(sc.ID)); err != nil {
			h.logger.WarnContext(c, "Failed to delete clip", "soundCronID", sc.ID, "error", err)
		}
	}

	h.logger.InfoContext(c, "Deleted soundcron", "guildID", sc.GuildID, "soundCronID", sc.ID)
	return c.Update(&discordgo.InteractionResponseData{
		Content:    fmt.Sprintf("Deleted **%s**.", sc.Name),
		Components: []discordgo.MessageComponent{},
	})
}

func (h *SoundCronHandler) addFile(c *interactions.Context, _ *interactions.FlowContext) error {
	if h.piper == nil {
		return interactions.UserErrorf("Uploading soundcrons is disabled.")
	}
	data := c.Interaction.ApplicationCommandData()
	_, options := interactions.CommandPath(data)

	var attachments map[string]*discordgo.MessageAttachment
	if data.Resolved != nil {
		attachments = data.Resolved.Attachments
	}
	req, err := CommandToAddFileRequest(attachments, options)
	if err != nil {
		return err
	}
	if err := schedule.ValidateCron(req.Cron); err != nil {
		return interactions.UserErrorf("`%s` is not a valid cron expression.", req.Cron)
	}

	guildID := c.Interaction.GuildID
	soundCrons, err := h.repo.List(c, guildID)
	if err != nil {
		return fmt.Errorf("failed to list soundcrons: %w", err)
	}
	if err := CheckNameAvailable(soundCrons, guildID, req.Name); err != nil {
		return interactions.UserErrorf("A soundcron named **%s** already exists.", req.Name)
	}
	if err := CheckStorageAvailable(soundCrons, int64(req.Attachment.Size), h.maxStorage); err != nil {
		return interactions.UserErrorf("This server is out of soundcron storage.")
	}

	id, err := h.idGenerator.Next()
	if err != nil {
		return fmt.Errorf("failed to generate soundcron id: %w", err)
	}

	if err := c.Defer(true); err != nil {
		return err
	}
	// From here on the answer has to go through Edit.
	if err := h.store(c, guildID, id, req); err != nil {
		var tooLong *ClipTooLongError
		var exists *repository.SoundCronAlreadyExistsError
		switch {
		case errors.As(err, &tooLong):
			return c.Edit(fmt.Sprintf("That clip is too long. Soundcrons can be at most %s.", tooLong.Max))
		case errors.As(err, &exists):
			return c.Edit(fmt.Sprintf("A soundcron named **%s** already exists.", req.Name))
		}
		if editErr := c.Edit("Something went wrong while saving the soundcron."); editErr != nil {
			h.logger.WarnContext(c, "Failed to report error", "error", editErr)
		}
		return err
	}
	return c.Edit(fmt.Sprintf("Added **%s**, running on `%s`.", req.Name, req.Cron))
}

func (h *SoundCronHandler) store(ctx context.Context, guildID, id string, req *SoundCronAddFileRequest) error {
	clip, err := h.piper.Pipe(ctx, ClipKey(id), req.Attachment.URL)
	if err != nil {
		return err
	}

	soundCron := repository.SoundCron{
		ID:       id,
		Name:     req.Name,
		GuildID:  guildID,
		Cron:     req.Cron,
		FileSize: clip.Size,
	}
	if err := h.repo.Save(ctx, soundCron); err != nil {
		if delErr := h.piper.blobStorage.Delete(ctx, ClipKey(id)); delErr != nil {
			h.logger.WarnContext(ctx, "Failed to remove orphaned clip", "soundCronID", id, "error", delErr)
		}
		return err
	}
	h.logger.InfoContext(ctx, "Added soundcron", "guildID", guildID, "soundCronID", id, "cron", req.Cron)
	return nil
}
