package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/datalayer"
	"github.com/glizzus/harmony/internal/interactions"
	"github.com/glizzus/harmony/internal/opus"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/util"
)

const (
	MaxStorageSize = 10 * 1024 * 1024 // 10 MB

	// ClipPrefix is the blob storage folder of soundcron clips.
	ClipPrefix = "clips"
)

// ClipKey is the blob storage key of a soundcron's clip.
func ClipKey(soundCronID string) string {
	return ClipPrefix + "/" + soundCronID + ".ogg"
}

type SoundCronAddFileRequest struct {
	Attachment *discordgo.MessageAttachment
	Cron       string
	Name       string
}

func CommandToAddFileRequest(
	attachments map[string]*discordgo.MessageAttachment,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) (*SoundCronAddFileRequest, error) {
	attachment, err := util.GetOne(attachments)
	if errors.Is(err, util.ErrMultipleElements) {
		return nil, interactions.UserErrorf("Please attach only one audio file.")
	}
	if err != nil {
		return nil, interactions.UserErrorf("Please attach an audio file.")
	}

	var cron string
	var name string

	for _, option := range options {
		switch option.Name {
		case "cron":
			if option.Type != discordgo.ApplicationCommandOptionString {
				return nil, fmt.Errorf("invalid type for cron option")
			}
			cron = option.StringValue()
		case "name":
			if option.Type != discordgo.ApplicationCommandOptionString {
				return nil, fmt.Errorf("invalid type for name option")
			}
			name = option.StringValue()
		}
	}

	if cron == "" {
		return nil, interactions.UserErrorf("The cron option is required.")
	}
	if name == "" {
		name = attachment.Filename
	}

	return &SoundCronAddFileRequest{
		Attachment: attachment,
		Cron:       cron,
		Name:       name,
	}, nil
}

type StorageLimitError struct {
	Requested int64
	Current   int64
	Max       int64
}

func (e *StorageLimitError) Error() string {
	return fmt.Sprintf("storage limit exceeded: requested %d, current %d, max %d", e.Requested, e.Current, e.Max)
}

var _ error = (*StorageLimitError)(nil)

func CheckStorageAvailable(soundCrons []repository.SoundCron, requested, maxStorage int64) error {
	var totalSize int64
	for _, soundCron := range soundCrons {
		totalSize += soundCron.FileSize
	}

	if totalSize+requested > maxStorage {
		return &StorageLimitError{
			Requested: requested,
			Current:   totalSize,
			Max:       maxStorage,
		}
	}
	return nil
}

// CheckNameAvailable fails when the guild already has a soundcron called name.
func CheckNameAvailable(soundCrons []repository.SoundCron, guildID, name string) error {
	_, taken := util.FindFirst(soundCrons, func(sc repository.SoundCron) bool {
		return sc.Name == name
	})
	if taken {
		return &repository.SoundCronAlreadyExistsError{GuildID: guildID, Name: name}
	}
	return nil
}

// ClipTooLongError is returned when an uploaded clip plays for longer than
// allowed.
type ClipTooLongError struct {
	Length time.Duration
	Max    time.Duration
}

func (e *ClipTooLongError) Error() string {
	return fmt.Sprintf("clip is %s long, the maximum is %s", e.Length.Round(time.Millisecond), e.Max)
}

var _ error = (*ClipTooLongError)(nil)

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Encoder transcodes arbitrary audio into Ogg Opus.
type Encoder func(r io.Reader) (io.ReadCloser, error)

// AudioPiper downloads an attachment, transcodes it to Ogg Opus and uploads
// the result to blob storage.
type AudioPiper struct {
	blobStorage datalayer.BlobStorage
	httpClient  HTTPClient
	encode      Encoder
	maxLength   time.Duration
	logger      *slog.Logger
}

func NewAudioPiper(blobStorage datalayer.BlobStorage, httpClient HTTPClient, encode Encoder, maxLength time.Duration) *AudioPiper {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if encode == nil {
		encode = opus.Encode
	}
	return &AudioPiper{
		blobStorage: blobStorage,
		httpClient:  httpClient,
		encode:      encode,
		maxLength:   maxLength,
		logger:      slog.Default(),
	}
}

// PipedClip describes an uploaded clip.
type PipedClip struct {
	Size   int64
	Length time.Duration
}

func (a *AudioPiper) Pipe(ctx context.Context, key, sourceURL string) (PipedClip, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return PipedClip{}, fmt.Errorf("failed to create request: %w", err)
	}

	a.logger.DebugContext(ctx, "Downloading clip", "url", sourceURL)
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return PipedClip{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PipedClip{}, fmt.Errorf("failed to download file: %s", resp.Status)
	}

	encoded, err := a.encode(resp.Body)
	if err != nil {
		return PipedClip{}, fmt.Errorf("failed to start encoder: %w", err)
	}
	var buf bytes.Buffer
	_, copyErr := io.Copy(&buf, encoded)
	closeErr := encoded.Close()
	if copyErr != nil {
		return PipedClip{}, fmt.Errorf("failed to encode clip: %w", copyErr)
	}
	if closeErr != nil {
		return PipedClip{}, fmt.Errorf("encoder failed: %w", closeErr)
	}

	length, err := opus.Duration(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return PipedClip{}, fmt.Errorf("failed to measure clip: %w", err)
	}
	if a.maxLength > 0 && length > a.maxLength {
		return PipedClip{}, &ClipTooLongError{Length: length, Max: a.maxLength}
	}

	clip := PipedClip{Size: int64(buf.Len()), Length: length}
	err = a.blobStorage.Put(ctx, key, &buf, datalayer.PutOptions{
		Size:        clip.Size,
		ContentType: "audio/ogg",
	})
	if err != nil {
		return PipedClip{}, fmt.Errorf("failed to upload file: %w", err)
	}
	a.logger.InfoContext(ctx, "Uploaded clip", "key", key, "size", clip.Size, "length", clip.Length)
	return clip, nil
}
