package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/text/unicode/norm"

	"studio/internal/assethost"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/media"
	"studio/internal/storage"
)

// DefaultMaxPrompts caps the prompt history.
const DefaultMaxPrompts = 50

// Output is one generation result to record. Image and video outputs carry
// bytes; text outputs carry Text.
type Output struct {
	Type     domain.HistoryItemType
	Data     []byte
	MIMEType string
	Text     string
}

func ImageOutput(a media.ImageAsset) Output {
	return Output{Type: domain.HistoryImage, Data: a.Data, MIMEType: a.MIMEType}
}

func VideoOutput(data []byte) Output {
	return Output{Type: domain.HistoryVideo, Data: data, MIMEType: media.MIMEMP4}
}

func TextOutput(text string) Output {
	return Output{Type: domain.HistoryText, Text: text}
}

type RecordRequest struct {
	Mode    string
	Prompt  string
	Outputs []Output
}

// Skipped is an output that could not be stored.
type Skipped struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type RecordResult struct {
	Items   []domain.HistoryItem `json:"items"`
	Skipped []Skipped            `json:"skipped,omitempty"`
}

type ServiceOptions struct {
	// Uploader is the cloud asset host; nil archives images locally.
	Uploader   assethost.Uploader
	Archiver   *storage.Archiver
	MaxPrompts int
	Logger     *infra.Logger
}

// Service records generation results: media is uploaded or archived, then
// the resulting URLs are stored as history items.
type Service struct {
	store      Store
	uploader   assethost.Uploader
	archiver   *storage.Archiver
	maxPrompts int
	now        func() time.Time
	logger     *infra.Logger

	mu     sync.Mutex
	opened bool
}

func NewService(store Store, opts ServiceOptions) *Service {
	maxPrompts := opts.MaxPrompts
	if maxPrompts <= 0 {
		maxPrompts = DefaultMaxPrompts
	}
	return &Service{
		store:      store,
		uploader:   opts.Uploader,
		archiver:   opts.Archiver,
		maxPrompts: maxPrompts,
		now:        time.Now,
		logger:     infra.ComponentLogger(opts.Logger, "history"),
	}
}

// Open opens the store once. A failed open is retried on the next call.
func (s *Service) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	if err := s.store.Open(ctx); err != nil {
		return err
	}
	s.opened = true
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return nil
	}
	s.opened = false
	return s.store.Close()
}

// NormalizePrompt is the key prompts are stored under.
func NormalizePrompt(p string) string {
	return norm.NFC.String(strings.TrimSpace(p))
}

// Record stores req's prompt and outputs. Outputs that fail to upload are
// skipped and listed in the result. When the asset host rejects its upload
// preset the remaining items are still saved and the returned error wraps
// domain.ErrHostMisconfigured.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	prompt := NormalizePrompt(req.Prompt)
	if prompt != "" {
		if err := s.savePrompt(ctx, prompt, now); err != nil {
			return nil, err
		}
	}

	res := &RecordResult{}
	var hostErr error
	for i, out := range req.Outputs {
		data, err := s.materialize(ctx, out)
		if err != nil {
			if errors.Is(err, assethost.ErrPresetNotFound) {
				hostErr = err
			}
			s.logger.Warn().Err(err).Int("index", i).Str("type", string(out.Type)).Msg("history output skipped")
			res.Skipped = append(res.Skipped, Skipped{Index: i, Reason: err.Error()})
			continue
		}
		res.Items = append(res.Items, domain.HistoryItem{
			ID:        ksuid.New().String(),
			Type:      out.Type,
			Data:      data,
			Timestamp: now.Add(time.Duration(i) * time.Microsecond),
			Mode:      req.Mode,
			Prompt:    prompt,
		})
	}
	if len(res.Items) > 0 {
		if err := s.store.PutItems(ctx, res.Items); err != nil {
			return nil, fmt.Errorf("history: save items: %w", err)
		}
	}
	s.logger.Info().Str("mode", req.Mode).Int("saved", len(res.Items)).Int("skipped", len(res.Skipped)).Msg("history recorded")
	if hostErr != nil {
		return res, fmt.Errorf("%w: %v", domain.ErrHostMisconfigured, hostErr)
	}
	return res, nil
}

func (s *Service) materialize(ctx context.Context, out Output) (string, error) {
	switch out.Type {
	case domain.HistoryText:
		if strings.TrimSpace(out.Text) == "" {
			return "", fmt.Errorf("%w: empty text output", domain.ErrInvalidInput)
		}
		return out.Text, nil
	case domain.HistoryImage:
		asset := media.ImageAsset{Data: out.Data, MIMEType: out.MIMEType}
		if asset.Empty() {
			return "", fmt.Errorf("%w: empty image output", domain.ErrInvalidInput)
		}
		if s.uploader != nil {
			return s.uploader.Upload(ctx, asset)
		}
		if s.archiver == nil {
			return "", errors.New("history: no archive configured")
		}
		return s.archiver.Upload(ctx, asset)
	case domain.HistoryVideo:
		if len(out.Data) == 0 {
			return "", fmt.Errorf("%w: empty video output", domain.ErrInvalidInput)
		}
		if s.archiver == nil {
			return "", errors.New("history: no archive configured")
		}
		mime := out.MIMEType
		if mime == "" {
			mime = media.MIMEMP4
		}
		return s.archiver.Save(ctx, out.Data, mime)
	default:
		return "", fmt.Errorf("%w: unknown output type %q", domain.ErrInvalidInput, out.Type)
	}
}

func (s *Service) savePrompt(ctx context.Context, prompt string, at time.Time) error {
	if err := s.store.PutPrompt(ctx, prompt, at); err != nil {
		return fmt.Errorf("history: save prompt: %w", err)
	}
	if err := s.store.TrimPrompts(ctx, s.maxPrompts); err != nil {
		return fmt.Errorf("history: trim prompts: %w", err)
	}
	return nil
}

// Items lists history newest first.
func (s *Service) Items(ctx context.Context) ([]domain.HistoryItem, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s.store.ListItems(ctx)
}

// Delete removes one item and its archived file, if any.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return err
	}
	var target *domain.HistoryItem
	for i := range items {
		if items[i].ID == id {
			target = &items[i]
			break
		}
	}
	if target == nil {
		return domain.ErrNotFound
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.removeArchived(ctx, *target)
	return nil
}

// Clear removes every item and archived file.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return err
	}
	if err := s.store.ClearItems(ctx); err != nil {
		return err
	}
	for _, it := range items {
		s.removeArchived(ctx, it)
	}
	return nil
}

func (s *Service) removeArchived(ctx context.Context, it domain.HistoryItem) {
	if s.archiver == nil || it.Type == domain.HistoryText {
		return
	}
	if err := s.archiver.Remove(ctx, it.Data); err != nil {
		s.logger.Warn().Err(err).Str("id", it.ID).Msg("archived file not removed")
	}
}

// Prompts lists recently used prompts, most recent first.
func (s *Service) Prompts(ctx context.Context) ([]string, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s.store.ListPrompts(ctx)
}

// RememberPrompt stores a prompt without any outputs.
func (s *Service) RememberPrompt(ctx context.Context, prompt string) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	prompt = NormalizePrompt(prompt)
	if prompt == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidInput)
	}
	return s.savePrompt(ctx, prompt, s.now().UTC())
}

func (s *Service) ClearPrompts(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	return s.store.ClearPrompts(ctx)
}
