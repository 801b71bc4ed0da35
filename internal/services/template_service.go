package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/pagination"
	"github.com/Anthobetto/UNMI-sub001/internal/repositories"
)

var (
	// ErrTemplateInvalidInput indicates required template fields are missing.
	ErrTemplateInvalidInput = errors.New("template: invalid input")
	// ErrTemplateRepositoryUnavailable indicates the template store failed.
	ErrTemplateRepositoryUnavailable = errors.New("template: repository unavailable")
	// ErrTemplateNotFound indicates the template does not exist for the caller.
	ErrTemplateNotFound = errors.New("template: not found")
)

var templateChannels = map[string]struct{}{
	"whatsapp": {},
	"sms":      {},
}

// TemplateServiceDeps wires the template service.
type TemplateServiceDeps struct {
	Repository  repositories.TemplateRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// SaveTemplateCommand carries a template submitted by a tenant.
type SaveTemplateCommand struct {
	OwnerID   string
	Name      string
	Language  string
	Channel   string
	Content   string
	Variables []string
}

// TemplateService validates message templates before handing them to storage.
type TemplateService struct {
	repo   repositories.TemplateRepository
	policy *bluemonday.Policy
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewTemplateService constructs a TemplateService.
func NewTemplateService(deps TemplateServiceDeps) (*TemplateService, error) {
	if deps.Repository == nil {
		return nil, errors.New("template service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &TemplateService{
		repo:   deps.Repository,
		policy: bluemonday.StrictPolicy(),
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  newID,
		logger: logger,
	}, nil
}

// SanitizeContent strips markup from a template body, leaving plain text and placeholders.
func (s *TemplateService) SanitizeContent(content string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(content)))
}

// Validate checks the body exactly as submitted against the declared variables.
func (s *TemplateService) Validate(content string, variables []string) error {
	return ValidateTemplateVariables(content, variables)
}

// SaveTemplate validates and persists a template. Invalid templates are never stored.
func (s *TemplateService) SaveTemplate(ctx context.Context, cmd SaveTemplateCommand) (domain.MessageTemplate, error) {
	owner := strings.TrimSpace(cmd.OwnerID)
	name := strings.TrimSpace(cmd.Name)
	if owner == "" || name == "" {
		return domain.MessageTemplate{}, fmt.Errorf("%w: owner and name are required", ErrTemplateInvalidInput)
	}
	channel := strings.ToLower(strings.TrimSpace(cmd.Channel))
	if channel == "" {
		channel = "whatsapp"
	}
	if _, ok := templateChannels[channel]; !ok {
		return domain.MessageTemplate{}, fmt.Errorf("%w: unsupported channel %q", ErrTemplateInvalidInput, channel)
	}

	content := strings.TrimSpace(cmd.Content)
	variables := make([]string, 0, len(cmd.Variables))
	for _, v := range cmd.Variables {
		variables = append(variables, strings.TrimSpace(v))
	}
	if err := ValidateTemplateVariables(content, variables); err != nil {
		return domain.MessageTemplate{}, err
	}
	// Stored bodies are sent verbatim; markup would reach recipients as literal text.
	if s.SanitizeContent(content) != content {
		return domain.MessageTemplate{}, fmt.Errorf("%w: content must be plain text", ErrTemplateInvalidInput)
	}

	now := s.now()
	tmpl := domain.MessageTemplate{
		ID:        s.newID(),
		OwnerID:   owner,
		Name:      name,
		Language:  strings.TrimSpace(cmd.Language),
		Channel:   channel,
		Content:   content,
		Variables: variables,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tmpl); err != nil {
		s.logger(ctx, "template.save_failed", map[string]any{
			"ownerId": owner,
			"error":   err.Error(),
		})
		return domain.MessageTemplate{}, fmt.Errorf("%w: %v", ErrTemplateRepositoryUnavailable, err)
	}
	s.logger(ctx, "template.saved", map[string]any{
		"templateId": tmpl.ID,
		"ownerId":    owner,
		"variables":  len(variables),
	})
	return tmpl, nil
}

// GetTemplate returns a template owned by ownerID. Templates of other owners are reported
// as not found.
func (s *TemplateService) GetTemplate(ctx context.Context, ownerID, templateID string) (domain.MessageTemplate, error) {
	ownerID = strings.TrimSpace(ownerID)
	templateID = strings.TrimSpace(templateID)
	if ownerID == "" || templateID == "" {
		return domain.MessageTemplate{}, fmt.Errorf("%w: owner and template id are required", ErrTemplateInvalidInput)
	}
	tmpl, err := s.repo.Get(ctx, templateID)
	switch {
	case repositories.IsNotFound(err):
		return domain.MessageTemplate{}, ErrTemplateNotFound
	case err != nil:
		return domain.MessageTemplate{}, fmt.Errorf("%w: %v", ErrTemplateRepositoryUnavailable, err)
	case tmpl.OwnerID != ownerID:
		return domain.MessageTemplate{}, ErrTemplateNotFound
	}
	return tmpl, nil
}

// ListTemplates pages through the owner's templates, newest first.
func (s *TemplateService) ListTemplates(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.MessageTemplate], error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return pagination.Page[domain.MessageTemplate]{}, fmt.Errorf("%w: owner is required", ErrTemplateInvalidInput)
	}
	page, err := s.repo.ListByOwner(ctx, ownerID, params)
	if err != nil {
		return pagination.Page[domain.MessageTemplate]{}, fmt.Errorf("%w: %v", ErrTemplateRepositoryUnavailable, err)
	}
	return page, nil
}
