package repositories

import (
	"context"
	"errors"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/pagination"
)

// RepositoryError categorises persistence failures so services need not know the backend.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// TemplateRepository persists validated message templates.
type TemplateRepository interface {
	// Insert stores a new template. A template with the same id must yield a conflict error.
	Insert(ctx context.Context, tmpl domain.MessageTemplate) error
	// Get returns the template or a RepositoryError with IsNotFound.
	Get(ctx context.Context, templateID string) (domain.MessageTemplate, error)
	// ListByOwner pages through an owner's templates, newest first.
	ListByOwner(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.MessageTemplate], error)
}

// HealthRepository reports the status of downstream dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err is a RepositoryError for a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError for a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
