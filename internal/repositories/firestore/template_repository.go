package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	pfirestore "github.com/Anthobetto/UNMI-sub001/internal/platform/firestore"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/pagination"
	"github.com/Anthobetto/UNMI-sub001/internal/repositories"
)

const defaultTemplatesCollection = "messageTemplates"

// TemplateRepository stores message templates in a top-level Firestore collection.
type TemplateRepository struct {
	docs *pfirestore.Collection[templateDocument]
}

var _ repositories.TemplateRepository = (*TemplateRepository)(nil)

// NewTemplateRepository constructs a Firestore-backed template repository.
func NewTemplateRepository(provider *pfirestore.Provider, collection string) (*TemplateRepository, error) {
	if provider == nil {
		return nil, errors.New("template repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultTemplatesCollection
	}
	docs, err := pfirestore.NewCollection[templateDocument](provider, collection)
	if err != nil {
		return nil, err
	}
	return &TemplateRepository{docs: docs}, nil
}

// Insert creates the template document. Reusing an id is reported as a conflict.
func (r *TemplateRepository) Insert(ctx context.Context, tmpl domain.MessageTemplate) error {
	_, err := r.docs.Create(ctx, tmpl.ID, templateDocumentFrom(tmpl))
	return err
}

// Get loads a template by id.
func (r *TemplateRepository) Get(ctx context.Context, templateID string) (domain.MessageTemplate, error) {
	doc, err := r.docs.Get(ctx, strings.TrimSpace(templateID))
	if err != nil {
		return domain.MessageTemplate{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByOwner returns the owner's templates ordered by creation time, newest first. One extra
// document is fetched to decide whether a next page exists.
func (r *TemplateRepository) ListByOwner(ctx context.Context, ownerID string, params pagination.Params) (pagination.Page[domain.MessageTemplate], error) {
	size := params.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	docs, err := r.docs.Query(ctx, ownerTemplatesQuery(strings.TrimSpace(ownerID), params.Cursor, size+1))
	if err != nil {
		return pagination.Page[domain.MessageTemplate]{}, err
	}

	hasMore := len(docs) > size
	if hasMore {
		docs = docs[:size]
	}
	page := pagination.Page[domain.MessageTemplate]{Items: make([]domain.MessageTemplate, 0, len(docs))}
	for _, doc := range docs {
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	if hasMore {
		last := page.Items[len(page.Items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return pagination.Page[domain.MessageTemplate]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

func ownerTemplatesQuery(ownerID string, cursor pagination.Cursor, limit int) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		q = q.Where("ownerId", "==", ownerID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt.UTC(), cursor.ID)
		}
		return q.Limit(limit)
	}
}

type templateDocument struct {
	OwnerID   string    `firestore:"ownerId"`
	Name      string    `firestore:"name"`
	Language  string    `firestore:"language,omitempty"`
	Channel   string    `firestore:"channel"`
	Content   string    `firestore:"content"`
	Variables []string  `firestore:"variables"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func templateDocumentFrom(tmpl domain.MessageTemplate) templateDocument {
	variables := tmpl.Variables
	if variables == nil {
		variables = []string{}
	}
	return templateDocument{
		OwnerID:   tmpl.OwnerID,
		Name:      tmpl.Name,
		Language:  tmpl.Language,
		Channel:   tmpl.Channel,
		Content:   tmpl.Content,
		Variables: variables,
		CreatedAt: tmpl.CreatedAt.UTC(),
		UpdatedAt: tmpl.UpdatedAt.UTC(),
	}
}

func (d templateDocument) toDomain(id string) domain.MessageTemplate {
	return domain.MessageTemplate{
		ID:        id,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		Language:  d.Language,
		Channel:   d.Channel,
		Content:   d.Content,
		Variables: append([]string(nil), d.Variables...),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}
