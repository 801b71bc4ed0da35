package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/Anthobetto/UNMI-sub001/internal/domain"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/auth"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/httpx"
	"github.com/Anthobetto/UNMI-sub001/internal/platform/pagination"
	"github.com/Anthobetto/UNMI-sub001/internal/services"
)

const maxTemplateRequestBody = 32 * 1024

// TemplateHandlers exposes message template validation and storage for authenticated tenants.
type TemplateHandlers struct {
	authn     *auth.Authenticator
	templates services.MessageTemplateService
}

// NewTemplateHandlers constructs template handlers.
func NewTemplateHandlers(authn *auth.Authenticator, templates services.MessageTemplateService) *TemplateHandlers {
	return &TemplateHandlers{authn: authn, templates: templates}
}

// Routes registers template endpoints on the API root.
func (h *TemplateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.Post("/templates:validate", h.validate)
	group.Post("/templates", h.create)
	group.Get("/templates", h.list)
	group.Get("/templates/{templateId}", h.get)
}

type validateTemplateRequest struct {
	Content   string   `json:"content" validate:"required"`
	Variables []string `json:"variables" validate:"omitempty,max=50,dive,required"`
}

type validateTemplateResponse struct {
	Valid     bool     `json:"valid"`
	Variables []string `json:"variables"`
}

type createTemplateRequest struct {
	Name      string   `json:"name" validate:"required,max=120"`
	Language  string   `json:"language" validate:"omitempty,max=35"`
	Channel   string   `json:"channel" validate:"omitempty,oneof=whatsapp sms"`
	Content   string   `json:"content" validate:"required"`
	Variables []string `json:"variables" validate:"omitempty,max=50,dive,required"`
}

type templatePayload struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Language  string   `json:"language,omitempty"`
	Channel   string   `json:"channel"`
	Content   string   `json:"content"`
	Variables []string `json:"variables"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

type templateListResponse struct {
	Items         []templatePayload `json:"items"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

func (h *TemplateHandlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateTemplateRequest
	if !decodeRequest(w, r, maxTemplateRequestBody, &req) {
		return
	}
	if err := h.templates.Validate(req.Content, req.Variables); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	variables := req.Variables
	if variables == nil {
		variables = []string{}
	}
	writeJSONResponse(w, http.StatusOK, validateTemplateResponse{Valid: true, Variables: variables})
}

func (h *TemplateHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	var req createTemplateRequest
	if !decodeRequest(w, r, maxTemplateRequestBody, &req) {
		return
	}
	tmpl, err := h.templates.SaveTemplate(ctx, services.SaveTemplateCommand{
		OwnerID:   uid,
		Name:      req.Name,
		Language:  req.Language,
		Channel:   req.Channel,
		Content:   req.Content,
		Variables: req.Variables,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newTemplatePayload(tmpl))
}

func (h *TemplateHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		field := "pageSize"
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			field = "pageToken"
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", err.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{"fields": map[string]any{field: "is invalid"}}))
		return
	}
	page, err := h.templates.ListTemplates(ctx, uid, params)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := templateListResponse{
		Items:         make([]templatePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, tmpl := range page.Items {
		resp.Items = append(resp.Items, newTemplatePayload(tmpl))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *TemplateHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := requireUID(w, r)
	if !ok {
		return
	}
	tmpl, err := h.templates.GetTemplate(ctx, uid, chi.URLParam(r, "templateId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newTemplatePayload(tmpl))
}

func requireUID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func newTemplatePayload(tmpl domain.MessageTemplate) templatePayload {
	variables := tmpl.Variables
	if variables == nil {
		variables = []string{}
	}
	return templatePayload{
		ID:        tmpl.ID,
		Name:      tmpl.Name,
		Language:  tmpl.Language,
		Channel:   tmpl.Channel,
		Content:   tmpl.Content,
		Variables: variables,
		CreatedAt: tmpl.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: tmpl.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
