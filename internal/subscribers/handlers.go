package subscribers

import (
	"context"
	"net/http"
	"time"

	"serverless-kit/pkg/middleware"
	"serverless-kit/pkg/response"
	"serverless-kit/pkg/validation"
)

const exportURLTTL = 15 * time.Minute

// createSchema validates the sign-up body.
var createSchema = map[string]validation.Validator{
	"email": validation.Email("email", true),
	"name":  validation.String(validation.StringRules{Min: 1, Max: 100}, "name", false),
	"topics": func(v any) validation.Result {
		return validation.ValidateArray(v, validation.ArrayRules{
			Max:  len(Topics),
			Item: validation.Enum(Topics, "topic", true),
		}, "topics", false)
	},
}

var idRules = map[string]validation.Validator{
	"id": validation.UUID("id", true),
}

// Handlers adapts the service to pipeline handlers.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Create handles POST /subscribers.
func (h *Handlers) Create(ctx context.Context, inv *middleware.Invocation, ev *middleware.Event) (response.Envelope, error) {
	data, _ := ev.ValidatedData().(map[string]any)
	in := CreateInput{}
	in.Email, _ = data["email"].(string)
	in.Name, _ = data["name"].(string)
	if topics, ok := data["topics"].([]any); ok {
		for _, t := range topics {
			if s, ok := t.(string); ok {
				in.Topics = append(in.Topics, s)
			}
		}
	}

	sub, err := h.service.Subscribe(ctx, in)
	if err != nil {
		return response.Envelope{}, err
	}
	return inv.Builder.Success(sub, http.StatusCreated, inv.CorrelationID, map[string]string{
		"Location": "/subscribers/" + sub.ID,
	}), nil
}

// Get handles GET /subscribers/{id}.
func (h *Handlers) Get(ctx context.Context, inv *middleware.Invocation, ev *middleware.Event) (response.Envelope, error) {
	sub, err := h.service.Get(ctx, pathID(ev))
	if err != nil {
		return response.Envelope{}, err
	}
	return inv.Builder.Success(sub, http.StatusOK, inv.CorrelationID, nil), nil
}

// List handles GET /subscribers.
func (h *Handlers) List(ctx context.Context, inv *middleware.Invocation, ev *middleware.Event) (response.Envelope, error) {
	page, _ := ev.ValidatedData().(validation.Pagination)
	if page.Limit == 0 {
		page.Limit = validation.DefaultPageLimit
	}

	items, next, err := h.service.List(ctx, page.Limit, page.Cursor)
	if err != nil {
		return response.Envelope{}, err
	}

	meta := map[string]any{"limit": page.Limit, "hasMore": next != ""}
	if next != "" {
		meta["nextCursor"] = next
	}
	return inv.Builder.Paginated(items, meta, inv.CorrelationID), nil
}

// Delete handles DELETE /subscribers/{id}.
func (h *Handlers) Delete(ctx context.Context, inv *middleware.Invocation, ev *middleware.Event) (response.Envelope, error) {
	if err := h.service.Unsubscribe(ctx, pathID(ev)); err != nil {
		return response.Envelope{}, err
	}
	return inv.Builder.NoContent(inv.CorrelationID), nil
}

// Export handles GET /subscribers/{id}/export.
func (h *Handlers) Export(ctx context.Context, inv *middleware.Invocation, ev *middleware.Event) (response.Envelope, error) {
	url, err := h.service.Export(ctx, pathID(ev), exportURLTTL)
	if err != nil {
		return response.Envelope{}, err
	}
	return inv.Builder.Success(map[string]any{
		"url":       url,
		"expiresIn": int(exportURLTTL.Seconds()),
	}, http.StatusOK, inv.CorrelationID, nil), nil
}

// pathID prefers the validated, lower-cased id.
func pathID(ev *middleware.Event) string {
	if id, ok := ev.ValidatedPath()["id"].(string); ok {
		return id
	}
	return ev.PathParams["id"]
}
