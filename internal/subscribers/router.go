package subscribers

import (
	"context"
	"net/http"

	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/middleware"
	"serverless-kit/pkg/response"
	"serverless-kit/pkg/validation"
)

// Route binds a method and resource template to a handler chain.
type Route struct {
	Method   string
	Resource string
	Handler  middleware.Handler
}

// RouterOptions tune the route table.
type RouterOptions struct {
	// AdminRole, when set, is required to delete or export subscribers.
	// Only meaningful when the pipeline authenticates.
	AdminRole string
}

// Router dispatches on method and API Gateway resource so one function can
// serve every route.
type Router struct {
	routes []Route
	index  map[string]middleware.Handler
}

func NewRouter(h *Handlers, opts RouterOptions) *Router {
	var admin []middleware.Step
	if opts.AdminRole != "" {
		admin = append(admin, middleware.RequireRole(opts.AdminRole))
	}
	withID := append(admin, middleware.ValidatePath(idRules))

	r := &Router{index: make(map[string]middleware.Handler)}
	r.add(http.MethodPost, "/subscribers", h.Create, middleware.ValidateBody(createSchema))
	r.add(http.MethodGet, "/subscribers", h.List, middleware.Validate(func(_ any, _, query map[string]string) validation.Result {
		return validation.ValidatePagination(query)
	}))
	r.add(http.MethodGet, "/subscribers/{id}", h.Get, middleware.ValidatePath(idRules))
	r.add(http.MethodDelete, "/subscribers/{id}", h.Delete, withID...)
	r.add(http.MethodGet, "/subscribers/{id}/export", h.Export, withID...)
	return r
}

func (r *Router) add(method, resource string, h middleware.Handler, steps ...middleware.Step) {
	chain := middleware.WithMiddleware(h, steps...)
	r.routes = append(r.routes, Route{Method: method, Resource: resource, Handler: chain})
	r.index[method+" "+resource] = chain
}

// Routes lists the table in registration order.
func (r *Router) Routes() []Route {
	return append([]Route(nil), r.routes...)
}

// Handle is the pipeline handler for every route.
func (r *Router) Handle(ctx context.Context, inv *middleware.Invocation, ev *middleware.Event) (response.Envelope, error) {
	h, ok := r.index[ev.Method+" "+ev.Resource]
	if !ok {
		return response.Envelope{}, apperrors.NewNotFoundError("Route").
			WithDetails(map[string]any{"method": ev.Method, "resource": ev.Resource})
	}
	return h(ctx, inv, ev)
}
