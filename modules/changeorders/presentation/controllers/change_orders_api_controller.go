package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/changeorders/modules/changeorders/domain/approval"
	"github.com/iota-uz/changeorders/modules/changeorders/domain/changerequest"
	"github.com/iota-uz/changeorders/modules/changeorders/presentation/controllers/dtos"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/composables"
	"github.com/iota-uz/changeorders/pkg/httpapi"
)

type ChangeOrdersAPIController struct {
	changeOrders *services.ChangeOrderService
	apiPrefix    string
}

func NewChangeOrdersAPIController(app application.Application) application.Controller {
	return &ChangeOrdersAPIController{
		changeOrders: app.Service(services.ChangeOrderService{}).(*services.ChangeOrderService),
		apiPrefix:    "/change-orders/api",
	}
}

func (c *ChangeOrdersAPIController) Key() string {
	return c.apiPrefix
}

func (c *ChangeOrdersAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/change-requests", instrument("create", c.Create)).Methods(http.MethodPost)
	api.HandleFunc("/scopes/{scope_id}/change-requests", instrument("list", c.ListByScope)).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}", instrument("get", c.Get)).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}", instrument("update", c.Update)).Methods(http.MethodPatch)
	api.HandleFunc("/change-requests/{id}:submit", instrument("submit", c.Submit)).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:decide", instrument("decide", c.Decide)).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:reopen", instrument("reopen", c.Reopen)).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}:cancel", instrument("cancel", c.Cancel)).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}/approvers", instrument("replace_approvers", c.ReplaceApprovers)).Methods(http.MethodPut)
	api.HandleFunc("/change-requests/{id}/history", instrument("history", c.History)).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}/steps", instrument("steps", c.Steps)).Methods(http.MethodGet)

	api.HandleFunc("/change-requests/{id}/line-items", instrument("list_line_items", c.ListLineItems)).Methods(http.MethodGet)
	api.HandleFunc("/change-requests/{id}/line-items", instrument("add_line_item", c.AddLineItem)).Methods(http.MethodPost)
	api.HandleFunc("/change-requests/{id}/line-items/{line_id}", instrument("update_line_item", c.UpdateLineItem)).Methods(http.MethodPatch)
	api.HandleFunc("/change-requests/{id}/line-items/{line_id}", instrument("remove_line_item", c.RemoveLineItem)).Methods(http.MethodDelete)
}

func requireActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actorID, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, r, http.StatusUnauthorized, codeActorRequired, "an acting user is required")
		return uuid.Nil, false
	}
	return actorID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, codeInvalidQuery, name+" is invalid")
		return uuid.Nil, false
	}
	return id, true
}

func (c *ChangeOrdersAPIController) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req dtos.CreateChangeRequestDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	params, errs := req.ToParams()
	if errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	cr, err := c.changeOrders.Create(r.Context(), params, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", c.apiPrefix+"/change-requests/"+cr.ID.String())
	writeJSON(w, r, http.StatusCreated, dtos.NewChangeRequestResponse(cr))
}

func parseFindParams(r *http.Request) (changerequest.FindParams, string) {
	q := r.URL.Query()
	var params changerequest.FindParams

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := changerequest.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				return params, "status is invalid"
			}
			params.Statuses = append(params.Statuses, status)
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, "limit is invalid"
		}
		params.Limit = n
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return params, "offset is invalid"
		}
		params.Offset = n
	}
	return params, ""
}

func (c *ChangeOrdersAPIController) ListByScope(w http.ResponseWriter, r *http.Request) {
	scopeID, ok := pathUUID(w, r, "scope_id")
	if !ok {
		return
	}
	params, problem := parseFindParams(r)
	if problem != "" {
		writeAPIError(w, r, http.StatusBadRequest, codeInvalidQuery, problem)
		return
	}

	res, err := c.changeOrders.ListByScope(r.Context(), scopeID, params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	items := make([]dtos.ChangeRequestResponse, 0, len(res.Items))
	for _, cr := range res.Items {
		items = append(items, dtos.NewChangeRequestResponse(cr))
	}
	writeJSON(w, r, http.StatusOK, dtos.ChangeRequestListResponse{
		Total:  res.Total,
		Limit:  res.Limit,
		Offset: res.Offset,
		Items:  items,
	})
}

func (c *ChangeOrdersAPIController) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cr, err := c.changeOrders.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

func (c *ChangeOrdersAPIController) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req dtos.UpdateChangeRequestDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	patch, errs := req.ToPatch()
	if errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	cr, err := c.changeOrders.Update(r.Context(), id, patch, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

func (c *ChangeOrdersAPIController) Submit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	cr, err := c.changeOrders.Submit(r.Context(), id, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

func (c *ChangeOrdersAPIController) Decide(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req dtos.DecisionDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if errs := req.Ok(); errs != nil {
		writeValidationError(w, r, errs)
		return
	}
	decision, err := approval.ParseDecision(req.Decision)
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	approverID := actorID
	if req.ApproverID != nil {
		approverID = *req.ApproverID
	}

	cr, err := c.changeOrders.Decide(r.Context(), id, approverID, decision, req.Comment, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

// decodeReason accepts an empty body since the reason is optional.
func decodeReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req dtos.ReasonDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, httpapi.ErrEmptyBody) {
		writeDecodeError(w, r, err)
		return "", false
	}
	if errs := req.Ok(); errs != nil {
		writeValidationError(w, r, errs)
		return "", false
	}
	return req.Reason, true
}

func (c *ChangeOrdersAPIController) Reopen(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	reason, ok := decodeReason(w, r)
	if !ok {
		return
	}
	cr, err := c.changeOrders.Reopen(r.Context(), id, reason, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

func (c *ChangeOrdersAPIController) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	reason, ok := decodeReason(w, r)
	if !ok {
		return
	}
	cr, err := c.changeOrders.Cancel(r.Context(), id, reason, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

func (c *ChangeOrdersAPIController) ReplaceApprovers(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req dtos.ApproversDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if errs := req.Ok(); errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	cr, err := c.changeOrders.ReplaceApprovers(r.Context(), id, req.ApproverIDs, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.NewChangeRequestResponse(cr))
}

func (c *ChangeOrdersAPIController) History(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entries, err := c.changeOrders.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": dtos.NewAuditEntryResponses(entries)})
}

func (c *ChangeOrdersAPIController) Steps(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	steps, err := c.changeOrders.Steps(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": dtos.NewStepResponses(steps)})
}
