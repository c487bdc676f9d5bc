package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/changeorders/modules/changeorders/infrastructure/memstore"
	"github.com/iota-uz/changeorders/modules/changeorders/presentation/controllers"
	"github.com/iota-uz/changeorders/modules/changeorders/presentation/controllers/dtos"
	"github.com/iota-uz/changeorders/modules/changeorders/services"
	"github.com/iota-uz/changeorders/pkg/application"
	"github.com/iota-uz/changeorders/pkg/httpapi"
	"github.com/iota-uz/changeorders/pkg/middleware"
)

const actorHeader = "X-Actor-ID"

type apiHarness struct {
	t       *testing.T
	router  *mux.Router
	scopeID uuid.UUID
	author  uuid.UUID
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	store := memstore.New()
	svc := services.NewChangeOrderService(services.Dependencies{
		UnitOfWork: memstore.NewUnitOfWork(store),
		Requests:   memstore.NewChangeRequestRepository(store),
		Counter:    memstore.NewCounterRepository(store),
		Steps:      memstore.NewApprovalStepRepository(store),
		Audit:      memstore.NewAuditRepository(store),
		Lines:      memstore.NewCostLineRepository(store),
		Numbering:  services.NumberingOptions{Prefix: "CO", Pad: 4, MaxAttempts: 3},
	})

	app := application.New(&application.ApplicationOptions{Logger: logger})
	app.RegisterServices(svc)
	app.RegisterControllers(controllers.NewChangeOrdersAPIController(app))

	r := mux.NewRouter()
	r.Use(middleware.WithActor(actorHeader))
	for _, c := range app.Controllers() {
		c.Register(r)
	}
	return &apiHarness{t: t, router: r, scopeID: uuid.New(), author: uuid.New()}
}

func (h *apiHarness) do(method, path string, actor uuid.UUID, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(h.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, "/change-orders/api"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set(actorHeader, actor.String())
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func requireAPIError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) httpapi.ErrorEnvelope {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	env := decode[httpapi.ErrorEnvelope](t, rr)
	require.Equal(t, code, env.Code)
	return env
}

func (h *apiHarness) create(body map[string]any) dtos.ChangeRequestResponse {
	h.t.Helper()
	if _, ok := body["scope_id"]; !ok {
		body["scope_id"] = h.scopeID
	}
	rr := h.do(http.MethodPost, "/change-requests", h.author, body)
	require.Equal(h.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[dtos.ChangeRequestResponse](h.t, rr)
}

func TestChangeOrdersAPI_ApprovalFlow(t *testing.T) {
	h := newAPIHarness(t)
	first, second := uuid.New(), uuid.New()

	cr := h.create(map[string]any{
		"title":          "Add mezzanine",
		"category":       "scope_change",
		"baseline_value": "100000",
		"baseline_date":  "2025-04-01",
		"approver_ids":   []uuid.UUID{first, second},
	})
	require.Equal(t, "draft", cr.Status)
	require.Equal(t, "CO-"+services.ScopeCode(h.scopeID)+"-0001", cr.Number)
	require.Nil(t, cr.RevisedValue)
	require.Equal(t, first.String(), *cr.CurrentApproverID)

	rr := h.do(http.MethodPatch, "/change-requests/"+cr.ID, h.author, map[string]any{
		"delta_value": "15000.5",
		"day_impact":  12,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cr = decode[dtos.ChangeRequestResponse](t, rr)
	require.Equal(t, "115000.50", *cr.RevisedValue)
	require.Equal(t, "$115,000.50", cr.RevisedValueDisplay)
	require.Equal(t, "2025-04-13", *cr.RevisedDate)

	rr = h.do(http.MethodPost, "/change-requests/"+cr.ID+":submit", h.author, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = h.do(http.MethodPost, "/change-requests/"+cr.ID+":decide", second, map[string]any{"decision": "approve"})
	requireAPIError(t, rr, http.StatusUnprocessableEntity, "CO_OUT_OF_TURN")

	rr = h.do(http.MethodPost, "/change-requests/"+cr.ID+":decide", first, map[string]any{"decision": "approve", "comment": "fine"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, second.String(), *decode[dtos.ChangeRequestResponse](t, rr).CurrentApproverID)

	rr = h.do(http.MethodPost, "/change-requests/"+cr.ID+":decide", second, map[string]any{"decision": "approve"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cr = decode[dtos.ChangeRequestResponse](t, rr)
	require.Equal(t, "approved", cr.Status)
	require.NotNil(t, cr.ApprovedAt)
	require.Nil(t, cr.CurrentApproverID)

	rr = h.do(http.MethodGet, "/change-requests/"+cr.ID+"/steps", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	steps := decode[struct {
		Items []dtos.StepResponse `json:"items"`
	}](t, rr).Items
	require.Len(t, steps, 2)
	require.Equal(t, "approved", steps[0].Status)
	require.Equal(t, "fine", *steps[0].Comment)

	rr = h.do(http.MethodGet, "/change-requests/"+cr.ID+"/history", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode[struct {
		Items []dtos.AuditEntryResponse `json:"items"`
	}](t, rr).Items
	require.Equal(t, "created", history[0].Action)
	require.Equal(t, "approved", history[len(history)-1].Action)

	rr = h.do(http.MethodPatch, "/change-requests/"+cr.ID, h.author, map[string]any{"title": "late edit"})
	requireAPIError(t, rr, http.StatusUnprocessableEntity, "CO_NOT_EDITABLE")
}

func TestChangeOrdersAPI_RejectsMalformedInput(t *testing.T) {
	h := newAPIHarness(t)
	cr := h.create(map[string]any{"title": "Rework drainage", "category": "site_condition"})

	t.Run("unknown field", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/change-requests", h.author, `{"title":"x","category":"other","colour":"red"}`)
		env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
		require.Contains(t, env.Fields["body"], "colour")
	})

	t.Run("empty body", func(t *testing.T) {
		rr := h.do(http.MethodPatch, "/change-requests/"+cr.ID, h.author, nil)
		env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
		require.Equal(t, "request body is required", env.Fields["body"])
	})

	t.Run("shape errors use json names", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/change-requests", h.author, map[string]any{"scope_id": h.scopeID, "baseline_date": "04/01/2025"})
		env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
		require.Contains(t, env.Fields, "title")
		require.Contains(t, env.Fields, "category")
	})

	t.Run("domain validation", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/change-requests", h.author, map[string]any{
			"scope_id": h.scopeID, "title": "x", "category": "weather", "baseline_value": "-1",
		})
		env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
		require.Contains(t, env.Fields, "category")
		require.Contains(t, env.Fields, "baseline_value")
	})

	t.Run("null on a required field", func(t *testing.T) {
		rr := h.do(http.MethodPatch, "/change-requests/"+cr.ID, h.author, `{"title":null}`)
		env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
		require.Contains(t, env.Fields, "title")
	})

	t.Run("missing actor", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/change-requests/"+cr.ID+":submit", uuid.Nil, nil)
		requireAPIError(t, rr, http.StatusUnauthorized, "CO_ACTOR_REQUIRED")
	})

	t.Run("bad id", func(t *testing.T) {
		rr := h.do(http.MethodGet, "/change-requests/not-a-uuid", uuid.Nil, nil)
		requireAPIError(t, rr, http.StatusBadRequest, "CO_INVALID_QUERY")
	})

	t.Run("unknown request", func(t *testing.T) {
		rr := h.do(http.MethodGet, "/change-requests/"+uuid.NewString(), uuid.Nil, nil)
		requireAPIError(t, rr, http.StatusNotFound, "CO_NOT_FOUND")
	})

	t.Run("unknown decision", func(t *testing.T) {
		rr := h.do(http.MethodPost, "/change-requests/"+cr.ID+":decide", h.author, map[string]any{"decision": "maybe"})
		env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
		require.Contains(t, env.Fields, "decision")
	})
}

func TestChangeOrdersAPI_PatchClearsNullableFields(t *testing.T) {
	h := newAPIHarness(t)
	cr := h.create(map[string]any{
		"title":          "Steel upgrade",
		"category":       "design_change",
		"baseline_value": "5000",
		"delta_value":    "250",
	})
	require.Equal(t, "5250.00", *cr.RevisedValue)

	rr := h.do(http.MethodPatch, "/change-requests/"+cr.ID, h.author, `{"delta_value":null,"description":null}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cr = decode[dtos.ChangeRequestResponse](t, rr)
	require.Nil(t, cr.DeltaValue)
	require.Equal(t, "5250.00", *cr.RevisedValue, "revised value survives a cleared delta")
}

func TestChangeOrdersAPI_LineItemsDriveDelta(t *testing.T) {
	h := newAPIHarness(t)
	cr := h.create(map[string]any{
		"title":          "Extra glazing",
		"category":       "owner_request",
		"baseline_value": "1000",
		"delta_source":   "line_items",
	})

	rr := h.do(http.MethodPost, "/change-requests/"+cr.ID+"/line-items", h.author, map[string]any{
		"description": "Panels", "quantity": "3", "unit_rate": "12.50",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	added := decode[dtos.LineItemMutationResponse](t, rr)
	require.Equal(t, "37.50", added.Item.Amount)
	require.Equal(t, "37.50", *added.ChangeRequest.DeltaValue)
	require.Equal(t, "1037.50", *added.ChangeRequest.RevisedValue)

	rr = h.do(http.MethodPatch, "/change-requests/"+cr.ID+"/line-items/"+added.Item.ID, h.author, map[string]any{"quantity": "4"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "50.00", *decode[dtos.LineItemMutationResponse](t, rr).ChangeRequest.DeltaValue)

	rr = h.do(http.MethodGet, "/change-requests/"+cr.ID+"/line-items", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[dtos.LineItemsResponse](t, rr)
	require.Len(t, list.Items, 1)
	require.Equal(t, "50.00", list.Total)

	rr = h.do(http.MethodDelete, "/change-requests/"+cr.ID+"/line-items/"+added.Item.ID, h.author, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "0.00", *decode[dtos.LineItemMutationResponse](t, rr).ChangeRequest.DeltaValue)

	rr = h.do(http.MethodPatch, "/change-requests/"+cr.ID, h.author, map[string]any{"delta_value": "10"})
	env := requireAPIError(t, rr, http.StatusBadRequest, "CO_VALIDATION")
	require.Contains(t, env.Fields, "delta_value")
}

func TestChangeOrdersAPI_ListByScope(t *testing.T) {
	h := newAPIHarness(t)
	for _, title := range []string{"one", "two", "three"} {
		h.create(map[string]any{"title": title, "category": "other"})
	}
	cancelled := h.create(map[string]any{"title": "four", "category": "other"})
	rr := h.do(http.MethodPost, "/change-requests/"+cancelled.ID+":cancel", h.author, map[string]any{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = h.do(http.MethodGet, "/scopes/"+h.scopeID.String()+"/change-requests?status=draft&limit=2", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[dtos.ChangeRequestListResponse](t, rr)
	require.EqualValues(t, 3, page.Total)
	require.Equal(t, 2, page.Limit)
	require.Len(t, page.Items, 2)

	rr = h.do(http.MethodGet, "/scopes/"+h.scopeID.String()+"/change-requests?status=cancelled", uuid.Nil, nil)
	page = decode[dtos.ChangeRequestListResponse](t, rr)
	require.Len(t, page.Items, 1)
	require.Equal(t, cancelled.ID, page.Items[0].ID)
	require.NotNil(t, page.Items[0].CancelledAt)

	rr = h.do(http.MethodGet, "/scopes/"+h.scopeID.String()+"/change-requests?status=archived", uuid.Nil, nil)
	requireAPIError(t, rr, http.StatusBadRequest, "CO_INVALID_QUERY")
}
