package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/iota-uz/changeorders/modules/changeorders/presentation/controllers/dtos"
	"github.com/iota-uz/changeorders/pkg/httpapi"
)

func (c *ChangeOrdersAPIController) ListLineItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	items, err := c.changeOrders.ListLineItems(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res := dtos.LineItemsResponse{Items: make([]dtos.LineItemResponse, 0, len(items))}
	total := decimal.Zero
	for _, item := range items {
		res.Items = append(res.Items, dtos.NewLineItemResponse(item))
		total = total.Add(item.Amount)
	}
	res.Total = total.StringFixed(2)
	writeJSON(w, r, http.StatusOK, res)
}

func (c *ChangeOrdersAPIController) AddLineItem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req dtos.CreateLineItemDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	params, errs := req.ToParams()
	if errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	item, cr, err := c.changeOrders.AddLineItem(r.Context(), id, params, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	line := dtos.NewLineItemResponse(item)
	writeJSON(w, r, http.StatusCreated, dtos.LineItemMutationResponse{
		Item:          &line,
		ChangeRequest: dtos.NewChangeRequestResponse(cr),
	})
}

func (c *ChangeOrdersAPIController) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "line_id")
	if !ok {
		return
	}

	var req dtos.UpdateLineItemDTO
	if err := httpapi.DecodeJSON(r.Body, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	patch, errs := req.ToPatch()
	if errs != nil {
		writeValidationError(w, r, errs)
		return
	}

	item, cr, err := c.changeOrders.UpdateLineItem(r.Context(), id, lineID, patch, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	line := dtos.NewLineItemResponse(item)
	writeJSON(w, r, http.StatusOK, dtos.LineItemMutationResponse{
		Item:          &line,
		ChangeRequest: dtos.NewChangeRequestResponse(cr),
	})
}

func (c *ChangeOrdersAPIController) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	lineID, ok := pathUUID(w, r, "line_id")
	if !ok {
		return
	}

	cr, err := c.changeOrders.RemoveLineItem(r.Context(), id, lineID, actorID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dtos.LineItemMutationResponse{ChangeRequest: dtos.NewChangeRequestResponse(cr)})
}
