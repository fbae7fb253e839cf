package httpapi

import (
	"net/http"
	"strings"

	"dinein/ordering-service/internal/catalogue"
)

type restaurantRequest struct {
	RestaurantID string `json:"restaurantId"`
}

type addCategoryRequest struct {
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
}

type addCategoryIconRequest struct {
	RestaurantID string `json:"restaurantId"`
	CategoryName string `json:"categoryName"`
	IconName     string `json:"iconName"`
}

type categoryItemsRequest struct {
	RestaurantID string `json:"restaurantId"`
	CategoryName string `json:"categoryName"`
}

type addCategoryItemRequest struct {
	RestaurantID string   `json:"restaurantId"`
	CategoryName string   `json:"categoryName"`
	ItemName     string   `json:"itemName"`
	Description  *string  `json:"description"`
	Price        *float64 `json:"price"`
	ImageURL     *string  `json:"imageUrl"`
	AvailStatus  *bool    `json:"availStatus"`
	PortionAvail *bool    `json:"portionAvail"`
}

type editPortionRequest struct {
	RestaurantID string   `json:"restaurantId"`
	ItemID       int64    `json:"itemId"`
	PortionName  string   `json:"portionName"`
	PortionPrice *float64 `json:"portionPrice"`
}

type editItemAttributeRequest struct {
	RestaurantID   string `json:"restaurantId"`
	ItemID         int64  `json:"itemId"`
	AttributeName  string `json:"attributeName"`
	AttributeValue any    `json:"attributeValue"`
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	var req restaurantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	names, err := h.catalogue.ListCategories(r.Context(), strings.TrimSpace(req.RestaurantID))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"categories": names})
}

func (h *Handler) handleCategoryIcons(w http.ResponseWriter, r *http.Request) {
	var req restaurantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	icons, err := h.catalogue.CategoryIcons(r.Context(), strings.TrimSpace(req.RestaurantID))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, icons)
}

func (h *Handler) handleCategoryItems(w http.ResponseWriter, r *http.Request) {
	var req categoryItemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	items, err := h.catalogue.ListItems(r.Context(), strings.TrimSpace(req.RestaurantID), req.CategoryName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req addCategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := h.catalogue.AddCategory(r.Context(), strings.TrimSpace(req.RestaurantID), req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) handleAddCategoryIcon(w http.ResponseWriter, r *http.Request) {
	var req addCategoryIconRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	category, err := h.catalogue.SetCategoryIcon(r.Context(), strings.TrimSpace(req.RestaurantID), req.CategoryName, req.IconName)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (h *Handler) handleAddCategoryItem(w http.ResponseWriter, r *http.Request) {
	var req addCategoryItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AvailStatus == nil || req.PortionAvail == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "availStatus and portionAvail are required")
		return
	}
	item, err := h.catalogue.AddItem(r.Context(), catalogue.AddItemInput{
		RestaurantID: strings.TrimSpace(req.RestaurantID),
		CategoryName: req.CategoryName,
		ItemName:     req.ItemName,
		Description:  req.Description,
		Price:        req.Price,
		ImageURL:     req.ImageURL,
		AvailStatus:  *req.AvailStatus,
		PortionAvail: *req.PortionAvail,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleEditPortion(w http.ResponseWriter, r *http.Request) {
	var req editPortionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PortionPrice == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "portionPrice is required")
		return
	}
	portion, err := h.catalogue.EditPortion(r.Context(), strings.TrimSpace(req.RestaurantID), req.ItemID, req.PortionName, *req.PortionPrice)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, portion)
}

func (h *Handler) handleEditItemAttribute(w http.ResponseWriter, r *http.Request) {
	var req editItemAttributeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	attribute := strings.TrimSpace(req.AttributeName)
	if attribute == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "attributeName is required")
		return
	}
	item, err := h.catalogue.EditItemAttribute(r.Context(), strings.TrimSpace(req.RestaurantID), req.ItemID, attribute, req.AttributeValue)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
