package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"dinein/ordering-service/internal/catalogue"
	"dinein/ordering-service/internal/models"
	"dinein/ordering-service/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type SessionService interface {
	CreateOrReuse(ctx context.Context, input session.CreateInput) (session.CreateResult, error)
	CheckStatus(ctx context.Context, input session.StatusInput) (session.StatusResult, error)
	ConfirmPayment(ctx context.Context, input session.ConfirmInput) (session.Summary, error)
}

type CatalogueService interface {
	ListCategories(ctx context.Context, restaurantID string) ([]string, error)
	AddCategory(ctx context.Context, restaurantID, name string) (models.Category, error)
	SetCategoryIcon(ctx context.Context, restaurantID, categoryName, iconName string) (models.Category, error)
	CategoryIcons(ctx context.Context, restaurantID string) (map[string]*string, error)
	AddItem(ctx context.Context, input catalogue.AddItemInput) (models.Item, error)
	ListItems(ctx context.Context, restaurantID, categoryName string) ([]models.Item, error)
	EditPortion(ctx context.Context, restaurantID string, itemID int64, portionName string, price float64) (models.Portion, error)
	EditItemAttribute(ctx context.Context, restaurantID string, itemID int64, attribute string, value any) (models.Item, error)
}

type Handler struct {
	sessions  SessionService
	catalogue CatalogueService
	adminKey  string
	ready     func(context.Context) error
	log       logrus.FieldLogger
}

type Options struct {
	// AdminKey guards catalogue writes through the X-Admin-Key header. Writes
	// are open when it is empty.
	AdminKey string
	// Ready backs /readyz; nil reports ready.
	Ready  func(context.Context) error
	Logger logrus.FieldLogger
}

type errorResponse struct {
	RequestID string        `json:"requestId"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(sessions SessionService, catalogueService CatalogueService, options Options) *Handler {
	log := options.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		sessions:  sessions,
		catalogue: catalogueService,
		adminKey:  options.AdminKey,
		ready:     options.Ready,
		log:       log,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
	})

	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)

	r.Route("/session", func(r chi.Router) {
		r.Post("/createsession", h.handleCreateSession)
		r.Post("/sessionstatus", h.handleSessionStatus)
		r.Post("/paymentconfirm", h.handlePaymentConfirm)
	})

	r.Route("/catalogue", func(r chi.Router) {
		r.Post("/categories", h.handleCategories)
		r.Post("/categoryicons", h.handleCategoryIcons)
		r.Post("/categoryitems", h.handleCategoryItems)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAdmin)
			r.Post("/addcategories", h.handleAddCategory)
			r.Post("/addcategoryicons", h.handleAddCategoryIcon)
			r.Post("/addcategoryitem", h.handleAddCategoryItem)
			r.Post("/editportion", h.handleEditPortion)
			r.Post("/edititemattribute", h.handleEditItemAttribute)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.log.WithError(err).Warn("readiness check failed")
			writeError(w, r, http.StatusServiceUnavailable, "unavailable", "store unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	if decoder.More() {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func isValidUUIDv4(value string) bool {
	parsed, err := uuid.Parse(value)
	return err == nil && parsed.Version() == 4 && strings.EqualFold(parsed.String(), value)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: RequestIDFromContext(r.Context()),
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": RequestIDFromContext(r.Context()),
		}).Error("request failed")
	}
	writeError(w, r, status, code, message)
}
