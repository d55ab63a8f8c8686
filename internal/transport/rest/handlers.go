package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 20

var errMalformedID = errors.New("malformed id")

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrders(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if err := decodeBody(w, r, &order); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.svc.CreateOrder(r.Context(), order)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/orders/%s", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

// updateOrder перезаписывает четыре скалярных поля; items из тела игнорируются.
func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body domain.Order
	if err := decodeBody(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.svc.UpdateOrder(r.Context(), id, body.UpdateFields())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items, err := h.svc.ListItems(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.OrderItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.svc.GetItem(r.Context(), orderID, itemID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var item domain.OrderItem
	if err := decodeBody(w, r, &item); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.svc.CreateItem(r.Context(), orderID, item)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/orders/%s/items/%s", orderID, created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var body domain.OrderItem
	if err := decodeBody(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.svc.UpdateItem(r.Context(), orderID, itemID, body.UpdateFields())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	orderID, itemID, err := itemPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.svc.DeleteItem(r.Context(), orderID, itemID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID разбирает UUID из параметра маршрута.
func pathID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", param, errMalformedID)
	}
	return id, nil
}

func itemPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	orderID, err := pathID(r, "orderID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	itemID, err := pathID(r, "itemID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return orderID, itemID, nil
}

// badRequestError — тело запроса не удалось разобрать как JSON.
type badRequestError struct{ err error }

func (e badRequestError) Error() string { return "decode request body: " + e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequestError{err: err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отображает ошибку на HTTP-статус. Тело ответа всегда пустое.
// Несуществующий и некорректный идентификатор неразличимы для клиента: оба дают 404.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var badRequest badRequestError

	switch {
	case domain.IsNotFound(err), errors.Is(err, errMalformedID):
		w.WriteHeader(http.StatusNotFound)
	case domain.IsConflict(err):
		w.WriteHeader(http.StatusConflict)
	case errors.As(err, &badRequest):
		w.WriteHeader(http.StatusBadRequest)
	default:
		h.logger.WithError(err).WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request handling failed")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
