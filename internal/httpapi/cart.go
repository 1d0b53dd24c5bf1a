package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"upets/platform-service/internal/auth"
	"upets/platform-service/internal/cart"

	"github.com/go-chi/chi/v5"
)

const cartKeepAlive = 25 * time.Second

type cartItemRequest struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	QRType    string  `json:"qr_type"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.carts.Get(auth.UserID(r.Context())))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.carts.Clear(auth.UserID(r.Context())))
}

func (h *Handler) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.carts.AddItem(auth.UserID(r.Context()), cart.Item{
		ProductID: req.ProductID,
		Name:      req.Name,
		QRType:    req.QRType,
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.carts.UpdateQuantity(auth.UserID(r.Context()), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveItem(auth.UserID(r.Context()), chi.URLParam(r, "productID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCartStream pushes the cart as server-sent events until the client
// goes away. The first event is the current state.
func (h *Handler) handleCartStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}
	updates, cancel := h.carts.Subscribe(auth.UserID(r.Context()))
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(cartKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case c, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(c)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: cart\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
