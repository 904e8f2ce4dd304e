package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/core/service"
)

const maxWebhookBytes = 64 << 10

type HTTPHandler struct {
	catalog  *service.CatalogService
	carts    *service.CartService
	checkout *service.CheckoutService
	auth     *service.AuthService
	log      zerolog.Logger
}

func NewHTTPHandler(
	catalog *service.CatalogService,
	carts *service.CartService,
	checkout *service.CheckoutService,
	auth *service.AuthService,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		catalog:  catalog,
		carts:    carts,
		checkout: checkout,
		auth:     auth,
		log:      log.With().Str("component", "http").Logger(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type productResponse struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	ShortDescription  string    `json:"shortDescription"`
	LongDescription   string    `json:"longDescription"`
	Price             int64     `json:"price"`
	DisplayPrice      string    `json:"displayPrice"`
	PriceID           string    `json:"priceId,omitempty"`
	Category          string    `json:"category"`
	InventoryQuantity int       `json:"inventoryQuantity"`
	ImageURL          string    `json:"imageUrl"`
	CreatedAt         time.Time `json:"createdAt"`
}

type cartItemRequest struct {
	ShoppingCartID *int64 `json:"shoppingCartId"`
	ProductID      *int64 `json:"productId"`
	Quantity       *int   `json:"quantity"`
}

type cartItemResponse struct {
	ShoppingCartID int64     `json:"shoppingCartId"`
	ProductID      int64     `json:"productId"`
	Quantity       int       `json:"quantity"`
	UnitPrice      int64     `json:"unitPrice"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type cartLineResponse struct {
	cartItemResponse
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
	ImageURL         string `json:"imageUrl"`
	Price            int64  `json:"price"`
	PriceID          string `json:"priceId,omitempty"`
	Subtotal         int64  `json:"subtotal"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID         int64  `json:"userId"`
	Username       string `json:"username"`
	ShoppingCartID int64  `json:"shoppingCartId"`
}

type signInResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type checkoutSessionResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Status      string `json:"status"`
	AmountTotal int64  `json:"amountTotal"`
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:                p.ID,
		Name:              p.Name,
		ShortDescription:  p.ShortDescription,
		LongDescription:   p.LongDescription,
		Price:             int64(p.Price),
		DisplayPrice:      p.Price.String(),
		PriceID:           p.PriceRef,
		Category:          p.Category,
		InventoryQuantity: p.InventoryQty,
		ImageURL:          p.ImageURL,
		CreatedAt:         p.CreatedAt,
	}
}

func toCartItemResponse(item domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ShoppingCartID: item.CartID,
		ProductID:      item.ProductID,
		Quantity:       item.Quantity,
		UnitPrice:      int64(item.UnitPrice),
		UpdatedAt:      item.UpdatedAt,
	}
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{UserID: u.ID, Username: u.Username, ShoppingCartID: u.CartID}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	products, err := h.catalog.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// parseProductFilter reads category (repeatable or comma separated),
// minPrice and maxPrice in cents, and sort=asc|desc.
func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	var filter domain.ProductFilter

	for _, v := range q["category"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				filter.Categories = append(filter.Categories, c)
			}
		}
	}

	for key, dst := range map[string]*domain.Money{"minPrice": &filter.MinPrice, "maxPrice": &filter.MaxPrice} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.ProductFilter{}, fmt.Errorf("%s %q: %w", key, raw, domain.ErrInvalidInput)
		}
		*dst = domain.Money(n)
	}

	filter.Sort = domain.ProductSort(strings.ToLower(q.Get("sort")))
	return filter, nil
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())
	userID, err := pathID(r, "userId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if userID != identity.UserID {
		h.writeError(w, r, fmt.Errorf("cart of user %d: %w", userID, domain.ErrForbidden))
		return
	}

	lines, err := h.carts.GetCart(r.Context(), identity.CartID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]cartLineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, cartLineResponse{
			cartItemResponse: toCartItemResponse(l.CartItem),
			Name:             l.Name,
			ShortDescription: l.ShortDescription,
			ImageURL:         l.ImageURL,
			Price:            int64(l.CatalogPrice),
			PriceID:          l.PriceRef,
			Subtotal:         int64(l.Subtotal()),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	cartID, req, err := h.cartRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.carts.AddItem(r.Context(), cartID, *req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCartItemResponse(item))
}

// UpdateCartItem responds with the updated line, or an empty array when the
// quantity removed it.
func (h *HTTPHandler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	cartID, req, err := h.cartRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.carts.SetQuantity(r.Context(), cartID, *req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := []cartItemResponse{}
	if item != nil {
		out = append(out, toCartItemResponse(*item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) DeleteCartItem(w http.ResponseWriter, r *http.Request) {
	cartID, err := h.ownCartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	productID, err := pathID(r, "productId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.carts.RemoveItem(r.Context(), cartID, productID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownCartID returns the path cart id when it belongs to the caller.
func (h *HTTPHandler) ownCartID(r *http.Request) (int64, error) {
	identity, _ := identityFromContext(r.Context())
	cartID, err := pathID(r, "cartId")
	if err != nil {
		return 0, err
	}
	if cartID != identity.CartID {
		return 0, fmt.Errorf("cart %d: %w", cartID, domain.ErrForbidden)
	}
	return cartID, nil
}

func (h *HTTPHandler) cartRequest(r *http.Request) (int64, cartItemRequest, error) {
	cartID, err := h.ownCartID(r)
	if err != nil {
		return 0, cartItemRequest{}, err
	}

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return 0, cartItemRequest{}, fmt.Errorf("decode body: %w", domain.ErrInvalidInput)
	}
	if req.ProductID == nil || req.Quantity == nil {
		return 0, cartItemRequest{}, fmt.Errorf("productId and quantity required: %w", domain.ErrInvalidInput)
	}
	if req.ShoppingCartID != nil && *req.ShoppingCartID != cartID {
		return 0, cartItemRequest{}, fmt.Errorf("shoppingCartId %d does not match path: %w", *req.ShoppingCartID, domain.ErrInvalidInput)
	}
	return cartID, req, nil
}

// CreateCheckout redirects to the provider's hosted page. Any cart sent by
// the client is ignored; the stored cart is authoritative.
func (h *HTTPHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	session, err := h.checkout.CreateCheckoutSession(r.Context(), identity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", session.URL)
	writeJSON(w, http.StatusSeeOther, session.URL)
}

func (h *HTTPHandler) GetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	identity, _ := identityFromContext(r.Context())

	session, err := h.checkout.GetCheckoutSession(r.Context(), identity, chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutSessionResponse{
		ID:          session.ID,
		URL:         session.URL,
		Status:      string(session.Status),
		AmountTotal: int64(session.AmountTotal),
	})
}

func (h *HTTPHandler) CheckoutWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("read webhook body: %w", domain.ErrInvalidInput))
		return
	}

	if err := h.checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *HTTPHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", domain.ErrInvalidInput))
		return
	}

	user, err := h.auth.SignUp(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *HTTPHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("decode body: %w", domain.ErrInvalidInput))
		return
	}

	token, user, err := h.auth.SignIn(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{Token: token, User: toUserResponse(user)})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s %q: %w", name, raw, domain.ErrInvalidInput)
	}
	return id, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()

	switch status {
	case http.StatusInternalServerError:
		message = "internal error"
		h.log.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Msg("request failed")
	case http.StatusBadGateway:
		message = "payment provider unavailable"
		h.log.Warn().Err(err).Str("request_id", requestIDFromContext(r.Context())).Msg("upstream failure")
	case http.StatusUnauthorized:
		message = "invalid login"
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
