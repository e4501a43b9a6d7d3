package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/services"
)

// Engine is the reservation-engine surface the HTTP layer consumes.
type Engine interface {
	RegisterBook(ctx context.Context, title, author string) services.Result
	RegisterCopy(ctx context.Context, bookID, barcode, location string) services.Result
	Reserve(ctx context.Context, bookID, bookTitle, name, email string) services.Result
	Renew(ctx context.Context, barcode, email string) services.Result
	Cancel(ctx context.Context, barcode, email string) services.Result
	DeleteBook(ctx context.Context, bookID string) services.Result
	ListBooks(ctx context.Context) services.Result
}

// Handler bundles all endpoint methods around one engine.
type Handler struct {
	engine Engine
}

// New constructs the endpoint handler set.
func New(engine Engine) *Handler {
	return &Handler{engine: engine}
}

// registerBookRequest is the POST /book payload.
type registerBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// registerCopyRequest is the POST /copy payload.
type registerCopyRequest struct {
	BookID   string `json:"book_id"`
	Barcode  string `json:"barcode"`
	Location string `json:"location"`
}

// reserveRequest is the POST /reservation payload. BookID wins over
// BookTitle when both are set.
type reserveRequest struct {
	BookID    string `json:"book_id"`
	BookTitle string `json:"book_title"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// reservationActionRequest is the shared payload of the renewal and cancel
// endpoints.
type reservationActionRequest struct {
	Barcode string `json:"barcode"`
	Email   string `json:"email"`
}

// ListBooks handles GET /books.
func (h *Handler) ListBooks(c *gin.Context) {
	respond(c, h.engine.ListBooks(c.Request.Context()), http.StatusOK)
}

// RegisterBook handles POST /book.
func (h *Handler) RegisterBook(c *gin.Context) {
	var req registerBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	respond(c, h.engine.RegisterBook(c.Request.Context(), req.Title, req.Author), http.StatusCreated)
}

// RegisterCopy handles POST /copy.
func (h *Handler) RegisterCopy(c *gin.Context) {
	var req registerCopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	respond(c, h.engine.RegisterCopy(c.Request.Context(), req.BookID, req.Barcode, req.Location), http.StatusCreated)
}

// Reserve handles POST /reservation.
func (h *Handler) Reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	respond(c, h.engine.Reserve(c.Request.Context(), req.BookID, req.BookTitle, req.Name, req.Email), http.StatusCreated)
}

// Renew handles POST /reservation/renewal.
func (h *Handler) Renew(c *gin.Context) {
	var req reservationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	respond(c, h.engine.Renew(c.Request.Context(), req.Barcode, req.Email), http.StatusOK)
}

// Cancel handles POST /reservation/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	var req reservationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	respond(c, h.engine.Cancel(c.Request.Context(), req.Barcode, req.Email), http.StatusOK)
}

// DeleteBook handles DELETE /book/:id.
func (h *Handler) DeleteBook(c *gin.Context) {
	respond(c, h.engine.DeleteBook(c.Request.Context(), c.Param("id")), http.StatusOK)
}
