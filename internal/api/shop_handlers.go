package api

import (
	"strconv"

	"bookstore/internal/apperr"
	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
)

type bookRef struct {
	BookID int64 `json:"bookId" binding:"required"`
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.svc.Carts.GetCart(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, cart)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req service.CartItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Carts.AddItem(c.Request.Context(), principal(c), req); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Book added to cart")
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req service.CartItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Carts.UpdateItem(c.Request.Context(), principal(c), req); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Cart item updated")
}

func (h *Handler) removeCartItem(c *gin.Context) {
	var req bookRef
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Carts.RemoveItem(c.Request.Context(), principal(c), req.BookID); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Book removed from cart")
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.svc.Carts.Clear(c.Request.Context(), principal(c)); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Cart cleared")
}

func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}

	order, err := h.svc.Orders.PlaceOrder(c.Request.Context(), principal(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, order)
}

func (h *Handler) buyNow(c *gin.Context) {
	var req service.BuyNowRequest
	if !h.bindJSON(c, &req) {
		return
	}

	order, err := h.svc.Orders.BuyNow(c.Request.Context(), principal(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, order)
}

func (h *Handler) getMyOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListMyOrders(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, orders)
}

func (h *Handler) getAllOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListAllOrders(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, orders)
}

func (h *Handler) createPayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	payment, err := h.svc.Payments.CreatePayment(c.Request.Context(), principal(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, payment)
}

func (h *Handler) getMyPayments(c *gin.Context) {
	payments, err := h.svc.Payments.GetUserPayments(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, payments)
}

func (h *Handler) getAllPayments(c *gin.Context) {
	payments, err := h.svc.Payments.GetAllPayments(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, payments)
}

func (h *Handler) getWishlist(c *gin.Context) {
	items, err := h.svc.Wishlist.List(c.Request.Context(), principal(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, items)
}

func (h *Handler) addToWishlist(c *gin.Context) {
	var req service.WishlistRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.svc.Wishlist.Add(c.Request.Context(), principal(c), req.BookID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondCreated(c, item)
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	var req service.WishlistRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.svc.Wishlist.Remove(c.Request.Context(), principal(c), req.BookID); err != nil {
		h.respondError(c, err)
		return
	}
	respondMessage(c, "Book removed from wishlist")
}

func (h *Handler) isInWishlist(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Query("bookId"), 10, 64)
	if err != nil || bookID <= 0 {
		h.respondError(c, apperr.BadRequest("Invalid bookId"))
		return
	}

	in, err := h.svc.Wishlist.Check(c.Request.Context(), principal(c), bookID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondOK(c, gin.H{"isInWishlist": in})
}
