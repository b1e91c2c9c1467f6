package handlers

import (
	"errors"
	"net/http"
	"strconv"

	bookingRepo "staybook/database/repository/booking"
	"staybook/models"
	"staybook/services/booking"
	"staybook/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler serves the booking CRUD endpoints.
type BookingHandler struct {
	Service booking.BookingService
	Logger  *zap.Logger
}

func NewBookingHandler(service booking.BookingService, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{Service: service, Logger: logger}
}

// CreateBookingHandler creates a PENDING booking.
func (h *BookingHandler) CreateBookingHandler(c *gin.Context) {
	var input models.CreateBookingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	b, err := h.Service.CreateBooking(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.JSONData(c, http.StatusCreated, "Booking created", b)
}

// ListBookingsHandler returns one page of bookings, newest first.
func (h *BookingHandler) ListBookingsHandler(c *gin.Context) {
	var filter models.BookingFilter

	if s := c.Query("status"); s != "" {
		status, err := models.ParseBookingStatus(s)
		if err != nil {
			utils.JSONError(c, http.StatusBadRequest, "Invalid status filter", err.Error())
			return
		}
		filter.Status = &status
	}

	var err error
	if filter.Page, err = queryInt(c, "page"); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid page", err.Error())
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	page, err := h.Service.ListBookings(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.JSONData(c, http.StatusOK, "Bookings retrieved", page)
}

func (h *BookingHandler) GetBookingHandler(c *gin.Context) {
	b, err := h.Service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.JSONData(c, http.StatusOK, "Booking retrieved", b)
}

// UpdateBookingHandler applies a partial update to a booking that is not canceled.
func (h *BookingHandler) UpdateBookingHandler(c *gin.Context) {
	var patch models.BookingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		utils.JSONError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	b, err := h.Service.UpdateBooking(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.JSONData(c, http.StatusOK, "Booking updated", b)
}

// CancelBookingHandler cancels a booking. Canceling twice is not an error.
func (h *BookingHandler) CancelBookingHandler(c *gin.Context) {
	b, err := h.Service.CancelBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	utils.JSONData(c, http.StatusOK, "Booking canceled", b)
}

func (h *BookingHandler) writeError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, utils.Response{
			Data:       verr.Fields,
			StatusCode: http.StatusUnprocessableEntity,
			Message:    "Validation failed",
		})
	case errors.Is(err, booking.ErrNothingToUpdate):
		utils.JSONError(c, http.StatusBadRequest, "Nothing to update", err.Error())
	case errors.Is(err, bookingRepo.ErrBookingNotFound):
		utils.JSONError(c, http.StatusNotFound, "Booking not found", c.Param("id"))
	case errors.Is(err, booking.ErrBookingCanceled):
		utils.JSONError(c, http.StatusConflict, "Booking is canceled", err.Error())
	case errors.Is(err, bookingRepo.ErrDuplicateBooking):
		utils.JSONError(c, http.StatusConflict, "Booking already exists", err.Error())
	case errors.Is(err, bookingRepo.ErrStoreUnavailable):
		h.Logger.Error("Booking store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusServiceUnavailable, "Booking store unavailable", "Please try again later.")
	default:
		h.Logger.Error("Booking request failed", zap.String("path", c.FullPath()), zap.Error(err))
		utils.JSONError(c, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred.")
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New(key + " must not be negative")
	}
	return n, nil
}
