package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ce-fello/barter-service/src/internal/api/apiErrors"
	"github.com/ce-fello/barter-service/src/internal/model"
	"github.com/ce-fello/barter-service/src/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"go.uber.org/zap"
)

type Handler struct {
	svc      *service.Service
	log      *zap.Logger
	validate *validator.Validate
	timeout  time.Duration
}

func NewHandler(svc *service.Service, logger *zap.Logger, timeout time.Duration) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{svc: svc, log: logger, validate: v, timeout: timeout}
}

func RegisterRoutes(r chi.Router, h *Handler, tokens TokenValidator) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(tokens))

		r.Route("/barters", func(r chi.Router) {
			r.Post("/", h.withTimeout(h.createBarter))
			r.Get("/my", h.withTimeout(h.listBarters))
			r.Get("/stats", h.withTimeout(h.stats))
			r.Get("/{id}", h.withTimeout(h.getBarter))
			r.Put("/{id}/accept", h.withTimeout(h.acceptBarter))
			r.Put("/{id}/reject", h.withTimeout(h.rejectBarter))
			r.Put("/{id}/counter", h.withTimeout(h.counterOffer))
			r.Put("/{id}/cancel", h.withTimeout(h.cancelBarter))
			r.Put("/{id}/complete", h.withTimeout(h.completeBarter))
		})

		r.Post("/reviews", h.withTimeout(h.submitReview))
		r.Get("/reviews/my", h.withTimeout(h.myReviews))
		r.Get("/reviews/check/{barterId}", h.withTimeout(h.canReview))
		r.Get("/reviews/user/{userId}", h.withTimeout(h.userReviews))
		r.Post("/reports", h.withTimeout(h.submitReport))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.withTimeout(h.notifications))
			r.Put("/read-all", h.withTimeout(h.markAllNotificationsRead))
			r.Put("/{id}/read", h.withTimeout(h.markNotificationRead))
		})
	})
}

func (h *Handler) withTimeout(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

type createBarterRequest struct {
	ReceiverID       string `json:"receiver_id" validate:"required"`
	OfferedSkillID   string `json:"offered_skill_id" validate:"required"`
	RequestedSkillID string `json:"requested_skill_id" validate:"required"`
	Message          string `json:"message"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type counterRequest struct {
	Message        string `json:"message"`
	OfferedSkillID string `json:"offered_skill_id" validate:"required"`
}

type reviewRequest struct {
	BarterID string `json:"barter_id" validate:"required"`
	Rating   int    `json:"rating" validate:"min=1,max=5"`
	Comment  string `json:"comment"`
}

type reportRequest struct {
	BarterID       string `json:"barter_id" validate:"required"`
	ReportedUserID string `json:"reported_user_id" validate:"required"`
	Reason         string `json:"reason" validate:"required,oneof=spam fake_skill harassment scam inappropriate other"`
	Description    string `json:"description" validate:"required"`
}

// decode reads a JSON body into dst and runs its validation tags. An empty
// body is accepted when optional is set.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil && !(optional && errors.Is(err, io.EOF)) {
		writeError(w, http.StatusBadRequest, apiErrors.Validation, "invalid body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, apiErrors.Validation, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid body"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func (h *Handler) createBarter(w http.ResponseWriter, r *http.Request) {
	var req createBarterRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	b, err := h.svc.CreateBarter(r.Context(), service.CreateBarterInput{
		SenderID:         CallerID(r.Context()),
		ReceiverID:       req.ReceiverID,
		OfferedSkillID:   req.OfferedSkillID,
		RequestedSkillID: req.RequestedSkillID,
		Message:          req.Message,
	})
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"barter": b})
}

func (h *Handler) getBarter(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBarter(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()))
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"barter": b})
}

func (h *Handler) acceptBarter(w http.ResponseWriter, r *http.Request) {
	h.respondBarter(w, r)(h.svc.AcceptBarter(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context())))
}

func (h *Handler) rejectBarter(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	h.respondBarter(w, r)(h.svc.RejectBarter(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()), req.Reason))
}

func (h *Handler) counterOffer(w http.ResponseWriter, r *http.Request) {
	var req counterRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.respondBarter(w, r)(h.svc.CounterOffer(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context()), req.Message, req.OfferedSkillID))
}

func (h *Handler) cancelBarter(w http.ResponseWriter, r *http.Request) {
	h.respondBarter(w, r)(h.svc.CancelBarter(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context())))
}

func (h *Handler) completeBarter(w http.ResponseWriter, r *http.Request) {
	h.respondBarter(w, r)(h.svc.CompleteBarter(r.Context(), chi.URLParam(r, "id"), CallerID(r.Context())))
}

func (h *Handler) respondBarter(w http.ResponseWriter, r *http.Request) func(model.BarterRequest, error) {
	return func(b model.BarterRequest, err error) {
		if err != nil {
			h.handleSvcError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"barter": b})
	}
}

func pageParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	page, limit := 0, 0
	var err error
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("page must be an integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, errors.New("limit must be an integer")
		}
	}
	return page, limit, nil
}

func (h *Handler) listBarters(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apiErrors.Validation, err.Error())
		return
	}
	q := r.URL.Query()
	view := model.BarterView{
		Filter: model.ListFilter(q.Get("filter")),
		Status: model.Status(q.Get("status")),
		Type:   model.BarterType(q.Get("type")),
	}
	if view.Status == "all" {
		view.Status = ""
	}
	res, err := h.svc.ListBarters(r.Context(), CallerID(r.Context()), view, page, limit)
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context(), CallerID(r.Context()))
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	rev, err := h.svc.SubmitReview(r.Context(), service.SubmitReviewInput{
		BarterID:   req.BarterID,
		ReviewerID: CallerID(r.Context()),
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"review": rev})
}

func (h *Handler) canReview(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.CanReview(r.Context(), chi.URLParam(r, "barterId"), CallerID(r.Context()))
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) userReviews(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apiErrors.Validation, err.Error())
		return
	}
	res, err := h.svc.ListUserReviews(r.Context(), chi.URLParam(r, "userId"), page, limit)
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) myReviews(w http.ResponseWriter, r *http.Request) {
	page, limit, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, apiErrors.Validation, err.Error())
		return
	}
	res, err := h.svc.ListMyReviews(r.Context(), CallerID(r.Context()), page, limit)
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	rep, err := h.svc.SubmitReport(r.Context(), service.SubmitReportInput{
		BarterID:        req.BarterID,
		ReportingUserID: CallerID(r.Context()),
		ReportedUserID:  req.ReportedUserID,
		Reason:          model.ReportReason(req.Reason),
		Description:     req.Description,
	})
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"report": rep})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	feed, err := h.svc.ListNotifications(r.Context(), CallerID(r.Context()))
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkNotificationRead(r.Context(), CallerID(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "notification marked as read"})
}

func (h *Handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllNotificationsRead(r.Context(), CallerID(r.Context()))
	if err != nil {
		h.handleSvcError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": n})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, errCode apiErrors.ErrorCode, message string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{"code": errCode, "message": message},
	})
}

func (h *Handler) handleSvcError(w http.ResponseWriter, r *http.Request, err error) {
	var e apiErrors.APIError
	if !errors.As(err, &e) {
		h.log.Error("unhandled service error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, apiErrors.InternalError, "internal error")
		return
	}
	switch e.Code {
	case apiErrors.Validation:
		writeError(w, http.StatusBadRequest, e.Code, e.Message)
	case apiErrors.Unauthorized:
		writeError(w, http.StatusUnauthorized, e.Code, e.Message)
	case apiErrors.Forbidden:
		writeError(w, http.StatusForbidden, e.Code, e.Message)
	case apiErrors.NotFound:
		writeError(w, http.StatusNotFound, e.Code, e.Message)
	case apiErrors.InvalidState:
		writeError(w, http.StatusConflict, e.Code, "this request is no longer actionable, please refresh")
	case apiErrors.Conflict:
		writeError(w, http.StatusConflict, e.Code, e.Message)
	default:
		writeError(w, http.StatusInternalServerError, apiErrors.InternalError, e.Message)
	}
}
