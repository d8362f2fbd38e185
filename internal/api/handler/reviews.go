// Package handler contains the HTTP handlers for the review endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	mw "github.com/kiranshivaraju/reviewpulse/internal/api/middleware"
	"github.com/kiranshivaraju/reviewpulse/internal/api/response"
	"github.com/kiranshivaraju/reviewpulse/internal/jobs"
	"github.com/kiranshivaraju/reviewpulse/internal/store"
	"github.com/kiranshivaraju/reviewpulse/pkg/models"
)

const (
	MsgAlreadyExists = "Summary already exists, refresh your page to see it"
	MsgSubmitted     = "Summary request submitted successfully"
	MsgNotFound      = "Summary not found"
	MsgPending       = "Summary is being generated, wait for an email"
	MsgFailed        = "Summary generation failed, please try regenerating"
	MsgFetched       = "Summary fetched successfully"
)

// maxBodyBytes caps the size of a submitted review payload.
const maxBodyBytes = 4 << 20

// ReviewService is what the review handlers depend on.
type ReviewService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest, who models.Identity) (jobs.SubmitOutcome, error)
	Poll(ctx context.Context, productID string) (*jobs.PollResult, error)
}

type submitBody struct {
	ProductID string   `json:"product_id" validate:"required,max=128"`
	Title     string   `json:"title" validate:"max=1024"`
	Link      string   `json:"link" validate:"omitempty,url"`
	Reviews   []string `json:"reviews" validate:"required,min=1"`
}

// SummaryBody is the data of a successful poll.
type SummaryBody struct {
	Message string `json:"message"`
	Summary string `json:"summary"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewSubmitHandler returns an http.HandlerFunc for POST /reviews/generate.
func NewSubmitHandler(svc ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := mw.GetIdentity(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}

		var body submitBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		body.ProductID = strings.TrimSpace(body.ProductID)

		if err := validate.Struct(body); err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", validationDetails(err))
			return
		}

		outcome, err := svc.Submit(r.Context(), jobs.SubmitRequest{
			ProductID: body.ProductID,
			Title:     body.Title,
			Link:      body.Link,
			Reviews:   body.Reviews,
		}, who)
		switch {
		case errors.Is(err, store.ErrInvalidRecord):
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
			return
		case err != nil:
			slog.Error("submit review summary", "product_id", body.ProductID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit summary request", nil)
			return
		}

		msg := MsgSubmitted
		if outcome == jobs.AlreadyExists {
			msg = MsgAlreadyExists
		}
		response.JSON(w, response.Message{Message: msg})
	}
}

// NewPollHandler returns an http.HandlerFunc for GET /reviews/summary/{product_id}.
func NewPollHandler(svc ReviewService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := strings.TrimSpace(chi.URLParam(r, "product_id"))
		if productID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "product_id is required", nil)
			return
		}

		res, err := svc.Poll(r.Context(), productID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND", MsgNotFound, nil)
			return
		case errors.Is(err, jobs.ErrSummaryFailed):
			response.Error(w, http.StatusInternalServerError, "SUMMARY_FAILED", MsgFailed, nil)
			return
		case err != nil:
			slog.Error("poll review summary", "product_id", productID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch summary", nil)
			return
		}

		if res.Status == models.ReviewStatusPending {
			response.Accepted(w, response.Message{Message: MsgPending})
			return
		}
		response.JSON(w, SummaryBody{Message: MsgFetched, Summary: res.Summary})
	}
}

// validationDetails maps each failing JSON field to a short description.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = describe(fe)
	}
	return details
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "max":
		return "is too long"
	case "url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
