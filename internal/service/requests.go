package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Padu76/lifeOS-sub000/internal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, err := internal.ParseCategory(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("urgency", func(fl validator.FieldLevel) bool {
		_, err := internal.ParseUrgency(fl.Field().String())
		return err == nil
	})
	return v
}

// validateRequest wraps validation failures in internal.ErrInvalidInput.
func validateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: %s failed on %q", internal.ErrInvalidInput, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", internal.ErrInvalidInput, err)
	}
	return nil
}

type PlanRequest struct {
	Category      string `json:"category" validate:"required,category"`
	Urgency       string `json:"urgency" validate:"required,urgency"`
	MinGapMinutes *int   `json:"min_gap_minutes,omitempty" validate:"omitempty,gte=0,lte=1440"`
	// defaults to true
	RespectQuietHours *bool           `json:"respect_quiet_hours,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

func ValidatePlanRequest(req *PlanRequest) error { return validateRequest(req) }

type ActivityRequest struct {
	Category  string    `json:"category" validate:"required,category"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

func ValidateActivityRequest(req *ActivityRequest) error { return validateRequest(req) }

type CheckInRequest struct {
	Stress    float64   `json:"stress" validate:"required,gte=1,lte=10"`
	Energy    float64   `json:"energy" validate:"required,gte=1,lte=10"`
	Timestamp time.Time `json:"timestamp"`
}

func ValidateCheckInRequest(req *CheckInRequest) error { return validateRequest(req) }

const (
	FeedbackOpened    = "opened"
	FeedbackCompleted = "completed"
	FeedbackDismissed = "dismissed"
)

type FeedbackRequest struct {
	Action string `json:"action" validate:"required,oneof=opened completed dismissed"`
}

func ValidateFeedbackRequest(req *FeedbackRequest) error { return validateRequest(req) }
