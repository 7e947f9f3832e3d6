package automation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RunConfig is the immutable configuration of one run.
type RunConfig struct {
	// DiscountAmount is subtracted from (or, below the floor, added to) every price
	DiscountAmount int64 `json:"discount_amount" validate:"gt=0"`
	// RestoreDelay is measured from the end of the adjustment
	RestoreDelay time.Duration `json:"restore_delay" validate:"gt=0"`
	// OrderThreshold is the number of new orders that triggers restoration
	OrderThreshold int `json:"order_threshold" validate:"gte=0"`
	// MonitoringInterval is the period of the new-order poll
	MonitoringInterval time.Duration `json:"monitoring_interval" validate:"gt=0"`
	StartedAt          time.Time     `json:"started_at"`
}

// Validate checks the configuration and returns an error wrapping
// ErrInvalidRunConfig that names the offending fields.
func (c RunConfig) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrInvalidRunConfig.WithMessage(fmt.Sprintf("invalid run configuration: %v", err))
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describeFieldError(fe))
	}
	return ErrInvalidRunConfig.WithMessage("invalid run configuration: " + strings.Join(problems, "; "))
}

// Deadline returns the time at which the deadline trigger fires for an
// adjustment that completed at adjustedAt.
func (c RunConfig) Deadline(adjustedAt time.Time) time.Time {
	return adjustedAt.Add(c.RestoreDelay)
}

func describeFieldError(fe validator.FieldError) string {
	name := fieldNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "gt":
		return name + " must be greater than 0"
	case "gte":
		return name + " must not be negative"
	default:
		return name + " is invalid"
	}
}

var fieldNames = map[string]string{
	"DiscountAmount":     "discount_amount",
	"RestoreDelay":       "restore_delay",
	"OrderThreshold":     "order_threshold",
	"MonitoringInterval": "monitoring_interval",
}
