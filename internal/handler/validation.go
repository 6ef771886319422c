package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"autorent/internal/domain"
)

// RegisterValidators adds the domain enum tags to gin's validator engine:
// payment_mode, cancel_policy, severity, subfund and actor_role.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	rules := map[string]func(string) bool{
		"payment_mode":  func(s string) bool { return domain.PaymentMode(s).Valid() },
		"cancel_policy": func(s string) bool { return domain.CancelPolicy(s).Valid() },
		"severity":      func(s string) bool { return domain.Severity(s).Valid() },
		"subfund":       func(s string) bool { return domain.SubfundType(s).Valid() },
		"actor_role": func(s string) bool {
			switch domain.ActorRole(s) {
			case domain.ActorRenter, domain.ActorOwner, domain.ActorAdmin:
				return true
			}
			return false
		},
	}
	for tag, valid := range rules {
		valid := valid
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		}); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}

// bindError turns a binding failure into a short client message.
func bindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gt":
			msgs = append(msgs, fe.Field()+" must be greater than "+fe.Param())
		case "gte":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}
