package core

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Mutation payloads sent to the finance API. Field rules live in the
// validate tags and are checked before any request leaves the process.
type (
	AccountInput struct {
		Name           string `json:"name" validate:"required,max=100"`
		Type           string `json:"type" validate:"required,oneof=bank cash credit_card savings investment wallet"`
		InitialBalance Money  `json:"initialBalance"`
		Currency       string `json:"currency,omitempty" validate:"omitempty,len=3,uppercase"`
	}

	TransactionInput struct {
		AccountID   string          `json:"accountId" validate:"required"`
		CategoryID  string          `json:"categoryId" validate:"required"`
		Type        TransactionType `json:"type" validate:"required,oneof=income expense"`
		Amount      Money           `json:"amount" validate:"gt=0"`
		Description string          `json:"description,omitempty" validate:"max=200"`
		Date        time.Time       `json:"date" validate:"required"`
	}

	TransferInput struct {
		FromAccountID string    `json:"fromAccountId" validate:"required"`
		ToAccountID   string    `json:"toAccountId" validate:"required,nefield=FromAccountID"`
		Amount        Money     `json:"amount" validate:"gt=0"`
		Note          string    `json:"note,omitempty" validate:"max=200"`
		Date          time.Time `json:"date" validate:"required"`
	}

	BudgetInput struct {
		CategoryID string    `json:"categoryId" validate:"required"`
		Amount     Money     `json:"amount" validate:"gt=0"`
		Period     Period    `json:"period" validate:"required,oneof=daily monthly yearly"`
		StartDate  time.Time `json:"startDate" validate:"required"`
		EndDate    time.Time `json:"endDate" validate:"omitempty,gtfield=StartDate"`
	}

	CategoryInput struct {
		Name  string          `json:"name" validate:"required,max=50"`
		Type  TransactionType `json:"type" validate:"required,oneof=income expense"`
		Color string          `json:"color,omitempty" validate:"omitempty,hexcolor"`
		Icon  string          `json:"icon,omitempty" validate:"max=50"`
	}
)

// ValidationError carries per-field messages for inline display.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		// Money validates as its cent value.
		v.RegisterCustomTypeFunc(func(field reflect.Value) any {
			if m, ok := field.Interface().(Money); ok {
				return m.Cents
			}
			return nil
		}, Money{})
		validate = v
	})
	return validate
}

// Validate checks v against its validate tags and returns a *ValidationError
// describing every failing field.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %T: %w", v, err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		if fe.Param() == "0" {
			return "must be greater than zero"
		}
		return "must be greater than " + fe.Param()
	case "nefield":
		return "must differ from the source account"
	case "gtfield":
		return "must be after the start date"
	case "hexcolor":
		return "must be a hex colour"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
