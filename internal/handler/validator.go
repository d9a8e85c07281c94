package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"github.com/go-playground/validator/v10"
)

// reportQuery is the query string of GET .../financials/{subType}.
type reportQuery struct {
	Month   string `query:"month" validate:"omitempty,datetime=2006-01"`
	Refresh string `query:"refresh" validate:"omitempty,boolean"`
}

// dailyQuery is the query string of GET .../financials/{subType}/daily.
type dailyQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// trendQuery is the query string of GET .../financials/{subType}/monthly.
type trendQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01"`
}

type queryValidator struct {
	validate *validator.Validate
}

func newQueryValidator() *queryValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &queryValidator{validate: v}
}

// bind fills the string fields of dst from r's query string by their
// query tag and validates the result.
func (qv *queryValidator) bind(r *http.Request, dst any) error {
	rv := reflect.ValueOf(dst).Elem()
	rt := rv.Type()
	q := r.URL.Query()
	for i := 0; i < rt.NumField(); i++ {
		name := rt.Field(i).Tag.Get("query")
		if name == "" || rv.Field(i).Kind() != reflect.String {
			continue
		}
		rv.Field(i).SetString(strings.TrimSpace(q.Get(name)))
	}

	if err := qv.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &domain.ErrValidation{Field: verrs[0].Field(), Message: describe(verrs[0])}
		}
		return &domain.ErrValidation{Field: "query", Message: err.Error()}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "datetime":
		return fmt.Sprintf("must match layout %s", fe.Param())
	case "boolean":
		return "must be true or false"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
