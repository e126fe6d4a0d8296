package httpapi

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// decimal.Decimal проверяется как число: gte=0 и подобные теги работают без паники.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	// В ошибках используются имена JSON-полей.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// bind читает JSON и проверяет теги validate. При ошибке ответ уже записан.
func (a *API) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		a.invalid(c, err)
		return false
	}
	if err := validate.Struct(req); err != nil {
		a.invalid(c, err)
		return false
	}
	return true
}

// bindOptional допускает пустое тело запроса.
func (a *API) bindOptional(c *gin.Context, req any) bool {
	if c.Request.ContentLength == 0 {
		if err := validate.Struct(req); err != nil {
			a.invalid(c, err)
			return false
		}
		return true
	}
	return a.bind(c, req)
}
