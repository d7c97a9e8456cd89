package util

import (
	"Murmur/internal/pkg/apperr"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	// 错误信息里使用 json 字段名，与客户端看到的一致
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidateDTO 校验事件载荷，失败时返回指明首个字段的 ValidationError
func ValidateDTO(dto any) error {
	if err := validate.Struct(dto); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			first := vErrs[0]
			return apperr.ErrValidation.WithMessage("field [%s] failed rule [%s]", first.Field(), first.Tag())
		}
		return apperr.ErrValidation.Wrap(err)
	}
	return nil
}
