package util

import (
	"Murmur/internal/pkg/apperr"
	"strconv"
)

// ParseID 解析路径或查询参数中的 ID，0 视为非法
func ParseID(raw string, field string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.ErrValidation.WithMessage("field [%s] must be a positive integer", field)
	}
	return id, nil
}

// PtrBool 用于将 bool 转换为 *bool
func PtrBool(b bool) *bool {
	return &b
}
