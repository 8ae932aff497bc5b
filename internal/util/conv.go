package util

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// MustParseUint 将字符串转换为无符号整数，解析失败时返回 0
func MustParseUint(s string) uint {
	id, _ := strconv.ParseUint(s, 10, 32)
	return uint(id)
}

// ParamID reads a positive integer path parameter, answering 400 otherwise.
func ParamID(c *gin.Context, name string) (uint, bool) {
	id := MustParseUint(c.Param(name))
	if id == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// OptionalUint parses an optional query value; empty or invalid yields nil.
func OptionalUint(s string) *uint {
	if s == "" {
		return nil
	}
	id := MustParseUint(s)
	if id == 0 {
		return nil
	}
	return &id
}
