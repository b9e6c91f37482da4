package response

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// CodeError carries an errcode value through proxyutil's json envelope.
type CodeError struct {
	code uint32
	msg  string
}

func (e CodeError) Error() string {
	return e.msg
}

func (e CodeError) Code() uint32 {
	return e.code
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{code: uint32(code), msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes a failure envelope. The http status stays 200; clients read
// the code field.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, 200, NewCodeError(code, message))
}

func Abort(c *gin.Context, code int, message string) {
	Error(c, code, message)
	c.Abort()
}
