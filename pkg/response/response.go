package response

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/parley/pkg/errcode"
)

// Response is the envelope of every HTTP route. Code 0 is success; failures
// carry an errcode code and still answer with status 200.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(ctx context.Context, c *app.RequestContext, data any) {
	c.JSON(consts.StatusOK, Response{Msg: "success", Data: data})
}

// Error reports err's business code. Errors outside the catalogue are logged
// and surface as an internal error without their text.
func Error(ctx context.Context, c *app.RequestContext, err error) {
	var e *errcode.Error
	if !errors.As(err, &e) {
		log.CtxError(ctx, "unclassified error: path=%s, error=%v", c.Path(), err)
		e = errcode.ErrInternalServer
	}
	ErrorWithCode(ctx, c, e)
}

func ErrorWithCode(ctx context.Context, c *app.RequestContext, e *errcode.Error) {
	c.JSON(consts.StatusOK, Response{Code: e.Code, Msg: e.Msg})
}
