package httpx

import (
	"context"

	"github.com/gin-gonic/gin"
)

type GinContext struct {
	ctx *gin.Context
}

func WrapGin(ctx *gin.Context) Context {
	return &GinContext{ctx: ctx}
}

// Handler adapts a Context-based handler to a gin handler.
func Handler(fn func(Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn(WrapGin(c))
	}
}

func (g *GinContext) RequestContext() context.Context {
	return g.ctx.Request.Context()
}

func (g *GinContext) Query(key string) string {
	return g.ctx.Query(key)
}

func (g *GinContext) PostForm(key string) string {
	return g.ctx.PostForm(key)
}

func (g *GinContext) Header(key string) string {
	return g.ctx.GetHeader(key)
}

func (g *GinContext) JSON(status int, value any) {
	g.ctx.JSON(status, value)
}

func (g *GinContext) Redirect(status int, location string) {
	g.ctx.Redirect(status, location)
}

func (g *GinContext) Status(status int) {
	g.ctx.Status(status)
}

func (g *GinContext) BindJSON(value any) error {
	return g.ctx.ShouldBindJSON(value)
}

func (g *GinContext) Set(key string, value any) {
	g.ctx.Set(key, value)
}

func (g *GinContext) Get(key string) (any, bool) {
	return g.ctx.Get(key)
}
