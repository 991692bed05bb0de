package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"
)

// TokenAuth guards write endpoints with a static bearer token. An empty
// configured token leaves the endpoint open, the usual setup when
// ingestion runs inside a trusted network.
func TokenAuth(token string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		if token == "" {
			return next
		}
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("missing Authorization header")
				return
			}

			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid Authorization header")
				return
			}

			got := strings.TrimSpace(string(auth[len(prefix):]))
			if got == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("empty bearer token")
				return
			}
			if got != token {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid token")
				return
			}

			next(ctx)
		}
	}
}
