package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/valyala/fasthttp"
)

const dateLayout = "2006-01-02"

// RequestLogger returns fasthttp middleware that logs method, path, status, duration.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		log.Printf("%s %s -> %d (%s) ip=%s", ctx.Method(), ctx.Path(), ctx.Response.StatusCode(), time.Since(start), ctx.RemoteAddr())
	}
}

func jsonResponse(ctx *fasthttp.RequestCtx, data map[string]any) {
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(data)
	ctx.SetBody(body)
}

func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	ctx.SetStatusCode(code)
	ctx.SetBodyString(msg)
}

// parseDate reads a yyyy-mm-dd query argument as a UTC date. The zero time
// means the argument was absent; ok is false only when it was present but
// malformed.
func parseDate(ctx *fasthttp.RequestCtx, name string) (t time.Time, ok bool) {
	raw := string(ctx.QueryArgs().Peek(name))
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
