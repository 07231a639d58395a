package mid

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ardanlabs/chainengine/foundation/web"
)

// Methods and headers the node api accepts from a browser.
const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Accept, Content-Type, Content-Length, Origin"
	corsMaxAge  = 10 * time.Minute
)

// Cors answers browsers calling the node from one of the allowed origins.
// An origin of "*" allows any caller. A request from an origin that is not
// allowed is still served, only without the CORS headers, so the browser
// refuses to hand the response to the page.
func Cors(origins ...string) web.Middleware {
	var wildcard bool
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			wildcard = true
			continue
		}
		allowed[strings.ToLower(origin)] = struct{}{}
	}

	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			origin := r.Header.Get("Origin")

			switch {
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")

			case origin != "":
				w.Header().Add("Vary", "Origin")
				if _, exists := allowed[strings.ToLower(origin)]; !exists {
					return handler(ctx, w, r)
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)

			default:
				return handler(ctx, w, r)
			}

			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(corsMaxAge.Seconds())))
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
