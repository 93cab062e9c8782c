package auth

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/example/anime-bot/internal/platform/api"
)

// RequireAdmin allows the request only if RequireUser already injected role=admin into context.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := RoleFromContext(r.Context())
		if strings.ToLower(strings.TrimSpace(role)) != "admin" {
			api.Forbidden(w, "admin role required", requestID(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Operators is the set of chat user ids allowed to run admin commands in-chat.
type Operators map[int64]struct{}

// ParseOperators reads a comma separated id list. Malformed entries are skipped.
func ParseOperators(raw string) Operators {
	ops := Operators{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ops[id] = struct{}{}
	}
	return ops
}

func (o Operators) Allowed(id int64) bool {
	_, ok := o[id]
	return ok
}
