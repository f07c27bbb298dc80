// Adapts typed handler methods to http.Handler.

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/server/handlers"
	"github.com/maruel/pantry/internal/server/ratelimit"
	"github.com/maruel/pantry/internal/server/reqctx"
	"github.com/maruel/pantry/internal/storage/identity"
)

// Wrap serves fn without authentication.
//
// The request is decoded into In (see bind) and Out is written as JSON. An
// error returned by fn that implements dto.ErrorWithStatus selects the
// response status; any other error is a 500.
//
//	type ItemRequest struct {
//	    Name string `path:"name"`
//	}
//
//	func (h *Handler) GetItem(ctx context.Context, req *ItemRequest) (*Response, error)
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *handlers.Config, limiters *ratelimit.Limiters) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := withRequestMetadata(r)
		w, ok := throttle(w, limiters.MatchUnauth(r.Method, r.URL.Path), reqctx.GetClientIP(r))
		if !ok {
			return
		}
		in := bind[In, PtrIn](ctx, w, r, cfg)
		if in == nil {
			return
		}
		out, err := fn(ctx, in)
		respond(ctx, w, out, err)
	})
}

// WrapAuth serves fn for signed-in users. Requests without a usable session
// token get a 401 before anything is decoded.
//
// When history is enabled, each request other than GET is followed by a commit authored by the
// user. The commit is attempted even when fn failed since a write may have
// landed; a request that changed nothing creates no commit.
func WrapAuth[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](
	fn func(context.Context, *identity.User, PtrIn) (*Out, error),
	svc *handlers.Services,
	cfg *handlers.Config,
	limiters *ratelimit.Limiters,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := withRequestMetadata(r)
		user, sessionID, err := authenticate(r, svc, cfg.JWTSecret)
		if err != nil {
			slog.DebugContext(ctx, "Authentication failed", "err", err, "path", r.URL.Path)
			writeAPIError(w, dto.Unauthorized().Wrap(err))
			return
		}
		ctx = reqctx.WithSessionID(ctx, sessionID)
		if tier := limiters.MatchAuth(r.Method, r.URL.Path); tier != nil {
			key := reqctx.GetClientIP(r)
			if tier.Scope == ratelimit.ScopeUser {
				key = user.ID.String()
			}
			var ok bool
			if w, ok = throttle(w, tier, key); !ok {
				return
			}
		}
		in := bind[In, PtrIn](ctx, w, r, cfg)
		if in == nil {
			return
		}
		out, err := fn(ctx, user, in)
		if svc.History != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
			msg := r.Method + " " + r.URL.Path
			if _, cerr := svc.History.Commit(ctx, handlers.GitAuthor(user), msg, cfg.HistoryPrefix); cerr != nil {
				slog.ErrorContext(ctx, "Failed to commit history", "err", cerr)
			}
		}
		respond(ctx, w, out, err)
	})
}

// WrapRaw adds request metadata and unauthenticated rate limiting to a plain
// handler, such as an OAuth redirect.
func WrapRaw(fn http.HandlerFunc, limiters *ratelimit.Limiters) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w, ok := throttle(w, limiters.MatchUnauth(r.Method, r.URL.Path), reqctx.GetClientIP(r))
		if !ok {
			return
		}
		fn(w, r.WithContext(withRequestMetadata(r)))
	})
}

func withRequestMetadata(r *http.Request) context.Context {
	ctx := reqctx.WithClientIP(r.Context(), reqctx.GetClientIP(r))
	return reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
}

// throttle consumes a token from tier for key. The returned writer reports
// the limit headers. When the bucket is empty a 429 is written and false
// returned. A nil tier allows everything.
func throttle(w http.ResponseWriter, tier *ratelimit.Tier, key string) (http.ResponseWriter, bool) {
	if tier == nil {
		return w, true
	}
	res := tier.Limiter.Allow(ratelimit.BuildKey(tier.Scope, key, tier.Name))
	w = ratelimit.NewResponseWriter(w, res)
	if !res.Allowed {
		writeAPIError(w, dto.RateLimitExceeded(int(res.RetryAfter.Seconds())))
		return w, false
	}
	return w, true
}

func respond[Out any](ctx context.Context, w http.ResponseWriter, out *Out, err error) {
	if err != nil {
		ews := dto.AsError(err)
		lvl := slog.LevelInfo
		if ews.StatusCode() >= http.StatusInternalServerError {
			lvl = slog.LevelError
		}
		slog.Log(ctx, lvl, "Request failed", "err", err, "status", ews.StatusCode(), "code", ews.Code())
		writeAPIError(w, ews)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func writeAPIError(w http.ResponseWriter, err dto.ErrorWithStatus) {
	writeJSON(w, err.StatusCode(), dto.NewErrorResponse(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "err", err)
	}
}
