package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const operatorContextKey contextKey = "mendcore_operator"

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorContextKey, op)
}

func OperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(operatorContextKey).(*Operator)
	return op, ok
}

func JWTMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if h == "" || !strings.HasPrefix(h, "Bearer ") {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(h, "Bearer ")
			claims, err := svc.ParseToken(token)
			if err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			op := &Operator{
				ID:       claims.OperatorID,
				Username: claims.Username,
				Role:     claims.Role,
			}
			ctx := WithOperator(r.Context(), op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(next http.HandlerFunc, roles ...Role) http.HandlerFunc {
	allowed := make(map[Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		op, ok := OperatorFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if _, ok := allowed[op.Role]; !ok {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
