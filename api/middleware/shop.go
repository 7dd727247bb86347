package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BenTyson/evercraft-sub001/api/responses"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/logger"
)

type ShopOwnershipChecker interface {
	IsOwner(ctx context.Context, shopID, userID uuid.UUID) (bool, error)
}

// ShopAccess requires the caller to own the shop named by the {shopId} route
// parameter. Admins pass without an ownership lookup.
func ShopAccess(checker ShopOwnershipChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			shopID, err := uuid.Parse(chi.URLParam(r, "shopId"))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shop id"))
				return
			}
			if logg != nil {
				ctx = logg.WithShopID(ctx, shopID.String())
			}

			if IsAdmin(ctx) {
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if checker == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ownership checker unavailable"))
				return
			}

			userID, ok := UserUUIDFromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
				return
			}

			owner, err := checker.IsOwner(ctx, shopID, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check shop ownership"))
				return
			}
			if !owner {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "shop access denied"))
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
