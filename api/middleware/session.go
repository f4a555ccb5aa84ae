package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/mycoshop-backend/api/responses"
	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
	"github.com/angelmondragon/mycoshop-backend/pkg/session"
)

// Session resolves the shopper session from the signed cookie. Missing,
// expired or tampered cookies get a fresh session; tokens past half of their
// lifetime are reissued with the same id.
func Session(cfg config.SessionConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return sessionWithClock(cfg, logg, time.Now)
}

func sessionWithClock(cfg config.SessionConfig, logg *logger.Logger, now func() time.Time) func(http.Handler) http.Handler {
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "shop_session"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			current := now()

			var claims *session.Claims
			if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
				parsed, parseErr := session.Parse(cfg, cookie.Value)
				if parseErr != nil {
					if logg != nil {
						logg.Debug(logg.WithField(ctx, "reason", parseErr.Error()), "session.cookie.rejected")
					}
				} else {
					claims = parsed
				}
			}

			if claims == nil || session.ShouldRefresh(claims, cfg, current) {
				sid := ""
				if claims != nil {
					sid = claims.SessionID
				}
				token, minted, err := session.Mint(cfg, current, sid)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session"))
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    token,
					Path:     "/",
					Expires:  minted.ExpiresAt.Time,
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.SecureCookie,
					SameSite: http.SameSiteLaxMode,
				})
				claims = minted
			}

			ctx = WithSessionID(ctx, claims.SessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, claims.SessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
