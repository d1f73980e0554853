package i18n

import "net/http"

// Middleware injects a localizer into every request context. The language
// is normally the server default, but when the force-English preference is
// on the English localizer is used instead.
func Middleware(lang string, forceEnglish func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			effective := lang
			if forceEnglish != nil && forceEnglish() {
				effective = "en"
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(effective))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
