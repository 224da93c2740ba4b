package middleware

import (
	"bytes"
	"io"
	"mime"
	"net/http"

	"quickeats/gorest/auth"
	"quickeats/gorest/middleware/logkafka"
	"quickeats/gorest/models"
	"quickeats/gorest/utils"
)

// Authenticate resolves the bearer token into an auth.Identity and stores it in
// the request context. Requests without a valid token never reach next.
func Authenticate(guard *auth.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := guard.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				utils.WriteError(w, err)
				return
			}
			logkafka.Annotate(r.Context(), "user_id", id.UserID.Hex())
			logkafka.Annotate(r.Context(), "role", string(id.Role))
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// RequireJSON rejects POST and PUT bodies that are blank or not declared as
// application/json. Bodiless requests and multipart uploads pass through.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method != http.MethodPost && r.Method != http.MethodPut) || r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err == nil && mediaType == "multipart/form-data" {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil || mediaType != "application/json" {
			utils.WriteJSON(w, http.StatusUnsupportedMediaType, utils.ErrorBody{Message: "Content-Type header must be application/json"})
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody+1))
		if err != nil {
			utils.WriteError(w, models.NewValidationError("", "error reading request body"))
			return
		}
		if len(bytes.TrimSpace(body)) == 0 {
			utils.WriteError(w, models.NewValidationError("", "request body is empty"))
			return
		}
		if len(body) > maxJSONBody {
			utils.WriteJSON(w, http.StatusRequestEntityTooLarge, utils.ErrorBody{Message: "request body too large"})
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
