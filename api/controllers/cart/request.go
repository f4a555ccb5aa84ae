package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/mycoshop-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

// Quantity is a pointer so a missing field is told apart from 0, which
// removes the line.
type updateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

func sessionFromRequest(r *http.Request) (string, error) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "session missing")
	}
	return sessionID, nil
}

func lineIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "lineId"))
	lineID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid line id").
			WithDetails(map[string]any{"field": "lineId"})
	}
	return lineID, nil
}
