package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"guardpost/activity"
	"guardpost/location"
	"guardpost/middleware"
	"guardpost/models"
	"guardpost/shift"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when allowEmpty is set, leaving dst at its zero value.
func decode(r *http.Request, w http.ResponseWriter, dst interface{}, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !allowEmpty || !errors.Is(err, io.EOF) {
			return errors.New("Invalid request body")
		}
	}
	return validationMessage(validate.Struct(dst))
}

func validationMessage(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("invalid request: %w", err)
	}
	first := verrs[0]
	switch first.Tag() {
	case "required":
		return fmt.Errorf("field '%s' is required", first.Field())
	case "email":
		return fmt.Errorf("field '%s' must be a valid email address", first.Field())
	case "min":
		return fmt.Errorf("field '%s' must be at least %s characters long", first.Field(), first.Param())
	case "max":
		return fmt.Errorf("field '%s' must be at most %s characters long", first.Field(), first.Param())
	case "oneof":
		return fmt.Errorf("field '%s' must be one of: %s", first.Field(), first.Param())
	default:
		return fmt.Errorf("field '%s' validation failed on tag '%s'", first.Field(), first.Tag())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeLedgerError maps lifecycle violations to 4xx with their code and hides
// infrastructure failures behind a generic 500.
func writeLedgerError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var le *shift.Error
	if errors.As(err, &le) {
		status := http.StatusConflict
		switch le.Code {
		case shift.ErrInvalidBreakType.Code, shift.ErrInvalidPhotoSlot.Code, shift.ErrInvalidRequest.Code:
			status = http.StatusBadRequest
		case shift.ErrShiftNotFound.Code:
			status = http.StatusNotFound
		case shift.ErrMissingIdentity.Code:
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]string{
			"error": le.Error(),
			"code":  le.Code,
		})
		return
	}
	logger.Error(fallback, zap.Error(err))
	writeError(w, fallback, http.StatusInternalServerError)
}

// currentActor resolves the authenticated user and the request metadata.
func currentActor(r *http.Request) (shift.Actor, *models.User, bool) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return shift.Actor{}, nil, false
	}
	return shift.Actor{
		Identity: user.Identity(),
		Meta:     activity.RequestMetaFrom(r),
	}, user, true
}

// LocationInput is the location part of a request body. A client either sends
// an already resolved LocationData, a raw Position, or the reason it has none.
type LocationInput struct {
	LocationData  *models.LocationResult `json:"locationData,omitempty"`
	Position      *location.Position     `json:"position,omitempty"`
	PositionError string                 `json:"positionError,omitempty"`
}

// LocationResolver runs the server-side fallback chain.
type LocationResolver interface {
	Resolve(ctx context.Context, req location.Request) *models.LocationResult
}

// locator turns a LocationInput into a stored LocationResult.
type locator struct {
	resolver LocationResolver
	now      func() time.Time
}

func newLocator(resolver LocationResolver) locator {
	return locator{resolver: resolver, now: time.Now}
}

func (l locator) resolve(r *http.Request, in LocationInput) *models.LocationResult {
	if in.LocationData != nil {
		return location.Normalize(in.LocationData, l.now().UTC())
	}
	if l.resolver == nil {
		return nil
	}
	return l.resolver.Resolve(r.Context(), location.Request{
		Device: location.Reported(in.Position, in.PositionError),
		IP:     activity.ClientIP(r),
	})
}
