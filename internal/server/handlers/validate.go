// internal/server/handlers/validate.go

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"regionalert/internal/domain/geo"
)

// MaxRadiusKm bounds alert and search radii accepted over HTTP.
const MaxRadiusKm = 500.0

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var errBadRequest = eris.New("handlers: bad request")

// NewValidator returns a validator with the coordinate tags registered:
// lat, lng and radius_km.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("lat", validateLat)
	_ = v.RegisterValidation("lng", validateLng)
	_ = v.RegisterValidation("radius_km", validateRadiusKm)

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateLat(fl validator.FieldLevel) bool {
	lat := fl.Field().Float()
	return lat >= -90 && lat <= 90
}

func validateLng(fl validator.FieldLevel) bool {
	lng := fl.Field().Float()
	return lng >= -180 && lng <= 180
}

func validateRadiusKm(fl validator.FieldLevel) bool {
	r := fl.Field().Float()
	return r > 0 && r <= MaxRadiusKm
}

// decodeJSON reads a JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return eris.Wrap(errBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return validateStruct(v, dst)
}

func validateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return eris.Wrap(errBadRequest, err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return eris.Wrap(errBadRequest, strings.Join(msgs, "; "))
}

// queryCoordinate parses a validated coordinate from two query parameters.
func queryCoordinate(r *http.Request, latKey, lngKey string) (geo.Coordinate, error) {
	lat, err := queryFloat(r, latKey)
	if err != nil {
		return geo.Coordinate{}, err
	}
	lng, err := queryFloat(r, lngKey)
	if err != nil {
		return geo.Coordinate{}, err
	}
	return geo.NewCoordinate(lat, lng)
}

func queryFloat(r *http.Request, key string) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, eris.Wrapf(errBadRequest, "missing %s parameter", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(errBadRequest, "invalid %s parameter %q", key, raw)
	}
	return v, nil
}
