package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

// maxBodyBytes caps request bodies
const maxBodyBytes = 1 << 20

// Request bodies reject unknown fields, and binding failures name the JSON
// field rather than the Go one.
func init() {
	binding.EnableDecoderDisallowUnknownFields = true
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

// jsonFieldName reports validation failures under the JSON field name
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// Response is the envelope of every API response
type Response struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes for failures outside the risk error taxonomy
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
)

// StatusFor maps an error kind to its HTTP status
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindUnsupportedDistribution:
		return http.StatusBadRequest
	case domain.KindInsufficientData, domain.KindNumerical:
		return http.StatusUnprocessableEntity
	case domain.KindCancelled:
		return http.StatusRequestTimeout
	case domain.KindNotAvailable:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func respondError(c *gin.Context, err error) {
	var re *domain.RiskError
	if !errors.As(err, &re) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, Response{Error: &ErrorResponse{
			Code:    CodeInternal,
			Message: "internal server error",
		}})
		return
	}

	details := make(map[string]any, len(re.Details)+3)
	for k, v := range re.Details {
		details[k] = v
	}
	if re.Operation != "" {
		details["operation"] = re.Operation
	}
	if len(re.Constraints) > 0 {
		details["constraints"] = re.Constraints
	}
	if len(re.Diagnostics) > 0 {
		details["diagnostics"] = re.Diagnostics
	}
	c.JSON(StatusFor(re.Kind), Response{Error: &ErrorResponse{
		Code:    string(re.Kind),
		Message: re.Message,
		Details: details,
	}})
}

func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Error: &ErrorResponse{
		Code:    CodeInvalidRequest,
		Message: err.Error(),
	}})
}

// decodeStrict decodes a single JSON value and rejects unknown fields
func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data after JSON value")
	}
	return nil
}

// bindJSON binds the request body into v with gin's JSON binding and runs the
// binding tags. The body is read once and kept on the context, so trailing
// data after the first value can be rejected.
func bindJSON(c *gin.Context, v any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindBodyWithJSON(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			return fieldErrors(fields)
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if body, ok := c.Get(gin.BodyBytesKey); ok {
		var first json.RawMessage
		if err := decodeStrict(bytes.NewReader(body.([]byte)), &first); err != nil {
			return err
		}
	}
	return nil
}

func fieldErrors(errs validator.ValidationErrors) *domain.RiskError {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fe.Tag()
	}
	return domain.NewValidationError("bind_request", "request failed validation").
		WithDetail("fields", fields)
}

// bindRequest binds v and writes the error response on failure
func bindRequest(c *gin.Context, v any) bool {
	err := bindJSON(c, v)
	if err == nil {
		return true
	}
	var re *domain.RiskError
	if errors.As(err, &re) {
		respondError(c, err)
	} else {
		respondBadRequest(c, err)
	}
	return false
}

// decodeParams decodes raw distribution parameters into the structured
// variant for kind
func decodeParams(kind string, raw json.RawMessage) (domain.Distribution, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	if kind == "" {
		return nil, domain.NewValidationError("decode_params", "params require a distribution")
	}
	k, err := domain.ParseDistributionKind(kind)
	if err != nil {
		return nil, err
	}

	var dist domain.Distribution
	switch k {
	case domain.DistNormal:
		dist, err = decodeVariant[domain.Normal](raw)
	case domain.DistStudentT:
		dist, err = decodeVariant[domain.StudentT](raw)
	case domain.DistSkewedT:
		dist, err = decodeVariant[domain.SkewedT](raw)
	case domain.DistGARCH:
		dist, err = decodeVariant[domain.GARCH](raw)
	case domain.DistCopula:
		dist, err = decodeVariant[domain.Copula](raw)
	case domain.DistMixture:
		dist, err = decodeVariant[domain.Mixture](raw)
	}
	if err != nil {
		return nil, domain.NewValidationError("decode_params", err.Error()).
			WithDetail("distribution", kind)
	}
	return dist, nil
}

func decodeVariant[T domain.Distribution](raw json.RawMessage) (domain.Distribution, error) {
	var d T
	if err := decodeStrict(bytes.NewReader(raw), &d); err != nil {
		return nil, err
	}
	return d, nil
}
