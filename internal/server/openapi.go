package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	aferrors "github.com/felixgeelhaar/activityflow/internal/errors"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPISpec returns the embedded API description.
func OpenAPISpec() []byte {
	return openAPISpec
}

// requestValidator checks requests against the embedded OpenAPI document.
type requestValidator struct {
	router routers.Router
}

func newRequestValidator(ctx context.Context) (*requestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build OpenAPI router: %w", err)
	}
	return &requestValidator{router: router}, nil
}

// middleware rejects requests that violate the contract with 400. Requests
// for paths or methods the document does not describe pass through so the
// router can answer 404 or 405.
func (v *requestValidator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, params, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         false,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			writeError(w, r, aferrors.NewInvalidRequestError(validationCause(err)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validationCause drops the schema dump kin-openapi attaches to body errors.
func validationCause(err error) error {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err
	}

	reason := reqErr.Reason
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		reason = schemaErr.Reason
		if ptr := schemaErr.JSONPointer(); len(ptr) > 0 {
			reason = fmt.Sprintf("%s: %s", strings.Join(ptr, "."), reason)
		}
	} else if reqErr.Err != nil {
		reason = reqErr.Err.Error()
	}

	switch {
	case reqErr.Parameter != nil:
		return fmt.Errorf("parameter %q: %s", reqErr.Parameter.Name, reason)
	case reqErr.RequestBody != nil:
		return fmt.Errorf("request body: %s", reason)
	default:
		return errors.New(reason)
	}
}
