// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/oapi-codegen/v2/pkg/codegen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/ManuGH/playctl/internal/api/v1"
)

var (
	openapiOnce sync.Once
	openapiDoc  *openapi3.T
	openapiErr  error
)

func loadOpenAPIDoc(t *testing.T) *openapi3.T {
	t.Helper()
	openapiOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(v1.SpecYAML())
		if err != nil {
			openapiErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			openapiErr = err
			return
		}
		openapiDoc = doc
	})
	if openapiErr != nil {
		t.Fatalf("openapi load failed: %v", openapiErr)
	}
	return openapiDoc
}

func validateOpenAPIResponse(t *testing.T, doc *openapi3.T, req *http.Request, rr *httptest.ResponseRecorder) {
	t.Helper()
	router, err := legacy.NewRouter(doc)
	require.NoError(t, err, "openapi router init")

	route, pathParams, err := router.FindRoute(req)
	require.NoError(t, err, "openapi route lookup")

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: rr.Code,
		Header: rr.Header(),
	}
	input.SetBodyBytes(rr.Body.Bytes())

	require.NoError(t, openapi3filter.ValidateResponse(context.Background(), input), "openapi response validation")
}

// exchange serves one request and checks the reply against the document.
func (f *fixture) exchange(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	validateOpenAPIResponse(t, loadOpenAPIDoc(t), req, rr)
	return rr
}

func TestContract_SessionLifecycle(t *testing.T) {
	f := newFixture(t, 0)

	rr := f.exchange(t, http.MethodPost, "/api/v1/sessions", configureBody)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created v1.SessionCreated
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "/api/v1/sessions/"+created.Id, rr.Header().Get("Location"))
	f.waitPrepared(t, created.Id)

	rr = f.exchange(t, http.MethodGet, "/api/v1/sessions/"+created.Id, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.exchange(t, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)

	base := "/api/v1/sessions/" + created.Id + "/commands/"
	rr = f.exchange(t, http.MethodPost, base+"play", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.exchange(t, http.MethodPost, base+"listTracks", `{"type":"audio"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.exchange(t, http.MethodPost, base+"configure", configureBody)
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = f.exchange(t, http.MethodDelete, "/api/v1/sessions/"+created.Id, "")
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestContract_ErrorReplies(t *testing.T) {
	f := newFixture(t, 1)
	id := f.create(t, "")

	rr := f.exchange(t, http.MethodPost, "/api/v1/sessions/"+id+"/commands/setBrightness", `{"delta":0.1}`)
	require.Equal(t, http.StatusNotImplemented, rr.Code)

	rr = f.exchange(t, http.MethodGet, "/api/v1/sessions/missing", "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.exchange(t, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = f.exchange(t, http.MethodPost, "/api/v1/sessions/"+id+"/commands/play", "[1,")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestContract_MetaEndpoints(t *testing.T) {
	f := newFixture(t, 0)

	rr := f.exchange(t, http.MethodGet, "/api/v1/methods", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.exchange(t, http.MethodGet, "/api/v1/openapi.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var served map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &served))
	assert.Equal(t, "3.0.3", served["openapi"])
}

// Every documented operation is mounted on the production router.
func TestRouterParity_ProductionWiring(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	f := newFixture(t, 0)
	mux, ok := f.srv.Handler().(chi.Routes)
	require.True(t, ok)

	forEachOperation(t, doc, func(method, path string, _ *openapi3.Operation) {
		rctx := chi.NewRouteContext()
		url := v1.BaseURL + samplePath(path)
		assert.True(t, mux.Match(rctx, method, url), "route not mounted: %s %s", method, url)
	})
}

// The generated router answers every operation, not 404 or 405.
func TestRouterParity_GeneratedRouter(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	handler := v1.HandlerWithOptions(v1.Unimplemented{}, v1.ChiServerOptions{BaseURL: v1.BaseURL})

	forEachOperation(t, doc, func(method, path string, _ *openapi3.Operation) {
		req := httptest.NewRequest(method, v1.BaseURL+samplePath(path), nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code == http.StatusNotFound || rr.Code == http.StatusMethodNotAllowed {
			t.Fatalf("route not mounted: %s %s -> %d", method, path, rr.Code)
		}
	})
}

// Every operationId has a handler method on Server.
func TestRouterParity_OperationHandlers(t *testing.T) {
	doc := loadOpenAPIDoc(t)
	srv := reflect.TypeOf(&Server{})

	forEachOperation(t, doc, func(method, path string, op *openapi3.Operation) {
		name := codegen.ToCamelCase(op.OperationID)
		_, ok := srv.MethodByName(name)
		assert.True(t, ok, "%s %s: Server has no %s", method, path, name)
	})
}

func forEachOperation(t *testing.T, doc *openapi3.T, fn func(method, path string, op *openapi3.Operation)) {
	t.Helper()
	for path, pathItem := range doc.Paths.Map() {
		if pathItem == nil {
			continue
		}
		for method, op := range pathItem.Operations() {
			if op == nil || op.OperationID == "" {
				continue
			}
			fn(method, path, op)
		}
	}
}

var pathParamRe = regexp.MustCompile(`\{([^}]+)\}`)

func samplePath(path string) string {
	return pathParamRe.ReplaceAllString(path, "x")
}
