package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
)

// testConfig is the configuration the router is built with in tests
func testConfig() *config.Config {
	return &config.Config{
		GoEnv:        "test",
		DatabasePath: ":memory:",
		ForeignKeys:  true,
	}
}

// setupTestDatabase installs a migrated store as the global database
func setupTestDatabase(t *testing.T) {
	t.Helper()
	db, err := config.OpenDatabase(filepath.Join(t.TempDir(), "northwind.db"), true)
	require.NoError(t, err)
	require.NoError(t, models.Migrate(context.Background(), db))

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(previous)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
}

// TestHealthEndpointIntegration tests the /api/v1/health endpoint with full routing
func TestHealthEndpointIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupRouter(testConfig())

	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "Expected status 200 OK")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Northwind mail query API is running", response["message"])
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"), "Every response carries a request id")
}

// TestHealthEndpointMethod tests that only GET method is allowed
func TestHealthEndpointMethod(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupRouter(testConfig())

	for _, method := range []string{"POST", "PUT", "DELETE"} {
		req, _ := http.NewRequest(method, "/api/v1/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s should not be allowed", method)
	}
}

// TestAPIV1Prefix tests that the endpoint requires /api/v1 prefix
func TestAPIV1Prefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupRouter(testConfig())

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "Endpoint should require /api/v1 prefix")
}

func TestDatabaseStatusIntegration(t *testing.T) {
	gin.SetMode(gin.TestMode)
	setupTestDatabase(t)
	router := setupRouter(testConfig())

	req, _ := http.NewRequest("GET", "/api/v1/database/status", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response struct {
		Success bool     `json:"success"`
		Tables  []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.ElementsMatch(t, models.TableNames, response.Tables)
}

func TestWebhookBasicAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.WebhookUsername = "postmark"
	cfg.WebhookPassword = "secret"
	router := setupRouter(cfg)

	for _, path := range []string{"/webhook", "/api/v1/webhook/inbound"} {
		req, _ := http.NewRequest("POST", path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)

		req, _ = http.NewRequest("POST", path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth("postmark", "secret")
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%s: an empty email is rejected once authenticated", path)
	}
}

func TestQueryRouteNeedsAuthInProduction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.GoEnv = "production"
	router := setupRouter(cfg)
	gin.SetMode(gin.TestMode)

	req, _ := http.NewRequest("POST", "/api/v1/queries", strings.NewReader(`{"sql":"SELECT 1"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "The query API is not served without Auth0 in production")

	req, _ = http.NewRequest("GET", "/api/v1/schema", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code, "The schema API is not served without Auth0 in production")
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Auth0Domain = "tenant.example.com"
	cfg.Auth0Audience = "https://northwind.example.com"
	router := setupRouter(cfg)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{"GET", "/api/v1/schema", ""},
		{"POST", "/api/v1/queries", `{"question":"How many orders?"}`},
	}

	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, tt.path)
		var response map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "%s: exactly one error body", tt.path)
		assert.Equal(t, "MISSING_TOKEN", response["error"].(map[string]interface{})["code"], tt.path)
	}
}

// TestHealthEndpointHeaders tests that proper headers are set
func TestHealthEndpointHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := setupRouter(testConfig())

	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
