package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/sudharshan-ks/dev-postmark-challenge/config"
	"github.com/sudharshan-ks/dev-postmark-challenge/models"
	"github.com/sudharshan-ks/dev-postmark-challenge/services"
	"gorm.io/gorm"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type pipeline struct {
	db         *gorm.DB
	translator *services.MockTranslator
	messenger  *services.MockMessenger
	visualizer *services.MockVisualizer
}

// setupTestStore opens a migrated store holding customer CUST1 with one order
func setupTestStore(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	db, err := config.OpenDatabase(filepath.Join(t.TempDir(), "northwind.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, models.Migrate(ctx, db))

	customerID := "CUST1"
	require.NoError(t, models.CreateCustomer(ctx, db, &models.Customer{CustomerID: customerID, CompanyName: "Acme Co", Country: "USA"}))
	product := models.Product{ProductName: "Widget", UnitPrice: decimal.RequireFromString("9.99"), UnitsInStock: 10}
	require.NoError(t, models.CreateProduct(ctx, db, &product))
	require.NoError(t, models.CreateOrder(ctx, db, &models.Order{
		CustomerID: &customerID,
		OrderDate:  "1996-07-04",
		Details: []models.OrderDetail{
			{ProductID: product.ProductID, UnitPrice: decimal.RequireFromString("9.99"), Quantity: 3, Discount: decimal.Zero},
		},
	}))
	return db
}

// setupPipeline installs a real executor over a test store and mocks for
// every external service
func setupPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		db:         setupTestStore(t),
		translator: services.NewMockTranslator(),
		messenger:  services.NewMockMessenger(),
		visualizer: services.NewMockVisualizer(),
	}

	executor, err := services.NewExecutor(p.db, models.MustCatalog(), services.ExecutorOptions{})
	require.NoError(t, err)

	services.SetExecutor(executor)
	p.translator.SetAsMockForTesting()
	services.InitOrchestrator(services.OrchestratorDeps{
		Translator:     p.translator,
		Executor:       executor,
		Visualizer:     p.visualizer,
		Messenger:      p.messenger,
		Archive:        services.NewLocalChartArchive(t.TempDir()),
		Dedup:          services.NewMemoryDeduplicator(time.Hour),
		AttachWorkbook: true,
	})

	t.Cleanup(func() {
		services.SetExecutor(nil)
		services.SetTranslator(nil)
		services.SetOrchestrator(nil)
	})
	return p
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhook", HandleInboundEmail)
	router.POST("/api/v1/queries", ExecuteQuery)
	router.GET("/api/v1/schema", GetSchema)
	router.GET("/api/v1/charts/:filename", GetChart)
	return router
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

