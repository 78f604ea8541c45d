package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("GetSwaggerJSON", func(t *testing.T) {
		t.Run("should return OpenAPI 3.0 specification", func(t *testing.T) {
			// Arrange
			handler := NewDocsHandler("2.1.0")
			router := gin.New()
			router.GET("/v1/docs/swagger.json", handler.GetSwaggerJSON)

			req, _ := http.NewRequest("GET", "/v1/docs/swagger.json", nil)
			resp := httptest.NewRecorder()

			// Act
			router.ServeHTTP(resp, req)

			// Assert
			assert.Equal(t, http.StatusOK, resp.Code)
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))

			var doc map[string]any
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &doc))
			assert.Equal(t, "3.0.0", doc["openapi"])

			info, ok := doc["info"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "Risk Engine API", info["title"])
			assert.Equal(t, "2.1.0", info["version"])

			paths, ok := doc["paths"].(map[string]any)
			require.True(t, ok)
			for _, p := range []string{
				"/v1/health", "/v1/risk/var", "/v1/risk/portfolio-var", "/v1/risk/stress",
				"/v1/risk/backtest", "/v1/risk/metrics", "/v1/portfolio/optimize", "/v1/portfolio/frontier",
			} {
				assert.Contains(t, paths, p)
			}
		})

		t.Run("should reference every request schema", func(t *testing.T) {
			spec := NewDocsHandler("").generateSwaggerSpec()
			assert.Equal(t, "1.0.0", spec.Info.Version)

			for path, item := range spec.Paths {
				post, ok := item.(map[string]any)["post"].(map[string]any)
				if !ok {
					continue
				}
				body := post["requestBody"].(map[string]any)["content"].(map[string]any)["application/json"].(map[string]any)
				refName := body["schema"].(map[string]any)["$ref"].(string)
				name := refName[len("#/components/schemas/"):]
				assert.Contains(t, spec.Components.Schemas, name, "schema for %s", path)
			}
		})
	})

	t.Run("GetSwaggerUI", func(t *testing.T) {
		handler := NewDocsHandler("")
		router := gin.New()
		router.GET("/v1/docs", handler.GetSwaggerUI)

		req, _ := http.NewRequest("GET", "/v1/docs", nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		assert.Equal(t, http.StatusOK, resp.Code)
		assert.Contains(t, resp.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, resp.Body.String(), "/v1/docs/swagger.json")
	})
}
