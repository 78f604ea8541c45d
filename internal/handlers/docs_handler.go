package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DocsHandler handles API documentation endpoints
type DocsHandler struct {
	version string
}

// NewDocsHandler creates a new documentation handler
func NewDocsHandler(version string) *DocsHandler {
	if version == "" {
		version = "1.0.0"
	}
	return &DocsHandler{version: version}
}

// SwaggerSpec represents the OpenAPI specification structure
type SwaggerSpec struct {
	OpenAPI    string            `json:"openapi"`
	Info       SwaggerInfo       `json:"info"`
	Paths      map[string]any    `json:"paths"`
	Components SwaggerComponents `json:"components"`
}

// SwaggerInfo represents the API information
type SwaggerInfo struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// SwaggerComponents represents the reusable components
type SwaggerComponents struct {
	Schemas map[string]any `json:"schemas"`
}

// GetSwaggerJSON returns the OpenAPI specification in JSON format
func (h *DocsHandler) GetSwaggerJSON(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.JSON(http.StatusOK, h.generateSwaggerSpec())
}

// GetSwaggerUI returns the Swagger UI HTML page
func (h *DocsHandler) GetSwaggerUI(c *gin.Context) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Risk Engine API - Swagger UI</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui.css" />
    <style>
        .swagger-ui .topbar { display: none; }
        body { margin: 0; padding: 20px; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: '/v1/docs/swagger.json',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
                tryItOutEnabled: true,
                supportedSubmitMethods: ['get', 'post']
            });
        };
    </script>
</body>
</html>`

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, html)
}

func schema(typ string) map[string]any { return map[string]any{"type": typ} }

func arrayOf(item map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": item}
}

func object(required []string, props map[string]any) map[string]any {
	out := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

// postOperation documents a JSON POST endpoint returning the Response envelope
func postOperation(tag, summary, description, requestSchema string) map[string]any {
	errorResponse := func(desc string) map[string]any {
		return map[string]any{
			"description": desc,
			"content":     map[string]any{"application/json": map[string]any{"schema": ref("Error")}},
		}
	}
	return map[string]any{
		"post": map[string]any{
			"summary":     summary,
			"description": description,
			"tags":        []string{tag},
			"requestBody": map[string]any{
				"required": true,
				"content":  map[string]any{"application/json": map[string]any{"schema": ref(requestSchema)}},
			},
			"responses": map[string]any{
				"200": map[string]any{"description": "Calculation succeeded"},
				"400": errorResponse("VALIDATION or UNSUPPORTED_DISTRIBUTION"),
				"404": errorResponse("NOT_AVAILABLE: no price history for a symbol"),
				"408": errorResponse("CANCELLED: calculation exceeded the request timeout"),
				"422": errorResponse("INSUFFICIENT_DATA or NUMERICAL"),
				"429": errorResponse("Rate limit exceeded"),
			},
		},
	}
}

// generateSwaggerSpec creates the OpenAPI specification
func (h *DocsHandler) generateSwaggerSpec() SwaggerSpec {
	number, integer, str, boolean := schema("number"), schema("integer"), schema("string"), schema("boolean")
	levels := arrayOf(number)
	calcProps := func(extra map[string]any) map[string]any {
		props := map[string]any{
			"method":            map[string]any{"type": "string", "enum": []string{"historical", "parametric", "monte_carlo"}},
			"distribution":      map[string]any{"type": "string", "enum": []string{"normal", "student_t", "skewed_t", "garch", "copula", "mixture"}},
			"params":            ref("DistributionParams"),
			"confidence_levels": levels,
			"lookback_days":     map[string]any{"type": "integer", "minimum": 30, "maximum": 1000},
			"simulation_count":  map[string]any{"type": "integer", "minimum": 1000, "maximum": 100000},
			"time_horizon_days": integer,
			"seed":              integer,
		}
		for k, v := range extra {
			props[k] = v
		}
		return props
	}
	constraints := object(nil, map[string]any{
		"min_weight":     number,
		"max_weight":     number,
		"risk_free_rate": number,
		"risk_aversion":  number,
	})

	return SwaggerSpec{
		OpenAPI: "3.0.0",
		Info: SwaggerInfo{
			Title:       "Risk Engine API",
			Version:     h.version,
			Description: "Value-at-Risk, stress testing, backtesting and portfolio construction.",
		},
		Paths: map[string]any{
			"/v1/health": map[string]any{
				"get": map[string]any{
					"summary": "Health check",
					"tags":    []string{"System"},
					"responses": map[string]any{
						"200": map[string]any{"description": "Server is healthy"},
					},
				},
			},
			"/v1/risk/var": postOperation("Risk", "Calculate VaR",
				"VaR and CVaR of one symbol under the historical, parametric or Monte Carlo method", "VaRRequest"),
			"/v1/risk/portfolio-var": postOperation("Risk", "Calculate portfolio VaR",
				"VaR and CVaR of a weighted basket with per-asset contributions", "PortfolioVaRRequest"),
			"/v1/risk/stress": postOperation("Risk", "Stress test",
				"Baseline versus stressed VaR under a volatility, return or correlation shock", "StressRequest"),
			"/v1/risk/backtest": postOperation("Risk", "Backtest VaR",
				"Rolling one-day VaR backtest with Kupiec and Christoffersen tests", "BacktestRequest"),
			"/v1/risk/metrics": postOperation("Risk", "Risk metrics",
				"Sharpe, Sortino, drawdown, tracking error and tail statistics", "MetricsRequest"),
			"/v1/portfolio/optimize": postOperation("Portfolio", "Optimize portfolio",
				"Mean-variance, minimum variance, maximum Sharpe, equal weight, risk parity or Black-Litterman", "OptimizeRequest"),
			"/v1/portfolio/frontier": postOperation("Portfolio", "Efficient frontier",
				"Efficient portfolios ordered by volatility", "FrontierRequest"),
		},
		Components: SwaggerComponents{
			Schemas: map[string]any{
				"DistributionParams": map[string]any{
					"type":        "object",
					"description": "Fields of the selected distribution; unknown fields are rejected",
				},
				"Constraints": constraints,
				"VaRRequest": object([]string{"target", "method"}, calcProps(map[string]any{
					"target":          str,
					"antithetic":      boolean,
					"control_variate": boolean,
					"quasi_random":    boolean,
					"bootstrap":       boolean,
					"portfolio_value": str,
				})),
				"PortfolioVaRRequest": object([]string{"symbols", "weights", "method"}, calcProps(map[string]any{
					"symbols":         arrayOf(str),
					"weights":         arrayOf(number),
					"portfolio_value": str,
				})),
				"StressRequest": object([]string{"scenario_type", "stress_factor", "method"}, calcProps(map[string]any{
					"target":        str,
					"symbols":       arrayOf(str),
					"weights":       arrayOf(number),
					"scenario_name": str,
					"scenario_type": map[string]any{"type": "string", "enum": []string{"volatility_shock", "return_shock", "correlation_shock"}},
					"stress_factor": number,
				})),
				"BacktestRequest": object([]string{"target", "method"}, map[string]any{
					"target":               str,
					"method":               str,
					"distribution":         str,
					"confidence_level":     number,
					"backtest_period_days": integer,
					"lookback_days":        integer,
					"simulation_count":     integer,
					"seed":                 integer,
					"significance":         number,
				}),
				"MetricsRequest": object([]string{"symbols"}, map[string]any{
					"symbols":       arrayOf(str),
					"weights":       arrayOf(number),
					"benchmark":     str,
					"lookback_days": integer,
				}),
				"OptimizeRequest": object([]string{"symbols", "method"}, map[string]any{
					"symbols": arrayOf(str),
					"method": map[string]any{"type": "string", "enum": []string{
						"mean_variance", "minimum_variance", "maximum_sharpe", "equal_weight", "risk_parity", "black_litterman",
					}},
					"constraints":   ref("Constraints"),
					"lookback_days": integer,
					"views": object([]string{"p", "q"}, map[string]any{
						"p":              arrayOf(arrayOf(number)),
						"q":              arrayOf(number),
						"omega":          arrayOf(arrayOf(number)),
						"tau":            number,
						"delta":          number,
						"market_weights": arrayOf(number),
					}),
				}),
				"FrontierRequest": object([]string{"symbols"}, map[string]any{
					"symbols":       arrayOf(str),
					"num_points":    map[string]any{"type": "integer", "minimum": 2, "maximum": 200},
					"constraints":   ref("Constraints"),
					"lookback_days": integer,
				}),
				"Error": object(nil, map[string]any{
					"success": boolean,
					"error": object(nil, map[string]any{
						"code":    str,
						"message": str,
						"details": schema("object"),
					}),
				}),
			},
		},
	}
}
