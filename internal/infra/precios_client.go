package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"concentra/internal/config"
	"concentra/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// simbolosProveedor maps tracked minerals to the provider's currency codes.
var simbolosProveedor = map[model.Mineral]string{
	model.MineralAg: "XAG",
	model.MineralSn: "TIN",
	model.MineralZn: "ZNC",
}

// PreciosClient fetches live metal rates from a metalpriceapi-compatible
// endpoint. Every call goes through the circuit breaker so a dead provider
// fails fast and the quotation cache falls back to its stale snapshot.
type PreciosClient struct {
	http    *resty.Client
	apiKey  string
	breaker *CircuitBreaker
}

func NewPreciosClient(cfg *config.Config, breaker *CircuitBreaker) *PreciosClient {
	timeout := time.Duration(cfg.PreciosTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.PreciosAPIURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &PreciosClient{http: client, apiKey: cfg.PreciosAPIKey, breaker: breaker}
}

type latestResponse struct {
	Success   bool                       `json:"success"`
	Base      string                     `json:"base"`
	Timestamp int64                      `json:"timestamp"`
	Rates     map[string]decimal.Decimal `json:"rates"`
}

type providerError struct {
	Success bool `json:"success"`
	Error   struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message"`
	} `json:"error"`
}

// ObtenerTasas returns how many units of each metal one USD buys.
func (c *PreciosClient) ObtenerTasas(ctx context.Context) (*model.TasasMetales, error) {
	var tasas *model.TasasMetales
	err := c.breaker.Execute(func() error {
		var err error
		tasas, err = c.latest(ctx)
		return err
	})
	return tasas, err
}

func (c *PreciosClient) latest(ctx context.Context) (*model.TasasMetales, error) {
	simbolos := make([]string, 0, len(simbolosProveedor))
	for _, s := range simbolosProveedor {
		simbolos = append(simbolos, s)
	}

	result := new(latestResponse)
	apiErr := new(providerError)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_key":    c.apiKey,
			"base":       "USD",
			"currencies": strings.Join(simbolos, ","),
		}).
		SetResult(result).
		SetError(apiErr).
		Get("/latest")
	if err != nil {
		return nil, fmt.Errorf("precios: request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("precios: %s (status %d)", apiErr.Error.Message, resp.StatusCode())
		}
		return nil, fmt.Errorf("precios: unexpected status %d", resp.StatusCode())
	}
	if !result.Success {
		return nil, fmt.Errorf("precios: provider reported failure")
	}
	return tasasDesdeRespuesta(result)
}

func tasasDesdeRespuesta(r *latestResponse) (*model.TasasMetales, error) {
	out := &model.TasasMetales{
		Tasas:      make(map[model.Mineral]decimal.Decimal, len(simbolosProveedor)),
		Fuente:     "metalpriceapi",
		FechaCorte: time.Unix(r.Timestamp, 0).UTC(),
	}
	for m, s := range simbolosProveedor {
		v, ok := r.Rates[s]
		if !ok || !v.IsPositive() {
			continue
		}
		out.Tasas[m] = v
	}
	if len(out.Tasas) == 0 {
		return nil, fmt.Errorf("precios: response carried no usable rates")
	}
	return out, nil
}
