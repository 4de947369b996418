package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tradingbot/internal/config"
	"tradingbot/pkg/crypto"
	"tradingbot/pkg/ratelimit"
)

// binance.go - REST клиент Binance Spot API
//
// Приватные запросы подписываются: к query string добавляются
// timestamp и recvWindow, затем HMAC-SHA256 подпись секретным
// ключом параметром signature. Публичные запросы не подписываются.
//
// Категории rate limit:
// - "orders": размещение/отмена ордеров
// - "market": рыночные данные и информация аккаунта

// Категории лимитов запросов
const (
	limitOrders = "orders"
	limitMarket = "market"
)

// BinanceClient - клиент REST API биржи
type BinanceClient struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	recvWindow time.Duration

	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter

	// Подменяется в тестах для детерминированных подписей
	now func() time.Time
}

// NewBinanceClient создаёт REST клиент
//
// Возвращает ErrMissingCredentials если ключи не заданы:
// без них невозможны приватные операции, запуск бессмысленен.
func NewBinanceClient(cfg config.BinanceConfig) (*BinanceClient, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(limitOrders, 10, 20)
	limiter.Add(limitMarket, 20, 40)

	return &BinanceClient{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		baseURL:    cfg.RESTBase,
		recvWindow: cfg.RecvWindow,
		httpClient: NewHTTPClient(DefaultHTTPClientConfig()),
		limiter:    limiter,
		now:        time.Now,
	}, nil
}

// binanceAPIError - тело ошибки API
type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// doRequest выполняет запрос к API
//
// Для signed запросов подписывается итоговая query string
// вместе с timestamp и recvWindow.
func (c *BinanceClient) doRequest(ctx context.Context, method, endpoint, category string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx, category); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}

	if signed {
		params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	}

	query := params.Encode()
	if signed {
		signature := crypto.SignHMAC256(query, c.apiSecret)
		query = query + "&signature=" + signature
	}

	reqURL := c.baseURL + endpoint
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{
			Exchange: "binance",
			Message:  "request failed",
			Original: err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr binanceAPIError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
			return nil, &ExchangeError{
				Exchange: "binance",
				Code:     strconv.Itoa(apiErr.Code),
				Message:  apiErr.Msg,
			}
		}
		return nil, &ExchangeError{
			Exchange: "binance",
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	return body, nil
}

// ============================================================
// Публичные рыночные данные
// ============================================================

// GetPrice возвращает текущую цену символа
func (c *BinanceClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/price", limitMarket, params, false)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	return strconv.ParseFloat(resp.Price, 64)
}

// Get24hrTicker возвращает 24-часовую статистику символа
func (c *BinanceClient) Get24hrTicker(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", limitMarket, params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChange        string `json:"priceChange"`
		PriceChangePercent string `json:"priceChangePercent"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
		QuoteVolume        string `json:"quoteVolume"`
		CloseTime          int64  `json:"closeTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	fields, err := parseFloats(map[string]string{
		"last":   resp.LastPrice,
		"change": resp.PriceChange,
		"pct":    resp.PriceChangePercent,
		"high":   resp.HighPrice,
		"low":    resp.LowPrice,
		"vol":    resp.Volume,
		"quote":  resp.QuoteVolume,
	})
	if err != nil {
		return nil, err
	}

	return &Ticker24h{
		Symbol:             resp.Symbol,
		LastPrice:          fields["last"],
		PriceChange:        fields["change"],
		PriceChangePercent: fields["pct"],
		HighPrice:          fields["high"],
		LowPrice:           fields["low"],
		Volume:             fields["vol"],
		QuoteVolume:        fields["quote"],
		Timestamp:          time.UnixMilli(resp.CloseTime).UTC(),
	}, nil
}

// GetExchangeInfo возвращает торговые лимиты символов
//
// Лимиты извлекаются из фильтров LOT_SIZE, PRICE_FILTER и NOTIONAL.
func (c *BinanceClient) GetExchangeInfo(ctx context.Context, symbols []string) (map[string]Limits, error) {
	params := url.Values{}
	if len(symbols) == 1 {
		params.Set("symbol", symbols[0])
	} else if len(symbols) > 1 {
		encoded, _ := json.Marshal(symbols)
		params.Set("symbols", string(encoded))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", limitMarket, params, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType  string `json:"filterType"`
				MinQty      string `json:"minQty"`
				MaxQty      string `json:"maxQty"`
				StepSize    string `json:"stepSize"`
				TickSize    string `json:"tickSize"`
				MinNotional string `json:"minNotional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := make(map[string]Limits, len(resp.Symbols))
	for _, s := range resp.Symbols {
		limits := Limits{Symbol: s.Symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				limits.MinOrderQty, _ = strconv.ParseFloat(f.MinQty, 64)
				limits.MaxOrderQty, _ = strconv.ParseFloat(f.MaxQty, 64)
				limits.QtyStep, _ = strconv.ParseFloat(f.StepSize, 64)
			case "PRICE_FILTER":
				limits.PriceStep, _ = strconv.ParseFloat(f.TickSize, 64)
			case "NOTIONAL", "MIN_NOTIONAL":
				limits.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
			}
		}
		out[s.Symbol] = limits
	}

	return out, nil
}

// ============================================================
// Приватные операции
// ============================================================

// GetAccountBalance возвращает баланс актива
func (c *BinanceClient) GetAccountBalance(ctx context.Context, asset string) (*Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", limitMarket, nil, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	for _, b := range resp.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			return nil, err
		}
		locked, err := strconv.ParseFloat(b.Locked, 64)
		if err != nil {
			return nil, err
		}
		return &Balance{Asset: asset, Free: free, Locked: locked}, nil
	}

	// Актив без операций отсутствует в ответе - нулевой баланс
	return &Balance{Asset: asset}, nil
}

// rawOrderResponse - ответ ордерных эндпоинтов
type rawOrderResponse struct {
	OrderID             int64  `json:"orderId"`
	Symbol              string `json:"symbol"`
	Side                string `json:"side"`
	Type                string `json:"type"`
	Status              string `json:"status"`
	OrigQty             string `json:"origQty"`
	Price               string `json:"price"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	TransactTime        int64  `json:"transactTime"`
	Fills               []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

// toOrderResult конвертирует ответ API в OrderResult
func (r *rawOrderResponse) toOrderResult() (*OrderResult, error) {
	qty, err := strconv.ParseFloat(r.OrigQty, 64)
	if err != nil {
		return nil, fmt.Errorf("bad origQty %q: %w", r.OrigQty, err)
	}

	executed, _ := strconv.ParseFloat(r.ExecutedQty, 64)
	price, _ := strconv.ParseFloat(r.Price, 64)
	quoteQty, _ := strconv.ParseFloat(r.CummulativeQuoteQty, 64)

	result := &OrderResult{
		OrderID:      r.OrderID,
		Symbol:       r.Symbol,
		Side:         r.Side,
		Type:         r.Type,
		Status:       r.Status,
		Quantity:     qty,
		Price:        price,
		ExecutedQty:  executed,
		TransactTime: time.UnixMilli(r.TransactTime).UTC(),
	}

	// Средневзвешенная цена исполнения из квотного объёма
	if executed > 0 && quoteQty > 0 {
		result.ExecutedPrice = quoteQty / executed
	}

	for _, f := range r.Fills {
		commission, _ := strconv.ParseFloat(f.Commission, 64)
		result.Commission += commission
	}

	return result, nil
}

// PlaceMarketOrder размещает рыночный ордер
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol, side string, qty float64) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeMarket)
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", limitOrders, params, true)
	if err != nil {
		return nil, err
	}

	var resp rawOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.toOrderResult()
}

// PlaceLimitOrder размещает лимитный ордер GTC
func (c *BinanceClient) PlaceLimitOrder(ctx context.Context, symbol, side string, qty, price float64) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", OrderTypeLimit)
	params.Set("timeInForce", "GTC")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))

	body, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", limitOrders, params, true)
	if err != nil {
		return nil, err
	}

	var resp rawOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.toOrderResult()
}

// CancelOrder отменяет ордер по ID
func (c *BinanceClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	_, err := c.doRequest(ctx, http.MethodDelete, "/api/v3/order", limitOrders, params, true)
	return err
}

// GetOrder возвращает состояние ордера
func (c *BinanceClient) GetOrder(ctx context.Context, symbol string, orderID int64) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.doRequest(ctx, http.MethodGet, "/api/v3/order", limitMarket, params, true)
	if err != nil {
		return nil, err
	}

	var resp rawOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.toOrderResult()
}

// Close закрывает idle соединения клиента
func (c *BinanceClient) Close() {
	CloseIdleConnections(c.httpClient)
}

// Проверка реализации интерфейса на этапе компиляции
var _ OrderClient = (*BinanceClient)(nil)
