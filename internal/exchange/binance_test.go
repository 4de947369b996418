package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tradingbot/internal/config"
	"tradingbot/pkg/crypto"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *BinanceClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewBinanceClient(config.BinanceConfig{
		APIKey:     "test-key",
		APISecret:  "test-secret",
		RESTBase:   server.URL,
		RecvWindow: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewBinanceClient: %v", err)
	}
	client.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return client
}

func TestNewBinanceClientMissingCredentials(t *testing.T) {
	_, err := NewBinanceClient(config.BinanceConfig{})
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("ошибка = %v, ожидалась ErrMissingCredentials", err)
	}
}

func TestGetPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Errorf("symbol = %s", r.URL.Query().Get("symbol"))
		}
		// Публичный запрос не подписывается
		if r.URL.Query().Get("signature") != "" {
			t.Error("публичный запрос не должен содержать подпись")
		}
		if r.Header.Get("X-MBX-APIKEY") != "" {
			t.Error("публичный запрос не должен содержать API ключ")
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.45"}`))
	})

	price, err := client.GetPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if price != 50123.45 {
		t.Errorf("price = %v", price)
	}
}

func TestPlaceMarketOrderSigned(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Errorf("API key header = %s", r.Header.Get("X-MBX-APIKEY"))
		}

		// Подпись считается по query string без параметра signature
		rawQuery := r.URL.RawQuery
		idx := strings.LastIndex(rawQuery, "&signature=")
		if idx < 0 {
			t.Fatal("запрос без подписи")
		}
		payload := rawQuery[:idx]
		signature := rawQuery[idx+len("&signature="):]
		if !crypto.VerifyHMAC256(payload, "test-secret", signature) {
			t.Error("подпись не проходит проверку")
		}

		query, _ := url.ParseQuery(payload)
		if query.Get("timestamp") != "1700000000000" {
			t.Errorf("timestamp = %s", query.Get("timestamp"))
		}
		if query.Get("recvWindow") != "5000" {
			t.Errorf("recvWindow = %s", query.Get("recvWindow"))
		}
		if query.Get("type") != "MARKET" || query.Get("side") != "BUY" {
			t.Errorf("type=%s side=%s", query.Get("type"), query.Get("side"))
		}

		w.Write([]byte(`{
			"orderId": 98765, "symbol": "BTCUSDT", "side": "BUY", "type": "MARKET",
			"status": "FILLED", "origQty": "0.5", "executedQty": "0.5",
			"cummulativeQuoteQty": "25000.00", "transactTime": 1700000000123,
			"fills": [{"price": "50000.00", "qty": "0.5", "commission": "0.0005"}]
		}`))
	})

	order, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, 0.5)
	if err != nil {
		t.Fatalf("PlaceMarketOrder: %v", err)
	}

	if order.OrderID != 98765 || order.Status != "FILLED" {
		t.Errorf("order = %+v", order)
	}
	if order.ExecutedPrice != 50000.00 {
		t.Errorf("ExecutedPrice = %v, ожидалось 50000", order.ExecutedPrice)
	}
	if order.Commission != 0.0005 {
		t.Errorf("Commission = %v", order.Commission)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code": -1013, "msg": "Filter failure: LOT_SIZE"}`))
	})

	_, err := client.PlaceMarketOrder(context.Background(), "BTCUSDT", SideBuy, 0.000001)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}

	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("тип ошибки = %T", err)
	}
	if exchangeErr.Code != "-1013" {
		t.Errorf("code = %s", exchangeErr.Code)
	}
	if !strings.Contains(exchangeErr.Message, "LOT_SIZE") {
		t.Errorf("message = %s", exchangeErr.Message)
	}
}

func TestGetExchangeInfoFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"symbols": [{
				"symbol": "BTCUSDT",
				"filters": [
					{"filterType": "LOT_SIZE", "minQty": "0.0001", "maxQty": "100", "stepSize": "0.0001"},
					{"filterType": "PRICE_FILTER", "tickSize": "0.01"},
					{"filterType": "NOTIONAL", "minNotional": "10.0"}
				]
			}]
		}`))
	})

	limits, err := client.GetExchangeInfo(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("GetExchangeInfo: %v", err)
	}

	l, ok := limits["BTCUSDT"]
	if !ok {
		t.Fatal("нет лимитов для BTCUSDT")
	}
	if l.MinOrderQty != 0.0001 || l.MaxOrderQty != 100 || l.QtyStep != 0.0001 {
		t.Errorf("LOT_SIZE: %+v", l)
	}
	if l.PriceStep != 0.01 || l.MinNotional != 10.0 {
		t.Errorf("фильтры: %+v", l)
	}
}

func TestGetAccountBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("signature") == "" {
			t.Error("запрос баланса должен быть подписан")
		}
		w.Write([]byte(`{
			"balances": [
				{"asset": "BTC", "free": "0.5", "locked": "0.1"},
				{"asset": "USDT", "free": "10000.00", "locked": "2500.00"}
			]
		}`))
	})

	balance, err := client.GetAccountBalance(context.Background(), "USDT")
	if err != nil {
		t.Fatalf("GetAccountBalance: %v", err)
	}
	if balance.Free != 10000.00 || balance.Locked != 2500.00 {
		t.Errorf("balance = %+v", balance)
	}

	// Отсутствующий актив: нулевой баланс без ошибки
	missing, err := client.GetAccountBalance(context.Background(), "DOGE")
	if err != nil {
		t.Fatalf("GetAccountBalance(DOGE): %v", err)
	}
	if missing.Free != 0 || missing.Locked != 0 {
		t.Errorf("missing balance = %+v", missing)
	}
}

func TestCancelOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Query().Get("orderId") != "555" {
			t.Errorf("orderId = %s", r.URL.Query().Get("orderId"))
		}
		w.Write([]byte(`{"orderId": 555, "status": "CANCELED", "origQty": "1"}`))
	})

	if err := client.CancelOrder(context.Background(), "BTCUSDT", 555); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
}
