package exchange

import (
	"testing"
	"time"
)

func TestParseKlineEvent(t *testing.T) {
	payload := []byte(`{
		"e": "kline", "E": 1672515782136, "s": "BTCUSDT",
		"k": {
			"t": 1672515780000, "T": 1672515839999, "s": "BTCUSDT", "i": "1m",
			"o": "16500.10", "c": "16510.50", "h": "16512.00", "l": "16499.90",
			"v": "120.5", "n": 250, "x": true,
			"q": "1989500.25", "V": "70.2", "Q": "1159000.00"
		}
	}`)

	event, err := ParseStreamEvent(payload)
	if err != nil {
		t.Fatalf("ParseStreamEvent: %v", err)
	}

	kline, ok := event.(*KlineEvent)
	if !ok {
		t.Fatalf("тип события = %T, ожидался *KlineEvent", event)
	}

	if kline.Symbol() != "BTCUSDT" || kline.Type() != EventTypeKline {
		t.Errorf("symbol=%s type=%s", kline.Symbol(), kline.Type())
	}
	if kline.Open != 16500.10 || kline.Close != 16510.50 {
		t.Errorf("open=%v close=%v", kline.Open, kline.Close)
	}
	if kline.High != 16512.00 || kline.Low != 16499.90 {
		t.Errorf("high=%v low=%v", kline.High, kline.Low)
	}
	if !kline.Closed {
		t.Error("свеча должна быть закрыта (x=true)")
	}
	if kline.Trades != 250 {
		t.Errorf("trades = %d", kline.Trades)
	}
	if kline.Interval != "1m" {
		t.Errorf("interval = %s", kline.Interval)
	}
	wantOpen := time.UnixMilli(1672515780000).UTC()
	if !kline.OpenTime.Equal(wantOpen) {
		t.Errorf("openTime = %v, ожидалось %v", kline.OpenTime, wantOpen)
	}
}

func TestParseTradeEvent(t *testing.T) {
	payload := []byte(`{
		"e": "trade", "E": 1672515782136, "s": "ETHUSDT",
		"t": 12345, "p": "1200.50", "q": "2.5", "T": 1672515782134, "m": true
	}`)

	event, err := ParseStreamEvent(payload)
	if err != nil {
		t.Fatalf("ParseStreamEvent: %v", err)
	}

	trade, ok := event.(*TradeEvent)
	if !ok {
		t.Fatalf("тип события = %T, ожидался *TradeEvent", event)
	}

	if trade.TradeID != 12345 || trade.Price != 1200.50 || trade.Quantity != 2.5 {
		t.Errorf("trade = %+v", trade)
	}
	if !trade.IsBuyerMaker {
		t.Error("IsBuyerMaker должен быть true")
	}
	if got := trade.QuoteValue(); got != 1200.50*2.5 {
		t.Errorf("QuoteValue = %v", got)
	}
}

func TestParseTickerEvent(t *testing.T) {
	payload := []byte(`{
		"e": "24hrTicker", "E": 1672515782136, "s": "BTCUSDT",
		"p": "150.00", "P": "0.92", "c": "16510.50",
		"h": "16600.00", "l": "16300.00", "v": "50000", "q": "820000000"
	}`)

	event, err := ParseStreamEvent(payload)
	if err != nil {
		t.Fatalf("ParseStreamEvent: %v", err)
	}

	ticker, ok := event.(*TickerEvent)
	if !ok {
		t.Fatalf("тип события = %T, ожидался *TickerEvent", event)
	}

	if ticker.LastPrice != 16510.50 || ticker.PriceChangePercent != 0.92 {
		t.Errorf("ticker = %+v", ticker)
	}
}

func TestParseMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"не JSON", `{{{broken`},
		{"без типа события", `{"s": "BTCUSDT"}`},
		{"неизвестный тип", `{"e": "depthUpdate", "s": "BTCUSDT"}`},
		{"битая цена в trade", `{"e": "trade", "s": "BTCUSDT", "p": "abc", "q": "1"}`},
		{"битый объём в kline", `{"e": "kline", "s": "BTCUSDT", "k": {"o": "1", "c": "2", "h": "3", "l": "0.5", "v": "xyz"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStreamEvent([]byte(tt.payload)); err == nil {
				t.Error("ожидалась ошибка разбора")
			}
		})
	}
}
