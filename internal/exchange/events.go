package exchange

import (
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// events.go - разбор событий потока рыночных данных
//
// Биржа шлёт три типа событий: kline (свеча), trade (сделка),
// 24hrTicker (статистика). Числовые поля приходят строками и
// парсятся в float64. Непарсируемое событие - ошибка без retry:
// повтор не починит битый payload.

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Типы событий потока
const (
	EventTypeKline  = "kline"
	EventTypeTrade  = "trade"
	EventTypeTicker = "24hrTicker"
)

// StreamEvent - общий интерфейс событий рыночных данных
type StreamEvent interface {
	// Type возвращает тип события
	Type() string
	// Symbol возвращает символ инструмента (BTCUSDT)
	Symbol() string
}

// KlineEvent - обновление свечи
//
// Closed=false означает незакрытую свечу текущего интервала;
// такие события обновляют кэш, но не пишутся в БД.
type KlineEvent struct {
	EventSymbol string
	EventTime   time.Time

	OpenTime            time.Time
	CloseTime           time.Time
	Interval            string
	Open                float64
	High                float64
	Low                 float64
	Close               float64
	Volume              float64
	QuoteVolume         float64
	Trades              int
	TakerBuyVolume      float64
	TakerBuyQuoteVolume float64
	Closed              bool
}

func (e *KlineEvent) Type() string   { return EventTypeKline }
func (e *KlineEvent) Symbol() string { return e.EventSymbol }

// TradeEvent - одна рыночная сделка
type TradeEvent struct {
	EventSymbol string
	EventTime   time.Time

	TradeID      int64
	Price        float64
	Quantity     float64
	TradeTime    time.Time
	IsBuyerMaker bool
}

func (e *TradeEvent) Type() string   { return EventTypeTrade }
func (e *TradeEvent) Symbol() string { return e.EventSymbol }

// QuoteValue возвращает объём сделки в валюте котировки
func (e *TradeEvent) QuoteValue() float64 {
	return e.Price * e.Quantity
}

// TickerEvent - 24-часовая статистика символа
type TickerEvent struct {
	EventSymbol string
	EventTime   time.Time

	LastPrice          float64
	PriceChange        float64
	PriceChangePercent float64
	HighPrice          float64
	LowPrice           float64
	Volume             float64
	QuoteVolume        float64
}

func (e *TickerEvent) Type() string   { return EventTypeTicker }
func (e *TickerEvent) Symbol() string { return e.EventSymbol }

// rawEvent - обёртка для определения типа события
type rawEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
}

// rawKline - сырое kline событие
type rawKline struct {
	rawEvent
	Kline struct {
		OpenTime            int64  `json:"t"`
		CloseTime           int64  `json:"T"`
		Interval            string `json:"i"`
		Open                string `json:"o"`
		Close               string `json:"c"`
		High                string `json:"h"`
		Low                 string `json:"l"`
		Volume              string `json:"v"`
		Trades              int    `json:"n"`
		Closed              bool   `json:"x"`
		QuoteVolume         string `json:"q"`
		TakerBuyVolume      string `json:"V"`
		TakerBuyQuoteVolume string `json:"Q"`
	} `json:"k"`
}

// rawTrade - сырое trade событие
type rawTrade struct {
	rawEvent
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// rawTicker - сырое 24hrTicker событие
type rawTicker struct {
	rawEvent
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	LastPrice          string `json:"c"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
}

// ParseStreamEvent разбирает сырое сообщение потока в типизированное событие
//
// Возвращает ошибку для неизвестных типов и битых payload'ов -
// вызывающий логирует WARNING и отбрасывает сообщение.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	var head rawEvent
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("malformed stream payload: %w", err)
	}

	switch head.EventType {
	case EventTypeKline:
		return parseKline(data)
	case EventTypeTrade:
		return parseTrade(data)
	case EventTypeTicker:
		return parseTicker(data)
	case "":
		return nil, fmt.Errorf("stream payload without event type")
	default:
		return nil, fmt.Errorf("unknown stream event type %q", head.EventType)
	}
}

func parseKline(data []byte) (*KlineEvent, error) {
	var raw rawKline
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed kline payload: %w", err)
	}

	fields, err := parseFloats(map[string]string{
		"o": raw.Kline.Open,
		"h": raw.Kline.High,
		"l": raw.Kline.Low,
		"c": raw.Kline.Close,
		"v": raw.Kline.Volume,
		"q": raw.Kline.QuoteVolume,
		"V": raw.Kline.TakerBuyVolume,
		"Q": raw.Kline.TakerBuyQuoteVolume,
	})
	if err != nil {
		return nil, fmt.Errorf("malformed kline payload: %w", err)
	}

	return &KlineEvent{
		EventSymbol:         raw.Symbol,
		EventTime:           time.UnixMilli(raw.EventTime).UTC(),
		OpenTime:            time.UnixMilli(raw.Kline.OpenTime).UTC(),
		CloseTime:           time.UnixMilli(raw.Kline.CloseTime).UTC(),
		Interval:            raw.Kline.Interval,
		Open:                fields["o"],
		High:                fields["h"],
		Low:                 fields["l"],
		Close:               fields["c"],
		Volume:              fields["v"],
		QuoteVolume:         fields["q"],
		Trades:              raw.Kline.Trades,
		TakerBuyVolume:      fields["V"],
		TakerBuyQuoteVolume: fields["Q"],
		Closed:              raw.Kline.Closed,
	}, nil
}

func parseTrade(data []byte) (*TradeEvent, error) {
	var raw rawTrade
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed trade payload: %w", err)
	}

	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed trade price %q: %w", raw.Price, err)
	}
	qty, err := strconv.ParseFloat(raw.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed trade quantity %q: %w", raw.Quantity, err)
	}

	return &TradeEvent{
		EventSymbol:  raw.Symbol,
		EventTime:    time.UnixMilli(raw.EventTime).UTC(),
		TradeID:      raw.TradeID,
		Price:        price,
		Quantity:     qty,
		TradeTime:    time.UnixMilli(raw.TradeTime).UTC(),
		IsBuyerMaker: raw.IsBuyerMaker,
	}, nil
}

func parseTicker(data []byte) (*TickerEvent, error) {
	var raw rawTicker
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed ticker payload: %w", err)
	}

	fields, err := parseFloats(map[string]string{
		"p": raw.PriceChange,
		"P": raw.PriceChangePercent,
		"c": raw.LastPrice,
		"h": raw.HighPrice,
		"l": raw.LowPrice,
		"v": raw.Volume,
		"q": raw.QuoteVolume,
	})
	if err != nil {
		return nil, fmt.Errorf("malformed ticker payload: %w", err)
	}

	return &TickerEvent{
		EventSymbol:        raw.Symbol,
		EventTime:          time.UnixMilli(raw.EventTime).UTC(),
		LastPrice:          fields["c"],
		PriceChange:        fields["p"],
		PriceChangePercent: fields["P"],
		HighPrice:          fields["h"],
		LowPrice:           fields["l"],
		Volume:             fields["v"],
		QuoteVolume:        fields["q"],
	}, nil
}

// parseFloats парсит набор строковых чисел, пустая строка = 0
func parseFloats(raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for key, s := range raw {
		if s == "" {
			out[key] = 0
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s=%q: %w", key, s, err)
		}
		out[key] = v
	}
	return out, nil
}
