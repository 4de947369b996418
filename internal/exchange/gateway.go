package exchange

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradingbot/internal/config"
	"tradingbot/pkg/utils"
)

// gateway.go - шлюз рыночных данных
//
// Назначение:
// Держит WebSocket соединение с потоком рыночных данных биржи,
// автоматически переподключаясь при разрывах с exponential backoff.
//
// Функции:
// - Подписка на kline/trade/ticker потоки набора символов
// - Переподключение: delay = min(base * 2^attempt, cap)
// - Сброс счётчика попыток после успешного подключения
// - Повторная подписка на каналы после переподключения
// - Ping/Pong для поддержания соединения
// - Атомарная метка последнего сообщения для watchdog'а
//
// Использование:
// 1. Создать: NewGateway(cfg, wsURL)
// 2. Подписаться: SubscribeKlines / SubscribeTrades / SubscribeTickers
// 3. Установить обработчик: SetOnEvent
// 4. Подключиться: Connect()
// 5. Закрыть: Close()

// GatewayState состояние соединения шлюза
type GatewayState int32

const (
	GatewayDisconnected GatewayState = iota
	GatewayConnecting
	GatewayConnected
	GatewayReconnecting
	GatewayClosed
)

func (s GatewayState) String() string {
	switch s {
	case GatewayDisconnected:
		return "disconnected"
	case GatewayConnecting:
		return "connecting"
	case GatewayConnected:
		return "connected"
	case GatewayReconnecting:
		return "reconnecting"
	case GatewayClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// subscribeFrame - управляющий кадр подписки на потоки
type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// Gateway управляет WebSocket соединением с потоком рыночных данных
type Gateway struct {
	wsURL  string
	config config.GatewayConfig
	log    *utils.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	// Состояние (atomic GatewayState)
	state int32

	// Счётчик попыток переподключения; сбрасывается после успеха
	attempt int32

	// Unix-наносекунды последнего принятого сообщения (atomic)
	lastMessageAt int64

	// ID управляющих кадров
	frameID int64

	closeChan chan struct{}
	closeOnce sync.Once

	// Потоки для восстановления после переподключения
	streams   []string
	streamsMu sync.RWMutex

	// Callbacks
	onEvent      func(StreamEvent)
	onParseError func([]byte, error)
	onConnect    func()
	onDisconnect func(error)
	onExhausted  func()
	callbackMu   sync.RWMutex
}

// NewGateway создаёт шлюз рыночных данных
func NewGateway(cfg config.GatewayConfig, wsURL string, logger *utils.Logger) *Gateway {
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}
	return &Gateway{
		wsURL:     wsURL,
		config:    cfg,
		log:       logger.WithComponent("gateway"),
		closeChan: make(chan struct{}),
	}
}

// SetOnEvent устанавливает обработчик типизированных событий
func (g *Gateway) SetOnEvent(handler func(StreamEvent)) {
	g.callbackMu.Lock()
	g.onEvent = handler
	g.callbackMu.Unlock()
}

// SetOnParseError устанавливает обработчик битых payload'ов
func (g *Gateway) SetOnParseError(handler func([]byte, error)) {
	g.callbackMu.Lock()
	g.onParseError = handler
	g.callbackMu.Unlock()
}

// SetOnConnect устанавливает callback успешного подключения
func (g *Gateway) SetOnConnect(handler func()) {
	g.callbackMu.Lock()
	g.onConnect = handler
	g.callbackMu.Unlock()
}

// SetOnDisconnect устанавливает callback разрыва соединения
func (g *Gateway) SetOnDisconnect(handler func(error)) {
	g.callbackMu.Lock()
	g.onDisconnect = handler
	g.callbackMu.Unlock()
}

// SetOnExhausted устанавливает callback исчерпания попыток переподключения
func (g *Gateway) SetOnExhausted(handler func()) {
	g.callbackMu.Lock()
	g.onExhausted = handler
	g.callbackMu.Unlock()
}

// SubscribeKlines добавляет kline-потоки символов в подписку
// Символы в нижнем регистре без разделителя: btcusdt@kline_5m
func (g *Gateway) SubscribeKlines(symbols []string, interval string) {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(s), interval))
	}
	g.addStreams(streams)
}

// SubscribeTrades добавляет trade-потоки символов в подписку
func (g *Gateway) SubscribeTrades(symbols []string) {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	g.addStreams(streams)
}

// SubscribeTickers добавляет ticker-потоки символов в подписку
func (g *Gateway) SubscribeTickers(symbols []string) {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@ticker")
	}
	g.addStreams(streams)
}

func (g *Gateway) addStreams(streams []string) {
	g.streamsMu.Lock()
	g.streams = append(g.streams, streams...)
	g.streamsMu.Unlock()
}

// Streams возвращает копию списка подписанных потоков
func (g *Gateway) Streams() []string {
	g.streamsMu.RLock()
	defer g.streamsMu.RUnlock()
	out := make([]string, len(g.streams))
	copy(out, g.streams)
	return out
}

// State возвращает текущее состояние соединения
func (g *Gateway) State() GatewayState {
	return GatewayState(atomic.LoadInt32(&g.state))
}

// IsConnected проверяет, установлено ли соединение
func (g *Gateway) IsConnected() bool {
	return g.State() == GatewayConnected
}

// Attempt возвращает текущий номер попытки переподключения
func (g *Gateway) Attempt() int {
	return int(atomic.LoadInt32(&g.attempt))
}

// LastMessageAt возвращает время последнего принятого сообщения
// Нулевое время означает что сообщений ещё не было
func (g *Gateway) LastMessageAt() time.Time {
	ns := atomic.LoadInt64(&g.lastMessageAt)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// IsStale проверяет что данные не поступали дольше порога
// Используется watchdog'ом для принудительного переподключения
func (g *Gateway) IsStale() bool {
	last := g.LastMessageAt()
	if last.IsZero() {
		return false
	}
	return time.Since(last) > g.config.StaleThreshold
}

// Connect устанавливает WebSocket соединение
func (g *Gateway) Connect() error {
	select {
	case <-g.closeChan:
		return fmt.Errorf("gateway is closed")
	default:
	}

	atomic.StoreInt32(&g.state, int32(GatewayConnecting))

	if err := g.dial(); err != nil {
		atomic.StoreInt32(&g.state, int32(GatewayDisconnected))
		return err
	}

	g.afterConnect()
	g.log.Info("соединение установлено", utils.String("url", g.wsURL))
	return nil
}

// afterConnect фиксирует успешное подключение и запускает горутины
func (g *Gateway) afterConnect() {
	atomic.StoreInt32(&g.state, int32(GatewayConnected))
	// Удачное подключение сбрасывает счётчик попыток
	atomic.StoreInt32(&g.attempt, 0)

	g.callbackMu.RLock()
	onConnect := g.onConnect
	g.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}

	go g.readPump()
	go g.pingPump()
}

// dial выполняет подключение и подписку на потоки
func (g *Gateway) dial() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: g.config.ReadTimeout,
	}

	conn, _, err := dialer.Dial(g.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial error: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(g.config.ReadTimeout))
		return nil
	})

	g.connMu.Lock()
	g.conn = conn
	g.connMu.Unlock()

	if err := g.resubscribe(); err != nil {
		g.log.Warn("ошибка подписки на потоки", utils.Err(err))
		// Подписка будет повторена при следующем переподключении
	}

	return nil
}

// resubscribe отправляет SUBSCRIBE на все зарегистрированные потоки
func (g *Gateway) resubscribe() error {
	streams := g.Streams()
	if len(streams) == 0 {
		return nil
	}

	g.connMu.RLock()
	conn := g.conn
	g.connMu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	frame := subscribeFrame{
		Method: "SUBSCRIBE",
		Params: streams,
		ID:     atomic.AddInt64(&g.frameID, 1),
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("subscribe error: %w", err)
	}

	g.log.Info("подписка восстановлена", utils.Int("streams", len(streams)))
	return nil
}

// readPump читает сообщения из WebSocket
func (g *Gateway) readPump() {
	for {
		select {
		case <-g.closeChan:
			return
		default:
		}

		g.connMu.RLock()
		conn := g.conn
		g.connMu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(g.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			g.handleDisconnect(err)
			return
		}

		atomic.StoreInt64(&g.lastMessageAt, time.Now().UnixNano())
		g.dispatch(message)
	}
}

// dispatch разбирает сообщение и передаёт событие обработчику
func (g *Gateway) dispatch(message []byte) {
	event, err := ParseStreamEvent(message)
	if err != nil {
		// Битый payload отбрасывается без retry
		g.log.Warn("событие отброшено", utils.Err(err))

		g.callbackMu.RLock()
		onParseError := g.onParseError
		g.callbackMu.RUnlock()
		if onParseError != nil {
			onParseError(message, err)
		}
		return
	}

	g.callbackMu.RLock()
	onEvent := g.onEvent
	g.callbackMu.RUnlock()
	if onEvent != nil {
		onEvent(event)
	}
}

// pingPump отправляет ping для поддержания соединения
func (g *Gateway) pingPump() {
	ticker := time.NewTicker(g.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.closeChan:
			return
		case <-ticker.C:
			g.connMu.RLock()
			conn := g.conn
			g.connMu.RUnlock()

			if conn == nil || g.State() != GatewayConnected {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(g.config.ReadTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				g.log.Warn("ошибка ping", utils.Err(err))
				g.handleDisconnect(err)
				return
			}
		}
	}
}

// handleDisconnect обрабатывает разрыв соединения
func (g *Gateway) handleDisconnect(err error) {
	select {
	case <-g.closeChan:
		return
	default:
	}

	// Избегаем повторной обработки
	state := g.State()
	if state == GatewayReconnecting || state == GatewayClosed {
		return
	}

	atomic.StoreInt32(&g.state, int32(GatewayReconnecting))

	g.connMu.Lock()
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
	}
	g.connMu.Unlock()

	g.callbackMu.RLock()
	onDisconnect := g.onDisconnect
	g.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}

	if err != nil {
		g.log.Warn("соединение разорвано", utils.Err(err))
	}

	go g.reconnectLoop()
}

// ReconnectDelay вычисляет задержку для попытки переподключения
//
//	delay = min(base * 2^attempt, cap)
//
// Первая попытка (attempt=0) получает базовую задержку.
func ReconnectDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// reconnectLoop выполняет переподключение с exponential backoff
func (g *Gateway) reconnectLoop() {
	for {
		select {
		case <-g.closeChan:
			return
		default:
		}

		attempt := int(atomic.LoadInt32(&g.attempt))

		// Проверяем лимит попыток
		if g.config.MaxReconnectAttempts > 0 && attempt >= g.config.MaxReconnectAttempts {
			// Исчерпание попыток - фатально для шлюза; процесс
			// продолжает работать на незатронутых подсистемах
			g.log.Error("попытки переподключения исчерпаны",
				utils.Int("attempts", attempt),
				utils.Err(ErrReconnectExhausted))
			atomic.StoreInt32(&g.state, int32(GatewayDisconnected))

			g.callbackMu.RLock()
			onExhausted := g.onExhausted
			g.callbackMu.RUnlock()
			if onExhausted != nil {
				onExhausted()
			}
			return
		}

		delay := ReconnectDelay(attempt, g.config.ReconnectBaseDelay, g.config.ReconnectMaxDelay)
		atomic.AddInt32(&g.attempt, 1)

		g.log.Info("переподключение",
			utils.Dur("delay", delay),
			utils.Attempt(attempt+1))

		select {
		case <-g.closeChan:
			return
		case <-time.After(delay):
		}

		if err := g.dial(); err != nil {
			g.log.Warn("переподключение не удалось", utils.Err(err))
			continue
		}

		g.afterConnect()
		g.log.Info("соединение восстановлено")
		return
	}
}

// ForceReconnect принудительно разрывает соединение
// Вызывается watchdog'ом при застое данных
func (g *Gateway) ForceReconnect() {
	g.log.Error("принудительное переподключение: поток данных застыл",
		utils.Dur("stale_threshold", g.config.StaleThreshold))
	g.handleDisconnect(fmt.Errorf("stale data stream"))
}

// Close закрывает соединение и останавливает переподключение
// Повторные вызовы безопасны
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.closeChan)
		atomic.StoreInt32(&g.state, int32(GatewayClosed))

		g.connMu.Lock()
		defer g.connMu.Unlock()
		if g.conn != nil {
			err = g.conn.Close()
			g.conn = nil
		}
	})
	return err
}
