package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client поддерживает дуплексное соединение с сервером телеметрии.
// Машина состояний: Disconnected -> Connecting -> Connected -> Subscribed.
// При обрыве по инициативе сервера переподключается сам (с паузой)
// и заново выставляет активную подписку — сервер не хранит членство
// в комнатах между реконнектами.
type Client struct {
	url            string
	clientID       string
	reconnectDelay time.Duration

	mu        sync.RWMutex
	state     State
	patientID string // активная подписка ("" — нет)
	conn      *websocket.Conn
	writeMu   sync.Mutex

	updates  chan Update
	done     chan struct{}
	closedMu sync.Mutex
	closed   bool
}

// NewClient создает клиента канала реального времени
func NewClient(url string, reconnectDelay time.Duration) *Client {
	return &Client{
		url:            url,
		clientID:       uuid.New().String(),
		reconnectDelay: reconnectDelay,
		state:          StateDisconnected,
		updates:        make(chan Update, 256),
		done:           make(chan struct{}),
	}
}

// Updates — канал входящих обновлений (закрывается при Close)
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// State возвращает текущее состояние машины
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connect устанавливает первое соединение и запускает цикл поддержания.
// Ошибка первого хендшейка возвращается вызывающему, но цикл
// поддержания стартует в любом случае и продолжит попытки.
func (c *Client) Connect(ctx context.Context) error {
	err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
	}

	go c.maintainLoop()
	return err
}

// Subscribe подписывает клиента на обновления одного пациента.
// Предыдущая подписка снимается до установки новой — устаревшие
// обновления не должны попадать в новый контекст.
func (c *Client) Subscribe(patientID string) error {
	c.mu.Lock()
	previous := c.patientID
	c.patientID = patientID
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		// Подписка выставится после реконнекта
		return nil
	}

	if previous != "" && previous != patientID {
		if err := c.send(ClientMessage{Type: MessageTypeUnsubscribe, PatientID: previous}); err != nil {
			log.Printf("[REALTIME] Failed to unsubscribe from %s: %v", previous, err)
		}
	}

	return c.send(ClientMessage{Type: MessageTypeSubscribe, PatientID: patientID, ClientID: c.clientID})
}

// Unsubscribe снимает подписку и освобождает серверные ресурсы
func (c *Client) Unsubscribe(patientID string) error {
	c.mu.Lock()
	if c.patientID == patientID {
		c.patientID = ""
		if c.state == StateSubscribed {
			c.state = StateConnected
		}
	}
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return nil
	}
	return c.send(ClientMessage{Type: MessageTypeUnsubscribe, PatientID: patientID})
}

// Close снимает подписку, рвет соединение и останавливает реконнекты
func (c *Client) Close() error {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.closedMu.Unlock()

	c.mu.Lock()
	patientID := c.patientID
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		if patientID != "" {
			// Детерминированно освобождаем комнату на сервере
			c.writeMu.Lock()
			data, _ := json.Marshal(ClientMessage{Type: MessageTypeUnsubscribe, PatientID: patientID})
			_ = conn.WriteMessage(websocket.TextMessage, data)
			c.writeMu.Unlock()
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

// dial выполняет хендшейк и заново выставляет активную подписку
func (c *Client) dial(ctx context.Context) error {
	c.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to realtime server: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	patientID := c.patientID
	c.mu.Unlock()

	log.Printf("[REALTIME] Connected to %s", c.url)

	if patientID != "" {
		if err := c.send(ClientMessage{Type: MessageTypeSubscribe, PatientID: patientID, ClientID: c.clientID}); err != nil {
			log.Printf("[REALTIME] Failed to re-subscribe to %s: %v", patientID, err)
		}
	}

	return nil
}

// maintainLoop читает сообщения и переподключается после обрывов
func (c *Client) maintainLoop() {
	for {
		c.readPump()

		select {
		case <-c.done:
			close(c.updates)
			return
		default:
		}

		c.setState(StateDisconnected)
		log.Printf("[REALTIME] Disconnected, reconnecting in %v", c.reconnectDelay)

		select {
		case <-c.done:
			close(c.updates)
			return
		case <-time.After(c.reconnectDelay):
		}

		if err := c.dial(context.Background()); err != nil {
			log.Printf("[REALTIME] Reconnect failed: %v", err)
		}
	}
}

// readPump обрабатывает входящие сообщения до обрыва соединения
func (c *Client) readPump() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[REALTIME] Read error: %v", err)
			}
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[WARN] Malformed realtime message: %v", err)
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ServerMessage) {
	switch msg.Type {
	case MessageTypeSubscribed:
		c.mu.Lock()
		// Подтверждение чужой подписки игнорируем
		if c.patientID == msg.PatientID && c.state == StateConnected {
			c.state = StateSubscribed
		}
		c.mu.Unlock()
		log.Printf("[REALTIME] Subscription confirmed for patient %s", msg.PatientID)

	case MessageTypeUpdate:
		if msg.Data == nil {
			return
		}

		c.mu.RLock()
		active := c.patientID
		c.mu.RUnlock()

		// Защита от устаревших обновлений предыдущего пациента
		if msg.PatientID != active {
			log.Printf("[WARN] Dropping update for inactive patient %s", msg.PatientID)
			return
		}

		update := Update{
			PatientID:  msg.PatientID,
			Data:       *msg.Data,
			ReceivedAt: time.Now(),
		}

		select {
		case c.updates <- update:
		default:
			log.Printf("[WARN] Updates channel full, dropping message")
		}

	case MessageTypeError:
		log.Printf("[REALTIME] Server error: %s", msg.Reason)
	}
}

func (c *Client) send(msg ClientMessage) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
