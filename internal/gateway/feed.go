package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/hman38705/SwiftRemit/pkg/messaging"
)

// writeWait bounds each websocket write so a dead client cannot stall the
// send loop indefinitely.
const writeWait = 10 * time.Second

// Feed fans escrow notifications out to websocket subscribers.
type Feed struct {
	client      *messaging.Client
	subscribers map[uuid.UUID]*subscriber
	mu          sync.RWMutex
	upgrader    websocket.Upgrader
}

type subscriber struct {
	id   uuid.UUID
	send chan []byte
	done chan struct{}
}

// NewFeed subscribes to all escrow event subjects and returns a feed ready
// to accept websocket clients.
func NewFeed(client *messaging.Client) (*Feed, error) {
	f := &Feed{
		client:      client,
		subscribers: make(map[uuid.UUID]*subscriber),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	for _, subject := range []string{"remittance.>", "agent.>", "fees.>"} {
		if err := client.Subscribe(subject, f.broadcast); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Feed) broadcast(msg *nats.Msg) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		select {
		case sub.send <- msg.Data:
		default:
			// Slow subscriber; drop rather than block the NATS callback.
		}
	}
}

// Handle upgrades the connection and streams events until the client goes
// away.
func (f *Feed) Handle(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	sub := &subscriber{
		id:   uuid.New(),
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	f.subscribers[sub.id] = sub
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.subscribers, sub.id)
		f.mu.Unlock()
		conn.Close()
	}()

	// Reader goroutine only watches for close.
	go func() {
		defer close(sub.done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case data := <-sub.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}
