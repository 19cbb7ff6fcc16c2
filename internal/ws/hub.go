package ws

import (
	"encoding/json"
	"sync"
)

// outboxSize bounds how many payloads may wait for one slow subscriber.
const outboxSize = 64

// Subscriber abstracts a streaming client. Close must unblock a pending Send.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans admin feed events out to subscribers by topic. Each subscriber
// gets its own bounded queue and writer goroutine, so publishing never waits
// on a connection. A subscriber whose queue fills up is closed and dropped.
type Hub struct {
	clients   map[string]map[Subscriber]*outbox
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	writers   sync.WaitGroup
}

type outbox struct {
	sub   Subscriber
	queue chan []byte
	stop  chan struct{}
	once  sync.Once
}

func (o *outbox) shutdown() {
	o.once.Do(func() { close(o.stop) })
}

type message struct {
	topic   string
	payload []byte
}

type subscription struct {
	topic  string
	client Subscriber
}

type countRequest struct {
	topic string
	reply chan int
}

// NewHub creates a Hub and starts its loop. Call Close to stop it.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*outbox),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, outboxSize),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.stopped)
	for {
		select {
		case sub := <-h.register:
			clients, ok := h.clients[sub.topic]
			if !ok {
				clients = make(map[Subscriber]*outbox)
				h.clients[sub.topic] = clients
			}
			if _, dup := clients[sub.client]; dup {
				continue
			}
			o := &outbox{sub: sub.client, queue: make(chan []byte, outboxSize), stop: make(chan struct{})}
			clients[sub.client] = o
			h.writers.Add(1)
			go h.write(sub.topic, o)
		case sub := <-h.unreg:
			if o, ok := h.clients[sub.topic][sub.client]; ok {
				o.shutdown()
				h.remove(sub.topic, sub.client)
			}
		case msg := <-h.broadcast:
			for c, o := range h.clients[msg.topic] {
				select {
				case o.queue <- msg.payload:
				default:
					o.shutdown()
					c.Close()
					h.remove(msg.topic, c)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.topic])
		case <-h.done:
			for _, clients := range h.clients {
				for c, o := range clients {
					o.shutdown()
					c.Close()
				}
			}
			h.clients = nil
			h.writers.Wait()
			return
		}
	}
}

func (h *Hub) remove(topic string, c Subscriber) {
	clients := h.clients[topic]
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, topic)
	}
}

// write drains one subscriber's queue until it is stopped or a send fails.
func (h *Hub) write(topic string, o *outbox) {
	defer h.writers.Done()
	for {
		select {
		case <-o.stop:
			return
		case payload := <-o.queue:
			select {
			case <-o.stop:
				return
			default:
			}
			if err := o.sub.Send(payload); err != nil {
				o.sub.Close()
				h.Unregister(topic, o.sub)
				return
			}
		}
	}
}

// Register adds a client to a topic. After Close the client is closed instead.
func (h *Hub) Register(topic string, client Subscriber) {
	select {
	case h.register <- subscription{topic: topic, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client without closing it.
func (h *Hub) Unregister(topic string, client Subscriber) {
	select {
	case h.unreg <- subscription{topic: topic, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for all topic clients.
func (h *Hub) Broadcast(topic string, payload []byte) {
	select {
	case h.broadcast <- message{topic: topic, payload: payload}:
	case <-h.done:
	}
}

// Publish encodes v as JSON and broadcasts it on topic.
func (h *Hub) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(topic, payload)
	return nil
}

// Subscribers reports how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{topic: topic, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close stops the loop, closes every subscriber and waits for the writers.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	<-h.stopped
}
