// Package gateway exposes a broker over HTTP and WebSocket: publish by
// POST, subscribe by WebSocket upgrade, and request/reply by proxying an
// HTTP call onto the bus and waiting for the matching response envelope.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/messagetrigger/runtime/broker"
	"github.com/messagetrigger/runtime/config"
	"github.com/messagetrigger/runtime/correlator"
	"github.com/messagetrigger/runtime/message"
)

const defaultTimeoutMs = 2000

// Gateway holds the shared dependencies every route handler needs, threaded
// through the route closures as one small state value instead of a global.
type Gateway struct {
	broker          broker.Broker
	websockets      *config.WebsocketFraming
	requestResponse *config.RequestResponseCodec
	timeoutMs       uint64
}

// New builds a Gateway for one broker per cfg.
func New(b broker.Broker, cfg config.GatewayConfig) *Gateway {
	timeout := uint64(defaultTimeoutMs)
	if cfg.TimeoutMs != nil {
		timeout = *cfg.TimeoutMs
	}
	return &Gateway{
		broker:          b,
		websockets:      cfg.Websockets,
		requestResponse: cfg.RequestResponse,
		timeoutMs:       timeout,
	}
}

// Router builds the chi router serving publish/subscribe/request/ws.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Post("/publish/*", g.handlePublish)
	r.Get("/subscribe/*", g.handleSubscribe)
	r.HandleFunc("/request/*", g.handleRequest)
	r.Get("/ws", g.handleWS)
	return r
}

func (g *Gateway) handlePublish(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "*")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "couldn't read body", http.StatusBadRequest)
		return
	}

	err = g.broker.Publish(r.Context(), message.Outbound{Subject: subject, Body: body})
	if err != nil {
		http.Error(w, "couldn't publish", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("published to subject"))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (g *Gateway) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if g.websockets == nil {
		http.Error(w, "websockets aren't supported", http.StatusBadRequest)
		return
	}

	subject := chi.URLParam(r, "*")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[trigger/gateway] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	recv, err := g.broker.SubscribeToTopic(r.Context(), subject)
	if err != nil {
		log.Printf("[trigger/gateway] subscribe to %s failed: %v", subject, err)
		return
	}
	defer recv.Close()

	framing := *g.websockets
	for msg := range recv.C() {
		if err := writeFramed(conn, framing, msg); err != nil {
			log.Printf("[trigger/gateway] write failed, closing: %v", err)
			return
		}
	}
}

// frameWriter is the write half shared by a raw connection and the
// lock-guarded wsWriter.
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

func writeFramed(conn frameWriter, framing config.WebsocketFraming, msg message.Inbound) error {
	switch framing {
	case config.FramingBinaryBody:
		return conn.WriteMessage(websocket.BinaryMessage, msg.Body)
	case config.FramingTextBody:
		if !utf8.Valid(msg.Body) {
			log.Printf("[trigger/gateway] dropping non-UTF-8 body on %s for text framing", msg.Subject)
			return nil
		}
		return conn.WriteMessage(websocket.TextMessage, msg.Body)
	case config.FramingMessagePack:
		buf, err := msgpack.Marshal(msg)
		if err != nil {
			log.Printf("[trigger/gateway] dropping unencodable message on %s: %v", msg.Subject, err)
			return nil
		}
		return conn.WriteMessage(websocket.BinaryMessage, buf)
	case config.FramingJSON:
		buf, err := json.Marshal(msg)
		if err != nil {
			log.Printf("[trigger/gateway] dropping unencodable message on %s: %v", msg.Subject, err)
			return nil
		}
		return conn.WriteMessage(websocket.TextMessage, buf)
	default:
		return fmt.Errorf("gateway: unknown websocket framing %q", framing)
	}
}

func (g *Gateway) handleRequest(w http.ResponseWriter, r *http.Request) {
	if g.requestResponse == nil {
		http.Error(w, "request/response isn't supported", http.StatusBadRequest)
		return
	}

	path := chi.URLParam(r, "*")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "couldn't read body", http.StatusBadRequest)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	req := message.HTTPRequest{
		Method:  r.Method,
		Headers: headers,
		URI:     r.URL.String(),
		Path:    path,
		Body:    body,
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(g.timeoutMs)*time.Millisecond)
	defer cancel()

	codec := codecFor(*g.requestResponse)
	resp, err := correlator.HTTPRequest(ctx, g.broker, req, codec)
	if err != nil {
		if ctx.Err() != nil {
			http.Error(w, "response timed out", http.StatusGatewayTimeout)
			return
		}
		http.Error(w, "couldn't process result", http.StatusInternalServerError)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// wsEnvelope is the bidirectional /ws tagged message: a client either
// subscribes to a subject or publishes a message on one.
type wsEnvelope struct {
	Type    string `json:"type" msgpack:"type"` // "subscribe" | "publish"
	Subject string `json:"subject" msgpack:"subject"`
	Body    []byte `json:"body,omitempty" msgpack:"body,omitempty"`
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	if g.websockets == nil {
		http.Error(w, "websockets aren't supported", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[trigger/gateway] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ws := &wsWriter{conn: conn}
	ctx := r.Context()
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := decodeEnvelope(kind, data)
		if err != nil {
			log.Printf("[trigger/gateway] bad /ws envelope: %v", err)
			continue
		}

		switch env.Type {
		case "publish":
			if err := g.broker.Publish(ctx, message.Outbound{Subject: env.Subject, Body: env.Body}); err != nil {
				log.Printf("[trigger/gateway] /ws publish failed: %v", err)
			}
		case "subscribe":
			go g.streamWS(ctx, ws, env.Subject)
		default:
			log.Printf("[trigger/gateway] /ws unknown envelope type %q", env.Type)
		}
	}
}

// wsWriter serializes writes to one socket: each subscribe envelope spawns
// its own streaming goroutine, and gorilla/websocket forbids concurrent
// writers on a single connection.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) WriteMessage(kind int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(kind, data)
}

// streamWS forwards every message on subject back to the socket in the
// gateway's configured framing until the subscription or socket closes.
func (g *Gateway) streamWS(ctx context.Context, ws *wsWriter, subject string) {
	recv, err := g.broker.SubscribeToTopic(ctx, subject)
	if err != nil {
		log.Printf("[trigger/gateway] /ws subscribe to %s failed: %v", subject, err)
		return
	}
	defer recv.Close()

	framing := *g.websockets
	for msg := range recv.C() {
		log.Printf("[trigger/gateway] /ws sending message on %s", msg.Subject)
		if err := writeFramed(ws, framing, msg); err != nil {
			return
		}
	}
}

func decodeEnvelope(kind int, data []byte) (wsEnvelope, error) {
	var env wsEnvelope
	var err error
	if kind == websocket.BinaryMessage {
		err = msgpack.Unmarshal(data, &env)
	} else {
		err = json.Unmarshal(data, &env)
	}
	return env, err
}

type jsonCodec struct{}

func (jsonCodec) EncodeRequest(req message.HTTPRequest) ([]byte, error) { return json.Marshal(req) }

func (jsonCodec) DecodeResponse(data []byte) (message.HTTPResponse, error) {
	var resp message.HTTPResponse
	err := json.Unmarshal(data, &resp)
	return resp, err
}

type msgpackCodec struct{}

func (msgpackCodec) EncodeRequest(req message.HTTPRequest) ([]byte, error) {
	return msgpack.Marshal(req)
}
func (msgpackCodec) DecodeResponse(data []byte) (message.HTTPResponse, error) {
	var resp message.HTTPResponse
	err := msgpack.Unmarshal(data, &resp)
	return resp, err
}

func codecFor(c config.RequestResponseCodec) correlator.Codec {
	if c == config.CodecJSON {
		return jsonCodec{}
	}
	return msgpackCodec{}
}
