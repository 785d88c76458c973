package swapnet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/swapmaker/swapmaker/internal/domain"
	"github.com/swapmaker/swapmaker/internal/ports"
)

const (
	callTimeout  = 15 * time.Second
	writeTimeout = 10 * time.Second
)

// envelope is one JSON-RPC 2.0 frame on the venue connection. Peer-to-peer
// frames carry the destination address in To.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	To      string          `json:"to,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// wireIntent is an intent as the venue serializes it.
type wireIntent struct {
	MakerToken string `json:"makerToken"`
	TakerToken string `json:"takerToken"`
}

// wireOrderRequest is an inbound getOrder request. Amounts are decimal
// strings; an absent amount means that side is unspecified.
type wireOrderRequest struct {
	MakerToken   string `json:"makerToken"`
	TakerToken   string `json:"takerToken"`
	MakerAmount  string `json:"makerAmount,omitempty"`
	TakerAmount  string `json:"takerAmount,omitempty"`
	TakerAddress string `json:"takerAddress"`
}

// wireOrder is a signed order as sent back to the requester.
type wireOrder struct {
	MakerAddress string `json:"makerAddress"`
	MakerAmount  string `json:"makerAmount"`
	MakerToken   string `json:"makerToken"`
	TakerAddress string `json:"takerAddress"`
	TakerAmount  string `json:"takerAmount"`
	TakerToken   string `json:"takerToken"`
	Expiration   int64  `json:"expiration"`
	Nonce        string `json:"nonce"`
	V            uint8  `json:"v"`
	R            string `json:"r"`
	S            string `json:"s"`
}

// Conn implements ports.OrderTransport over a websocket connection to the
// swap venue. Inbound getOrder requests are dispatched each on their own
// goroutine, so the handler may suspend on chain lookups while further
// requests keep arriving.
type Conn struct {
	ws      *websocket.Conn
	address common.Address

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   ports.OrderHandler

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	done chan struct{}
}

// Dial connects to the venue websocket and starts the read loop.
func Dial(ctx context.Context, venueURL string, wallet common.Address) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, venueURL, nil)
	if err != nil {
		return nil, fmt.Errorf("swapnet.Dial: %w", err)
	}
	c := &Conn{
		ws:      ws,
		address: wallet,
		pending: make(map[string]chan envelope),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close shuts the connection down and fails all pending calls.
func (c *Conn) Close() error {
	close(c.done)
	return c.ws.Close()
}

// SetOrderHandler registers the handler for inbound getOrder requests.
func (c *Conn) SetOrderHandler(h ports.OrderHandler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handler = h
}

// PostIntents replaces the set of intents registered for this wallet.
func (c *Conn) PostIntents(ctx context.Context, intents []domain.Intent) error {
	wire := make([]wireIntent, 0, len(intents))
	for _, in := range intents {
		wire = append(wire, wireIntent{
			MakerToken: in.MakerToken.Hex(),
			TakerToken: in.TakerToken.Hex(),
		})
	}
	params := map[string]any{"address": c.address.Hex(), "intents": wire}
	if _, err := c.call(ctx, "setIntents", params); err != nil {
		return fmt.Errorf("swapnet.PostIntents: %w", err)
	}
	return nil
}

// GetIntents re-reads the intents the venue has registered for this wallet.
func (c *Conn) GetIntents(ctx context.Context) ([]domain.Intent, error) {
	result, err := c.call(ctx, "getIntents", map[string]any{"address": c.address.Hex()})
	if err != nil {
		return nil, fmt.Errorf("swapnet.GetIntents: %w", err)
	}
	var wire []wireIntent
	if err := json.Unmarshal(result, &wire); err != nil {
		return nil, fmt.Errorf("swapnet.GetIntents: decode: %w", err)
	}
	intents := make([]domain.Intent, 0, len(wire))
	for _, w := range wire {
		intents = append(intents, domain.Intent{
			MakerToken: common.HexToAddress(w.MakerToken),
			TakerToken: common.HexToAddress(w.TakerToken),
		})
	}
	return intents, nil
}

// SendOrder returns a signed order to the counterparty that requested it,
// echoing the original request id.
func (c *Conn) SendOrder(_ context.Context, taker common.Address, requestID string, order domain.SignedOrder) error {
	result, err := json.Marshal(wireOrder{
		MakerAddress: order.MakerAddress.Hex(),
		MakerAmount:  order.MakerAmount.String(),
		MakerToken:   order.MakerToken.Hex(),
		TakerAddress: order.TakerAddress.Hex(),
		TakerAmount:  order.TakerAmount.String(),
		TakerToken:   order.TakerToken.Hex(),
		Expiration:   order.Expiration,
		Nonce:        order.Nonce,
		V:            order.SigV,
		R:            order.SigR,
		S:            order.SigS,
	})
	if err != nil {
		return fmt.Errorf("swapnet.SendOrder: encode: %w", err)
	}
	return c.write(envelope{
		JSONRPC: "2.0",
		ID:      requestID,
		Result:  result,
		To:      taker.Hex(),
	})
}

// call performs one JSON-RPC request/response round trip.
func (c *Conn) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ch := make(chan envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(envelope{JSONRPC: "2.0", ID: id, Method: method, Params: raw}); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("venue error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (c *Conn) write(env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(env)
}

// readLoop dispatches inbound frames: responses to pending calls, getOrder
// requests to the handler.
func (c *Conn) readLoop() {
	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				slog.Error("swapnet read loop terminated", "err", err)
			}
			return
		}

		if env.Method == "" {
			c.pendingMu.Lock()
			ch, ok := c.pending[env.ID]
			c.pendingMu.Unlock()
			if ok {
				ch <- env
			}
			continue
		}

		if env.Method == "getOrder" {
			c.dispatchOrderRequest(env)
			continue
		}
		slog.Debug("swapnet: unhandled method", "method", env.Method)
	}
}

func (c *Conn) dispatchOrderRequest(env envelope) {
	c.handlerMu.RLock()
	handler := c.handler
	c.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	var wire wireOrderRequest
	if err := json.Unmarshal(env.Params, &wire); err != nil {
		slog.Warn("swapnet: malformed getOrder params", "err", err)
		return
	}

	req := ports.OrderRequest{
		ID:           env.ID,
		TakerAddress: common.HexToAddress(wire.TakerAddress),
		MakerToken:   common.HexToAddress(wire.MakerToken),
		TakerToken:   common.HexToAddress(wire.TakerToken),
		MakerAmount:  parseAmount(wire.MakerAmount),
		TakerAmount:  parseAmount(wire.TakerAmount),
	}

	go handler.HandleOrderRequest(context.Background(), req)
}

func parseAmount(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil
	}
	return v
}
