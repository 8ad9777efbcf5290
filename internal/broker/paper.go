package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vela/internal/domain"
)

// Compile-time interface check.
var _ ExchangeClient = (*PaperClient)(nil)

// PaperClient is an in-memory exchange for paper trading and tests. Fills
// happen instantly at the current price; SetPrice moves the market and
// fans the tick out to subscribers.
type PaperClient struct {
	mu          sync.Mutex
	price       map[string]float64
	subs        []chan domain.Tick
	orders      []OrderRequest
	failNext    int // SubmitOrder failures remaining
	nextOrderID int
}

// NewPaperClient creates a PaperClient with no prices set.
func NewPaperClient() *PaperClient {
	return &PaperClient{price: make(map[string]float64)}
}

// SetPrice moves the market for symbol and publishes a tick to all
// subscribers. Sends happen under the lock so a concurrent stop() cannot
// close a channel mid-fanout; sends are non-blocking, so holding the lock
// is cheap.
func (c *PaperClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.price[symbol] = price

	tick := domain.Tick{Symbol: symbol, Price: price, Size: 1, Timestamp: time.Now().UTC()}
	for _, ch := range c.subs {
		select {
		case ch <- tick:
		default:
		}
	}
}

// FailNextOrders makes the next n SubmitOrder calls return a transient
// *ExchangeError.
func (c *PaperClient) FailNextOrders(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// Orders returns every order accepted so far.
func (c *PaperClient) Orders() []OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]OrderRequest(nil), c.orders...)
}

// GetCurrentPrice returns the last price set for symbol.
func (c *PaperClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.price[symbol]
	if !ok {
		return 0, &ExchangeError{Op: "latest trade " + symbol, Err: errors.New("no price set")}
	}
	return p, nil
}

// SubmitOrder fills instantly at the current price, or fails if a scripted
// failure is pending.
func (c *PaperClient) SubmitOrder(_ context.Context, req OrderRequest) (*OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext > 0 {
		c.failNext--
		return nil, &ExchangeError{Op: "place order " + req.Symbol, Err: errors.New("scripted failure")}
	}
	p, ok := c.price[req.Symbol]
	if !ok {
		return nil, &ExchangeError{Op: "place order " + req.Symbol, Err: errors.New("no price set")}
	}
	c.orders = append(c.orders, req)
	c.nextOrderID++
	return &OrderResult{
		ID:          fmt.Sprintf("paper-%d", c.nextOrderID),
		Symbol:      req.Symbol,
		Side:        req.Side,
		FilledQty:   req.Qty,
		FilledPrice: p,
	}, nil
}

// Subscribe returns a channel fed by SetPrice. The stop function detaches
// the subscriber and closes the channel.
func (c *PaperClient) Subscribe(_ context.Context, _ string) (<-chan domain.Tick, func(), error) {
	ch := make(chan domain.Tick, 256)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, s := range c.subs {
				if s == ch {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
	return ch, stop, nil
}
