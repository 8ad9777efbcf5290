// Package broker abstracts the exchange: current prices, order execution,
// and the live tick feed.
package broker

import (
	"context"
	"fmt"

	"vela/internal/domain"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

// OrderRequest is a market order to be executed at the exchange.
type OrderRequest struct {
	Symbol string
	Side   OrderSide
	Qty    float64
}

// OrderResult reports an executed order.
type OrderResult struct {
	ID          string
	Symbol      string
	Side        OrderSide
	FilledQty   float64
	FilledPrice float64
}

// ExchangeClient is the surface the live adapter needs from an exchange.
// Subscribe returns a tick channel and a stop function; the channel closes
// when the feed ends or stop is called.
type ExchangeClient interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	Subscribe(ctx context.Context, symbol string) (<-chan domain.Tick, func(), error)
}

// ExchangeError marks a transient exchange failure. Callers retry these;
// anything else is treated as fatal.
type ExchangeError struct {
	Op  string
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange: %s: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }
