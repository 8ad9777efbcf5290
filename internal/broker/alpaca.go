package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/shopspring/decimal"

	"vela/internal/config"
	"vela/internal/domain"
	"vela/internal/util"
)

// Compile-time interface check.
var _ ExchangeClient = (*AlpacaClient)(nil)

// AlpacaClient talks to Alpaca: trading API for orders, market-data API
// for prices, and the crypto WebSocket feed for ticks. All REST calls go
// through a shared rate limiter.
type AlpacaClient struct {
	trading *alpaca.Client
	data    *marketdata.Client
	cfg     config.Alpaca
	limiter *util.RateLimiter
}

// NewAlpacaClient creates an AlpacaClient from the given credentials and
// endpoints. Empty URLs fall back to the SDK defaults.
func NewAlpacaClient(cfg config.Alpaca) *AlpacaClient {
	tradeOpts := alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.BaseURL != "" {
		tradeOpts.BaseURL = cfg.BaseURL
	}
	dataOpts := marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	}
	if cfg.DataURL != "" {
		dataOpts.BaseURL = cfg.DataURL
	}
	return &AlpacaClient{
		trading: alpaca.NewClient(tradeOpts),
		data:    marketdata.NewClient(dataOpts),
		cfg:     cfg,
		limiter: util.NewRateLimiter(3),
	}
}

// GetCurrentPrice returns the latest trade price for the symbol.
func (c *AlpacaClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	trade, err := c.data.GetLatestCryptoTrade(cryptoSymbol(symbol), marketdata.GetLatestCryptoTradeRequest{})
	if err != nil {
		return 0, &ExchangeError{Op: "latest trade " + symbol, Err: err}
	}
	return trade.Price, nil
}

// SubmitOrder places a market order and returns the fill. A submission
// accepted by Alpaca but not yet filled reports the requested quantity and
// the latest known price.
func (c *AlpacaClient) SubmitOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	qty := decimal.NewFromFloat(req.Qty)
	order, err := c.trading.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      cryptoSymbol(req.Symbol),
		Qty:         &qty,
		Side:        alpaca.Side(req.Side),
		Type:        alpaca.Market,
		TimeInForce: alpaca.GTC,
	})
	if err != nil {
		return nil, &ExchangeError{Op: "place order " + req.Symbol, Err: err}
	}

	res := &OrderResult{
		ID:        order.ID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		FilledQty: req.Qty,
	}
	if order.FilledAvgPrice != nil {
		res.FilledPrice, _ = order.FilledAvgPrice.Float64()
	}
	if order.FilledQty.IsPositive() {
		res.FilledQty, _ = order.FilledQty.Float64()
	}
	if res.FilledPrice == 0 {
		price, err := c.GetCurrentPrice(ctx, req.Symbol)
		if err != nil {
			return nil, fmt.Errorf("order %s accepted but no fill price: %w", order.ID, err)
		}
		res.FilledPrice = price
	}
	return res, nil
}

// Subscribe connects to the Alpaca crypto stream and forwards trades for
// the symbol as ticks. The returned stop function tears down the stream;
// the channel closes when the feed terminates.
func (c *AlpacaClient) Subscribe(ctx context.Context, symbol string) (<-chan domain.Tick, func(), error) {
	streamCtx, cancel := context.WithCancel(ctx)

	ticks := make(chan domain.Tick, 256)
	client := stream.NewCryptoClient(marketdata.US,
		stream.WithCredentials(c.cfg.APIKey, c.cfg.APISecret),
	)
	if err := client.Connect(streamCtx); err != nil {
		cancel()
		return nil, nil, &ExchangeError{Op: "connect stream", Err: err}
	}

	handler := func(t stream.CryptoTrade) {
		select {
		case ticks <- domain.Tick{
			Symbol:    symbol,
			Price:     t.Price,
			Size:      t.Size,
			Timestamp: t.Timestamp,
		}:
		default:
			// Feed outruns the consumer; dropping a tick is preferable to
			// blocking the stream callback.
		}
	}
	if err := client.SubscribeToTrades(handler, cryptoSymbol(symbol)); err != nil {
		cancel()
		return nil, nil, &ExchangeError{Op: "subscribe " + symbol, Err: err}
	}

	go func() {
		<-client.Terminated()
		close(ticks)
	}()
	return ticks, cancel, nil
}

// cryptoSymbol maps "BTC-USD" to Alpaca's "BTC/USD" form.
func cryptoSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "/")
}
