// Package binance implements venue.Adapter over a Binance-USDT-M-perpetual
// shaped REST + WebSocket API: HMAC-SHA256 request signing, a ticker-driven
// rate limiter, exponential-backoff retry on transient failures, and a
// gorilla/websocket market-data stream.
package binance

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kasyap1234/fundingfee/internal/errs"
	"github.com/kasyap1234/fundingfee/internal/market"
	"github.com/kasyap1234/fundingfee/internal/money"
	"github.com/kasyap1234/fundingfee/internal/venue"
)

// Config carries everything the client needs to reach one venue account.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RateLimitRPS int
	Timeout    time.Duration
}

// Client is the live venue adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *time.Ticker
}

// New builds a Client with sane defaults applied to an incomplete Config.
func New(cfg Config) *Client {
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	interval := time.Second / time.Duration(cfg.RateLimitRPS)
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    time.NewTicker(interval),
	}
}

func (c *Client) Close() {
	if c.limiter != nil {
		c.limiter.Stop()
	}
}

func (c *Client) Name() string { return "binance" }

func (c *Client) FundingPeriodHours(symbol string) int { return 8 }

func sign(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

type apiError struct {
	Code int    `json:"code"`
	Msg   string `json:"msg"`
}

// doRequest performs a signed request with retry-with-backoff on transient
// failures (5xx, 429, timeouts). Non-429 4xx errors are never retried.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, signed bool) ([]byte, error) {
	<-c.limiter.C

	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, status, err := c.attempt(ctx, method, path, query, signed)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if status != 0 && status != 429 && status < 500 {
			return nil, fmt.Errorf("binance: %s %s: %w: %v", method, path, errs.ErrPermanent, err)
		}
		delay := time.Duration(100*pow5(attempt)) * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("binance: %s %s exhausted retries: %w: %v", method, path, errs.ErrTransient, lastErr)
}

func pow5(n int) int {
	r := 1
	for i := 0; i < n; i++ {
		r *= 5
	}
	return r
}

func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, signed bool) ([]byte, int, error) {
	if query == nil {
		query = url.Values{}
	}
	if signed {
		query.Del("signature") // a prior attempt's signature must not be signed over
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		sig := sign(c.cfg.APISecret, query.Encode())
		query.Set("signature", sig)
	}

	fullURL := c.cfg.BaseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		return nil, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Msg)
	}
	return data, resp.StatusCode, nil
}

func (c *Client) FundingRates(ctx context.Context) (map[string]money.Decimal, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/premiumIndex", nil, false)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol      string `json:"symbol"`
		LastFunding string `json:"lastFundingRate"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("binance: parse funding rates: %w: %v", errs.ErrData, err)
	}
	out := make(map[string]money.Decimal, len(rows))
	for _, r := range rows {
		d, err := money.FromString(r.LastFunding)
		if err != nil {
			continue
		}
		out[r.Symbol] = d
	}
	return out, nil
}

func (c *Client) Tickers(ctx context.Context) (map[string]market.SymbolData, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/24hr", nil, false)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol      string `json:"symbol"`
		LastPrice   string `json:"lastPrice"`
		Volume      string `json:"quoteVolume"`
		BidPrice    string `json:"bidPrice"`
		AskPrice    string `json:"askPrice"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("binance: parse tickers: %w: %v", errs.ErrData, err)
	}
	out := make(map[string]market.SymbolData, len(rows))
	for _, r := range rows {
		price, err := money.FromString(r.LastPrice)
		if err != nil {
			continue
		}
		vol, _ := money.FromString(r.Volume)
		bid, errB := money.FromString(r.BidPrice)
		ask, errA := money.FromString(r.AskPrice)
		spread := money.Zero
		if errA == nil && errB == nil && !price.IsZero() {
			mid, _ := bid.Add(ask).Div(money.FromInt(2))
			spread, _ = ask.Sub(bid).Div(mid)
		}
		out[r.Symbol] = market.SymbolData{
			Symbol:    r.Symbol,
			Price:     price,
			Volume24h: vol,
			Spread:    spread,
		}
	}
	return out, nil
}

func (c *Client) OpenInterest(ctx context.Context, symbol string) (money.Decimal, error) {
	q := url.Values{"symbol": {symbol}}
	data, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/openInterest", q, false)
	if err != nil {
		return money.Zero, err
	}
	var row struct {
		OpenInterest string `json:"openInterest"`
	}
	if err := json.Unmarshal(data, &row); err != nil {
		return money.Zero, fmt.Errorf("binance: parse open interest: %w: %v", errs.ErrData, err)
	}
	return money.FromString(row.OpenInterest)
}

func (c *Client) MarginBrackets(ctx context.Context, symbol string) ([]venue.MarginBracket, error) {
	q := url.Values{"symbol": {symbol}}
	data, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/leverageBracket", q, true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Brackets []struct {
			NotionalFloor int64   `json:"notionalFloor"`
			NotionalCap   int64   `json:"notionalCap"`
			MaintMargin   float64 `json:"maintMarginRatio"`
			InitialLev    int     `json:"initialLeverage"`
		} `json:"brackets"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("binance: parse brackets: %w: %v", errs.ErrData, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]venue.MarginBracket, 0, len(rows[0].Brackets))
	for _, b := range rows[0].Brackets {
		out = append(out, venue.MarginBracket{
			NotionalFloor:   money.FromInt(b.NotionalFloor),
			NotionalCap:     money.FromInt(b.NotionalCap),
			MaintenanceRate: money.FromFloat(b.MaintMargin),
			MaxLeverage:     b.InitialLev,
		})
	}
	return out, nil
}

func (c *Client) Balances(ctx context.Context) ([]venue.Balance, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		CrossUnPnl       string `json:"crossUnPnl"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("binance: parse balances: %w: %v", errs.ErrData, err)
	}
	out := make([]venue.Balance, 0, len(rows))
	for _, r := range rows {
		wallet, _ := money.FromString(r.Balance)
		unreal, _ := money.FromString(r.CrossUnPnl)
		avail, _ := money.FromString(r.AvailableBalance)
		out = append(out, venue.Balance{
			Asset:            r.Asset,
			WalletBalance:    wallet,
			UnrealizedProfit: unreal,
			MarginBalance:    wallet.Add(unreal),
			AvailableBalance: avail,
		})
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context) ([]venue.Position, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnrealizedProfit string `json:"unRealizedProfit"`
		LiquidationPrice string `json:"liquidationPrice"`
		Leverage         string `json:"leverage"`
		Notional         string `json:"notional"`
		IsolatedMargin   string `json:"isolatedMargin"`
		MarginType       string `json:"marginType"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("binance: parse positions: %w: %v", errs.ErrData, err)
	}
	out := make([]venue.Position, 0, len(rows))
	for _, r := range rows {
		qty, _ := money.FromString(r.PositionAmt)
		if qty.IsZero() {
			continue
		}
		entry, _ := money.FromString(r.EntryPrice)
		mark, _ := money.FromString(r.MarkPrice)
		unreal, _ := money.FromString(r.UnrealizedProfit)
		liq, _ := money.FromString(r.LiquidationPrice)
		notional, _ := money.FromString(r.Notional)
		isoMargin, _ := money.FromString(r.IsolatedMargin)
		lev, _ := strconv.Atoi(r.Leverage)
		mt := venue.Cross
		if r.MarginType == "isolated" {
			mt = venue.Isolated
		}
		out = append(out, venue.Position{
			Symbol:           r.Symbol,
			Quantity:         qty,
			EntryPrice:       entry,
			MarkPrice:        mark,
			UnrealizedPnL:    unreal,
			LiquidationPrice: liq,
			Leverage:         lev,
			Notional:         notional.Abs(),
			IsolatedMargin:   isoMargin,
			MarginType:       mt,
		})
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.OrderResult, error) {
	path := "/fapi/v1/order"
	if req.Spot {
		path = "/sapi/v1/margin/order"
	}
	q := url.Values{
		"symbol":   {req.Symbol},
		"side":     {string(req.Side)},
		"type":     {"MARKET"},
		"quantity": {req.Quantity.String()},
	}
	if req.Spot && req.AutoBorrowRepay {
		q.Set("sideEffectType", "AUTO_BORROW_REPAY")
	}
	if req.ReduceOnly && !req.Spot {
		q.Set("reduceOnly", "true")
	}
	if req.ClientOrderID != "" {
		q.Set("newClientOrderId", req.ClientOrderID)
	}
	data, err := c.doRequest(ctx, http.MethodPost, path, q, true)
	if err != nil {
		return venue.OrderResult{}, err
	}
	var resp struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		AvgPrice    string `json:"avgPrice"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return venue.OrderResult{}, fmt.Errorf("binance: parse order response: %w: %v", errs.ErrData, err)
	}
	executed, _ := money.FromString(resp.ExecutedQty)
	avg, _ := money.FromString(resp.AvgPrice)
	return venue.OrderResult{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Filled:      resp.Status == "FILLED",
		ExecutedQty: executed,
		AvgPrice:    avg,
		Spot:        req.Spot,
	}, nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	q := url.Values{"symbol": {symbol}, "leverage": {strconv.Itoa(leverage)}}
	_, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/leverage", q, true)
	return err
}

func (c *Client) SetMarginType(ctx context.Context, symbol string, mt venue.MarginType) error {
	marginType := "CROSSED"
	if mt == venue.Isolated {
		marginType = "ISOLATED"
	}
	q := url.Values{"symbol": {symbol}, "marginType": {marginType}}
	_, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/marginType", q, true)
	if err != nil && isAlreadySetError(err) {
		return nil
	}
	return err
}

func isAlreadySetError(err error) bool {
	return bytes.Contains([]byte(err.Error()), []byte("No need to change margin type"))
}

func (c *Client) Borrow(ctx context.Context, asset string, amount money.Decimal) error {
	q := url.Values{"asset": {asset}, "amount": {amount.String()}}
	_, err := c.doRequest(ctx, http.MethodPost, "/sapi/v1/margin/loan", q, true)
	return err
}

func (c *Client) Repay(ctx context.Context, asset string, amount money.Decimal) error {
	q := url.Values{"asset": {asset}, "amount": {amount.String()}}
	_, err := c.doRequest(ctx, http.MethodPost, "/sapi/v1/margin/repay", q, true)
	return err
}

var _ venue.Adapter = (*Client)(nil)
