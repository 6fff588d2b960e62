package exec

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hftbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE REST CLIENT - Signed order placement and account queries
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every request carries an HMAC-SHA256 signature over
// timestamp + method + path + body, base64-encoded, alongside the API
// key and passphrase headers. In dry-run mode orders are logged and
// acknowledged locally without touching the venue; account queries
// still go out.
//
// ═══════════════════════════════════════════════════════════════════════════════

const requestTimeout = 5 * time.Second

// Client is the signed REST client for the derivatives venue.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
	dryRun     bool

	httpClient *http.Client
}

// NewClient creates a venue client. With dryRun set, order endpoints are
// short-circuited locally.
func NewClient(baseURL, apiKey, apiSecret, passphrase string, dryRun bool) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		dryRun:     dryRun,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// request sends a signed request and decodes the venue envelope.
func (c *Client) request(method, path string, payload interface{}, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(timestamp, method, path, string(body)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("venue request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("venue returned %d: %s", resp.StatusCode, string(raw))
	}

	var envelope struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != "0" {
		return fmt.Errorf("venue error %s: %s", envelope.Code, envelope.Msg)
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// PlaceImmediateOrder submits an immediate-or-cancel limit order. The
// limit price caps the tolerated slippage; whatever cannot fill at or
// below it is cancelled by the venue.
func (c *Client) PlaceImmediateOrder(symbol, side string, limitPrice, size float64) (*types.OrderResult, error) {
	clientID := "hft" + strings.ReplaceAll(uuid.New().String(), "-", "")[:20]

	if c.dryRun {
		log.Info().
			Str("symbol", symbol).
			Str("side", side).
			Float64("limit", limitPrice).
			Float64("size", size).
			Str("client_id", clientID).
			Msg("🧪 DRY RUN: IOC order")
		return &types.OrderResult{OrderID: clientID, Status: "dry_run"}, nil
	}

	order := map[string]string{
		"instId":  symbol,
		"tdMode":  "cross",
		"clOrdId": clientID,
		"side":    side,
		"ordType": "ioc",
		"px":      strconv.FormatFloat(limitPrice, 'f', -1, 64),
		"sz":      strconv.FormatFloat(size, 'f', -1, 64),
	}

	var data []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := c.request(http.MethodPost, "/api/v5/trade/order", order, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty order response")
	}
	if data[0].SCode != "0" {
		return nil, fmt.Errorf("order rejected %s: %s", data[0].SCode, data[0].SMsg)
	}

	log.Info().
		Str("order_id", data[0].OrdID).
		Str("client_id", clientID).
		Str("side", side).
		Msg("Order accepted")

	return &types.OrderResult{OrderID: data[0].OrdID, Status: "submitted"}, nil
}

// ClosePosition market-closes the given direction of the position.
func (c *Client) ClosePosition(symbol string, size float64, direction string) (*types.OrderResult, error) {
	if c.dryRun {
		log.Info().
			Str("symbol", symbol).
			Float64("size", size).
			Str("direction", direction).
			Msg("🧪 DRY RUN: close position")
		return &types.OrderResult{OrderID: uuid.New().String(), Status: "dry_run"}, nil
	}

	payload := map[string]string{
		"instId":  symbol,
		"mgnMode": "cross",
		"posSide": direction,
	}

	if err := c.request(http.MethodPost, "/api/v5/trade/close-position", payload, nil); err != nil {
		return nil, err
	}
	return &types.OrderResult{OrderID: "", Status: "closed"}, nil
}

// GetAvailableBalance returns the available USDT equity.
func (c *Client) GetAvailableBalance() (float64, error) {
	var data []struct {
		Details []struct {
			Ccy      string `json:"ccy"`
			AvailEq  string `json:"availEq"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}
	if err := c.request(http.MethodGet, "/api/v5/account/balance?ccy=USDT", nil, &data); err != nil {
		return 0, err
	}

	for _, acct := range data {
		for _, d := range acct.Details {
			if d.Ccy != "USDT" {
				continue
			}
			field := d.AvailEq
			if field == "" {
				field = d.AvailBal
			}
			balance, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return 0, fmt.Errorf("parse balance %q: %w", field, err)
			}
			return balance, nil
		}
	}
	return 0, fmt.Errorf("no USDT balance in response")
}

// GetVenuePosition returns the venue's view of the position for the
// symbol, or nil when the venue reports no open position.
func (c *Client) GetVenuePosition(symbol string) (*types.VenuePosition, error) {
	var data []struct {
		InstID string `json:"instId"`
		Pos    string `json:"pos"`
		AvgPx  string `json:"avgPx"`
		CTime  string `json:"cTime"`
	}
	path := "/api/v5/account/positions?instId=" + symbol
	if err := c.request(http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}

	for _, d := range data {
		if d.InstID != symbol {
			continue
		}
		size, _ := strconv.ParseFloat(d.Pos, 64)
		if size == 0 {
			return nil, nil
		}
		avg, _ := strconv.ParseFloat(d.AvgPx, 64)
		opened, _ := strconv.ParseInt(d.CTime, 10, 64)
		return &types.VenuePosition{Size: size, AvgPrice: avg, OpenTimeMs: opened}, nil
	}
	return nil, nil
}
