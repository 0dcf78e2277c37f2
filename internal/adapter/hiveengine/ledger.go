package hiveengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/pscheid92/peakstream/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	sidechainID      = "ssc-mainnet-hive"
	transferOp       = "tokens_transfer"
	contractTokens   = "tokens"
	contractMarket   = "market"
	actionTransfer   = "transfer"
	jsonRPCVersion   = "2.0"
	rpcMethodFind    = "find"
	defaultHistLimit = 500
)

var _ domain.Ledger = (*Client)(nil)

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Contract string            `json:"contract"`
	Table    string            `json:"table"`
	Query    map[string]string `json:"query"`
	Limit    int               `json:"limit,omitempty"`
}

// find queries a sidechain contract table and returns the result array.
func (c *Client) find(ctx context.Context, operation, contract, table string, query map[string]string) (gjson.Result, error) {
	body := rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      1,
		Method:  rpcMethodFind,
		Params:  rpcParams{Contract: contract, Table: table, Query: query, Limit: 1},
	}

	data, err := c.read(ctx, operation, func() ([]byte, error) {
		data, err := c.postJSON(ctx, c.cfg.RPCURL, body)
		if err != nil {
			return nil, err
		}
		if rpcErr := gjson.GetBytes(data, "error"); rpcErr.Exists() && rpcErr.Type != gjson.Null {
			return nil, &RPCError{Code: rpcErr.Get("code").Int(), Message: rpcErr.Get("message").String()}
		}
		return data, nil
	})
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, "result"), nil
}

// Balance returns the liquid token balance. Accounts without a balance row
// hold zero.
func (c *Client) Balance(ctx context.Context, account string) (decimal.Decimal, error) {
	result, err := c.find(ctx, "balance", contractTokens, "balances", map[string]string{
		"account": account,
		"symbol":  c.cfg.Symbol,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balance of %s: %w", domain.ErrLedgerUnavailable, account, err)
	}

	raw := result.Get("0.balance")
	if !raw.Exists() {
		return decimal.Zero, nil
	}
	balance, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed balance %q: %w", domain.ErrLedgerUnavailable, raw.String(), err)
	}
	return balance, nil
}

// LastPrice returns the last traded price of symbol in HIVE.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	result, err := c.find(ctx, "market_price", contractMarket, "metrics", map[string]string{"symbol": symbol})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: market metrics of %s: %w", domain.ErrLedgerUnavailable, symbol, err)
	}

	raw := result.Get("0.lastPrice")
	if !raw.Exists() {
		return decimal.Zero, fmt.Errorf("%w: no market metrics for %s", domain.ErrLedgerUnavailable, symbol)
	}
	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed last price %q: %w", domain.ErrLedgerUnavailable, raw.String(), err)
	}
	return price, nil
}

// History returns the account's token transfers, newest first. Entries that
// are not transfers of the configured symbol are skipped.
func (c *Client) History(ctx context.Context, account string, limit int) ([]domain.LedgerTransaction, error) {
	if limit <= 0 {
		limit = defaultHistLimit
	}

	q := url.Values{}
	q.Set("account", account)
	q.Set("symbol", c.cfg.Symbol)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	endpoint := c.cfg.HistoryURL + "/accountHistory?" + q.Encode()

	data, err := c.read(ctx, "history", func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: history of %s: %w", domain.ErrLedgerUnavailable, account, err)
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: history of %s: response is not an array", domain.ErrLedgerUnavailable, account)
	}

	txs := make([]domain.LedgerTransaction, 0, len(parsed.Array()))
	for _, item := range parsed.Array() {
		if item.Get("operation").String() != transferOp || item.Get("symbol").String() != c.cfg.Symbol {
			continue
		}

		amount, err := decimal.NewFromString(item.Get("quantity").String())
		if err != nil {
			slog.WarnContext(ctx, "Skipping history entry with malformed quantity", "account", account, "tx_id", item.Get("transactionId").String(), "error", err)
			continue
		}

		tx := domain.LedgerTransaction{
			ID:        item.Get("transactionId").String(),
			Timestamp: time.Unix(item.Get("timestamp").Int(), 0).UTC(),
			Amount:    amount,
			From:      item.Get("from").String(),
			To:        item.Get("to").String(),
			Memo:      item.Get("memo").String(),
			Direction: domain.DirectionSent,
		}
		if tx.To == account {
			tx.Direction = domain.DirectionReceived
		}
		txs = append(txs, tx)
	}

	slices.SortStableFunc(txs, func(a, b domain.LedgerTransaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return txs, nil
}

type transferPayload struct {
	ContractName    string          `json:"contractName"`
	ContractAction  string          `json:"contractAction"`
	ContractPayload transferContent `json:"contractPayload"`
}

type transferContent struct {
	Symbol   string `json:"symbol"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
}

type customJSON struct {
	ID                   string   `json:"id"`
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	JSON                 string   `json:"json"`
}

// Transfer hands a tokens/transfer custom_json to the signing relay. It is
// attempted exactly once; any failure wraps domain.ErrTransferFailed.
func (c *Client) Transfer(ctx context.Context, req domain.TransferRequest) (domain.TransferReceipt, error) {
	if !req.Amount.IsPositive() {
		return domain.TransferReceipt{}, fmt.Errorf("%w: amount must be positive, got %s", domain.ErrTransferFailed, req.Amount)
	}

	inner, err := json.Marshal(transferPayload{
		ContractName:   contractTokens,
		ContractAction: actionTransfer,
		ContractPayload: transferContent{
			Symbol:   c.cfg.Symbol,
			To:       req.To,
			Quantity: req.Amount.StringFixed(c.cfg.Precision),
			Memo:     req.Memo,
		},
	})
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("%w: encode payload: %w", domain.ErrTransferFailed, err)
	}

	op := customJSON{
		ID:                   sidechainID,
		RequiredAuths:        []string{req.From},
		RequiredPostingAuths: []string{},
		JSON:                 string(inner),
	}

	start := time.Now()
	data, err := c.guarded(func() ([]byte, error) {
		return c.postJSON(ctx, c.cfg.BroadcastURL, op)
	})
	c.metrics.ObserveRequest(service, "transfer", time.Since(start), err)
	if err != nil {
		return domain.TransferReceipt{}, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}

	if relayErr := gjson.GetBytes(data, "error"); relayErr.Exists() && relayErr.Type != gjson.Null {
		msg := relayErr.Get("message").String()
		if msg == "" {
			msg = relayErr.String()
		}
		return domain.TransferReceipt{}, fmt.Errorf("%w: relay rejected transfer: %s", domain.ErrTransferFailed, msg)
	}

	receipt := domain.TransferReceipt{
		TransactionID: gjson.GetBytes(data, "id").String(),
		BlockNum:      gjson.GetBytes(data, "block_num").Int(),
	}
	if receipt.TransactionID == "" {
		return domain.TransferReceipt{}, fmt.Errorf("%w: relay returned no transaction id", domain.ErrTransferFailed)
	}

	slog.DebugContext(ctx, "Transfer broadcast", "to", req.To, "amount", req.Amount.String(), "tx_id", receipt.TransactionID, "block_num", receipt.BlockNum)
	return receipt, nil
}
