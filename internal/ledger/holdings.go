package ledger

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/tick"
)

// Action marks a transaction as a buy or a sell.
type Action string

const (
	ActionBuy  Action = "B"
	ActionSell Action = "S"
)

// Transaction is one persisted buy/sell entry.
type Transaction struct {
	UserID  int       `bson:"usr_id"    json:"userId"`
	Symbol  string    `bson:"tckr_symb" json:"symbol"`
	Action  Action    `bson:"action"    json:"action"`
	Qty     int64     `bson:"qty"       json:"qty"`
	Price   float64   `bson:"pric"      json:"price"`
	TradeAt time.Time `bson:"trad_dt"   json:"tradeAt"`
}

// Position is one symbol's aggregated holding for a user.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       int64   `json:"qty"`
	AvgCost   float64 `json:"avgCost"`
	Invested  float64 `json:"invested"`
	LastPrice float64 `json:"lastPrice"`
	CurrValue float64 `json:"currValue"`
	PnL       float64 `json:"pnl"`
}

// Holdings is a user's full position summary.
type Holdings struct {
	Positions    []Position `json:"positions"`
	TotInvested  float64    `json:"totInvested"`
	TotCurrValue float64    `json:"totCurrValue"`
	TotPnL       float64    `json:"totPnl"`
}

// Ledger records transactions and derives holdings, pricing positions off
// the tick store's latest entry per symbol.
type Ledger struct {
	db    *mongo.Database
	ticks store.TickStore
	log   *zap.Logger
}

// New creates a Ledger over the given store.
func New(st *Store, ticks store.TickStore, log *zap.Logger) *Ledger {
	return &Ledger{db: st.DB(), ticks: ticks, log: log}
}

// RecordBuy appends a buy transaction at the symbol's current simulated price.
func (l *Ledger) RecordBuy(ctx context.Context, userID int, symbol string, qty int64) error {
	return l.record(ctx, userID, symbol, qty, ActionBuy)
}

// RecordSell appends a sell transaction at the symbol's current simulated price.
func (l *Ledger) RecordSell(ctx context.Context, userID int, symbol string, qty int64) error {
	return l.record(ctx, userID, symbol, qty, ActionSell)
}

func (l *Ledger) record(ctx context.Context, userID int, symbol string, qty int64, action Action) error {
	price, err := l.latestPrice(ctx, symbol)
	if err != nil {
		return err
	}

	txn := Transaction{
		UserID:  userID,
		Symbol:  symbol,
		Action:  action,
		Qty:     qty,
		Price:   price,
		TradeAt: time.Now().Truncate(time.Second),
	}
	if _, err := l.db.Collection("holdings").InsertOne(ctx, txn); err != nil {
		return fmt.Errorf("record %s %s x%d: %w", action, symbol, qty, err)
	}

	l.log.Info("transaction recorded",
		zap.Int("userId", userID), zap.String("symbol", symbol),
		zap.String("action", string(action)), zap.Int64("qty", qty), zap.Float64("price", price))
	return nil
}

// Transactions returns a user's entries for one symbol, newest first.
// An empty symbol returns the user's full history.
func (l *Ledger) Transactions(ctx context.Context, userID int, symbol string) ([]Transaction, error) {
	filter := bson.M{"usr_id": userID}
	if symbol != "" {
		filter["tckr_symb"] = symbol
	}

	opts := options.Find().SetSort(bson.D{{Key: "trad_dt", Value: -1}})
	cursor, err := l.db.Collection("holdings").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer cursor.Close(ctx)

	txns := []Transaction{}
	if err := cursor.All(ctx, &txns); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return txns, nil
}

// Holdings aggregates a user's transactions into per-symbol positions priced
// at the latest simulated tick. Symbols whose quantity nets to zero or below
// are dropped from the summary.
func (l *Ledger) Holdings(ctx context.Context, userID int) (*Holdings, error) {
	txns, err := l.Transactions(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	type acc struct {
		qty       int64
		boughtQty int64
		boughtVal float64
	}
	bySymbol := make(map[string]*acc)
	order := []string{}
	for _, t := range txns {
		a, ok := bySymbol[t.Symbol]
		if !ok {
			a = &acc{}
			bySymbol[t.Symbol] = a
			order = append(order, t.Symbol)
		}
		switch t.Action {
		case ActionSell:
			a.qty -= t.Qty
		default:
			a.qty += t.Qty
			a.boughtQty += t.Qty
			a.boughtVal += float64(t.Qty) * t.Price
		}
	}

	h := &Holdings{Positions: []Position{}}
	for _, symbol := range order {
		a := bySymbol[symbol]
		if a.qty <= 0 || a.boughtQty == 0 {
			continue
		}

		last, err := l.latestPrice(ctx, symbol)
		if err != nil {
			l.log.Warn("no current price for held symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		avg := a.boughtVal / float64(a.boughtQty)
		pos := Position{
			Symbol:    symbol,
			Qty:       a.qty,
			AvgCost:   avg,
			Invested:  avg * float64(a.qty),
			LastPrice: last,
			CurrValue: last * float64(a.qty),
		}
		pos.PnL = pos.CurrValue - pos.Invested

		h.Positions = append(h.Positions, pos)
		h.TotInvested += pos.Invested
		h.TotCurrValue += pos.CurrValue
	}
	h.TotPnL = h.TotCurrValue - h.TotInvested
	return h, nil
}

func (l *Ledger) latestPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := l.ticks.Latest(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, fmt.Errorf("no ticks for symbol %s", symbol)
	}
	t, err := tick.Decode(raw)
	if err != nil {
		return 0, err
	}
	if t.LastPric == nil {
		return 0, fmt.Errorf("tick for %s has no last price", symbol)
	}
	return *t.LastPric, nil
}
