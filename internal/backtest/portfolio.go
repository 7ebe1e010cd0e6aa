package backtest

import (
	"errors"
	"fmt"

	"exitpilot/internal/market"
	"exitpilot/internal/pkg/symbol"
	"exitpilot/internal/risk"
)

var (
	ErrPositionOpen        = errors.New("position already open")
	ErrNoPosition          = errors.New("no open position")
	ErrSymbolMismatch      = errors.New("candle symbol mismatch")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Config 为单次模拟的参数。Leverage <= 1 视为现货。
type Config struct {
	Symbol          string      `json:"symbol"`
	InitialCapital  float64     `json:"initial_capital"`
	FeeRate         float64     `json:"fee_rate"`
	SlippageBps     float64     `json:"slippage_bps"`
	Leverage        float64     `json:"leverage"`
	StopLossPercent float64     `json:"stop_loss_pct"`
	Risk            risk.Config `json:"risk"`
}

func (c Config) withDefaults() Config {
	c.Symbol = symbol.Canonical(c.Symbol)
	if c.Risk == (risk.Config{}) {
		c.Risk = risk.DefaultConfig()
	}
	return c
}

func (c Config) validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol 不能为空")
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital 需 >0")
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("fee_rate 需位于 [0,1)")
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("slippage_bps 不可为负")
	}
	if c.Leverage < 0 {
		return fmt.Errorf("%w: leverage=%g 不可为负", risk.ErrLeverageExceeded, c.Leverage)
	}
	if c.Leverage > 1 && !risk.ValidateLeverage(c.Leverage, c.Risk) {
		return fmt.Errorf("%w: leverage=%g max=%g", risk.ErrLeverageExceeded, c.Leverage, c.Risk.MaxLeverage)
	}
	return c.Risk.Validate()
}

// PortfolioState 为模拟器的只读快照。空仓时 PositionSize=0、PositionSymbol=""、EntryPrice=0。
type PortfolioState struct {
	Balance        float64 `json:"balance"`
	PositionSize   float64 `json:"position_size"`
	PositionSymbol string  `json:"position_symbol,omitempty"`
	EntryPrice     float64 `json:"entry_price,omitempty"`
	LastTradeIndex int     `json:"last_trade_index"`
}

func (s PortfolioState) Open() bool { return s.PositionSize > 0 }

// Trade 为成交流水，卖出记录额外携带 PnL。
type Trade struct {
	Timestamp int64   `json:"timestamp"`
	Index     int     `json:"index"`
	Action    Signal  `json:"action"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Fee       float64 `json:"fee"`
	PnL       float64 `json:"pnl,omitempty"`
}

// Portfolio 持有单一仓位的资金模拟器，非并发安全。
type Portfolio struct {
	cfg    Config
	state  PortfolioState
	trades []Trade
}

func NewPortfolio(cfg Config) (*Portfolio, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Portfolio{
		cfg:   cfg,
		state: PortfolioState{Balance: cfg.InitialCapital, LastTradeIndex: -1},
	}, nil
}

func (p *Portfolio) State() PortfolioState { return p.state }

func (p *Portfolio) Config() Config { return p.cfg }

func (p *Portfolio) Trades() []Trade {
	out := make([]Trade, len(p.trades))
	copy(out, p.trades)
	return out
}

// Equity 为按 currentPrice 估值的权益，未实现部分不计手续费。
func (p *Portfolio) Equity(currentPrice float64) float64 {
	return p.state.Balance + p.state.PositionSize*currentPrice
}

func (p *Portfolio) sizing(price float64) (risk.SizingResult, error) {
	if p.cfg.Leverage > 1 {
		return risk.FuturesPositionSize(p.state.Balance, price, p.cfg.Leverage, p.cfg.Risk, p.cfg.StopLossPercent)
	}
	return risk.SpotPositionSize(p.state.Balance, price, p.cfg.Risk, p.cfg.StopLossPercent), nil
}

func (p *Portfolio) checkSymbol(c market.Candle) error {
	if c.Symbol != "" && !symbol.Equal(c.Symbol, p.cfg.Symbol) {
		return fmt.Errorf("%w: got %s want %s", ErrSymbolMismatch, c.Symbol, p.cfg.Symbol)
	}
	return nil
}

func (p *Portfolio) slip(price float64, sign float64) float64 {
	return price * (1 + sign*p.cfg.SlippageBps/10000)
}

// ValidateTrade 只做检查，不改变状态。
func (p *Portfolio) ValidateTrade(action Signal, c market.Candle) error {
	switch action {
	case SignalBuy:
		_, _, err := p.prepareBuy(c)
		return err
	case SignalSell:
		if !p.state.Open() {
			return ErrNoPosition
		}
		return p.checkSymbol(c)
	case SignalHold:
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

func (p *Portfolio) prepareBuy(c market.Candle) (size, notional float64, err error) {
	if p.state.Open() {
		return 0, 0, ErrPositionOpen
	}
	if err := p.checkSymbol(c); err != nil {
		return 0, 0, err
	}
	if c.Close <= 0 {
		return 0, 0, fmt.Errorf("invalid close price %g", c.Close)
	}
	sz, err := p.sizing(c.Close)
	if err != nil {
		return 0, 0, err
	}
	size = sz.RecommendedQuantity
	notional = size * c.Close
	fee := notional * p.cfg.FeeRate
	if notional+fee > p.state.Balance {
		return 0, 0, fmt.Errorf("%w: need %.8g have %.8g", ErrInsufficientBalance, notional+fee, p.state.Balance)
	}
	return size, notional, nil
}

// Buy 按风控建议数量在收盘价开仓；失败时状态不变。
func (p *Portfolio) Buy(c market.Candle, index int) (Trade, error) {
	size, notional, err := p.prepareBuy(c)
	if err != nil {
		return Trade{}, err
	}
	fee := notional * p.cfg.FeeRate
	execPrice := p.slip(c.Close, 1)

	p.state.Balance -= notional + fee
	p.state.PositionSize = size
	p.state.PositionSymbol = p.cfg.Symbol
	p.state.EntryPrice = execPrice
	p.state.LastTradeIndex = index

	tr := Trade{
		Timestamp: c.Timestamp,
		Index:     index,
		Action:    SignalBuy,
		Price:     execPrice,
		Size:      size,
		Fee:       fee,
	}
	p.trades = append(p.trades, tr)
	return tr, nil
}

// Sell 全部平仓；失败时状态不变。
func (p *Portfolio) Sell(c market.Candle, index int) (Trade, error) {
	if !p.state.Open() {
		return Trade{}, ErrNoPosition
	}
	if err := p.checkSymbol(c); err != nil {
		return Trade{}, err
	}
	size := p.state.PositionSize
	execPrice := p.slip(c.Close, -1)
	gross := size * execPrice
	fee := gross * p.cfg.FeeRate
	proceeds := gross - fee
	pnl := proceeds - size*p.state.EntryPrice

	p.state.Balance += proceeds
	p.state.PositionSize = 0
	p.state.PositionSymbol = ""
	p.state.EntryPrice = 0
	p.state.LastTradeIndex = index

	tr := Trade{
		Timestamp: c.Timestamp,
		Index:     index,
		Action:    SignalSell,
		Price:     execPrice,
		Size:      size,
		Fee:       fee,
		PnL:       pnl,
	}
	p.trades = append(p.trades, tr)
	return tr, nil
}
