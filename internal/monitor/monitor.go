// Package monitor 针对单笔交易快照给出按优先级排列的动作：
// 移动止损触发 > 分批止盈 / 移动止损上移 > 无动作。
package monitor

import (
	"fmt"

	"exitpilot/internal/strategy/exit"
	"exitpilot/internal/strategy/trailing"
	"exitpilot/internal/trade"
)

// ActionType 为监控输出的动作类型。
type ActionType string

const (
	ActionTriggerTrailingStop ActionType = "trigger_trailing_stop"
	ActionPartialExit         ActionType = "partial_exit"
	ActionUpdateTrailingStop  ActionType = "update_trailing_stop"
	ActionNone                ActionType = "no_action"
)

// Action 由调用方负责执行并回写 ExitedQuantity / CurrentTrailingStopPrice。
type Action struct {
	Type                 ActionType       `json:"type"`
	TradeID              string           `json:"trade_id"`
	Quantity             float64          `json:"quantity,omitempty"`
	Level                *trade.ExitLevel `json:"level,omitempty"`
	LevelIndex           int              `json:"level_index,omitempty"`
	NewTrailingStopPrice float64          `json:"new_trailing_stop_price,omitempty"`
	Reason               string           `json:"reason,omitempty"`
}

// Evaluation 为一次评估的结果。
type Evaluation struct {
	Actions           []Action `json:"actions"`
	CurrentProfitPct  float64  `json:"current_profit_pct"`
	RemainingQuantity float64  `json:"remaining_quantity"`
}

// EvaluateTrade 纯函数，不做 I/O。
func EvaluateTrade(s trade.State) Evaluation {
	eval := Evaluation{
		CurrentProfitPct:  s.ProfitPct(),
		RemainingQuantity: s.RemainingQuantity(),
	}

	// 已全部平仓的交易不再产生任何动作。
	if eval.RemainingQuantity <= 0 {
		eval.Actions = []Action{{Type: ActionNone, TradeID: s.ID, Reason: "position fully exited"}}
		return eval
	}

	if trailing.ShouldTriggerTrailingStop(s) {
		eval.Actions = []Action{{
			Type:     ActionTriggerTrailingStop,
			TradeID:  s.ID,
			Quantity: eval.RemainingQuantity,
			Reason:   fmt.Sprintf("price %.8g crossed trailing stop %.8g", s.CurrentPrice, *s.CurrentTrailingStopPrice),
		}}
		return eval
	}

	if idx, level, ok := exit.PendingExitLevel(s); ok && exit.ShouldExecutePartialExit(s, level) {
		if qty := exit.ExitQuantity(s, level); qty > 0 {
			lvl := level
			eval.Actions = append(eval.Actions, Action{
				Type:       ActionPartialExit,
				TradeID:    s.ID,
				Quantity:   qty,
				Level:      &lvl,
				LevelIndex: idx,
				Reason:     fmt.Sprintf("profit %.4f reached level %d target %.4f", eval.CurrentProfitPct, idx+1, level.ProfitPct),
			})
		}
	}

	if s.TrailingEnabled() {
		if stop, ok := trailing.CalculateTrailingStop(s, *s.TrailingStopConfig); ok && trailing.ShouldUpdateTrailingStop(s, stop) {
			eval.Actions = append(eval.Actions, Action{
				Type:                 ActionUpdateTrailingStop,
				TradeID:              s.ID,
				NewTrailingStopPrice: stop,
				Reason:               fmt.Sprintf("trailing stop moved to %.8g", stop),
			})
		}
	}

	if len(eval.Actions) == 0 {
		eval.Actions = []Action{{Type: ActionNone, TradeID: s.ID}}
	}
	return eval
}

// TradeActions 只返回动作列表。
func TradeActions(s trade.State) []Action {
	return EvaluateTrade(s).Actions
}

// Apply 将动作效果回写到快照上，供离线回放连续评估使用。
func Apply(s trade.State, actions []Action) trade.State {
	out := s
	for _, act := range actions {
		switch act.Type {
		case ActionTriggerTrailingStop:
			out.ExitedQuantity = out.Quantity
		case ActionPartialExit:
			out.ExitedQuantity += act.Quantity
			if out.ExitedQuantity > out.Quantity {
				out.ExitedQuantity = out.Quantity
			}
		case ActionUpdateTrailingStop:
			stop := act.NewTrailingStopPrice
			out.CurrentTrailingStopPrice = &stop
		}
	}
	return out
}
