// Package symbol 统一交易对写法：BTC/USDT、btcusdt、BTC/USDT:USDT 均视为同一交易对。
package symbol

import "strings"

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "BTC", "ETH", "BNB"}

type Symbol struct {
	Base  string
	Quote string
}

// Pair 返回 BASE/QUOTE 形式。
func (s Symbol) Pair() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Compact 返回交易所 REST 使用的 BASEQUOTE 形式。
func (s Symbol) Compact() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

// Canonical 返回 BASEQUOTE 形式；无法识别计价币时退化为去掉分隔符的大写串。
func Canonical(s string) string {
	if c := Parse(s).Compact(); c != "" {
		return c
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}

// Equal 判断两种写法是否指向同一交易对。
func Equal(a, b string) bool {
	return Canonical(a) == Canonical(b)
}
