package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"exitpilot/internal/trade"
)

// StateFile 映射 trades 文档，供 monitor 命令离线评估。
type StateFile struct {
	Trades []trade.State `yaml:"trades"`
}

const stateSchema = `{
  "type": "object",
  "required": ["trades"],
  "properties": {
    "trades": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "side", "entry_price", "quantity", "current_price"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "side": {"type": "string", "pattern": "(?i)^(buy|sell|long|short)$"},
          "entry_price": {"type": "number", "exclusiveMinimum": 0},
          "quantity": {"type": "number", "exclusiveMinimum": 0},
          "exited_quantity": {"type": "number", "minimum": 0},
          "current_price": {"type": "number", "minimum": 0},
          "tp_pct": {"type": "number", "minimum": 0},
          "sl_pct": {"type": "number", "minimum": 0},
          "current_trailing_stop_price": {"type": "number", "minimum": 0},
          "exit_strategy": {
            "type": "object",
            "required": ["levels"],
            "properties": {
              "levels": {
                "type": "array",
                "minItems": 1,
                "items": {
                  "type": "object",
                  "required": ["profit_pct", "quantity_pct"],
                  "properties": {
                    "profit_pct": {"type": "number"},
                    "quantity_pct": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
                  }
                }
              }
            }
          },
          "trailing_stop_config": {
            "type": "object",
            "properties": {
              "enabled": {"type": "boolean"},
              "activation_profit_pct": {"type": "number", "minimum": 0},
              "trail_distance_pct": {"type": "number", "minimum": 0},
              "min_trail_distance_pct": {"type": "number", "minimum": 0}
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("trade_states.json", strings.NewReader(stateSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("trade_states.json")
	})
	return schemaCompiled, schemaErr
}

// LoadStates 读取 YAML 交易快照文件。
func LoadStates(path string) ([]trade.State, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trade states failed: %w", err)
	}
	return ParseStates(raw)
}

// ParseStates 先按 schema 校验，再严格解码（未知字段报错），最后规范化方向。
func ParseStates(raw []byte) ([]trade.State, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse trade states failed: %w", err)
	}
	if err := validateDoc(doc); err != nil {
		return nil, err
	}
	var file StateFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode trade states failed: %w", err)
	}
	for i := range file.Trades {
		st := &file.Trades[i]
		st.Side = trade.ParseSide(string(st.Side))
		if st.ExitedQuantity > st.Quantity {
			return nil, fmt.Errorf("trade %s: exited_quantity %.8g exceeds quantity %.8g", st.ID, st.ExitedQuantity, st.Quantity)
		}
	}
	return file.Trades, nil
}

func validateDoc(doc any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile trade state schema failed: %w", err)
	}
	// yaml 解出的整数需经 JSON 往返转为 float64 才能交给 schema 校验
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("trade states not representable as json: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return err
	}
	if err := schema.Validate(normalized); err != nil {
		return fmt.Errorf("trade states invalid: %w", err)
	}
	return nil
}
