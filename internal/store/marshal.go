package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/roach88/quorum/internal/ir"
)

// marshalRebalance converts submitted rebalance parameters to JSON TEXT.
// Amounts are JSON integers of arbitrary size. A nil p stores NULL.
func marshalRebalance(p *ir.RebalanceParams) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return sql.NullString{}, fmt.Errorf("marshal rebalance: %w", err)
	}
	return sql.NullString{String: strings.TrimSpace(buf.String()), Valid: true}, nil
}

// unmarshalRebalance parses JSON TEXT written by marshalRebalance.
// big.Int decodes JSON numbers exactly, so weights above 2^53 survive.
func unmarshalRebalance(data sql.NullString) (*ir.RebalanceParams, error) {
	if !data.Valid {
		return nil, nil
	}
	var p ir.RebalanceParams
	if err := json.Unmarshal([]byte(data.String), &p); err != nil {
		return nil, fmt.Errorf("unmarshal rebalance: %w", err)
	}
	return &p, nil
}

func marshalAmount(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func unmarshalAmount(data sql.NullString) (*big.Int, error) {
	if !data.Valid {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(data.String, 10)
	if !ok {
		return nil, fmt.Errorf("unmarshal amount %q", data.String)
	}
	return v, nil
}
