package instruments

import (
	"context"
	"fmt"
	"strings"
)

// OptionContract is one option row from the scrip master, with the strike
// converted safely (the upstream serializes whole strikes as floats).
type OptionContract struct {
	DisplayName string   `json:"display_name"`
	Strike      *float64 `json:"strike"`
	OptionType  string   `json:"option_type"`
	LotSize     int64    `json:"lot_size"`
	Expiry      string   `json:"expiry"`
	SecurityID  int64    `json:"security_id"`
}

// maxChainContracts caps the option chain response size.
const maxChainContracts = 50

// OptionChain returns option contracts for an underlying symbol, optionally
// restricted to one expiry date.
func (u *Universe) OptionChain(ctx context.Context, underlying, expiry string) ([]OptionContract, error) {
	rows, err := u.master.Rows(ctx, false)
	if err != nil {
		return nil, err
	}

	query := strings.ToUpper(strings.TrimSpace(underlying))
	if query == "" {
		return nil, fmt.Errorf("%w: empty underlying", ErrSymbolNotFound)
	}

	var contracts []OptionContract
	for _, r := range rows {
		if !strings.Contains(strings.ToUpper(r.Underlying), query) {
			continue
		}
		if !strings.Contains(strings.ToUpper(r.Instrument), "OPT") {
			continue
		}
		if expiry != "" && r.ExpiryDate != expiry {
			continue
		}

		id, ok := r.SecurityIDInt()
		if !ok {
			continue
		}

		var strike *float64
		if v, ok := r.Strike(); ok {
			strike = &v
		}

		lot, _ := r.LotSizeInt()

		contracts = append(contracts, OptionContract{
			DisplayName: r.DisplayName,
			Strike:      strike,
			OptionType:  r.OptionType,
			LotSize:     lot,
			Expiry:      r.ExpiryDate,
			SecurityID:  id,
		})

		if len(contracts) >= maxChainContracts {
			break
		}
	}

	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: no option data for %s", ErrSymbolNotFound, query)
	}

	return contracts, nil
}
