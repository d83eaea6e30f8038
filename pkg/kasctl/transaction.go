package kasctl

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaswalletd/kaswalletd/pkg/walletmodel"
)

// SerializeTransaction renders tx as a hex string, the CLI's wire format for
// printing and re-feeding transactions through --transaction/--transaction-file.
// The payload under the hex is the same JSON encoding the daemon's API
// boundary already standardizes on (pkg/api/server.go).
func SerializeTransaction(tx walletmodel.WalletSignableTransaction) (string, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("serializing transaction: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// ParseTransactionsHex parses one or more hex-encoded, newline-separated
// transactions.
func ParseTransactionsHex(hexBlob string) ([]walletmodel.WalletSignableTransaction, error) {
	var out []walletmodel.WalletSignableTransaction
	for _, line := range strings.Split(hexBlob, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		raw, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("invalid hex in transaction: %w", err)
		}

		var tx walletmodel.WalletSignableTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return nil, fmt.Errorf("failed to deserialize transaction: %w", err)
		}
		out = append(out, tx)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no transactions found")
	}
	return out, nil
}
