package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// ErrInvalidConfiguration is returned before any network call when an
	// address or setting is unusable
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrVenueUnreachable means a venue read failed; the cycle is skipped
	ErrVenueUnreachable = errors.New("venue unreachable")

	ErrApprovalFailed      = errors.New("approval failed")
	ErrSwapFailed          = errors.New("swap failed")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrTxReverted          = errors.New("transaction reverted")

	// ErrCycleInFlight is returned when the pipeline already has a cycle running
	ErrCycleInFlight = errors.New("arbitrage cycle already in flight")
)

// RevertError carries the revert reason and raw revert data of a failed transaction
type RevertError struct {
	TxHash common.Hash
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	msg := fmt.Sprintf("transaction %s reverted", e.TxHash.Hex())
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets errors.Is match ErrTxReverted
func (e *RevertError) Unwrap() error {
	return ErrTxReverted
}

// RevertDetails extracts the revert reason and hex-encoded data from err, if any
func RevertDetails(err error) (reason string, data string, ok bool) {
	var revert *RevertError
	if !errors.As(err, &revert) {
		return "", "", false
	}
	if len(revert.Data) > 0 {
		data = hexutil.Encode(revert.Data)
	}
	return revert.Reason, data, true
}
