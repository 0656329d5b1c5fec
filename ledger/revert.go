package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/michaelpento.lv/dexarb/types"
)

// RevertFromError converts a node error carrying revert data into a
// *types.RevertError. It returns nil when err carries no revert data.
func RevertFromError(err error, txHash common.Hash) *types.RevertError {
	if err == nil {
		return nil
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil
	}

	var data []byte
	switch v := dataErr.ErrorData().(type) {
	case string:
		decoded, decodeErr := hexutil.Decode(v)
		if decodeErr != nil {
			return &types.RevertError{TxHash: txHash, Reason: dataErr.Error()}
		}
		data = decoded
	case []byte:
		data = v
	default:
		return &types.RevertError{TxHash: txHash, Reason: dataErr.Error()}
	}

	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		reason = dataErr.Error()
	}

	return &types.RevertError{TxHash: txHash, Reason: reason, Data: data}
}
