package carnft

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type (
	// IncorrectFeeValueError is returned by Mint when the attached payment
	// does not cover the mint fee.
	IncorrectFeeValueError struct {
		Required *uint256.Int
		Provided *uint256.Int
	}

	// UnknownAssetError is returned when the asset id has not been minted.
	UnknownAssetError struct {
		ID uint64
	}

	// NotTokenOwnerError is returned when the caller does not own the asset.
	NotTokenOwnerError struct {
		Caller common.Address
	}

	// UnknownRegistryError is returned by the Router when the registry
	// identifier does not map to any collection.
	UnknownRegistryError struct {
		RegistryID common.Address
	}
)

func (e *IncorrectFeeValueError) Error() string {
	return fmt.Sprintf("incorrect fee value: required %s, provided %s", e.Required, e.Provided)
}

func (e *UnknownAssetError) Error() string {
	return fmt.Sprintf("unknown asset %d", e.ID)
}

func (e *NotTokenOwnerError) Error() string {
	return fmt.Sprintf("caller %s is not the token owner", e.Caller)
}

func (e *UnknownRegistryError) Error() string {
	return fmt.Sprintf("unknown asset registry %s", e.RegistryID)
}
