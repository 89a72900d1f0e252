/*

This file contains the client for the on-chain yield oracle contract.

The contract exposes updateYieldData(newAPY, source), where newAPY is in basis points, and a getStats()
view whose amounts are 6-decimal USDC units. Transactions are legacy EIP-155 transactions signed with a
single hex private key and confirmed by polling for the receipt.

*/

package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/yield-aggregator/internal/logger"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/elys-network/yield-aggregator/internal/utils"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var contractLogger = logger.GetForComponent("yield_contract")

var (
	ErrInvalidConfig     = errors.New("invalid contract client configuration")
	ErrRPCConnection     = errors.New("RPC connection failed")
	ErrContractCall      = errors.New("contract call failed")
	ErrTxBuildFailed     = errors.New("transaction build failed")
	ErrTxBroadcastFailed = errors.New("transaction broadcast failed")
	ErrTxReverted        = errors.New("transaction reverted")
)

const RECEIPT_POLL_INTERVAL = 2 * time.Second

const yieldContractABI = `[
	{"type":"function","name":"updateYieldData","stateMutability":"nonpayable",
	 "inputs":[{"name":"newAPY","type":"uint256"},{"name":"source","type":"string"}],"outputs":[]},
	{"type":"function","name":"getStats","stateMutability":"view","inputs":[],
	 "outputs":[
		{"name":"totalDeposits_","type":"uint256"},
		{"name":"totalFeesCollected_","type":"uint256"},
		{"name":"totalYieldGenerated_","type":"uint256"},
		{"name":"contractBalance_","type":"uint256"},
		{"name":"currentAPY_","type":"uint256"},
		{"name":"lastUpdate_","type":"uint256"}
	 ]}
]`

// contractBackend is the subset of ethclient.Client the contract client needs.
type contractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// YieldContract reads and updates the yield oracle contract.
type YieldContract struct {
	backend      contractBackend
	abi          abi.ABI
	address      common.Address
	key          *ecdsa.PrivateKey
	from         common.Address
	signer       ethtypes.Signer
	gasLimit     uint64
	pollInterval time.Duration
	closer       func()
}

// NewYieldContract dials rpcURL and prepares a signing client for the contract at contractAddr.
func NewYieldContract(ctx context.Context, rpcURL, contractAddr, privateKeyHex string, chainID int64, gasLimit uint64) (*YieldContract, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Join(ErrRPCConnection, fmt.Errorf("dial %s: %w", rpcURL, err))
	}

	contract, err := newYieldContract(client, contractAddr, privateKeyHex, chainID, gasLimit)
	if err != nil {
		client.Close()
		return nil, err
	}
	contract.closer = client.Close

	contractLogger.Info().
		Str("contract", contract.address.Hex()).
		Str("from", contract.from.Hex()).
		Int64("chainID", chainID).
		Msg("Yield contract client initialized")
	return contract, nil
}

func newYieldContract(backend contractBackend, contractAddr, privateKeyHex string, chainID int64, gasLimit uint64) (*YieldContract, error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("%w: contract address %q", ErrInvalidConfig, contractAddr)
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("%w: chain ID must be positive, got %d", ErrInvalidConfig, chainID)
	}
	if gasLimit == 0 {
		return nil, fmt.Errorf("%w: gas limit must be positive", ErrInvalidConfig)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: private key: %w", ErrInvalidConfig, err)
	}

	parsed, err := abi.JSON(strings.NewReader(yieldContractABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract ABI: %w", err)
	}

	return &YieldContract{
		backend:      backend,
		abi:          parsed,
		address:      common.HexToAddress(contractAddr),
		key:          key,
		from:         crypto.PubkeyToAddress(key.PublicKey),
		signer:       ethtypes.NewEIP155Signer(big.NewInt(chainID)),
		gasLimit:     gasLimit,
		pollInterval: RECEIPT_POLL_INTERVAL,
	}, nil
}

// From returns the signing account.
func (c *YieldContract) From() common.Address {
	return c.from
}

// GetStats calls the getStats() view and converts it to USDC and percent.
func (c *YieldContract) GetStats(ctx context.Context) (types.ContractStats, error) {
	data, err := c.abi.Pack("getStats")
	if err != nil {
		return types.ContractStats{}, fmt.Errorf("pack getStats: %w", err)
	}

	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.address, Data: data}, nil)
	if err != nil {
		return types.ContractStats{}, errors.Join(ErrContractCall, err)
	}

	values, err := c.abi.Unpack("getStats", output)
	if err != nil {
		return types.ContractStats{}, errors.Join(ErrContractCall, fmt.Errorf("unpack getStats: %w", err))
	}
	return statsFromValues(values)
}

// UpdateYieldData submits updateYieldData(bps, source) and waits for the receipt.
// The transaction hash is returned even when the transaction reverted.
func (c *YieldContract) UpdateYieldData(ctx context.Context, bps int64, source string) (string, error) {
	if bps < 0 {
		return "", fmt.Errorf("%w: negative APY %d bps", ErrTxBuildFailed, bps)
	}

	data, err := c.abi.Pack("updateYieldData", big.NewInt(bps), source)
	if err != nil {
		return "", errors.Join(ErrTxBuildFailed, fmt.Errorf("pack updateYieldData: %w", err))
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", errors.Join(ErrTxBuildFailed, fmt.Errorf("get nonce: %w", err))
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Join(ErrTxBuildFailed, fmt.Errorf("suggest gas price: %w", err))
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      c.gasLimit,
		To:       &c.address,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := ethtypes.SignTx(tx, c.signer, c.key)
	if err != nil {
		return "", errors.Join(ErrTxBuildFailed, fmt.Errorf("sign transaction: %w", err))
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", errors.Join(ErrTxBroadcastFailed, err)
	}
	txHash := signed.Hash().Hex()

	contractLogger.Info().
		Str("txHash", txHash).
		Int64("apyBps", bps).
		Uint64("nonce", nonce).
		Str("gasPrice", gasPrice.String()).
		Msg("Yield update transaction sent")

	receipt, err := c.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		return txHash, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("%w: %s in block %v", ErrTxReverted, txHash, receipt.BlockNumber)
	}

	contractLogger.Info().
		Str("txHash", txHash).
		Uint64("gasUsed", receipt.GasUsed).
		Msg("Yield update confirmed")
	return txHash, nil
}

// Close releases the RPC connection.
func (c *YieldContract) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *YieldContract) waitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			contractLogger.Debug().Err(err).Str("txHash", hash.Hex()).Msg("Receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// statsFromValues converts the six getStats outputs.
func statsFromValues(values []interface{}) (types.ContractStats, error) {
	if len(values) != 6 {
		return types.ContractStats{}, fmt.Errorf("%w: getStats returned %d values", ErrContractCall, len(values))
	}
	ints := make([]*big.Int, len(values))
	for i, value := range values {
		n, ok := value.(*big.Int)
		if !ok || n == nil {
			return types.ContractStats{}, fmt.Errorf("%w: getStats value %d is %T", ErrContractCall, i, value)
		}
		ints[i] = n
	}

	amounts := make([]float64, 4)
	for i := range amounts {
		amount, err := utils.TokenUnitsToFloat64(sdkmath.NewIntFromBigInt(ints[i]), utils.USDCDecimals)
		if err != nil {
			return types.ContractStats{}, fmt.Errorf("convert getStats value %d: %w", i, err)
		}
		amounts[i] = amount
	}
	if !ints[4].IsInt64() || !ints[5].IsInt64() {
		return types.ContractStats{}, fmt.Errorf("%w: APY or timestamp overflows int64", ErrContractCall)
	}

	stats := types.ContractStats{
		TotalDeposits:       amounts[0],
		TotalFeesCollected:  amounts[1],
		TotalYieldGenerated: amounts[2],
		ContractBalance:     amounts[3],
		CurrentAPYBps:       ints[4].Int64(),
		CurrentAPY:          utils.BasisPointsToPercent(ints[4].Int64()),
	}
	if lastUpdate := ints[5].Int64(); lastUpdate > 0 {
		stats.LastUpdate = time.Unix(lastUpdate, 0).UTC()
	}
	return stats, nil
}
