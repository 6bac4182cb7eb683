package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
 {"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
 {"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
 {"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const receiptPollInterval = 2 * time.Second

// ERC20 talks to stablecoin contracts over JSON-RPC.
type ERC20 struct {
	client   *ethclient.Client
	contract abi.ABI
	tokens   map[string]common.Address
	decimals int32
}

// DialERC20 connects to the RPC endpoint and prepares the token ABI.
func DialERC20(ctx context.Context, rpcURL string, tokens map[string]common.Address, decimals int32) (*ERC20, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	if len(tokens) == 0 {
		tokens = DefaultTokens
	}
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	return &ERC20{client: client, contract: parsed, tokens: tokens, decimals: decimals}, nil
}

// Close releases the RPC connection.
func (e *ERC20) Close() {
	e.client.Close()
}

// Balance returns balanceOf(owner) scaled by the token decimals.
func (e *ERC20) Balance(ctx context.Context, symbol string, owner common.Address) (decimal.Decimal, error) {
	token, err := e.token(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	data, err := e.contract.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Zero, err
	}
	out, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf %s: %w", symbol, err)
	}
	values, err := e.contract.Unpack("balanceOf", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode balanceOf: %w", err)
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("decode balanceOf: unexpected %T", values[0])
	}
	return decimal.NewFromBigInt(raw, -e.decimals), nil
}

// Transfer signs transfer(to, amount) with the sender key and waits for the receipt.
func (e *ERC20) Transfer(ctx context.Context, from *ecdsa.PrivateKey, symbol string, to common.Address, amount decimal.Decimal) (Receipt, error) {
	if !validAmount(amount, e.decimals) {
		return Receipt{}, ErrInvalidAmount
	}
	data, err := e.contract.Pack("transfer", to, amount.Shift(e.decimals).BigInt())
	if err != nil {
		return Receipt{}, err
	}
	return e.send(ctx, from, symbol, data)
}

// Approve signs approve(spender, amount) with the owner key and waits for the receipt.
func (e *ERC20) Approve(ctx context.Context, owner *ecdsa.PrivateKey, symbol string, spender common.Address, amount decimal.Decimal) (Receipt, error) {
	if !validAmount(amount, e.decimals) {
		return Receipt{}, ErrInvalidAmount
	}
	data, err := e.contract.Pack("approve", spender, amount.Shift(e.decimals).BigInt())
	if err != nil {
		return Receipt{}, err
	}
	return e.send(ctx, owner, symbol, data)
}

func (e *ERC20) send(ctx context.Context, key *ecdsa.PrivateKey, symbol string, data []byte) (Receipt, error) {
	token, err := e.token(symbol)
	if err != nil {
		return Receipt{}, err
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return Receipt{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("gas price: %w", err)
	}
	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &token, Data: data})
	if err != nil {
		return Receipt{}, fmt.Errorf("estimate gas: %w", err)
	}
	chainID, err := e.client.ChainID(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("chain id: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return Receipt{}, fmt.Errorf("sign: %w", err)
	}
	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return Receipt{}, fmt.Errorf("send: %w", err)
	}
	return e.waitMined(ctx, signed.Hash())
}

func (e *ERC20) waitMined(ctx context.Context, hash common.Hash) (Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return Receipt{
				TxHash:      hash.Hex(),
				BlockNumber: receipt.BlockNumber.Uint64(),
				Success:     receipt.Status == types.ReceiptStatusSuccessful,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return Receipt{}, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return Receipt{TxHash: hash.Hex()}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *ERC20) token(symbol string) (common.Address, error) {
	addr, ok := e.tokens[symbol]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}
	return addr, nil
}
