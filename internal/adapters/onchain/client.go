package onchain

// client.go — shared RPC plumbing for the AMM and vault contract clients.
//
// Handles:
//   - Wallet/key setup from a hex private key
//   - Read calls through a rate limiter (the sizing loops hammer the node)
//   - Gas price caching with the trade premium applied
//   - Transaction signing, submission and receipt polling

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"
)

const (
	// Read-call budget. Quote/impact queries during sizing are the hot path;
	// public endpoints start rejecting around 20-25 rps.
	readRatePerSec = 10
	readBurst      = 5

	// Gas price cache refresh.
	gasPriceUpdateInterval = 5 * time.Minute

	// Premium applied over the node's suggestion for faster inclusion: +20%.
	gasPremiumNum = 6
	gasPremiumDen = 5

	// Conservative ceiling; the AMM buy path is heavy.
	tradeGasLimit = uint64(10_000_000)

	receiptPollInterval = 3 * time.Second
	receiptTimeout      = 90 * time.Second

	callTimeout   = 15 * time.Second
	callRetries   = 2
	callRetryWait = 500 * time.Millisecond
)

// Client wraps an ethclient connection with a signing wallet for one network.
type Client struct {
	eth     *ethclient.Client
	privKey *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	limiter *rate.Limiter

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// Dial connects to the given RPC endpoint. privateKeyHex may carry a 0x
// prefix; an empty key yields a read-only client that rejects submissions,
// enough for dry runs.
func Dial(rpcURL, privateKeyHex string, chainID int64) (*Client, error) {
	var privKey *ecdsa.PrivateKey
	var address common.Address
	if privateKeyHex != "" {
		pkBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("onchain.Dial: decode private key: %w", err)
		}
		privKey, err = crypto.ToECDSA(pkBytes)
		if err != nil {
			return nil, fmt.Errorf("onchain.Dial: invalid private key: %w", err)
		}
		address = crypto.PubkeyToAddress(privKey.PublicKey)
	}

	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: dial rpc %s: %w", rpcURL, err)
	}

	return &Client{
		eth:     eth,
		privKey: privKey,
		address: address,
		chainID: big.NewInt(chainID),
		limiter: rate.NewLimiter(readRatePerSec, readBurst),
	}, nil
}

// Address returns the wallet address transactions are sent from.
func (c *Client) Address() common.Address {
	return c.address
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// call packs, executes and unpacks a read-only contract call, rate limited
// and bounded by a per-call timeout.
func (c *Client) call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("onchain: rate limiter: %w", err)
	}

	callData, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("onchain: pack %s: %w", method, err)
	}

	result, err := c.callWithRetry(ctx, contract, callData)
	if err != nil {
		return nil, fmt.Errorf("onchain: call %s: %w", method, err)
	}

	vals, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("onchain: unpack %s: %w", method, err)
	}
	return vals, nil
}

// callWithRetry runs eth_call with a per-attempt timeout and a small bounded
// retry. Flaky public endpoints drop the occasional request; a couple of
// retries covers that without hiding a dead node.
func (c *Client) callWithRetry(ctx context.Context, contract common.Address, callData []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &contract, Data: callData}

	var lastErr error
	for attempt := 0; attempt <= callRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * callRetryWait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		result, err := c.eth.CallContract(callCtx, msg, nil)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// submit signs and sends a transaction, then blocks until it is mined.
// Returns the receipt so callers can check the status.
func (c *Client) submit(ctx context.Context, contract common.Address, callData []byte) (*types.Receipt, string, error) {
	if c.privKey == nil {
		return nil, "", fmt.Errorf("onchain: no signing key configured")
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, "", fmt.Errorf("onchain: nonce: %w", err)
	}

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("onchain: gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), tradeGasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privKey)
	if err != nil {
		return nil, "", fmt.Errorf("onchain: sign tx: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, "", fmt.Errorf("onchain: send tx: %w", err)
	}
	txHash := signed.Hash()

	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	receipt, err := c.waitForReceipt(receiptCtx, txHash)
	if err != nil {
		return nil, txHash.Hex(), fmt.Errorf("onchain: wait receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, txHash.Hex(), nil
}

// gasPrice returns the node's suggestion with the trade premium applied,
// cached to avoid an extra RPC round-trip per trade.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.RLock()
	cached := c.cachedGasWei
	updatedAt := c.gasUpdatedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached, nil
	}

	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}

	// +20%: price*6/5. Copy, SuggestGasPrice's return must not mutate.
	premium := new(big.Int).Mul(price, big.NewInt(gasPremiumNum))
	premium.Div(premium, big.NewInt(gasPremiumDen))

	c.mu.Lock()
	c.cachedGasWei = premium
	c.gasUpdatedAt = time.Now()
	c.mu.Unlock()

	return premium, nil
}

// waitForReceipt polls for a transaction receipt until mined or timeout.
func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := c.eth.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
