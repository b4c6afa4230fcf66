package onchain

// vault.go — AmmVault contract client. The round counter and its end time
// always come from the chain; the trading limits come from the vault
// contract too, unless the network is configured with local limits (the
// vault contract only exists on Optimism).

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

var vaultABI abi.ABI

func init() {
	var err error
	vaultABI, err = abi.JSON(strings.NewReader(`[
		{"name": "round", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "getCurrentRoundEnd", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "priceLowerLimit", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "priceUpperLimit", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "skewImpactLimit", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "minTradeAmount", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "tradingAllocation", "type": "function", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint256"}]}
	]`))
	if err != nil {
		panic("vault abi parse: " + err.Error())
	}
}

// VaultClient implements ports.VaultReader.
type VaultClient struct {
	client   *Client
	contract common.Address

	// localLimits, when set, short-circuits the on-chain limit reads.
	localLimits *domain.TradingLimits
}

// NewVaultClient creates a vault reader. localLimits may be nil, in which
// case every parameter is read from the vault contract.
func NewVaultClient(client *Client, vaultContract string, localLimits *domain.TradingLimits) *VaultClient {
	return &VaultClient{
		client:      client,
		contract:    common.HexToAddress(vaultContract),
		localLimits: localLimits,
	}
}

// RoundInfo returns the current round counter and the round's end time.
func (v *VaultClient) RoundInfo(ctx context.Context) (uint64, time.Time, error) {
	vals, err := v.client.call(ctx, v.contract, vaultABI, "round")
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("onchain.RoundInfo: round: %w", err)
	}
	round := vals[0].(*big.Int).Uint64()

	vals, err = v.client.call(ctx, v.contract, vaultABI, "getCurrentRoundEnd")
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("onchain.RoundInfo: round end: %w", err)
	}
	roundEnd := time.Unix(vals[0].(*big.Int).Int64(), 0)

	return round, roundEnd, nil
}

// TradingLimits returns the vault's trading parameters, descaled from
// 1e18 fixed-point, or the locally configured ones when set.
func (v *VaultClient) TradingLimits(ctx context.Context) (domain.TradingLimits, error) {
	if v.localLimits != nil {
		return *v.localLimits, nil
	}

	var limits domain.TradingLimits
	reads := []struct {
		method string
		dst    *float64
	}{
		{"priceLowerLimit", &limits.PriceLowerLimit},
		{"priceUpperLimit", &limits.PriceUpperLimit},
		{"skewImpactLimit", &limits.SkewImpactLimit},
		{"tradingAllocation", &limits.TradingAllocation},
	}
	for _, r := range reads {
		vals, err := v.client.call(ctx, v.contract, vaultABI, r.method)
		if err != nil {
			return domain.TradingLimits{}, fmt.Errorf("onchain.TradingLimits: %s: %w", r.method, err)
		}
		*r.dst = domain.FromWei(vals[0].(*big.Int))
	}

	vals, err := v.client.call(ctx, v.contract, vaultABI, "minTradeAmount")
	if err != nil {
		return domain.TradingLimits{}, fmt.Errorf("onchain.TradingLimits: minTradeAmount: %w", err)
	}
	limits.MinTradeAmount = int64(domain.FromWei(vals[0].(*big.Int)))

	return limits, nil
}
