package onchain

// amm.go — ThalesAMM contract client: the quote/impact read primitives the
// sizer converges against, plus the buyFromAMM trade submission.

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

// additionalSlippage tolerated on buyFromAMM, fixed-point 1e18 (0.25%).
var additionalSlippage = big.NewInt(2_500_000_000_000_000)

var ammABI abi.ABI

func init() {
	var err error
	ammABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "availableToBuyFromAMM",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "market", "type": "address"},
				{"name": "position", "type": "uint8"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "buyPriceImpact",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "market", "type": "address"},
				{"name": "position", "type": "uint8"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "int256"}]
		},
		{
			"name": "buyFromAmmQuote",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "market", "type": "address"},
				{"name": "position", "type": "uint8"},
				{"name": "amount", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "buyFromAMM",
			"type": "function",
			"inputs": [
				{"name": "market", "type": "address"},
				{"name": "position", "type": "uint8"},
				{"name": "amount", "type": "uint256"},
				{"name": "expectedPayout", "type": "uint256"},
				{"name": "additionalSlippage", "type": "uint256"}
			],
			"outputs": []
		}
	]`))
	if err != nil {
		panic("amm abi parse: " + err.Error())
	}
}

// AMMClient implements ports.AMMQuoter and ports.TradeSubmitter against the
// ThalesAMM contract of one network.
type AMMClient struct {
	client   *Client
	contract common.Address
	network  domain.Network
}

// NewAMMClient creates an AMM client for the network's AMM contract.
func NewAMMClient(client *Client, network domain.Network) *AMMClient {
	return &AMMClient{
		client:   client,
		contract: common.HexToAddress(network.AMMContract),
		network:  network,
	}
}

// AvailableToBuy returns the max token amount the AMM will sell for a side.
// Always 18-decimal fixed-point on every network.
func (a *AMMClient) AvailableToBuy(ctx context.Context, market string, pos domain.Position) (float64, error) {
	vals, err := a.client.call(ctx, a.contract, ammABI, "availableToBuyFromAMM",
		common.HexToAddress(market), uint8(pos))
	if err != nil {
		return 0, fmt.Errorf("onchain.AvailableToBuy: %w", err)
	}
	return domain.FromWei(vals[0].(*big.Int)), nil
}

// BuyPriceImpact returns the skew impact of a hypothetical buy. The contract
// returns a signed value: negative impact means the buy reduces skew.
func (a *AMMClient) BuyPriceImpact(ctx context.Context, market string, pos domain.Position, amount int64) (float64, error) {
	vals, err := a.client.call(ctx, a.contract, ammABI, "buyPriceImpact",
		common.HexToAddress(market), uint8(pos), domain.ToWei(amount))
	if err != nil {
		return 0, fmt.Errorf("onchain.BuyPriceImpact: %w", err)
	}
	return domain.FromWei(vals[0].(*big.Int)), nil
}

// BuyQuote returns the sUSD cost of buying the amount. Quote decimals vary
// per network: 18 on Optimism/BSC, 6 on Arbitrum/Polygon.
func (a *AMMClient) BuyQuote(ctx context.Context, market string, pos domain.Position, amount int64) (float64, error) {
	vals, err := a.client.call(ctx, a.contract, ammABI, "buyFromAmmQuote",
		common.HexToAddress(market), uint8(pos), domain.ToWei(amount))
	if err != nil {
		return 0, fmt.Errorf("onchain.BuyQuote: %w", err)
	}
	return domain.FromFixed(vals[0].(*big.Int), a.network.QuoteDecimals), nil
}

// BuyFromAMM submits the buy transaction and blocks until mined. The
// expected payout is the sizer's final quote re-scaled to the network's
// quote decimals; the contract enforces it within additionalSlippage.
func (a *AMMClient) BuyFromAMM(ctx context.Context, trade domain.EligibleTrade, amount int64, expectedQuote float64) (string, error) {
	quoteScaled, _ := new(big.Float).Mul(
		new(big.Float).SetFloat64(expectedQuote),
		new(big.Float).SetFloat64(a.network.QuoteScale()),
	).Int(nil)

	callData, err := ammABI.Pack("buyFromAMM",
		common.HexToAddress(trade.MarketAddress),
		uint8(trade.Position),
		domain.ToWei(amount),
		quoteScaled,
		additionalSlippage,
	)
	if err != nil {
		return "", fmt.Errorf("onchain.BuyFromAMM: pack: %w", err)
	}

	receipt, txHash, err := a.client.submit(ctx, a.contract, callData)
	if err != nil {
		return txHash, fmt.Errorf("onchain.BuyFromAMM: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash, fmt.Errorf("onchain.BuyFromAMM: tx reverted: %s", txHash)
	}
	return txHash, nil
}
