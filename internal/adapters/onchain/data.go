package onchain

// data.go — PositionalMarketData contract client: the batch price and
// price-impact tables for all active markets. Optimism's older contract
// names the price getter getBasePricesForAllActiveMarkets; the newer
// deployments on Arbitrum/BSC/Polygon use getPricesForAllActiveMarkets with
// an identical return shape.

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/vaultbot/internal/domain"
)

var dataABI abi.ABI

func init() {
	var err error
	dataABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getBasePricesForAllActiveMarkets",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{
				"name": "",
				"type": "tuple[]",
				"components": [
					{"name": "market", "type": "address"},
					{"name": "upPrice", "type": "uint256"},
					{"name": "downPrice", "type": "uint256"}
				]
			}]
		},
		{
			"name": "getPricesForAllActiveMarkets",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{
				"name": "",
				"type": "tuple[]",
				"components": [
					{"name": "market", "type": "address"},
					{"name": "upPrice", "type": "uint256"},
					{"name": "downPrice", "type": "uint256"}
				]
			}]
		},
		{
			"name": "getPriceImpactForAllActiveMarkets",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{
				"name": "",
				"type": "tuple[]",
				"components": [
					{"name": "market", "type": "address"},
					{"name": "upPriceImpact", "type": "int256"},
					{"name": "downPriceImpact", "type": "int256"}
				]
			}]
		}
	]`))
	if err != nil {
		panic("market data abi parse: " + err.Error())
	}
}

// marketPricesEntry mirrors the contract's ActiveMarketsPrices struct.
type marketPricesEntry struct {
	Market    common.Address
	UpPrice   *big.Int
	DownPrice *big.Int
}

// marketImpactEntry mirrors the contract's ActiveMarketsPriceImpact struct.
type marketImpactEntry struct {
	Market          common.Address
	UpPriceImpact   *big.Int
	DownPriceImpact *big.Int
}

// DataClient implements ports.MarketData against PositionalMarketData.
type DataClient struct {
	client   *Client
	contract common.Address
	network  domain.Network

	priceMethod string
}

// NewDataClient creates a market-data client for the network.
func NewDataClient(client *Client, network domain.Network) *DataClient {
	priceMethod := "getPricesForAllActiveMarkets"
	if network.Name == "optimism" {
		priceMethod = "getBasePricesForAllActiveMarkets"
	}
	return &DataClient{
		client:      client,
		contract:    common.HexToAddress(network.DataContract),
		network:     network,
		priceMethod: priceMethod,
	}
}

// FetchPrices returns the UP/DOWN price table keyed by lower-case market
// address, descaled with the network's quote decimals.
func (d *DataClient) FetchPrices(ctx context.Context) (map[string]domain.MarketPrices, error) {
	vals, err := d.client.call(ctx, d.contract, dataABI, d.priceMethod)
	if err != nil {
		return nil, fmt.Errorf("onchain.FetchPrices: %w", err)
	}

	entries := *abi.ConvertType(vals[0], new([]marketPricesEntry)).(*[]marketPricesEntry)

	prices := make(map[string]domain.MarketPrices, len(entries))
	for _, e := range entries {
		prices[strings.ToLower(e.Market.Hex())] = domain.MarketPrices{
			Up:   domain.FromFixed(e.UpPrice, d.network.QuoteDecimals),
			Down: domain.FromFixed(e.DownPrice, d.network.QuoteDecimals),
		}
	}
	return prices, nil
}

// FetchImpacts returns the UP/DOWN skew impact table keyed by lower-case
// market address. Impacts are 18-decimal on every network.
func (d *DataClient) FetchImpacts(ctx context.Context) (map[string]domain.MarketImpacts, error) {
	vals, err := d.client.call(ctx, d.contract, dataABI, "getPriceImpactForAllActiveMarkets")
	if err != nil {
		return nil, fmt.Errorf("onchain.FetchImpacts: %w", err)
	}

	entries := *abi.ConvertType(vals[0], new([]marketImpactEntry)).(*[]marketImpactEntry)

	impacts := make(map[string]domain.MarketImpacts, len(entries))
	for _, e := range entries {
		impacts[strings.ToLower(e.Market.Hex())] = domain.MarketImpacts{
			Up:   domain.FromWei(e.UpPriceImpact),
			Down: domain.FromWei(e.DownPriceImpact),
		}
	}
	return impacts, nil
}
