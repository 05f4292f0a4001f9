package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract surfaces, trimmed to the functions the gateway calls.
const routerABIJSON = `[
  {"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
   "inputs":[
     {"name":"amountIn","type":"uint256"},
     {"name":"amountOutMin","type":"uint256"},
     {"name":"routes","type":"tuple[]","components":[
       {"name":"from","type":"address"},
       {"name":"to","type":"address"},
       {"name":"stable","type":"bool"}]},
     {"name":"to","type":"address"},
     {"name":"deadline","type":"uint256"}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"addLiquidity","stateMutability":"nonpayable",
   "inputs":[
     {"name":"tokenA","type":"address"},
     {"name":"tokenB","type":"address"},
     {"name":"stable","type":"bool"},
     {"name":"amountADesired","type":"uint256"},
     {"name":"amountBDesired","type":"uint256"},
     {"name":"amountAMin","type":"uint256"},
     {"name":"amountBMin","type":"uint256"},
     {"name":"to","type":"address"},
     {"name":"deadline","type":"uint256"}],
   "outputs":[
     {"name":"amountA","type":"uint256"},
     {"name":"amountB","type":"uint256"},
     {"name":"liquidity","type":"uint256"}]},
  {"type":"function","name":"removeLiquidity","stateMutability":"nonpayable",
   "inputs":[
     {"name":"tokenA","type":"address"},
     {"name":"tokenB","type":"address"},
     {"name":"stable","type":"bool"},
     {"name":"liquidity","type":"uint256"},
     {"name":"amountAMin","type":"uint256"},
     {"name":"amountBMin","type":"uint256"},
     {"name":"to","type":"address"},
     {"name":"deadline","type":"uint256"}],
   "outputs":[
     {"name":"amountA","type":"uint256"},
     {"name":"amountB","type":"uint256"}]},
  {"type":"function","name":"getAmountsOut","stateMutability":"view",
   "inputs":[
     {"name":"amountIn","type":"uint256"},
     {"name":"routes","type":"tuple[]","components":[
       {"name":"from","type":"address"},
       {"name":"to","type":"address"},
       {"name":"stable","type":"bool"}]}],
   "outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

const factoryABIJSON = `[
  {"type":"function","name":"getPool","stateMutability":"view",
   "inputs":[
     {"name":"tokenA","type":"address"},
     {"name":"tokenB","type":"address"},
     {"name":"stable","type":"bool"}],
   "outputs":[{"name":"pool","type":"address"}]}
]`

const voterABIJSON = `[
  {"type":"function","name":"gauges","stateMutability":"view",
   "inputs":[{"name":"pool","type":"address"}],
   "outputs":[{"name":"","type":"address"}]}
]`

const gaugeABIJSON = `[
  {"type":"function","name":"deposit","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[
     {"name":"owner","type":"address"},
     {"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[
     {"name":"spender","type":"address"},
     {"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const poolABIJSON = `[
  {"type":"function","name":"token0","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"token1","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getReserves","stateMutability":"view",
   "inputs":[],
   "outputs":[
     {"name":"reserve0","type":"uint256"},
     {"name":"reserve1","type":"uint256"},
     {"name":"blockTimestampLast","type":"uint256"}]},
  {"type":"function","name":"totalSupply","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const multicallABIJSON = `[
  {"type":"function","name":"aggregate3","stateMutability":"payable",
   "inputs":[
     {"name":"calls","type":"tuple[]","components":[
       {"name":"target","type":"address"},
       {"name":"allowFailure","type":"bool"},
       {"name":"callData","type":"bytes"}]}],
   "outputs":[
     {"name":"returnData","type":"tuple[]","components":[
       {"name":"success","type":"bool"},
       {"name":"returnData","type":"bytes"}]}]}
]`

var (
	routerABI    = mustParseABI(routerABIJSON)
	factoryABI   = mustParseABI(factoryABIJSON)
	voterABI     = mustParseABI(voterABIJSON)
	gaugeABI     = mustParseABI(gaugeABIJSON)
	erc20ABI     = mustParseABI(erc20ABIJSON)
	poolABI      = mustParseABI(poolABIJSON)
	multicallABI = mustParseABI(multicallABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
