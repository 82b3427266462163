package jupiter

// QuoteParams contains the parameters for requesting a quote.
type QuoteParams struct {
	InputMint   string // input token mint address
	OutputMint  string // output token mint address
	Amount      uint64 // amount in base units (lamports for SOL)
	SlippageBps int    // slippage tolerance in basis points
}

// Quote is the aggregator's priced, time-bounded estimate for a swap.
// It must be passed back verbatim when building the swap transaction.
type Quote struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []RoutePlan `json:"routePlan"`
	ContextSlot          int64       `json:"contextSlot,omitempty"`
	TimeTaken            float64     `json:"timeTaken,omitempty"`
}

// RoutePlan describes a single step in the swap route.
type RoutePlan struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

// SwapInfo contains details about a swap step.
type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

// swapRequest is the POST /swap request body.
type swapRequest struct {
	QuoteResponse             *Quote         `json:"quoteResponse"`
	UserPublicKey             string         `json:"userPublicKey"`
	WrapAndUnwrapSol          bool           `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool           `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports prioritization `json:"prioritizationFeeLamports"`
}

// prioritization asks the aggregator to pick a priority fee, bounded below.
type prioritization struct {
	PriorityLevelWithMaxLamports priorityLevel `json:"priorityLevelWithMaxLamports"`
}

type priorityLevel struct {
	MaxLamports   uint64 `json:"maxLamports"`
	PriorityLevel string `json:"priorityLevel"`
}

// SwapTransaction is the ready-to-sign transaction built from a quote.
type SwapTransaction struct {
	SwapTransaction           string `json:"swapTransaction"` // base64-encoded unsigned transaction
	LastValidBlockHeight      int64  `json:"lastValidBlockHeight"`
	PrioritizationFeeLamports int64  `json:"prioritizationFeeLamports,omitempty"`
	ComputeUnitLimit          int    `json:"computeUnitLimit,omitempty"`
}

// WSOLMint is the wrapped native SOL mint, used as the input asset for buys.
const WSOLMint = "So11111111111111111111111111111111111111112"
