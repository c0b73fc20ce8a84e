package query

// VaultResponse is one vault row for API queries. Numeric fields are decimal
// strings since balances are 256-bit values.
type VaultResponse struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	Token        string `json:"token"`
	VaultID      string `json:"vault_id"`
	Balance      string `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// OrderResponse is one order row for API queries.
type OrderResponse struct {
	Hash         string   `json:"hash"`
	Active       bool     `json:"active"`
	Owner        string   `json:"owner"`
	Nonce        string   `json:"nonce"`
	InputVaults  []string `json:"input_vaults"`
	OutputVaults []string `json:"output_vaults"`
	OrderBytes   string   `json:"order_bytes"`
	AsOfSequence int64    `json:"as_of_sequence"`
}

// DepositResponse is one deposit audit record for API queries.
type DepositResponse struct {
	ID              string `json:"id"`
	Sender          string `json:"sender"`
	Token           string `json:"token"`
	Vault           string `json:"vault"`
	Amount          string `json:"amount"`
	OldVaultBalance string `json:"old_vault_balance"`
	NewVaultBalance string `json:"new_vault_balance"`
	TxHash          string `json:"tx_hash"`
}

// WithdrawalResponse is one withdrawal audit record for API queries.
// TargetAmount is the requested amount; Amount is what was debited.
type WithdrawalResponse struct {
	ID              string `json:"id"`
	Sender          string `json:"sender"`
	Token           string `json:"token"`
	Vault           string `json:"vault"`
	Amount          string `json:"amount"`
	TargetAmount    string `json:"target_amount"`
	OldVaultBalance string `json:"old_vault_balance"`
	NewVaultBalance string `json:"new_vault_balance"`
	TxHash          string `json:"tx_hash"`
}

// TradeResponse joins a trade with its take-order context.
type TradeResponse struct {
	ID           string `json:"id"`
	OrderHash    string `json:"order_hash"`
	Sender       string `json:"sender"`
	TakerInput   string `json:"taker_input"`
	TakerOutput  string `json:"taker_output"`
	Bounty       string `json:"bounty"`
	TxHash       string `json:"tx_hash"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// TradeChangeResponse is one balance-change leg of a trade.
type TradeChangeResponse struct {
	ID         string `json:"id"`
	Trade      string `json:"trade"`
	Vault      string `json:"vault"`
	Direction  string `json:"direction"`
	Amount     string `json:"amount"`
	OldBalance string `json:"old_balance"`
	NewBalance string `json:"new_balance"`
}

// TokenVolumeResponse is the projected per-token volume aggregate.
type TokenVolumeResponse struct {
	Token          string `json:"token"`
	DepositVolume  string `json:"deposit_volume"`
	WithdrawVolume string `json:"withdraw_volume"`
	TradeVolume    string `json:"trade_volume"`
}

// StatsResponse summarizes ledger-wide state.
type StatsResponse struct {
	VaultCount   int64                 `json:"vault_count"`
	OrderCount   int64                 `json:"order_count"`
	ActiveOrders int64                 `json:"active_orders"`
	TradeCount   int64                 `json:"trade_count"`
	TokenVolumes []TokenVolumeResponse `json:"token_volumes"`
	AsOfSequence int64                 `json:"as_of_sequence"`
}

// IntegrityReport is the result of a hash-chain verification pass.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	LatestSequence  int64   `json:"latest_sequence"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
}
