package domain

const (
	// Blockchain constants
	ETHEREUM_ZERO_ADDRESS = "0x0000000000000000000000000000000000000000"

	// DEFAULT_MULTICALL3_ADDRESS is the canonical Multicall3 deployment address
	DEFAULT_MULTICALL3_ADDRESS = "0xcA11bde05977b3631167028862bE2a173976CA11"

	// Sync defaults
	DEFAULT_SYNC_FETCH_LIMIT    = 100000
	DEFAULT_SYNC_SUB_BATCH_SIZE = 5000

	// MAX_NFT_MINT_RANGE bounds the number of tokens a single nft mint event may create
	MAX_NFT_MINT_RANGE = 10000

	// Reconciliation defaults
	DEFAULT_SINGLE_WINDOW_SIZE  = 1000
	DEFAULT_BALANCE_BATCH_SIZE  = 100
	RECONCILE_PROGRESS_KEY_BASE = "reconcile_progress:"
	RECONCILE_HOLDERS_KEY_BASE  = "reconcile_holders:"

	// Scheduler state keys
	LAST_STORED_BLOCK_KEY = "last_stored_block"
	MISSING_BLOCKS_KEY    = "missing_blocks"
)
