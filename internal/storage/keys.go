package storage

// Persisted layout. Values are JSON unless noted.
const (
	KeyBalance       = "economy.balance"   // decimal integer
	KeyInventory     = "economy.inventory" // []InventoryItem
	KeyBoosters      = "economy.boosters"  // []Booster
	KeyPending       = "transactions.pending"
	KeyHistory       = "transactions.history"
	KeyPurchases     = "purchases.pending"
	KeyLastSave      = "meta.last_save" // unix milliseconds
	KeySchemaVersion = "meta.schema_version"

	// Session tier.
	KeyBackupBalance = "backup.balance"
	KeyBackupSavedAt = "backup.saved_at" // unix milliseconds

	// Layout written by releases before the keyed schema existed.
	LegacyKeyBalance = "wallet_balance"
	LegacyKeyInv     = "wallet_inventory"
	LegacyKeyQueue   = "wallet_offline_queue"
)

// SchemaVersion is the layout version written by this release.
const SchemaVersion = 2
