package patch

// Shard patches. Append new entries at the end with the next ordinal; never
// reorder, renumber or delete an entry, even once its code is gone.
var (
	// Imported from PatchBits. Ordinal == historical bit position.
	TeleporterCreatureFix  = Patch{Ordinal: 0, Key: "TeleporterCreatureFix"}
	SpawnerDelayNormalize  = Patch{Ordinal: 1, Key: "SpawnerDelayNormalize"}
	ResourcePoolReprice    = Patch{Ordinal: 2, Key: "ResourcePoolReprice"}
	RegionGuardReset       = Patch{Ordinal: 3, Key: "RegionGuardReset"}
	ContainerWeightRecalc  = Patch{Ordinal: 4, Key: "ContainerWeightRecalc"}
	OrphanedItemCleanup    = Patch{Ordinal: 5, Key: "OrphanedItemCleanup"}
	MobileThreatLevelInit  = Patch{Ordinal: 6, Key: "MobileThreatLevelInit"}
	BankBoxTitheFix        = Patch{Ordinal: 7, Key: "BankBoxTitheFix"}

	// Table era.
	SpawnerNextSpawnReseed = Patch{Ordinal: 8, Key: "SpawnerNextSpawnReseed"}
	TeleporterLinkRepair   = Patch{Ordinal: 9, Key: "TeleporterLinkRepair"}
	PricingTableV2         = Patch{Ordinal: 10, Key: "PricingTableV2"}
)

// Dynamic is the shard's patch catalog.
var Dynamic = MustCatalog(8,
	TeleporterCreatureFix,
	SpawnerDelayNormalize,
	ResourcePoolReprice,
	RegionGuardReset,
	ContainerWeightRecalc,
	OrphanedItemCleanup,
	MobileThreatLevelInit,
	BankBoxTitheFix,
	SpawnerNextSpawnReseed,
	TeleporterLinkRepair,
	PricingTableV2,
)
