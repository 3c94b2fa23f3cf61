package datastore

import "fmt"

func domainKey(registeredDomain string) string {
	return "domain:" + registeredDomain
}

func readyKey(shard int) string {
	return fmt.Sprintf("ready:%d", shard)
}

func visitedKey(hash16 string) string {
	return "visited:" + hash16
}

func heartbeatKey(shard int) string {
	return fmt.Sprintf("heartbeat:%d", shard)
}

func claimedKey(shard int) string {
	return fmt.Sprintf("claimed:%d", shard)
}

const (
	bloomKey        = "seen:bloom"
	reshardFlagKey  = "reshard_in_progress"
	seedsSetKey     = "seeds:set"
	stopRequestedKey = "stop_requested"
)
