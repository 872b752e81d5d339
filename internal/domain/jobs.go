package domain

import (
	"fmt"
	"time"
)

// JobName identifies the kind of work a job carries
type JobName string

const (
	JobProcessBlock             JobName = "PROCESS_BLOCK"
	JobFindFinalizedBlocks      JobName = "FIND_FINALIZED_BLOCKS"
	JobFindMissingBlocks        JobName = "FIND_MISSING_BLOCKS"
	JobProcessNftOwners         JobName = "PROCESS_NFT_OWNERS"
	JobRefetchNftHolders        JobName = "REFETCH_NFT_HOLDERS"
	JobRefetchNftHoldersGenTask JobName = "REFETCH_NFT_HOLDERS_GEN_TASKS"
	JobUpdateTokenPricing       JobName = "UPDATE_TOKEN_PRICING_DETAILS"
	JobCheckVerifiedContracts   JobName = "CHECK_FOR_NEWLY_VERIFIED_CONTRACTS"
	JobUpdateStakingValidators  JobName = "UPDATE_STAKING_VALIDATORS"
)

// Job priorities, lower is more urgent
const (
	PriorityBlock     = 1
	PriorityRecurring = 3
	PriorityRefetch   = 6
)

// Job is a unit of work handed to the durable queue.
// DedupeKey prevents a second admission of the same logical work while the first is outstanding.
// A failed (archived) job never holds its key; a completed one holds it only when KeepCompleted is set.
type Job struct {
	Name           JobName
	Payload        any
	DedupeKey      string
	Priority       int
	RepeatInterval time.Duration
	KeepCompleted  bool
}

// BlockJobPayload is the payload of PROCESS_BLOCK
type BlockJobPayload struct {
	BlockNumber uint64 `json:"blockNumber"`
}

// RefetchHoldersPayload is the payload of REFETCH_NFT_HOLDERS
type RefetchHoldersPayload struct {
	ContractAddress string  `json:"contractAddress"`
	TotalSupply     *uint64 `json:"totalSupply,omitempty"`
}

// BlockJobKey returns the dedupe key of the job processing block n
func BlockJobKey(blockNumber uint64) string {
	return fmt.Sprintf("BLOCK_%d", blockNumber)
}

// NewBlockJob returns the PROCESS_BLOCK job for block n
func NewBlockJob(blockNumber uint64) Job {
	return Job{
		Name:          JobProcessBlock,
		Payload:       BlockJobPayload{BlockNumber: blockNumber},
		DedupeKey:     BlockJobKey(blockNumber),
		Priority:      PriorityBlock,
		KeepCompleted: true,
	}
}

// NewRefetchHoldersJob returns the REFETCH_NFT_HOLDERS job for one collection
func NewRefetchHoldersJob(collection Collection) Job {
	address := NormalizeAddress(collection.ContractAddress)
	return Job{
		Name: JobRefetchNftHolders,
		Payload: RefetchHoldersPayload{
			ContractAddress: address,
			TotalSupply:     collection.TotalSupply,
		},
		DedupeKey: fmt.Sprintf("%s_%s", JobRefetchNftHolders, address),
		Priority:  PriorityRefetch,
	}
}

// NewRecurringJob returns a repeating job keyed by its own name
func NewRecurringJob(name JobName, interval time.Duration) Job {
	return Job{
		Name:           name,
		DedupeKey:      string(name),
		Priority:       PriorityRecurring,
		RepeatInterval: interval,
	}
}
