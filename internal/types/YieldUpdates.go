/*

This file contains the types for the on-chain yield oracle: contract statistics and the record of each update attempt.

*/

package types

import "time"

// ContractStats mirrors the getStats() view of the yield contract, converted to human units.
type ContractStats struct {
	TotalDeposits       float64   `json:"total_deposits"`        // USDC
	TotalFeesCollected  float64   `json:"total_fees_collected"`  // USDC
	TotalYieldGenerated float64   `json:"total_yield_generated"` // USDC
	ContractBalance     float64   `json:"contract_balance"`      // USDC
	CurrentAPYBps       int64     `json:"current_apy_bps"`
	CurrentAPY          float64   `json:"current_apy"` // Percent
	LastUpdate          time.Time `json:"last_update"`
}

type YieldUpdateStatus string

const (
	YieldUpdateSubmitted YieldUpdateStatus = "submitted"
	YieldUpdateSkipped   YieldUpdateStatus = "skipped"
	YieldUpdateFailed    YieldUpdateStatus = "failed"
)

// YieldUpdate is one decision of the yield updater loop.
type YieldUpdate struct {
	ID            int64             `json:"id,omitempty"`
	CycleID       string            `json:"cycle_id"`
	APYBps        int64             `json:"apy_bps"`
	PreviousBps   int64             `json:"previous_bps"`
	Source        string            `json:"source"`
	Status        YieldUpdateStatus `json:"status"`
	TxHash        string            `json:"tx_hash,omitempty"`
	Message       string            `json:"message,omitempty"`
	LiveProtocols int               `json:"live_protocols"`
	Timestamp     time.Time         `json:"timestamp"`
}
