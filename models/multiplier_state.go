package models

// MultiplierState tracks payout eligibility and the multiplier stage of an account
type MultiplierState struct {
	Stage                       int `db:"multiplier_stage"`
	RemainingDelay              int `db:"remaining_delay"`
	RemainingOfflinePayouts     int `db:"remaining_offline_payouts"`
	RemainingOfflineBeforeReset int `db:"remaining_offline_before_reset"`
}
