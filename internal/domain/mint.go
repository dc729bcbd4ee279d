package domain

import "time"

// MintLifetime is how long a minted record stays active.
const MintLifetime = 24 * time.Hour

// MintRecord is one minted artifact owned by a user. Only IsActive and NotifiedAt
// change after creation.
type MintRecord struct {
	TokenID         int64      `json:"tokenId"`
	TxHash          string     `json:"txHash"`
	Payload         string     `json:"payload"`
	DurationSeconds int64      `json:"durationSeconds"`
	WalletAddress   string     `json:"walletAddress"`
	MintedAt        time.Time  `json:"mintedAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	IsActive        bool       `json:"isActive"`
	NotifiedAt      *time.Time `json:"notifiedAt,omitempty"`
}

// MintInput is the data the minting flow reports for a new record.
type MintInput struct {
	TokenID         int64  `json:"tokenId" validate:"gte=0"`
	TxHash          string `json:"txHash" validate:"required,max=130"`
	Payload         string `json:"payload" validate:"max=2000"`
	DurationSeconds int64  `json:"durationSeconds" validate:"gte=0"`
	WalletAddress   string `json:"walletAddress" validate:"required,max=128"`
}

// NewMintRecord builds an active record minted at mintedAt.
func NewMintRecord(in MintInput, mintedAt time.Time) MintRecord {
	mintedAt = mintedAt.UTC()

	return MintRecord{
		TokenID:         in.TokenID,
		TxHash:          in.TxHash,
		Payload:         in.Payload,
		DurationSeconds: in.DurationSeconds,
		WalletAddress:   in.WalletAddress,
		MintedAt:        mintedAt,
		ExpiresAt:       mintedAt.Add(MintLifetime),
		IsActive:        true,
	}
}

// ExpiredAt reports whether the record is still active but past its expiry at now.
// Expiry is inclusive: ExpiresAt == now counts as expired.
func (r MintRecord) ExpiredAt(now time.Time) bool {
	return r.IsActive && !r.ExpiresAt.After(now)
}
