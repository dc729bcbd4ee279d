package domain

import "time"

// User is an authenticated account together with its onboarding state and friend contacts.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email,omitempty"`
	DisplayName           string     `json:"displayName,omitempty"`
	PhotoURL              string     `json:"photoURL,omitempty"`
	WalletAddress         *string    `json:"walletAddress,omitempty"`
	OnboardingComplete    bool       `json:"onboardingComplete"`
	TutorialCompleted     bool       `json:"tutorialCompleted"`
	FriendsPhones         []string   `json:"friendsPhones"`
	CreatedAt             time.Time  `json:"createdAt"`
	OnboardingCompletedAt *time.Time `json:"onboardingCompletedAt,omitempty"`
	TutorialCompletedAt   *time.Time `json:"tutorialCompletedAt,omitempty"`
	WalletConnectedAt     *time.Time `json:"walletConnectedAt,omitempty"`
	LastMintAt            *time.Time `json:"lastMintAt,omitempty"`
}

// Profile carries identity attributes supplied by the authentication provider on first sign-in.
type Profile struct {
	Email       string `json:"email" validate:"omitempty,email"`
	DisplayName string `json:"displayName" validate:"max=200"`
	PhotoURL    string `json:"photoURL" validate:"omitempty,url"`
}

// SessionState is the client-facing view of a signed-in (or signed-out) user.
type SessionState struct {
	SignedIn           bool     `json:"signedIn"`
	UserID             string   `json:"userId,omitempty"`
	OnboardingComplete bool     `json:"onboardingComplete"`
	TutorialCompleted  bool     `json:"tutorialCompleted"`
	FriendsPhones      []string `json:"friendsPhones"`
	WalletAddress      *string  `json:"walletAddress"`
}
