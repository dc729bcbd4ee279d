package user

import "github.com/Proton-105/mintwatch/internal/domain"

// OnAuthChange maps the signed-in user, or nil after sign-out, to the state a client
// renders. It holds no state of its own.
func OnAuthChange(u *domain.User) domain.SessionState {
	if u == nil {
		return domain.SessionState{FriendsPhones: []string{}}
	}

	phones := append([]string{}, u.FriendsPhones...)

	return domain.SessionState{
		SignedIn:           true,
		UserID:             u.ID,
		OnboardingComplete: u.OnboardingComplete,
		TutorialCompleted:  u.TutorialCompleted,
		FriendsPhones:      phones,
		WalletAddress:      u.WalletAddress,
	}
}
