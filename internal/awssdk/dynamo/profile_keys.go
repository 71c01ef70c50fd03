package dynamo

import "fmt"

// Profile table key attributes.
const (
	ProfilePK = "pk"
	ProfileSK = "sk"
)

// OnboardingSK is the sort key of the row written when a fan completes
// onboarding. Stream consumers only react to this row.
const OnboardingSK = "fanApp#onboarding#"

// ProfileUserPK returns the partition key of a fan's profile rows.
func ProfileUserPK(userID string) string { return fmt.Sprintf("USER#%s", userID) }

// ProfileKey returns a full pk/sk pair for a profile row.
func ProfileKey(pk, sk string) Item {
	return Item{
		ProfilePK: StringAttribute(pk),
		ProfileSK: StringAttribute(sk),
	}
}

// ProfileOnboardingKey returns the key of a fan's onboarding row.
func ProfileOnboardingKey(userID string) Item {
	return ProfileKey(ProfileUserPK(userID), OnboardingSK)
}
