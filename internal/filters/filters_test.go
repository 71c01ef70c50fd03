package filters

import (
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"github.com/fanapp/fanapp-personalization/internal/awssdk/dynamo"
)

const (
	profileLiteral = `{"dynamodb":{"Keys":{"sk":{"S":["fanApp#onboarding#"]}}},"eventName":[{"anything-but":["REMOVE"]}]}`
	contentLiteral = `{"eventName":[{"anything-but":["REMOVE"]}]}`
)

func TestProfileOnboarding_ExactLiteral(t *testing.T) {
	got, err := ProfileOnboarding().JSON()
	require.NoError(t, err)
	require.Equal(t, profileLiteral, got)
}

func TestContentUpserts_ExactLiteral(t *testing.T) {
	got, err := ContentUpserts().JSON()
	require.NoError(t, err)
	require.Equal(t, contentLiteral, got)
}

func TestProfileOnboarding_Matches(t *testing.T) {
	p := ProfileOnboarding()
	require.True(t, p.Matches(Record("INSERT", map[string]string{"pk": "user#1", "sk": OnboardingSortKey})))
	require.True(t, p.Matches(Record("MODIFY", map[string]string{"pk": "user#1", "sk": OnboardingSortKey})))
	require.False(t, p.Matches(Record("REMOVE", map[string]string{"pk": "user#1", "sk": OnboardingSortKey})))
	// exact match, not a prefix match
	require.False(t, p.Matches(Record("INSERT", map[string]string{"pk": "user#1", "sk": OnboardingSortKey + "step2"})))
	require.False(t, p.Matches(Record("INSERT", map[string]string{"pk": "user#1", "sk": "fanApp#favourites#"})))
	require.False(t, p.Matches(Record("INSERT", map[string]string{"pk": "user#1"})))
}

func TestProfileOnboarding_NonStringKeyDropped(t *testing.T) {
	rec := Record("INSERT", nil)
	rec.Change.Keys = map[string]events.DynamoDBAttributeValue{"sk": events.NewNumberAttribute("1")}
	require.False(t, ProfileOnboarding().Matches(rec))
}

func TestContentUpserts_Matches(t *testing.T) {
	p := ContentUpserts()
	require.True(t, p.Matches(Record("INSERT", map[string]string{"contentId": "a"})))
	require.True(t, p.Matches(Record("MODIFY", map[string]string{"contentId": "a"})))
	require.False(t, p.Matches(Record("REMOVE", map[string]string{"contentId": "a"})))
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern(profileLiteral)
	require.NoError(t, err)
	require.Equal(t, ProfileOnboarding(), p)

	c, err := ParsePattern(contentLiteral)
	require.NoError(t, err)
	require.Equal(t, ContentUpserts(), c)

	_, err = ParsePattern(`{"dynamodb":{"Keys":{"sk":{"N":["1"]}}}}`)
	require.Error(t, err)
	_, err = ParsePattern(`nope`)
	require.Error(t, err)
}

func TestProfileOnboarding_MatchesTableKey(t *testing.T) {
	keys, err := dynamo.StringKeys(dynamo.ProfileOnboardingKey("canary"))
	require.NoError(t, err)
	require.True(t, ProfileOnboarding().Matches(Record("INSERT", keys)))

	keys, err = dynamo.StringKeys(dynamo.ContentKey("video-1"))
	require.NoError(t, err)
	require.True(t, ContentUpserts().Matches(Record("MODIFY", keys)))
}
