package dynamo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	awserrors "github.com/fanapp/fanapp-personalization/internal/awssdk/errors"
	"github.com/fanapp/fanapp-personalization/internal/testutil"
)

func TestContentKey(t *testing.T) {
	keys, err := StringKeys(ContentKey("video-1"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"contentId": "video-1"}, keys)
}

func TestProfileKeys(t *testing.T) {
	require.Equal(t, "USER#u1", ProfileUserPK("u1"))
	keys, err := StringKeys(ProfileOnboardingKey("u1"))
	require.NoError(t, err)
	require.Equal(t, map[string]string{"pk": "USER#u1", "sk": "fanApp#onboarding#"}, keys)
}

func TestStringKeysRejectsNonString(t *testing.T) {
	_, err := StringKeys(Item{"n": &types.AttributeValueMemberN{Value: "1"}})
	require.ErrorContains(t, err, "attribute n is *types.AttributeValueMemberN, not a string")
}

func TestDescribe(t *testing.T) {
	c := &testutil.FakeDynamoClient{Out: &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:       aws.String("fan-app-p13n-content-data-cache"),
		LatestStreamArn: aws.String("arn:aws:dynamodb:eu-west-1:1:table/t/stream/x"),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("contentId"), KeyType: types.KeyTypeHash},
		},
		StreamSpecification: &types.StreamSpecification{StreamEnabled: aws.Bool(true), StreamViewType: types.StreamViewTypeNewImage},
	}}}
	l := &testutil.BufferLogger{}
	shape, err := Describe(context.Background(), c, "fan-app-p13n-content-data-cache", l)
	require.NoError(t, err)
	require.Equal(t, "fan-app-p13n-content-data-cache", aws.ToString(c.In.TableName))
	require.Equal(t, "contentId", shape.HashKey)
	require.Empty(t, shape.RangeKey)
	require.True(t, shape.StreamEnabled)
	require.Equal(t, "NEW_IMAGE", shape.StreamViewType)
	require.NotEmpty(t, l.Calls, "expected logs to be emitted")
}

func TestDescribeClassifiesErrors(t *testing.T) {
	c := &testutil.FakeDynamoClient{Err: &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "missing"}}
	l := &testutil.BufferLogger{}
	_, err := Describe(context.Background(), c, "absent", l)
	require.True(t, awserrors.IsNotFound(err), "got %v", err)
	require.True(t, l.Has("warn", "dynamo.describe.failed"), "entries: %v", l.Entries)
}

func TestDescribeRequiresName(t *testing.T) {
	_, err := Describe(context.Background(), &testutil.FakeDynamoClient{}, "", nil)
	require.ErrorContains(t, err, "requires a table name")
}
