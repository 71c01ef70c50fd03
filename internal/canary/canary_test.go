package canary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	awserrors "github.com/fanapp/fanapp-personalization/internal/awssdk/errors"
	"github.com/fanapp/fanapp-personalization/internal/filters"
	"github.com/fanapp/fanapp-personalization/internal/testutil"
)

const (
	profileFn = "fan-app-p13n-user-prefs-incremental-data-ingestion"
	contentFn = "fan-app-p13n-content-incremental-data-ingestion"
	thronRole = "arn:aws:iam::111111111111:role/fan-app-p13n-thron-incremental-data-load-role"
	thronSecr = "arn:aws:secretsmanager:eu-west-1:213728519673:secret:fanapp-thron-p13n-ingestion-7biUZG"
)

func TestLoadCasesEmbedded(t *testing.T) {
	cases, err := LoadCases("")
	require.NoError(t, err)
	require.NotEmpty(t, cases)
	mappings := map[string]bool{}
	for _, c := range cases {
		mappings[c.Mapping] = true
	}
	require.True(t, mappings[ProfileMapping])
	require.True(t, mappings[ContentMapping])
}

func TestLoadCasesConsumerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`cases:
  - name: consumer content insert
    mapping: content
    eventName: INSERT
    keys: { contentId: "c-1" }
    expect: admit
`), 0o600))
	base, err := LoadCases("")
	require.NoError(t, err)
	all, err := LoadCases(path)
	require.NoError(t, err)
	require.Len(t, all, len(base)+1)
	require.Equal(t, "consumer content insert", all[len(all)-1].Name)
}

func TestLoadCasesRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`cases:
  - name: bad
    mapping: orders
    eventName: INSERT
    expect: maybe
`), 0o600))
	_, err := LoadCases(path)
	require.ErrorContains(t, err, `unknown mapping "orders"`)
	require.ErrorContains(t, err, `got "maybe"`)

	_, err = LoadCases(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read canary file")
}

func TestRunLocal(t *testing.T) {
	rep, err := RunLocal("")
	require.NoError(t, err)
	require.Empty(t, rep.Failures())
	require.Contains(t, rep.Status(), "passed")
}

func TestRunLocalReportsFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`cases:
  - name: removal should be dropped
    mapping: content
    eventName: REMOVE
    keys: { contentId: "c-1" }
    expect: admit
`), 0o600))
	rep, err := RunLocal(path)
	require.Error(t, err)
	require.Len(t, rep.Failures(), 1)
	require.Contains(t, rep.Status(), "failed")
}

func mappingOutput(t *testing.T, p filters.Pattern) *lambda.ListEventSourceMappingsOutput {
	t.Helper()
	js, err := p.JSON()
	require.NoError(t, err)
	return &lambda.ListEventSourceMappingsOutput{EventSourceMappings: []lambdatypes.EventSourceMappingConfiguration{{
		FilterCriteria: &lambdatypes.FilterCriteria{Filters: []lambdatypes.Filter{{Pattern: aws.String(js)}}},
	}}}
}

func healthyClients(t *testing.T) (Clients, *testutil.FakeIAMClient) {
	iamc := &testutil.FakeIAMClient{Results: map[string]*iam.SimulatePrincipalPolicyOutput{
		thronRole: {EvaluationResults: []iamtypes.EvaluationResult{
			{EvalActionName: aws.String("secretsmanager:GetSecretValue"), EvalDecision: iamtypes.PolicyEvaluationDecisionTypeAllowed},
			{EvalActionName: aws.String("kms:Decrypt"), EvalDecision: iamtypes.PolicyEvaluationDecisionTypeAllowed},
		}},
	}}
	return Clients{
		DynamoDB: &testutil.FakeDynamoClient{Out: &dynamodb.DescribeTableOutput{Table: &ddbtypes.TableDescription{
			KeySchema:           []ddbtypes.KeySchemaElement{{AttributeName: aws.String("contentId"), KeyType: ddbtypes.KeyTypeHash}},
			StreamSpecification: &ddbtypes.StreamSpecification{StreamEnabled: aws.Bool(true), StreamViewType: ddbtypes.StreamViewTypeNewImage},
		}}},
		Lambda: &testutil.FakeLambdaClient{Mappings: map[string]*lambda.ListEventSourceMappingsOutput{
			profileFn: mappingOutput(t, filters.ProfileOnboarding()),
			contentFn: mappingOutput(t, filters.ContentUpserts()),
		}},
		IAM: iamc,
	}, iamc
}

func targets() Targets {
	return Targets{
		ContentTable: "fan-app-p13n-content-data-cache",
		Mappings:     map[string]string{ProfileMapping: profileFn, ContentMapping: contentFn},
		SecretGrants: []SecretGrant{{RoleArn: thronRole, SecretArn: thronSecr}},
	}
}

func TestRunDeployedPasses(t *testing.T) {
	clients, iamc := healthyClients(t)
	log := &testutil.BufferLogger{}
	rep, err := RunDeployed(context.Background(), clients, targets(), log)
	require.NoError(t, err)
	require.Empty(t, rep.Failures())
	require.True(t, log.Has("info", "canary.passed"))

	require.Len(t, iamc.Inputs, 1)
	require.Equal(t, SecretActions, iamc.Inputs[0].ActionNames)
	require.Equal(t, []string{thronSecr}, iamc.Inputs[0].ResourceArns)
}

func TestRunDeployedDetectsDrift(t *testing.T) {
	clients, _ := healthyClients(t)
	clients.Lambda = &testutil.FakeLambdaClient{Mappings: map[string]*lambda.ListEventSourceMappingsOutput{
		profileFn: mappingOutput(t, filters.ContentUpserts()),
		contentFn: mappingOutput(t, filters.ContentUpserts()),
	}}
	clients.IAM = &testutil.FakeIAMClient{Results: map[string]*iam.SimulatePrincipalPolicyOutput{
		thronRole: {EvaluationResults: []iamtypes.EvaluationResult{
			{EvalActionName: aws.String("secretsmanager:GetSecretValue"), EvalDecision: iamtypes.PolicyEvaluationDecisionTypeAllowed},
		}},
	}}
	log := &testutil.BufferLogger{}
	rep, err := RunDeployed(context.Background(), clients, targets(), log)
	require.Error(t, err)
	require.ErrorContains(t, err, "profile mapping filter")
	require.ErrorContains(t, err, "kms:Decrypt")
	require.NotEmpty(t, rep.Failures())
	require.True(t, log.Has("error", "canary.failed"))
}

func TestRunDeployedMissingMapping(t *testing.T) {
	clients, _ := healthyClients(t)
	clients.Lambda = &testutil.FakeLambdaClient{}
	_, err := RunDeployed(context.Background(), clients, targets(), nil)
	require.ErrorContains(t, err, "has no filtered event source mapping")
}

func TestRunDeployedClassifiesErrors(t *testing.T) {
	clients, _ := healthyClients(t)
	clients.DynamoDB = &testutil.FakeDynamoClient{Err: &smithy.GenericAPIError{Code: "ThrottlingException"}}
	_, err := RunDeployed(context.Background(), clients, targets(), nil)
	require.True(t, awserrors.IsRetryable(err))
}

func TestLoadCasesIncludesKeyBuilders(t *testing.T) {
	cases, err := LoadCases("")
	require.NoError(t, err)
	byName := map[string]Case{}
	for _, c := range cases {
		byName[c.Name] = c
	}
	profile := byName["onboarding key builder"]
	require.Equal(t, map[string]string{"pk": "USER#canary", "sk": "fanApp#onboarding#"}, profile.Keys)
	content := byName["content key builder"]
	require.Equal(t, map[string]string{"contentId": "canary-key"}, content.Keys)

	rep := Report{Results: Evaluate("local", []Case{profile, content}, ExpectedPatterns())}
	require.Empty(t, rep.Failures())
}

func TestRunDeployedMissingTable(t *testing.T) {
	clients, _ := healthyClients(t)
	clients.DynamoDB = &testutil.FakeDynamoClient{Err: &smithy.GenericAPIError{Code: "ResourceNotFoundException"}}
	_, err := RunDeployed(context.Background(), clients, targets(), nil)
	require.ErrorContains(t, err, "content table fan-app-p13n-content-data-cache is not deployed")
	require.True(t, awserrors.IsNotFound(err))
}

func TestRunDeployedWarnsOnThrottledSimulate(t *testing.T) {
	clients, _ := healthyClients(t)
	clients.IAM = &testutil.FakeIAMClient{Err: &smithy.GenericAPIError{Code: "Throttling"}}
	log := &testutil.BufferLogger{}
	_, err := RunDeployed(context.Background(), clients, targets(), log)
	require.True(t, awserrors.IsRetryable(err))
	require.True(t, log.Has("warn", "canary.simulate.throttled"))
}
