package canary

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/fanapp/fanapp-personalization/internal/awssdk"
	"github.com/fanapp/fanapp-personalization/internal/awssdk/dynamo"
	awserrors "github.com/fanapp/fanapp-personalization/internal/awssdk/errors"
	"github.com/fanapp/fanapp-personalization/internal/filters"
	"github.com/fanapp/fanapp-personalization/internal/utils"
	"github.com/fanapp/fanapp-personalization/internal/utils/logging"
)

// MappingAPI is the subset of the Lambda client used by the canaries.
type MappingAPI interface {
	ListEventSourceMappings(context.Context, *lambda.ListEventSourceMappingsInput, ...func(*lambda.Options)) (*lambda.ListEventSourceMappingsOutput, error)
}

// SimulateAPI is the subset of the IAM client used by the canaries.
type SimulateAPI interface {
	SimulatePrincipalPolicy(context.Context, *iam.SimulatePrincipalPolicyInput, ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// Clients bundles the SDK clients the deployed checks need.
type Clients struct {
	DynamoDB dynamo.DescribeTableAPI
	Lambda   MappingAPI
	IAM      SimulateAPI
}

// NewClients builds clients from the default credential chain.
func NewClients(ctx context.Context, region string) (Clients, error) {
	cfg, err := awssdk.LoadDefault(ctx, region)
	if err != nil {
		return Clients{}, fmt.Errorf("load AWS config: %w", err)
	}
	return Clients{
		DynamoDB: dynamodb.NewFromConfig(cfg),
		Lambda:   lambda.NewFromConfig(cfg),
		IAM:      iam.NewFromConfig(cfg),
	}, nil
}

// SecretGrant is a role that must be able to read a secret and decrypt it.
type SecretGrant struct {
	RoleArn   string
	SecretArn string
}

// Targets names the deployed resources to check.
type Targets struct {
	ContentTable string
	// Mappings maps a mapping name (ProfileMapping, ContentMapping) to the
	// function consuming that stream.
	Mappings     map[string]string
	SecretGrants []SecretGrant
	CanaryFile   string
}

// SecretActions are the actions a secret-consuming role must hold together.
var SecretActions = []string{"secretsmanager:GetSecretValue", "kms:Decrypt"}

// RunDeployed checks the deployed table shape, mapping filters and secret
// grants, then replays the cases against the deployed patterns.
func RunDeployed(ctx context.Context, c Clients, t Targets, log logging.Logger) (Report, error) {
	if log == nil {
		log = logging.NopLogger{}
	}
	var rep Report
	check := func(name, got, want string) {
		rep.Results = append(rep.Results, Result{Source: "deployed", Case: Case{Name: name, Mapping: "-", Expect: want}, Got: got})
	}

	shape, err := dynamo.Describe(ctx, c.DynamoDB, t.ContentTable, log)
	if awserrors.IsNotFound(err) {
		return Report{}, fmt.Errorf("content table %s is not deployed: %w", t.ContentTable, err)
	}
	if err != nil {
		return Report{}, fmt.Errorf("describe %s: %w", t.ContentTable, err)
	}
	check("content table hash key", shape.HashKey, dynamo.ContentHashKey)
	check("content table stream view", shape.StreamViewType, "NEW_IMAGE")

	cases, err := LoadCases(t.CanaryFile)
	if err != nil {
		return Report{}, err
	}
	expected := ExpectedPatterns()
	deployed := map[string]filters.Pattern{}
	for _, mapping := range sortedMappings(t.Mappings) {
		fn := t.Mappings[mapping]
		want, ok := expected[mapping]
		if !ok {
			return Report{}, fmt.Errorf("unknown mapping %q", mapping)
		}
		wantJSON, err := want.JSON()
		if err != nil {
			return Report{}, err
		}
		gotJSON, err := deployedPattern(ctx, c.Lambda, fn)
		if err != nil {
			return Report{}, err
		}
		check(fmt.Sprintf("%s mapping filter", mapping), utils.NormalizeJSON(gotJSON), utils.NormalizeJSON(wantJSON))
		p, err := filters.ParsePattern(gotJSON)
		if err != nil {
			log.Warn("canary.mapping.unparsable", logging.Fields{"function": fn, "pattern": gotJSON})
			continue
		}
		deployed[mapping] = p
	}
	rep.Results = append(rep.Results, Evaluate("deployed", casesFor(cases, deployed), deployed)...)

	for _, g := range t.SecretGrants {
		res, err := simulateSecretAccess(ctx, c.IAM, g)
		if err != nil {
			if awserrors.IsRetryable(err) {
				log.Warn("canary.simulate.throttled", logging.Fields{"role": g.RoleArn})
			}
			return Report{}, err
		}
		rep.Results = append(rep.Results, res...)
	}

	if failures := rep.Failures(); len(failures) > 0 {
		log.Error("canary.failed", logging.Fields{"failures": len(failures), "checks": len(rep.Results)})
	} else {
		log.Info("canary.passed", logging.Fields{"checks": len(rep.Results)})
	}
	return rep, rep.Err()
}

func deployedPattern(ctx context.Context, client MappingAPI, function string) (string, error) {
	out, err := client.ListEventSourceMappings(ctx, &lambda.ListEventSourceMappingsInput{FunctionName: aws.String(function)})
	if err != nil {
		return "", fmt.Errorf("list mappings of %s: %w", function, awserrors.Classify(err))
	}
	for _, m := range out.EventSourceMappings {
		if m.FilterCriteria == nil {
			continue
		}
		for _, f := range m.FilterCriteria.Filters {
			if p := aws.ToString(f.Pattern); p != "" {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("function %s has no filtered event source mapping", function)
}

func simulateSecretAccess(ctx context.Context, client SimulateAPI, g SecretGrant) ([]Result, error) {
	out, err := client.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(g.RoleArn),
		ActionNames:     SecretActions,
		ResourceArns:    []string{g.SecretArn},
	})
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", g.RoleArn, awserrors.Classify(err))
	}
	decisions := map[string]string{}
	for _, r := range out.EvaluationResults {
		decisions[aws.ToString(r.EvalActionName)] = string(r.EvalDecision)
	}
	res := make([]Result, 0, len(SecretActions))
	for _, action := range SecretActions {
		got := decisions[action]
		if got == "" {
			got = string(iamtypes.PolicyEvaluationDecisionTypeImplicitDeny)
		}
		res = append(res, Result{
			Source: "deployed",
			Case:   Case{Name: fmt.Sprintf("%s allows %s", awssdk.ResourceFromARN(g.RoleArn), action), Mapping: "-", Expect: string(iamtypes.PolicyEvaluationDecisionTypeAllowed)},
			Got:    got,
		})
	}
	return res, nil
}

// casesFor drops cases whose mapping was not deployed or not parsed.
func casesFor(cases []Case, deployed map[string]filters.Pattern) []Case {
	out := make([]Case, 0, len(cases))
	for _, c := range cases {
		if _, ok := deployed[c.Mapping]; ok {
			out = append(out, c)
		}
	}
	return out
}

func sortedMappings(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
