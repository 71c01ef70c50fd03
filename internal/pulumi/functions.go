package provider

import (
	"fmt"

	awscloudwatch "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/naming"
)

const (
	pythonRuntime = "python3.9"
	lambdaService = "lambda.amazonaws.com"
)

// Schedule expressions.
const (
	ingestionSchedule      = "cron(0 */6 ? * * *)"
	incrementalJobSchedule = "cron(0 2 * * ? *)"
	updatePipelineSchedule = "cron(0 4 ? * * *)"
)

// scheduleRetryAttempts bounds retries of scheduled invocations.
const scheduleRetryAttempts = 2

type functionSpec struct {
	Name     string
	AssetDir string
	Handler  string
	Timeout  int
	// Memory in MB; zero keeps the service default.
	Memory  int
	Tracing bool
	Role    pulumi.StringInput
	Layers  pulumi.StringArray
	Env     pulumi.StringMap
}

func newFunction(ctx *pulumi.Context, id, assetRoot string, spec functionSpec, opts []pulumi.ResourceOption) (*awslambda.Function, error) {
	code, err := functionCode(assetRoot, spec.AssetDir)
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", spec.Name, err)
	}
	args := &awslambda.FunctionArgs{
		Name:    pulumi.String(spec.Name),
		Role:    spec.Role,
		Runtime: pulumi.String(pythonRuntime),
		Handler: pulumi.String(spec.Handler),
		Code:    code,
		Timeout: pulumi.Int(spec.Timeout),
	}
	if spec.Memory > 0 {
		args.MemorySize = pulumi.Int(spec.Memory)
	}
	if spec.Tracing {
		args.TracingConfig = &awslambda.FunctionTracingConfigArgs{Mode: pulumi.String("Active")}
	}
	if len(spec.Layers) > 0 {
		args.Layers = spec.Layers
	}
	if len(spec.Env) > 0 {
		args.Environment = &awslambda.FunctionEnvironmentArgs{Variables: spec.Env}
	}
	return awslambda.NewFunction(ctx, id, args, opts...)
}

// newRoleFunction declares fn with a dedicated lambda role named
// <purpose>-role. The role is declared first so fn can reference it.
func newRoleFunction(ctx *pulumi.Context, scope naming.Scope, local string, d deployment, purpose string, fn functionSpec, role roleSpec, opts []pulumi.ResourceOption) (*awslambda.Function, *serviceRole, error) {
	role.Name = d.name(purpose + "-role")
	role.Service = lambdaService
	r, err := newServiceRole(ctx, scope.ID(local+"-role"), d.partition, role, opts)
	if err != nil {
		return nil, nil, err
	}
	fn.Name = d.name(purpose)
	fn.Role = r.Arn
	f, err := newFunction(ctx, scope.ID(local), d.env.AssetRoot, fn, opts)
	if err != nil {
		return nil, nil, err
	}
	return f, r, nil
}

func newLayer(ctx *pulumi.Context, id, assetRoot, name, dir, description string, opts []pulumi.ResourceOption) (*awslambda.LayerVersion, error) {
	code, err := layerCode(assetRoot, dir)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", name, err)
	}
	return awslambda.NewLayerVersion(ctx, id, &awslambda.LayerVersionArgs{
		LayerName:          pulumi.String(name),
		Description:        pulumi.String(description),
		CompatibleRuntimes: pulumi.ToStringArray([]string{pythonRuntime}),
		Code:               code,
	}, opts...)
}

// newFunctionSchedule invokes fn on expr through an EventBridge rule.
func newFunctionSchedule(ctx *pulumi.Context, id, ruleName, expr string, fn *awslambda.Function, opts []pulumi.ResourceOption) (*awscloudwatch.EventRule, error) {
	rule, err := awscloudwatch.NewEventRule(ctx, id, &awscloudwatch.EventRuleArgs{
		Name:               pulumi.String(ruleName),
		ScheduleExpression: pulumi.String(expr),
	}, opts...)
	if err != nil {
		return nil, err
	}
	_, err = awscloudwatch.NewEventTarget(ctx, fmt.Sprintf("%s-target", id), &awscloudwatch.EventTargetArgs{
		Rule:     rule.Name,
		Arn:      fn.Arn,
		TargetId: pulumi.String("function"),
		RetryPolicy: &awscloudwatch.EventTargetRetryPolicyArgs{
			MaximumRetryAttempts: pulumi.Int(scheduleRetryAttempts),
		},
	}, childOf(rule, opts)...)
	if err != nil {
		return nil, err
	}
	_, err = awslambda.NewPermission(ctx, fmt.Sprintf("%s-invoke", id), &awslambda.PermissionArgs{
		Action:      pulumi.String("lambda:InvokeFunction"),
		Function:    fn.Name,
		Principal:   pulumi.String("events.amazonaws.com"),
		SourceArn:   rule.Arn,
		StatementId: pulumi.String("AllowScheduleInvoke"),
	}, childOf(rule, opts)...)
	if err != nil {
		return nil, err
	}
	return rule, nil
}
