package provider

import (
	"fmt"

	awscloudwatch "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	awssfn "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/sfn"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/naming"
	"github.com/fanapp/fanapp-personalization/internal/policy"
	"github.com/fanapp/fanapp-personalization/internal/workflow"
)

const (
	personalizeAssets = "fan-app-personalize"
	personalizeMemory = 1024
	statesService     = "states.amazonaws.com"
	eventsService     = "events.amazonaws.com"
)

// campaignName is the name the campaign functions publish under. External
// consumers look campaigns up by it, so it always carries the stage.
func campaignName(kind, stage string) string {
	return fmt.Sprintf("fan-app%s-similar_items-%s", kind, stage)
}

type pipelines struct {
	initial   *awssfn.StateMachine
	update    *awssfn.StateMachine
	thronRole *serviceRole
}

type personalizeFunctions struct {
	initialSolution *awslambda.Function
	initialCampaign *awslambda.Function
	eventTracker    *awslambda.Function
	updateSolution  *awslambda.Function
	updateCampaign  *awslambda.Function
}

func createPersonalizeFunctions(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, opts []pulumi.ResourceOption) (*personalizeFunctions, error) {
	env := d.env
	inline, err := staticDocument(policy.XRayWrite(), policy.SSMParameters(d.partition, env.Region, env.Account))
	if err != nil {
		return nil, err
	}
	stage := func() pulumi.StringMap {
		return pulumi.StringMap{
			"STAGE":            pulumi.String(env.Stage),
			"ENVIRONMENT_NAME": pulumi.String(env.EnvironmentName),
		}
	}
	build := func(step string, memory int, vars pulumi.StringMap) (*awslambda.Function, error) {
		f, _, err := newRoleFunction(ctx, scope, "personalize-"+step, d, "personalize-"+step, functionSpec{
			AssetDir: personalizeAssets,
			Handler:  fmt.Sprintf("fan-app-personalize-%s.handler", step),
			Timeout:  600,
			Memory:   memory,
			Tracing:  true,
			Env:      vars,
		}, roleSpec{
			Managed: []string{lambdaBasicExecution, lambdaVPCAccess, personalizeFull},
			Inline:  inline,
		}, opts)
		return f, err
	}

	var out personalizeFunctions

	solutionEnv := stage()
	solutionEnv["VIDEO_DATASET_GROUP"] = core.videoGroupArn
	solutionEnv["NEWS_DATASET_GROUP"] = core.newsGroupArn
	if out.initialSolution, err = build("initial-solution", personalizeMemory, solutionEnv); err != nil {
		return nil, err
	}

	campaignEnv := stage()
	campaignEnv["CAMPAIGN_NAME_VIDEO"] = pulumi.String(campaignName("video", env.Stage))
	campaignEnv["CAMPAIGN_NAME_NEWS"] = pulumi.String(campaignName("news", env.Stage))
	if out.initialCampaign, err = build("initial-campaign", personalizeMemory, campaignEnv); err != nil {
		return nil, err
	}

	trackerEnv := pulumi.StringMap{
		"VIDEO_DATASET_GROUP": core.videoGroupArn,
		"NEWS_DATASET_GROUP":  core.newsGroupArn,
		"STAGE":               pulumi.String(env.Stage),
	}
	if out.eventTracker, err = build("event-tracker", personalizeMemory, trackerEnv); err != nil {
		return nil, err
	}

	if out.updateSolution, err = build("update-solution", 0, stage()); err != nil {
		return nil, err
	}
	if out.updateCampaign, err = build("update-campaign", 0, stage()); err != nil {
		return nil, err
	}
	return &out, nil
}

type initialLoaders struct {
	thron     *awslambda.Function
	cms       *awslambda.Function
	thronRole *serviceRole
}

// createInitialLoaders declares the one-off full content loads run by the
// initial workflow.
func createInitialLoaders(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, opts []pulumi.ResourceOption) (*initialLoaders, error) {
	layers := pulumi.StringArray{core.commonLayer.Arn}

	thronRole, err := thronLoaderRole(ctx, d, core.table.Arn)
	if err != nil {
		return nil, err
	}
	thron, role, err := newRoleFunction(ctx, scope, "thron-initial", d, "thron-initial-data-load", functionSpec{
		AssetDir: thronAssets,
		Handler:  "fan-app-thron-initial.handler",
		Timeout:  600,
		Memory:   loaderMemory,
		Tracing:  true,
		Layers:   layers,
		Env:      thronEnvironment(d, core.table.Name),
	}, thronRole, opts)
	if err != nil {
		return nil, err
	}

	cms, _, err := newRoleFunction(ctx, scope, "cms-news-initial", d, "cms-news-initial-data-load", functionSpec{
		AssetDir: cmsAssets,
		Handler:  "fan-app-cms-news.handler",
		Timeout:  600,
		Memory:   loaderMemory,
		Tracing:  true,
		Layers:   layers,
		Env:      cmsEnvironment(d, core.table.Name),
	}, cmsLoaderRole(core.table.Arn), opts)
	if err != nil {
		return nil, err
	}
	return &initialLoaders{thron: thron, cms: cms, thronRole: role}, nil
}

func createPipelines(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, jobs *userBehaviourJobs, stream *streamProcessing, opts []pulumi.ResourceOption) (*pipelines, error) {
	fns, err := createPersonalizeFunctions(ctx, scope, d, core, opts)
	if err != nil {
		return nil, err
	}
	loaders, err := createInitialLoaders(ctx, scope, d, core, opts)
	if err != nil {
		return nil, err
	}

	invoked := []pulumi.StringOutput{
		loaders.thron.Arn,
		loaders.cms.Arn,
		stream.initialUserPrefs.Arn,
		stream.initialContent.Arn,
		fns.initialSolution.Arn,
		fns.initialCampaign.Arn,
		fns.eventTracker.Arn,
		fns.updateSolution.Arn,
		fns.updateCampaign.Arn,
	}
	role, err := newServiceRole(ctx, scope.ID("state-machine-role"), d.partition, roleSpec{
		Name:    d.name("state-machine-role"),
		Service: statesService,
		Inline: documentOutput(func(arns []string) []policy.Statement {
			last := len(arns) - 1
			return []policy.Statement{policy.LambdaInvoke(arns[:last]...), policy.GlueJobRun(arns[last])}
		}, append(invoked, jobs.full.Arn)...),
	}, opts)
	if err != nil {
		return nil, err
	}

	initialDef := allStrings(func(v []string) (string, error) {
		m, err := workflow.Initial(workflow.InitialTargets{
			ThronInitialLoad:   v[0],
			CMSInitialLoad:     v[1],
			UserPrefsImport:    v[2],
			ContentImport:      v[3],
			CreateSolution:     v[4],
			CreateCampaign:     v[5],
			CreateEventTracker: v[6],
			GlueJobName:        v[7],
		})
		if err != nil {
			return "", err
		}
		return m.JSON()
	}, append(invoked[:7:7], jobs.full.Name)...)
	initial, err := awssfn.NewStateMachine(ctx, scope.ID("initial-state-machine"), &awssfn.StateMachineArgs{
		Name:       pulumi.String(d.name("personalize-initial-state-machine")),
		RoleArn:    role.Arn,
		Definition: initialDef,
	}, opts...)
	if err != nil {
		return nil, err
	}

	updateDef := allStrings(func(v []string) (string, error) {
		m, err := workflow.Update(workflow.UpdateTargets{UpdateSolution: v[0], UpdateCampaign: v[1]})
		if err != nil {
			return "", err
		}
		return m.JSON()
	}, fns.updateSolution.Arn, fns.updateCampaign.Arn)
	update, err := awssfn.NewStateMachine(ctx, scope.ID("update-state-machine"), &awssfn.StateMachineArgs{
		Name:       pulumi.String(d.name("personalize-update-state-machine")),
		RoleArn:    role.Arn,
		Definition: updateDef,
	}, opts...)
	if err != nil {
		return nil, err
	}

	if err := scheduleUpdatePipeline(ctx, scope, d, update, opts); err != nil {
		return nil, err
	}
	return &pipelines{initial: initial, update: update, thronRole: loaders.thronRole}, nil
}

// scheduleUpdatePipeline starts the update workflow daily through an
// EventBridge rule and a role allowed to start it.
func scheduleUpdatePipeline(ctx *pulumi.Context, scope naming.Scope, d deployment, machine *awssfn.StateMachine, opts []pulumi.ResourceOption) error {
	role, err := newServiceRole(ctx, scope.ID("update-pipeline-events-role"), d.partition, roleSpec{
		Name:    d.name("update-pipeline-events-role"),
		Service: eventsService,
		Inline: documentOutput(func(arns []string) []policy.Statement {
			return []policy.Statement{policy.StartExecution(arns[0])}
		}, machine.Arn),
	}, opts)
	if err != nil {
		return err
	}
	rule, err := awscloudwatch.NewEventRule(ctx, scope.ID("update-pipeline-rule"), &awscloudwatch.EventRuleArgs{
		Name:               pulumi.String(d.name("update-pipeline-rule")),
		ScheduleExpression: pulumi.String(updatePipelineSchedule),
	}, opts...)
	if err != nil {
		return err
	}
	_, err = awscloudwatch.NewEventTarget(ctx, scope.ID("update-pipeline-target"), &awscloudwatch.EventTargetArgs{
		Rule:     rule.Name,
		Arn:      machine.Arn,
		RoleArn:  role.Arn,
		TargetId: pulumi.String("update-pipeline"),
	}, childOf(rule, opts)...)
	return err
}
