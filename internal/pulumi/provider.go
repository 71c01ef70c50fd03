package provider

import (
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	aws "github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	p "github.com/pulumi/pulumi-go-provider"
	"github.com/pulumi/pulumi-go-provider/infer"
	"github.com/pulumi/pulumi/sdk/v3/go/common/tokens"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/awssdk"
	"github.com/fanapp/fanapp-personalization/internal/config"
	"github.com/fanapp/fanapp-personalization/internal/naming"
)

// Component type tokens.
const (
	personalizationStackType = "fanapp-personalization:index:PersonalizationStack"
	ingestionStackType       = "fanapp-personalization:index:DataIngestionContentStack"
	processingStackType      = "fanapp-personalization:index:DataProcessingContentStack"
)

// appTag is the value of the app tag carried by every resource.
const appTag = "FanApp"

// NewProvider builds the component provider serving PersonalizationStack.
func NewProvider() (p.Provider, error) {
	return infer.NewProviderBuilder().
		WithComponents(infer.ComponentF(NewPersonalizationStack)).
		Build()
}

// StackArgs overrides environment variables for a component deployment.
// Unset fields fall back to the process environment.
type StackArgs struct {
	Stage           *string `pulumi:"stage,optional"`
	P13N            *string `pulumi:"p13n,optional"`
	EnvironmentName *string `pulumi:"environmentName,optional"`
	CMSEnv          *string `pulumi:"cmsEnv,optional"`
	ThronEnv        *string `pulumi:"thronEnv,optional"`
	// Account and Region take precedence over CDK_DEPLOY_ACCOUNT and CDK_DEPLOY_REGION.
	Account   *string `pulumi:"account,optional"`
	Region    *string `pulumi:"region,optional"`
	AssetRoot *string `pulumi:"assetRoot,optional"`
}

func (a StackArgs) overrides() map[string]string {
	return map[string]string{
		"STAGE":              valueOrDefault(a.Stage, ""),
		"P13N":               valueOrDefault(a.P13N, ""),
		"ENVIRONMENT_NAME":   valueOrDefault(a.EnvironmentName, ""),
		"CMS_ENV":            valueOrDefault(a.CMSEnv, ""),
		"THRON_ENV":          valueOrDefault(a.ThronEnv, ""),
		"CDK_DEPLOY_ACCOUNT": valueOrDefault(a.Account, ""),
		"CDK_DEPLOY_REGION":  valueOrDefault(a.Region, ""),
		"P13N_ASSET_ROOT":    valueOrDefault(a.AssetRoot, ""),
	}
}

// PersonalizationStack is the core stack. The ingestion and processing
// stacks are nested components parented to it.
type PersonalizationStack struct {
	pulumi.ResourceState

	StackNames pulumi.StringMapOutput `pulumi:"stackNames"`

	ContentTableName      pulumi.StringOutput `pulumi:"contentTableName"`
	ContentTableArn       pulumi.StringOutput `pulumi:"contentTableArn"`
	ContentTableStreamArn pulumi.StringOutput `pulumi:"contentTableStreamArn"`
	PersonalizeBucketName pulumi.StringOutput `pulumi:"personalizeBucketName"`
	PersonalizeBucketArn  pulumi.StringOutput `pulumi:"personalizeBucketArn"`
	ImportRoleArn         pulumi.StringOutput `pulumi:"importRoleArn"`
	VideoDatasetGroupArn  pulumi.StringOutput `pulumi:"videoDatasetGroupArn"`
	NewsDatasetGroupArn   pulumi.StringOutput `pulumi:"newsDatasetGroupArn"`
	CommonLayerArn        pulumi.StringOutput `pulumi:"commonLayerArn"`
	ArtifactsBucketName   pulumi.StringOutput `pulumi:"artifactsBucketName"`

	InitialStateMachineArn pulumi.StringOutput `pulumi:"initialStateMachineArn"`
	UpdateStateMachineArn  pulumi.StringOutput `pulumi:"updateStateMachineArn"`
}

// Annotate attaches schema metadata used for provider docs and code generation.
func (c *PersonalizationStack) Annotate(a infer.Annotator) {
	a.Describe(&c, "FanApp personalization pipeline: content cache, Personalize datasets, ingestion functions, stream processing and training workflows.")
	a.SetToken(tokens.ModuleName("index"), tokens.TypeName("PersonalizationStack"))
}

// NewPersonalizationStack is the component constructor used by infer.Component.
func NewPersonalizationStack(
	ctx *pulumi.Context,
	name string,
	args StackArgs,
	opts ...pulumi.ResourceOption,
) (*PersonalizationStack, error) {
	env, err := resolveEnv(ctx, config.Overlay(args.overrides(), os.LookupEnv))
	if err != nil {
		return nil, err
	}
	return newPersonalizationStack(ctx, name, env, opts...)
}

// Deploy resolves the environment from lookup, declares every stack and
// exports the core outputs. Nothing is registered when resolution fails.
func Deploy(ctx *pulumi.Context, lookup config.Lookup) error {
	env, err := config.Resolve(lookup)
	if err != nil {
		return err
	}
	return DeployEnv(ctx, env)
}

// DeployEnv is Deploy for an already resolved environment.
func DeployEnv(ctx *pulumi.Context, env *config.Env) error {
	if err := resolveSecrets(ctx, env); err != nil {
		return err
	}
	comp, err := NewStacks(ctx, env)
	if err != nil {
		return err
	}
	ctx.Export("stackNames", comp.StackNames)
	ctx.Export("contentTableName", comp.ContentTableName)
	ctx.Export("contentTableStreamArn", comp.ContentTableStreamArn)
	ctx.Export("personalizeBucketName", comp.PersonalizeBucketName)
	ctx.Export("videoDatasetGroupArn", comp.VideoDatasetGroupArn)
	ctx.Export("newsDatasetGroupArn", comp.NewsDatasetGroupArn)
	ctx.Export("initialStateMachineArn", comp.InitialStateMachineArn)
	ctx.Export("updateStateMachineArn", comp.UpdateStateMachineArn)
	return nil
}

// NewStacks declares the core stack, named by the naming rule, with both
// nested stacks.
func NewStacks(ctx *pulumi.Context, env *config.Env) (*PersonalizationStack, error) {
	return newPersonalizationStack(ctx, env.Namer().Stack(naming.CoreStack), env)
}

func resolveEnv(ctx *pulumi.Context, lookup config.Lookup) (*config.Env, error) {
	env, err := config.Resolve(lookup)
	if err != nil {
		return nil, err
	}
	if err := resolveSecrets(ctx, env); err != nil {
		return nil, err
	}
	return env, nil
}

// resolveSecrets replaces ssm: references. Previews keep the references.
func resolveSecrets(ctx *pulumi.Context, env *config.Env) error {
	if !env.HasSecretRefs() || ctx.DryRun() {
		return nil
	}
	cfg, err := awssdk.LoadDefault(ctx.Context(), env.Region)
	if err != nil {
		return fmt.Errorf("failed to load AWS config for secret resolution: %w", err)
	}
	return config.ResolveSecrets(ctx.Context(), env, ssm.NewFromConfig(cfg), engineLogger{ctx: ctx})
}

// deployment carries what every stack derives names and ARNs from.
type deployment struct {
	env       *config.Env
	names     naming.Namer
	partition string
}

func newDeployment(env *config.Env) deployment {
	return deployment{env: env, names: env.Namer(), partition: awssdk.PartitionForRegion(env.Region)}
}

func (d deployment) name(purpose string) string { return d.names.Name(purpose) }

func newPersonalizationStack(ctx *pulumi.Context, name string, env *config.Env, opts ...pulumi.ResourceOption) (*PersonalizationStack, error) {
	comp := &PersonalizationStack{}
	if err := ctx.RegisterComponentResource(personalizationStackType, name, comp, opts...); err != nil {
		return nil, err
	}

	d := newDeployment(env)
	scope, err := naming.Root(name)
	if err != nil {
		return nil, err
	}

	prov, err := newAWSProvider(ctx, scope.ID("aws"), env, pulumi.Parent(comp))
	if err != nil {
		return nil, err
	}
	providerOpts := append(append([]pulumi.ResourceOption{}, opts...), pulumi.Provider(prov))
	childOpts, retainOpts := buildChildOptions(comp, providerOpts, true)

	core, err := newCoreStack(ctx, scope, d, childOpts, retainOpts)
	if err != nil {
		return nil, err
	}
	ingestionScope, err := scope.Child("ingestion")
	if err != nil {
		return nil, err
	}
	ingestion, err := newIngestionStack(ctx, ingestionScope, d, core, childOpts)
	if err != nil {
		return nil, err
	}
	processingScope, err := scope.Child("processing")
	if err != nil {
		return nil, err
	}
	processing, err := newProcessingStack(ctx, processingScope, d, core, childOpts)
	if err != nil {
		return nil, err
	}

	comp.StackNames = pulumi.ToStringMap(d.names.StackNames()).ToStringMapOutput()
	comp.ContentTableName = core.table.Name
	comp.ContentTableArn = core.table.Arn
	comp.ContentTableStreamArn = core.table.StreamArn
	comp.PersonalizeBucketName = core.bucket.Bucket
	comp.PersonalizeBucketArn = core.bucket.Arn
	comp.ImportRoleArn = core.importRole.Arn
	comp.VideoDatasetGroupArn = core.videoGroupArn
	comp.NewsDatasetGroupArn = core.newsGroupArn
	comp.CommonLayerArn = core.commonLayer.Arn
	comp.ArtifactsBucketName = core.artifacts.Bucket
	comp.InitialStateMachineArn = processing.InitialStateMachineArn
	comp.UpdateStateMachineArn = processing.UpdateStateMachineArn

	if err := maybeExportCanaryStatus(ctx, env, canaryTargets{
		contentTable: core.table.Name,
		profileFn:    processing.profileFunction,
		contentFn:    processing.contentFunction,
		secretRoles:  []pulumi.StringOutput{ingestion.thronRole.Arn, processing.thronRole.Arn},
		secretArn:    env.Thron.ConfigSecretArn,
		ready:        canaryReadiness(processing.mappingIDs, ingestion.thronRole, processing.thronRole),
	}); err != nil {
		return nil, err
	}

	if err := ctx.RegisterResourceOutputs(comp, pulumi.Map{
		"stackNames":             comp.StackNames,
		"contentTableName":       comp.ContentTableName,
		"contentTableArn":        comp.ContentTableArn,
		"contentTableStreamArn":  comp.ContentTableStreamArn,
		"personalizeBucketName":  comp.PersonalizeBucketName,
		"personalizeBucketArn":   comp.PersonalizeBucketArn,
		"importRoleArn":          comp.ImportRoleArn,
		"videoDatasetGroupArn":   comp.VideoDatasetGroupArn,
		"newsDatasetGroupArn":    comp.NewsDatasetGroupArn,
		"commonLayerArn":         comp.CommonLayerArn,
		"artifactsBucketName":    comp.ArtifactsBucketName,
		"initialStateMachineArn": comp.InitialStateMachineArn,
		"updateStateMachineArn":  comp.UpdateStateMachineArn,
	}); err != nil {
		return nil, err
	}
	return comp, nil
}

// newAWSProvider pins the account and region and stamps the standard tags.
func newAWSProvider(ctx *pulumi.Context, id string, env *config.Env, opts ...pulumi.ResourceOption) (*aws.Provider, error) {
	return aws.NewProvider(ctx, id, &aws.ProviderArgs{
		Region:            pulumi.String(env.Region),
		AllowedAccountIds: pulumi.ToStringArray([]string{env.Account}),
		DefaultTags: &aws.ProviderDefaultTagsArgs{
			Tags: pulumi.StringMap{
				"environment": pulumi.String(env.EnvironmentName),
				"stage":       pulumi.String(env.Stage),
				"app":         pulumi.String(appTag),
			},
		},
	}, opts...)
}

func buildChildOptions(comp pulumi.Resource, opts []pulumi.ResourceOption, retainOnDelete bool) (childOpts []pulumi.ResourceOption, retainOpts []pulumi.ResourceOption) {
	childOpts = append([]pulumi.ResourceOption{}, opts...)
	childOpts = append(childOpts, pulumi.Parent(comp))
	retainOpts = append([]pulumi.ResourceOption{}, childOpts...)
	if retainOnDelete {
		retainOpts = append(retainOpts, pulumi.RetainOnDelete(true))
	}
	return childOpts, retainOpts
}
