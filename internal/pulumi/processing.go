package provider

import (
	"fmt"

	awsglue "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/glue"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	awss3 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/filters"
	"github.com/fanapp/fanapp-personalization/internal/naming"
	"github.com/fanapp/fanapp-personalization/internal/policy"
)

// DataProcessingContentStack holds the batch transform jobs, the stream
// processors and the training workflows.
type DataProcessingContentStack struct {
	pulumi.ResourceState

	UserBehaviourJobName   pulumi.StringOutput `pulumi:"userBehaviourJobName"`
	InitialStateMachineArn pulumi.StringOutput `pulumi:"initialStateMachineArn"`
	UpdateStateMachineArn  pulumi.StringOutput `pulumi:"updateStateMachineArn"`

	profileFunction pulumi.StringOutput
	contentFunction pulumi.StringOutput
	mappingIDs      []pulumi.StringOutput
	thronRole       *serviceRole
}

func newProcessingStack(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, opts []pulumi.ResourceOption) (*DataProcessingContentStack, error) {
	comp := &DataProcessingContentStack{}
	if err := ctx.RegisterComponentResource(processingStackType, d.names.Stack(naming.ProcessingStack), comp, opts...); err != nil {
		return nil, err
	}
	childOpts, _ := buildChildOptions(comp, opts, false)

	jobs, err := createUserBehaviourJobs(ctx, scope, d, core, childOpts)
	if err != nil {
		return nil, err
	}
	stream, err := createStreamProcessing(ctx, scope, d, core, childOpts)
	if err != nil {
		return nil, err
	}
	pipelines, err := createPipelines(ctx, scope, d, core, jobs, stream, childOpts)
	if err != nil {
		return nil, err
	}

	comp.UserBehaviourJobName = jobs.full.Name
	comp.InitialStateMachineArn = pipelines.initial.Arn
	comp.UpdateStateMachineArn = pipelines.update.Arn
	comp.profileFunction = stream.incrementalUserPrefs.Name
	comp.contentFunction = stream.incrementalContent.Name
	comp.mappingIDs = []pulumi.StringOutput{stream.profileMapping.ID().ToStringOutput(), stream.contentMapping.ID().ToStringOutput()}
	comp.thronRole = pipelines.thronRole
	if err := ctx.RegisterResourceOutputs(comp, pulumi.Map{
		"userBehaviourJobName":   comp.UserBehaviourJobName,
		"initialStateMachineArn": comp.InitialStateMachineArn,
		"updateStateMachineArn":  comp.UpdateStateMachineArn,
	}); err != nil {
		return nil, err
	}
	return comp, nil
}

// Glue job settings.
const (
	glueService       = "glue.amazonaws.com"
	glueVersion       = "3.0"
	glueWorkerType    = "G.2X"
	glueWorkers       = 10
	userBehaviourJob  = "fan-app-user-behaviour"
	userBehaviourIncr = "fan-app-user-behaviour-incremental"
	incrementalPyMods = "botocore>=1.29.33,boto3>=1.26.33"
)

// pinpointEventsBucket is the external bucket of exported Pinpoint events.
// Its name always carries the stage.
func pinpointEventsBucket(stage string) string {
	return fmt.Sprintf("fanapp-pinpoint-events-%s", stage)
}

var pinpointBucketActions = []string{
	"s3:Abort*",
	"s3:DeleteObject*",
	"s3:GetBucket*",
	"s3:GetObject*",
	"s3:List*",
	"s3:PutObject*",
}

type userBehaviourJobs struct {
	role        *serviceRole
	full        *awsglue.Job
	incremental *awsglue.Job
}

func createUserBehaviourJobs(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, opts []pulumi.ResourceOption) (*userBehaviourJobs, error) {
	env := d.env
	pinpoint := pinpointEventsBucket(env.Stage)
	pinpointArn := fmt.Sprintf("arn:%s:s3:::%s", d.partition, pinpoint)
	ssmArn := policy.SSMParameterArn(d.partition, env.Region, env.Account)

	role, err := newServiceRole(ctx, scope.ID("user-behaviour-job-role"), d.partition, roleSpec{
		Name:    d.name("user-behaviour-job-role"),
		Service: glueService,
		Managed: []string{glueServiceRole, personalizeFull},
		Inline: documentOutput(func(arns []string) []policy.Statement {
			actions := append(append([]string{}, pinpointBucketActions...), policy.SSMActions...)
			return []policy.Statement{
				policy.Allow(actions, pinpointArn, pinpointArn+"/*", ssmArn),
				policy.BucketReadWrite(arns[0]),
				policy.Allow([]string{"s3:GetObject*", "s3:GetBucket*", "s3:List*"}, arns[1], arns[1]+"/*"),
				policy.KMSDecrypt(env.PinpointKey),
			}
		}, core.bucket.Arn, core.artifacts.Arn),
	}, opts)
	if err != nil {
		return nil, err
	}

	args := func() pulumi.StringMap {
		return pulumi.StringMap{
			"--job-language":                    pulumi.String("python"),
			"--personalize_data_bucket":         pulumi.String(pinpoint),
			"--personalize_bucket_name":         core.bucket.Bucket,
			"--personalize_video_dataset_group": core.videoGroupArn,
			"--personalize_news_dataset_group":  core.newsGroupArn,
			"--personalize_import_role":         core.importRole.Arn,
		}
	}

	full, err := createGlueJob(ctx, scope, d, "user-behaviour-job", userBehaviourJob, "glue job to transform user behaviour data", role, core.artifacts, args(), opts)
	if err != nil {
		return nil, err
	}
	incrArgs := args()
	incrArgs["--additional-python-modules"] = pulumi.String(incrementalPyMods)
	incremental, err := createGlueJob(ctx, scope, d, "user-behaviour-incremental-job", userBehaviourIncr, "glue job to transform daily user behaviour data", role, core.artifacts, incrArgs, opts)
	if err != nil {
		return nil, err
	}

	_, err = awsglue.NewTrigger(ctx, scope.ID("user-behaviour-incremental-job-trigger"), &awsglue.TriggerArgs{
		Name:            pulumi.String(d.name("user-behaviour-incremental-job-trigger")),
		Description:     pulumi.String("Trigger to run incremental glue job every day"),
		Type:            pulumi.String("SCHEDULED"),
		Schedule:        pulumi.String(incrementalJobSchedule),
		StartOnCreation: pulumi.Bool(true),
		Actions: awsglue.TriggerActionArray{
			awsglue.TriggerActionArgs{JobName: incremental.Name},
		},
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &userBehaviourJobs{role: role, full: full, incremental: incremental}, nil
}

// glueScriptKey is where a job script is uploaded in the artifacts bucket.
func glueScriptKey(script string) string {
	return fmt.Sprintf("glue/%s/main.py", script)
}

func createGlueJob(ctx *pulumi.Context, scope naming.Scope, d deployment, purpose, script, description string, role *serviceRole, artifacts *awss3.BucketV2, args pulumi.StringMap, opts []pulumi.ResourceOption) (*awsglue.Job, error) {
	source, err := jobScript(d.env.AssetRoot, script)
	if err != nil {
		return nil, err
	}
	key := glueScriptKey(script)
	obj, err := awss3.NewBucketObjectv2(ctx, scope.ID(purpose+"-script"), &awss3.BucketObjectv2Args{
		Bucket: artifacts.Bucket,
		Key:    pulumi.String(key),
		Source: source,
	}, opts...)
	if err != nil {
		return nil, err
	}
	return awsglue.NewJob(ctx, scope.ID(purpose), &awsglue.JobArgs{
		Name:            pulumi.String(d.name(purpose)),
		Description:     pulumi.String(description),
		RoleArn:         role.Arn,
		GlueVersion:     pulumi.String(glueVersion),
		WorkerType:      pulumi.String(glueWorkerType),
		NumberOfWorkers: pulumi.Int(glueWorkers),
		Command: awsglue.JobCommandArgs{
			Name:           pulumi.String("glueetl"),
			PythonVersion:  pulumi.String("3"),
			ScriptLocation: pulumi.Sprintf("s3://%s/%s", obj.Bucket, obj.Key),
		},
		DefaultArguments: args,
	}, opts...)
}

// Stream mapping settings shared by both consumers.
const (
	mappingBatchSize     = 100
	mappingStart         = "TRIM_HORIZON"
	mappingRetryAttempts = 2
	profileWindow        = 300
	contentWindow        = 30
	dataPreparation      = "data-preparation"
)

// profileTableArn is the external profile table. Its name always carries the
// stage.
func profileTableArn(d deployment) string {
	return fmt.Sprintf("arn:%s:dynamodb:%s:%s:table/fan-app-profiles-%s", d.partition, d.env.Region, d.env.Account, d.env.Stage)
}

var processingActions = []string{
	"lambda:InvokeFunction",
	"logs:CreateLogGroup",
	"logs:CreateLogStream",
	"logs:PutLogEvents",
	"dynamodb:*",
	"s3:*",
	"sts:*",
	"personalize:*",
	"iam:*",
}

type streamProcessing struct {
	role                 *serviceRole
	initialUserPrefs     *awslambda.Function
	incrementalUserPrefs *awslambda.Function
	initialContent       *awslambda.Function
	incrementalContent   *awslambda.Function
	profileMapping       *awslambda.EventSourceMapping
	contentMapping       *awslambda.EventSourceMapping
}

func createStreamProcessing(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, opts []pulumi.ResourceOption) (*streamProcessing, error) {
	env := d.env
	ssmArn := policy.SSMParameterArn(d.partition, env.Region, env.Account)
	profiles := profileTableArn(d)

	role, err := newServiceRole(ctx, scope.ID("lambda-processing-role"), d.partition, roleSpec{
		Name:    d.name("lambda-processing-role"),
		Service: lambdaService,
		Inline: documentOutput(func(arns []string) []policy.Statement {
			actions := append(append([]string{}, processingActions...), policy.SSMActions...)
			return []policy.Statement{
				policy.Allow(actions, "*", ssmArn),
				policy.TableReadWriteData(profiles),
				policy.TableReadWriteData(arns[0]),
			}
		}, core.table.Arn),
	}, opts)
	if err != nil {
		return nil, err
	}

	pandas, err := newLayer(ctx, scope.ID("pandas-layer"), env.AssetRoot, d.name("pandas-layer"), "pandas", "pandas for dataset preparation", opts)
	if err != nil {
		return nil, err
	}
	ddbjson, err := newLayer(ctx, scope.ID("ddbjson-layer"), env.AssetRoot, d.name("ddbjson-layer"), "ddbjson", "DynamoDB JSON conversion", opts)
	if err != nil {
		return nil, err
	}

	base := func() pulumi.StringMap {
		return pulumi.StringMap{
			"P13N":             pulumi.String(env.P13N),
			"STAGE":            pulumi.String(env.Stage),
			"ENVIRONMENT_NAME": pulumi.String(env.EnvironmentName),
		}
	}
	fn := func(local, purpose, handler string, timeout int, layers pulumi.StringArray, vars pulumi.StringMap) (*awslambda.Function, error) {
		return newFunction(ctx, scope.ID(local), env.AssetRoot, functionSpec{
			Name:     d.name(purpose),
			AssetDir: dataPreparation,
			Handler:  handler,
			Timeout:  timeout,
			Memory:   loaderMemory,
			Role:     role.Arn,
			Layers:   layers,
			Env:      vars,
		}, opts)
	}

	userPrefsEnv := base()
	userPrefsEnv["ACCOUNT_ID"] = pulumi.String(env.Account)
	userPrefsEnv["S3_BUCKET_NAME"] = core.bucket.Bucket
	userPrefsEnv["ROLE_IMPORT"] = core.importRole.Arn
	userPrefsEnv["DATASET_VIDEO_GROUP_ARN"] = core.videoGroupArn
	userPrefsEnv["DATASET_NEWS_GROUP_ARN"] = core.newsGroupArn
	initialUserPrefs, err := fn("user-prefs-initial", "user-prefs-initial-data-ingestion",
		"init_user_preferences_import.handler", 900, pulumi.StringArray{pandas.Arn}, userPrefsEnv)
	if err != nil {
		return nil, err
	}

	incrUserPrefsEnv := base()
	incrUserPrefsEnv["DATASET_VIDEO_GROUP_ARN"] = core.videoGroupArn
	incrUserPrefsEnv["DATASET_NEWS_GROUP_ARN"] = core.newsGroupArn
	incrementalUserPrefs, err := fn("user-prefs-incremental", "user-prefs-incremental-data-ingestion",
		"incremental_user_preferences_import.handler", 600, pulumi.StringArray{ddbjson.Arn}, incrUserPrefsEnv)
	if err != nil {
		return nil, err
	}

	contentEnv := base()
	contentEnv["CONTENT_BUCKET"] = core.bucket.Bucket
	contentEnv["CONTENT_TABLE"] = core.table.Name
	contentEnv["VIDEO_GROUP_ARN"] = core.videoGroupArn
	contentEnv["NEWS_GROUP_ARN"] = core.newsGroupArn
	contentEnv["ROLE_IMPORT"] = core.importRole.Arn
	initialContent, err := fn("content-initial", "content-initial-data-ingestion",
		"content_data_ingestion.lambda_handler", 900, pulumi.StringArray{pandas.Arn, ddbjson.Arn}, contentEnv)
	if err != nil {
		return nil, err
	}

	incrementalContent, err := fn("content-incremental", "content-incremental-data-ingestion",
		"incremental_content_data_ingestion.lambda_handler", 900, pulumi.StringArray{ddbjson.Arn}, base())
	if err != nil {
		return nil, err
	}

	profileMapping, err := createStreamMapping(ctx, scope.ID("profile-stream-mapping"), incrementalUserPrefs,
		pulumi.String(env.ProfileStreamArn), profileWindow, filters.ProfileOnboarding(), opts)
	if err != nil {
		return nil, err
	}
	contentMapping, err := createStreamMapping(ctx, scope.ID("content-stream-mapping"), incrementalContent,
		core.table.StreamArn, contentWindow, filters.ContentUpserts(), opts)
	if err != nil {
		return nil, err
	}

	return &streamProcessing{
		role:                 role,
		initialUserPrefs:     initialUserPrefs,
		incrementalUserPrefs: incrementalUserPrefs,
		initialContent:       initialContent,
		incrementalContent:   incrementalContent,
		profileMapping:       profileMapping,
		contentMapping:       contentMapping,
	}, nil
}

func createStreamMapping(ctx *pulumi.Context, id string, fn *awslambda.Function, source pulumi.StringInput, window int, pattern filters.Pattern, opts []pulumi.ResourceOption) (*awslambda.EventSourceMapping, error) {
	js, err := pattern.JSON()
	if err != nil {
		return nil, fmt.Errorf("stream mapping %s: %w", id, err)
	}
	return awslambda.NewEventSourceMapping(ctx, id, &awslambda.EventSourceMappingArgs{
		FunctionName:                   fn.Arn,
		EventSourceArn:                 source,
		BatchSize:                      pulumi.Int(mappingBatchSize),
		StartingPosition:               pulumi.String(mappingStart),
		BisectBatchOnFunctionError:     pulumi.Bool(true),
		MaximumRetryAttempts:           pulumi.Int(mappingRetryAttempts),
		MaximumBatchingWindowInSeconds: pulumi.Int(window),
		FilterCriteria: &awslambda.EventSourceMappingFilterCriteriaArgs{
			Filters: awslambda.EventSourceMappingFilterCriteriaFilterArray{
				awslambda.EventSourceMappingFilterCriteriaFilterArgs{Pattern: pulumi.String(js)},
			},
		},
	}, opts...)
}
