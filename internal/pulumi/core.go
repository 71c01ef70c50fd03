package provider

import (
	"fmt"

	"github.com/goccy/go-json"
	awscfn "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudformation"
	awsdynamodb "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/dynamodb"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	awss3 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/awssdk/dynamo"
	"github.com/fanapp/fanapp-personalization/internal/naming"
	"github.com/fanapp/fanapp-personalization/internal/policy"
)

const (
	personalizeService = "personalize.amazonaws.com"
	datasetGroupOutput = "DatasetGroupArn"
)

// coreOutputs are the core resources the nested stacks build on.
type coreOutputs struct {
	table         *awsdynamodb.Table
	bucket        *awss3.BucketV2
	importRole    *serviceRole
	videoGroupArn pulumi.StringOutput
	newsGroupArn  pulumi.StringOutput
	commonLayer   *awslambda.LayerVersion
	artifacts     *awss3.BucketV2
}

func newCoreStack(ctx *pulumi.Context, scope naming.Scope, d deployment, childOpts, retainOpts []pulumi.ResourceOption) (*coreOutputs, error) {
	table, err := createContentTable(ctx, scope.ID("content-table"), d.name("content-data-cache"), retainOpts)
	if err != nil {
		return nil, err
	}

	bucket, err := createPrivateBucket(ctx, scope.ID("personalize-bucket"), d.name("personalize-bucket-"+d.env.Account), retainOpts)
	if err != nil {
		return nil, err
	}
	bucketPolicy := documentOutput(func(arns []string) []policy.Statement {
		return []policy.Statement{policy.ServicePrincipalAllow(personalizeService,
			[]string{"s3:GetObject", "s3:ListBucket"}, arns[0], arns[0]+"/*")}
	}, bucket.Arn)
	if _, err := awss3.NewBucketPolicy(ctx, scope.ID("personalize-bucket-policy"), &awss3.BucketPolicyArgs{
		Bucket: bucket.Bucket,
		Policy: bucketPolicy,
	}, childOf(bucket, childOpts)...); err != nil {
		return nil, err
	}

	importRole, err := newServiceRole(ctx, scope.ID("import-role"), d.partition, roleSpec{
		Name:    d.name("personalize-import-role"),
		Service: personalizeService,
		Inline: documentOutput(func(arns []string) []policy.Statement {
			return []policy.Statement{policy.BucketReadWrite(arns[0])}
		}, bucket.Arn),
	}, childOpts)
	if err != nil {
		return nil, err
	}

	video, err := createDatasetGroup(ctx, scope.ID("video-dataset-group"), d.name("video-dataset-group"), retainOpts)
	if err != nil {
		return nil, err
	}
	news, err := createDatasetGroup(ctx, scope.ID("news-dataset-group"), d.name("news-dataset-group"), retainOpts)
	if err != nil {
		return nil, err
	}

	layer, err := newLayer(ctx, scope.ID("common-layer"), d.env.AssetRoot, d.name("common-layer"), "common",
		"Shared helpers for the content loaders", childOpts)
	if err != nil {
		return nil, err
	}

	artifacts, err := createPrivateBucket(ctx, scope.ID("artifacts"), d.name("artifacts-"+d.env.Account), childOpts)
	if err != nil {
		return nil, err
	}

	return &coreOutputs{
		table:         table,
		bucket:        bucket,
		importRole:    importRole,
		videoGroupArn: datasetGroupArn(video),
		newsGroupArn:  datasetGroupArn(news),
		commonLayer:   layer,
		artifacts:     artifacts,
	}, nil
}

func createContentTable(ctx *pulumi.Context, id, name string, opts []pulumi.ResourceOption) (*awsdynamodb.Table, error) {
	return awsdynamodb.NewTable(ctx, id, &awsdynamodb.TableArgs{
		Name:        pulumi.String(name),
		BillingMode: pulumi.String("PAY_PER_REQUEST"),
		Attributes: awsdynamodb.TableAttributeArray{
			awsdynamodb.TableAttributeArgs{Name: pulumi.String(dynamo.ContentHashKey), Type: pulumi.String("S")},
		},
		HashKey:        pulumi.String(dynamo.ContentHashKey),
		StreamEnabled:  pulumi.Bool(true),
		StreamViewType: pulumi.String("NEW_IMAGE"),
	}, opts...)
}

// createPrivateBucket declares a bucket with AES256 encryption and every
// public access switch on.
func createPrivateBucket(ctx *pulumi.Context, id, name string, opts []pulumi.ResourceOption) (*awss3.BucketV2, error) {
	bucket, err := awss3.NewBucketV2(ctx, id, &awss3.BucketV2Args{
		Bucket: pulumi.String(name),
	}, opts...)
	if err != nil {
		return nil, err
	}
	_, err = awss3.NewBucketServerSideEncryptionConfigurationV2(ctx, fmt.Sprintf("%s-sse", id), &awss3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.Bucket,
		Rules: awss3.BucketServerSideEncryptionConfigurationV2RuleArray{
			awss3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &awss3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
	}, childOf(bucket, opts)...)
	if err != nil {
		return nil, err
	}
	_, err = awss3.NewBucketPublicAccessBlock(ctx, fmt.Sprintf("%s-public-access", id), &awss3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.Bucket,
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	}, childOf(bucket, opts)...)
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

// datasetGroupTemplate renders a CloudFormation template holding one dataset
// group and exporting its ARN.
func datasetGroupTemplate(name string) (string, error) {
	tmpl := map[string]any{
		"Resources": map[string]any{
			"DatasetGroup": map[string]any{
				"Type":       "AWS::Personalize::DatasetGroup",
				"Properties": map[string]any{"Name": name},
			},
		},
		"Outputs": map[string]any{
			datasetGroupOutput: map[string]any{
				"Value": map[string]any{"Fn::GetAtt": []string{"DatasetGroup", datasetGroupOutput}},
			},
		},
	}
	b, err := json.Marshal(tmpl)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func createDatasetGroup(ctx *pulumi.Context, id, name string, opts []pulumi.ResourceOption) (*awscfn.Stack, error) {
	body, err := datasetGroupTemplate(name)
	if err != nil {
		return nil, fmt.Errorf("dataset group %s: %w", name, err)
	}
	return awscfn.NewStack(ctx, id, &awscfn.StackArgs{
		Name:         pulumi.String(name),
		TemplateBody: pulumi.String(body),
	}, opts...)
}

func datasetGroupArn(stack *awscfn.Stack) pulumi.StringOutput {
	return stack.Outputs.MapIndex(pulumi.String(datasetGroupOutput))
}
