package provider

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/naming"
	"github.com/fanapp/fanapp-personalization/internal/policy"
)

// Asset directories of the content loaders.
const (
	thronAssets = "fan-app-thron"
	cmsAssets   = "fan-app-cms"
)

const (
	loaderMemory = 1024
	// incrementalDaysAgo is how far back an incremental load looks.
	incrementalDaysAgo = "1"
)

// DataIngestionContentStack holds the scheduled incremental content loaders.
type DataIngestionContentStack struct {
	pulumi.ResourceState

	ThronFunctionArn pulumi.StringOutput `pulumi:"thronFunctionArn"`
	CMSFunctionArn   pulumi.StringOutput `pulumi:"cmsFunctionArn"`

	thronRole *serviceRole
}

func newIngestionStack(ctx *pulumi.Context, scope naming.Scope, d deployment, core *coreOutputs, opts []pulumi.ResourceOption) (*DataIngestionContentStack, error) {
	comp := &DataIngestionContentStack{}
	if err := ctx.RegisterComponentResource(ingestionStackType, d.names.Stack(naming.IngestionStack), comp, opts...); err != nil {
		return nil, err
	}
	childOpts, _ := buildChildOptions(comp, opts, false)

	layers := pulumi.StringArray{core.commonLayer.Arn}

	thronEnv := thronEnvironment(d, core.table.Name)
	thronEnv["DAYS_AGO"] = pulumi.String(incrementalDaysAgo)
	thronRole, err := thronLoaderRole(ctx, d, core.table.Arn)
	if err != nil {
		return nil, err
	}
	thron, role, err := newRoleFunction(ctx, scope, "thron-incremental", d, "thron-incremental-data-load", functionSpec{
		AssetDir: thronAssets,
		Handler:  "fan-app-thron-incremental.handler",
		Timeout:  900,
		Memory:   loaderMemory,
		Tracing:  true,
		Layers:   layers,
		Env:      thronEnv,
	}, thronRole, childOpts)
	if err != nil {
		return nil, err
	}
	if _, err := newFunctionSchedule(ctx, scope.ID("thron-incremental-schedule"), d.name("thron-incremental-schedule"), ingestionSchedule, thron, childOpts); err != nil {
		return nil, err
	}

	cmsEnv := cmsEnvironment(d, core.table.Name)
	cmsEnv["DAYS_AGO"] = pulumi.String(incrementalDaysAgo)
	cms, _, err := newRoleFunction(ctx, scope, "cms-news-incremental", d, "cms-news-incremental-data-load", functionSpec{
		AssetDir: cmsAssets,
		Handler:  "fan-app-cms-news.handler",
		Timeout:  600,
		Memory:   loaderMemory,
		Tracing:  true,
		Layers:   layers,
		Env:      cmsEnv,
	}, cmsLoaderRole(core.table.Arn), childOpts)
	if err != nil {
		return nil, err
	}
	if _, err := newFunctionSchedule(ctx, scope.ID("cms-news-incremental-schedule"), d.name("cms-news-incremental-schedule"), ingestionSchedule, cms, childOpts); err != nil {
		return nil, err
	}

	comp.ThronFunctionArn = thron.Arn
	comp.CMSFunctionArn = cms.Arn
	comp.thronRole = role
	if err := ctx.RegisterResourceOutputs(comp, pulumi.Map{
		"thronFunctionArn": comp.ThronFunctionArn,
		"cmsFunctionArn":   comp.CMSFunctionArn,
	}); err != nil {
		return nil, err
	}
	return comp, nil
}

func thronEnvironment(d deployment, table pulumi.StringOutput) pulumi.StringMap {
	t := d.env.Thron
	return pulumi.StringMap{
		"CONTENT_TABLE":           table,
		"THRON_CONFIG_SECRET_ARN": pulumi.String(t.ConfigSecretArn),
		"THRON_ADMIN_HOST":        pulumi.String(t.AdminHost),
		"THRON_HOST":              pulumi.String(t.Host),
		"THRON_PUBLIC_FOLDER":     pulumi.String(t.PublicFolder),
		"STAGE":                   pulumi.String(d.env.Stage),
		"ENVIRONMENT_NAME":        pulumi.String(d.env.EnvironmentName),
	}
}

func cmsEnvironment(d deployment, table pulumi.StringOutput) pulumi.StringMap {
	c := d.env.CMS
	return pulumi.StringMap{
		"CONTENT_TABLE":    table,
		"CMS_API_KEY":      pulumi.ToSecret(pulumi.String(d.env.CMSAPIKey)).(pulumi.StringOutput),
		"CMS_ENDPOINT":     pulumi.String(c.Endpoint),
		"CMS_BASE_PATH":    pulumi.String(c.BasePath),
		"CDN_HOST":         pulumi.String(c.CDNHost),
		"STAGE":            pulumi.String(d.env.Stage),
		"ENVIRONMENT_NAME": pulumi.String(d.env.EnvironmentName),
	}
}

// anyKey is the decrypt scope of the Thron secret. The secret's key is not
// known to this deployment.
const anyKey = "*"

// thronLoaderRole grants table access plus the Thron secret read and its
// decrypt, and warns about the unscoped decrypt.
func thronLoaderRole(ctx *pulumi.Context, d deployment, tableArn pulumi.StringOutput) (roleSpec, error) {
	secret := d.env.Thron.ConfigSecretArn
	if err := ctx.Log.Warn(fmt.Sprintf("kms:Decrypt for the Thron secret %s is granted on all keys", secret), &pulumi.LogArgs{}); err != nil {
		return roleSpec{}, err
	}
	return roleSpec{
		Managed: []string{lambdaBasicExecution},
		Inline: documentOutput(func(arns []string) []policy.Statement {
			stmts := []policy.Statement{policy.XRayWrite(), policy.TableReadWriteData(arns[0])}
			return append(stmts, policy.SecretAccess(secret, anyKey)...)
		}, tableArn),
	}, nil
}

func cmsLoaderRole(tableArn pulumi.StringOutput) roleSpec {
	return roleSpec{
		Managed: []string{lambdaBasicExecution},
		Inline: documentOutput(func(arns []string) []policy.Statement {
			return []policy.Statement{policy.XRayWrite(), policy.TableReadWriteData(arns[0])}
		}, tableArn),
	}
}
