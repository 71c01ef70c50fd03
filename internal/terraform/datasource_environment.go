package provider

import (
	"context"
	"os"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/datasource/schema"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	"github.com/fanapp/fanapp-personalization/internal/config"
	"github.com/fanapp/fanapp-personalization/internal/filters"
	"github.com/fanapp/fanapp-personalization/internal/naming"
)

var _ datasource.DataSource = (*environmentDataSource)(nil)

// NewEnvironmentDataSource exposes the resolved deployment environment.
func NewEnvironmentDataSource() datasource.DataSource { return &environmentDataSource{} }

type environmentDataSource struct{}

type environmentModel struct {
	// Overrides
	Stage           types.String `tfsdk:"stage"`
	P13N            types.String `tfsdk:"p13n"`
	CMSEnv          types.String `tfsdk:"cms_env"`
	ThronEnv        types.String `tfsdk:"thron_env"`
	Account         types.String `tfsdk:"account"`
	Region          types.String `tfsdk:"region"`
	EnvironmentName types.String `tfsdk:"environment_name"`

	// Outputs
	ID                   types.String `tfsdk:"id"`
	Trunk                types.Bool   `tfsdk:"trunk"`
	StackNames           types.Map    `tfsdk:"stack_names"`
	ContentTableName     types.String `tfsdk:"content_table_name"`
	CMSEndpoint          types.String `tfsdk:"cms_endpoint"`
	CMSBasePath          types.String `tfsdk:"cms_base_path"`
	ThronHost            types.String `tfsdk:"thron_host"`
	ProfileFilterPattern types.String `tfsdk:"profile_filter_pattern"`
	ContentFilterPattern types.String `tfsdk:"content_filter_pattern"`
}

func (d *environmentDataSource) Metadata(_ context.Context, req datasource.MetadataRequest, resp *datasource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_environment"
}

func (d *environmentDataSource) Schema(_ context.Context, _ datasource.SchemaRequest, resp *datasource.SchemaResponse) {
	override := func(desc string) schema.StringAttribute {
		return schema.StringAttribute{Optional: true, Computed: true, Description: desc}
	}
	resp.Schema = schema.Schema{
		Description: "Resolve the personalization deployment environment, its stack names and stream filters. Inputs override the process environment.",
		Attributes: map[string]schema.Attribute{
			"stage":            override("STAGE"),
			"p13n":             override("P13N name prefix"),
			"cms_env":          override("CMS_ENV label"),
			"thron_env":        override("THRON_ENV label"),
			"account":          override("Deployment account (CDK_DEPLOY_ACCOUNT)"),
			"region":           override("Deployment region (CDK_DEPLOY_REGION)"),
			"environment_name": override("ENVIRONMENT_NAME"),

			"id":                     schema.StringAttribute{Computed: true},
			"trunk":                  schema.BoolAttribute{Computed: true},
			"stack_names":            schema.MapAttribute{Computed: true, ElementType: types.StringType},
			"content_table_name":     schema.StringAttribute{Computed: true},
			"cms_endpoint":           schema.StringAttribute{Computed: true},
			"cms_base_path":          schema.StringAttribute{Computed: true},
			"thron_host":             schema.StringAttribute{Computed: true},
			"profile_filter_pattern": schema.StringAttribute{Computed: true},
			"content_filter_pattern": schema.StringAttribute{Computed: true},
		},
	}
}

func (d *environmentDataSource) Read(ctx context.Context, req datasource.ReadRequest, resp *datasource.ReadResponse) {
	var m environmentModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &m)...)
	if resp.Diagnostics.HasError() {
		return
	}
	out, diags := resolveModel(ctx, m, os.LookupEnv)
	resp.Diagnostics.Append(diags...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &out)...)
}

func (m environmentModel) overrides() map[string]string {
	return map[string]string{
		"STAGE":              m.Stage.ValueString(),
		"P13N":               m.P13N.ValueString(),
		"CMS_ENV":            m.CMSEnv.ValueString(),
		"THRON_ENV":          m.ThronEnv.ValueString(),
		"CDK_DEPLOY_ACCOUNT": m.Account.ValueString(),
		"CDK_DEPLOY_REGION":  m.Region.ValueString(),
		"ENVIRONMENT_NAME":   m.EnvironmentName.ValueString(),
	}
}

// resolveModel overlays the configured overrides on base and fills in the
// computed attributes.
func resolveModel(ctx context.Context, m environmentModel, base config.Lookup) (environmentModel, diag.Diagnostics) {
	var diags diag.Diagnostics
	env, err := config.Resolve(config.Overlay(m.overrides(), base))
	if err != nil {
		diags.AddError("Failed to resolve environment", err.Error())
		return m, diags
	}
	profile, err := filters.ProfileOnboarding().JSON()
	if err != nil {
		diags.AddError("Failed to render profile filter", err.Error())
		return m, diags
	}
	content, err := filters.ContentUpserts().JSON()
	if err != nil {
		diags.AddError("Failed to render content filter", err.Error())
		return m, diags
	}

	names := env.Namer()
	stacks, d := types.MapValueFrom(ctx, types.StringType, names.StackNames())
	diags.Append(d...)
	if diags.HasError() {
		return m, diags
	}

	m.Stage = types.StringValue(env.Stage)
	m.P13N = types.StringValue(env.P13N)
	m.CMSEnv = types.StringValue(env.CMSEnv)
	m.ThronEnv = types.StringValue(env.ThronEnv)
	m.Account = types.StringValue(env.Account)
	m.Region = types.StringValue(env.Region)
	m.EnvironmentName = types.StringValue(env.EnvironmentName)

	m.ID = types.StringValue(names.Stack(naming.CoreStack))
	m.Trunk = types.BoolValue(env.Trunk())
	m.StackNames = stacks
	m.ContentTableName = types.StringValue(names.Name("content-data-cache"))
	m.CMSEndpoint = types.StringValue(env.CMS.Endpoint)
	m.CMSBasePath = types.StringValue(env.CMS.BasePath)
	m.ThronHost = types.StringValue(env.Thron.Host)
	m.ProfileFilterPattern = types.StringValue(profile)
	m.ContentFilterPattern = types.StringValue(content)
	return m, diags
}
