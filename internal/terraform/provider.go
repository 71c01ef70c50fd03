package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
)

// Ensure implementation satisfies expected interfaces
var _ provider.Provider = (*p13nProvider)(nil)

type p13nProvider struct {
	version string
}

// New returns a provider factory closure with the given version string.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &p13nProvider{version: version}
	}
}

func (p *p13nProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "p13n"
	resp.Version = p.version
}

func (p *p13nProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	// No provider-level configuration; overrides live on the data source.
	resp.Schema = schema.Schema{
		Attributes: map[string]schema.Attribute{},
	}
}

func (p *p13nProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
}

func (p *p13nProvider) Resources(_ context.Context) []func() resource.Resource {
	return nil
}

func (p *p13nProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return []func() datasource.DataSource{
		NewEnvironmentDataSource,
	}
}
