package provider

import (
	"context"
	"os"
	"testing"

	"github.com/hashicorp/terraform-plugin-framework/providerserver"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-go/tfprotov6"
	tftest "github.com/hashicorp/terraform-plugin-testing/helper/resource"
	"github.com/stretchr/testify/require"
)

var testVars = map[string]string{
	"CDK_DEFAULT_ACCOUNT": "123456789012",
	"CDK_DEFAULT_REGION":  "eu-west-1",
	"CMS_API_KEY":         "key",
	"PINPOINT_KEY":        "arn:aws:kms:eu-west-1:123456789012:key/pinpoint",
	"DDB_PROF_STR":        "arn:aws:dynamodb:eu-west-1:123456789012:table/fan-app-profiles-dev/stream/x",
}

func lookup(name string) (string, bool) {
	v, ok := testVars[name]
	return v, ok
}

func TestResolveModel_OverridesEnvironment(t *testing.T) {
	t.Parallel()
	m := environmentModel{Stage: types.StringValue("qa1"), CMSEnv: types.StringValue("prod")}
	out, diags := resolveModel(context.Background(), m, lookup)
	require.False(t, diags.HasError(), "resolve failed: %v", diags)
	require.False(t, out.Trunk.ValueBool(), "qa1 is not a trunk stage")
	require.Equal(t, "fan-app-p13n-content-data-cache-qa1", out.ContentTableName.ValueString())
	require.Equal(t, "fan-app-p13n-stack-qa1", out.ID.ValueString())
	require.Equal(t, "https://api.ferrari.com", out.CMSEndpoint.ValueString())
	require.Equal(t, "test", out.ThronEnv.ValueString(), "thron env defaults to test")
	require.Len(t, out.StackNames.Elements(), 3)
	require.Contains(t, out.ProfileFilterPattern.ValueString(), "fanApp#onboarding#")
}

func TestResolveModel_ReportsResolutionErrors(t *testing.T) {
	t.Parallel()
	m := environmentModel{ThronEnv: types.StringValue("staging")}
	_, diags := resolveModel(context.Background(), m, lookup)
	require.True(t, diags.HasError(), "unknown THRON_ENV must fail")
	require.Contains(t, diags.Errors()[0].Detail(), `unknown THRON_ENV "staging"`)
}

func TestAcc_Environment_basic(t *testing.T) {
	if os.Getenv("TF_ACC") == "" {
		t.Skip("set TF_ACC to run acceptance tests")
	}
	for k, v := range testVars {
		t.Setenv(k, v)
	}
	cfg := `
provider "p13n" {}
data "p13n_environment" "qa" {
  stage = "qa1"
}
`
	tftest.Test(t, tftest.TestCase{
		ProtoV6ProviderFactories: map[string]func() (tfprotov6.ProviderServer, error){
			"p13n": providerserver.NewProtocol6WithError(New("dev")()),
		},
		Steps: []tftest.TestStep{{
			Config: cfg,
			Check: tftest.ComposeAggregateTestCheckFunc(
				tftest.TestCheckResourceAttr("data.p13n_environment.qa", "trunk", "false"),
				tftest.TestCheckResourceAttr("data.p13n_environment.qa", "content_table_name", "fan-app-p13n-content-data-cache-qa1"),
				tftest.TestCheckResourceAttr("data.p13n_environment.qa", "stack_names.core", "fan-app-p13n-stack-qa1"),
			),
		}},
	})
}
