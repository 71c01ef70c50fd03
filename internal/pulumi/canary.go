package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/canary"
	"github.com/fanapp/fanapp-personalization/internal/config"
	"github.com/fanapp/fanapp-personalization/internal/utils/logging"
)

// canaryTargets are the deployed resources the post-deploy canaries inspect.
type canaryTargets struct {
	contentTable pulumi.StringOutput
	profileFn    pulumi.StringOutput
	contentFn    pulumi.StringOutput
	secretRoles  []pulumi.StringOutput
	secretArn    string
	// ready resolves once the checked mappings and grants exist.
	ready []pulumi.StringOutput
}

// canaryReadiness collects the outputs of the resources the deployed checks
// read: the stream mappings and the inline policies of the secret roles.
func canaryReadiness(mappings []pulumi.StringOutput, roles ...*serviceRole) []pulumi.StringOutput {
	out := append([]pulumi.StringOutput{}, mappings...)
	for _, r := range roles {
		out = append(out, r.grantsReady()...)
	}
	return out
}

// runDeployedCanaries builds the SDK clients and runs the deployed checks.
var runDeployedCanaries = func(ctx context.Context, region string, t canary.Targets, log logging.Logger) (canary.Report, error) {
	clients, err := canary.NewClients(ctx, region)
	if err != nil {
		return canary.Report{}, err
	}
	return canary.RunDeployed(ctx, clients, t, log)
}

// maybeExportCanaryStatus runs the deployed canaries once every target and
// the resources they check are known, and exports their status. Canaries
// never run during preview.
func maybeExportCanaryStatus(ctx *pulumi.Context, env *config.Env, t canaryTargets) error {
	if !env.Canary.Enabled || ctx.DryRun() {
		return nil
	}
	deps := append([]pulumi.StringOutput{t.contentTable, t.profileFn, t.contentFn}, t.secretRoles...)
	deps = append(deps, t.ready...)
	roles := len(t.secretRoles)
	status := allStrings(func(v []string) (string, error) {
		for i, s := range v {
			if s == "" {
				return "", fmt.Errorf("failed to resolve canary target %d", i)
			}
		}
		grants := make([]canary.SecretGrant, 0, roles)
		for _, role := range v[3 : 3+roles] {
			grants = append(grants, canary.SecretGrant{RoleArn: role, SecretArn: t.secretArn})
		}
		rep, err := runDeployedCanaries(ctx.Context(), env.Region, canary.Targets{
			ContentTable: v[0],
			Mappings: map[string]string{
				canary.ProfileMapping: v[1],
				canary.ContentMapping: v[2],
			},
			SecretGrants: grants,
			CanaryFile:   env.Canary.File,
		}, engineLogger{ctx: ctx})
		if err != nil {
			return "", err
		}
		if err := rep.Err(); err != nil {
			return "", err
		}
		return rep.Status(), nil
	}, deps...)
	ctx.Export("streamFilterCanary", status)
	return nil
}

// engineLogger forwards library logs to the Pulumi engine log.
type engineLogger struct {
	ctx *pulumi.Context
}

var _ logging.Logger = engineLogger{}

func (l engineLogger) Debug(msg string, f logging.Fields) {
	_ = l.ctx.Log.Debug(renderLog(msg, f), &pulumi.LogArgs{})
}

func (l engineLogger) Info(msg string, f logging.Fields) {
	_ = l.ctx.Log.Info(renderLog(msg, f), &pulumi.LogArgs{})
}

func (l engineLogger) Warn(msg string, f logging.Fields) {
	_ = l.ctx.Log.Warn(renderLog(msg, f), &pulumi.LogArgs{})
}

func (l engineLogger) Error(msg string, f logging.Fields) {
	_ = l.ctx.Log.Error(renderLog(msg, f), &pulumi.LogArgs{})
}

// renderLog appends fields as key=json pairs in key order.
func renderLog(msg string, f logging.Fields) string {
	if len(f) == 0 {
		return msg
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(msg)
	for _, k := range keys {
		v, err := json.Marshal(f[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%q", fmt.Sprint(f[k])))
		}
		fmt.Fprintf(&b, " %s=%s", k, v)
	}
	return b.String()
}
