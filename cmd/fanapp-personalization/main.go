// Command fanapp-personalization is the Pulumi program deploying the three
// personalization stacks from the process environment.
package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/config"
	provider "github.com/fanapp/fanapp-personalization/internal/pulumi"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		env, err := config.Load()
		if err != nil {
			return err
		}
		return provider.DeployEnv(ctx, env)
	})
}
