package main

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fanapp/fanapp-personalization/internal/awssdk"
	"github.com/fanapp/fanapp-personalization/internal/canary"
	"github.com/fanapp/fanapp-personalization/internal/config"
	"github.com/fanapp/fanapp-personalization/internal/filters"
	"github.com/fanapp/fanapp-personalization/internal/utils/logging"
	"github.com/fanapp/fanapp-personalization/internal/workflow"
)

// Physical-name purposes listed by `names`, keyed by the stack declaring them.
var resourcePurposes = map[string][]string{
	"core": {
		"content-data-cache",
		"personalize-import-role",
		"video-dataset-group",
		"news-dataset-group",
		"common-layer",
	},
	"ingestion": {
		"thron-incremental-data-load",
		"cms-news-incremental-data-load",
		"thron-incremental-schedule",
		"cms-news-incremental-schedule",
	},
	"processing": {
		"user-behaviour-job",
		"user-behaviour-incremental-job",
		"user-behaviour-incremental-job-trigger",
		"lambda-processing-role",
		"pandas-layer",
		"ddbjson-layer",
		"user-prefs-initial-data-ingestion",
		"user-prefs-incremental-data-ingestion",
		"content-initial-data-ingestion",
		"content-incremental-data-ingestion",
		"thron-initial-data-load",
		"cms-news-initial-data-load",
		"personalize-initial-state-machine",
		"personalize-update-state-machine",
		"state-machine-role",
		"update-pipeline-rule",
	},
}

type cli struct {
	lookup    config.Lookup
	logLevel  string
	logFormat string
}

func newRootCmd(lookup config.Lookup) *cobra.Command {
	c := &cli{lookup: lookup}
	root := &cobra.Command{
		Use:           "p13nctl",
		Short:         "Inspect the FanApp personalization deployment",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "console", "log format: json or console")

	root.AddCommand(c.envCmd(), c.namesCmd(), c.filtersCmd(), c.workflowsCmd(), c.canaryCmd())
	return root
}

func (c *cli) logger(cmd *cobra.Command) logging.Logger {
	return logging.New(logging.Config{Level: c.logLevel, Format: c.logFormat, Output: cmd.ErrOrStderr()})
}

func (c *cli) env() (*config.Env, error) {
	return config.Resolve(c.lookup)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// --- env ---

func (c *cli) envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Print the resolved environment (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.env()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), env.Redacted())
		},
	}
}

// --- names ---

func (c *cli) namesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names",
		Short: "Print stack and resource names for the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.env()
			if err != nil {
				return err
			}
			n := env.Namer()
			resources := map[string][]string{}
			for stack, purposes := range resourcePurposes {
				for _, p := range purposes {
					resources[stack] = append(resources[stack], n.Name(p))
				}
			}
			resources["core"] = append(resources["core"],
				n.Name("personalize-bucket-"+env.Account),
				n.Name("artifacts-"+env.Account))
			return writeYAML(cmd.OutOrStdout(), map[string]any{
				"trunk":     env.Trunk(),
				"stacks":    n.StackNames(),
				"resources": resources,
			})
		},
	}
}

// --- filters ---

func (c *cli) filtersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "Print the stream filter patterns",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]string{}
			patterns := map[string]filters.Pattern{
				canary.ProfileMapping: filters.ProfileOnboarding(),
				canary.ContentMapping: filters.ContentUpserts(),
			}
			for name, p := range patterns {
				js, err := p.JSON()
				if err != nil {
					return fmt.Errorf("%s filter: %w", name, err)
				}
				out[name] = js
			}
			return writeYAML(cmd.OutOrStdout(), out)
		},
	}
}

// --- workflows ---

func (c *cli) workflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "Print both workflow definitions with the environment's function ARNs",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := c.env()
			if err != nil {
				return err
			}
			n := env.Namer()
			fn := func(purpose string) string {
				return awssdk.ARN("lambda", env.Region, env.Account, "function:"+n.Name(purpose))
			}
			initial, err := workflow.Initial(workflow.InitialTargets{
				ThronInitialLoad:   fn("thron-initial-data-load"),
				CMSInitialLoad:     fn("cms-news-initial-data-load"),
				UserPrefsImport:    fn("user-prefs-initial-data-ingestion"),
				ContentImport:      fn("content-initial-data-ingestion"),
				GlueJobName:        n.Name("user-behaviour-job"),
				CreateSolution:     fn("personalize-initial-solution"),
				CreateCampaign:     fn("personalize-initial-campaign"),
				CreateEventTracker: fn("personalize-event-tracker"),
			})
			if err != nil {
				return err
			}
			update, err := workflow.Update(workflow.UpdateTargets{
				UpdateSolution: fn("personalize-update-solution"),
				UpdateCampaign: fn("personalize-update-campaign"),
			})
			if err != nil {
				return err
			}
			defs := map[string]workflow.Machine{
				n.Name("personalize-initial-state-machine"): initial,
				n.Name("personalize-update-state-machine"):  update,
			}
			b, err := json.MarshalIndent(defs, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
}

// --- canary ---

func (c *cli) canaryCmd() *cobra.Command {
	var deployed bool
	var file string
	cmd := &cobra.Command{
		Use:   "canary",
		Short: "Replay the stream-filter cases; --deployed also checks the live stacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file, _ = c.lookup("P13N_CANARY_FILE")
			}
			log := c.logger(cmd)
			rep, err := canary.RunLocal(file)
			if rep.Results == nil && err != nil {
				return err
			}
			log.Info("canary.local", logging.Fields{"status": rep.Status()})
			fmt.Fprintf(cmd.OutOrStdout(), "local: %s\n", rep.Status())
			if err != nil || !deployed {
				return err
			}

			env, err := c.env()
			if err != nil {
				return err
			}
			clients, err := canary.NewClients(cmd.Context(), env.Region)
			if err != nil {
				return err
			}
			rep, err = canary.RunDeployed(cmd.Context(), clients, deployedTargets(env, file), log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployed: %s\n", rep.Status())
			return rep.Err()
		},
	}
	cmd.Flags().BoolVar(&deployed, "deployed", false, "also check the deployed table, mappings and grants")
	cmd.Flags().StringVar(&file, "file", "", "consumer canary file (default $P13N_CANARY_FILE)")
	return cmd
}

func deployedTargets(env *config.Env, file string) canary.Targets {
	n := env.Namer()
	role := func(purpose string) string {
		return fmt.Sprintf("arn:%s:iam::%s:role/%s", awssdk.PartitionForRegion(env.Region), env.Account, n.Name(purpose+"-role"))
	}
	return canary.Targets{
		ContentTable: n.Name("content-data-cache"),
		Mappings: map[string]string{
			canary.ProfileMapping: n.Name("user-prefs-incremental-data-ingestion"),
			canary.ContentMapping: n.Name("content-incremental-data-ingestion"),
		},
		SecretGrants: []canary.SecretGrant{
			{RoleArn: role("thron-incremental-data-load"), SecretArn: env.Thron.ConfigSecretArn},
			{RoleArn: role("thron-initial-data-load"), SecretArn: env.Thron.ConfigSecretArn},
		},
		CanaryFile: file,
	}
}
