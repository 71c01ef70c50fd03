package workflow

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestChainLinksSteps(t *testing.T) {
	m, err := Chain(
		LambdaInvoke("first", "arn:fn:first").WithResultPath("$"),
		Wait("pause", 10),
		Succeed("done"),
	)
	require.NoError(t, err)
	require.Equal(t, "first", m.StartAt)
	require.Equal(t, "pause", m.States["first"].Next)
	require.Equal(t, "done", m.States["pause"].Next)
	require.False(t, m.States["done"].End)
	require.Empty(t, m.States["done"].Next)
	require.Equal(t, []string{"first", "pause", "done"}, m.StateNames())

	first := m.States["first"]
	require.Equal(t, LambdaInvokeResource, first.Resource)
	require.Equal(t, "arn:fn:first", first.Parameters["FunctionName"])
	require.Equal(t, "$", first.Parameters["Payload.$"])
	require.NotNil(t, first.ResultPath)
	require.Equal(t, "$", *first.ResultPath)
}

func TestChainEndsOnLastNonTerminal(t *testing.T) {
	m, err := Chain(GlueStartJobRun("glue", "job-a"))
	require.NoError(t, err)
	s := m.States["glue"]
	require.True(t, s.End)
	require.Equal(t, GlueStartJobRunResource, s.Resource)
	require.Equal(t, map[string]any{"JobName": "job-a"}, s.Parameters)
	require.Nil(t, s.ResultPath)
}

func TestParallelBranchesAreSingleStepMachines(t *testing.T) {
	m, err := Chain(
		Parallel("fan", LambdaInvoke("a", "arn:a"), GlueStartJobRun("b", "job")),
		Succeed("ok"),
	)
	require.NoError(t, err)
	p := m.States["fan"]
	require.Equal(t, "Parallel", p.Type)
	require.Equal(t, "ok", p.Next)
	require.Len(t, p.Branches, 2)
	require.Equal(t, "a", p.Branches[0].StartAt)
	require.True(t, p.Branches[0].States["a"].End)
	require.True(t, p.Branches[1].States["b"].End)
}

func TestChainRejectsInvalidMachines(t *testing.T) {
	cases := map[string][]Step{
		"no steps":            nil,
		"duplicate":           {Wait("x", 1), Wait("x", 2)},
		"duplicate in branch": {Parallel("p", Wait("x", 1)), Wait("x", 2)},
		"empty name":          {Wait("", 1)},
		"long name":           {Wait(strings.Repeat("n", MaxStateNameLength+1), 1)},
		"zero wait":           {Wait("w", 0)},
		"empty parallel":      {Parallel("p")},
		"step after succeed":  {Succeed("s"), Wait("w", 1)},
	}
	for name, steps := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Chain(steps...)
			require.Error(t, err)
		})
	}
}

func TestInitialPipeline(t *testing.T) {
	m, err := Initial(InitialTargets{
		ThronInitialLoad:   "arn:thron",
		CMSInitialLoad:     "arn:cms",
		UserPrefsImport:    "arn:prefs",
		ContentImport:      "arn:content",
		GlueJobName:        "fan-app-p13n-user-behaviour-job",
		CreateSolution:     "arn:solution",
		CreateCampaign:     "arn:campaign",
		CreateEventTracker: "arn:tracker",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"initialDataLoad",
		"fanAppInitialThronLoad",
		"fanAppInitialCmsNewsUpdate",
		"initialDataImport",
		"fanAppInitialImportUserPreferences",
		"fanAppInitialGlueJob",
		"fanAppInitialImportContentData",
		"fanAppInitialWaitForInitialImport",
		"fanAppInitialCreateSolutionVersion",
		"fanAppInitialWaitForSolutionVersion",
		"fanAppInitialCreateUpdateCampaign",
		"fanAppPersonalizeCreateEventTracker",
		"fanAppInitialReportSuccess",
	}, m.StateNames())
	require.Equal(t, 900, m.States["fanAppInitialWaitForInitialImport"].Seconds)
	require.Equal(t, 1800, m.States["fanAppInitialWaitForSolutionVersion"].Seconds)
	require.Equal(t, "fan-app-p13n-user-behaviour-job",
		m.States["initialDataImport"].Branches[1].States["fanAppInitialGlueJob"].Parameters["JobName"])

	def, err := m.JSON()
	require.NoError(t, err)
	require.NotContains(t, def, "Retry")
	require.NotContains(t, def, "Catch")

	var round Machine
	require.NoError(t, json.Unmarshal([]byte(def), &round))
	require.NoError(t, Validate(round))
}

func TestUpdatePipeline(t *testing.T) {
	m, err := Update(UpdateTargets{UpdateSolution: "arn:us", UpdateCampaign: "arn:uc"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"fanAppUpdateSolutionVersion",
		"fanAppUpdateWaitForSolutionVersion",
		"fanAppUpdateCampaign",
		"fanAppUpdateReportSuccess",
	}, m.StateNames())
	require.Equal(t, "Succeed", m.States["fanAppUpdateReportSuccess"].Type)
}

func TestJSONIsDeterministic(t *testing.T) {
	m, err := Update(UpdateTargets{UpdateSolution: "a", UpdateCampaign: "b"})
	require.NoError(t, err)
	first, err := m.JSON()
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := m.JSON()
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	require.Contains(t, first, `"StartAt":"fanAppUpdateSolutionVersion"`)
}
