package workflow

// InitialTargets are the resources invoked by the initial pipeline.
type InitialTargets struct {
	ThronInitialLoad   string
	CMSInitialLoad     string
	UserPrefsImport    string
	ContentImport      string
	GlueJobName        string
	CreateSolution     string
	CreateCampaign     string
	CreateEventTracker string
}

// UpdateTargets are the functions invoked by the update pipeline.
type UpdateTargets struct {
	UpdateSolution string
	UpdateCampaign string
}

// Wait durations in seconds.
const (
	InitialImportWait   = 900
	SolutionVersionWait = 1800
)

// Initial loads content, imports datasets, trains and publishes the first
// campaigns, then creates the event tracker.
func Initial(t InitialTargets) (Machine, error) {
	return Chain(
		Parallel("initialDataLoad",
			LambdaInvoke("fanAppInitialThronLoad", t.ThronInitialLoad),
			LambdaInvoke("fanAppInitialCmsNewsUpdate", t.CMSInitialLoad),
		),
		Parallel("initialDataImport",
			LambdaInvoke("fanAppInitialImportUserPreferences", t.UserPrefsImport),
			GlueStartJobRun("fanAppInitialGlueJob", t.GlueJobName),
			LambdaInvoke("fanAppInitialImportContentData", t.ContentImport),
		),
		Wait("fanAppInitialWaitForInitialImport", InitialImportWait),
		LambdaInvoke("fanAppInitialCreateSolutionVersion", t.CreateSolution).WithResultPath("$"),
		Wait("fanAppInitialWaitForSolutionVersion", SolutionVersionWait),
		LambdaInvoke("fanAppInitialCreateUpdateCampaign", t.CreateCampaign).WithResultPath("$"),
		LambdaInvoke("fanAppPersonalizeCreateEventTracker", t.CreateEventTracker).WithResultPath("$"),
		Succeed("fanAppInitialReportSuccess"),
	)
}

// Update retrains the solutions and refreshes the campaigns.
func Update(t UpdateTargets) (Machine, error) {
	return Chain(
		LambdaInvoke("fanAppUpdateSolutionVersion", t.UpdateSolution).WithResultPath("$"),
		Wait("fanAppUpdateWaitForSolutionVersion", SolutionVersionWait),
		LambdaInvoke("fanAppUpdateCampaign", t.UpdateCampaign).WithResultPath("$"),
		Succeed("fanAppUpdateReportSuccess"),
	)
}
