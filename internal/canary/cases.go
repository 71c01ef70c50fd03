// Package canary checks the stream filtering and grants of a deployed
// pipeline. Cases are YAML: an embedded base file plus an optional consumer
// file.
package canary

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fanapp/fanapp-personalization/internal/awssdk/dynamo"
	"github.com/fanapp/fanapp-personalization/internal/filters"
)

//go:embed assets/canaries/*.yaml
var canaryFS embed.FS

const baseCasesPath = "assets/canaries/stream-filters.yaml"

// Mapping names.
const (
	ProfileMapping = "profile"
	ContentMapping = "content"
)

// Expectations.
const (
	Admit = "admit"
	Drop  = "drop"
)

// Case is one stream record and the expected filtering outcome.
type Case struct {
	Name      string            `yaml:"name"`
	Mapping   string            `yaml:"mapping"`
	EventName string            `yaml:"eventName"`
	Keys      map[string]string `yaml:"keys"`
	Expect    string            `yaml:"expect"`
}

type caseDoc struct {
	Cases []Case `yaml:"cases"`
}

// ExpectedPatterns returns the filter pattern each mapping must carry.
func ExpectedPatterns() map[string]filters.Pattern {
	return map[string]filters.Pattern{
		ProfileMapping: filters.ProfileOnboarding(),
		ContentMapping: filters.ContentUpserts(),
	}
}

// LoadCases returns the base cases followed by the cases in consumerPath,
// when set.
func LoadCases(consumerPath string) ([]Case, error) {
	b, err := canaryFS.ReadFile(baseCasesPath)
	if err != nil {
		return nil, fmt.Errorf("read embedded canaries: %w", err)
	}
	cases, err := readCases(b, baseCasesPath)
	if err != nil {
		return nil, err
	}
	keyed, err := keyCases()
	if err != nil {
		return nil, err
	}
	cases = append(cases, keyed...)
	if consumerPath = strings.TrimSpace(consumerPath); consumerPath != "" {
		b, err := os.ReadFile(consumerPath)
		if err != nil {
			return nil, fmt.Errorf("read canary file %s: %w", consumerPath, err)
		}
		extra, err := readCases(b, consumerPath)
		if err != nil {
			return nil, err
		}
		cases = append(cases, extra...)
	}
	return cases, nil
}

// keyCases replays the keys the writers actually build, so a change to a key
// builder that the filters no longer admit shows up as a canary failure.
func keyCases() ([]Case, error) {
	profile, err := dynamo.StringKeys(dynamo.ProfileOnboardingKey("canary"))
	if err != nil {
		return nil, fmt.Errorf("profile onboarding key: %w", err)
	}
	content, err := dynamo.StringKeys(dynamo.ContentKey("canary-key"))
	if err != nil {
		return nil, fmt.Errorf("content key: %w", err)
	}
	return []Case{
		{Name: "onboarding key builder", Mapping: ProfileMapping, EventName: "INSERT", Keys: profile, Expect: Admit},
		{Name: "content key builder", Mapping: ContentMapping, EventName: "MODIFY", Keys: content, Expect: Admit},
	}, nil
}

func readCases(b []byte, src string) ([]Case, error) {
	var doc caseDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid canary YAML %s: %w", src, err)
	}
	var errs []error
	for i, c := range doc.Cases {
		if c.Mapping != ProfileMapping && c.Mapping != ContentMapping {
			errs = append(errs, fmt.Errorf("%s case #%d: unknown mapping %q", src, i+1, c.Mapping))
		}
		if c.Expect != Admit && c.Expect != Drop {
			errs = append(errs, fmt.Errorf("%s case #%d: expect must be %s or %s, got %q", src, i+1, Admit, Drop, c.Expect))
		}
		if c.EventName == "" {
			errs = append(errs, fmt.Errorf("%s case #%d: eventName is required", src, i+1))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return doc.Cases, nil
}

// Result is the outcome of one case.
type Result struct {
	Source string
	Case   Case
	Got    string
}

// OK reports whether the case behaved as expected.
func (r Result) OK() bool { return r.Got == r.Case.Expect }

// Report collects the results of one run.
type Report struct {
	Results []Result
}

// Failures returns the cases that did not behave as expected.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Err summarizes the failures, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, f := range r.Failures() {
		errs = append(errs, fmt.Errorf("canary %q (%s, %s): got %s, want %s", f.Case.Name, f.Source, f.Case.Mapping, f.Got, f.Case.Expect))
	}
	return errors.Join(errs...)
}

// Status renders the exported canary status.
func (r Report) Status() string {
	if err := r.Err(); err != nil {
		return "failed: " + err.Error()
	}
	return fmt.Sprintf("passed (%d checks)", len(r.Results))
}

// Evaluate replays cases against patterns, keyed by mapping name.
func Evaluate(source string, cases []Case, patterns map[string]filters.Pattern) []Result {
	out := make([]Result, 0, len(cases))
	for _, c := range cases {
		got := Drop
		if p, ok := patterns[c.Mapping]; ok && p.Matches(filters.Record(c.EventName, c.Keys)) {
			got = Admit
		}
		out = append(out, Result{Source: source, Case: c, Got: got})
	}
	return out
}

// RunLocal replays the cases against the patterns the stacks declare.
func RunLocal(consumerPath string) (Report, error) {
	cases, err := LoadCases(consumerPath)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Results: Evaluate("local", cases, ExpectedPatterns())}
	return rep, rep.Err()
}
