package naming

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNamer_TrunkStagesOmitSuffix(t *testing.T) {
	for _, stage := range TrunkStages {
		n := Namer{Prefix: "fan-app-p13n", Stage: stage}
		require.Equal(t, "fan-app-p13n-content-data-cache", n.Name("content-data-cache"), stage)
		require.Equal(t, "fan-app-p13n-stack", n.Stack(CoreStack), stage)
	}
}

func TestNamer_OtherStagesAppendSuffix(t *testing.T) {
	for _, stage := range []string{"qa1", "feature-x", "Prod", "develop"} {
		n := Namer{Prefix: "fan-app-p13n", Stage: stage}
		require.Equal(t, "fan-app-p13n-content-data-cache-"+stage, n.Name("content-data-cache"))
		require.Equal(t, "fan-app-p13n-data-processing-content-stack-"+stage, n.Stack(ProcessingStack))
	}
}

func TestNamer_StackNames(t *testing.T) {
	got := Namer{Prefix: "p", Stage: "qa1"}.StackNames()
	require.Equal(t, map[string]string{
		"core":       "p-stack-qa1",
		"ingestion":  "p-data-ingestion-content-stack-qa1",
		"processing": "p-data-processing-content-stack-qa1",
	}, got)
}

func mustRoot(t *testing.T, id string) Scope {
	t.Helper()
	s, err := Root(id)
	require.NoError(t, err)
	return s
}

func mustChild(t *testing.T, s Scope, id string) Scope {
	t.Helper()
	c, err := s.Child(id)
	require.NoError(t, err)
	return c
}

func TestScope_DeterministicIDs(t *testing.T) {
	root := mustRoot(t, "core")
	child := mustChild(t, root, "ingestion")
	require.Equal(t, "core-table", root.ID("table"))
	require.Equal(t, "core-ingestion-fn", child.ID("fn"))
	require.Equal(t, "core-ingestion-fn", mustChild(t, mustRoot(t, "core"), "ingestion").ID("fn"))
	require.Equal(t, "core/ingestion", child.Path())
	require.Equal(t, "core-ingestion", child.ID(" "))

	// siblings do not share backing storage
	a := mustChild(t, root, "a")
	b := mustChild(t, root, "b")
	require.Equal(t, "core-a-x", a.ID("x"))
	require.Equal(t, "core-b-x", b.ID("x"))
}

func TestScope_RejectsEmptySegments(t *testing.T) {
	_, err := Root("")
	require.ErrorContains(t, err, "root scope: empty scope segment")

	_, err = mustChild(t, mustRoot(t, "core"), "ingestion").Child(" ")
	require.ErrorContains(t, err, "child of core/ingestion: empty scope segment")
}
