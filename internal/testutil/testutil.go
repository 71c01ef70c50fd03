// Package testutil holds fakes for the SDK client interfaces used across
// the repository, plus a recording logger.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/fanapp/fanapp-personalization/internal/utils/logging"
)

// FakeDynamoClient returns a configured DescribeTable response.
type FakeDynamoClient struct {
	Out *dynamodb.DescribeTableOutput
	Err error
	In  *dynamodb.DescribeTableInput
}

// DescribeTable records the input and returns the configured output.
func (f *FakeDynamoClient) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.In = in
	return f.Out, f.Err
}

// FakeLambdaClient serves ListEventSourceMappings from a per-function table.
type FakeLambdaClient struct {
	Mappings map[string]*lambda.ListEventSourceMappingsOutput
	Err      error
	Calls    []string
}

// ListEventSourceMappings returns the mappings configured for the function.
func (f *FakeLambdaClient) ListEventSourceMappings(_ context.Context, in *lambda.ListEventSourceMappingsInput, _ ...func(*lambda.Options)) (*lambda.ListEventSourceMappingsOutput, error) {
	fn := aws.ToString(in.FunctionName)
	f.Calls = append(f.Calls, fn)
	if f.Err != nil {
		return nil, f.Err
	}
	if out, ok := f.Mappings[fn]; ok {
		return out, nil
	}
	return &lambda.ListEventSourceMappingsOutput{}, nil
}

// FakeIAMClient serves SimulatePrincipalPolicy from a per-role table.
type FakeIAMClient struct {
	Results map[string]*iam.SimulatePrincipalPolicyOutput
	Err     error
	Inputs  []*iam.SimulatePrincipalPolicyInput
}

// SimulatePrincipalPolicy returns the result configured for the role.
func (f *FakeIAMClient) SimulatePrincipalPolicy(_ context.Context, in *iam.SimulatePrincipalPolicyInput, _ ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	f.Inputs = append(f.Inputs, in)
	if f.Err != nil {
		return nil, f.Err
	}
	if out, ok := f.Results[aws.ToString(in.PolicySourceArn)]; ok {
		return out, nil
	}
	return &iam.SimulatePrincipalPolicyOutput{}, nil
}

// BufferLogger is a buffer-backed logger that records calls for assertions.
type BufferLogger struct {
	mu      sync.Mutex
	Calls   []string
	Entries []string
}

// Debug records a debug-level log entry.
func (l *BufferLogger) Debug(msg string, ctx logging.Fields) { l.record("debug", msg, ctx) }

// Info records an info-level log entry.
func (l *BufferLogger) Info(msg string, ctx logging.Fields) { l.record("info", msg, ctx) }

// Warn records a warn-level log entry.
func (l *BufferLogger) Warn(msg string, ctx logging.Fields) { l.record("warn", msg, ctx) }

// Error records an error-level log entry.
func (l *BufferLogger) Error(msg string, ctx logging.Fields) { l.record("error", msg, ctx) }

func (l *BufferLogger) record(level, msg string, ctx logging.Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls = append(l.Calls, level)
	// simple human-readable capture for assertions; not a JSON serializer
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s ctx=%v", level, msg, ctx))
}

// Has reports whether any entry at level contains sub.
func (l *BufferLogger) Has(level, sub string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.Calls {
		if c == level && strings.Contains(l.Entries[i], sub) {
			return true
		}
	}
	return false
}

var _ logging.Logger = (*BufferLogger)(nil)
