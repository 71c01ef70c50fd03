// Package policy builds IAM policy documents and the grant statements shared
// by the stacks.
package policy

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Version is the IAM policy language version.
const Version = "2012-10-17"

// Statement is a single IAM policy statement.
type Statement struct {
	Sid       string              `json:"Sid,omitempty"`
	Effect    string              `json:"Effect"`
	Principal map[string][]string `json:"Principal,omitempty"`
	Action    []string            `json:"Action"`
	Resource  []string            `json:"Resource,omitempty"`
}

// Document is an IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// New returns a document holding stmts.
func New(stmts ...Statement) Document {
	return Document{Version: Version, Statement: stmts}
}

// JSON renders the document.
func (d Document) JSON() (string, error) {
	if len(d.Statement) == 0 {
		return "", fmt.Errorf("policy document has no statements")
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Allow returns an Allow statement for actions on resources.
func Allow(actions []string, resources ...string) Statement {
	return Statement{Effect: "Allow", Action: actions, Resource: resources}
}

// AssumeRole returns the trust policy letting service assume a role.
func AssumeRole(service string) Document {
	return New(Statement{
		Effect:    "Allow",
		Principal: map[string][]string{"Service": {service}},
		Action:    []string{"sts:AssumeRole"},
	})
}

// ServicePrincipalAllow returns an Allow statement granting service actions on
// resources, for use in resource policies.
func ServicePrincipalAllow(service string, actions []string, resources ...string) Statement {
	return Statement{
		Effect:    "Allow",
		Principal: map[string][]string{"Service": {service}},
		Action:    actions,
		Resource:  resources,
	}
}

// TableReadWriteData grants item-level read/write on a table and its indexes.
func TableReadWriteData(tableArn string) Statement {
	return Allow([]string{
		"dynamodb:BatchGetItem",
		"dynamodb:GetRecords",
		"dynamodb:GetShardIterator",
		"dynamodb:Query",
		"dynamodb:GetItem",
		"dynamodb:Scan",
		"dynamodb:ConditionCheckItem",
		"dynamodb:BatchWriteItem",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
		"dynamodb:DeleteItem",
		"dynamodb:DescribeTable",
	}, tableArn, tableArn+"/index/*")
}

// BucketReadWrite grants object read/write on a bucket.
func BucketReadWrite(bucketArn string) Statement {
	return Allow([]string{
		"s3:GetObject*",
		"s3:GetBucket*",
		"s3:List*",
		"s3:DeleteObject*",
		"s3:PutObject",
		"s3:PutObjectLegalHold",
		"s3:PutObjectRetention",
		"s3:PutObjectTagging",
		"s3:PutObjectVersionTagging",
		"s3:Abort*",
	}, bucketArn, bucketArn+"/*")
}

// SecretRead grants reading a Secrets Manager secret.
func SecretRead(secretArn string) Statement {
	return Allow([]string{"secretsmanager:GetSecretValue", "secretsmanager:DescribeSecret"}, secretArn)
}

// KMSDecrypt grants kms:Decrypt on the given keys.
func KMSDecrypt(keyArns ...string) Statement {
	return Allow([]string{"kms:Decrypt"}, keyArns...)
}

// SecretAccess returns the statements needed to read an encrypted secret:
// the secret read grant and the decrypt permission always travel together.
func SecretAccess(secretArn, keyArn string) []Statement {
	return []Statement{SecretRead(secretArn), KMSDecrypt(keyArn)}
}

// SSMParameterArn is the ARN pattern covering every parameter of an account.
func SSMParameterArn(partition, region, account string) string {
	return fmt.Sprintf("arn:%s:ssm:%s:%s:parameter/*", partition, region, account)
}

// SSMActions are the parameter-store actions granted to processing roles.
var SSMActions = []string{"ssm:PutParameter", "ssm:GetParameters", "ssm:GetParameter"}

// SSMParameters grants SSMActions on every parameter of an account.
func SSMParameters(partition, region, account string) Statement {
	return Allow(SSMActions, SSMParameterArn(partition, region, account))
}

// LambdaInvoke grants invoking functions, including their versions and aliases.
func LambdaInvoke(functionArns ...string) Statement {
	resources := make([]string, 0, 2*len(functionArns))
	for _, arn := range functionArns {
		resources = append(resources, arn, arn+":*")
	}
	return Allow([]string{"lambda:InvokeFunction"}, resources...)
}

// GlueJobRun grants starting and observing a Glue job.
func GlueJobRun(jobArn string) Statement {
	return Allow([]string{"glue:StartJobRun", "glue:GetJobRun", "glue:GetJobRuns", "glue:BatchStopJobRun"}, jobArn)
}

// StartExecution grants starting a state machine.
func StartExecution(stateMachineArn string) Statement {
	return Allow([]string{"states:StartExecution"}, stateMachineArn)
}

// XRayWrite grants emitting traces; required by active tracing.
func XRayWrite() Statement {
	return Allow([]string{"xray:PutTraceSegments", "xray:PutTelemetryRecords"}, "*")
}

// Allows reports whether doc has an Allow statement covering action on
// resource. Trailing "*" wildcards in actions and resources are honoured.
func Allows(doc Document, action, resource string) bool {
	for _, st := range doc.Statement {
		if st.Effect != "Allow" {
			continue
		}
		if matchAny(st.Action, action) && (len(st.Resource) == 0 || matchAny(st.Resource, resource)) {
			return true
		}
	}
	return false
}

func matchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if p == value || p == "*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok && strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// Parse decodes a policy document rendered by JSON.
func Parse(s string) (Document, error) {
	var d Document
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Document{}, fmt.Errorf("invalid policy document: %w", err)
	}
	return d, nil
}
