package provider

import (
	"fmt"

	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/fanapp/fanapp-personalization/internal/policy"
)

// AWS managed policies attached to service roles.
const (
	lambdaBasicExecution = "service-role/AWSLambdaBasicExecutionRole"
	lambdaVPCAccess      = "service-role/AWSLambdaVPCAccessExecutionRole"
	personalizeFull      = "service-role/AmazonPersonalizeFullAccess"
	glueServiceRole      = "service-role/AWSGlueServiceRole"
)

type roleSpec struct {
	// Name is the physical role name.
	Name    string
	Service string
	Managed []string
	// Inline renders the inline policy. Nil means no inline policy.
	Inline pulumi.StringInput
}

// serviceRole is a declared role plus its inline policy, if any.
type serviceRole struct {
	*awsiam.Role
	inline *awsiam.RolePolicy
}

// grantsReady lists outputs that resolve only once the role's inline policy
// exists.
func (r *serviceRole) grantsReady() []pulumi.StringOutput {
	if r.inline == nil {
		return nil
	}
	return []pulumi.StringOutput{r.inline.ID().ToStringOutput()}
}

func managedPolicyArn(partition, name string) string {
	return fmt.Sprintf("arn:%s:iam::aws:policy/%s", partition, name)
}

// newServiceRole declares a role assumable by spec.Service with its managed
// attachments and inline policy parented to the role.
// maxRoleNameLength is the IAM limit on role names.
const maxRoleNameLength = 64

func newServiceRole(ctx *pulumi.Context, id, partition string, spec roleSpec, opts []pulumi.ResourceOption) (*serviceRole, error) {
	if n := len(spec.Name); n > maxRoleNameLength {
		return nil, fmt.Errorf("role name %s is %d characters, IAM allows %d: shorten P13N or STAGE", spec.Name, n, maxRoleNameLength)
	}
	trust, err := policy.AssumeRole(spec.Service).JSON()
	if err != nil {
		return nil, err
	}
	role, err := awsiam.NewRole(ctx, id, &awsiam.RoleArgs{
		Name:             pulumi.String(spec.Name),
		AssumeRolePolicy: pulumi.String(trust),
	}, opts...)
	if err != nil {
		return nil, err
	}
	for _, m := range spec.Managed {
		_, err := awsiam.NewRolePolicyAttachment(ctx, fmt.Sprintf("%s-%s", id, managedSuffix(m)), &awsiam.RolePolicyAttachmentArgs{
			PolicyArn: pulumi.String(managedPolicyArn(partition, m)),
			Role:      role.Name,
		}, childOf(role, opts)...)
		if err != nil {
			return nil, err
		}
	}
	out := &serviceRole{Role: role}
	if spec.Inline != nil {
		out.inline, err = awsiam.NewRolePolicy(ctx, fmt.Sprintf("%s-inline", id), &awsiam.RolePolicyArgs{
			Name:   pulumi.String(spec.Name),
			Role:   role.Name,
			Policy: spec.Inline,
		}, childOf(role, opts)...)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func managedSuffix(name string) string {
	switch name {
	case lambdaBasicExecution:
		return "basic"
	case lambdaVPCAccess:
		return "vpc"
	case personalizeFull:
		return "personalize"
	case glueServiceRole:
		return "glue"
	default:
		return name
	}
}

// documentOutput renders a policy document once every ARN it references is
// known. build receives the resolved ARNs in order.
func documentOutput(build func(arns []string) []policy.Statement, arns ...pulumi.StringOutput) pulumi.StringOutput {
	return allStrings(func(vals []string) (string, error) {
		return policy.New(build(vals)...).JSON()
	}, arns...)
}

// staticDocument renders a policy document that references no outputs.
func staticDocument(stmts ...policy.Statement) (pulumi.StringInput, error) {
	js, err := policy.New(stmts...).JSON()
	if err != nil {
		return nil, err
	}
	return pulumi.String(js), nil
}
