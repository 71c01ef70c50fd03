package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	awserrors "github.com/fanapp/fanapp-personalization/internal/awssdk/errors"
	"github.com/fanapp/fanapp-personalization/internal/utils/logging"
)

// SSMPrefix marks a value that names an SSM parameter instead of carrying
// the secret itself, e.g. CMS_API_KEY=ssm:/fanapp/cms/api-key.
const SSMPrefix = "ssm:"

// ParameterAPI is the subset of the SSM client used to resolve references.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// HasSecretRefs reports whether any value still needs ResolveSecrets.
func (e *Env) HasSecretRefs() bool { return strings.HasPrefix(e.CMSAPIKey, SSMPrefix) }

// ResolveSecrets replaces ssm: references in env with the decrypted
// parameter values. Plain values are left untouched.
func ResolveSecrets(ctx context.Context, env *Env, client ParameterAPI, log logging.Logger) error {
	if log == nil {
		log = logging.NopLogger{}
	}
	if !env.HasSecretRefs() {
		return nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(env.CMSAPIKey, SSMPrefix))
	if name == "" {
		return fmt.Errorf("environment variable CMS_API_KEY: empty %s reference", SSMPrefix)
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(name), WithDecryption: aws.Bool(true)})
	if err != nil {
		err = awserrors.Classify(err)
		log.Error("ssm parameter lookup failed", logging.Fields{"parameter": name, "error": err.Error()})
		return fmt.Errorf("resolve CMS_API_KEY from %s: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return fmt.Errorf("resolve CMS_API_KEY from %s: parameter has no value", name)
	}
	env.CMSAPIKey = *out.Parameter.Value
	log.Debug("resolved secret reference", logging.Fields{"variable": "CMS_API_KEY", "parameter": name})
	return nil
}
