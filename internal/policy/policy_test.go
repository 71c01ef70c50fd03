package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssumeRole_JSON(t *testing.T) {
	s, err := AssumeRole("personalize.amazonaws.com").JSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":["personalize.amazonaws.com"]},"Action":["sts:AssumeRole"]}]}`, s)
}

func TestJSON_RejectsEmptyDocument(t *testing.T) {
	_, err := New().JSON()
	require.Error(t, err)
}

func TestSecretAccess_CarriesReadAndDecrypt(t *testing.T) {
	secret := "arn:aws:secretsmanager:eu-west-1:111111111111:secret:thron-abc"
	doc := New(SecretAccess(secret, "*")...)
	require.True(t, Allows(doc, "secretsmanager:GetSecretValue", secret))
	require.True(t, Allows(doc, "secretsmanager:DescribeSecret", secret))
	require.True(t, Allows(doc, "kms:Decrypt", "arn:aws:kms:eu-west-1:111111111111:key/any"))
	require.False(t, Allows(doc, "secretsmanager:GetSecretValue", "arn:aws:secretsmanager:eu-west-1:111111111111:secret:other"))
}

func TestTableReadWriteData_CoversIndexes(t *testing.T) {
	arn := "arn:aws:dynamodb:eu-west-1:111111111111:table/content"
	doc := New(TableReadWriteData(arn))
	require.True(t, Allows(doc, "dynamodb:PutItem", arn))
	require.True(t, Allows(doc, "dynamodb:Query", arn+"/index/byType"))
	require.False(t, Allows(doc, "dynamodb:DeleteTable", arn))
}

func TestBucketReadWrite_Wildcards(t *testing.T) {
	arn := "arn:aws:s3:::bucket"
	doc := New(BucketReadWrite(arn))
	require.True(t, Allows(doc, "s3:GetObjectVersion", arn+"/key"))
	require.True(t, Allows(doc, "s3:ListBucket", arn))
	require.True(t, Allows(doc, "s3:AbortMultipartUpload", arn+"/key"))
	require.False(t, Allows(doc, "s3:DeleteBucket", arn))
}

func TestLambdaInvoke_QualifiedArns(t *testing.T) {
	doc := New(LambdaInvoke("arn:aws:lambda:eu-west-1:1:function:a"))
	require.True(t, Allows(doc, "lambda:InvokeFunction", "arn:aws:lambda:eu-west-1:1:function:a"))
	require.True(t, Allows(doc, "lambda:InvokeFunction", "arn:aws:lambda:eu-west-1:1:function:a:$LATEST"))
	require.False(t, Allows(doc, "lambda:InvokeFunction", "arn:aws:lambda:eu-west-1:1:function:b"))
}

func TestSSMParameters(t *testing.T) {
	st := SSMParameters("aws", "eu-west-1", "111111111111")
	require.Equal(t, []string{"arn:aws:ssm:eu-west-1:111111111111:parameter/*"}, st.Resource)
	require.True(t, Allows(New(st), "ssm:GetParameter", "arn:aws:ssm:eu-west-1:111111111111:parameter/fanapp/x"))
}

func TestParse_RoundTripsRenderedDocument(t *testing.T) {
	in := New(KMSDecrypt("arn:aws:kms:eu-west-1:1:key/k"), XRayWrite())
	s, err := in.JSON()
	require.NoError(t, err)
	out, err := Parse(s)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = Parse("{")
	require.Error(t, err)
}
