package dynamo

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	awserrors "github.com/fanapp/fanapp-personalization/internal/awssdk/errors"
	"github.com/fanapp/fanapp-personalization/internal/utils/logging"
)

// DescribeTableAPI is the subset of the DynamoDB client used by Describe.
type DescribeTableAPI interface {
	DescribeTable(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// TableShape is the deployed key and stream configuration of a table.
type TableShape struct {
	Name           string
	HashKey        string
	RangeKey       string
	StreamEnabled  bool
	StreamViewType string
	StreamArn      string
}

// Describe reads the key and stream shape of table.
func Describe(ctx context.Context, client DescribeTableAPI, table string, logger logging.Logger) (TableShape, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if table == "" {
		return TableShape{}, errors.New("dynamo: Describe requires a table name")
	}
	out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		err = awserrors.Classify(err)
		logger.Warn("dynamo.describe.failed", logging.Fields{"table": table, "error": err.Error()})
		return TableShape{}, err
	}
	if out == nil || out.Table == nil {
		return TableShape{}, errors.New("dynamo: DescribeTable returned no table")
	}
	shape := TableShape{
		Name:      aws.ToString(out.Table.TableName),
		StreamArn: aws.ToString(out.Table.LatestStreamArn),
	}
	for _, k := range out.Table.KeySchema {
		switch k.KeyType {
		case types.KeyTypeHash:
			shape.HashKey = aws.ToString(k.AttributeName)
		case types.KeyTypeRange:
			shape.RangeKey = aws.ToString(k.AttributeName)
		}
	}
	if spec := out.Table.StreamSpecification; spec != nil {
		shape.StreamEnabled = aws.ToBool(spec.StreamEnabled)
		shape.StreamViewType = string(spec.StreamViewType)
	}
	logger.Debug("dynamo.describe.ok", logging.Fields{"table": table, "hashKey": shape.HashKey, "streamViewType": shape.StreamViewType})
	return shape, nil
}
