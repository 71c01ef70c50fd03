package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a shorthand for a DynamoDB item.
type Item = map[string]types.AttributeValue

// StringAttribute renders a string AttributeValue.
func StringAttribute(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }

// StringKeys flattens an item whose attributes are all strings, e.g. a
// primary key.
func StringKeys(item Item) (map[string]string, error) {
	out := make(map[string]string, len(item))
	for name, v := range item {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return nil, fmt.Errorf("dynamo: attribute %s is %T, not a string", name, v)
		}
		out[name] = s.Value
	}
	return out, nil
}
