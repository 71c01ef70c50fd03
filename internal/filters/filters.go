// Package filters holds the event-source-mapping filter patterns applied to
// the profile and content table streams, and evaluates them locally against
// stream records.
package filters

import (
	"fmt"
	"slices"

	"github.com/aws/aws-lambda-go/events"
	"github.com/goccy/go-json"

	"github.com/fanapp/fanapp-personalization/internal/awssdk/dynamo"
)

// OnboardingSortKey is the profile-table sort key written on onboarding.
const OnboardingSortKey = dynamo.OnboardingSK

// EventNameRemove is the stream event name of a deleted item.
const EventNameRemove = "REMOVE"

// Pattern is an event filter over DynamoDB stream records. It supports the
// subset of the filtering grammar the mappings use: exact string matches on
// key attributes and an anything-but list on the event name.
type Pattern struct {
	// KeyEquals maps a key attribute name to the admitted string values.
	KeyEquals map[string][]string
	// EventNameNot lists event names that are rejected.
	EventNameNot []string
}

// ProfileOnboarding admits non-removal writes of the onboarding profile row.
func ProfileOnboarding() Pattern {
	return Pattern{
		KeyEquals:    map[string][]string{dynamo.ProfileSK: {OnboardingSortKey}},
		EventNameNot: []string{EventNameRemove},
	}
}

// ContentUpserts admits every non-removal content-table event.
func ContentUpserts() Pattern {
	return Pattern{EventNameNot: []string{EventNameRemove}}
}

type anythingBut struct {
	AnythingBut []string `json:"anything-but"`
}

type keysPattern struct {
	Keys map[string]map[string][]string `json:"Keys"`
}

type wirePattern struct {
	DynamoDB  *keysPattern  `json:"dynamodb,omitempty"`
	EventName []anythingBut `json:"eventName,omitempty"`
}

// JSON renders the pattern in the form expected by the mapping's
// FilterCriteria.
func (p Pattern) JSON() (string, error) {
	w := wirePattern{}
	if len(p.KeyEquals) > 0 {
		keys := make(map[string]map[string][]string, len(p.KeyEquals))
		for attr, vals := range p.KeyEquals {
			keys[attr] = map[string][]string{"S": vals}
		}
		w.DynamoDB = &keysPattern{Keys: keys}
	}
	if len(p.EventNameNot) > 0 {
		w.EventName = []anythingBut{{AnythingBut: p.EventNameNot}}
	}
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("render filter pattern: %w", err)
	}
	return string(b), nil
}

// Matches reports whether rec passes the pattern.
func (p Pattern) Matches(rec events.DynamoDBEventRecord) bool {
	if slices.Contains(p.EventNameNot, rec.EventName) {
		return false
	}
	for attr, admitted := range p.KeyEquals {
		v, ok := rec.Change.Keys[attr]
		if !ok || v.DataType() != events.DataTypeString {
			return false
		}
		if !slices.Contains(admitted, v.String()) {
			return false
		}
	}
	return true
}

// ParsePattern decodes a rendered pattern. Only the grammar produced by JSON
// is understood.
func ParsePattern(s string) (Pattern, error) {
	var w wirePattern
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Pattern{}, fmt.Errorf("invalid filter pattern: %w", err)
	}
	p := Pattern{}
	if w.DynamoDB != nil {
		p.KeyEquals = map[string][]string{}
		for attr, typed := range w.DynamoDB.Keys {
			vals, ok := typed["S"]
			if !ok || len(typed) != 1 {
				return Pattern{}, fmt.Errorf("filter pattern key %q: only string matches are supported", attr)
			}
			p.KeyEquals[attr] = vals
		}
	}
	for _, ab := range w.EventName {
		p.EventNameNot = append(p.EventNameNot, ab.AnythingBut...)
	}
	return p, nil
}

// Record builds a stream record with string keys, for canaries and tests.
func Record(eventName string, keys map[string]string) events.DynamoDBEventRecord {
	k := make(map[string]events.DynamoDBAttributeValue, len(keys))
	for name, v := range keys {
		k[name] = events.NewStringAttribute(v)
	}
	return events.DynamoDBEventRecord{
		EventName:   eventName,
		EventSource: "aws:dynamodb",
		Change:      events.DynamoDBStreamRecord{Keys: k},
	}
}
