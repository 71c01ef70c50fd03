package dynamo

// ContentHashKey is the partition key of the content cache table.
const ContentHashKey = "contentId"

// ContentKey returns the primary key of a content cache row.
func ContentKey(contentID string) Item {
	return Item{ContentHashKey: StringAttribute(contentID)}
}
