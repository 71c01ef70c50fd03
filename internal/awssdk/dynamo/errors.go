package dynamo

// Note: Generic AWS/smithy error categories and classifiers live under
// internal/awssdk/errors. DynamoDB helpers here use the common classifier
// and only add table-specific context to log fields.
//
// Logging: message + structured context (logging.Fields), never
// printf-style messages.
