// Package types defines the entity model of larder: the Entity field bag and
// its lifecycle State, the Registry that binds entity type names to tables
// and declarations, the standard errors, and the backend Config.
package types
