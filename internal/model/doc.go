// Package model defines the ledger's data model: entities, permissions,
// triggers, event filters, instructions and events.
//
// Instructions, permissions, event filters and events are closed sum types
// expressed as sealed interfaces. Each has a JSON envelope codec so batches
// can be read from files, written to the block store, and hashed:
//
//	{"register_domain": {"id": "wonderland"}}
//	{"name": "CanRegisterAccount", "payload": {"domain": "wonderland"}}
//	{"data": {"entity": "domain", "events": ["MetadataInserted"]}}
//
// Permissions whose name the core does not know decode to Custom, which
// keeps their payload opaque and compares it canonically.
//
// Everything in this package is plain data. Validation that depends on
// world state lives in internal/executor and internal/authz.
package model
