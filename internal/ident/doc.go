// Package ident parses and formats the identifiers of the ledger.
//
// Every identifier is built from Names. A Name is a non-empty NFC-normalized
// token that contains none of the reserved separators: '@', '#', or any
// whitespace. Composite identifiers join Names with those separators:
//
//	DomainID           wonderland
//	AccountID          ed0120CE7F...@wonderland
//	AssetDefinitionID  rose#wonderland
//	AssetID            rose#wonderland#ed0120CE7F...@chess   (long form)
//	AssetID            rose##ed0120CE7F...@wonderland        (same-domain short form)
//	RoleID             CHESS_MANAGER
//	TriggerID          mint_rose_on_execute
//
// All identifier types are comparable values and may be used as map keys.
// String always produces the canonical form; Parse accepts both the long form
// and the short form, so Parse(id.String()) == id for every id.
//
// This package is a leaf: it imports nothing internal.
package ident
