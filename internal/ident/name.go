package ident

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Reserved separators used to compose identifiers.
const (
	AccountSeparator = "@"
	AssetSeparator   = "#"
)

// ParseError reports a malformed identifier.
type ParseError struct {
	Kind   string // "name", "account_id", ...
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %s", e.Kind, e.Input, e.Reason)
}

// Name is a validated identifier token.
// The zero value is not a valid Name; use ParseName or MustName.
type Name struct {
	s string
}

// ParseName validates s and returns it as a Name.
//
// s is NFC-normalized first so that visually identical names compare equal.
func ParseName(s string) (Name, error) {
	if err := validateName("name", s); err != nil {
		return Name{}, err
	}
	return Name{s: norm.NFC.String(s)}, nil
}

// MustName is like ParseName but panics on error.
// Use only in tests or for compile-time constants.
func MustName(s string) Name {
	n, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return n
}

func validateName(kind, s string) error {
	if s == "" {
		return &ParseError{Kind: kind, Input: s, Reason: "empty"}
	}
	if strings.Contains(s, AccountSeparator) {
		return &ParseError{Kind: kind, Input: s, Reason: "contains reserved '@'"}
	}
	if strings.Contains(s, AssetSeparator) {
		return &ParseError{Kind: kind, Input: s, Reason: "contains reserved '#'"}
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return &ParseError{Kind: kind, Input: s, Reason: "contains whitespace"}
	}
	return nil
}

// String returns the name text.
func (n Name) String() string { return n.s }

// IsZero reports whether n is the zero Name.
func (n Name) IsZero() bool { return n.s == "" }

// MarshalText implements encoding.TextMarshaler.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(b []byte) error {
	parsed, err := ParseName(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// DomainID identifies a Domain.
type DomainID struct {
	Name Name
}

// ParseDomainID parses a domain identifier.
func ParseDomainID(s string) (DomainID, error) {
	if err := validateName("domain_id", s); err != nil {
		return DomainID{}, err
	}
	return DomainID{Name: Name{s: norm.NFC.String(s)}}, nil
}

// MustDomainID is like ParseDomainID but panics on error.
func MustDomainID(s string) DomainID {
	id, err := ParseDomainID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id DomainID) String() string { return id.Name.s }

// IsZero reports whether id is unset.
func (id DomainID) IsZero() bool { return id.Name.IsZero() }

// MarshalText implements encoding.TextMarshaler.
func (id DomainID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *DomainID) UnmarshalText(b []byte) error {
	parsed, err := ParseDomainID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// RoleID identifies a Role.
type RoleID struct {
	Name Name
}

// ParseRoleID parses a role identifier.
func ParseRoleID(s string) (RoleID, error) {
	if err := validateName("role_id", s); err != nil {
		return RoleID{}, err
	}
	return RoleID{Name: Name{s: norm.NFC.String(s)}}, nil
}

// MustRoleID is like ParseRoleID but panics on error.
func MustRoleID(s string) RoleID {
	id, err := ParseRoleID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id RoleID) String() string { return id.Name.s }

// MarshalText implements encoding.TextMarshaler.
func (id RoleID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *RoleID) UnmarshalText(b []byte) error {
	parsed, err := ParseRoleID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TriggerID identifies a Trigger.
type TriggerID struct {
	Name Name
}

// ParseTriggerID parses a trigger identifier.
func ParseTriggerID(s string) (TriggerID, error) {
	if err := validateName("trigger_id", s); err != nil {
		return TriggerID{}, err
	}
	return TriggerID{Name: Name{s: norm.NFC.String(s)}}, nil
}

// MustTriggerID is like ParseTriggerID but panics on error.
func MustTriggerID(s string) TriggerID {
	id, err := ParseTriggerID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id TriggerID) String() string { return id.Name.s }

// MarshalText implements encoding.TextMarshaler.
func (id TriggerID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TriggerID) UnmarshalText(b []byte) error {
	parsed, err := ParseTriggerID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
