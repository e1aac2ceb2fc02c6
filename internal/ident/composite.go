package ident

import (
	"strings"
)

// AccountID identifies an account: a signatory within a domain.
//
// The same signatory in two domains names two distinct accounts.
type AccountID struct {
	Signatory Name
	Domain    DomainID
}

// NewAccountID builds an AccountID from its parts.
func NewAccountID(signatory Name, domain DomainID) AccountID {
	return AccountID{Signatory: signatory, Domain: domain}
}

// ParseAccountID parses "signatory@domain".
func ParseAccountID(s string) (AccountID, error) {
	sig, dom, ok := strings.Cut(s, AccountSeparator)
	if !ok {
		return AccountID{}, &ParseError{Kind: "account_id", Input: s, Reason: "missing '@'"}
	}
	signatory, err := ParseName(sig)
	if err != nil {
		return AccountID{}, &ParseError{Kind: "account_id", Input: s, Reason: "signatory: " + reason(err)}
	}
	domain, err := ParseDomainID(dom)
	if err != nil {
		return AccountID{}, &ParseError{Kind: "account_id", Input: s, Reason: "domain: " + reason(err)}
	}
	return AccountID{Signatory: signatory, Domain: domain}, nil
}

// MustAccountID is like ParseAccountID but panics on error.
func MustAccountID(s string) AccountID {
	id, err := ParseAccountID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id AccountID) String() string {
	return id.Signatory.s + AccountSeparator + id.Domain.String()
}

// IsZero reports whether id is unset.
func (id AccountID) IsZero() bool { return id.Signatory.IsZero() && id.Domain.IsZero() }

// MarshalText implements encoding.TextMarshaler.
func (id AccountID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// AssetDefinitionID identifies a kind of asset within a domain.
type AssetDefinitionID struct {
	Name   Name
	Domain DomainID
}

// NewAssetDefinitionID builds an AssetDefinitionID from its parts.
func NewAssetDefinitionID(name Name, domain DomainID) AssetDefinitionID {
	return AssetDefinitionID{Name: name, Domain: domain}
}

// ParseAssetDefinitionID parses "name#domain".
func ParseAssetDefinitionID(s string) (AssetDefinitionID, error) {
	name, dom, ok := strings.Cut(s, AssetSeparator)
	if !ok {
		return AssetDefinitionID{}, &ParseError{Kind: "asset_definition_id", Input: s, Reason: "missing '#'"}
	}
	n, err := ParseName(name)
	if err != nil {
		return AssetDefinitionID{}, &ParseError{Kind: "asset_definition_id", Input: s, Reason: "name: " + reason(err)}
	}
	d, err := ParseDomainID(dom)
	if err != nil {
		return AssetDefinitionID{}, &ParseError{Kind: "asset_definition_id", Input: s, Reason: "domain: " + reason(err)}
	}
	return AssetDefinitionID{Name: n, Domain: d}, nil
}

// MustAssetDefinitionID is like ParseAssetDefinitionID but panics on error.
func MustAssetDefinitionID(s string) AssetDefinitionID {
	id, err := ParseAssetDefinitionID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id AssetDefinitionID) String() string {
	return id.Name.s + AssetSeparator + id.Domain.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id AssetDefinitionID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AssetDefinitionID) UnmarshalText(b []byte) error {
	parsed, err := ParseAssetDefinitionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// AssetID identifies one account's holding of one asset definition.
// The definition's domain and the account's domain may differ.
type AssetID struct {
	Definition AssetDefinitionID
	Account    AccountID
}

// NewAssetID builds an AssetID from its parts.
func NewAssetID(definition AssetDefinitionID, account AccountID) AssetID {
	return AssetID{Definition: definition, Account: account}
}

// ParseAssetID parses either form:
//
//	name#domain#signatory@account_domain
//	name##signatory@domain   (definition domain equals account domain)
func ParseAssetID(s string) (AssetID, error) {
	name, rest, ok := strings.Cut(s, AssetSeparator)
	if !ok {
		return AssetID{}, &ParseError{Kind: "asset_id", Input: s, Reason: "missing '#'"}
	}
	defDomain, accountText, ok := strings.Cut(rest, AssetSeparator)
	if !ok {
		return AssetID{}, &ParseError{Kind: "asset_id", Input: s, Reason: "missing second '#'"}
	}

	account, err := ParseAccountID(accountText)
	if err != nil {
		return AssetID{}, &ParseError{Kind: "asset_id", Input: s, Reason: "account: " + reason(err)}
	}
	n, err := ParseName(name)
	if err != nil {
		return AssetID{}, &ParseError{Kind: "asset_id", Input: s, Reason: "name: " + reason(err)}
	}

	domain := account.Domain
	if defDomain != "" {
		domain, err = ParseDomainID(defDomain)
		if err != nil {
			return AssetID{}, &ParseError{Kind: "asset_id", Input: s, Reason: "definition domain: " + reason(err)}
		}
	}

	return AssetID{
		Definition: AssetDefinitionID{Name: n, Domain: domain},
		Account:    account,
	}, nil
}

// MustAssetID is like ParseAssetID but panics on error.
func MustAssetID(s string) AssetID {
	id, err := ParseAssetID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the short form when the definition lives in the account's
// domain and the long form otherwise.
func (id AssetID) String() string {
	if id.Definition.Domain == id.Account.Domain {
		return id.Definition.Name.s + AssetSeparator + AssetSeparator + id.Account.String()
	}
	return id.LongString()
}

// LongString always returns the long form.
func (id AssetID) LongString() string {
	return id.Definition.String() + AssetSeparator + id.Account.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id AssetID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *AssetID) UnmarshalText(b []byte) error {
	parsed, err := ParseAssetID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// reason extracts the bare reason from a nested ParseError.
func reason(err error) string {
	if pe, ok := err.(*ParseError); ok {
		return pe.Reason
	}
	return err.Error()
}
