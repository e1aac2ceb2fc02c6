package genesis

import (
	"fmt"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
)

// DefaultAuthority owns everything the default genesis registers.
var DefaultAuthority = ident.MustAccountID("alice@wonderland")

// Default returns the stock genesis: domains wonderland and
// garden_of_live_flowers, accounts alice and bob in wonderland, and the
// rose#wonderland and cabbage#garden_of_live_flowers definitions owned by
// alice, who starts with 13 roses and 44 cabbage.
func Default() model.Batch {
	wonderland := ident.MustDomainID("wonderland")
	garden := ident.MustDomainID("garden_of_live_flowers")
	bob := ident.MustAccountID("bob@wonderland")
	rose := ident.MustAssetDefinitionID("rose#wonderland")
	cabbage := ident.MustAssetDefinitionID("cabbage#garden_of_live_flowers")
	unconstrained := model.NumericType(numeric.Unconstrained())

	return model.Batch{
		Authority: DefaultAuthority,
		Instructions: []model.Instruction{
			model.RegisterDomain{ID: wonderland},
			model.RegisterDomain{ID: garden},
			model.RegisterAccount{ID: DefaultAuthority},
			model.RegisterAccount{ID: bob},
			model.RegisterAssetDefinition{ID: rose, Type: unconstrained, Mintable: model.MintableInfinitely},
			model.RegisterAssetDefinition{ID: cabbage, Type: unconstrained, Mintable: model.MintableInfinitely},
			model.RegisterAsset{ID: ident.NewAssetID(rose, DefaultAuthority), Value: model.NumericValue(numeric.MustInt(13))},
			model.RegisterAsset{ID: ident.NewAssetID(cabbage, DefaultAuthority), Value: model.NumericValue(numeric.MustInt(44))},
		},
	}
}

// Synthetic returns a genesis with n domains wonderland-<i>, each holding
// an account alice-<i> and a numeric definition xor-<i>. It is meant for
// load tests.
func Synthetic(authority ident.AccountID, n int) (model.Batch, error) {
	instrs := make([]model.Instruction, 0, 4+3*n)
	instrs = append(instrs,
		model.RegisterDomain{ID: authority.Domain},
		model.RegisterAccount{ID: authority},
	)
	for i := range n {
		domain, err := ident.ParseDomainID(fmt.Sprintf("wonderland-%d", i))
		if err != nil {
			return model.Batch{}, err
		}
		if domain == authority.Domain {
			return model.Batch{}, fmt.Errorf("synthetic domain %s collides with the authority's domain", domain)
		}
		signatory, err := ident.ParseName(fmt.Sprintf("alice-%d", i))
		if err != nil {
			return model.Batch{}, err
		}
		def, err := ident.ParseName(fmt.Sprintf("xor-%d", i))
		if err != nil {
			return model.Batch{}, err
		}
		instrs = append(instrs,
			model.RegisterDomain{ID: domain},
			model.RegisterAccount{ID: ident.NewAccountID(signatory, domain)},
			model.RegisterAssetDefinition{
				ID:   ident.NewAssetDefinitionID(def, domain),
				Type: model.NumericType(numeric.Unconstrained()),
			},
		)
	}
	return model.Batch{Authority: authority, Instructions: instrs}, nil
}
