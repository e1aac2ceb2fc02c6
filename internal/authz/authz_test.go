package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/world"
)

var (
	chess = ident.MustDomainID("chess")
	alice = ident.MustAccountID("alice@chess")
	bob   = ident.MustAccountID("bob@chess")
	carol = ident.MustAccountID("carol@chess")
	pawn  = ident.MustAssetDefinitionID("pawn#chess")
	admin = ident.MustRoleID("admin")
)

// fixture: alice owns chess and the admin role, carol owns pawn and the rook
// trigger, and bob and carol each hold a pawn asset.
func fixture(t *testing.T) *world.Tx {
	t.Helper()
	w := world.New()
	tx := w.Begin()
	t.Cleanup(tx.Rollback)

	require.NoError(t, tx.RegisterDomain(model.Domain{ID: chess, OwnedBy: alice}))
	for _, id := range []ident.AccountID{alice, bob, carol} {
		require.NoError(t, tx.RegisterAccount(model.Account{ID: id}))
	}
	require.NoError(t, tx.RegisterAssetDefinition(model.AssetDefinition{
		ID: pawn, Type: model.NumericType(numeric.Integer()), Mintable: model.MintableOnce, OwnedBy: carol,
	}))
	for _, acc := range []ident.AccountID{bob, carol} {
		require.NoError(t, tx.RegisterAsset(model.Asset{ID: ident.NewAssetID(pawn, acc), Value: model.NumericValue(numeric.Zero())}))
	}
	require.NoError(t, tx.RegisterRole(model.Role{ID: admin, Owner: alice}))
	require.NoError(t, tx.RegisterTrigger(model.Trigger{
		ID: ident.MustTriggerID("rook"),
		Action: model.Action{
			Authority: carol,
			Repeats:   model.Indefinitely(),
			Filter:    model.ExecuteTriggerFilter{Trigger: ident.MustTriggerID("rook"), Authority: &bob},
		},
	}))
	return tx
}

func TestAuthorize_OwnershipRules(t *testing.T) {
	tx := fixture(t)
	bobPawn := ident.NewAssetID(pawn, bob)
	carolPawn := ident.NewAssetID(pawn, carol)
	rook := ident.MustTriggerID("rook")

	tests := []struct {
		name    string
		auth    ident.AccountID
		instr   model.Instruction
		allowed bool
	}{
		{"domain owner registers account", alice, model.RegisterAccount{ID: ident.MustAccountID("dave@chess")}, true},
		{"stranger registers account", bob, model.RegisterAccount{ID: ident.MustAccountID("dave@chess")}, false},
		{"account unregisters itself", bob, model.UnregisterAccount{ID: bob}, true},
		{"domain owner unregisters account", alice, model.UnregisterAccount{ID: bob}, true},
		{"peer unregisters account", carol, model.UnregisterAccount{ID: bob}, false},
		{"domain owner registers definition", alice, model.RegisterAssetDefinition{ID: ident.MustAssetDefinitionID("rook#chess")}, true},
		{"definition owner mints", carol, model.MintAsset{Asset: bobPawn, Amount: numeric.MustInt(1)}, true},
		{"definition's domain owner mints", alice, model.MintAsset{Asset: bobPawn, Amount: numeric.MustInt(1)}, true},
		{"holder mints", bob, model.MintAsset{Asset: bobPawn, Amount: numeric.MustInt(1)}, false},
		{"holder burns", bob, model.BurnAsset{Asset: bobPawn, Amount: numeric.MustInt(1)}, true},
		{"holder transfers", bob, model.TransferAsset{Source: bobPawn, Amount: numeric.MustInt(1), Destination: carol}, true},
		{"definition owner transfers", carol, model.TransferAsset{Source: bobPawn, Amount: numeric.MustInt(1), Destination: carol}, true},
		{"domain owner transfers", alice, model.TransferAsset{Source: bobPawn, Amount: numeric.MustInt(1), Destination: carol}, false},
		{"stranger burns", bob, model.BurnAsset{Asset: carolPawn, Amount: numeric.MustInt(1)}, false},
		{"owner transfers domain", alice, model.TransferDomain{From: alice, Domain: chess, To: bob}, true},
		{"claimant transfers domain", bob, model.TransferDomain{From: bob, Domain: chess, To: bob}, false},
		{"domain owner sets domain metadata", alice, model.SetKeyValue{Object: model.DomainRef(chess)}, true},
		{"account sets own metadata", bob, model.RemoveKeyValue{Object: model.AccountRef(bob)}, true},
		{"holder sets store metadata", bob, model.RemoveKeyValue{Object: model.AssetRef(bobPawn)}, true},
		{"role owner grants role", alice, model.GrantRole{Role: admin, Account: bob}, true},
		{"member-to-be grants role", bob, model.GrantRole{Role: admin, Account: bob}, false},
		{"anyone registers trigger for self", bob, model.RegisterTrigger{Trigger: model.Trigger{ID: ident.MustTriggerID("t"), Action: model.Action{Authority: bob}}}, true},
		{"registering trigger for another", bob, model.RegisterTrigger{Trigger: model.Trigger{ID: ident.MustTriggerID("t"), Action: model.Action{Authority: carol}}}, false},
		{"trigger authority executes", carol, model.ExecuteTrigger{Trigger: rook}, true},
		{"filter's under-authority executes", bob, model.ExecuteTrigger{Trigger: rook}, true},
		{"other executes", alice, model.ExecuteTrigger{Trigger: rook}, false},
		{"trigger authority extends", carol, model.MintTriggerRepetitions{Trigger: rook, Count: 1}, true},
		{"anyone logs", bob, model.Log{Message: "hi"}, true},
		{"register domain needs permission", alice, model.RegisterDomain{ID: ident.MustDomainID("go")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tx, tt.auth, tt.instr)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, ledgererr.IsNotPermitted(err), "got %v", err)
			}
		})
	}
}

func TestAuthorize_DirectAndRolePermissions(t *testing.T) {
	tx := fixture(t)
	instr := model.RegisterAssetDefinition{ID: ident.MustAssetDefinitionID("knight#chess")}

	err := Authorize(tx, bob, instr)
	require.True(t, ledgererr.IsNotPermitted(err))
	var le *ledgererr.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "CanRegisterAssetDefinition", le.Details["capability"])
	assert.Equal(t, "bob@chess", le.Details["authority"])
	assert.Equal(t, "knight#chess", le.Details["target"])

	// Direct grant.
	require.NoError(t, tx.GrantPermission(bob, model.CanRegisterAssetDefinition{Domain: chess}))
	assert.NoError(t, Authorize(tx, bob, instr))

	// A grant scoped to another domain does not match.
	other := model.RegisterAssetDefinition{ID: ident.MustAssetDefinitionID("knight#checkers")}
	require.NoError(t, tx.RegisterDomain(model.Domain{ID: ident.MustDomainID("checkers"), OwnedBy: alice}))
	assert.True(t, ledgererr.IsNotPermitted(Authorize(tx, bob, other)))

	// Through a role.
	require.NoError(t, tx.GrantRolePermission(admin, model.CanRegisterAssetDefinition{Domain: ident.MustDomainID("checkers")}))
	require.NoError(t, tx.GrantRole(bob, admin))
	assert.NoError(t, Authorize(tx, bob, other))

	// Changing the role changes every member.
	require.NoError(t, tx.RevokeRolePermission(admin, model.CanRegisterAssetDefinition{Domain: ident.MustDomainID("checkers")}))
	assert.True(t, ledgererr.IsNotPermitted(Authorize(tx, bob, other)))
}

func TestAuthorize_MissingTarget(t *testing.T) {
	tx := fixture(t)
	err := Authorize(tx, alice, model.UnregisterDomain{ID: ident.MustDomainID("nowhere")})
	assert.True(t, ledgererr.IsNotFound(err))

	err = Authorize(tx, alice, model.SetKeyValue{Object: model.RoleRef(admin)})
	assert.True(t, ledgererr.Is(err, ledgererr.CodeInvalidValue))
}

func TestCanGrant(t *testing.T) {
	tx := fixture(t)
	rook := ident.MustTriggerID("rook")

	assert.True(t, CanGrant(tx, alice, model.CanRegisterAccount{Domain: chess}))
	assert.False(t, CanGrant(tx, bob, model.CanRegisterAccount{Domain: chess}))
	assert.True(t, CanGrant(tx, carol, model.CanMintAssetWithDefinition{AssetDefinition: pawn}))
	assert.True(t, CanGrant(tx, alice, model.CanMintAssetWithDefinition{AssetDefinition: pawn}), "domain owner")
	assert.True(t, CanGrant(tx, bob, model.CanTransferAsset{Asset: ident.NewAssetID(pawn, bob)}))
	assert.True(t, CanGrant(tx, bob, model.CanModifyAccountMetadata{Account: bob}))
	assert.True(t, CanGrant(tx, carol, model.CanExecuteTrigger{Trigger: rook}))
	assert.False(t, CanGrant(tx, bob, model.CanExecuteTrigger{Trigger: rook}))

	// Unscoped permissions pass only from holders.
	assert.False(t, CanGrant(tx, alice, model.CanRegisterDomain{}))
	require.NoError(t, tx.GrantPermission(alice, model.CanRegisterDomain{}))
	assert.True(t, CanGrant(tx, alice, model.CanRegisterDomain{}))
	assert.False(t, CanGrant(tx, alice, model.Custom{CustomName: "CanFly"}))
}

func TestCanGrant_PerPermission(t *testing.T) {
	tx := fixture(t)
	bobPawn := ident.NewAssetID(pawn, bob)
	rook := ident.MustTriggerID("rook")

	tests := []struct {
		perm    model.Permission
		granted []ident.AccountID
	}{
		{model.CanRegisterDomain{}, nil},
		{model.CanManageRoles{}, nil},
		{model.Custom{CustomName: "CanFly"}, nil},

		{model.CanUnregisterDomain{Domain: chess}, []ident.AccountID{alice}},
		{model.CanTransferDomain{Domain: chess}, []ident.AccountID{alice}},
		{model.CanModifyDomainMetadata{Domain: chess}, []ident.AccountID{alice}},
		{model.CanRegisterAccount{Domain: chess}, []ident.AccountID{alice}},
		{model.CanRegisterAssetDefinition{Domain: chess}, []ident.AccountID{alice}},

		{model.CanUnregisterAccount{Account: bob}, []ident.AccountID{alice, bob}},
		{model.CanModifyAccountMetadata{Account: bob}, []ident.AccountID{alice, bob}},
		{model.CanRegisterTrigger{Authority: bob}, []ident.AccountID{bob}},

		{model.CanUnregisterAssetDefinition{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanTransferAssetDefinition{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanModifyAssetDefinitionMetadata{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanRegisterAssetWithDefinition{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanUnregisterAssetWithDefinition{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanMintAssetWithDefinition{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanBurnAssetWithDefinition{AssetDefinition: pawn}, []ident.AccountID{alice, carol}},
		{model.CanTransferAssetWithDefinition{AssetDefinition: pawn}, []ident.AccountID{carol}},

		{model.CanMintAsset{Asset: bobPawn}, []ident.AccountID{alice, carol}},
		{model.CanBurnAsset{Asset: bobPawn}, []ident.AccountID{alice, bob, carol}},
		{model.CanTransferAsset{Asset: bobPawn}, []ident.AccountID{bob, carol}},
		{model.CanModifyAssetMetadata{Asset: bobPawn}, []ident.AccountID{bob}},

		{model.CanUnregisterTrigger{Trigger: rook}, []ident.AccountID{carol}},
		{model.CanModifyTrigger{Trigger: rook}, []ident.AccountID{carol}},
		{model.CanExecuteTrigger{Trigger: rook}, []ident.AccountID{carol}},
	}

	for _, tt := range tests {
		t.Run(tt.perm.Name(), func(t *testing.T) {
			for _, acc := range []ident.AccountID{alice, bob, carol} {
				want := false
				for _, g := range tt.granted {
					want = want || g == acc
				}
				assert.Equal(t, want, CanGrant(tx, acc, tt.perm), "%s granting %s", acc, tt.perm.Name())
			}
		})
	}
}

func TestAuthorize_HolderCannotGrantItselfMint(t *testing.T) {
	tx := fixture(t)
	bobPawn := ident.NewAssetID(pawn, bob)

	err := Authorize(tx, bob, model.MintAsset{Asset: bobPawn, Amount: numeric.MustInt(1)})
	assert.True(t, ledgererr.IsNotPermitted(err), "got %v", err)

	err = Authorize(tx, bob, model.GrantPermission{Permission: model.CanMintAsset{Asset: bobPawn}, Account: bob})
	assert.True(t, ledgererr.IsNotPermitted(err), "got %v", err)

	assert.NoError(t, Authorize(tx, bob, model.GrantPermission{Permission: model.CanTransferAsset{Asset: bobPawn}, Account: carol}))
	assert.NoError(t, Authorize(tx, carol, model.GrantPermission{Permission: model.CanMintAsset{Asset: bobPawn}, Account: bob}))
}

func TestAuthorize_RolePermissionNeedsGrantRight(t *testing.T) {
	tx := fixture(t)

	// alice owns the role but cannot hand out carol's transfer rights.
	err := Authorize(tx, alice, model.GrantRolePermission{
		Permission: model.CanTransferAsset{Asset: ident.NewAssetID(pawn, carol)},
		Role:       admin,
	})
	assert.True(t, ledgererr.IsNotPermitted(err))

	assert.NoError(t, Authorize(tx, alice, model.GrantRolePermission{
		Permission: model.CanRegisterAccount{Domain: chess},
		Role:       admin,
	}))

	err = Authorize(tx, bob, model.RegisterRole{
		ID:          ident.MustRoleID("sneaky"),
		Permissions: model.NewPermissionSet(model.CanRegisterAccount{Domain: chess}),
	})
	assert.True(t, ledgererr.IsNotPermitted(err))
}

func TestGrantThenRevoke_RestoresCapabilities(t *testing.T) {
	candidates := []model.Permission{
		model.CanRegisterDomain{},
		model.CanManageRoles{},
		model.CanRegisterAccount{Domain: chess},
		model.CanMintAssetWithDefinition{AssetDefinition: pawn},
		model.CanBurnAsset{Asset: ident.NewAssetID(pawn, carol)},
		model.Custom{CustomName: "CanFly"},
	}

	rapid.Check(t, func(rt *rapid.T) {
		w := world.New()
		tx := w.Begin()
		defer tx.Rollback()
		require.NoError(rt, tx.RegisterDomain(model.Domain{ID: chess, OwnedBy: alice}))
		require.NoError(rt, tx.RegisterAccount(model.Account{ID: bob}))
		require.NoError(rt, tx.RegisterRole(model.Role{ID: admin, Owner: alice}))

		held := rapid.SliceOfDistinct(rapid.IntRange(0, len(candidates)-1), rapid.ID[int]).Draw(rt, "held")
		for _, i := range held {
			require.NoError(rt, tx.GrantPermission(bob, candidates[i]))
		}
		before := Effective(tx, bob).List()

		p := candidates[rapid.IntRange(0, len(candidates)-1).Draw(rt, "grant")]
		viaRole := rapid.Bool().Draw(rt, "via_role")
		if viaRole {
			require.NoError(rt, tx.GrantRolePermission(admin, p))
			require.NoError(rt, tx.GrantRole(bob, admin))
			assert.True(rt, Holds(tx, bob, p))
			require.NoError(rt, tx.RevokeRole(bob, admin))
			require.NoError(rt, tx.RevokeRolePermission(admin, p))
		} else {
			err := tx.GrantPermission(bob, p)
			if err != nil {
				require.True(rt, ledgererr.Is(err, ledgererr.CodeAlreadyExists))
				return
			}
			assert.True(rt, Holds(tx, bob, p))
			require.NoError(rt, tx.RevokePermission(bob, p))
		}

		assert.Equal(rt, before, Effective(tx, bob).List())
	})
}
