package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledger/internal/ident"
	"github.com/roach88/ledger/internal/ledgererr"
	"github.com/roach88/ledger/internal/model"
	"github.com/roach88/ledger/internal/numeric"
	"github.com/roach88/ledger/internal/value"
)

var (
	wonderland = ident.MustDomainID("wonderland")
	garden     = ident.MustDomainID("garden")
	alice      = ident.MustAccountID("alice@wonderland")
	bob        = ident.MustAccountID("bob@wonderland")
	carol      = ident.MustAccountID("carol@garden")
	rose       = ident.MustAssetDefinitionID("rose#wonderland")
	tulip      = ident.MustAssetDefinitionID("tulip#garden")
)

// seed builds two domains: wonderland (owned by alice, holding alice and
// bob) and garden (owned by carol). rose is defined in wonderland and
// tulip in garden; carol holds rose and bob holds tulip.
func seed(t *testing.T) *World {
	t.Helper()
	w := New()
	tx := w.Begin()
	defer tx.Commit()

	require.NoError(t, tx.RegisterDomain(model.Domain{ID: wonderland, OwnedBy: alice}))
	require.NoError(t, tx.RegisterDomain(model.Domain{ID: garden, OwnedBy: carol}))
	for _, id := range []ident.AccountID{alice, bob, carol} {
		require.NoError(t, tx.RegisterAccount(model.Account{ID: id}))
	}
	require.NoError(t, tx.RegisterAssetDefinition(model.AssetDefinition{
		ID: rose, Type: model.NumericType(numeric.Integer()), Mintable: model.MintableInfinitely, OwnedBy: alice,
		TotalQuantity: numeric.MustInt(15),
	}))
	require.NoError(t, tx.RegisterAssetDefinition(model.AssetDefinition{
		ID: tulip, Type: model.NumericType(numeric.Unconstrained()), Mintable: model.MintableInfinitely, OwnedBy: carol,
		TotalQuantity: numeric.MustInt(7),
	}))
	require.NoError(t, tx.RegisterAsset(model.Asset{ID: ident.NewAssetID(rose, alice), Value: model.NumericValue(numeric.MustInt(10))}))
	require.NoError(t, tx.RegisterAsset(model.Asset{ID: ident.NewAssetID(rose, carol), Value: model.NumericValue(numeric.MustInt(5))}))
	require.NoError(t, tx.RegisterAsset(model.Asset{ID: ident.NewAssetID(tulip, bob), Value: model.NumericValue(numeric.MustInt(7))}))
	return w
}

func hashOf(t *testing.T, r interface{ Hash() (string, error) }) string {
	t.Helper()
	h, err := r.Hash()
	require.NoError(t, err)
	return h
}

func TestRegister_DuplicateAndMissing(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	err := tx.RegisterDomain(model.Domain{ID: wonderland, OwnedBy: alice})
	assert.True(t, ledgererr.Is(err, ledgererr.CodeAlreadyExists))

	err = tx.RegisterAccount(model.Account{ID: ident.MustAccountID("dave@nowhere")})
	assert.True(t, ledgererr.IsNotFound(err))

	_, err = tx.Asset(ident.NewAssetID(tulip, alice))
	assert.True(t, ledgererr.IsNotFound(err))
	assert.True(t, tx.Exists(model.AssetRef(ident.NewAssetID(tulip, bob))))
}

func TestRollback_RestoresExactState(t *testing.T) {
	w := seed(t)
	before := hashOf(t, w.Snapshot())

	tx := w.Begin()
	require.NoError(t, tx.GrantPermission(bob, model.CanRegisterAccount{Domain: wonderland}))
	require.NoError(t, tx.TransferDomain(wonderland, alice, bob))
	_, err := tx.TransferQuantity(ident.NewAssetID(rose, alice), numeric.MustInt(4), bob)
	require.NoError(t, err)
	_, err = tx.UnregisterDomain(garden)
	require.NoError(t, err)
	assert.NotZero(t, tx.Changes())
	tx.Rollback()

	assert.Equal(t, before, hashOf(t, w.Snapshot()))
	d, err := w.Snapshot().Domain(wonderland)
	require.NoError(t, err)
	assert.Equal(t, alice, d.OwnedBy)
}

func TestSnapshot_IsolatedFromLaterCommits(t *testing.T) {
	w := seed(t)
	snap := w.Snapshot()

	tx := w.Begin()
	_, err := tx.UnregisterDomain(garden)
	require.NoError(t, err)
	tx.Commit()

	assert.True(t, snap.Exists(model.DomainRef(garden)))
	assert.False(t, w.Snapshot().Exists(model.DomainRef(garden)))
}

func TestUnregisterDomain_Cascades(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	require.NoError(t, tx.RegisterTrigger(model.Trigger{
		ID:     ident.MustTriggerID("carol_watch"),
		Action: model.Action{Authority: carol, Repeats: model.Indefinitely(), Filter: model.DataFilter{}},
	}))
	require.NoError(t, tx.GrantPermission(alice, model.CanMintAssetWithDefinition{AssetDefinition: tulip}))
	require.NoError(t, tx.GrantPermission(alice, model.CanRegisterDomain{}))
	require.NoError(t, tx.RegisterRole(model.Role{
		ID:          ident.MustRoleID("gardener"),
		Owner:       alice,
		Permissions: model.NewPermissionSet(model.CanRegisterAccount{Domain: garden}, model.CanManageRoles{}),
	}))

	removed, err := tx.UnregisterDomain(garden)
	require.NoError(t, err)
	tx.Commit()

	assert.Equal(t, []model.Ref{
		model.DomainRef(garden),
		model.AccountRef(carol),
		model.AssetDefinitionRef(tulip),
		model.AssetRef(ident.NewAssetID(rose, carol)),
		model.AssetRef(ident.NewAssetID(tulip, bob)),
		model.TriggerRef(ident.MustTriggerID("carol_watch")),
	}, removed)

	snap := w.Snapshot()
	for _, ref := range removed {
		assert.False(t, snap.Exists(ref), ref.String())
	}
	_, err = snap.Account(carol)
	assert.True(t, ledgererr.IsNotFound(err))

	assert.Equal(t, []model.Permission{model.CanRegisterDomain{}}, snap.AccountPermissions(alice).List())
	role, err := snap.Role(ident.MustRoleID("gardener"))
	require.NoError(t, err)
	assert.Equal(t, []model.Permission{model.CanManageRoles{}}, role.Permissions.List())

	def, err := snap.AssetDefinition(rose)
	require.NoError(t, err)
	assert.Equal(t, "10", def.TotalQuantity.String(), "carol's 5 roses left the supply")
}

func TestUnregisterAccount_OwnerInvariant(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	_, err := tx.UnregisterAccount(alice)
	require.True(t, ledgererr.Is(err, ledgererr.CodeInvariantViolation))
	assert.True(t, tx.Exists(model.AccountRef(alice)))
	assert.Zero(t, tx.Changes())

	removed, err := tx.UnregisterAccount(bob)
	require.NoError(t, err)
	assert.Equal(t, []model.Ref{model.AccountRef(bob), model.AssetRef(ident.NewAssetID(tulip, bob))}, removed)
}

func TestUnregisterDomain_OwnerElsewhere(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	// alice of wonderland owns garden now, so wonderland cannot go.
	require.NoError(t, tx.TransferDomain(garden, carol, alice))
	_, err := tx.UnregisterDomain(wonderland)
	assert.True(t, ledgererr.Is(err, ledgererr.CodeInvariantViolation))
}

func TestTransferDomain_NotOwner(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	err := tx.TransferDomain(wonderland, bob, carol)
	require.True(t, ledgererr.Is(err, ledgererr.CodeNotOwner))

	err = tx.TransferAssetDefinition(rose, alice, carol)
	require.NoError(t, err)
	def, err := tx.AssetDefinition(rose)
	require.NoError(t, err)
	assert.Equal(t, carol, def.OwnedBy)
}

func TestTransferQuantity(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	src := ident.NewAssetID(rose, alice)
	created, err := tx.TransferQuantity(src, numeric.MustInt(4), bob)
	require.NoError(t, err)
	assert.True(t, created)

	a, _ := tx.Asset(src)
	b, _ := tx.Asset(ident.NewAssetID(rose, bob))
	assert.Equal(t, "6", a.Value.Numeric.String())
	assert.Equal(t, "4", b.Value.Numeric.String())

	_, err = tx.TransferQuantity(src, numeric.MustInt(7), bob)
	require.True(t, ledgererr.Is(err, ledgererr.CodeInsufficientFunds))
	a, _ = tx.Asset(src)
	b, _ = tx.Asset(ident.NewAssetID(rose, bob))
	assert.Equal(t, "6", a.Value.Numeric.String(), "failed transfer leaves source alone")
	assert.Equal(t, "4", b.Value.Numeric.String(), "failed transfer leaves destination alone")

	_, err = tx.TransferQuantity(src, numeric.MustInt(1), ident.MustAccountID("dave@wonderland"))
	assert.True(t, ledgererr.IsNotFound(err))
}

func TestRoles_Membership(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	admin := ident.MustRoleID("admin")
	auditor := ident.MustRoleID("auditor")
	require.NoError(t, tx.RegisterRole(model.Role{ID: admin, Owner: alice}))
	require.NoError(t, tx.RegisterRole(model.Role{ID: auditor, Owner: alice}))
	require.NoError(t, tx.GrantRole(bob, auditor))
	require.NoError(t, tx.GrantRole(bob, admin))
	require.NoError(t, tx.GrantRole(carol, admin))
	assert.True(t, ledgererr.Is(tx.GrantRole(bob, admin), ledgererr.CodeAlreadyExists))

	assert.Equal(t, []ident.RoleID{admin, auditor}, tx.AccountRoles(bob))
	assert.Equal(t, []ident.AccountID{bob, carol}, tx.RoleMembers(admin))

	removed, err := tx.UnregisterRole(admin)
	require.NoError(t, err)
	assert.Equal(t, []model.Ref{model.RoleRef(admin)}, removed)
	assert.Equal(t, []ident.RoleID{auditor}, tx.AccountRoles(bob))
	assert.Empty(t, tx.AccountRoles(carol))

	assert.True(t, ledgererr.IsNotFound(tx.RevokeRole(carol, admin)))
}

func TestGrantRevoke_RestoresSet(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	before := tx.AccountPermissions(bob).List()
	p := model.CanRegisterAssetDefinition{Domain: wonderland}
	require.NoError(t, tx.GrantPermission(bob, p))
	assert.True(t, ledgererr.Is(tx.GrantPermission(bob, p), ledgererr.CodeAlreadyExists))
	require.NoError(t, tx.RevokePermission(bob, p))
	assert.True(t, ledgererr.IsNotFound(tx.RevokePermission(bob, p)))
	assert.Equal(t, before, tx.AccountPermissions(bob).List())
}

func TestUpdateAssetDefinition_Immutable(t *testing.T) {
	w := seed(t)
	tx := w.Begin()
	defer tx.Rollback()

	def, err := tx.AssetDefinition(rose)
	require.NoError(t, err)
	def.Metadata = def.Metadata.Set(ident.MustName("colour"), value.String("red"))
	require.NoError(t, tx.UpdateAssetDefinition(def))

	def.Mintable = model.MintableOnce
	assert.True(t, ledgererr.Is(tx.UpdateAssetDefinition(def), ledgererr.CodeInvariantViolation))
}

func TestHash_IndependentOfHistory(t *testing.T) {
	a := seed(t)
	b := seed(t)

	tx := b.Begin()
	require.NoError(t, tx.GrantPermission(bob, model.CanRegisterDomain{}))
	require.NoError(t, tx.RevokePermission(bob, model.CanRegisterDomain{}))
	tx.Commit()

	assert.Equal(t, hashOf(t, a.Snapshot()), hashOf(t, b.Snapshot()))

	tx = b.Begin()
	require.NoError(t, tx.GrantPermission(bob, model.CanRegisterDomain{}))
	tx.Commit()
	assert.NotEqual(t, hashOf(t, a.Snapshot()), hashOf(t, b.Snapshot()))
}
