package ptb

import (
	"encoding/binary"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
	"github.com/suisim/sandbox/store"
)

var (
	upgradeCapType     = bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "package", Name: "UpgradeCap"})
	upgradeReceiptType = bcs.Struct(bcs.StructTag{Address: bcs.FrameworkCore, Module: "package", Name: "UpgradeReceipt"})
)

// preprocessPublish installs a Publish/Upgrade command's modules into
// the resolver ahead of the main command loop (spec.md §4.7
// Pre-processing), mints the matching cap/receipt object, and records
// the minted package address for any same-PTB MoveCall targeting it.
func (ex *Executor) preprocessPublish(index int, cmd Command, state *ptbState, tracker *changeTracker) ([]Value, error) {
	switch cmd.Kind {
	case CmdPublish:
		out, pkgAddr, err := ex.doPublish(cmd.Publish, tracker)
		if err != nil {
			return nil, err
		}
		state.published[index] = pkgAddr
		return out, nil
	case CmdUpgrade:
		out, newAddr, err := ex.doUpgrade(cmd.Upgrade, tracker)
		if err != nil {
			return nil, err
		}
		state.published[index] = newAddr
		return out, nil
	default:
		return nil, nil
	}
}

func (ex *Executor) doPublish(cmd *PublishCommand, tracker *changeTracker) ([]Value, bcs.Address, error) {
	pkgAddr := ex.Store.FreshID()
	for _, m := range cmd.Modules {
		m.Self.Address = pkgAddr
	}
	if _, _, err := ex.Resolver.AddPackageModules(cmd.Modules); err != nil {
		return nil, bcs.Address{}, err
	}

	capID := ex.Store.FreshID()
	capBytes := upgradeCapBytes(capID, pkgAddr, 1)
	tracker.touch(capID, true, upgradeCapType, capBytes)

	return []Value{{Bytes: capBytes, TypeTag: upgradeCapType}}, pkgAddr, nil
}

func (ex *Executor) doUpgrade(cmd *UpgradeCommand, tracker *changeTracker) ([]Value, bcs.Address, error) {
	oldVersion := ex.Resolver.Version(cmd.PackageID)
	newAddr := ex.Store.FreshID()
	for _, m := range cmd.Modules {
		m.Self.Address = cmd.PackageID
	}
	if err := ex.Resolver.AddPackageModulesAt(cmd.Modules, newAddr); err != nil {
		return nil, bcs.Address{}, err
	}

	receiptID := ex.Store.FreshID()
	receiptBytes := upgradeReceiptBytes(receiptID, cmd.PackageID, newAddr, oldVersion+1)
	tracker.touch(receiptID, true, upgradeReceiptType, receiptBytes)

	return []Value{{Bytes: receiptBytes, TypeTag: upgradeReceiptType}}, newAddr, nil
}

// PublishStandalone installs modules and mints an UpgradeCap directly,
// writing straight to the store instead of going through a PTB's
// deferred change tracker. Used by the environment facade's
// deploy_package, which has no other commands to stay atomic with.
func (ex *Executor) PublishStandalone(modules []*resolver.CompiledModule) (pkgAddr bcs.Address, capID bcs.Address, err error) {
	tracker := newChangeTracker()
	_, pkgAddr, err = ex.doPublish(&PublishCommand{Modules: modules}, tracker)
	if err != nil {
		return bcs.Address{}, bcs.Address{}, err
	}
	capID = tracker.order[0]
	change := tracker.changes[capID]
	if err := ex.Store.Put(&store.SimulatedObject{ID: capID, TypeTag: change.TypeTag, BCSBytes: change.Bytes, Version: 1}); err != nil {
		return bcs.Address{}, bcs.Address{}, err
	}
	return pkgAddr, capID, nil
}

// UpgradeStandalone is PublishStandalone's upgrade counterpart, used
// by the environment facade's deploy_package_at.
func (ex *Executor) UpgradeStandalone(packageID bcs.Address, modules []*resolver.CompiledModule) (newAddr bcs.Address, receiptID bcs.Address, err error) {
	tracker := newChangeTracker()
	_, newAddr, err = ex.doUpgrade(&UpgradeCommand{PackageID: packageID, Modules: modules}, tracker)
	if err != nil {
		return bcs.Address{}, bcs.Address{}, err
	}
	receiptID = tracker.order[0]
	change := tracker.changes[receiptID]
	if err := ex.Store.Put(&store.SimulatedObject{ID: receiptID, TypeTag: change.TypeTag, BCSBytes: change.Bytes, Version: 1}); err != nil {
		return bcs.Address{}, bcs.Address{}, err
	}
	return newAddr, receiptID, nil
}

// upgradeCapBytes: UID(32) || package_id(32) || version(u64 LE).
func upgradeCapBytes(id, pkg bcs.Address, version uint64) []byte {
	out := make([]byte, bcs.AddressLength*2+8)
	copy(out, id[:])
	copy(out[bcs.AddressLength:], pkg[:])
	binary.LittleEndian.PutUint64(out[bcs.AddressLength*2:], version)
	return out
}

// upgradeReceiptBytes: UID(32) || old_package_id(32) || new_package_id(32) || version(u64 LE).
func upgradeReceiptBytes(id, oldPkg, newPkg bcs.Address, version uint64) []byte {
	out := make([]byte, bcs.AddressLength*3+8)
	copy(out, id[:])
	copy(out[bcs.AddressLength:], oldPkg[:])
	copy(out[bcs.AddressLength*2:], newPkg[:])
	binary.LittleEndian.PutUint64(out[bcs.AddressLength*3:], version)
	return out
}
