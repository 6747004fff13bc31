package replay

import (
	"github.com/pkg/errors"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/ptb"
)

// maxLinkageDepth caps the package-dependency BFS (spec.md §4.9 step
// 3: "depth cap 8-10").
const maxLinkageDepth = 10

// seedPackageAddresses collects every package address directly named
// by a transaction's commands and object inputs: MoveCall targets and
// their type arguments, MakeMoveVec element types, Upgrade targets,
// and the struct type tags carried by object-kind inputs (a package
// can be relevant to a PTB purely through a type argument, never
// itself the target of a MoveCall).
func seedPackageAddresses(tx TxRecord) []bcs.Address {
	var out []bcs.Address
	for _, cmd := range tx.Commands {
		switch cmd.Kind {
		case ptb.CmdMoveCall:
			out = append(out, cmd.MoveCall.Package)
			for _, t := range cmd.MoveCall.TypeArgs {
				out = append(out, collectPackageAddresses(t)...)
			}
		case ptb.CmdMakeMoveVec:
			if cmd.MakeMoveVec.ElementType != nil {
				out = append(out, collectPackageAddresses(*cmd.MakeMoveVec.ElementType)...)
			}
		case ptb.CmdUpgrade:
			out = append(out, cmd.Upgrade.PackageID)
		}
	}
	for _, in := range tx.Inputs {
		if in.IsObject {
			out = append(out, collectPackageAddresses(in.Object.TypeTag)...)
		}
	}
	return out
}

// collectPackageAddresses walks a type tag's vector/struct structure,
// returning the defining address of every struct it mentions
// (including nested type parameters).
func collectPackageAddresses(tag bcs.TypeTag) []bcs.Address {
	switch tag.Kind {
	case bcs.KindVector:
		return collectPackageAddresses(*tag.Elem)
	case bcs.KindStruct:
		out := []bcs.Address{tag.Struct.Address}
		for _, tp := range tag.Struct.TypeParams {
			out = append(out, collectPackageAddresses(tp)...)
		}
		return out
	default:
		return nil
	}
}

// resolvePackageClosure fetches and registers every package a
// transaction's commands/inputs reach, transitively through linkage
// tables, breadth-first and depth-capped (spec.md §4.9 step 3).
// Framework packages are skipped — they're bundled at environment
// construction, not fetched from the archive. When a dependency's
// linkage entry names a different original_id than the storage id it
// resolves to (an upgraded package), the BFS always continues from
// the storage id: that's the address bytecode actually installed
// under, and the one further dependencies' own linkage tables will
// reference.
func (d *Driver) resolvePackageClosure(tx TxRecord) error {
	type queued struct {
		addr  bcs.Address
		depth int
	}
	seen := make(map[bcs.Address]bool)
	var queue []queued
	for _, addr := range seedPackageAddresses(tx) {
		if !seen[addr] {
			seen[addr] = true
			queue = append(queue, queued{addr: addr, depth: 0})
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if bcs.IsFrameworkAddress(cur.addr) {
			continue
		}
		if cur.depth > maxLinkageDepth {
			d.log.Warnw("replay: linkage closure depth cap reached", "package", cur.addr.String())
			continue
		}

		pkg, err := d.Provider.FetchPackage(cur.addr, d.Checkpoint)
		if err != nil {
			return errors.Wrapf(err, "replay: fetch package %s", cur.addr.String())
		}
		if err := d.Env.Resolver.RegisterPackageWithLinkage(pkg.StorageID, pkg.Version, pkg.OriginalID, pkg.Modules, pkg.Linkage); err != nil {
			return errors.Wrapf(err, "replay: register package %s", pkg.StorageID.String())
		}

		for _, entry := range pkg.Linkage {
			next := entry.StorageID
			if !seen[next] {
				seen[next] = true
				queue = append(queue, queued{addr: next, depth: cur.depth + 1})
			}
		}
	}
	return nil
}
