// Package ptb implements the Programmable Transaction Block Executor
// (spec.md §4.7): argument resolution, publish/upgrade pre-processing,
// per-command execution against the Module Resolver/Object Store/VM
// Session, the gas gate, and effects collapsing, all behind the
// Idle→Locked→Executing→Applied|Failed state machine.
package ptb

import (
	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
)

// ArgumentKind discriminates the Argument sum type (spec.md §3).
type ArgumentKind int

const (
	ArgInput ArgumentKind = iota
	ArgResult
	ArgNestedResult
	ArgGasCoin
)

// Argument names where a command's operand comes from: a PTB input,
// a prior command's primary or nested result, or the synthetic gas coin.
type Argument struct {
	Kind        ArgumentKind
	Index       uint16
	NestedIndex uint16
}

func InputArg(i uint16) Argument       { return Argument{Kind: ArgInput, Index: i} }
func ResultArg(i uint16) Argument      { return Argument{Kind: ArgResult, Index: i} }
func NestedResultArg(i, j uint16) Argument {
	return Argument{Kind: ArgNestedResult, Index: i, NestedIndex: j}
}
func GasCoinArg() Argument { return Argument{Kind: ArgGasCoin} }

// ObjectInputKind discriminates how a PTB was allowed to reference an
// object input.
type ObjectInputKind int

const (
	ObjImmRef ObjectInputKind = iota
	ObjMutRef
	ObjOwned
	ObjShared
)

// ObjectInput is one object-typed PTB input.
type ObjectInput struct {
	Kind     ObjectInputKind
	ID       bcs.Address
	Bytes    []byte
	TypeTag  bcs.TypeTag
	Version  uint64
	// Mutable marks whether a Shared input is accessed mutably; it is
	// ignored for the other kinds (spec.md §4.4 lock semantics apply
	// only to shared objects).
	Mutable bool
}

// InputValue is either a Pure (BCS-encoded primitive) or Object input
// (spec.md §3).
type InputValue struct {
	IsObject bool
	Pure     []byte
	Object   ObjectInput
}

func PureInput(b []byte) InputValue { return InputValue{Pure: b} }
func ObjectInputValue(o ObjectInput) InputValue {
	return InputValue{IsObject: true, Object: o}
}

// CommandKind discriminates the Command sum type.
type CommandKind int

const (
	CmdMoveCall CommandKind = iota
	CmdSplitCoins
	CmdMergeCoins
	CmdTransferObjects
	CmdMakeMoveVec
	CmdPublish
	CmdUpgrade
	CmdReceive
)

// Command is the tagged union of PTB commands (spec.md §3/§4.7); only
// the field matching Kind is populated.
type Command struct {
	Kind            CommandKind
	MoveCall        *MoveCallCommand
	SplitCoins      *SplitCoinsCommand
	MergeCoins      *MergeCoinsCommand
	TransferObjects *TransferObjectsCommand
	MakeMoveVec     *MakeMoveVecCommand
	Publish         *PublishCommand
	Upgrade         *UpgradeCommand
	Receive         *ReceiveCommand
}

type MoveCallCommand struct {
	Package  bcs.Address
	Module   string
	Function string
	TypeArgs []bcs.TypeTag
	Args     []Argument

	// FromPublishedAt, if set, names the index of an earlier
	// Publish/Upgrade command in the same PTB whose minted package
	// address this call targets, overriding Package (a same-PTB
	// publish-then-call has no other way to name a package address
	// that doesn't exist until pre-processing mints it).
	FromPublishedAt *int
}

type SplitCoinsCommand struct {
	Coin    Argument
	Amounts []Argument
}

type MergeCoinsCommand struct {
	Dest    Argument
	Sources []Argument
}

type TransferObjectsCommand struct {
	Objects []Argument
	Address Argument
}

type MakeMoveVecCommand struct {
	ElementType *bcs.TypeTag
	Elements    []Argument
}

// PublishCommand installs a fresh package; the modules' own addresses
// are overwritten with a freshly minted package id before install.
type PublishCommand struct {
	Modules []*resolver.CompiledModule
}

// UpgradeCommand installs modules at a fresh storage id aliased back
// to the original package's runtime id.
type UpgradeCommand struct {
	PackageID bcs.Address
	Modules   []*resolver.CompiledModule
}

// ReceiveCommand consumes a pending-receive entry sent to Parent's
// resolved object id.
type ReceiveCommand struct {
	Parent     Argument
	SentID     bcs.Address
	ObjectType *bcs.TypeTag
}

func MoveCall(pkg bcs.Address, module, function string, typeArgs []bcs.TypeTag, args []Argument) Command {
	return Command{Kind: CmdMoveCall, MoveCall: &MoveCallCommand{Package: pkg, Module: module, Function: function, TypeArgs: typeArgs, Args: args}}
}

// MoveCallOnPublished builds a MoveCall targeting the package minted by
// an earlier Publish/Upgrade command at publishIndex within the same PTB.
func MoveCallOnPublished(publishIndex int, module, function string, typeArgs []bcs.TypeTag, args []Argument) Command {
	return Command{Kind: CmdMoveCall, MoveCall: &MoveCallCommand{Module: module, Function: function, TypeArgs: typeArgs, Args: args, FromPublishedAt: &publishIndex}}
}

func SplitCoins(coin Argument, amounts []Argument) Command {
	return Command{Kind: CmdSplitCoins, SplitCoins: &SplitCoinsCommand{Coin: coin, Amounts: amounts}}
}

func MergeCoins(dest Argument, sources []Argument) Command {
	return Command{Kind: CmdMergeCoins, MergeCoins: &MergeCoinsCommand{Dest: dest, Sources: sources}}
}

func TransferObjects(objects []Argument, address Argument) Command {
	return Command{Kind: CmdTransferObjects, TransferObjects: &TransferObjectsCommand{Objects: objects, Address: address}}
}

func MakeMoveVec(elemType *bcs.TypeTag, elements []Argument) Command {
	return Command{Kind: CmdMakeMoveVec, MakeMoveVec: &MakeMoveVecCommand{ElementType: elemType, Elements: elements}}
}

func Publish(modules []*resolver.CompiledModule) Command {
	return Command{Kind: CmdPublish, Publish: &PublishCommand{Modules: modules}}
}

func Upgrade(packageID bcs.Address, modules []*resolver.CompiledModule) Command {
	return Command{Kind: CmdUpgrade, Upgrade: &UpgradeCommand{PackageID: packageID, Modules: modules}}
}

func Receive(parent Argument, sentID bcs.Address, objectType *bcs.TypeTag) Command {
	return Command{Kind: CmdReceive, Receive: &ReceiveCommand{Parent: parent, SentID: sentID, ObjectType: objectType}}
}
