package environment

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/resolver"
	"github.com/suisim/sandbox/store"
)

// CurrentStateVersion is the newest persisted-state container version
// this build knows how to write and load (spec.md §6 persistence
// table: V4 adds fetcher_config).
const CurrentStateVersion = 4

type stateObject struct {
	ID          string `json:"id"`
	TypeTag     string `json:"type_tag"`
	BCSBytesB64 string `json:"bcs_bytes_b64"`
	IsShared    bool   `json:"is_shared"`
	IsImmutable bool   `json:"is_immutable"`
	Version     uint64 `json:"version"`
}

type stateModule struct {
	ID          string `json:"id"`
	BytecodeB64 string `json:"bytecode_b64"`
}

type stateDynamicField struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	TypeTag  string `json:"type_tag"`
	ValueB64 string `json:"value_b64"`
}

type statePendingReceive struct {
	RecipientID    string `json:"recipient_id"`
	SentID         string `json:"sent_id"`
	TypeTag        string `json:"type_tag"`
	ObjectBytesB64 string `json:"object_bytes_b64"`
}

type stateMetadata struct {
	Description string   `json:"description,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	ModifiedAt  string   `json:"modified_at,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type stateConfig struct {
	SenderAddress       string  `json:"sender_address"`
	TxTimestampMs       uint64  `json:"tx_timestamp_ms"`
	ClockBaseMs         uint64  `json:"clock_base_ms"`
	Epoch               uint64  `json:"epoch"`
	EpochTimestampMs    uint64  `json:"epoch_ts_ms"`
	GasBudget           *uint64 `json:"gas_budget,omitempty"`
	GasPrice            uint64  `json:"gas_price"`
	ReferenceGasPrice   uint64  `json:"reference_gas_price"`
	EnforceImmutability bool    `json:"enforce_immutability"`
	TrackVersions       bool    `json:"track_versions"`
}

// stateFile is the top-level JSON container of spec.md §6's
// "Persisted-state file format". Framework addresses 0x1/0x2/0x3 are
// never serialized (they're re-bundled by the embedder on load).
type stateFile struct {
	Version         int                     `json:"version"`
	Objects         []stateObject           `json:"objects"`
	Modules         []stateModule           `json:"modules"`
	CoinRegistry    map[string]CoinMetadata `json:"coin_registry,omitempty"`
	Sender          string                  `json:"sender"`
	IDCounter       uint64                  `json:"id_counter"`
	TimestampMs     *uint64                 `json:"timestamp_ms,omitempty"`
	DynamicFields   []stateDynamicField     `json:"dynamic_fields,omitempty"`
	PendingReceives []statePendingReceive   `json:"pending_receives,omitempty"`
	Config          *stateConfig            `json:"config,omitempty"`
	FetcherConfig   map[string]any          `json:"fetcher_config,omitempty"`
	Metadata        stateMetadata           `json:"metadata"`
}

// SaveState writes the environment's full state to path as a
// CurrentStateVersion container.
func (e *Environment) SaveState(path string, metadata map[string]string) error {
	e.mu.Lock()
	cfg := e.cfg
	registry := make(map[string]CoinMetadata, len(e.coinRegistry))
	for k, v := range e.coinRegistry {
		registry[k] = v
	}
	e.mu.Unlock()

	var objs []stateObject
	for _, o := range e.Store.List() {
		objs = append(objs, stateObject{
			ID:          o.ID.String(),
			TypeTag:     o.TypeTag.String(),
			BCSBytesB64: base64.StdEncoding.EncodeToString(o.BCSBytes),
			IsShared:    o.IsShared,
			IsImmutable: o.IsImmutable,
			Version:     o.Version,
		})
	}

	var mods []stateModule
	for _, id := range e.Resolver.ListModules() {
		if bcs.IsFrameworkAddress(id.Address) {
			continue
		}
		m, err := e.Resolver.GetModule(id)
		if err != nil {
			continue
		}
		mods = append(mods, stateModule{ID: id.String(), BytecodeB64: base64.StdEncoding.EncodeToString(resolver.SerializeModule(m))})
	}

	var dynFields []stateDynamicField
	for _, o := range e.Store.List() {
		for _, df := range e.Store.ListDynamicFields(o.ID) {
			dynFields = append(dynFields, stateDynamicField{
				ParentID: df.Parent.String(),
				ChildID:  df.Child.String(),
				TypeTag:  df.Type.String(),
				ValueB64: base64.StdEncoding.EncodeToString(df.Value),
			})
		}
	}

	var pending []statePendingReceive
	for _, o := range e.Store.List() {
		for _, pr := range e.Store.ListPendingReceives(o.ID) {
			pending = append(pending, statePendingReceive{
				RecipientID:    o.ID.String(),
				SentID:         pr.Sent.String(),
				TypeTag:        pr.TypeTag.String(),
				ObjectBytesB64: base64.StdEncoding.EncodeToString(pr.Bytes),
			})
		}
	}

	sf := stateFile{
		Version:         CurrentStateVersion,
		Objects:         objs,
		Modules:         mods,
		CoinRegistry:    registry,
		Sender:          cfg.SenderAddress.String(),
		IDCounter:       e.Store.IDCounter(),
		DynamicFields:   dynFields,
		PendingReceives: pending,
		Config: &stateConfig{
			SenderAddress:       cfg.SenderAddress.String(),
			TxTimestampMs:       cfg.TxTimestampMs,
			ClockBaseMs:         cfg.ClockBaseMs,
			Epoch:               cfg.Epoch,
			EpochTimestampMs:    cfg.EpochTimestampMs,
			GasBudget:           cfg.GasBudget,
			GasPrice:            cfg.GasPrice,
			ReferenceGasPrice:   cfg.ReferenceGasPrice,
			EnforceImmutability: cfg.EnforceImmutability,
			TrackVersions:       cfg.TrackVersions,
		},
	}
	if metadata != nil {
		sf.Metadata.Description = metadata["description"]
		sf.Metadata.CreatedAt = metadata["created_at"]
		sf.Metadata.ModifiedAt = metadata["modified_at"]
	}

	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadState reads a persisted-state file into the environment,
// replacing its store/resolver/config wholesale. The file's version
// must not exceed CurrentStateVersion (spec.md §6: "file.version >
// runtime.version ⇒ refuse").
func (e *Environment) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return err
	}
	if sf.Version > CurrentStateVersion {
		return errors.Errorf("environment: state file version %d exceeds supported version %d", sf.Version, CurrentStateVersion)
	}

	newStore := store.New(0)
	for _, so := range sf.Objects {
		id, err := bcs.ParseAddress(so.ID)
		if err != nil {
			return err
		}
		tag, err := bcs.ParseTypeTag(so.TypeTag)
		if err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(so.BCSBytesB64)
		if err != nil {
			return err
		}
		obj := &store.SimulatedObject{ID: id, TypeTag: tag, BCSBytes: raw, IsShared: so.IsShared, IsImmutable: so.IsImmutable, Version: so.Version}
		if err := newStore.Put(obj); err != nil {
			return err
		}
	}
	newStore.SetIDCounter(sf.IDCounter)

	for _, df := range sf.DynamicFields {
		parent, err := bcs.ParseAddress(df.ParentID)
		if err != nil {
			return err
		}
		child, err := bcs.ParseAddress(df.ChildID)
		if err != nil {
			return err
		}
		tag, err := bcs.ParseTypeTag(df.TypeTag)
		if err != nil {
			return err
		}
		value, err := base64.StdEncoding.DecodeString(df.ValueB64)
		if err != nil {
			return err
		}
		newStore.RestoreDynamicField(parent, child, tag, value)
	}
	for _, pr := range sf.PendingReceives {
		recipient, err := bcs.ParseAddress(pr.RecipientID)
		if err != nil {
			return err
		}
		sent, err := bcs.ParseAddress(pr.SentID)
		if err != nil {
			return err
		}
		tag, err := bcs.ParseTypeTag(pr.TypeTag)
		if err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(pr.ObjectBytesB64)
		if err != nil {
			return err
		}
		newStore.AddPendingReceive(recipient, sent, tag, raw)
	}

	newResolver := resolver.New()
	byAddr := make(map[bcs.Address][]*resolver.CompiledModule)
	var order []bcs.Address
	for _, sm := range sf.Modules {
		parts := strings.SplitN(sm.ID, "::", 2)
		if len(parts) != 2 {
			return errors.Errorf("environment: malformed module id %q", sm.ID)
		}
		addr, err := bcs.ParseAddress(parts[0])
		if err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(sm.BytecodeB64)
		if err != nil {
			return err
		}
		m, err := resolver.DeserializeModule(raw)
		if err != nil {
			return err
		}
		if _, ok := byAddr[addr]; !ok {
			order = append(order, addr)
		}
		byAddr[addr] = append(byAddr[addr], m)
	}
	for _, addr := range order {
		if err := newResolver.AddPackageModulesAt(byAddr[addr], addr); err != nil {
			return err
		}
	}

	e.mu.Lock()
	if sf.Config != nil {
		if sender, err := bcs.ParseAddress(sf.Config.SenderAddress); err == nil {
			e.cfg.SenderAddress = sender
		}
		e.cfg.TxTimestampMs = sf.Config.TxTimestampMs
		e.cfg.ClockBaseMs = sf.Config.ClockBaseMs
		e.cfg.Epoch = sf.Config.Epoch
		e.cfg.EpochTimestampMs = sf.Config.EpochTimestampMs
		e.cfg.GasBudget = sf.Config.GasBudget
		e.cfg.GasPrice = sf.Config.GasPrice
		e.cfg.ReferenceGasPrice = sf.Config.ReferenceGasPrice
		e.cfg.EnforceImmutability = sf.Config.EnforceImmutability
		e.cfg.TrackVersions = sf.Config.TrackVersions
	} else if sender, err := bcs.ParseAddress(sf.Sender); err == nil {
		e.cfg.SenderAddress = sender
	}
	e.Executor.TrackVersions = e.cfg.TrackVersions
	e.coinRegistry = make(map[string]CoinMetadata, len(sf.CoinRegistry))
	for k, v := range sf.CoinRegistry {
		e.coinRegistry[k] = v
	}
	e.mu.Unlock()

	e.Resolver = newResolver
	e.Store = newStore
	e.Executor.Resolver = newResolver
	e.Executor.Store = newStore
	e.events.reset()
	e.log.Infow("state loaded", "path", path, "objects", len(sf.Objects), "modules", len(sf.Modules))
	return nil
}

// FromStateFile constructs a brand-new Environment directly from a
// persisted-state file (spec.md §6).
func FromStateFile(path string, log *zap.SugaredLogger) (*Environment, error) {
	env := New(DefaultConfig(), log)
	if err := env.LoadState(path); err != nil {
		return nil, err
	}
	return env, nil
}
