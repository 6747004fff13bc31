// Command suisim runs a tiny end-to-end smoke transaction against a
// fresh Environment: mint a coin, split it, and print the resulting
// effects. It exists to exercise the Environment facade the way an
// embedder would, not as a general-purpose CLI (spec.md §1 places the
// tool/RPC surface out of scope).
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/suisim/sandbox/bcs"
	"github.com/suisim/sandbox/environment"
	"github.com/suisim/sandbox/ptb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "suisim:", err)
		os.Exit(1)
	}
}

func run() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	env := environment.New(environment.DefaultConfig(), log.Sugar())

	coinID, err := env.CreateCoin(1_000)
	if err != nil {
		return fmt.Errorf("create coin: %w", err)
	}
	coin, ok := env.GetObject(coinID)
	if !ok {
		return fmt.Errorf("coin %s not found after creation", coinID)
	}

	inputs := []ptb.InputValue{
		ptb.ObjectInputValue(ptb.ObjectInput{
			Kind:    ptb.ObjOwned,
			ID:      coin.ID,
			Bytes:   coin.BCSBytes,
			TypeTag: coin.TypeTag,
			Version: coin.Version,
		}),
		ptb.PureInput(bcs.NewEncoder().U64(250).Bytes()),
	}
	commands := []ptb.Command{
		ptb.SplitCoins(ptb.InputArg(0), []ptb.Argument{ptb.InputArg(1)}),
	}

	eff, err := env.ExecutePTB(inputs, commands)
	if err != nil {
		return fmt.Errorf("execute PTB: %w", err)
	}

	fmt.Printf("success=%v commands_succeeded=%d created=%d mutated=%d\n",
		eff.Success, eff.CommandsSucceeded, len(eff.Created), len(eff.Mutated))
	return nil
}
