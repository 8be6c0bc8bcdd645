// Package simulation runs decision scenarios end to end on the real
// scheduler and processes.
//
// A scenario is a YAML file naming feature dimensions, the chunks that
// link cue features to a response, and a list of trials. Build turns it
// into a network:
//
//	Input(evidence) -> ChunkStore(bottom-up, top-down) -> Accumulator -> Choice
//
// with a DecisionLoop clearing the accumulator after every selection.
// Each trial sends its evidence at a fixed interval until the
// accumulator crosses threshold and a choice lands.
//
// Usage:
//
//	sc, err := simulation.LoadScenario("two_choice.yaml")
//	m, err := simulation.Build(cfg, sc, logger)
//	res, err := m.Run(ctx, simulation.RunOptions{})
//	simulation.AssertAllDecided(t, res)
package simulation
