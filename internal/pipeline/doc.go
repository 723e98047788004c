// Package pipeline sequences a market research run.
//
// A run moves through a fixed set of states:
//
//	init -> stage1-parallel -> stage1-validate -> stage2-batch -> stage3-serial -> done
//
// with failed reachable from any non-terminal state. Stage 1 runs vendor
// discovery and the two factor analyses concurrently and waits for all three.
// Each of the three outputs is required. Stage 2 deep-dives a prefix of the
// discovered vendors through the worker pool; single vendor failures are
// tolerated. Stage 3 synthesizes the questionnaire from everything before it.
package pipeline
