// Package hearts holds the state of one Hearts game: the seated players and
// their hands, the pile of played cards, the exclusive turn, and the rules
// deciding which card may be played next.
//
// Game is the orchestrator. It owns the NOT_STARTED → STARTED → ENDED
// lifecycle, runs the injected RuleEngine before a play is accepted, and
// mutates the Registry only while holding the registry's turn guard.
package hearts
