// Package scoring computes the score of an applicable rule for a context.
//
//	score = base_score + Σ modifier_i(rule, context, as-of)
//
// Modifiers are named functions registered on the Engine; a rule lists the
// modifiers that apply to it together with their parameters. Scoring never
// reads the wall clock: time-dependent modifiers use the as-of timestamp
// passed to Score, so identical inputs produce bit-identical scores.
//
// A modifier that is unknown, fails, panics or yields NaN or ±Inf
// contributes zero. The failure is logged and reported in the result's
// contributions.
//
// Built-in modifiers:
//
//	time_decay       {field, rate_per_day, max_penalty, grace_days}
//	magnitude        {field, factor, cap}
//	signal           {name, weight}
//	attribute_boost  {field, equals, boost}
package scoring
