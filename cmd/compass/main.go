// Compass is a rule-driven next best action recommender.
//
// It evaluates business contexts (opportunities, accounts, tickets) against
// declarative rules, ranks the applicable actions and tracks what happens
// to each recommendation:
//   - Rule packs loaded from files or a Git repository, with hot reload
//   - Conditions as field expressions, CEL, JsonLogic or decision callbacks
//   - Score modifiers such as time decay and signal boosts
//   - Recommendation lifecycle tracking with an append-only audit trail
//
// Usage:
//
//	# Start the API server
//	compass run --config /etc/compass/config.yaml
//
//	# Evaluate a context offline
//	compass evaluate --context deal.json --top 5
//
//	# Check rule packs before committing them
//	compass rules lint rules/
//
//	# Export the audit trail of a recommendation
//	compass audit query --recommendation-id 3f2a... --format csv
package main

func main() {
	Execute()
}
