// Package lifecycle tracks recommendations through their status machine.
//
// A recommendation is materialized in the Shown state when it is first
// returned to a caller. From there it moves through
//
//	Shown -> Accepted | Rejected
//	Accepted -> Executed            (Shown -> Executed when the rule allows direct execution)
//	Executed -> Executed (success) | Failed
//
// Rejected, Failed and Executed with a success outcome are terminal.
//
// Transitions are idempotent. Every applied transition appends one audit
// event keyed by (recommendation id, event status), and a request whose
// event is already recorded, or whose target state is already reached, is
// a no-op that returns the stored recommendation. Requests that do not
// follow the table fail with ErrInvalidTransition and leave the state
// unchanged. The store update is a compare-and-set on the previous state,
// so concurrent or out-of-order callbacks cannot double-apply.
package lifecycle
