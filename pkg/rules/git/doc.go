// Package git loads rule packs from a Git repository.
//
// The repository is cloned on first use and pulled on every load, so a
// rule change becomes visible once it is merged into the tracked branch and
// the rule repository refreshes (on its polling schedule or an explicit
// refresh signal). Authentication supports access tokens over HTTPS, SSH
// keys, and anonymous access.
//
// A remote that cannot be reached is reported as an unavailable source. A
// commit whose rule packs fail validation is reported as a load error and
// the last good commit is remembered for status reporting.
package git
