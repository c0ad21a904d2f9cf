// Package rate provides Redis-backed fixed-window counters used to throttle
// security-sensitive operations: password logins, email token requests, and
// failing OAuth callbacks.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:  — login per-identifier
//   - ali: — login per-IP
//   - ae:  — email token requests per-address
//   - ac:  — OAuth callback failures per-IP
package rate
