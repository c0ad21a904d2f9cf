// Package token mints and verifies the signed bearer tokens (access and
// refresh) issued on login, with strict validation semantics suitable for
// low-latency authentication paths.
package token
