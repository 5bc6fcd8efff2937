// Package logging wraps the standard library's log package with a couple
// of request/auth-shaped helpers. Atrium follows the teacher in never
// reaching for a structured logger: everything goes through plain
// log.Printf/log.Println, optionally directed at a file instead of
// stderr.
package logging

import (
	"log"
	"net/http"
	"os"
	"time"
)

// ToFile redirects the standard logger's output to path, appending.
// Errors opening the file are fatal: a gateway that silently drops its
// own audit trail is worse than one that fails to start.
func ToFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	log.SetOutput(f)
	return nil
}

// Request logs one completed HTTP exchange in the teacher's
// "METHOD path status duration" shape.
func Request(r *http.Request, status int, start time.Time) {
	log.Printf("%s %s %d %v", r.Method, r.URL.Path, status, time.Since(start))
}

// AuthFailure logs a denied or challenged auth attempt. Only the login and
// a coarse remote address are recorded — never the token, password, or
// full cookie value.
func AuthFailure(login, remoteAddr, reason string) {
	log.Printf("auth: denied login=%q from=%s reason=%s", login, coarsen(remoteAddr), reason)
}

// coarsen drops the port from a host:port remote address so logs don't
// pin down the exact ephemeral client port.
func coarsen(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
