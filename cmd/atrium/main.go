// Command atrium runs the gateway: it loads atrium.yaml, builds the
// dispatcher, and serves traffic until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"

	"github.com/nicolaspernoud/atrium-go/internal/config"
	"github.com/nicolaspernoud/atrium-go/internal/dispatch"
	"github.com/nicolaspernoud/atrium-go/internal/listener"
	"github.com/nicolaspernoud/atrium-go/internal/logging"
)

var (
	configPath = flag.String("config", "atrium.yaml", "path to the configuration file")
)

func main() {
	flag.Parse()

	store, err := config.NewStore(*configPath)
	if err != nil {
		log.Fatalf("atrium: load config: %v", err)
	}

	if store.Get().LogToFile {
		if err := logging.ToFile("atrium.log"); err != nil {
			log.Fatalf("atrium: open log file: %v", err)
		}
	}

	notFoundHandler := http.NotFoundHandler()
	d := dispatch.New(store, notFoundHandler)

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	go func() {
		for range reload {
			if err := store.Reload(); err != nil {
				log.Printf("atrium: reload failed, keeping previous config: %v", err)
				continue
			}
			log.Println("atrium: configuration reloaded")
		}
	}()

	snap := store.Get()
	addr := ":" + portOrDefault(snap.HTTPPort)

	srv := &http.Server{
		Addr:         addr,
		Handler:      d,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // proxied upgrades and large DAV transfers run long
		IdleTimeout:  120 * time.Second,
	}

	ln, err := listener.ListenTCP("tcp", addr)
	if err != nil {
		log.Fatalf("atrium: listen on %s: %v", addr, err)
	}
	ln = listener.NewConnLimiter(ln, listener.ConnLimiterConfig{OnReject: listener.LoggingOnReject})

	go func() {
		log.Printf("atrium: serving %s on %s (tls_mode=%s)", snap.Hostname, addr, snap.TLSMode)
		if snap.TLSMode == config.TLSAuto {
			// certmagic.HTTPS manages its own :80/:443 listeners and the
			// full ACME lifecycle; it blocks, so it replaces srv.Serve
			// entirely for this mode rather than composing with the
			// connection-limited listener built above.
			certmagic.DefaultACME.Email = snap.LetsEncryptEmail
			if err := certmagic.HTTPS([]string{snap.Hostname}, d); err != nil && err != http.ErrServerClosed {
				log.Fatalf("atrium: certmagic server failed: %v", err)
			}
			return
		}
		// No, BehindProxy, and SelfSigned all terminate plain HTTP at this
		// listener: BehindProxy expects an upstream TLS terminator,
		// SelfSigned's certificate pairing is an external-collaborator
		// concern (ACME/cert storage, out of scope for this module).
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Fatalf("atrium: server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("atrium: shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("atrium: forced shutdown: %v", err)
	}
	log.Println("atrium: stopped")
}

func portOrDefault(p int) string {
	if p == 0 {
		return "8080"
	}
	return strconv.Itoa(p)
}
