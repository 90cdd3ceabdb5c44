// Command imapd runs an IMAP server backed by the in-memory reference
// backend.
package main

import (
	"crypto/tls"
	"flag"
	"log"
	"strings"

	"github.com/coldwire/imapd"
	"github.com/coldwire/imapd/imapserver"
	"github.com/coldwire/imapd/imapserver/imapmemserver"
)

func main() {
	addr := flag.String("addr", ":143", "address to listen on")
	insecureAuth := flag.Bool("insecure-auth", false, "allow authentication without TLS")
	certFile := flag.String("cert", "", "TLS certificate file, enables STARTTLS")
	keyFile := flag.String("key", "", "TLS key file, enables STARTTLS")
	badCommandLimit := flag.Int("bad-command-limit", 5, "consecutive BAD responses before disconnecting, 0 disables")
	users := flag.String("users", "", "comma-separated username:password pairs to seed the in-memory backend")
	flag.Parse()

	mem := imapmemserver.New()
	for _, pair := range strings.Split(*users, ",") {
		if pair == "" {
			continue
		}
		username, password, ok := strings.Cut(pair, ":")
		if !ok {
			log.Fatalf("imapd: invalid -users entry %q, want username:password", pair)
		}
		mem.AddUser(imapmemserver.NewUser(username, password))
	}

	var tlsConfig *tls.Config
	if *certFile != "" || *keyFile != "" {
		cert, err := tls.LoadX509KeyPair(*certFile, *keyFile)
		if err != nil {
			log.Fatalf("imapd: failed to load TLS certificate: %v", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	server := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		Caps: imap.CapSet{
			imap.CapIMAP4rev2: {},
			imap.CapACL:       {},
			imap.CapQuota:     {},
			imap.CapQuotaSet:  {},
			imap.CapID:        {},
		},
		TLSConfig:       tlsConfig,
		InsecureAuth:    *insecureAuth,
		BadCommandLimit: *badCommandLimit,
		ID: &imap.IDData{
			Name: "imapd",
		},
	})
	defer server.Close()

	log.Printf("imapd: listening on %s", *addr)
	if err := server.ListenAndServe(*addr); err != nil {
		log.Fatalf("imapd: %v", err)
	}
}
