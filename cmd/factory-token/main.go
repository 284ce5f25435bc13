// Command factory-token mints a bearer token for the factory endpoint,
// for development and service provisioning. The signing secret comes
// from FACTORY_JWT_SECRET and must match the endpoint's.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
)

func main() {
	var (
		subject = flag.String("subject", "", "principal id (required)")
		tenant  = flag.String("tenant", "", "tenant id")
		roles   = flag.String("roles", "", "comma-separated roles")
		issuer  = flag.String("issuer", "factory", "token issuer")
		ttl     = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "factory-token: -subject is required")
		flag.Usage()
		os.Exit(2)
	}
	secret := os.Getenv("FACTORY_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "factory-token: FACTORY_JWT_SECRET is not set")
		os.Exit(2)
	}

	tm, err := identity.NewTokenManager([]byte(secret), *issuer, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "factory-token:", err)
		os.Exit(1)
	}

	p := identity.Principal{ID: *subject, TenantID: *tenant}
	if *roles != "" {
		for _, r := range strings.Split(*roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				p.Roles = append(p.Roles, r)
			}
		}
	}

	token, jti, err := tm.Issue(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "factory-token:", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "jti:", jti)
	fmt.Println(token)
}
