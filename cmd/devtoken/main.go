// Command devtoken prints an access/refresh token pair for local testing of
// the admin API. It reads the same JWT_* environment as the api.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"telecom-routing/internal/auth"
	"telecom-routing/internal/config"
	"telecom-routing/internal/rbac"

	"github.com/ilyakaznacheev/cleanenv"
)

func main() {
	operator := flag.String("operator", "dev-operator", "operator id placed in the token")
	role := flag.String("role", rbac.RoleAdmin, "role: admin, operator, viewer or call_router")
	flag.Parse()

	if err := run(*operator, *role); err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
}

func run(operator, role string) error {
	if !rbac.Known(role) {
		return fmt.Errorf("unknown role %q", role)
	}

	var cfg config.AuthConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return err
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}
	pair, err := m.IssuePair(time.Now(), operator, role)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pair)
}
