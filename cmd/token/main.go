// Command token mints a development JWT signed with JWT_SECRET, standing in for the identity
// provider during local testing.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/aura-erp/meeting-scheduler/config"
	"github.com/aura-erp/meeting-scheduler/internal/auth"
)

func main() {
	userID := flag.String("user", "", "user id (random when empty)")
	email := flag.String("email", "dev@example.com", "email claim")
	name := flag.String("name", "Dev User", "display name claim")
	role := flag.String("role", "organizer", "role claim")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	id := uuid.New()
	if *userID != "" {
		id, err = uuid.Parse(*userID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid -user:", err)
			os.Exit(2)
		}
	}

	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(id, *email, *name, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
