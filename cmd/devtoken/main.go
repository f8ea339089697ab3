// Command devtoken prints an access token for local testing of the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/fitness-entitlements/internal/utils"
)

func main() {
	_ = godotenv.Load()
	sub := flag.String("sub", "", "user id placed in the sub claim")
	role := flag.String("role", "USER", "USER, TRAINER, GYM_OWNER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	tok, err := utils.NewAccessToken(os.Getenv("JWT_SECRET"), *sub, *role, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
