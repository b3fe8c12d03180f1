package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Mints HS256 tokens understood by client.AuthUserMiddleware, for trying out the API.
func main() {
	secret := flag.String("secret", "very-secure-jwt-secret", "Secret key for signing the token (JWT_SECRET)")
	issuer := flag.String("issuer", "simple-idm", "Issuer of the token")
	audience := flag.String("audience", "simple-idm", "Audience of the token")
	subject := flag.String("subject", "test-subject", "Subject of the token (the user ID)")
	username := flag.String("username", "", "Username placed in extra_claims")
	email := flag.String("email", "", "Email placed in extra_claims")
	roles := flag.String("roles", "", "Comma separated roles, e.g. admin")
	expiry := flag.Duration("expiry", 30*time.Minute, "Token expiry duration (e.g., 30m, 1h, 24h)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	now := time.Now()
	expiresAt := now.Add(*expiry)

	extraClaims := map[string]interface{}{
		"user_id": *subject,
	}
	if *username != "" {
		extraClaims["username"] = *username
	}
	if *email != "" {
		extraClaims["email"] = *email
	}
	if *roles != "" {
		extraClaims["roles"] = strings.Split(*roles, ",")
	}

	claims := jwt.MapClaims{
		"sub":          *subject,
		"iss":          *issuer,
		"aud":          *audience,
		"iat":          now.Unix(),
		"nbf":          now.Unix(),
		"exp":          expiresAt.Unix(),
		"extra_claims": extraClaims,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(*secret))
	if err != nil {
		slog.Error("Failed to sign token", "err", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "compact":
		fmt.Println(tokenStr)
	case "full":
		fmt.Printf("Token: %s\nExpires: %s\n", tokenStr, expiresAt.Format(time.RFC3339))
	case "debug":
		parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(*secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			slog.Error("Failed to parse generated token", "err", err)
			fmt.Fprintf(os.Stderr, "Error: Failed to parse generated token: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("=== Token Information ===\n")
		fmt.Printf("Token: %s\n\n", tokenStr)
		fmt.Printf("=== Token Header ===\n")
		headerJSON, _ := json.MarshalIndent(parsed.Header, "", "  ")
		fmt.Printf("%s\n\n", headerJSON)
		fmt.Printf("=== Token Claims ===\n")
		claimsJSON, _ := json.MarshalIndent(parsed.Claims, "", "  ")
		fmt.Printf("%s\n\n", claimsJSON)
		fmt.Printf("Expires: %s\n", expiresAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
