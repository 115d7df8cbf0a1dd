package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"airdrop-backend/internal/handlers"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func main() {
	username := flag.String("user", "admin", "admin username embedded in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	newTOTP := flag.Bool("new-totp", false, "generate a fresh TOTP secret instead of a token")
	showCode := flag.Bool("totp-code", false, "print the current TOTP code for ADMIN_TOTP_SECRET")
	flag.Parse()

	switch {
	case *newTOTP:
		generateTOTPSecret(*username)
	case *showCode:
		printTOTPCode()
	default:
		generateToken(*username, *ttl)
	}
}

func generateToken(username string, ttl time.Duration) {
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("❌ ADMIN_JWT_SECRET is not set")
		os.Exit(1)
	}

	now := time.Now()
	token, err := handlers.GenerateAdminJWTToken(secret, username, now, ttl)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("Admin JWT Token")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(token)
	fmt.Println()
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Expires:  %s\n", now.Add(ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H 'Authorization: Bearer %s' -X POST http://127.0.0.1:8080/api/admin/airdrops -d @airdrop.json\n", token)
}

func generateTOTPSecret(username string) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Airdrop Admin",
		AccountName: username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		fmt.Printf("Error generating TOTP secret: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Secret: %s\n", key.Secret())
	fmt.Printf("URL:    %s\n", key.URL())
	fmt.Println("Save the secret to ADMIN_TOTP_SECRET and add the URL to an authenticator app.")
}

func printTOTPCode() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		fmt.Println("❌ ADMIN_TOTP_SECRET is not set")
		os.Exit(1)
	}
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")
}
