package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/linesmerrill/emergency-report-api/config"
)

// Quick utility to generate an operators entry for evlc.yaml
// Usage: go run scripts/operator_entry.go <id> <name> <roles> <password>
func main() {
	if len(os.Args) < 5 {
		fmt.Println("Usage: go run scripts/operator_entry.go <id> <name> <roles> <password>")
		fmt.Println("Example: go run scripts/operator_entry.go op-1 dispatch operator,admin 0i2rinbcp12yc31h")
		os.Exit(1)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(os.Args[4]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Printf("Error generating hash: %v\n", err)
		os.Exit(1)
	}

	entry := []config.Operator{{
		ID:           os.Args[1],
		Name:         os.Args[2],
		PasswordHash: string(hashedPassword),
		Roles:        strings.Split(os.Args[3], ","),
	}}
	b, err := yaml.Marshal(entry)
	if err != nil {
		fmt.Printf("Error encoding entry: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Add under operators: in evlc.yaml\n\n")
	fmt.Print(string(b))
}
