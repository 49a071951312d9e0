// Package main provides admin management utilities for studiodesk.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/models"
	"studiodesk/internal/repository"
	"studiodesk/internal/service"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin/main.go promote <user_id>                - Promote user to admin")
	fmt.Println("  go run ./cmd/admin/main.go demote <user_id>                 - Demote user from admin")
	fmt.Println("  go run ./cmd/admin/main.go list-admins                      - List all admins")
	fmt.Println("  go run ./cmd/admin/main.go set-username <user_id> <name>    - Complete username setup for a user")
	fmt.Println("  go run ./cmd/admin/main.go credit <user_id> <cents>         - Add generation balance")
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	users := service.NewUserService(repository.NewUserRepository(db), cfg.JWTSecret)
	billing := service.NewBillingService(repository.NewBillingRepository(db), cfg.GenerationCostCents)
	ctx := context.Background()

	switch os.Args[1] {
	case "promote":
		setAdmin(ctx, users, argID(2), true)
	case "demote":
		setAdmin(ctx, users, argID(2), false)
	case "list-admins":
		listAdmins(ctx, users)
	case "set-username":
		if len(os.Args) < 4 {
			usage()
		}
		status, err := users.SetUsername(ctx, argID(2), os.Args[3])
		if err != nil {
			log.Fatalf("Failed to set username: %v", err)
		}
		fmt.Printf("✅ User %d is now @%s\n", argID(2), status.Username)
	case "credit":
		if len(os.Args) < 4 {
			usage()
		}
		cents, err := strconv.ParseInt(os.Args[3], 10, 64)
		if err != nil || cents <= 0 {
			log.Fatalf("Invalid amount %q", os.Args[3])
		}
		acct, err := billing.Credit(ctx, argID(2), cents)
		if err != nil {
			log.Fatalf("Failed to credit user: %v", err)
		}
		fmt.Printf("✅ Balance for user %d: %d %s cents\n", acct.UserID, acct.BalanceCents, acct.Currency)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
	}
}

func argID(i int) uint {
	if len(os.Args) <= i {
		usage()
	}
	id, err := strconv.ParseUint(os.Args[i], 10, 32)
	if err != nil || id == 0 {
		log.Fatalf("Invalid user ID %q", os.Args[i])
	}
	return uint(id)
}

func setAdmin(ctx context.Context, users *service.UserService, userID uint, admin bool) {
	user, err := users.GetUserByID(ctx, userID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			fmt.Printf("User with ID %d not found\n", userID)
			os.Exit(1)
		}
		log.Fatalf("Database error: %v", err)
	}

	if user.IsAdmin == admin {
		fmt.Printf("User %s (ID: %d) already has is_admin=%t\n", user.Handle(), user.ID, admin)
		return
	}

	if _, err := users.SetAdmin(ctx, userID, admin); err != nil {
		log.Fatalf("Failed to update user: %v", err)
	}

	verb := "promoted"
	if !admin {
		verb = "demoted"
	}
	fmt.Printf("✅ Successfully %s %s (ID: %d)\n", verb, user.Handle(), user.ID)
}

func listAdmins(ctx context.Context, users *service.UserService) {
	admins, err := users.ListAdmins(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}

	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return
	}

	fmt.Println("\n📋 Current Admins:")
	fmt.Println("─────────────────────────────────────")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s | Email: %s\n", admin.ID, admin.Handle(), admin.Email)
	}
	fmt.Println("─────────────────────────────────────")
}
