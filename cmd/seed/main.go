// Command main runs the database seeder for studiodesk.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"studiodesk/internal/cache"
	"studiodesk/internal/config"
	"studiodesk/internal/database"
	"studiodesk/internal/seed"
)

func main() {
	preset := flag.String("preset", "demo", "Preset name ("+strings.Join(seed.PresetNames(), ", ")+") or path to a .yml file")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	randSeed := flag.Int64("rand", 0, "Random seed for reproducible data (0 = random)")
	fast := flag.Bool("fast", false, "Hash passwords at minimum bcrypt cost")
	list := flag.Bool("list", false, "List embedded presets and exit")
	flag.Parse()

	if *list {
		for _, name := range seed.PresetNames() {
			log.Println(name)
		}
		return
	}

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	p, err := seed.LoadPreset(*preset)
	if err != nil {
		log.Fatalf("❌ Invalid preset: %v", err)
	}
	log.Printf("Applying preset: %s (users=%d posts=%d clean=%v)\n", p.Name, p.Users, p.Posts, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	// Cached forum pages are dropped once seeding finishes.
	ctx := context.Background()
	cache.ConnectOptional(ctx, cfg.RedisURL)
	s := seed.NewSeeder(db, seed.Options{RandSeed: *randSeed, SkipBcrypt: *fast})

	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	summary, err := s.ApplyPreset(ctx, p)
	if err != nil {
		log.Fatalf("❌ Preset seeding failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Println("📧 All seeded users have the password: password123")
}
