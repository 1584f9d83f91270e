package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/vivero-tech/viverogo/internal/config"
	"github.com/vivero-tech/viverogo/internal/database"
	"github.com/vivero-tech/viverogo/internal/hierarchy"
	"github.com/vivero-tech/viverogo/internal/ingest"
)

func main() {
	verbose := flag.Bool("v", false, "print every feature outcome, not just failures")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-v] <survey.geojson>\n", os.Args[0])
		os.Exit(2)
	}
	path := flag.Arg(0)

	fmt.Println("🌱 Vivero GIS Survey Loader")
	fmt.Println()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("❌ Failed to read %s: %v", path, err)
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println()

	fmt.Println("🔨 Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	fmt.Println("✅ Migrations complete")
	fmt.Println()

	store := hierarchy.NewStore(db.DB)
	store.LineBufferM = cfg.Ingest.LineBufferM
	store.PointBufferM = cfg.Ingest.PointBufferM

	loader := ingest.NewLoader(store, ingest.DefaultRules())
	loader.SetQRPrefix(cfg.Ingest.QRPrefix)

	summary, err := loader.RunNamed(context.Background(), data, filepath.Base(path))
	if err != nil {
		log.Fatalf("❌ Ingestion failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("📊 Run %s\n", summary.RunID)
	fmt.Printf("   Warehouses loaded: %d\n", summary.LoadedWarehouses)
	fmt.Printf("   Areas loaded:      %d\n", summary.LoadedAreas)
	fmt.Printf("   Locations loaded:  %d\n", summary.LoadedLocations)
	fmt.Printf("   Already existed:   %d\n", summary.AlreadyExisted)
	fmt.Printf("   Skipped:           %d\n", summary.Skipped)
	fmt.Printf("   Failed:            %d\n", summary.Failed)
	if summary.FallbackMatches > 0 {
		fmt.Printf("   ⚠️  Fallback parent matches: %d (review recommended)\n", summary.FallbackMatches)
	}

	for _, o := range summary.Outcomes {
		if !*verbose && o.Status != ingest.StatusFailed {
			continue
		}
		line := fmt.Sprintf("   [%d] %-30q %s", o.Index, o.Name, o.Status)
		if o.Reason != "" {
			line += ": " + o.Reason
		}
		fmt.Println(line)
	}

	if summary.Failed > 0 {
		os.Exit(1)
	}
}
