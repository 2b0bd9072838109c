package db

import (
	"fmt"

	"github.com/pi-tank/tankd/internal/monitoring"
)

// RunMigrateCommand handles the 'migrate' subcommand dispatching. It opens
// the database itself so migrations can run without starting the service.
func RunMigrateCommand(args []string, dbPath, migrationsDir string) error {
	if len(args) < 1 {
		PrintMigrateHelp()
		return fmt.Errorf("missing migrate action")
	}
	action := args[0]

	if action == "help" {
		PrintMigrateHelp()
		return nil
	}

	database, err := NewDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action {
	case "up":
		return handleMigrateUp(database, migrationsDir)

	case "down":
		return handleMigrateDown(database, migrationsDir)

	case "status":
		return handleMigrateStatus(database, migrationsDir)

	default:
		PrintMigrateHelp()
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

// handleMigrateUp applies all pending migrations
func handleMigrateUp(database *DB, migrationsDir string) error {
	monitoring.Logf("Running migrations...")
	if err := database.MigrateUp(migrationsDir); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	monitoring.Logf("All migrations applied successfully")

	version, dirty, _ := database.MigrateVersion(migrationsDir)
	monitoring.Logf("Current version: %d (dirty: %v)", version, dirty)
	return nil
}

// handleMigrateDown rolls back one migration
func handleMigrateDown(database *DB, migrationsDir string) error {
	monitoring.Logf("Rolling back one migration...")
	if err := database.MigrateDown(migrationsDir); err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}
	monitoring.Logf("Migration rolled back successfully")

	version, dirty, _ := database.MigrateVersion(migrationsDir)
	monitoring.Logf("Current version: %d (dirty: %v)", version, dirty)
	return nil
}

// handleMigrateStatus displays the current migration status
func handleMigrateStatus(database *DB, migrationsDir string) error {
	version, dirty, err := database.MigrateVersion(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Dirty: %v\n", dirty)
	if dirty {
		fmt.Println()
		fmt.Println("WARNING: Database is in a dirty state!")
		fmt.Println("A migration failed mid-execution; inspect the database manually.")
	}
	return nil
}

func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: tankd migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up       Apply all pending migrations")
	fmt.Println("  down     Rollback one migration")
	fmt.Println("  status   Show current migration status and version")
	fmt.Println("  help     Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tankd migrate up")
	fmt.Println("  tankd migrate -db tank.db -migrations migrations up")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>           Path to database file (default: tank.db)")
	fmt.Println("  -migrations <path>   Migrations directory (default: migrations)")
}
