package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"

	"github.com/af-corp/grocer-orchestrator/internal/config"
	"github.com/af-corp/grocer-orchestrator/internal/store"
	"github.com/af-corp/grocer-orchestrator/internal/types"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	seedRoutes := flag.String("seed-routes", "", "routes.yaml to copy into task_routes after migrating up")
	overwrite := flag.Bool("overwrite", false, "replace existing task_routes rows when seeding")
	flag.Parse()

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		user := envOrDefault("DB_USER", "grocer")
		pass := envOrDefault("DB_PASSWORD", "grocer-dev")
		name := envOrDefault("DB_NAME", "grocer")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
	}

	m, err := migrate.New("file://"+*migrationsPath, dsn)
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *direction {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	default:
		log.Fatalf("invalid direction: %s (use 'up' or 'down')", *direction)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration failed: %v", err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (version: %d, dirty: %v)\n", *direction, v, dirty)

	if *seedRoutes != "" && *direction == "up" {
		n, err := seed(dsn, *seedRoutes, *overwrite)
		if err != nil {
			log.Fatalf("seed routes failed: %v", err)
		}
		fmt.Printf("seeded %d task routes from %s\n", n, *seedRoutes)
	}
}

// seed writes every task route from the routes file into task_routes.
func seed(dsn, path string, overwrite bool) (int, error) {
	routes := config.DefaultRoutes()
	if err := config.LoadFile(path, routes); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	tasks := make([]types.TaskType, 0, len(routes.Tasks))
	for task := range routes.Tasks {
		if task.Known() {
			tasks = append(tasks, task)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i] < tasks[j] })

	rs := store.NewPostgresRouteStore(conn)
	for _, task := range tasks {
		if err := rs.SaveRoute(ctx, task, routes.Tasks[task], overwrite); err != nil {
			return 0, fmt.Errorf("%s: %w", task, err)
		}
	}
	return len(tasks), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
