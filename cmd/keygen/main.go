package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/af-corp/grocer-orchestrator/internal/auth"
)

func main() {
	service := flag.String("service", "", "calling service name, e.g. web or mobile (required)")
	plan := flag.String("plan", "pro", "subscription plan the service acts for: free or pro")
	tasks := flag.String("tasks", "", "comma-separated task types the key may call (empty = all)")
	rpm := flag.Int("rpm", 0, "per-user requests per minute (0 = configured default)")
	dailyCents := flag.Int("daily-cents", 0, "per-user daily spend limit in cents (0 = configured default)")
	env := flag.String("env", "prod", "environment prefix")
	expires := flag.String("expires", "365d", "expiry duration (e.g., 365d, 720h)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *service == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -service is required")
		os.Exit(1)
	}

	allowed, err := auth.ParseTaskList(*tasks)
	if err != nil {
		log.Fatalf("invalid tasks: %v", err)
	}

	rawKey, err := auth.GenerateKey(*env)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	keyHash := auth.HashKey(rawKey)
	keyPrefix := auth.KeyPrefix(rawKey)

	dur, err := auth.ParseDuration(*expires)
	if err != nil {
		log.Fatalf("invalid expires: %v", err)
	}
	expiresAt := time.Now().Add(dur)

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "grocer")
		pass := envOrDefault("DB_PASSWORD", "grocer-dev")
		dbname := envOrDefault("DB_NAME", "grocer")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	var taskNames []string
	for _, t := range allowed {
		taskNames = append(taskNames, string(t))
	}

	var keyID string
	err = conn.QueryRow(ctx, `
		INSERT INTO service_keys (key_hash, key_prefix, service_name, plan, allowed_tasks, rpm_limit, daily_spend_limit_cents, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, keyHash, keyPrefix, *service, *plan, taskNames, nilIfZero(*rpm), nilIfZero(*dailyCents), expiresAt).Scan(&keyID)
	if err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("=== Grocer Service Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:      %s\n", keyID)
	fmt.Printf("  Key Prefix:  %s\n", keyPrefix)
	fmt.Printf("  Service:     %s\n", *service)
	fmt.Printf("  Plan:        %s\n", *plan)
	if len(taskNames) > 0 {
		fmt.Printf("  Tasks:       %s\n", strings.Join(taskNames, ", "))
	} else {
		fmt.Println("  Tasks:       all")
	}
	fmt.Printf("  Expires:     %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Service key (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawKey)
	fmt.Println()
	fmt.Println("====================================")
}

func nilIfZero(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
