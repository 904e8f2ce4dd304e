package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/timeless/internal/adapter/storage"
	"github.com/rl1809/timeless/internal/config"
	"github.com/rl1809/timeless/internal/core/service"
	"github.com/rl1809/timeless/internal/port"
)

const (
	productID     = int64(1)
	totalRequests = 50
)

type stressStore interface {
	port.CartRepository
	port.CatalogReader
	port.UserRepository
}

func main() {
	ctx := context.Background()

	cfg, _, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var store stressStore
	if cfg.StorageDriver == config.DriverMemory {
		store = storage.NewMemoryStore(storage.SeedProducts()...)
	} else {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to ping mysql: %v", err)
		}
		if err := storage.Migrate(db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		store = storage.NewMySQLAdapter(db)
	}

	user, err := store.CreateUserWithCart(ctx, "stress-"+uuid.NewString()[:8], "x")
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}
	cartService := service.NewCartService(store, store, zerolog.Nop())

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Each goroutine requests a distinct quantity
	var wg sync.WaitGroup
	start := time.Now()

	for i := 1; i <= totalRequests; i++ {
		wg.Add(1)
		go func(quantity int) {
			defer wg.Done()

			if _, err := cartService.SetQuantity(ctx, user.CartID, productID, quantity); err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
				fmt.Fprintf(os.Stderr, "set quantity %d: %v\n", quantity, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Storage Driver:   %s\n", cfg.StorageDriver)
	fmt.Printf("Cart:             %d\n", user.CartID)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == totalRequests {
		fmt.Printf("PASS: All %d updates succeeded\n", totalRequests)
	} else {
		fmt.Printf("FAIL: Expected %d successful updates, got %d\n", totalRequests, success)
	}

	// Verify the surviving line
	lines, err := cartService.GetCart(ctx, user.CartID)
	if err != nil {
		log.Fatalf("failed to read cart: %v", err)
	}
	if len(lines) != 1 {
		fmt.Printf("FAIL: Expected exactly 1 line, got %d\n", len(lines))
		return
	}

	final := lines[0].Quantity
	fmt.Printf("Final Quantity:   %d\n", final)
	if final >= 1 && final <= totalRequests {
		fmt.Println("PASS: Final quantity is one of the requested values")
	} else {
		fmt.Printf("FAIL: Final quantity %d was never requested\n", final)
	}
}
