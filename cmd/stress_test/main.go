package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/car-sharing/internal/adapter/storage"
	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/core/service"
	"github.com/rl1809/car-sharing/internal/port"
)

const (
	initialInventory = 20
	totalRequests    = 50
)

type discardQueue struct{}

func (discardQueue) Enqueue(domain.Event) {}

func main() {
	ctx := context.Background()

	var repo port.Repository
	var seedUser func() int64

	if dsn := os.Getenv("MYSQL_DSN"); dsn != "" {
		db, err := storage.OpenMySQL(dsn)
		if err != nil {
			log.Fatalf("failed to open mysql: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("failed to connect mysql: %v", err)
		}
		if err := storage.Migrate(db); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		repo = storage.NewMySQLAdapter(db)
		seedUser = func() int64 {
			res, err := db.ExecContext(ctx, `INSERT INTO users (email, first_name, last_name) VALUES (?, 'Stress', 'Test')`,
				"stress-"+uuid.NewString()+"@example.com")
			if err != nil {
				log.Fatalf("failed to seed user: %v", err)
			}
			id, _ := res.LastInsertId()
			return id
		}
		fmt.Println("Store: mysql")
	} else {
		mem := storage.NewMemoryAdapter()
		repo = mem
		var next atomic.Int64
		seedUser = func() int64 {
			id := next.Add(1)
			mem.AddUser(domain.User{ID: id, Email: fmt.Sprintf("stress-%d@example.com", id)})
			return id
		}
		fmt.Println("Store: memory")
	}

	car := domain.Car{
		Brand:     "Stress",
		Model:     "Test",
		Type:      domain.CarTypeSedan,
		Inventory: initialInventory,
		DailyFee:  decimal.NewFromInt(25),
	}
	if err := repo.CreateCar(ctx, &car); err != nil {
		log.Fatalf("failed to create car: %v", err)
	}

	users := make([]int64, totalRequests)
	for i := range users {
		users[i] = seedUser()
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	rentals := service.NewRentalService(repo, service.NewInventoryLedger(), discardQueue{}, service.WithLogger(quiet))

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()
	returnDate := time.Now().AddDate(0, 0, 3)

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()

			caller := domain.Caller{UserID: userID, Roles: []domain.Role{domain.RoleCustomer}}
			_, err := rentals.Create(ctx, caller, service.CreateRentalInput{CarID: car.ID, ReturnDate: returnDate})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(users[i])
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Inventory: %d\n", initialInventory)
	fmt.Printf("Total Requests:    %d\n", totalRequests)
	fmt.Printf("Successful:        %d\n", success)
	fmt.Printf("Failed:            %d\n", fail)
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialInventory) && fail == int32(totalRequests-initialInventory) {
		fmt.Printf("PASS: Exactly %d rentals opened, %d rejected\n", initialInventory, totalRequests-initialInventory)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialInventory, totalRequests-initialInventory, success, fail)
	}

	final, err := repo.GetCar(ctx, car.ID)
	if err != nil {
		log.Fatalf("failed to read car: %v", err)
	}
	fmt.Printf("Final Inventory:   %d\n", final.Inventory)

	if final.Inventory == 0 {
		fmt.Println("PASS: Inventory depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected inventory 0, got %d\n", final.Inventory)
	}
}
