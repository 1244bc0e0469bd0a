package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/rl1809/car-sharing/internal/core/domain"
	"github.com/rl1809/car-sharing/internal/port"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
	mysqlErrNoReferencedRow = 1452
)

//go:embed migrations/*.sql
var migrations embed.FS

var dialect = goqu.Dialect("mysql")

var (
	carColumns    = []any{"id", "brand", "model", "type", "inventory", "daily_fee", "created_at", "updated_at"}
	userColumns   = []any{"id", "email", "first_name", "last_name"}
	rentalColumns = []any{"id", "car_id", "user_id", "rental_date", "return_date", "actual_return_date"}
	// session columns are NULL until a checkout session exists
	paymentColumns = []any{
		"id", "rental_id", "type", "status", "amount_to_pay",
		goqu.COALESCE(goqu.C("session_id"), "").As("session_id"),
		goqu.COALESCE(goqu.C("session_url"), "").As("session_url"),
		"created_at", "updated_at",
	}
)

// OpenMySQL opens a pool for dsn. DATE and DATETIME columns are scanned into
// time.Time, so parseTime is forced on and times are read as UTC.
func OpenMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysqlConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type MySQLAdapter struct {
	db *sqlx.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: sqlx.NewDb(db, "mysql")}
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetCar(ctx context.Context, id int64) (*domain.Car, error) {
	var car domain.Car
	found, err := getOne(ctx, m.db, &car, dialect.From("cars").Select(carColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil || !found {
		return nil, err
	}
	return &car, nil
}

func (m *MySQLAdapter) ListCars(ctx context.Context, page domain.Page) ([]domain.Car, error) {
	ds := paged(dialect.From("cars").Select(carColumns...).Order(goqu.C("id").Asc()), page)

	cars := make([]domain.Car, 0)
	err := selectAll(ctx, m.db, &cars, ds)
	return cars, err
}

func (m *MySQLAdapter) CreateCar(ctx context.Context, car *domain.Car) error {
	now := time.Now().UTC()
	query, args, err := dialect.Insert("cars").Prepared(true).Rows(goqu.Record{
		"brand":      car.Brand,
		"model":      car.Model,
		"type":       car.Type,
		"inventory":  car.Inventory,
		"daily_fee":  car.DailyFee,
		"created_at": now,
		"updated_at": now,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert car: %w", err)
	}

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert car: %w", err)
	}
	if car.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("car id: %w", err)
	}
	car.CreatedAt, car.UpdatedAt = now, now
	return nil
}

func (m *MySQLAdapter) DeleteCar(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM cars WHERE id = ?`, id)
	if isMySQLError(err, mysqlErrRowIsReferenced) {
		return fmt.Errorf("car %d has rentals: %w", id, domain.ErrInvalidState)
	}
	if err != nil {
		return fmt.Errorf("delete car: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("car %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (m *MySQLAdapter) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	found, err := getOne(ctx, m.db, &u, dialect.From("users").Select(userColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

func (m *MySQLAdapter) GetRental(ctx context.Context, id int64) (*domain.Rental, error) {
	return getRental(ctx, m.db, id, false)
}

func (m *MySQLAdapter) ListRentals(ctx context.Context, f domain.RentalFilter) ([]domain.Rental, error) {
	ds := dialect.From("rentals").Select(rentalColumns...).Order(goqu.C("id").Asc())
	if f.UserID != nil {
		ds = ds.Where(goqu.C("user_id").Eq(*f.UserID))
	}
	if f.Active != nil {
		if *f.Active {
			ds = ds.Where(goqu.C("actual_return_date").IsNull())
		} else {
			ds = ds.Where(goqu.C("actual_return_date").IsNotNull())
		}
	}

	rentals := make([]domain.Rental, 0)
	err := selectAll(ctx, m.db, &rentals, paged(ds, f.Page))
	return rentals, err
}

func (m *MySQLAdapter) ListOverdueRentals(ctx context.Context, today time.Time) ([]domain.Rental, error) {
	ds := dialect.From("rentals").Select(rentalColumns...).
		Where(
			goqu.C("actual_return_date").IsNull(),
			goqu.C("return_date").Lt(domain.Date(today)),
		).
		Order(goqu.C("id").Asc())

	rentals := make([]domain.Rental, 0)
	err := selectAll(ctx, m.db, &rentals, ds)
	return rentals, err
}

func (m *MySQLAdapter) GetPaymentBySession(ctx context.Context, sessionID string) (*domain.Payment, error) {
	return getPayment(ctx, m.db, goqu.C("session_id").Eq(sessionID), false)
}

func (m *MySQLAdapter) ListPayments(ctx context.Context, f domain.PaymentFilter) ([]domain.Payment, error) {
	ds := dialect.From("payments").Select(paymentColumns...).Order(goqu.C("id").Asc())
	if f.UserID != nil {
		rentalsOfUser := dialect.From("rentals").Select("id").Where(goqu.C("user_id").Eq(*f.UserID))
		ds = ds.Where(goqu.C("rental_id").In(rentalsOfUser))
	}

	payments := make([]domain.Payment, 0)
	err := selectAll(ctx, m.db, &payments, paged(ds, f.Page))
	return payments, err
}

type mysqlTx struct {
	tx *sqlx.Tx
}

func (t *mysqlTx) GetCarForUpdate(ctx context.Context, id int64) (*domain.Car, error) {
	var car domain.Car
	ds := dialect.From("cars").Select(carColumns...).Where(goqu.C("id").Eq(id)).ForUpdate(exp.Wait)
	found, err := getOne(ctx, t.tx, &car, ds)
	if err != nil || !found {
		return nil, err
	}
	return &car, nil
}

func (t *mysqlTx) GetCar(ctx context.Context, id int64) (*domain.Car, error) {
	var car domain.Car
	found, err := getOne(ctx, t.tx, &car, dialect.From("cars").Select(carColumns...).Where(goqu.C("id").Eq(id)))
	if err != nil || !found {
		return nil, err
	}
	return &car, nil
}

func (t *mysqlTx) AdjustInventory(ctx context.Context, carID int64, delta int) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE cars
		SET inventory = inventory + ?, updated_at = NOW(6)
		WHERE id = ? AND inventory + ? >= 0`,
		delta, carID, delta,
	)
	if err != nil {
		return false, fmt.Errorf("update inventory: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (t *mysqlTx) UpdateCar(ctx context.Context, car domain.Car) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE cars
		SET brand = ?, model = ?, type = ?, inventory = ?, daily_fee = ?, updated_at = NOW(6)
		WHERE id = ?`,
		car.Brand, car.Model, car.Type, car.Inventory, car.DailyFee, car.ID,
	)
	if err != nil {
		return fmt.Errorf("update car: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		if err := t.tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM cars WHERE id = ?`, car.ID); err != nil {
			return fmt.Errorf("check car: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("car %d: %w", car.ID, domain.ErrNotFound)
		}
	}
	return nil
}

func (t *mysqlTx) GetRentalForUpdate(ctx context.Context, id int64) (*domain.Rental, error) {
	return getRental(ctx, t.tx, id, true)
}

func (t *mysqlTx) GetRental(ctx context.Context, id int64) (*domain.Rental, error) {
	return getRental(ctx, t.tx, id, false)
}

func (t *mysqlTx) InsertRental(ctx context.Context, r *domain.Rental) error {
	query, args, err := dialect.Insert("rentals").Prepared(true).Rows(goqu.Record{
		"car_id":             r.CarID,
		"user_id":            r.UserID,
		"rental_date":        r.RentalDate,
		"return_date":        r.ReturnDate,
		"actual_return_date": r.ActualReturnDate,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert rental: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if isMySQLError(err, mysqlErrNoReferencedRow) {
		return fmt.Errorf("car %d: %w", r.CarID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert rental: %w", err)
	}
	if r.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("rental id: %w", err)
	}
	return nil
}

func (t *mysqlTx) MarkRentalReturned(ctx context.Context, id int64, date time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE rentals SET actual_return_date = ?
		WHERE id = ? AND actual_return_date IS NULL`,
		domain.Date(date), id,
	)
	if err != nil {
		return false, fmt.Errorf("update rental: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (t *mysqlTx) FindPaymentForUpdate(ctx context.Context, rentalID int64, pt domain.PaymentType) (*domain.Payment, error) {
	return getPayment(ctx, t.tx, goqu.Ex{"rental_id": rentalID, "type": pt}, true)
}

func (t *mysqlTx) GetPaymentBySessionForUpdate(ctx context.Context, sessionID string) (*domain.Payment, error) {
	return getPayment(ctx, t.tx, goqu.C("session_id").Eq(sessionID), true)
}

func (t *mysqlTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	now := time.Now().UTC()
	query, args, err := dialect.Insert("payments").Prepared(true).Rows(goqu.Record{
		"rental_id":     p.RentalID,
		"type":          p.Type,
		"status":        p.Status,
		"amount_to_pay": p.AmountToPay,
		"created_at":    now,
		"updated_at":    now,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert payment: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if isMySQLError(err, mysqlErrDuplicateEntry) {
		return port.ErrDuplicatePayment
	}
	if isMySQLError(err, mysqlErrNoReferencedRow) {
		return fmt.Errorf("rental %d: %w", p.RentalID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if p.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("payment id: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (t *mysqlTx) SetPaymentSession(ctx context.Context, id int64, sessionID, sessionURL string) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE payments SET session_id = ?, session_url = ?, updated_at = NOW(6)
		WHERE id = ?`,
		sessionID, sessionURL, id,
	)
	if err != nil {
		return fmt.Errorf("update payment session: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("payment %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (t *mysqlTx) MarkPaymentPaid(ctx context.Context, id int64) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE payments SET status = ?, updated_at = NOW(6)
		WHERE id = ? AND status = ?`,
		domain.PaymentStatusPaid, id, domain.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("update payment status: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func getRental(ctx context.Context, q sqlx.QueryerContext, id int64, forUpdate bool) (*domain.Rental, error) {
	ds := dialect.From("rentals").Select(rentalColumns...).Where(goqu.C("id").Eq(id))
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}

	var r domain.Rental
	found, err := getOne(ctx, q, &r, ds)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, where exp.Expression, forUpdate bool) (*domain.Payment, error) {
	ds := dialect.From("payments").Select(paymentColumns...).Where(where)
	if forUpdate {
		ds = ds.ForUpdate(exp.Wait)
	}

	var p domain.Payment
	found, err := getOne(ctx, q, &p, ds)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

func paged(ds *goqu.SelectDataset, page domain.Page) *goqu.SelectDataset {
	return ds.Limit(uint(page.Limit())).Offset(uint(page.Offset()))
}

func getOne(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) (bool, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	err = sqlx.GetContext(ctx, q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	return true, nil
}

func selectAll(ctx context.Context, q sqlx.QueryerContext, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if err := sqlx.SelectContext(ctx, q, dest, query, args...); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
