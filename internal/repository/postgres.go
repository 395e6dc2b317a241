// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/zaptasks/zaptasks-api/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const serviceDateLayout = "2006-01-02"

var (
	// ErrCustomerLinkNotFound возвращается, если пользователь ещё не связан с платёжным клиентом.
	ErrCustomerLinkNotFound = errors.New("customer link not found")
	// ErrBookingNotFound возвращается, если счёт не относится ни к одному бронированию.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrTaskNotFound возвращается, если задание не найдено.
	ErrTaskNotFound = errors.New("task not found")
	// ErrApplicationExists возвращается при повторной анкете исполнителя.
	ErrApplicationExists = errors.New("zapper application already exists")
)

var retryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и применяет миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// withRetry повторяет fn при конфликтах сериализации, дедлоках и обрывах соединения.
func withRetry(ctx context.Context, delays []time.Duration, fn func() error) error {
	var err error
	for i := 0; ; i++ {
		err = fn()
		if err == nil || !isRetryable(err) || i >= len(delays) {
			return err
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// GetCustomerLink возвращает связь пользователя с платёжным клиентом.
func (r *PostgresRepository) GetCustomerLink(ctx context.Context, userID string) (*model.CustomerLink, error) {
	var l model.CustomerLink
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, email, stripe_customer_id, created_at FROM customers WHERE user_id = $1`,
		userID,
	).Scan(&l.UserID, &l.Email, &l.CustomerID, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerLinkNotFound
		}
		return nil, fmt.Errorf("get customer link: %w", err)
	}
	return &l, nil
}

// SaveCustomerLink создаёт или обновляет связь пользователя с платёжным клиентом.
func (r *PostgresRepository) SaveCustomerLink(ctx context.Context, link model.CustomerLink) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO customers (user_id, email, stripe_customer_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET email = EXCLUDED.email, stripe_customer_id = EXCLUDED.stripe_customer_id`,
		link.UserID, link.Email, link.CustomerID,
	)
	if err != nil {
		return fmt.Errorf("save customer link: %w", err)
	}
	return nil
}

// CreateBooking сохраняет бронирование с парой выставленных счетов.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b *model.Booking) (int64, error) {
	services, err := json.Marshal(b.Draft.Services)
	if err != nil {
		return 0, fmt.Errorf("encode services: %w", err)
	}

	serviceDate, err := time.Parse(serviceDateLayout, b.Draft.Date)
	if err != nil {
		return 0, fmt.Errorf("parse service date: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO bookings (
			user_id, customer_id, deposit_invoice_id, remainder_invoice_id,
			deposit_status, remainder_status, services, service_date, service_time,
			hours, people, description, address, bring_equipment,
			total_cents, deposit_cents, remainder_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		b.UserID, b.CustomerID, b.DepositInvoiceID, b.RemainderInvoiceID,
		string(b.DepositStatus), string(b.RemainderStatus), services, serviceDate, b.Draft.Time,
		b.Draft.Hours, b.Draft.People, b.Draft.Description, b.Draft.Address, b.Draft.BringEquipment,
		b.Split.TotalCents, b.Split.DepositCents, b.Split.RemainderCents,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert booking: %w", err)
	}
	return id, nil
}

const bookingColumns = `id, user_id, customer_id, deposit_invoice_id, remainder_invoice_id,
	deposit_status, remainder_status, services, service_date, service_time,
	hours, people, description, address, bring_equipment,
	total_cents, deposit_cents, remainder_cents, created_at`

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b               model.Booking
		depositStatus   string
		remainderStatus string
		services        []byte
		serviceDate     time.Time
	)

	err := row.Scan(
		&b.ID, &b.UserID, &b.CustomerID, &b.DepositInvoiceID, &b.RemainderInvoiceID,
		&depositStatus, &remainderStatus, &services, &serviceDate, &b.Draft.Time,
		&b.Draft.Hours, &b.Draft.People, &b.Draft.Description, &b.Draft.Address, &b.Draft.BringEquipment,
		&b.Split.TotalCents, &b.Split.DepositCents, &b.Split.RemainderCents, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(services, &b.Draft.Services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}

	b.DepositStatus = model.InvoiceStatus(depositStatus)
	b.RemainderStatus = model.InvoiceStatus(remainderStatus)
	b.Draft.Date = serviceDate.Format(serviceDateLayout)

	return &b, nil
}

// GetBookingByInvoice возвращает бронирование, к которому относится счёт.
func (r *PostgresRepository) GetBookingByInvoice(ctx context.Context, invoiceID string) (*model.Booking, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE deposit_invoice_id = $1 OR remainder_invoice_id = $1`,
		invoiceID,
	)

	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListPendingBookings возвращает бронирования с id больше afterID, у которых есть неоплаченный и неаннулированный счёт.
func (r *PostgresRepository) ListPendingBookings(ctx context.Context, afterID int64, limit int) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE id > $1 AND (deposit_status IN ($2, $3) OR remainder_status IN ($2, $3))
		 ORDER BY id
		 LIMIT $4`,
		afterID, string(model.InvoiceStatusDraft), string(model.InvoiceStatusOpen), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending bookings: %w", err)
	}
	defer rows.Close()

	var res []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		res = append(res, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateInvoiceStatus записывает статус счёта в соответствующую часть бронирования.
func (r *PostgresRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID string, status model.InvoiceStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET
			deposit_status = CASE WHEN deposit_invoice_id = $1 THEN $2 ELSE deposit_status END,
			remainder_status = CASE WHEN remainder_invoice_id = $1 THEN $2 ELSE remainder_status END,
			updated_at = now()
		 WHERE deposit_invoice_id = $1 OR remainder_invoice_id = $1`,
		invoiceID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

const taskColumns = `id, client_id, provider_id, title, description, category,
	image_url, price_cents, location, scheduled_at, created_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t          model.Task
		priceCents int64
	)

	err := row.Scan(
		&t.ID, &t.ClientID, &t.ProviderID, &t.Title, &t.Description, &t.Category,
		&t.ImageURL, &priceCents, &t.Location, &t.ScheduledAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Price = float64(priceCents) / 100
	return &t, nil
}

// ListTasks возвращает задания, при непустой категории только из неё.
func (r *PostgresRepository) ListTasks(ctx context.Context, category string) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE $1 = '' OR category = $1
		 ORDER BY created_at DESC`,
		category,
	)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	res := make([]model.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetTask возвращает задание по идентификатору.
func (r *PostgresRepository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpsertReview создаёт отзыв участника о задании или заменяет его оценку и комментарий.
func (r *PostgresRepository) UpsertReview(ctx context.Context, review model.Review) (*model.Review, error) {
	res := review
	err := withRetry(ctx, retryDelays, func() error {
		return r.pool.QueryRow(ctx,
			`INSERT INTO reviews (id, task_id, reviewer_id, reviewee_id, rating, comment)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (task_id, reviewer_id) DO UPDATE
			 SET reviewee_id = EXCLUDED.reviewee_id,
			     rating = EXCLUDED.rating,
			     comment = EXCLUDED.comment,
			     updated_at = now()
			 RETURNING id, created_at, updated_at`,
			uuid.NewString(), review.TaskID, review.ReviewerID, review.RevieweeID, review.Rating, review.Comment,
		).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert review: %w", err)
	}
	return &res, nil
}

// CreateZapperApplication сохраняет анкету исполнителя. Одна анкета на пользователя.
func (r *PostgresRepository) CreateZapperApplication(ctx context.Context, app *model.ZapperApplication) (int64, error) {
	skills, err := json.Marshal(app.Skills)
	if err != nil {
		return 0, fmt.Errorf("encode skills: %w", err)
	}

	var id int64
	err = r.pool.QueryRow(ctx,
		`INSERT INTO zapper_applications (
			user_id, first_name, last_name, email, phone, date_of_birth,
			address, city, state, zip, ssn_last4, skills
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		app.UserID, app.FirstName, app.LastName, app.Email, app.Phone, app.DateOfBirth,
		app.Address, app.City, app.State, app.Zip, app.SSNLast4, skills,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrApplicationExists, app.UserID)
		}
		return 0, fmt.Errorf("insert zapper application: %w", err)
	}
	return id, nil
}
