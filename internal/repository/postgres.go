// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/dailyledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке зарегистрировать уже занятый адрес почты.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если учётная запись не найдена.
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileNotFound возвращается, если профиль пользователя ещё не создан.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrUnknownTable возвращается при обращении к неизвестной таблице записей.
	ErrUnknownTable = errors.New("unknown table")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
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

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type userMetadata struct {
	Username string `json:"username"`
	Section  string `json:"section"`
}

// CreateAccount создаёт учётную запись. Профиль создаётся триггером БД из метаданных.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a *model.Account) error {
	meta, err := json.Marshal(userMetadata{Username: a.Username, Section: string(a.Section)})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO auth_users (id, email, password_hash, raw_user_meta_data, confirmed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		a.ID, a.Email, a.PasswordHash, meta, a.ConfirmedAt,
	).Scan(&a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, a.Email)
		}
		return fmt.Errorf("create account: %w", err)
	}

	return nil
}

// GetAccountByEmail возвращает учётную запись по адресу почты.
func (r *PostgresRepository) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, raw_user_meta_data, confirmed_at, created_at
		 FROM auth_users WHERE email = $1`,
		email,
	)

	var (
		a    model.Account
		meta []byte
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &meta, &a.ConfirmedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	var m userMetadata
	if err := json.Unmarshal(meta, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	a.Username = m.Username
	a.Section = model.Section(m.Section)

	return &a, nil
}

// ConfirmAccount отмечает адрес почты учётной записи подтверждённым.
func (r *PostgresRepository) ConfirmAccount(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE auth_users SET confirmed_at = COALESCE(confirmed_at, now()) WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("confirm account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteAccount удаляет учётную запись. Профиль удаляется каскадно.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM auth_users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetProfile возвращает профиль пользователя по идентификатору учётной записи.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	var (
		u       model.User
		section string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, username, section FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &section)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	u.Section = model.Section(section)

	return &u, nil
}

// InsertRecord добавляет запись в таблицу, соответствующую её виду.
func (r *PostgresRepository) InsertRecord(ctx context.Context, rec model.Record) error {
	var err error

	switch v := rec.(type) {
	case model.DailyRecord:
		_, err = r.pool.Exec(ctx,
			`INSERT INTO daily_data (user_id, data_type, date, data) VALUES ($1, $2, $3, $4)`,
			v.Owner, string(v.DataType), v.Date.Time, []byte(v.Payload),
		)
	case model.OutletRecord:
		_, err = r.pool.Exec(ctx,
			`INSERT INTO outlet_data (user_id, outlet_name, date, opening_stock, closing_stock, cash_payment, photo_url)
			 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`,
			v.Owner, v.OutletName, v.Date.Time, v.OpeningStock, v.ClosingStock, v.CashPayment, v.PhotoURL,
		)
	case model.DistributionRecord:
		_, err = r.pool.Exec(ctx,
			`INSERT INTO distribution_data (user_id, distribution_center, date, cash_payment, photo_url)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			v.Owner, v.DistributionCenter, v.Date.Time, v.CashPayment, v.PhotoURL,
		)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownTable, rec)
	}

	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.Table(), err)
	}
	return nil
}

// ListRecords возвращает записи пользователя из таблицы, новые первыми.
// limit <= 0 означает отсутствие ограничения.
func (r *PostgresRepository) ListRecords(ctx context.Context, table model.Table, owner string, limit int) ([]model.Record, error) {
	var query string
	switch table {
	case model.TableDaily:
		query = `SELECT id, user_id, data_type, date, data, created_at FROM daily_data`
	case model.TableOutlet:
		query = `SELECT id, user_id, outlet_name, date, opening_stock, closing_stock, cash_payment,
		                COALESCE(photo_url, ''), created_at FROM outlet_data`
	case model.TableDistribution:
		query = `SELECT id, user_id, distribution_center, date, cash_payment,
		                COALESCE(photo_url, ''), created_at FROM distribution_data`
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	query += ` WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{owner}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var res []model.Record
	for rows.Next() {
		rec, err := scanRecord(table, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		res = append(res, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func scanRecord(table model.Table, rows pgx.Rows) (model.Record, error) {
	var date time.Time

	switch table {
	case model.TableDaily:
		var (
			rec      model.DailyRecord
			dataType string
			data     []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Owner, &dataType, &date, &data, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.DataType = model.DailyType(dataType)
		rec.Date = model.NewDate(date)
		rec.Payload = data
		return rec, nil
	case model.TableOutlet:
		var rec model.OutletRecord
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.OutletName, &date,
			&rec.OpeningStock, &rec.ClosingStock, &rec.CashPayment, &rec.PhotoURL, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Date = model.NewDate(date)
		return rec, nil
	default:
		var rec model.DistributionRecord
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.DistributionCenter, &date,
			&rec.CashPayment, &rec.PhotoURL, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Date = model.NewDate(date)
		return rec, nil
	}
}
