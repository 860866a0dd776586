// Package postgres reads questionnaire responses from a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/spigell/knot-matcher/internal/catalog"
	"github.com/spigell/knot-matcher/internal/logger"
	"github.com/spigell/knot-matcher/internal/questionnaire"
)

const DefaultTable = "questionnaire_responses"

var errBadAnswers = errors.New("answers column is not a JSON object")

type Config struct {
	DSN            string        `mapstructure:"dsn" json:"-"`
	Table          string        `mapstructure:"table"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	MaxConns       int32         `mapstructure:"max-conns"`
}

// DB is a pgx pool exposed through database/sql.
type DB struct {
	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

func Connect(ctx context.Context, cfg Config) (*DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is not configured")
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}

	p, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := p.Ping(pingCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &DB{pool: p, sqlDB: stdlib.OpenDBFromPool(p)}, nil
}

func (d *DB) SQLDB() *sql.DB {
	if d == nil {
		return nil
	}
	return d.sqlDB
}

func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	if d.sqlDB != nil {
		_ = d.sqlDB.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}

// Store is a store.Accessor backed by a responses table.
type Store struct {
	db      *sql.DB
	query   string
	catalog *catalog.Catalog
	logger  *zap.Logger
}

func New(db *sql.DB, table string, cat *catalog.Catalog, l *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if cat == nil {
		return nil, errors.New("catalog is required")
	}

	table = strings.TrimSpace(table)
	if table == "" {
		table = DefaultTable
	}

	return &Store{
		db:      db,
		query:   selectQuery(table),
		catalog: cat,
		logger:  logger.WithFields(l).With(zap.String("table", table)),
	}, nil
}

func selectQuery(table string) string {
	ident := pgx.Identifier(strings.Split(table, "."))
	return "SELECT id, user_id, lead_id, name, email, phone, answers, is_complete, created_at, updated_at, completed_at FROM " +
		ident.Sanitize() + " ORDER BY created_at, id"
}

// Responses implements store.Accessor. Rows that cannot be typed against the
// catalog are skipped.
func (s *Store) Responses(ctx context.Context) ([]questionnaire.Response, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	var (
		responses = make([]questionnaire.Response, 0)
		total     int
	)
	for rows.Next() {
		total++

		rec, err := scanRecord(rows)
		if err != nil && !errors.Is(err, errBadAnswers) {
			return nil, fmt.Errorf("scanning response row: %w", err)
		}

		var r questionnaire.Response
		if err == nil {
			r, err = rec.Response(s.catalog)
		}
		if err != nil {
			s.logger.Warn("skipping response row",
				zap.String(logger.FieldResponseID, rec.ID),
				zap.Error(err),
			)
			continue
		}
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading response rows: %w", err)
	}

	s.logger.Debug("responses loaded",
		zap.Int("rows", total),
		zap.Int("responses", len(responses)),
	)

	return responses, nil
}

func scanRecord(rows *sql.Rows) (questionnaire.Record, error) {
	var (
		rec                              questionnaire.Record
		userID, leadID, name, email, phn sql.NullString
		answers                          []byte
		completedAt                      sql.NullTime
	)

	if err := rows.Scan(
		&rec.ID,
		&userID,
		&leadID,
		&name,
		&email,
		&phn,
		&answers,
		&rec.IsComplete,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&completedAt,
	); err != nil {
		return questionnaire.Record{}, err
	}

	rec.UserID = userID.String
	rec.LeadID = leadID.String
	rec.Name = name.String
	rec.Email = email.String
	rec.Phone = phn.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &rec.Answers); err != nil {
			return rec, fmt.Errorf("%w: %w", errBadAnswers, err)
		}
	}

	return rec, nil
}
