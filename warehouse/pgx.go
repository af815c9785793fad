package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PgxDialer opens Postgres wire-protocol connections (Postgres, Redshift).
type PgxDialer struct {
	config *pgx.ConnConfig
}

// NewPgxDialer parses cfg into a pgx connection config.
func NewPgxDialer(cfg Config) (*PgxDialer, error) {
	pc, err := pgx.ParseConfig(cfg.URL().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	pc.ConnectTimeout = cfg.ConnectTimeout
	if cfg.ApplicationName != "" {
		pc.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if cfg.Driver == DriverRedshift {
		// Avoid server-side prepared statements on Redshift.
		pc.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	return &PgxDialer{config: pc}, nil
}

// Dial opens one physical connection.
func (d *PgxDialer) Dial(ctx context.Context) (Conn, error) {
	c, err := pgx.ConnectConfig(ctx, d.config.Copy())
	if err != nil {
		return nil, err
	}
	return &pgxConn{c: c}, nil
}

type pgxConn struct {
	c *pgx.Conn
}

func (p *pgxConn) Ping(ctx context.Context) error {
	var n int
	if err := p.c.QueryRow(ctx, pingQuery).Scan(&n); err != nil {
		return fmt.Errorf("warehouse: ping: %w", err)
	}
	return nil
}

func (p *pgxConn) Tables(ctx context.Context, schema string) ([]string, error) {
	rows, err := p.c.Query(ctx, tablesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("warehouse: list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("warehouse: list tables: %w", err)
	}
	return tables, nil
}

func (p *pgxConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.c.Close(ctx)
}

var _ Dialer = (*PgxDialer)(nil)
