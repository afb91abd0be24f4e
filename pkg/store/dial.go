package store

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported values for ConnConfig.Driver.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// ConnConfig locates the data store. URL, when set, is used verbatim as the
// driver DSN; otherwise the DSN is built from the discrete fields.
type ConnConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	URL          string
	MaxOpenConns int
	DialTimeout  time.Duration
}

// Dialer opens and verifies one connection to the data store.
type Dialer func(ctx context.Context) (*gorm.DB, error)

// GormDialer returns a Dialer for cfg.
func GormDialer(cfg ConnConfig) (Dialer, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	return func(ctx context.Context) (*gorm.DB, error) {
		gormLog := gormlogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		)
		db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, DisableAutomaticPing: true})
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen)
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("ping db: %w", err)
		}
		return db, nil
	}, nil
}

func newDialector(cfg ConnConfig) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMySQL:
		dsn := strings.TrimSpace(cfg.URL)
		if dsn == "" {
			dsn = MySQLDSN(cfg)
		}
		// Skip the version query so an unreachable server fails at ping time.
		return gormmysql.New(gormmysql.Config{DSN: dsn, SkipInitializeWithVersion: true}), nil
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.URL)
		if dsn == "" {
			dsn = PostgresDSN(cfg)
		}
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// MySQLDSN builds a go-sql-driver DSN. clientFoundRows makes UPDATE report
// matched rows, so rewriting identical values is not mistaken for a miss.
func MySQLDSN(cfg ConnConfig) string {
	port := cfg.Port
	if port <= 0 {
		port = 3306
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.ClientFoundRows = true
	if cfg.DialTimeout > 0 {
		mc.Timeout = cfg.DialTimeout
	}
	return mc.FormatDSN()
}

// PostgresDSN builds a libpq keyword/value DSN.
func PostgresDSN(cfg ConnConfig) string {
	port := cfg.Port
	if port <= 0 {
		port = 5432
	}
	parts := []string{
		"host=" + quoteDSNValue(cfg.Host),
		"port=" + strconv.Itoa(port),
		"user=" + quoteDSNValue(cfg.User),
		"password=" + quoteDSNValue(cfg.Password),
		"dbname=" + quoteDSNValue(cfg.Database),
		"sslmode=disable",
	}
	if cfg.DialTimeout > 0 {
		secs := int(cfg.DialTimeout.Seconds())
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, "connect_timeout="+strconv.Itoa(secs))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
