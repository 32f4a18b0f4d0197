package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const driverName = "mysql"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// PeerConfig points one deployment at the other owners. Empty URLs mean
// the corresponding collaborator is wired in-process ("all" mode).
type PeerConfig struct {
	BookServiceURL string `yaml:"book_service_url"`
	UserServiceURL string `yaml:"user_service_url"`
	LoanServiceURL string `yaml:"loan_service_url"`
	TimeoutMS      int    `yaml:"timeout_ms"`
}

func (p PeerConfig) Timeout() time.Duration {
	if p.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

type Config struct {
	Version   string         `yaml:"version"`
	Mode      string         `yaml:"mode"`    // dev | release
	Service   string         `yaml:"service"` // book | user | loan | all
	Listen    string         `yaml:"listen"`
	JWTSecret string         `yaml:"jwt_secret"`
	DB        DatabaseConfig `yaml:"database"`
	Peers     PeerConfig     `yaml:"peers"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Service == "" {
		cfg.Service = "all"
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	return &cfg, nil
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}

	// Three services may share one MySQL instance in dev; keep the sum of
	// pools under max_connections.
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
