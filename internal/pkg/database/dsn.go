package database

import (
	"fmt"

	"github.com/ManuelReschke/ReelPass/internal/pkg/env"
)

// Params are the DB_* connection settings shared by the server and the
// migration tool.
type Params struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ParamsFromEnv reads DB_* with the default port of the driver.
func ParamsFromEnv(driver string) Params {
	port := "3306"
	if driver == "postgres" {
		port = "5432"
	}
	return Params{
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", port),
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Name:     env.GetEnv("DB_NAME", ""),
		SSLMode:  env.GetEnv("DB_SSLMODE", "disable"),
	}
}

// MySQLDSN is the go-sql-driver form, e.g.
// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC".
func (p Params) MySQLDSN() string {
	return p.mysqlDSN("charset=utf8mb4&parseTime=True&loc=UTC")
}

func (p Params) mysqlDSN(query string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s", p.User, p.Password, p.Host, p.Port, p.Name, query)
}

func (p Params) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		p.Host, p.User, p.Password, p.Name, p.Port, p.SSLMode)
}

// MigrationURL returns the golang-migrate database URL. The SQL files under
// migrations/ are written for MySQL; postgres deployments rely on
// AutoMigrate at start-up.
func (p Params) MigrationURL(driver string) (string, error) {
	if driver != "mysql" {
		return "", fmt.Errorf("sql migrations support DB_DRIVER=mysql only, got %q", driver)
	}
	return "mysql://" + p.mysqlDSN("multiStatements=true"), nil
}

// Redacted describes the target without the password, for logs.
func (p Params) Redacted() string {
	return fmt.Sprintf("%s@%s:%s/%s", p.User, p.Host, p.Port, p.Name)
}
