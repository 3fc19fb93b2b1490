package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Oerlinker/BackendAISi2/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		User:     "risk",
		Password: "secret",
		Name:     "academic_risk",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5433 user=risk password=secret dbname=academic_risk sslmode=disable", dsn)
}
