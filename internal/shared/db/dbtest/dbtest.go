// Package dbtest abre bancos para testes de repositório: SQLite em memória e Postgres em DryRun.
package dbtest

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open cria um banco isolado por teste e migra os models informados.
// Uma única conexão: transações concorrentes serializam como no Postgres com FOR UPDATE.
func Open(t testing.TB, models ...any) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(models...))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

// DryRunPostgres devolve um *gorm.DB com o dialeto Postgres que só monta o SQL, sem
// conectar. O SQLite descarta FOR UPDATE/SHARE, então os locks são conferidos aqui.
// queries lista os SELECTs gerados até o momento, com os parâmetros já inline.
func DryRunPostgres(t testing.TB) (gdb *gorm.DB, queries func() []string) {
	t.Helper()

	// lib/pq só conecta no primeiro uso, que nunca acontece em DryRun
	sqlDB, err := sql.Open("postgres", "postgres://dryrun@127.0.0.1:1/dryrun?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               gormlogger.Discard,
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	err = gdb.Callback().Query().After("gorm:query").Register("dbtest:capture", func(db *gorm.DB) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, db.Dialector.Explain(db.Statement.SQL.String(), db.Statement.Vars...))
	})
	require.NoError(t, err)

	return gdb, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}
}
