package mysql

import (
	"context"
	"errors"
	"testing"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staretl/internal/etlerr"
	"staretl/internal/schema"
	"staretl/internal/storage"
	"staretl/internal/storage/sqlgen"
)

func TestMySQLRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "mysql", DSN: "u:p@tcp(db:3306)/dw", BatchSize: 7})
	require.NoError(t, err)
	assert.Equal(t, "u:p@tcp(db:3306)/dw", gotCfg.DSN)
	assert.Equal(t, 7, gotCfg.BatchSize)
	repo.Close()
	assert.True(t, closed)
}

func TestNewRepository_BadDSNIsConfiguration(t *testing.T) {
	t.Parallel()
	_, _, err := NewRepository(context.Background(), Config{DSN: "not a dsn"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, etlerr.ErrConfiguration), "got %v", err)
}

func TestDialect_Statements(t *testing.T) {
	t.Parallel()
	d := Dialect{}
	p := storage.UpsertPlan{
		Table:      "dim_users",
		Staging:    "stg_dim_users_ab",
		Columns:    []string{"user_id", "firstname"},
		PrimaryKey: "user_id",
		ContentKey: []string{"firstname"},
	}

	assert.Equal(t,
		"CREATE TEMPORARY TABLE `stg_dim_users_ab` (`__rownum` BIGINT) SELECT `user_id`, `firstname` FROM `dim_users` WHERE 1 = 0",
		d.CreateStaging(p.Staging, p.Table, p.Columns)[0])
	assert.Contains(t, sqlgen.ContentMatchDelete(d, p), "tgt.`firstname` <=> `stg_dim_users_ab`.`firstname`")
	assert.Empty(t, sqlgen.StagedKeyDedupDelete(d, p), "temporary tables cannot be self-joined")

	ins := sqlgen.InsertNew(d, p)
	assert.Contains(t, ins, "ORDER BY src.`__rownum` ON DUPLICATE KEY UPDATE `dim_users`.`user_id` = `dim_users`.`user_id`")
	assert.Equal(t, "DROP TEMPORARY TABLE IF EXISTS `stg_dim_users_ab`", d.DropStaging(p.Staging))
}

func TestDialect_CreateTableWithForeignKeys(t *testing.T) {
	t.Parallel()
	reg := schema.StarSchema()
	items, ok := reg.Table(schema.FactSalesItems)
	require.True(t, ok)

	stmt, err := Dialect{}.CreateTable(items)
	require.NoError(t, err)
	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS `fact_sales_items`")
	assert.Contains(t, stmt, "`item_id` VARCHAR(64) NOT NULL")
	assert.Contains(t, stmt, "CONSTRAINT `fk_items_sales` FOREIGN KEY (`sale_id`) REFERENCES `fact_sales` (`sale_id`)")
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unknown column", &mysqldrv.MySQLError{Number: errBadField, Message: "Unknown column 'x'"}, etlerr.ErrSchemaMismatch},
		{"missing table", &mysqldrv.MySQLError{Number: errNoSuchTable, Message: "Table 'dw.t' doesn't exist"}, etlerr.ErrSchemaMismatch},
		{"bad conn", mysqldrv.ErrInvalidConn, etlerr.ErrConnectivity},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, errors.Is(classify("t", "upsert", tc.err), tc.want))
		})
	}

	other := classify("t", "upsert", &mysqldrv.MySQLError{Number: 1213, Message: "Deadlock"})
	assert.False(t, errors.Is(other, etlerr.ErrSchemaMismatch))
	assert.Contains(t, other.Error(), "Deadlock")
}
