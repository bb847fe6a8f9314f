package sqlutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind(t *testing.T) {
	q := "UPDATE user_elo SET elo = $1 WHERE user_id = $2"
	assert.Equal(t, q, Rebind(DriverPostgres, q))
	assert.Equal(t, "UPDATE user_elo SET elo = ?1 WHERE user_id = ?2", Rebind(DriverSQLite, q))
}

func TestConverters(t *testing.T) {
	assert.False(t, ToSqlString("").Valid)
	assert.Equal(t, "w", FromSqlString(ToSqlString("w"), ""))
	assert.Equal(t, "none", FromSqlString(sql.NullString{}, "none"))

	lvl := 3
	assert.Equal(t, &lvl, FromSqlInt32(ToSqlInt32(&lvl)))
	assert.Nil(t, FromSqlInt32(ToSqlInt32(nil)))
	assert.Nil(t, FromSqlTime(sql.NullTime{}))
}
