package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netresearch/datamon/core"
)

var checkoutNow = time.Date(2024, 3, 15, 8, 0, 0, 0, time.Local)

func testDatasources() map[string]*core.DatasourceConfig {
	return map[string]*core.DatasourceConfig{
		"shop":      {Name: "shop", Host: "db1", Port: 3306, User: "monitor", Database: "shop_db"},
		"warehouse": {Name: "warehouse", Host: "db2", Port: 3306, User: "monitor"},
	}
}

func validOpts() map[string]string {
	return map[string]string{
		"desc":           "daily order count",
		"period":         "day",
		"is_active":      "true",
		"alarm_im":       "alice, bob",
		"alarm_email":    "ops",
		"due_time":       "09:30",
		"datasources":    "shop",
		"sql":            "select count(*) from orders",
		"validator":      "result > 0",
		"retry_times":    "2",
		"retry_interval": "00:30",
	}
}

func TestCheckOut(t *testing.T) {
	job, alarmIM, alarmEmail, err := CheckOut("orders_daily", validOpts(), testDatasources(), checkoutNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob"}, alarmIM)
	assert.Equal(t, []string{"ops"}, alarmEmail)

	assert.Equal(t, "orders_daily", job.Name)
	assert.Equal(t, "day", job.Period)
	assert.True(t, job.IsActive)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local), job.DueTime)
	assert.Equal(t, []string{"select count(*) from orders"}, job.SQL)
	require.Len(t, job.Datasources, 1)
	assert.Equal(t, "shop", job.Datasources[0].Name)
	assert.Equal(t, 2, job.RetryTimes)
	assert.Equal(t, 30*time.Minute, job.RetryInterval)
}

func TestCheckOutMissingOption(t *testing.T) {
	opts := validOpts()
	delete(opts, "validator")

	_, alarmIM, _, err := CheckOut("orders_daily", opts, testDatasources(), checkoutNow)
	require.Error(t, err)
	assert.Equal(t, `option "validator" is required`, err.Error())
	// recipients survive the failure so the alert can still go out
	assert.Equal(t, []string{"alice", "bob"}, alarmIM)
}

func TestCheckOutBadEnums(t *testing.T) {
	opts := validOpts()
	opts["period"] = "fortnight"
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `option "period" should be in`)

	opts = validOpts()
	opts["is_active"] = "yes"
	_, _, _, err = CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `option "is_active" should be in`)
}

func TestCheckOutBadDueTime(t *testing.T) {
	opts := validOpts()
	opts["due_time"] = "sometime"
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	require.Error(t, err)
	assert.Equal(t, `due_time "sometime" can not be parsed`, err.Error())
}

func TestCheckOutBadRetrySettings(t *testing.T) {
	opts := validOpts()
	opts["retry_times"] = "-1"
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `option "retry_times" should be a non-negative integer`)

	opts = validOpts()
	opts["retry_interval"] = "30 minutes"
	_, _, _, err = CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `option "retry_interval" should be in format of "HH:MM[:SS]"`)
}

func TestCheckOutLengthInvariants(t *testing.T) {
	opts := validOpts()
	opts["datasources"] = "shop, warehouse"
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `"datasources" contains 2 elements but "sql" contains 1`)

	opts = validOpts()
	opts["database"] = "db1, db2"
	_, _, _, err = CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `"datasources" contains 1 elements but "database" contains 2`)
}

func TestCheckOutUnknownDatasource(t *testing.T) {
	opts := validOpts()
	opts["datasources"] = "nowhere"
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	require.Error(t, err)
	assert.Equal(t, `invalid datasource "nowhere", should be in ["shop" "warehouse"]`, err.Error())
}

func TestCheckOutDatabaseOverride(t *testing.T) {
	opts := validOpts()
	opts["datasources"] = "shop, warehouse"
	opts["database"] = "shop_backup, wh_db"
	opts["sql"] = "select 1 :: select 2"

	job, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	require.NoError(t, err)
	require.Len(t, job.Datasources, 2)
	assert.Equal(t, "shop_backup", job.Datasources[0].Database)
	assert.Equal(t, "wh_db", job.Datasources[1].Database)
	// the shared config is untouched
	assert.Equal(t, "shop_db", testDatasources()["shop"].Database)
	assert.Equal(t, []string{"select 1", "select 2"}, job.SQL)
}

func TestCheckOutBadValidator(t *testing.T) {
	opts := validOpts()
	opts["validator"] = "result >"
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `error in option "validator"`)

	// evaluation errors against a nil result are fine at config time
	opts = validOpts()
	opts["validator"] = "result[0] > result[1]"
	_, _, _, err = CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.NoError(t, err)
}

func TestCheckOutRendersPass1(t *testing.T) {
	opts := validOpts()
	opts["desc"] = "orders of {BASETIME | dt_add(day=-1) | dt_format('%Y-%m-%d')}"
	opts["sql"] = "select count(*) from orders where dt = '{DUETIME | dt_format('%Y%m%d')}'"

	job, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	require.NoError(t, err)
	assert.Equal(t, "orders of 2024-03-14", job.Desc)
	// DUETIME blocks survive pass 1 untouched
	assert.Equal(t, "select count(*) from orders where dt = '{DUETIME | dt_format('%Y%m%d')}'", job.SQL[0])
}

func TestCheckOutSQLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.sql")
	require.NoError(t, os.WriteFile(path,
		[]byte("select count(*) from orders where shop = '%(shop_name)s'\n"), 0o644))

	opts := validOpts()
	opts["sql"] = path
	opts["shop_name"] = "north"

	job, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	require.NoError(t, err)
	assert.Equal(t, "select count(*) from orders where shop = 'north'", job.SQL[0])
}

func TestCheckOutSQLFileMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.sql")
	opts := validOpts()
	opts["sql"] = missing

	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	require.Error(t, err)
	assert.Equal(t, `sql file not exists: "`+missing+`"`, err.Error())
}

func TestCheckOutSQLFileUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.sql")
	require.NoError(t, os.WriteFile(path, []byte("select '%(nope)s'"), 0o644))

	opts := validOpts()
	opts["sql"] = path
	_, _, _, err := CheckOut("j", opts, testDatasources(), checkoutNow)
	assert.ErrorContains(t, err, `references unknown option "nope"`)
}

func TestLooksLikePath(t *testing.T) {
	assert.True(t, looksLikePath("/opt/sql/orders.sql"))
	assert.True(t, looksLikePath("~/sql/orders.sql"))
	assert.True(t, looksLikePath("./orders.sql"))
	assert.True(t, looksLikePath("orders.HQL"))
	assert.False(t, looksLikePath("select 1"))
}
