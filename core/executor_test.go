package core

import (
	"errors"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "gopkg.in/check.v1"

	"github.com/netresearch/datamon/table"
)

type ExecutorSuite struct{}

var _ = Suite(&ExecutorSuite{})

type stubPools struct {
	db  *sqlx.DB
	err error
}

func (p *stubPools) DB(ds *DatasourceConfig) (*sqlx.DB, error) {
	return p.db, p.err
}

func newMockExecutor(c *C) (*Executor, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	c.Assert(err, IsNil)
	return NewExecutor(&stubPools{db: sqlx.NewDb(db, "sqlmock")}, &memoryLogger{}), mock
}

func probeJob(stmt, validator string) *Job {
	return &Job{
		Name:        "probe",
		SQL:         []string{stmt},
		Datasources: []*DatasourceConfig{{Name: "shop", Charset: "utf8"}},
		Validator:   validator,
	}
}

func expectQuery(mock sqlmock.Sqlmock, stmt string) *sqlmock.ExpectedQuery {
	return mock.ExpectQuery(regexp.QuoteMeta(stmt))
}

func (s *ExecutorSuite) TestScalarResult(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select count(*) from orders").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(3)))

	ok, info, err := exec.Run(probeJob("select count(*) from orders", "result > 0"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(info, IsNil)
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}

func (s *ExecutorSuite) TestScalarAlarm(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select count(*) from orders").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(3)))

	ok, info, err := exec.Run(probeJob("select count(*) from orders", "result > 10"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
	c.Assert(info.Kind, Equals, KindDefault)

	// the unwrapped scalar itself is the alarm content
	c.Assert(info.Content, Equals, int64(3))
}

func (s *ExecutorSuite) TestTableResult(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select name, cnt from daily").
		WillReturnRows(sqlmock.NewRows([]string{"name", "cnt"}).
			AddRow("a", int64(3)).
			AddRow("b", int64(5)))

	ok, _, err := exec.Run(probeJob("select name, cnt from daily",
		"len(result) == 2 and result[0].cnt == 3 and result[1].cnt == 5"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
}

func (s *ExecutorSuite) TestColumnSanitize(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select count(*) from t group by day").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).
			AddRow(int64(1)).
			AddRow(int64(2)))

	// an expression column is not a valid name, it becomes col<i>
	ok, _, err := exec.Run(probeJob("select count(*) from t group by day",
		"result[0].col0 == 1 and result[1].col0 == 2"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
}

func (s *ExecutorSuite) TestNonReadStatement(c *C) {
	exec, mock := newMockExecutor(c)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("delete from stale_rows")).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	ok, _, err := exec.Run(probeJob("delete from stale_rows", "len(result) == 0"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(mock.ExpectationsWereMet(), IsNil)
}

func (s *ExecutorSuite) TestQueryError(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select 1").WillReturnError(errors.New("connection refused"))

	ok, _, err := exec.Run(probeJob("select 1", "result > 0"))
	c.Assert(ok, Equals, false)

	var probeErr *ProbeError
	c.Assert(errors.As(err, &probeErr), Equals, true)
	c.Assert(probeErr.Datasource, Equals, "shop")
}

func (s *ExecutorSuite) TestValidatorError(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select 1").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(int64(1)))

	ok, _, err := exec.Run(probeJob("select 1", "result + 'x'"))
	c.Assert(ok, Equals, false)

	var valErr *ValidatorError
	c.Assert(errors.As(err, &valErr), Equals, true)
	c.Assert(valErr.Expr, Equals, "result + 'x'")
}

func (s *ExecutorSuite) TestTupleVerdictAlarm(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select count(*) from t").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(3)))

	ok, info, err := exec.Run(probeJob("select count(*) from t",
		"(result > 10, ('claim', 'too few rows'))"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
	c.Assert(info.Kind, Equals, KindClaim)
	c.Assert(info.Content, Equals, "too few rows")
}

func (s *ExecutorSuite) TestTupleVerdictOK(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select count(*) from t").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(3)))

	ok, info, err := exec.Run(probeJob("select count(*) from t",
		"(result > 0, ('claim', 'too few rows'))"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(info, IsNil)
}

func (s *ExecutorSuite) TestMultiStatement(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select count(*) from master_t").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(7)))
	expectQuery(mock, "select count(*) from replica_t").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(int64(7)))

	job := &Job{
		Name: "consistency",
		SQL:  []string{"select count(*) from master_t", "select count(*) from replica_t"},
		Datasources: []*DatasourceConfig{
			{Name: "master", Charset: "utf8"},
			{Name: "replica", Charset: "utf8"},
		},
		Validator: "result[0] == result[1]",
	}
	ok, _, err := exec.Run(job)
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
}

func (s *ExecutorSuite) TestPoolError(c *C) {
	exec := NewExecutor(&stubPools{err: ErrRegistryClosed}, &memoryLogger{})
	ok, _, err := exec.Run(probeJob("select 1", "result > 0"))
	c.Assert(ok, Equals, false)

	var probeErr *ProbeError
	c.Assert(errors.As(err, &probeErr), Equals, true)
	c.Assert(errors.Is(err, ErrRegistryClosed), Equals, true)
}

func (s *ExecutorSuite) TestEmptyResultIsTable(c *C) {
	exec, mock := newMockExecutor(c)
	expectQuery(mock, "select id from t where id < 0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ok, info, err := exec.Run(probeJob("select id from t where id < 0", "len(result) > 0"))
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)

	// zero rows never unwrap, even with a single column
	_, isTable := info.Content.(*table.Table)
	c.Assert(isTable, Equals, true)
}

func (s *ExecutorSuite) TestDecodeValue(c *C) {
	c.Assert(decodeValue([]byte{0xe9}, charsetDecoder("latin1")), Equals, "é")
	c.Assert(decodeValue([]byte("plain"), charsetDecoder("utf8")), Equals, "plain")
	c.Assert(decodeValue(int64(5), nil), Equals, int64(5))
	c.Assert(charsetDecoder("gbk"), NotNil)
	c.Assert(charsetDecoder("gb18030"), NotNil)
	c.Assert(charsetDecoder("utf8"), IsNil)
}
