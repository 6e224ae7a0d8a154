package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/netresearch/datamon/expr"
	"github.com/netresearch/datamon/table"
)

// PoolProvider hands out the shared connection pool of one datasource.
type PoolProvider interface {
	DB(ds *DatasourceConfig) (*sqlx.DB, error)
}

// Executor runs one job's probe: every SQL statement against its datasource,
// results shaped for the validator, then the validator expression itself.
type Executor struct {
	Pools  PoolProvider
	Logger Logger
}

func NewExecutor(pools PoolProvider, logger Logger) *Executor {
	return &Executor{Pools: pools, Logger: logger}
}

var colNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Run implements Runner.
func (e *Executor) Run(job *Job) (bool, *AlarmInfo, error) {
	results := make([]any, 0, len(job.SQL))
	for i, stmt := range job.SQL {
		ds := job.Datasources[i]
		e.Logger.Debugf("job [%s] running sql #%d on datasource %q", job.Name, i+1, ds.Name)
		res, err := e.query(ds, stmt)
		if err != nil {
			return false, nil, &ProbeError{Datasource: ds.Name, Err: err}
		}
		results = append(results, res)
	}

	// a single-statement job feeds its one result directly to the validator
	var input any
	if len(results) == 1 {
		input = results[0]
	} else {
		input = expr.List(results)
	}

	ret, err := expr.Eval(job.Validator, expr.ValidatorEnv(input))
	if err != nil {
		return false, nil, &ValidatorError{Expr: job.Validator, Err: err}
	}

	// the validator returns either ok or a 2-tuple (ok, info)
	if t, isTuple := ret.(expr.Tuple); isTuple && len(t) == 2 {
		if expr.Truthy(t[0]) {
			return true, nil, nil
		}
		return false, NewAlarmInfo(t[1]), nil
	}
	if expr.Truthy(ret) {
		return true, nil, nil
	}
	return false, &AlarmInfo{Kind: KindDefault, Content: input}, nil
}

// query executes one statement and shapes the result. Statements other than
// SELECT/SHOW run inside a transaction that is committed afterwards and
// yield an empty result.
func (e *Executor) query(ds *DatasourceConfig, stmt string) (any, error) {
	pool, err := e.Pools.DB(ds)
	if err != nil {
		return nil, err
	}

	if !isReadQuery(stmt) {
		tx, err := pool.Beginx()
		if err != nil {
			return nil, fmt.Errorf("begin: %w", err)
		}
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return table.New(), nil
	}

	rows, err := pool.Queryx(stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return shapeRows(rows, charsetDecoder(ds.Charset))
}

func isReadQuery(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToUpper(fields[0])
	return first == "SELECT" || first == "SHOW"
}

// shapeRows turns a result set into the validator input value: a 1x1 result
// unwraps to a scalar, everything else becomes a table with sanitized column
// names.
func shapeRows(rows *sqlx.Rows, dec *encoding.Decoder) (any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	for i, name := range cols {
		if !colNameRe.MatchString(name) {
			cols[i] = fmt.Sprintf("col%d", i)
		}
	}

	t := table.New(cols...)
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = decodeValue(v, dec)
		}
		if err := t.Append(vals...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if t.NumRows() == 1 && len(cols) == 1 {
		return expr.Normalize(t.Rows[0][0]), nil
	}
	return t, nil
}

// decodeValue transcodes driver byte slices from legacy datasource charsets.
func decodeValue(v any, dec *encoding.Decoder) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if dec != nil {
		if s, err := dec.Bytes(b); err == nil {
			return string(s)
		}
	}
	return string(b)
}

func charsetDecoder(charset string) *encoding.Decoder {
	switch strings.ToLower(charset) {
	case "gbk", "gb2312":
		return simplifiedchinese.GBK.NewDecoder()
	case "gb18030":
		return simplifiedchinese.GB18030.NewDecoder()
	case "latin1":
		return charmap.ISO8859_1.NewDecoder()
	default:
		return nil
	}
}
