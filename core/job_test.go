package core

import (
	"time"

	. "gopkg.in/check.v1"

	"github.com/netresearch/datamon/expr"
)

type JobSuite struct{}

var _ = Suite(&JobSuite{})

func (s *JobSuite) TestClone(c *C) {
	due := time.Date(2024, 3, 15, 0, 15, 0, 0, time.Local)
	job := &Job{
		Name:     "heartbeat",
		Period:   "hour",
		DueTime:  due,
		SQL:      []string{"select 1"},
		AlarmIM:  []string{"alice"},
		IsActive: true,
	}

	clone := job.Clone("heartbeat_hour03", due.Add(3*time.Hour))
	c.Assert(clone.Name, Equals, "heartbeat_hour03")
	c.Assert(clone.DueTime, Equals, due.Add(3*time.Hour))
	c.Assert(clone.Period, Equals, "hour")
	c.Assert(clone.SQL, DeepEquals, job.SQL)

	// the original is untouched
	c.Assert(job.Name, Equals, "heartbeat")
	c.Assert(job.DueTime, Equals, due)
}

func (s *JobSuite) TestWithDatabase(c *C) {
	ds := &DatasourceConfig{Name: "shop", Host: "db1", Database: "shop_db"}
	override := ds.WithDatabase("shop_backup")

	c.Assert(override.Database, Equals, "shop_backup")
	c.Assert(override.Name, Equals, "shop")
	c.Assert(ds.Database, Equals, "shop_db")
}

func (s *JobSuite) TestNewAlarmInfoPassthrough(c *C) {
	info := &AlarmInfo{Kind: KindClaim, Content: "x"}
	c.Assert(NewAlarmInfo(info), Equals, info)

	byValue := NewAlarmInfo(AlarmInfo{Kind: KindDiff, Content: "y"})
	c.Assert(byValue.Kind, Equals, KindDiff)
	c.Assert(byValue.Content, Equals, "y")
}

func (s *JobSuite) TestNewAlarmInfoFromTuple(c *C) {
	info := NewAlarmInfo(expr.Tuple{"claim", "3 rows failed"})
	c.Assert(info.Kind, Equals, KindClaim)
	c.Assert(info.Content, Equals, "3 rows failed")
}

func (s *JobSuite) TestNewAlarmInfoUnknownKind(c *C) {
	// a 2-tuple with an unrecognised kind is not a verdict pair
	info := NewAlarmInfo(expr.Tuple{"whatever", "content"})
	c.Assert(info.Kind, Equals, KindDefault)
	c.Assert(info.Content, DeepEquals, expr.Tuple{"whatever", "content"})
}

func (s *JobSuite) TestNewAlarmInfoDefault(c *C) {
	info := NewAlarmInfo(int64(0))
	c.Assert(info.Kind, Equals, KindDefault)
	c.Assert(info.Content, Equals, int64(0))
}
