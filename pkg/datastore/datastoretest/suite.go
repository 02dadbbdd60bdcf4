// Package datastoretest holds the behavior every datastore backend must show.
// Backend tests embed [Suite] and provide a constructor:
//
//	func TestMemory(t *testing.T) {
//		suite.Run(t, &datastoretest.Suite{New: func(t *testing.T) datastore.Datastore { return memory.New() }})
//	}
package datastoretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/warehouse/recebimento/pkg/datastore"
)

const (
	tableA = "conformance_a"
	tableB = "conformance_b"
)

// Suite runs the datastore contract against a backend.
type Suite struct {
	suite.Suite

	// New returns an empty datastore. It is called once per test.
	New func(t *testing.T) datastore.Datastore

	ds  datastore.Datastore
	ctx context.Context
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.New, "Suite.New must be set")
	s.ds = s.New(s.T())
	s.ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.ds != nil {
		s.NoError(s.ds.Close())
	}
}

func (s *Suite) TestGetMissingReturnsNil() {
	doc, err := s.ds.Get(s.ctx, tableA, "missing")
	s.Require().NoError(err)
	s.Nil(doc)
}

func (s *Suite) TestPutThenGet() {
	in := datastore.Document{
		"sessionId": "session_A_01-01-2024_A",
		"volumes":   float64(3),
		"ok":        true,
		"notas":     []any{"1001", "1002"},
		"status":    map[string]any{"aberta": true},
	}
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "k1", in))

	got, err := s.ds.Get(s.ctx, tableA, "k1")
	s.Require().NoError(err)
	s.Equal(in, got)
}

func (s *Suite) TestPutReplacesWholeDocument() {
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "k1", datastore.Document{"a": "1", "b": "2"}))
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "k1", datastore.Document{"a": "3"}))

	got, err := s.ds.Get(s.ctx, tableA, "k1")
	s.Require().NoError(err)
	s.Equal(datastore.Document{"a": "3"}, got)
}

func (s *Suite) TestReturnedDocumentsAreCopies() {
	in := datastore.Document{"list": []any{"a"}}
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "k1", in))
	in["list"] = []any{"changed"}

	got, err := s.ds.Get(s.ctx, tableA, "k1")
	s.Require().NoError(err)
	got["list"] = []any{"mutated"}

	again, err := s.ds.Get(s.ctx, tableA, "k1")
	s.Require().NoError(err)
	s.Equal([]any{"a"}, again["list"])
}

func (s *Suite) TestTablesAreIsolated() {
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "same", datastore.Document{"t": "a"}))
	s.Require().NoError(s.ds.Put(s.ctx, tableB, "same", datastore.Document{"t": "b"}))

	a, err := s.ds.Get(s.ctx, tableA, "same")
	s.Require().NoError(err)
	b, err := s.ds.Get(s.ctx, tableB, "same")
	s.Require().NoError(err)
	s.Equal("a", a["t"])
	s.Equal("b", b["t"])

	all, err := s.ds.Scan(s.ctx, tableA, nil)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *Suite) TestDeleteIsIdempotent() {
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "k1", datastore.Document{"a": "1"}))
	s.Require().NoError(s.ds.Delete(s.ctx, tableA, "k1"))
	s.Require().NoError(s.ds.Delete(s.ctx, tableA, "k1"))
	s.Require().NoError(s.ds.Delete(s.ctx, tableA, "never-existed"))

	got, err := s.ds.Get(s.ctx, tableA, "k1")
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *Suite) TestScanFilters() {
	for i, conversa := range []string{"c1", "c1", "c2"} {
		key := fmt.Sprintf("m%d", i)
		s.Require().NoError(s.ds.Put(s.ctx, tableA, key, datastore.Document{"conversaId": conversa, "n": float64(i)}))
	}

	c1, err := s.ds.Scan(s.ctx, tableA, datastore.Filter{"conversaId": "c1"})
	s.Require().NoError(err)
	s.Len(c1, 2)
	for _, doc := range c1 {
		s.Equal("c1", doc["conversaId"])
	}

	byNumber, err := s.ds.Scan(s.ctx, tableA, datastore.Filter{"n": 2})
	s.Require().NoError(err)
	s.Require().Len(byNumber, 1)
	s.Equal("c2", byNumber[0]["conversaId"])

	all, err := s.ds.Scan(s.ctx, tableA, datastore.Filter{})
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *Suite) TestScanWithoutMatchesIsEmptyNotNil() {
	got, err := s.ds.Scan(s.ctx, tableA, datastore.Filter{"conversaId": "none"})
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)

	got, err = s.ds.Scan(s.ctx, "empty_table", nil)
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)
}

func (s *Suite) TestConcurrentPutsOnDistinctKeys() {
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.ds.Put(s.ctx, tableA, fmt.Sprintf("k%d", i), datastore.Document{"i": float64(i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	all, err := s.ds.Scan(s.ctx, tableA, nil)
	s.Require().NoError(err)
	s.Len(all, writers)
}

func (s *Suite) TestCanceledContext() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := s.ds.Get(ctx, tableA, "k1")
	s.Require().Error(err)
	s.True(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled), "got %v", err)
}

func (s *Suite) TestApplyIsAllOrNothing() {
	b, ok := s.ds.(datastore.Batcher)
	if !ok {
		s.T().Skip("backend does not implement datastore.Batcher")
	}
	s.Require().NoError(s.ds.Put(s.ctx, tableA, "src", datastore.Document{"v": "1"}))

	s.Require().NoError(b.Apply(s.ctx, []datastore.Op{
		datastore.PutOp(tableB, "dst", datastore.Document{"v": "1"}),
		datastore.DeleteOp(tableA, "src"),
	}))

	src, err := s.ds.Get(s.ctx, tableA, "src")
	s.Require().NoError(err)
	s.Nil(src)
	dst, err := s.ds.Get(s.ctx, tableB, "dst")
	s.Require().NoError(err)
	s.Equal("1", dst["v"])

	err = b.Apply(s.ctx, []datastore.Op{
		datastore.PutOp(tableA, "partial", datastore.Document{"v": "2"}),
		{Kind: datastore.OpKind("bogus"), Table: tableA, Key: "x"},
	})
	s.Require().Error(err)
	partial, err := s.ds.Get(s.ctx, tableA, "partial")
	s.Require().NoError(err)
	s.Nil(partial, "a failed batch must leave no writes behind")
}

func (s *Suite) TestClosedDatastoreFails() {
	s.Require().NoError(s.ds.Close())
	_, err := s.ds.Get(s.ctx, tableA, "k1")
	s.Require().Error(err)
	s.ds = nil
}
