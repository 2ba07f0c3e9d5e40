package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/tablekit/internal/db"
	"github.com/kailas-cloud/tablekit/internal/domain/filter"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestIsRedisErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		sub  string
		want bool
	}{
		{"redis casing", mock.Result(mock.RedisError("Index already exists")).Error(), "index already exists", true},
		{"valkey casing", mock.Result(mock.RedisError("UNKNOWN INDEX NAME")).Error(), "unknown index name", true},
		{"other message", mock.Result(mock.RedisError("WRONGTYPE")).Error(), "unknown index name", false},
		{"transport error", context.DeadlineExceeded, "deadline", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRedisErr(tc.err, tc.sub); got != tc.want {
				t.Errorf("isRedisErr(%v, %q) = %v, want %v", tc.err, tc.sub, got, tc.want)
			}
		})
	}
}

func TestWaitForReady_RetriesUntilPong(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	gomock.InOrder(
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(errors.New("connection refused"))),
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG"))),
	)

	s := NewStoreForTest(c)
	if err := s.WaitForReady(context.Background(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitForReady_Timeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(errors.New("connection refused"))).AnyTimes()

	s := NewStoreForTest(c)
	err := s.WaitForReady(context.Background(), 150*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected timeout carrying the ping error, got %v", err)
	}
}

// --- hash.go tests ---

func TestPutDocuments_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(),
			mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "HSET" && cmd[1] == "tablekit:sales_invoice:SINV-1"
			}),
			mock.MatchFn(func(cmd []string) bool {
				return cmd[0] == "HSET" && cmd[1] == "tablekit:sales_invoice:SINV-2"
			}),
		).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisInt64(2)),
			mock.Result(mock.RedisInt64(2)),
		})

	s := NewStoreForTest(c)
	err := s.PutDocuments(context.Background(), "sales_invoice", []db.Document{
		{ID: "SINV-1", Fields: map[string]string{"status": "Paid"}},
		{ID: "SINV-2", Fields: map[string]string{"status": "Draft"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPutDocuments_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{mock.ErrorResult(context.DeadlineExceeded)})

	s := NewStoreForTest(c)
	err := s.PutDocuments(context.Background(), "sales_invoice", []db.Document{
		{ID: "SINV-1", Fields: map[string]string{"status": "Paid"}},
	})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %v", err)
	}
}

func TestPutDocuments_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	if err := s.PutDocuments(context.Background(), "sales_invoice", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPutDocuments_MissingID(t *testing.T) {
	s := NewStoreForTest(nil)
	err := s.PutDocuments(context.Background(), "sales_invoice", []db.Document{
		{Fields: map[string]string{"status": "Paid"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

// --- kv.go tests ---

func TestKV_CacheCommands(t *testing.T) {
	const key = "tablekit:cache:purchase_order:3:page:ab12"
	ctx := context.Background()

	tests := []struct {
		name   string
		expect func(c *mock.Client)
		run    func(s *Store) error
	}{
		{
			name: "get hit",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("GET", key)).
					Return(mock.Result(mock.RedisBlobString(`{"total_count":3}`)))
			},
			run: func(s *Store) error {
				data, err := s.Get(ctx, key)
				if err == nil && string(data) != `{"total_count":3}` {
					return fmt.Errorf("data = %s", data)
				}
				return err
			},
		},
		{
			name: "get miss",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("GET", key)).Return(mock.Result(mock.RedisNil()))
			},
			run: func(s *Store) error {
				if _, err := s.Get(ctx, key); !errors.Is(err, db.ErrKeyNotFound) {
					return fmt.Errorf("want ErrKeyNotFound, got %v", err)
				}
				return nil
			},
		},
		{
			name: "set",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("SET", key, "v")).Return(mock.Result(mock.RedisString("OK")))
			},
			run: func(s *Store) error { return s.Set(ctx, key, []byte("v")) },
		},
		{
			name: "set with ttl",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("SET", key, "v", "EX", "30")).
					Return(mock.Result(mock.RedisString("OK")))
			},
			run: func(s *Store) error { return s.SetWithTTL(ctx, key, []byte("v"), 30*time.Second) },
		},
		{
			name: "generation bump",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("INCRBY", "tablekit:cache:gen:purchase_order", "1")).
					Return(mock.Result(mock.RedisInt64(4)))
			},
			run: func(s *Store) error {
				n, err := s.IncrBy(ctx, "tablekit:cache:gen:purchase_order", 1)
				if err == nil && n != 4 {
					return fmt.Errorf("generation = %d, want 4", n)
				}
				return err
			},
		},
		{
			name: "del",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("DEL", key)).Return(mock.Result(mock.RedisInt64(1)))
			},
			run: func(s *Store) error { return s.Del(ctx, key) },
		},
		{
			name: "transport error is wrapped",
			expect: func(c *mock.Client) {
				c.EXPECT().Do(gomock.Any(), mock.Match("GET", key)).Return(mock.ErrorResult(context.DeadlineExceeded))
			},
			run: func(s *Store) error {
				if _, err := s.Get(ctx, key); !isDBError(err) || !errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("want wrapped db.Error, got %v", err)
				}
				return nil
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			tc.expect(c)
			if err := tc.run(NewStoreForTest(c)); err != nil {
				t.Fatal(err)
			}
		})
	}
}

// --- index.go tests ---

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := db.NewIndex("idx").Field("status", db.IndexFieldTag, false).MustBuild()
	err := s.CreateIndex(context.Background(), idx)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "idx")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	if err := s.DropIndex(context.Background(), "idx"); !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name   string
		result rueidis.RedisResult
		want   bool
	}{
		{"exists", mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("idx"))), true},
		{"missing", mock.Result(mock.RedisError("Unknown Index name")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			c.EXPECT().Do(gomock.Any(), mock.Match("FT.INFO", "idx")).Return(tt.result)

			s := NewStoreForTest(c)
			got, err := s.IndexExists(context.Background(), "idx")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IndexExists = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreateIndex_SendsSchemaAndRemembersTags(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	def := db.IndexFor("purchase_order").
		Field("supplier", db.IndexFieldTag, true).
		Field("title", db.IndexFieldText, false).
		Field("transaction_date", db.IndexFieldDate, true).
		MustBuild()
	want, _ := def.Args()

	c.EXPECT().
		Do(gomock.Any(), mock.Match(append([]string{"FT.CREATE"}, want...)...)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.CreateIndex(context.Background(), def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cond, _ := filter.NewLike("supplier", "acme")
	expr, _ := filter.NewExpression([]filter.Condition{cond}, nil, nil)
	if q := s.queryString("purchase_order", expr); q != `@supplier:{*acme*}` {
		t.Errorf("tag field searched as text: %q", q)
	}
}

func TestCreateIndex_InvalidDefinition(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewStoreForTest(c)
	err := s.CreateIndex(context.Background(), &db.IndexDefinition{Name: "idx"})
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %v", err)
	}
}

// --- helpers ---

func indexOf(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
