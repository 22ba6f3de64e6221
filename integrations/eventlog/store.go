package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pairvault/core/events"
	"pairvault/observability"
)

const (
	sinkName = "eventlog"

	DefaultPageSize = 50
	MaxPageSize     = 500
)

var ErrPathRequired = errors.New("eventlog: database path must be configured")

// Record is one committed event. Seq is assigned by the database and orders
// records in commit order.
type Record struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	Pair       string    `gorm:"size:66;index"`
	Attributes string    `gorm:"type:text"`
	EmittedAt  time.Time `gorm:"index"`
}

func (Record) TableName() string { return "vault_events" }

// Entry is the API form of a record.
type Entry struct {
	Seq        uint64            `json:"seq"`
	ID         uuid.UUID         `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	EmittedAt  time.Time         `json:"emittedAt"`
}

// Query filters a page of entries. After is an exclusive cursor on Seq.
type Query struct {
	Type  string
	Pair  string
	After uint64
	Limit int
}

// Page is one page of results. Next is the cursor for the following page and
// zero when there are no more records.
type Page struct {
	Entries []Entry `json:"entries"`
	Next    uint64  `json:"next"`
}

// Store indexes committed vault events for off-chain consumers.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to dsn. postgres:// URLs use the Postgres driver; anything
// else is treated as a SQLite path.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate event log: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Write failures are logged and counted; the
// node has already committed the state change.
func (s *Store) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	_, err := s.Append(context.Background(), events.NewEnvelope(evt, s.now()))
	observability.Events().RecordSink(sinkName, err)
	if err != nil {
		s.logger.Error("eventlog: append failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Append stores env and returns its sequence number.
func (s *Store) Append(ctx context.Context, env events.Envelope) (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("eventlog: store not configured")
	}
	attrs, err := json.Marshal(env.Attributes)
	if err != nil {
		return 0, err
	}
	rec := Record{
		EventID:    env.ID,
		Type:       env.Type,
		Pair:       env.Attributes["pair"],
		Attributes: string(attrs),
		EmittedAt:  env.EmittedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return rec.Seq, nil
}

// List returns entries matching q in commit order.
func (s *Store) List(ctx context.Context, q Query) (*Page, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("eventlog: store not configured")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	tx := s.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", q.After)
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if p := strings.TrimSpace(q.Pair); p != "" {
		tx = tx.Where("pair = ?", p)
	}
	var rows []Record
	// One extra row tells us whether another page exists.
	if err := tx.Order("seq ASC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	page := &Page{Entries: make([]Entry, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		page.Next = rows[len(rows)-1].Seq
	}
	for _, row := range rows {
		attrs := map[string]string{}
		if row.Attributes != "" {
			if err := json.Unmarshal([]byte(row.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("decode event %d: %w", row.Seq, err)
			}
		}
		page.Entries = append(page.Entries, Entry{
			Seq:        row.Seq,
			ID:         row.EventID,
			Type:       row.Type,
			Attributes: attrs,
			EmittedAt:  row.EmittedAt,
		})
	}
	return page, nil
}
