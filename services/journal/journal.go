package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qugate/core/events"
	"qugate/core/types"
)

var errUnknownDriver = errors.New("journal: unknown driver")

// Record is one archived event.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	GateID     uint64    `gorm:"index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// Event decodes the stored payload.
func (r Record) Event() (*types.Event, error) {
	evt := &types.Event{Type: r.Type, Attributes: map[string]string{}}
	if r.Attributes == "" {
		return evt, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &evt.Attributes); err != nil {
		return nil, fmt.Errorf("decode journal record %d: %w", r.Seq, err)
	}
	return evt, nil
}

// Journal archives committed node events in a SQL database. It implements
// events.Emitter so it can sit directly behind the node.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
}

// Open connects to driver ("sqlite" or "postgres") at dsn and migrates the schema.
func Open(driver, dsn string) (*Journal, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return New(db)
}

// New wraps an open gorm handle.
func New(db *gorm.DB) (*Journal, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	var last Record
	res := db.Order("seq desc").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, fmt.Errorf("read journal head: %w", res.Error)
	}
	return &Journal{db: db, logger: slog.Default(), seq: last.Seq}, nil
}

// SetLogger replaces the logger used for write failures.
func (j *Journal) SetLogger(logger *slog.Logger) {
	if logger != nil {
		j.logger = logger
	}
}

// Emit implements events.Emitter. Write failures are logged, not returned:
// the node has already committed the state that produced the event.
func (j *Journal) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if _, err := j.Append(evt.Event()); err != nil {
		j.logger.Error("journal append failed", "type", evt.EventType(), "error", err)
	}
}

// Append stores evt and returns its sequence number.
func (j *Journal) Append(evt *types.Event) (uint64, error) {
	if evt == nil {
		return 0, errors.New("journal: nil event")
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	gateID, _ := strconv.ParseUint(evt.Attr("gateId"), 10, 64)

	j.mu.Lock()
	defer j.mu.Unlock()
	rec := Record{
		ID:         uuid.New(),
		Seq:        j.seq + 1,
		Type:       evt.Type,
		GateID:     gateID,
		Attributes: string(attrs),
	}
	if err := j.db.Create(&rec).Error; err != nil {
		return 0, fmt.Errorf("insert journal record: %w", err)
	}
	j.seq = rec.Seq
	return rec.Seq, nil
}

// Query selects archived records.
type Query struct {
	GateID   uint64
	Type     string
	AfterSeq uint64
	Limit    int
}

const maxQueryLimit = 500

// Find returns records matching q in sequence order.
func (j *Journal) Find(q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	tx := j.db.Model(&Record{}).Where("seq > ?", q.AfterSeq)
	if q.GateID != 0 {
		tx = tx.Where("gate_id = ?", q.GateID)
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	var out []Record
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return out, nil
}

// Head returns the last assigned sequence number.
func (j *Journal) Head() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
