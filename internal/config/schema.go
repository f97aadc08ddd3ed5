// Package config loads the seline YAML configuration: environment
// expansion, per-section defaults and validation.
package config

import (
	"os"
	"time"

	"github.com/flemzord/seline/internal/gateway"
	"github.com/flemzord/seline/internal/telemetry"
	"github.com/flemzord/seline/modules/channel/line"
	"github.com/flemzord/seline/modules/memory/postgres"
	"github.com/flemzord/seline/modules/memory/sqlite"
	"github.com/flemzord/seline/modules/provider/openai"
	"github.com/flemzord/seline/modules/search/azure"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	Log       LogConfig        `yaml:"log"`
	Gateway   gateway.Config   `yaml:"gateway"`
	Debounce  DebounceConfig   `yaml:"debounce"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	LINE      line.Config      `yaml:"line"`
	OpenAI    openai.Config    `yaml:"openai"`
	Providers ProvidersConfig  `yaml:"providers"`
	Search    azure.Config     `yaml:"search"`
	Storage   StorageConfig    `yaml:"storage"`
	Cron      CronConfig       `yaml:"cron"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Audit     AuditConfig      `yaml:"audit"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DebounceConfig configures the per-user buffers and the worker pool.
type DebounceConfig struct {
	// Window is the quiet period that closes a burst. Default: 2s.
	Window     time.Duration `yaml:"window"`
	Workers    int           `yaml:"workers"`
	InboxSize  int           `yaml:"inbox_size"`
	RunTimeout time.Duration `yaml:"run_timeout"`
	SweepGrace time.Duration `yaml:"sweep_grace"`
	MaxIdle    time.Duration `yaml:"max_idle"`
}

// RetrievalConfig is the paging of one route's search.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
	Skip int `yaml:"skip"`
}

// FAQEntry is one quick-reply question with its canned answer.
type FAQEntry struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	ImageURL string `yaml:"image_url"`
}

// PipelineConfig configures routing, history and fixed replies.
type PipelineConfig struct {
	ResetSentinel      string `yaml:"reset_sentinel"`
	ResetReply         string `yaml:"reset_reply"`
	FallbackReply      string `yaml:"fallback_reply"`
	AnswerFailureReply string `yaml:"answer_failure_reply"`

	// HistoryLimit is the number of recent turns read per batch.
	HistoryLimit int `yaml:"history_limit"`

	// MaxHistoryChars triggers compaction when the transcript is longer.
	MaxHistoryChars int `yaml:"max_history_chars"`

	ClassifyWithHistory  *bool `yaml:"classify_with_history"`
	SpeculativeRetrieval bool  `yaml:"speculative_retrieval"`

	// Timezone stamps persisted turns. Default: Asia/Bangkok.
	Timezone string `yaml:"timezone"`

	Company  string `yaml:"company"`
	Language string `yaml:"language"`

	Service RetrievalConfig `yaml:"service"`
	Product RetrievalConfig `yaml:"product"`
	More    RetrievalConfig `yaml:"more"`

	PersistTimeout time.Duration `yaml:"persist_timeout"`

	FAQ []FAQEntry `yaml:"faq"`
}

// ProvidersConfig controls failover of the model chain.
type ProvidersConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	MaxFailures    int           `yaml:"max_failures"`

	// Fallback, when set, is a second OpenAI-compatible endpoint used
	// when the primary is cooling down or disabled.
	Fallback *openai.Config `yaml:"fallback"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects the conversation store.
type StorageConfig struct {
	Driver   string          `yaml:"driver"`
	SQLite   sqlite.Config   `yaml:"sqlite"`
	Postgres postgres.Config `yaml:"postgres"`
}

// CronConfig holds the schedules of the maintenance jobs. Empty values
// keep the job defaults.
type CronConfig struct {
	Sweep    string `yaml:"sweep"`
	Eviction string `yaml:"eviction"`
	Probe    string `yaml:"probe"`
}

// AuditConfig configures the audit log.
type AuditConfig struct {
	// Path of the JSONL audit file. Empty writes audit events to the log.
	Path string `yaml:"path"`
}

// Defaults fills zero values across every section.
func (c *Config) Defaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Gateway.Defaults()
	c.Pipeline.defaults()
	c.LINE.Defaults()
	c.OpenAI.Defaults()
	if c.Providers.Fallback != nil {
		c.Providers.Fallback.Defaults()
	}
	c.Search.Defaults()
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		c.Storage.SQLite.Defaults()
	case DriverPostgres:
		c.Storage.Postgres.Defaults()
	}
	c.Telemetry.Defaults()
}

func (p *PipelineConfig) defaults() {
	if p.Timezone == "" {
		p.Timezone = "Asia/Bangkok"
	}
	if p.ClassifyWithHistory == nil {
		t := true
		p.ClassifyWithHistory = &t
	}
	if len(p.FAQ) == 0 {
		p.FAQ = DefaultFAQ()
	}
}

// DefaultFAQ returns the built-in quick replies. The two promotion answers
// can be overridden with $PROMOTION_SELIFE and $PROMOTION_INSURE.
func DefaultFAQ() []FAQEntry {
	const icons = "https://raw.githubusercontent.com/sorawitr0607/LINE_RAG_API/main/icon_pic/"
	return []FAQEntry{
		{
			Question: "ศูนย์ดูแลลูกค้า",
			Answer:   " Se Life : 02-255-5656 \n IN-SURE : 02-636-5656 \n เวลาทำการ : จันทร์ - ศุกร์ 08.30 - 17.00 น",
			ImageURL: icons + "customer_service.png",
		},
		{
			Question: "โปรโมชั่น SE Life",
			Answer:   envOr("PROMOTION_SELIFE", "ยังไม่มีโปรโมชั่นสำหรับ SE Life ขณะนี้"),
			ImageURL: icons + "selife_icon.png",
		},
		{
			Question: "โปรโมชั่น IN-SURE",
			Answer:   envOr("PROMOTION_INSURE", "ยังไม่มีโปรโมชั่นสำหรับ IN-SURE ขณะนี้"),
			ImageURL: icons + "insure_icon.png",
		},
		{
			Question: "Line Thai Group",
			Answer:   "ที่เดียวจบ ครบทุกบริการของอาคเนย์ประกันชีวิต เช่น ดูข้อมูลประกัน แก้ไขข้อมูลกรมธรรม์ หรือ แจ้งเคลมประกัน \n เป็นเพื่อนกับ Thai Group ได้เลยที่นี่ https://lin.ee/OGWXtpN ",
			ImageURL: icons + "line_icon.png",
		},
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
