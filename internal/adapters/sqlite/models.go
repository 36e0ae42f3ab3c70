package sqlite

import "time"

type uriRegisterModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	Label         string `gorm:"column:label;not null"`
	URL           string `gorm:"column:url;not null"`
	CanBeResolved bool   `gorm:"column:can_be_resolved;not null"`
}

func (uriRegisterModel) TableName() string { return "uri_registers" }

type mediaTypeModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	MimeType      string `gorm:"column:mime_type;not null"`
	FileExtension string `gorm:"column:file_extension;not null"`
}

func (mediaTypeModel) TableName() string { return "media_types" }

type rewriteRuleModel struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	RegisterID  int64     `gorm:"column:register_id;not null"`
	Label       string    `gorm:"column:label;not null"`
	Description string    `gorm:"column:description;not null"`
	Pattern     string    `gorm:"column:pattern;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (rewriteRuleModel) TableName() string { return "rewrite_rules" }

type acceptMappingModel struct {
	ID          int64  `gorm:"column:id;primaryKey"`
	RuleID      int64  `gorm:"column:rule_id;not null"`
	MediaTypeID int64  `gorm:"column:media_type_id;not null"`
	RedirectTo  string `gorm:"column:redirect_to;not null"`
}

func (acceptMappingModel) TableName() string { return "accept_mappings" }

// acceptMappingRow is a mapping joined with its media type.
type acceptMappingRow struct {
	acceptMappingModel
	MimeType      string `gorm:"column:mime_type"`
	FileExtension string `gorm:"column:file_extension"`
}

type contentModelModel struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	Title         string    `gorm:"column:title;not null"`
	Label         string    `gorm:"column:label;not null"`
	Description   string    `gorm:"column:description;not null"`
	Discussion    string    `gorm:"column:discussion;not null"`
	Status        string    `gorm:"column:status;not null"`
	RewriteRuleID *int64    `gorm:"column:rewrite_rule_id"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

func (contentModelModel) TableName() string { return "content_models" }

type modelVersionModel struct {
	ID               int64     `gorm:"column:id;primaryKey"`
	ContentModelID   int64     `gorm:"column:content_model_id;not null"`
	Version          string    `gorm:"column:version;not null"`
	XSDFile          string    `gorm:"column:xsd_file;not null"`
	XLSFile          string    `gorm:"column:xls_file;not null"`
	SLDFile          string    `gorm:"column:sld_file;not null"`
	LYRFile          string    `gorm:"column:lyr_file;not null"`
	SampleWFSRequest string    `gorm:"column:sample_wfs_request;not null"`
	RewriteRuleID    *int64    `gorm:"column:rewrite_rule_id"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
}

func (modelVersionModel) TableName() string { return "model_versions" }

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey"`
	EventID       string     `gorm:"column:event_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string { return "outbox_events" }
