package repository

import (
	"context"
	"time"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableAccounts          = "accounts"
	tableUsers             = "users"
	tableEntities          = "entities"
	tableDocuments         = "documents"
	tableRequirements      = "requirements"
	tableRequirementEvents = "requirement_status_events"
	tableNotifications     = "notifications"
	tableCRMSyncLogs       = "crm_sync_logs"
)

func idColumn() *schema.Column {
	return &schema.Column{Name: "id", Type: field.TypeUUID}
}

func col(name string, t field.Type) *schema.Column {
	return &schema.Column{Name: name, Type: t}
}

func nullable(name string, t field.Type) *schema.Column {
	return &schema.Column{Name: name, Type: t, Nullable: true}
}

func sized(name string, size int64, isNullable bool) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Size: size, Nullable: isNullable}
}

func table(name string, cols []*schema.Column, indexes ...*schema.Index) *schema.Table {
	return &schema.Table{Name: name, Columns: cols, PrimaryKey: []*schema.Column{cols[0]}, Indexes: indexes}
}

func index(name string, unique bool, cols ...*schema.Column) *schema.Index {
	return &schema.Index{Name: name, Unique: unique, Columns: cols}
}

// Tables returns the schema definitions for every table the repositories use.
func Tables() []*schema.Table {
	// accounts
	accID := idColumn()
	accounts := table(tableAccounts, []*schema.Column{
		accID,
		sized("name", 255, false),
		sized("niche_id", 64, false),
		{Name: "active", Type: field.TypeBool, Default: true},
		nullable("crm_settings", field.TypeJSON),
		nullable("notification_overrides", field.TypeJSON),
		col("created_at", field.TypeTime),
		col("updated_at", field.TypeTime),
	})

	// users
	userAccount := col("account_id", field.TypeUUID)
	userEmail := sized("email", 255, false)
	users := table(tableUsers, []*schema.Column{
		idColumn(),
		userAccount,
		userEmail,
		sized("first_name", 100, true),
		sized("last_name", 100, true),
		sized("role", 32, false),
		{Name: "active", Type: field.TypeBool, Default: true},
		col("created_at", field.TypeTime),
	}, index("users_account_email", true, userAccount, userEmail))

	// entities
	entAccount := col("account_id", field.TypeUUID)
	entEmail := sized("email", 255, true)
	entExternal := sized("external_id", 255, true)
	entities := table(tableEntities, []*schema.Column{
		idColumn(),
		entAccount,
		sized("type_code", 64, false),
		sized("name", 255, false),
		entEmail,
		sized("phone", 50, true),
		nullable("address", field.TypeString),
		nullable("custom_fields", field.TypeJSON),
		entExternal,
		sized("external_source", 32, true),
		col("created_at", field.TypeTime),
		col("updated_at", field.TypeTime),
	},
		index("entities_account_external", false, entAccount, entExternal),
		index("entities_account_email", false, entAccount, entEmail),
	)

	// documents
	docAccount := col("account_id", field.TypeUUID)
	docEntity := nullable("entity_id", field.TypeUUID)
	docStatus := sized("status", 32, false)
	documents := table(tableDocuments, []*schema.Column{
		idColumn(),
		docAccount,
		docEntity,
		sized("document_type_code", 64, false),
		sized("file_name", 255, false),
		sized("mime_type", 100, false),
		sized("storage_key", 512, false),
		{Name: "size_bytes", Type: field.TypeInt64, Default: 0},
		docStatus,
		nullable("raw_text", field.TypeString),
		nullable("extracted_data", field.TypeJSON),
		nullable("field_confidences", field.TypeJSON),
		nullable("flagged_fields", field.TypeJSON),
		nullable("extraction_confidence", field.TypeFloat64),
		nullable("processing_error", field.TypeString),
		{Name: "error_retriable", Type: field.TypeBool, Default: false},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		nullable("processed_at", field.TypeTime),
		col("created_at", field.TypeTime),
		col("updated_at", field.TypeTime),
	},
		index("documents_account_status", false, docAccount, docStatus),
		index("documents_entity", false, docEntity),
	)

	// requirements
	reqAccount := col("account_id", field.TypeUUID)
	reqEntity := col("entity_id", field.TypeUUID)
	reqType := sized("requirement_type_code", 64, false)
	reqStatus := sized("status", 32, false)
	requirements := table(tableRequirements, []*schema.Column{
		idColumn(),
		reqAccount,
		reqEntity,
		reqType,
		sized("name", 255, false),
		sized("due_date", 10, true),
		reqStatus,
		sized("priority", 16, false),
		nullable("document_id", field.TypeUUID),
		nullable("assignee_id", field.TypeUUID),
		{Name: "manual_override", Type: field.TypeBool, Default: false},
		nullable("override_at", field.TypeTime),
		sized("completed_date", 10, true),
		col("created_at", field.TypeTime),
		col("updated_at", field.TypeTime),
	},
		index("requirements_entity_type", true, reqEntity, reqType),
		index("requirements_account_status", false, reqAccount, reqStatus),
	)

	// requirement_status_events
	evReq := col("requirement_id", field.TypeUUID)
	events := table(tableRequirementEvents, []*schema.Column{
		idColumn(),
		evReq,
		sized("from_status", 32, false),
		sized("to_status", 32, false),
		sized("source", 32, false),
		nullable("actor_id", field.TypeUUID),
		nullable("reason", field.TypeString),
		col("created_at", field.TypeTime),
	}, index("requirement_status_events_requirement", false, evReq))

	// notifications
	nReq := col("requirement_id", field.TypeUUID)
	nType := sized("notice_type", 32, false)
	nDate := sized("notice_date", 10, false)
	nStatus := sized("status", 16, false)
	nScheduled := col("scheduled_at", field.TypeTime)
	nAccount := col("account_id", field.TypeUUID)
	notifications := table(tableNotifications, []*schema.Column{
		idColumn(),
		nAccount,
		nReq,
		nullable("recipient_id", field.TypeUUID),
		nType,
		nDate,
		nullable("threshold_days", field.TypeInt),
		sized("channel", 16, false),
		sized("template_code", 64, true),
		nullable("subject", field.TypeString),
		nullable("body", field.TypeString),
		nullable("context", field.TypeJSON),
		nStatus,
		{Name: "delivery_attempts", Type: field.TypeInt, Default: 0},
		nullable("last_error", field.TypeString),
		sized("external_id", 255, true),
		nScheduled,
		nullable("sent_at", field.TypeTime),
		nullable("read_at", field.TypeTime),
		col("created_at", field.TypeTime),
	},
		index("notifications_requirement_type_date", true, nReq, nType, nDate),
		index("notifications_status_scheduled", false, nStatus, nScheduled),
		index("notifications_account_status", false, nAccount, nStatus),
	)

	// crm_sync_logs
	logAccount := col("account_id", field.TypeUUID)
	logCreated := col("created_at", field.TypeTime)
	syncLogs := table(tableCRMSyncLogs, []*schema.Column{
		idColumn(),
		logAccount,
		nullable("entity_id", field.TypeUUID),
		sized("provider", 32, false),
		sized("operation", 32, false),
		sized("direction", 8, false),
		sized("status", 16, false),
		sized("external_id", 255, true),
		{Name: "duration_ms", Type: field.TypeInt64, Default: 0},
		nullable("error_message", field.TypeString),
		nullable("request_data", field.TypeJSON),
		nullable("response_data", field.TypeJSON),
		logCreated,
	}, index("crm_sync_logs_account_created", false, logAccount, logCreated))

	return []*schema.Table{accounts, users, entities, documents, requirements, events, notifications, syncLogs}
}

// Migrate creates or updates every table.
func (db *DB) Migrate(ctx context.Context) error {
	start := time.Now()
	m, err := schema.NewMigrate(db.drv)
	if err != nil {
		return dbError("init migrate", err)
	}
	if err := m.Create(ctx, Tables()...); err != nil {
		db.logger.Error("db.migrate.error", "error", err)
		return dbError("migrate", err)
	}
	db.logger.Info("db.migrate.ok", "tables", len(Tables()), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}
