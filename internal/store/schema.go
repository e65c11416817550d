package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	sessionsTable         = "sessions"
	diagnosticEventsTable = "diagnostic_events"
	predictionsTable      = "predictions"
	submissionsTable      = "submissions"
	traceEventsTable      = "trace_events"
	llmRequestEventsTable = "llm_request_events"
)

var (
	// SessionsColumns holds the columns for the "sessions" table.
	SessionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "student_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "topic_name", Type: field.TypeString, Default: ""},
		{Name: "conversation_id", Type: field.TypeString, Default: ""},
		{Name: "turn_count", Type: field.TypeInt, Default: 0},
		{Name: "estimated_level", Type: field.TypeInt, Default: 3},
		{Name: "confidence", Type: field.TypeFloat64, Default: 0},
		{Name: "promo_votes", Type: field.TypeInt, Default: 0},
		{Name: "level_locked", Type: field.TypeBool, Default: false},
		{Name: "switch_reason", Type: field.TypeString, Default: ""},
		{Name: "misconceptions", Type: field.TypeString, Size: 2147483647, Default: "[]"},
		{Name: "history", Type: field.TypeString, Size: 2147483647, Default: "[]"},
		{Name: "finalized", Type: field.TypeBool, Default: false},
		{Name: "updated_at", Type: field.TypeInt64},
	}
	// SessionsTable holds the schema information for the "sessions" table.
	SessionsTable = &schema.Table{
		Name:       sessionsTable,
		Columns:    SessionsColumns,
		PrimaryKey: []*schema.Column{SessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "session_student_id_topic_id",
				Unique:  true,
				Columns: []*schema.Column{SessionsColumns[1], SessionsColumns[2]},
			},
		},
	}

	// DiagnosticEventsColumns holds the columns for the "diagnostic_events" table.
	DiagnosticEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "student_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "turn", Type: field.TypeInt},
		{Name: "is_correct", Type: field.TypeBool},
		{Name: "reasoning_score", Type: field.TypeInt},
		{Name: "misconception", Type: field.TypeString, Nullable: true},
		{Name: "llm_level", Type: field.TypeInt},
		{Name: "computed_level", Type: field.TypeInt},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "signal", Type: field.TypeFloat64, Default: 0},
	}
	// DiagnosticEventsTable holds the schema information for the "diagnostic_events" table.
	DiagnosticEventsTable = &schema.Table{
		Name:       diagnosticEventsTable,
		Columns:    DiagnosticEventsColumns,
		PrimaryKey: []*schema.Column{DiagnosticEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "diagnosticevent_student_id_topic_id_turn",
				Unique:  true,
				Columns: []*schema.Column{DiagnosticEventsColumns[1], DiagnosticEventsColumns[2], DiagnosticEventsColumns[3]},
			},
		},
	}

	// PredictionsColumns holds the columns for the "predictions" table.
	PredictionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "run_id", Type: field.TypeString},
		{Name: "student_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "predicted_level", Type: field.TypeInt},
		{Name: "fallback", Type: field.TypeBool, Default: false},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// PredictionsTable holds the schema information for the "predictions" table.
	PredictionsTable = &schema.Table{
		Name:       predictionsTable,
		Columns:    PredictionsColumns,
		PrimaryKey: []*schema.Column{PredictionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "prediction_run_id_student_id_topic_id",
				Unique:  true,
				Columns: []*schema.Column{PredictionsColumns[1], PredictionsColumns[2], PredictionsColumns[3]},
			},
		},
	}

	// SubmissionsColumns holds the columns for the "submissions" table.
	SubmissionsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "run_id", Type: field.TypeString, Default: ""},
		{Name: "kind", Type: field.TypeString},
		{Name: "set_type", Type: field.TypeString},
		{Name: "predictions", Type: field.TypeInt, Default: 0},
		{Name: "score", Type: field.TypeFloat64, Nullable: true},
		{Name: "response", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// SubmissionsTable holds the schema information for the "submissions" table.
	SubmissionsTable = &schema.Table{
		Name:       submissionsTable,
		Columns:    SubmissionsColumns,
		PrimaryKey: []*schema.Column{SubmissionsColumns[0]},
	}

	// TraceEventsColumns holds the columns for the "trace_events" table.
	TraceEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeInt64},
		{Name: "student_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString, Default: ""},
		{Name: "topic", Type: field.TypeString, Default: ""},
		{Name: "agent", Type: field.TypeString},
		{Name: "detail", Type: field.TypeString, Size: 2147483647, Default: ""},
	}
	// TraceEventsTable holds the schema information for the "trace_events" table.
	TraceEventsTable = &schema.Table{
		Name:       traceEventsTable,
		Columns:    TraceEventsColumns,
		PrimaryKey: []*schema.Column{TraceEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "traceevent_student_id",
				Unique:  false,
				Columns: []*schema.Column{TraceEventsColumns[3]},
			},
		},
	}

	// LLMRequestEventsColumns holds the columns for the "llm_request_events" table.
	LLMRequestEventsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeInt64},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt},
		{Name: "output_tokens", Type: field.TypeInt},
		{Name: "latency_ms", Type: field.TypeInt64},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 2147483647, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 2147483647, Default: ""},
	}
	// LLMRequestEventsTable holds the schema information for the "llm_request_events" table.
	LLMRequestEventsTable = &schema.Table{
		Name:       llmRequestEventsTable,
		Columns:    LLMRequestEventsColumns,
		PrimaryKey: []*schema.Column{LLMRequestEventsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "llmrequestevent_purpose",
				Unique:  false,
				Columns: []*schema.Column{LLMRequestEventsColumns[5]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		SessionsTable,
		DiagnosticEventsTable,
		PredictionsTable,
		SubmissionsTable,
		TraceEventsTable,
		LLMRequestEventsTable,
	}
)
