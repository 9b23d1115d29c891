package outbox

const syncCompletedSchema = `{
  "type": "object",
  "title": "SyncCompleted",
  "properties": {
    "sync_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "platform": {"type": "string"},
    "status": {"type": "string"},
    "items_synced": {"type": "integer"},
    "created": {"type": "integer"},
    "updated": {"type": "integer"},
    "skipped": {"type": "integer"},
    "error": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["sync_id", "tenant_id", "user_id", "platform", "status", "items_synced", "created", "updated", "skipped", "occurred_at"],
  "additionalProperties": false
}`

const connectionStatusChangedSchema = `{
  "type": "object",
  "title": "ConnectionStatusChanged",
  "properties": {
    "connection_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "platform": {"type": "string"},
    "state": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["connection_id", "tenant_id", "user_id", "platform", "state", "occurred_at"],
  "additionalProperties": false
}`
