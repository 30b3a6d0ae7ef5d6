package check

// Built-in response schemas, keyed by the name a Check's Schema field may
// reference instead of inline JSON.
var builtinSchemas = map[string]string{
	"transaction": `{
		"type": "object",
		"required": ["transaction_id", "operation_scope", "idempotency_key", "payload_hash", "status", "created_at", "entries"],
		"properties": {
			"transaction_id": {"type": "string", "format": "uuid"},
			"operation_scope": {"type": "string"},
			"idempotency_key": {"type": "string"},
			"payload_hash": {"type": "string"},
			"status": {"type": "string"},
			"created_at": {"type": "string"},
			"external_reference": {"type": ["string", "null"]},
			"entries": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["account_id", "amount", "asset"],
					"properties": {
						"account_id": {"type": "string", "format": "uuid"},
						"amount": {"type": ["string", "number"]},
						"asset": {"type": "string"}
					}
				}
			}
		}
	}`,
	"balance": `{
		"type": "object",
		"required": ["wallet_id", "asset", "balance", "version", "as_of"],
		"properties": {
			"wallet_id": {"type": "string", "format": "uuid"},
			"asset": {"type": "string"},
			"balance": {"type": ["string", "number"]},
			"version": {"type": "integer"},
			"as_of": {"type": "string"}
		}
	}`,
	"wallet": `{
		"type": "object",
		"required": ["wallet_id", "asset", "version", "created_at"],
		"properties": {
			"wallet_id": {"type": "string", "format": "uuid"},
			"asset": {"type": "string"},
			"version": {"type": "integer"},
			"created_at": {"type": "string"}
		}
	}`,
}

// BuiltinSchemas returns the names of the built-in schemas.
func BuiltinSchemas() []string {
	return []string{"balance", "transaction", "wallet"}
}
