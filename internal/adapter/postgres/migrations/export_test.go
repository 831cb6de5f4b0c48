package migrations

const SchemaLockKey = schemaLockKey
