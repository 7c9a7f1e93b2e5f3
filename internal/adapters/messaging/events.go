package messaging

type KafkaEvent = string

const (
	SyncExecutionStartedEvent   = "sync_execution_started"
	SyncExecutionCompletedEvent = "sync_execution_completed"
	SyncExecutionFailedEvent    = "sync_execution_failed"
	WebhookProcessedEvent       = "webhook_processed"
	ProductImportedEvent        = "product_imported"
)

// RunSyncCommand - команда воркеру запустить прогон синхронизации,
// публикуется в топик команд
const RunSyncCommand = "run_sync"
