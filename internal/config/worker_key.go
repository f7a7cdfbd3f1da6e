package config

type WorkerKeyStruct struct {
	PersistSecurityLogsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSecurityLogsQueue: "persist_security_logs_queue",
}
