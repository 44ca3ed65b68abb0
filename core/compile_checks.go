package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TaskRunner         = (*SequentialTaskRunner)(nil)
	_ Task               = (*AddPersistentURLTask)(nil)
	_ TaskEqualer        = (*AddPersistentURLTask)(nil)
	_ Clock              = SystemClock{}
	_ Clock              = (*FixedClock)(nil)
	_ MetricsRecorder    = NopMetricsRecorder{}
	_ DataStoreFactory   = DataStoreFactoryFunc(nil)
	_ DataStoreFactory   = (*MemoryStore)(nil)
	_ DataStore          = (*memoryTx)(nil)
	_ AdminDataStore     = (*memoryTx)(nil)
	_ PermissionSource   = (*StaticPermissionSource)(nil)
	_ RedirectionService = (*MemoryRedirectionService)(nil)
	_ StoreProvider      = (*MemoryStores)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
