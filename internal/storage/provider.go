package storage

import "televid/internal/ports"

// Provider is the storage contract used by the job runner and the status
// server. It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
