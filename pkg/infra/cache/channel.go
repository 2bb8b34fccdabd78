package cache

type Channel string

const InvalidationChannel Channel = "fraudguard_cache_events"
